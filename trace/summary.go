package trace

import (
	"os"

	"github.com/sugawarayuuta/sonnet"
)

// MoveStats counts the proposals and acceptances of one move.
type MoveStats struct {
	Proposed int `json:"proposed"`
	Accepted int `json:"accepted"`
}

// Ratio returns the acceptance ratio, zero before the first proposal.
func (m MoveStats) Ratio() float64 {
	if m.Proposed == 0 {
		return 0
	}
	return float64(m.Accepted) / float64(m.Proposed)
}

// Summary is the end-of-run report written next to the trace.
type Summary struct {
	RunID             string               `json:"run_id"`
	Generations       int                  `json:"generations"`
	Moves             map[string]MoveStats `json:"moves"`
	FinalLnLikelihood float64              `json:"final_ln_likelihood"`
	FinalLnPrior      float64              `json:"final_ln_prior"`
	StepLength        float64              `json:"step_length"`
	ElapsedSeconds    float64              `json:"elapsed_seconds"`
	Newick            string               `json:"newick"`
}

//WriteSummary will write s as JSON to path
func WriteSummary(path string, s Summary) error {
	b, err := sonnet.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

//ReadSummary will read a summary written by WriteSummary
func ReadSummary(path string) (Summary, error) {
	var s Summary
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	err = sonnet.Unmarshal(b, &s)
	return s, err
}
