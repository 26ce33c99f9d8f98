package ctmc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

//Mk is the k-state Lewis model: equal exchange between all states and uniform stationary frequencies
type Mk struct {
	K int
}

//NewMk will return a k-state Mk model
func NewMk(k int) (*Mk, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: %d", ErrNumStates, k)
	}
	return &Mk{K: k}, nil
}

func (m *Mk) NumStates() int { return m.K }

// StationaryFrequencies returns the uniform distribution over states.
func (m *Mk) StationaryFrequencies() ([]float64, bool) {
	f := make([]float64, m.K)
	for i := range f {
		f[i] = 1 / float64(m.K)
	}
	return f, true
}

// TransitionProbabilities fills out with P(t) for t=(start-end)*rate, using
// the rate normalisation where one unit of time is one expected change.
func (m *Mk) TransitionProbabilities(start, end, rate float64, out *mat.Dense) {
	k := float64(m.K)
	t := (start - end) * rate
	e := math.Exp(-k / (k - 1) * t)
	same := 1/k + (k-1)/k*e
	diff := 1/k - e/k
	for i := 0; i < m.K; i++ {
		for j := 0; j < m.K; j++ {
			if i == j {
				out.Set(i, j, same)
			} else {
				out.Set(i, j, diff)
			}
		}
	}
}
