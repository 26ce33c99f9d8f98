package likelihood

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mewbak/revbayes/character"
)

// CompressOptions controls pattern construction.
type CompressOptions struct {
	// Compressed merges identical columns; otherwise each site is a pattern.
	Compressed bool
	// TreatAmbiguousAsGap turns any ambiguous or missing observation into a gap.
	TreatAmbiguousAsGap bool
	// TreatUnknownAsGap turns observations compatible with every state into gaps.
	TreatUnknownAsGap bool
	// NumSites is the number of included sites expected; negative means all.
	NumSites int
}

// Patterns is the compressed view of the included columns of a matrix for
// a fixed set of tips.
type Patterns struct {
	NumStates int
	NumTips   int

	// Sites maps a site ordinal to its matrix column.
	Sites []int
	// SitePattern maps a site ordinal to its pattern.
	SitePattern   []int
	PatternCounts []int

	// Bits and Gaps are indexed [tip][pattern].
	Bits [][]uint64
	Gaps [][]bool

	Invariant      []bool
	InvariantState []int
}

// NumPatterns returns the number of distinct columns.
func (p *Patterns) NumPatterns() int { return len(p.PatternCounts) }

// NumSites returns the number of included sites.
func (p *Patterns) NumSites() int { return len(p.SitePattern) }

// Compress builds the patterns of the included sites of m. tipNames[i] is
// the matrix row of tip i. Every call builds the pattern state from scratch.
func Compress(m *character.Matrix, tipNames []string, opts CompressOptions) (*Patterns, error) {
	sites, err := m.IncludedSiteIndices(opts.NumSites)
	if err != nil {
		return nil, err
	}
	ns := m.Alphabet.NumStates()
	all := character.AllStates(m.Alphabet)
	ntips := len(tipNames)
	rows := make([][]character.Character, ntips)
	for i, name := range tipNames {
		r, ok := m.Row(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingTaxon, name)
		}
		rows[i] = r
	}

	normalize := func(c character.Character) (uint64, bool) {
		if c.Gap {
			return 0, true
		}
		if c.Missing && (opts.TreatAmbiguousAsGap || opts.TreatUnknownAsGap) {
			return 0, true
		}
		if c.IsAmbiguous() && opts.TreatAmbiguousAsGap {
			return 0, true
		}
		if c.Bits&all == all && opts.TreatUnknownAsGap {
			return 0, true
		}
		if c.Missing {
			return all, false
		}
		return c.Bits & all, false
	}

	p := &Patterns{
		NumStates:   ns,
		NumTips:     ntips,
		Sites:       sites,
		SitePattern: make([]int, len(sites)),
		Bits:        make([][]uint64, ntips),
		Gaps:        make([][]bool, ntips),
	}
	seen := make(map[string]int)
	col := make([]uint64, ntips)
	gap := make([]bool, ntips)
	var key strings.Builder
	for s, site := range sites {
		key.Reset()
		for i := range rows {
			col[i], gap[i] = normalize(rows[i][site])
			if gap[i] {
				key.WriteString("-,")
			} else {
				key.WriteString(strconv.FormatUint(col[i], 16))
				key.WriteByte(',')
			}
		}
		if opts.Compressed {
			if idx, ok := seen[key.String()]; ok {
				p.PatternCounts[idx]++
				p.SitePattern[s] = idx
				continue
			}
			seen[key.String()] = len(p.PatternCounts)
		}
		p.SitePattern[s] = len(p.PatternCounts)
		p.PatternCounts = append(p.PatternCounts, 1)
		for i := range rows {
			p.Bits[i] = append(p.Bits[i], col[i])
			p.Gaps[i] = append(p.Gaps[i], gap[i])
		}
	}
	p.classifyInvariant()
	return p, nil
}

// classifyInvariant marks the patterns where every tip shares a single
// unambiguous, non-gap state.
func (p *Patterns) classifyInvariant() {
	np := p.NumPatterns()
	p.Invariant = make([]bool, np)
	p.InvariantState = make([]int, np)
	for k := 0; k < np; k++ {
		p.InvariantState[k] = -1
		if p.NumTips == 0 {
			continue
		}
		c := character.Character{Bits: p.Bits[0][k]}
		inv := !p.Gaps[0][k] && c.NumObserved() == 1
		for i := 1; i < p.NumTips && inv; i++ {
			if p.Gaps[i][k] || p.Bits[i][k] != c.Bits {
				inv = false
			}
		}
		if inv {
			p.Invariant[k] = true
			p.InvariantState[k] = c.StateIndex()
		}
	}
}

// Block returns the contiguous pattern range [start,end) owned by process
// pid out of n. An empty range is a configuration error.
func (p *Patterns) Block(n, pid int) (start, end int, err error) {
	if n < 1 || pid < 0 || pid >= n {
		return 0, 0, fmt.Errorf("%w: process %d of %d", ErrProcessIndex, pid, n)
	}
	np := p.NumPatterns()
	start = pid * np / n
	end = (pid + 1) * np / n
	if end <= start {
		return 0, 0, fmt.Errorf("%w: process %d of %d with %d patterns", ErrEmptyPatternBlock, pid, n, np)
	}
	return start, end, nil
}
