package likelihood

import (
	"math/rand/v2"
	"sort"
)

// Resample replaces the pattern counts with a nonparametric bootstrap
// replicate: one draw with replacement per site, each located by a binary
// search of the cumulative counts. Patterns never drawn keep a zero count.
func (p *Patterns) Resample(rng *rand.Rand) {
	total := 0
	cum := make([]int, len(p.PatternCounts))
	for i, c := range p.PatternCounts {
		total += c
		cum[i] = total
	}
	counts := make([]int, len(p.PatternCounts))
	for s := 0; s < total; s++ {
		u := rng.IntN(total)
		k := sort.SearchInts(cum, u+1)
		counts[k]++
	}
	p.PatternCounts = counts
}

// Bootstrap recompresses the data and resamples the pattern counts. The
// replicate lasts until the next structural rebuild.
func (e *Engine) Bootstrap(rng *rand.Rand) error {
	if err := e.model.validate(e.topo.NumberOfNodes(), e.numStates); err != nil {
		return err
	}
	p, err := e.compress()
	if err != nil {
		return err
	}
	p.Resample(rng)
	return e.usePatterns(p)
}
