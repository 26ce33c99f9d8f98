package likelihood

import (
	"math/rand/v2"

	"github.com/mewbak/revbayes/character"
)

// Simulate draws a character matrix of nSites columns for the tips of the
// tree under the current model. A site drawn as invariant keeps the root
// state on every branch.
func (e *Engine) Simulate(rng *rand.Rand, nSites int) (*character.Matrix, error) {
	if err := e.prepare(); err != nil {
		return nil, err
	}
	freqs, err := e.rootFrequencies()
	if err != nil {
		return nil, err
	}
	probs := e.transitionMatrices()
	order := e.preorder()
	w := e.categoryWeights()
	root := e.topo.Root()

	states := make([][]int, e.topo.NumberOfNodes())
	for i := range states {
		states[i] = make([]int, nSites)
	}
	for s := 0; s < nSites; s++ {
		states[root][s] = sampleIndex(rng, freqs)
		invariant := e.model.PInv > 0 && rng.Float64() < e.model.PInv
		c := sampleIndex(rng, w)
		for _, node := range order[1:] {
			a := states[e.topo.Parent(node)][s]
			if invariant {
				states[node][s] = a
				continue
			}
			states[node][s] = sampleIndex(rng, probs[node][c].RawRowView(a))
		}
	}

	m := character.NewMatrix(e.data.Alphabet)
	for tip := 0; tip < e.topo.NumberOfTips(); tip++ {
		chars := make([]character.Character, nSites)
		for s, st := range states[tip] {
			chars[s] = character.FromIndex(st)
		}
		if err := m.AddTaxon(e.topo.TipName(tip), chars); err != nil {
			return nil, err
		}
	}
	return m, nil
}
