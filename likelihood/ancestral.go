package likelihood

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DrawAncestralStates draws one joint sample of the state of every node at
// every included site, conditioned on the data. The result is indexed
// [node][site] where site is the ordinal of the included site.
func (e *Engine) DrawAncestralStates(rng *rand.Rand) ([][]int, error) {
	if e.numProcesses > 1 {
		return nil, ErrPartitioned
	}
	mode := e.opts.mcmcMode
	e.opts.mcmcMode = true
	defer e.SetMCMCMode(mode)
	if _, err := e.ComputeLnProbability(); err != nil {
		return nil, err
	}
	freqs, err := e.rootFrequencies()
	if err != nil {
		return nil, err
	}

	n := e.topo.NumberOfNodes()
	root := e.topo.Root()
	ncat := len(e.model.SiteRates)
	ns := e.numStates
	probs := e.transitionMatrices()

	order := e.preorder()
	nsites := e.patterns.NumSites()
	states := make([][]int, n)
	for i := range states {
		states[i] = make([]int, nsites)
	}
	w := e.categoryWeights()
	mass := make([]float64, ncat)
	weights := make([]float64, ns)
	cond := make([]float64, ns)
	rbuf := e.tracker.Active(root)

	for s := 0; s < nsites; s++ {
		p := e.patterns.SitePattern[s]
		for c := range mass {
			mass[c] = w[c] * floats.Dot(freqs, e.store.Site(rbuf, root, c, p))
		}
		if e.model.PInv > 0 && e.patterns.Invariant[p] {
			scale := 0.
			if e.scaler.Enabled {
				scale = e.scaler.Factors(rbuf, root)[p]
			}
			lInv := math.Log(e.model.PInv * freqs[e.patterns.InvariantState[p]])
			lVar := math.Log((1-e.model.PInv)*floats.Sum(mass)) - scale
			if rng.Float64() < 1/(1+math.Exp(lVar-lInv)) {
				for node := range states {
					states[node][s] = e.patterns.InvariantState[p]
				}
				continue
			}
		}
		c := sampleIndex(rng, mass)
		floats.MulTo(weights, freqs, e.store.Site(rbuf, root, c, p))
		states[root][s] = sampleIndex(rng, weights)

		for _, node := range order[1:] {
			a := states[e.topo.Parent(node)][s]
			e.bottomLikelihood(node, c, p, cond)
			floats.MulTo(weights, probs[node][c].RawRowView(a), cond)
			states[node][s] = sampleIndex(rng, weights)
		}
	}
	return states, nil
}

// bottomLikelihood writes the conditional likelihood of the data below
// node at the node itself, as opposed to the stored top-of-branch value.
func (e *Engine) bottomLikelihood(node, category, pattern int, dst []float64) {
	if e.topo.IsTip(node) {
		if e.patterns.Gaps[node][e.blockStart+pattern] {
			for i := range dst {
				dst[i] = 1
			}
			return
		}
		bits := e.patterns.Bits[node][e.blockStart+pattern]
		for i := range dst {
			dst[i] = 0
			if bits&(1<<uint(i)) != 0 {
				dst[i] = 1
			}
		}
		return
	}
	for i := range dst {
		dst[i] = 1
	}
	for _, ch := range e.topo.Children(node) {
		floats.Mul(dst, e.store.Site(e.tracker.Active(ch), ch, category, pattern))
	}
}

// transitionMatrices returns a copy of the transition matrices of every
// branch, indexed [node][category]. The root entry is nil.
func (e *Engine) transitionMatrices() [][]*mat.Dense {
	n := e.topo.NumberOfNodes()
	probs := make([][]*mat.Dense, n)
	for node := 0; node < n; node++ {
		if e.topo.IsRoot(node) {
			continue
		}
		probs[node] = make([]*mat.Dense, len(e.pmat))
		e.updateTransitionProbabilities(node)
		for c := range probs[node] {
			probs[node][c] = mat.DenseCopyOf(e.pmat[c])
		}
	}
	return probs
}

func (e *Engine) preorder() []int {
	var ret []int
	stack := []int{e.topo.Root()}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ret = append(ret, cur)
		ch := e.topo.Children(cur)
		for i := len(ch) - 1; i >= 0; i-- {
			stack = append(stack, ch[i])
		}
	}
	return ret
}

// sampleIndex draws i with probability w[i]/sum(w).
func sampleIndex(rng *rand.Rand, w []float64) int {
	u := rng.Float64() * floats.Sum(w)
	for i, v := range w {
		u -= v
		if u < 0 {
			return i
		}
	}
	for i := len(w) - 1; i >= 0; i-- {
		if w[i] > 0 {
			return i
		}
	}
	return len(w) - 1
}
