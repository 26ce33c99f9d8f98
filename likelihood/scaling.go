package likelihood

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultScalingDensity rescales every node.
const DefaultScalingDensity = 1

// Scaler keeps the per-node per-pattern log scaling factors
// scale[buffer][node][pattern]. A stored factor S means the true partial
// likelihood equals the stored value times exp(-S).
type Scaler struct {
	Enabled bool
	Density int

	factors  []float64
	nodes    int
	patterns int
}

//NewScaler will return an enabled scaler rescaling every density-th node
func NewScaler(enabled bool, density int) *Scaler {
	if density < 1 {
		density = DefaultScalingDensity
	}
	return &Scaler{Enabled: enabled, Density: density}
}

// Resize reallocates the ledger with every factor zero.
func (s *Scaler) Resize(nodes, patterns int) {
	s.nodes = nodes
	s.patterns = patterns
	s.factors = make([]float64, 2*nodes*patterns)
}

// Release drops the ledger while keeping the dimensions.
func (s *Scaler) Release() { s.factors = nil }

// Reallocate restores the ledger after Release.
func (s *Scaler) Reallocate() {
	if s.factors == nil {
		s.factors = make([]float64, 2*s.nodes*s.patterns)
	}
}

// Factors returns the per-pattern factors of a node in one buffer.
func (s *Scaler) Factors(buffer, node int) []float64 {
	off := (buffer*s.nodes + node) * s.patterns
	return s.factors[off : off+s.patterns : off+s.patterns]
}

// Rescales reports whether node gets its own local contribution.
func (s *Scaler) Rescales(node int) bool {
	return s.Enabled && node%s.Density == 0
}

// Scale accumulates the children's factors into dst and, when the node is
// rescaled, divides every pattern of the partial block by its maximum over
// categories and states, adding -log(max) to dst. A zero maximum is left
// undivided with no local contribution so the site evaluates to -Inf.
func (s *Scaler) Scale(node int, block []float64, numCategories, numStates int, children [][]float64, dst []float64) {
	for p := range dst {
		dst[p] = 0
	}
	if !s.Enabled {
		return
	}
	for _, c := range children {
		for p, v := range c {
			dst[p] += v
		}
	}
	if !s.Rescales(node) {
		return
	}
	catOff := s.patterns * numStates
	site := func(c, p int) []float64 {
		return block[c*catOff+p*numStates : c*catOff+(p+1)*numStates]
	}
	for p := 0; p < s.patterns; p++ {
		max := 0.
		for c := 0; c < numCategories; c++ {
			// NaN entries never win the comparison
			if m := floats.Max(site(c, p)); m > max {
				max = m
			}
		}
		if max == 0 {
			continue
		}
		for c := 0; c < numCategories; c++ {
			floats.Scale(1/max, site(c, p))
		}
		dst[p] -= math.Log(max)
	}
}
