package likelihood

import (
	"fmt"
	"sort"
)

// Model bundles the parameters the engine reads during an evaluation.
type Model struct {
	// Operator is used for every branch unless BranchOperators is set.
	Operator        TransitionOperator
	BranchOperators *OperatorVector

	// ClockRate multiplies every branch unless BranchRates is set. Zero means one.
	ClockRate   float64
	BranchRates *RateVector

	// SiteRates are the rate multipliers of the mixture categories; nil means
	// a single category with rate one. SiteRateWeights defaults to uniform.
	SiteRates       []float64
	SiteRateWeights []float64

	PInv float64

	// RootFrequencies overrides the stationary frequencies of the operator.
	RootFrequencies []float64
}

// RateVector is a per-branch rate indexed by node that remembers which
// entries changed since they were last consumed by a touch.
type RateVector struct {
	values  []float64
	touched map[int]bool
}

//NewRateVector will return a rate vector holding a copy of values
func NewRateVector(values []float64) *RateVector {
	return &RateVector{
		values:  append([]float64(nil), values...),
		touched: make(map[int]bool),
	}
}

func (r *RateVector) Len() int          { return len(r.values) }
func (r *RateVector) At(i int) float64  { return r.values[i] }
func (r *RateVector) Values() []float64 { return append([]float64(nil), r.values...) }

// Set changes one entry and records it as touched.
func (r *RateVector) Set(i int, v float64) {
	r.values[i] = v
	r.touched[i] = true
}

// SetAll replaces the vector, resizing it to len(values). No index is
// recorded, so a touch invalidates every branch.
func (r *RateVector) SetAll(values []float64) {
	r.values = append(r.values[:0], values...)
	r.ClearTouched()
}

// TouchedIndices returns the changed entries in ascending order.
func (r *RateVector) TouchedIndices() []int {
	return sortedKeys(r.touched)
}

func (r *RateVector) ClearTouched() {
	for k := range r.touched {
		delete(r.touched, k)
	}
}

// OperatorVector assigns a transition operator to every branch.
type OperatorVector struct {
	ops     []TransitionOperator
	touched map[int]bool
}

//NewOperatorVector will return a vector holding a copy of ops
func NewOperatorVector(ops []TransitionOperator) *OperatorVector {
	return &OperatorVector{
		ops:     append([]TransitionOperator(nil), ops...),
		touched: make(map[int]bool),
	}
}

func (o *OperatorVector) Len() int                    { return len(o.ops) }
func (o *OperatorVector) At(i int) TransitionOperator { return o.ops[i] }

// Set replaces the operator of one branch and records it as touched.
func (o *OperatorVector) Set(i int, op TransitionOperator) {
	o.ops[i] = op
	o.touched[i] = true
}

// SetAll replaces the vector, resizing it to len(ops). No index is
// recorded, so a touch invalidates every branch.
func (o *OperatorVector) SetAll(ops []TransitionOperator) {
	o.ops = append(o.ops[:0], ops...)
	o.ClearTouched()
}

// TouchedIndices returns the changed entries in ascending order.
func (o *OperatorVector) TouchedIndices() []int {
	return sortedKeys(o.touched)
}

func (o *OperatorVector) ClearTouched() {
	for k := range o.touched {
		delete(o.touched, k)
	}
}

func sortedKeys(m map[int]bool) []int {
	ret := make([]int, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Ints(ret)
	return ret
}

func (m *Model) validate(numNodes, numStates int) error {
	if m.Operator == nil && m.BranchOperators == nil {
		return fmt.Errorf("%w: no transition operator", ErrNumStates)
	}
	if m.Operator != nil && m.Operator.NumStates() != numStates {
		return fmt.Errorf("%w: operator has %d states, alphabet has %d", ErrNumStates, m.Operator.NumStates(), numStates)
	}
	if m.BranchOperators != nil {
		if m.BranchOperators.Len() != numNodes {
			return fmt.Errorf("%w: %d operators for %d nodes", ErrBranchVector, m.BranchOperators.Len(), numNodes)
		}
		for i := 0; i < m.BranchOperators.Len(); i++ {
			op := m.BranchOperators.At(i)
			if op == nil && m.Operator == nil {
				return fmt.Errorf("%w: branch %d has no operator", ErrNumStates, i)
			}
			if op != nil && op.NumStates() != numStates {
				return fmt.Errorf("%w: operator of branch %d has %d states", ErrNumStates, i, op.NumStates())
			}
		}
	}
	if m.BranchRates != nil && m.BranchRates.Len() != numNodes {
		return fmt.Errorf("%w: %d rates for %d nodes", ErrBranchVector, m.BranchRates.Len(), numNodes)
	}
	if err := validateSiteRates(m.SiteRates, m.SiteRateWeights); err != nil {
		return err
	}
	if m.PInv < 0 || m.PInv > 1 {
		return fmt.Errorf("%w: %g", ErrPInv, m.PInv)
	}
	if m.RootFrequencies != nil && len(m.RootFrequencies) != numStates {
		return fmt.Errorf("%w: %d frequencies for %d states", ErrRootFrequencies, len(m.RootFrequencies), numStates)
	}
	return nil
}

func validateSiteRates(rates, weights []float64) error {
	if rates == nil {
		if weights != nil && len(weights) != 1 {
			return fmt.Errorf("%w: %d weights for one category", ErrSiteRates, len(weights))
		}
		return nil
	}
	if len(rates) == 0 {
		return fmt.Errorf("%w: no categories", ErrSiteRates)
	}
	for _, r := range rates {
		if r < 0 {
			return fmt.Errorf("%w: rate %g", ErrSiteRates, r)
		}
	}
	if weights != nil {
		if len(weights) != len(rates) {
			return fmt.Errorf("%w: %d weights for %d rates", ErrSiteRates, len(weights), len(rates))
		}
		for _, w := range weights {
			if !(w > 0) {
				return fmt.Errorf("%w: weight %g", ErrSiteRates, w)
			}
		}
	}
	return nil
}
