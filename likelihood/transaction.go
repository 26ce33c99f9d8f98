package likelihood

import "fmt"

// AffectKind classifies what a touch invalidates.
type AffectKind int

const (
	// AffectAll invalidates every node; used for tree-wide parameters.
	AffectAll AffectKind = iota
	// AffectBranch invalidates one node and its ancestors.
	AffectBranch
	// AffectStructure schedules a pattern rebuild and resize.
	AffectStructure
	// AffectClockRates invalidates the branches whose rates changed.
	AffectClockRates
	// AffectBranchOperators invalidates the branches whose operators changed.
	AffectBranchOperators
	// AffectRoot invalidates the root only (root frequencies, p-inv).
	AffectRoot
)

func (k AffectKind) String() string {
	switch k {
	case AffectAll:
		return "all"
	case AffectBranch:
		return "branch"
	case AffectStructure:
		return "structure"
	case AffectClockRates:
		return "clock-rates"
	case AffectBranchOperators:
		return "branch-operators"
	case AffectRoot:
		return "root"
	}
	return fmt.Sprintf("AffectKind(%d)", int(k))
}

// Affecter names the parameter or node behind a touch, keep or restore.
type Affecter struct {
	Kind AffectKind
	Node int
}

func Everything() Affecter      { return Affecter{Kind: AffectAll} }
func Branch(node int) Affecter  { return Affecter{Kind: AffectBranch, Node: node} }
func Restructured() Affecter    { return Affecter{Kind: AffectStructure} }
func ClockRates() Affecter      { return Affecter{Kind: AffectClockRates} }
func BranchOperators() Affecter { return Affecter{Kind: AffectBranchOperators} }
func RootParameters() Affecter  { return Affecter{Kind: AffectRoot} }

// Touch records a pending change. The first touch of a transaction saves
// the current log-likelihood so that Restore can revert it.
func (e *Engine) Touch(a Affecter) {
	if !e.touched {
		e.storedLnProb = e.lnProb
		e.touched = true
	}
	if a.Kind == AffectStructure {
		e.structureChanged = true
	}
	e.tracker.Begin()
	if e.structureChanged {
		// every node is reset at the next evaluation
		return
	}
	switch a.Kind {
	case AffectBranch:
		e.tracker.MarkDirtyUpward(a.Node)
	case AffectRoot:
		e.tracker.MarkDirtyUpward(e.topo.Root())
	case AffectClockRates:
		if e.model.BranchRates == nil {
			e.tracker.ForceAllDirty()
			return
		}
		e.markIndices(e.model.BranchRates.TouchedIndices())
		e.model.BranchRates.ClearTouched()
	case AffectBranchOperators:
		if e.model.BranchOperators == nil {
			e.tracker.ForceAllDirty()
			return
		}
		e.markIndices(e.model.BranchOperators.TouchedIndices())
		e.model.BranchOperators.ClearTouched()
	default:
		e.tracker.ForceAllDirty()
	}
}

func (e *Engine) markIndices(idx []int) {
	if len(idx) == 0 {
		e.tracker.ForceAllDirty()
		return
	}
	for _, i := range idx {
		e.tracker.MarkDirtyUpward(i)
	}
}

// InTransaction reports whether a touch is waiting for Keep or Restore.
func (e *Engine) InTransaction() bool {
	return e.touched || e.tracker.Open() || e.rebuiltInTxn
}

// Keep commits the open transaction.
func (e *Engine) Keep(a Affecter) error {
	if !e.InTransaction() {
		return fmt.Errorf("keep %s: %w", a.Kind, ErrNoOpenTransaction)
	}
	e.storedLnProb = e.lnProb
	e.touched = false
	e.rebuiltInTxn = false
	if e.tracker.Open() {
		return e.tracker.Commit()
	}
	return nil
}

// Restore rolls the open transaction back: the active buffers and dirty
// flags return to their state before the first touch and the stored
// log-likelihood becomes current again. A resize during the transaction
// leaves nothing to roll back, so every node is invalidated instead.
func (e *Engine) Restore(a Affecter) error {
	if !e.InTransaction() {
		return fmt.Errorf("restore %s: %w", a.Kind, ErrNoOpenTransaction)
	}
	e.lnProb = e.storedLnProb
	e.touched = false
	if e.tracker.Open() {
		if err := e.tracker.Rollback(); err != nil {
			return err
		}
	}
	if e.rebuiltInTxn || !e.store.Allocated() {
		e.tracker.ForceAllDirty()
	}
	e.rebuiltInTxn = false
	return nil
}

// SetPInv changes the proportion of invariant sites.
func (e *Engine) SetPInv(p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("%w: %g", ErrPInv, p)
	}
	e.model.PInv = p
	e.Touch(RootParameters())
	return nil
}

func (e *Engine) PInv() float64 { return e.model.PInv }

// SetRootFrequencies overrides the root frequencies; nil falls back to the
// operator's stationary frequencies.
func (e *Engine) SetRootFrequencies(f []float64) error {
	if f != nil && len(f) != e.numStates {
		return fmt.Errorf("%w: %d frequencies for %d states", ErrRootFrequencies, len(f), e.numStates)
	}
	e.model.RootFrequencies = append([]float64(nil), f...)
	if f == nil {
		e.model.RootFrequencies = nil
	}
	e.Touch(RootParameters())
	return nil
}

// SetClockRate changes the homogeneous clock rate.
func (e *Engine) SetClockRate(r float64) {
	e.model.ClockRate = r
	e.Touch(Everything())
}

func (e *Engine) ClockRate() float64 { return e.clockRateFor(e.topo.Root()) }

// SetBranchRate changes the clock rate of the branch above node.
func (e *Engine) SetBranchRate(node int, r float64) error {
	if e.model.BranchRates == nil {
		return fmt.Errorf("%w: no per-branch rates", ErrBranchVector)
	}
	e.model.BranchRates.Set(node, r)
	e.Touch(ClockRates())
	return nil
}

// BranchRate returns the clock rate of the branch above node.
func (e *Engine) BranchRate(node int) float64 { return e.clockRateFor(node) }

// SetBranchOperator replaces the operator of the branch above node.
func (e *Engine) SetBranchOperator(node int, op TransitionOperator) error {
	if e.model.BranchOperators == nil {
		return fmt.Errorf("%w: no per-branch operators", ErrBranchVector)
	}
	if op.NumStates() != e.numStates {
		return fmt.Errorf("%w: %d", ErrNumStates, op.NumStates())
	}
	e.model.BranchOperators.Set(node, op)
	e.Touch(BranchOperators())
	return nil
}

// SetOperator replaces the homogeneous operator.
func (e *Engine) SetOperator(op TransitionOperator) error {
	if op.NumStates() != e.numStates {
		return fmt.Errorf("%w: %d", ErrNumStates, op.NumStates())
	}
	e.model.Operator = op
	e.Touch(Everything())
	return nil
}

// SetSiteRates replaces the rate categories. A change in the number of
// categories resizes the store.
func (e *Engine) SetSiteRates(rates, weights []float64) error {
	if rates == nil {
		rates = []float64{1}
	}
	if err := validateSiteRates(rates, weights); err != nil {
		return err
	}
	resize := len(rates) != len(e.model.SiteRates)
	e.model.SiteRates = append([]float64(nil), rates...)
	e.model.SiteRateWeights = nil
	if weights != nil {
		e.model.SiteRateWeights = append([]float64(nil), weights...)
	}
	if resize {
		e.Touch(Restructured())
		return nil
	}
	e.Touch(Everything())
	return nil
}
