package likelihood

import "errors"

var (
	ErrRootArity         = errors.New("the root must have two or three children")
	ErrNoRootFrequencies = errors.New("no root frequencies and the transition operator has no stationary distribution")
	ErrRootFrequencies   = errors.New("root frequencies do not match the number of states")
	ErrMissingTaxon      = errors.New("tip has no row in the character matrix")
	ErrNumStates         = errors.New("number of states of the transition operator does not match the character alphabet")
	ErrEmptyPatternBlock = errors.New("pattern block of this process is empty")
	ErrProcessIndex      = errors.New("active process index out of range")
	ErrNoOpenTransaction = errors.New("keep or restore called without an open touch")
	ErrSiteRates         = errors.New("site rates and weights must be positive and of equal length")
	ErrPInv              = errors.New("proportion of invariant sites must be in [0,1]")
	ErrBranchVector      = errors.New("per-branch vector length does not match the number of nodes")
	ErrNoPatterns        = errors.New("no site patterns to evaluate")
	ErrPartitioned       = errors.New("operation not available on a partitioned engine")
)
