package mcmc

import (
	"fmt"
	"strings"

	"github.com/mewbak/revbayes/tree"
	"gonum.org/v1/gonum/stat/distuv"
)

// PriorKind selects the branch-length prior.
type PriorKind int

const (
	FlatPrior PriorKind = iota
	ExponentialPrior
)

func (k PriorKind) String() string {
	if k == ExponentialPrior {
		return "exponential"
	}
	return "flat"
}

//ParsePriorKind will read a prior name, accepting the numeric codes 0 (flat) and 1 (exponential)
func ParsePriorKind(s string) (PriorKind, error) {
	switch strings.ToLower(s) {
	case "0", "flat", "":
		return FlatPrior, nil
	case "1", "exp", "exponential":
		return ExponentialPrior, nil
	}
	return FlatPrior, fmt.Errorf("%w: %q", ErrPrior, s)
}

// BranchLengthPrior is an iid prior over every branch below the root.
type BranchLengthPrior struct {
	Kind PriorKind
	CUR  float64
	exp  distuv.Exponential
}

//InitializePrior will return a branch-length prior; mean is ignored by the flat prior
func InitializePrior(kind PriorKind, mean float64) (*BranchLengthPrior, error) {
	p := &BranchLengthPrior{Kind: kind}
	if kind == ExponentialPrior {
		if !(mean > 0) {
			return nil, fmt.Errorf("%w: exponential mean %g", ErrPrior, mean)
		}
		p.exp = distuv.Exponential{Rate: 1 / mean}
	}
	return p, nil
}

//Calc will return the log prior density of the branch lengths of tr
func (p *BranchLengthPrior) Calc(tr *tree.Tree) float64 {
	if p.Kind == FlatPrior {
		return 0
	}
	lp := 0.
	for i := 0; i < tr.NumberOfNodes(); i++ {
		if tr.IsRoot(i) {
			continue
		}
		lp += p.exp.LogProb(tr.BranchLength(i))
	}
	return lp
}
