package likelihood

import (
	"github.com/mewbak/revbayes/tree"
	"gonum.org/v1/gonum/mat"
)

// Topology is the read-only tree view consumed by the engine. Tips must be
// indexed 0..NumberOfTips-1.
type Topology interface {
	NumberOfNodes() int
	NumberOfTips() int
	Root() int
	Children(i int) []int
	Parent(i int) int
	IsTip(i int) bool
	IsRoot(i int) bool
	BranchLength(i int) float64
	Age(i int) float64
	TipName(i int) string

	Subscribe(fn func(tree.ChangeEvent)) tree.Subscription
	IsSubscribed(s tree.Subscription) bool
	Unsubscribe(s tree.Subscription)
}

// TransitionOperator fills a row-stochastic transition probability matrix
// for a branch running from start to end at the given rate multiplier.
type TransitionOperator interface {
	NumStates() int
	TransitionProbabilities(start, end, rate float64, out *mat.Dense)
}

// StationaryOperator is implemented by operators that can supply their
// equilibrium distribution as root frequencies.
type StationaryOperator interface {
	StationaryFrequencies() ([]float64, bool)
}

var _ Topology = (*tree.Tree)(nil)
