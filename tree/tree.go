package tree

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ChangeEvent identifies the node whose subtending branch or subtree
// changed. All is set for structural edits after which every index must be
// considered invalid.
type ChangeEvent struct {
	Node int
	All  bool
}

// Subscription is the handle returned by Subscribe. It is the only way to
// remove a listener.
type Subscription struct {
	id uuid.UUID
}

// ID returns the unique identifier of the subscription.
func (s Subscription) ID() uuid.UUID {
	return s.id
}

// Valid reports whether the handle was issued by a Tree.
func (s Subscription) Valid() bool {
	return s.id != uuid.Nil
}

// Tree is an indexed view over a rooted node structure. Tips are indexed
// first (0..NumberOfTips-1) in preorder, followed by internal nodes, with
// the root last.
type Tree struct {
	root   *Node
	nodes  []*Node
	parent []int
	ntips  int
	ages   []float64

	listeners map[uuid.UUID]func(ChangeEvent)
	order     []uuid.UUID
}

// NewTree indexes the nodes reachable from root.
func NewTree(root *Node) (*Tree, error) {
	if root == nil {
		return nil, ErrEmptyTree
	}
	t := &Tree{
		root:      root,
		listeners: make(map[uuid.UUID]func(ChangeEvent)),
	}
	if err := t.index(); err != nil {
		return nil, err
	}
	return t, nil
}

// ParseTree reads a newick string and indexes it.
func ParseTree(nwk string) (*Tree, error) {
	root, err := ReadTree(nwk)
	if err != nil {
		return nil, err
	}
	return NewTree(root)
}

func (t *Tree) index() error {
	pre := t.root.PreorderArray()
	var tips, internal []*Node
	seen := make(map[string]bool)
	for _, n := range pre {
		if n.LEN < 0 {
			return fmt.Errorf("%w: node %q has length %g", ErrNegativeBrlen, n.NAME, n.LEN)
		}
		if n.IsTip() && n != t.root {
			if seen[n.NAME] {
				return fmt.Errorf("%w: %q", ErrDuplicateTip, n.NAME)
			}
			seen[n.NAME] = true
			tips = append(tips, n)
		} else if n != t.root {
			internal = append(internal, n)
		}
	}
	t.nodes = make([]*Node, 0, len(pre))
	t.nodes = append(t.nodes, tips...)
	t.nodes = append(t.nodes, internal...)
	t.nodes = append(t.nodes, t.root)
	t.ntips = len(tips)
	t.parent = make([]int, len(t.nodes))
	for i, n := range t.nodes {
		n.ID = i
	}
	for i, n := range t.nodes {
		if n.PAR == nil {
			t.parent[i] = -1
		} else {
			t.parent[i] = n.PAR.ID
		}
	}
	t.computeAges()
	return nil
}

// Rebuild re-indexes the tree after a structural edit and notifies every
// listener that all nodes changed.
func (t *Tree) Rebuild() error {
	if err := t.index(); err != nil {
		return err
	}
	t.fire(ChangeEvent{Node: t.Root(), All: true})
	return nil
}

//NumberOfNodes will return the number of indexed nodes
func (t *Tree) NumberOfNodes() int { return len(t.nodes) }

//NumberOfTips will return the number of tips
func (t *Tree) NumberOfTips() int { return t.ntips }

//Root will return the index of the root
func (t *Tree) Root() int { return len(t.nodes) - 1 }

//RootNode will return the root node
func (t *Tree) RootNode() *Node { return t.root }

//Node will return the node with index i
func (t *Tree) Node(i int) *Node { return t.nodes[i] }

//Nodes will return all the nodes ordered by index
func (t *Tree) Nodes() []*Node { return t.nodes }

// Children returns the child indices of node i in their stored order.
func (t *Tree) Children(i int) []int {
	n := t.nodes[i]
	ret := make([]int, len(n.CHLD))
	for k, c := range n.CHLD {
		ret[k] = c.ID
	}
	return ret
}

// Parent returns the parent index of node i or -1 for the root.
func (t *Tree) Parent(i int) int { return t.parent[i] }

func (t *Tree) IsTip(i int) bool  { return t.nodes[i].IsTip() && i != t.Root() }
func (t *Tree) IsRoot(i int) bool { return i == t.Root() }

// BranchLength returns the length of the branch subtending node i.
func (t *Tree) BranchLength(i int) float64 { return t.nodes[i].LEN }

// TipName returns the name of node i.
func (t *Tree) TipName(i int) string { return t.nodes[i].NAME }

// TipIndex looks a tip up by name.
func (t *Tree) TipIndex(name string) (int, bool) {
	for i := 0; i < t.ntips; i++ {
		if t.nodes[i].NAME == name {
			return i, true
		}
	}
	return -1, false
}

// Age returns the height of node i above its deepest descendant tip, so
// that Age(i)+BranchLength(i) is the age of the parent end of its branch
// for ultrametric trees.
func (t *Tree) Age(i int) float64 {
	return t.ages[i]
}

func (t *Tree) computeAges() {
	t.ages = make([]float64, len(t.nodes))
	for _, n := range t.root.PostorderArray() {
		age := 0.
		for _, c := range n.CHLD {
			age = math.Max(age, t.ages[c.ID]+c.LEN)
		}
		t.ages[n.ID] = age
	}
}

// TreeLength returns the sum of all branch lengths below the root.
func (t *Tree) TreeLength() float64 {
	l := 0.
	for i, n := range t.nodes {
		if i != t.Root() {
			l += n.LEN
		}
	}
	return l
}

// SetBranchLength changes the length of the branch subtending node i and
// notifies listeners.
func (t *Tree) SetBranchLength(i int, length float64) error {
	if i < 0 || i >= len(t.nodes) {
		return fmt.Errorf("%w: %d", ErrNodeIndex, i)
	}
	if length < 0 {
		return fmt.Errorf("%w: %g", ErrNegativeBrlen, length)
	}
	t.nodes[i].LEN = length
	t.computeAges()
	t.fire(ChangeEvent{Node: i})
	return nil
}

// Touch notifies listeners that node i changed without modifying it.
func (t *Tree) Touch(i int) {
	t.fire(ChangeEvent{Node: i})
}

// Newick returns the newick representation with branch lengths.
func (t *Tree) Newick() string {
	return t.root.Newick(true) + ";"
}

// Subscribe registers fn for change notifications.
func (t *Tree) Subscribe(fn func(ChangeEvent)) Subscription {
	id := uuid.New()
	t.listeners[id] = fn
	t.order = append(t.order, id)
	return Subscription{id: id}
}

// IsSubscribed reports whether s is still registered with this tree.
func (t *Tree) IsSubscribed(s Subscription) bool {
	_, ok := t.listeners[s.id]
	return ok
}

// Unsubscribe removes the listener behind s. Unknown handles are ignored.
func (t *Tree) Unsubscribe(s Subscription) {
	if _, ok := t.listeners[s.id]; !ok {
		return
	}
	delete(t.listeners, s.id)
	for i, id := range t.order {
		if id == s.id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// NumberOfListeners returns the number of active subscriptions.
func (t *Tree) NumberOfListeners() int { return len(t.listeners) }

func (t *Tree) fire(e ChangeEvent) {
	ids := append([]uuid.UUID(nil), t.order...)
	for _, id := range ids {
		if fn, ok := t.listeners[id]; ok {
			fn(e)
		}
	}
}

//InternalNodes will return the indices of all non-tip nodes, root included
func (t *Tree) InternalNodes() []int {
	ret := make([]int, 0, len(t.nodes)-t.ntips)
	for i := t.ntips; i < len(t.nodes); i++ {
		ret = append(ret, i)
	}
	return ret
}
