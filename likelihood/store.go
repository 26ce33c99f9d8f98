package likelihood

// PartialStore is the flat double-buffered partial likelihood array
// L[buffer][node][category][pattern][state].
type PartialStore struct {
	data []float64

	numNodes, numCategories, numPatterns, numStates int

	activeOffset   int
	nodeOffset     int
	categoryOffset int
	stateOffset    int
}

//NewPartialStore will allocate a store for the given dimensions
func NewPartialStore(numNodes, numCategories, numPatterns, numStates int) *PartialStore {
	ps := new(PartialStore)
	ps.Resize(numNodes, numCategories, numPatterns, numStates)
	return ps
}

// Resize reallocates the store and recomputes the strides. All content is
// lost; the caller must mark every node dirty.
func (ps *PartialStore) Resize(numNodes, numCategories, numPatterns, numStates int) {
	ps.numNodes = numNodes
	ps.numCategories = numCategories
	ps.numPatterns = numPatterns
	ps.numStates = numStates
	ps.stateOffset = numStates
	ps.categoryOffset = numPatterns * numStates
	ps.nodeOffset = numCategories * ps.categoryOffset
	ps.activeOffset = numNodes * ps.nodeOffset
	ps.data = make([]float64, 2*ps.activeOffset)
}

// Release drops the backing array while keeping the dimensions.
func (ps *PartialStore) Release() {
	ps.data = nil
}

// Allocated reports whether the backing array is present.
func (ps *PartialStore) Allocated() bool {
	return ps.data != nil
}

// Reallocate restores the backing array after Release.
func (ps *PartialStore) Reallocate() {
	if ps.data == nil {
		ps.data = make([]float64, 2*ps.activeOffset)
	}
}

// Dims returns the node, category, pattern and state dimensions.
func (ps *PartialStore) Dims() (nodes, categories, patterns, states int) {
	return ps.numNodes, ps.numCategories, ps.numPatterns, ps.numStates
}

// Len returns the number of stored values across both buffers.
func (ps *PartialStore) Len() int { return len(ps.data) }

// Node returns the contiguous category-major block of a node.
func (ps *PartialStore) Node(buffer, node int) []float64 {
	off := buffer*ps.activeOffset + node*ps.nodeOffset
	return ps.data[off : off+ps.nodeOffset : off+ps.nodeOffset]
}

// Category returns the pattern-major block of one rate category of a node.
func (ps *PartialStore) Category(buffer, node, category int) []float64 {
	off := buffer*ps.activeOffset + node*ps.nodeOffset + category*ps.categoryOffset
	return ps.data[off : off+ps.categoryOffset : off+ps.categoryOffset]
}

// Site returns the state vector of one pattern.
func (ps *PartialStore) Site(buffer, node, category, pattern int) []float64 {
	off := buffer*ps.activeOffset + node*ps.nodeOffset + category*ps.categoryOffset + pattern*ps.stateOffset
	return ps.data[off : off+ps.stateOffset : off+ps.stateOffset]
}
