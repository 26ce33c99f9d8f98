package likelihood

// Tracker holds the per-node dirty, changed and active flags. A node's
// active flag selects which of the two PartialStore buffers is current; a
// touch flips it at most once per open transaction so that a rollback only
// has to flip it back.
type Tracker struct {
	parent  []int
	dirty   []bool
	changed []bool
	active  []uint8

	// dirty flags at the moment the transaction opened
	snapshot []bool
	open     bool
}

//NewTracker will return a tracker for a tree given by its parent array, with every node dirty
func NewTracker(parent []int) *Tracker {
	t := new(Tracker)
	t.Reset(parent)
	return t
}

// Reset sizes the tracker for a new parent array, marks every node dirty,
// selects buffer 0 everywhere and closes any open transaction.
func (t *Tracker) Reset(parent []int) {
	n := len(parent)
	t.parent = append(t.parent[:0], parent...)
	t.dirty = make([]bool, n)
	t.changed = make([]bool, n)
	t.active = make([]uint8, n)
	t.snapshot = make([]bool, n)
	for i := range t.dirty {
		t.dirty[i] = true
	}
	t.open = false
}

// Begin opens a transaction if none is open.
func (t *Tracker) Begin() {
	if t.open {
		return
	}
	copy(t.snapshot, t.dirty)
	t.open = true
}

// MarkDirtyUpward marks node and all of its ancestors dirty, flipping the
// active buffer of each newly dirtied node once per transaction.
func (t *Tracker) MarkDirtyUpward(node int) {
	t.Begin()
	t.markDirtyUpward(node)
}

func (t *Tracker) markDirtyUpward(node int) {
	if t.dirty[node] {
		return
	}
	if p := t.parent[node]; p >= 0 {
		t.markDirtyUpward(p)
	}
	t.dirty[node] = true
	t.flip(node)
}

func (t *Tracker) flip(node int) {
	if t.changed[node] {
		return
	}
	t.active[node] ^= 1
	t.changed[node] = true
}

// ForceAllDirty invalidates every node. Inside an open transaction the
// not-yet-flipped nodes are flipped so a rollback can recover them; outside
// one the current buffers are overwritten in place.
func (t *Tracker) ForceAllDirty() {
	for i := range t.dirty {
		t.dirty[i] = true
		if t.open {
			t.flip(i)
		}
	}
}

// Clean clears the dirty flag of a node after its partials were recomputed.
func (t *Tracker) Clean(node int) {
	t.dirty[node] = false
}

// Commit makes the flipped buffers permanent and closes the transaction.
// Dirty flags are left for the next evaluation to clear.
func (t *Tracker) Commit() error {
	if !t.open {
		return ErrNoOpenTransaction
	}
	for i := range t.changed {
		t.changed[i] = false
	}
	t.open = false
	return nil
}

// Rollback flips every changed node back and restores the dirty flags to
// their state when the transaction opened.
func (t *Tracker) Rollback() error {
	if !t.open {
		return ErrNoOpenTransaction
	}
	for i, c := range t.changed {
		if c {
			t.active[i] ^= 1
			t.changed[i] = false
		}
	}
	copy(t.dirty, t.snapshot)
	t.open = false
	return nil
}

func (t *Tracker) Dirty(node int) bool   { return t.dirty[node] }
func (t *Tracker) Changed(node int) bool { return t.changed[node] }
func (t *Tracker) Active(node int) int   { return int(t.active[node]) }
func (t *Tracker) Open() bool            { return t.open }
func (t *Tracker) Len() int              { return len(t.dirty) }

// AnyDirty reports whether at least one node must be recomputed.
func (t *Tracker) AnyDirty() bool {
	for _, d := range t.dirty {
		if d {
			return true
		}
	}
	return false
}

// TrackerState is a copy of every flag, used to compare tracker states.
type TrackerState struct {
	Dirty   []bool
	Changed []bool
	Active  []uint8
	Open    bool
}

// Snapshot copies the current flags.
func (t *Tracker) Snapshot() TrackerState {
	return TrackerState{
		Dirty:   append([]bool(nil), t.dirty...),
		Changed: append([]bool(nil), t.changed...),
		Active:  append([]uint8(nil), t.active...),
		Open:    t.open,
	}
}
