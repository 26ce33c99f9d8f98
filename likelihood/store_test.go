package likelihood

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartialStoreStrides(t *testing.T) {
	ps := NewPartialStore(3, 2, 5, 4)
	assert.Equal(t, 2*3*2*5*4, ps.Len())
	n, c, p, s := ps.Dims()
	assert.Equal(t, []int{3, 2, 5, 4}, []int{n, c, p, s})

	site := ps.Site(1, 2, 1, 3)
	require.Len(t, site, 4)
	site[2] = 7
	// the same cell seen through the coarser views
	assert.Equal(t, 7., ps.Category(1, 2, 1)[3*4+2])
	assert.Equal(t, 7., ps.Node(1, 2)[1*5*4+3*4+2])
	assert.Equal(t, 0., ps.Node(0, 2)[1*5*4+3*4+2])

	// views cannot grow into the neighbouring block
	assert.Equal(t, 4, cap(site))
	assert.Equal(t, 2*5*4, cap(ps.Node(0, 0)))

	ps.Release()
	assert.False(t, ps.Allocated())
	ps.Reallocate()
	assert.True(t, ps.Allocated())
	assert.Equal(t, 0., ps.Site(1, 2, 1, 3)[2])

	ps.Resize(2, 1, 1, 2)
	assert.Equal(t, 8, ps.Len())
}

func TestTracker(t *testing.T) {
	//      6
	//    4   5
	//   0 1 2 3
	parent := []int{4, 4, 5, 5, 6, 6, -1}
	tr := NewTracker(parent)
	for i := range parent {
		assert.True(t, tr.Dirty(i))
		tr.Clean(i)
	}
	assert.False(t, tr.AnyDirty())
	assert.ErrorIs(t, tr.Commit(), ErrNoOpenTransaction)
	assert.ErrorIs(t, tr.Rollback(), ErrNoOpenTransaction)
	before := tr.Snapshot()

	tr.MarkDirtyUpward(1)
	assert.True(t, tr.Open())
	for _, i := range []int{1, 4, 6} {
		assert.True(t, tr.Dirty(i))
		assert.True(t, tr.Changed(i))
		assert.Equal(t, 1, tr.Active(i))
	}
	for _, i := range []int{0, 2, 3, 5} {
		assert.False(t, tr.Dirty(i))
		assert.Equal(t, 0, tr.Active(i))
	}

	// a second touch of the same path must not flip again
	tr.Clean(1)
	tr.Clean(4)
	tr.MarkDirtyUpward(1)
	assert.Equal(t, 1, tr.Active(1))
	assert.Equal(t, 1, tr.Active(4))

	tr.MarkDirtyUpward(2)
	assert.Equal(t, 1, tr.Active(2))
	assert.Equal(t, 1, tr.Active(5))
	assert.Equal(t, 1, tr.Active(6))

	require.NoError(t, tr.Rollback())
	assert.Equal(t, before, tr.Snapshot())

	tr.MarkDirtyUpward(3)
	for i := range parent {
		tr.Clean(i)
	}
	require.NoError(t, tr.Commit())
	after := tr.Snapshot()
	assert.False(t, after.Open)
	assert.Equal(t, []uint8{0, 0, 0, 1, 0, 1, 1}, after.Active)
	for i := range parent {
		assert.False(t, after.Changed[i])
	}
}

func TestTrackerCommitKeepsPendingWork(t *testing.T) {
	parent := []int{2, 2, -1}
	tr := NewTracker(parent)
	for i := range parent {
		tr.Clean(i)
	}

	// keep before any evaluation: the touched path still needs computing
	tr.MarkDirtyUpward(0)
	require.NoError(t, tr.Commit())
	assert.True(t, tr.Dirty(0))
	assert.False(t, tr.Dirty(1))
	assert.True(t, tr.Dirty(2))
	assert.Equal(t, []uint8{1, 0, 1}, tr.Snapshot().Active)

	// rollback returns to the flags the transaction opened with, not to clean
	tr.MarkDirtyUpward(1)
	assert.Equal(t, []uint8{1, 1, 1}, tr.Snapshot().Active)
	require.NoError(t, tr.Rollback())
	assert.Equal(t, []bool{true, false, true}, tr.Snapshot().Dirty)
	assert.Equal(t, []uint8{1, 0, 1}, tr.Snapshot().Active)
}

func TestTrackerForceAllDirty(t *testing.T) {
	parent := []int{2, 2, -1}
	tr := NewTracker(parent)
	for i := range parent {
		tr.Clean(i)
	}
	// outside a transaction nothing flips
	tr.ForceAllDirty()
	assert.Equal(t, []uint8{0, 0, 0}, tr.Snapshot().Active)
	for i := range parent {
		tr.Clean(i)
	}

	tr.MarkDirtyUpward(0)
	tr.ForceAllDirty()
	assert.Equal(t, []uint8{1, 1, 1}, tr.Snapshot().Active)
	require.NoError(t, tr.Rollback())
	assert.Equal(t, []uint8{0, 0, 0}, tr.Snapshot().Active)
	assert.False(t, tr.AnyDirty())
}

func TestScaler(t *testing.T) {
	s := NewScaler(true, 2)
	s.Resize(3, 2)
	assert.True(t, s.Rescales(0))
	assert.False(t, s.Rescales(1))

	// two categories, two patterns, two states
	block := []float64{
		0.1, 0.2, 0, 0, // category 0
		0.4, 0.05, 0, 0, // category 1
	}
	child := []float64{1.5, 2}
	dst := s.Factors(1, 0)
	s.Scale(0, block, 2, 2, [][]float64{child}, dst)
	assert.InDelta(t, 1.5-math.Log(0.4), dst[0], 1e-12)
	assert.InDelta(t, 0.25, block[0], 1e-12)
	assert.InDelta(t, 1, block[4], 1e-12)
	// an all-zero pattern is left alone
	assert.Equal(t, 2., dst[1])
	assert.Equal(t, 0., block[2])

	// skipped nodes only accumulate
	block = []float64{0.1, 0.2, 0.3, 0.4}
	dst = s.Factors(0, 1)
	s.Scale(1, block, 1, 2, [][]float64{child, {1, 1}}, dst)
	assert.Equal(t, []float64{2.5, 3}, dst)
	assert.Equal(t, 0.1, block[0])

	// disabled scaling keeps zero factors
	off := NewScaler(false, 1)
	off.Resize(1, 1)
	dst = off.Factors(0, 0)
	off.Scale(0, []float64{0.5}, 1, 1, [][]float64{{3}}, dst)
	assert.Equal(t, 0., dst[0])
}
