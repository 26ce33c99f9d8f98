package likelihood

import (
	"math/rand/v2"
	"testing"

	"github.com/mewbak/revbayes/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreIsExact(t *testing.T) {
	rng := rand.New(rand.NewPCG(21, 22))
	tr := randomTree(t, rng, 9)
	m := randomMatrix(t, rng, tr, 50)
	e := newEngine(t, tr, m, hkyGammaModel(t))
	before, err := e.ComputeLnProbability()
	require.NoError(t, err)
	state := e.tracker.Snapshot()

	old := tr.BranchLength(2)
	require.NoError(t, tr.SetBranchLength(2, old*3))
	assert.True(t, e.InTransaction())
	proposed, err := e.ComputeLnProbability()
	require.NoError(t, err)
	assert.NotEqual(t, before, proposed)

	// the value is put back before the engine rolls back
	require.NoError(t, tr.SetBranchLength(2, old))
	require.NoError(t, e.Restore(Branch(2)))
	assert.False(t, e.InTransaction())
	assert.Equal(t, before, e.LnProbability())
	assert.Equal(t, state, e.tracker.Snapshot())

	again, err := e.ComputeLnProbability()
	require.NoError(t, err)
	assert.Equal(t, before, again)
	assert.Equal(t, 0, e.Recomputed())
}

func TestKeepIsFinal(t *testing.T) {
	rng := rand.New(rand.NewPCG(23, 24))
	tr := randomTree(t, rng, 7)
	m := randomMatrix(t, rng, tr, 20)
	e := newEngine(t, tr, m, hkyGammaModel(t))
	_, err := e.ComputeLnProbability()
	require.NoError(t, err)

	assert.ErrorIs(t, e.Keep(Everything()), ErrNoOpenTransaction)
	assert.ErrorIs(t, e.Restore(Everything()), ErrNoOpenTransaction)

	require.NoError(t, tr.SetBranchLength(0, 0.7))
	kept, err := e.ComputeLnProbability()
	require.NoError(t, err)
	require.NoError(t, e.Keep(Branch(0)))
	assert.False(t, e.tracker.Open())
	assert.ErrorIs(t, e.Restore(Branch(0)), ErrNoOpenTransaction)

	again, err := e.ComputeLnProbability()
	require.NoError(t, err)
	assert.Equal(t, kept, again)
	assert.Equal(t, 0, e.Recomputed())
	assert.InEpsilon(t, fullLnL(t, tr, m, hkyGammaModel(t)), kept, 1e-12)
}

func TestIncrementalMatchesFull(t *testing.T) {
	rng := rand.New(rand.NewPCG(25, 26))
	tr := randomTree(t, rng, 14)
	m := randomMatrix(t, rng, tr, 80)
	for _, density := range []int{1, 3} {
		e := newEngine(t, tr, m, hkyGammaModel(t), WithScaling(true, density))
		_, err := e.ComputeLnProbability()
		require.NoError(t, err)

		for step := 0; step < 60; step++ {
			var undo []func()
			for k := 0; k < 1+rng.IntN(3); k++ {
				node := rng.IntN(tr.Root())
				old := tr.BranchLength(node)
				require.NoError(t, tr.SetBranchLength(node, 0.01+rng.Float64()))
				undo = append(undo, func() { require.NoError(t, tr.SetBranchLength(node, old)) })
			}
			if rng.IntN(4) == 0 {
				old := e.PInv()
				require.NoError(t, e.SetPInv(rng.Float64()*0.5))
				undo = append(undo, func() { require.NoError(t, e.SetPInv(old)) })
			}
			_, err := e.ComputeLnProbability()
			require.NoError(t, err)

			if rng.IntN(2) == 0 {
				require.NoError(t, e.Keep(Everything()))
			} else {
				for i := len(undo) - 1; i >= 0; i-- {
					undo[i]()
				}
				require.NoError(t, e.Restore(Everything()))
			}
			got, err := e.ComputeLnProbability()
			require.NoError(t, err)
			model := hkyGammaModel(t)
			model.PInv = e.PInv()
			assert.InEpsilon(t, fullLnL(t, tr, m, model, WithScaling(true, density)), got, 1e-9, "step %d", step)
		}
		e.Close()
	}
}

func TestRestoreAfterRebuild(t *testing.T) {
	tr, err := tree.ParseTree(fourTaxa)
	require.NoError(t, err)
	m := binaryMatrix(t, map[string]string{"A": "01", "B": "11", "C": "00", "D": "10"})
	e := newEngine(t, tr, m, mk2Model(t))
	before, err := e.ComputeLnProbability()
	require.NoError(t, err)

	require.NoError(t, tr.Rebuild())
	_, err = e.ComputeLnProbability()
	require.NoError(t, err)
	assert.Equal(t, tr.NumberOfNodes(), e.Recomputed())
	assert.True(t, e.InTransaction())

	require.NoError(t, e.Restore(Restructured()))
	assert.Equal(t, before, e.LnProbability())
	got, err := e.ComputeLnProbability()
	require.NoError(t, err)
	assert.Equal(t, tr.NumberOfNodes(), e.Recomputed())
	assert.Equal(t, before, got)
}

func TestSiteRateCategoryChange(t *testing.T) {
	rng := rand.New(rand.NewPCG(27, 28))
	tr := randomTree(t, rng, 6)
	m := randomMatrix(t, rng, tr, 30)
	e := newEngine(t, tr, m, hkyGammaModel(t))
	_, err := e.ComputeLnProbability()
	require.NoError(t, err)

	require.NoError(t, e.SetSiteRates([]float64{0.5, 1.5}, nil))
	got, err := e.ComputeLnProbability()
	require.NoError(t, err)
	model := hkyGammaModel(t)
	model.SiteRates = []float64{0.5, 1.5}
	assert.InEpsilon(t, fullLnL(t, tr, m, model), got, 1e-12)
	require.NoError(t, e.Keep(Restructured()))
	assert.False(t, e.InTransaction())

	assert.ErrorIs(t, e.SetSiteRates([]float64{1, 2}, []float64{1}), ErrSiteRates)
}

func TestAffectKindString(t *testing.T) {
	assert.Equal(t, "branch", Branch(3).Kind.String())
	assert.Equal(t, "structure", Restructured().Kind.String())
	assert.Equal(t, "AffectKind(42)", AffectKind(42).String())
}
