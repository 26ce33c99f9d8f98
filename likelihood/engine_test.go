package likelihood

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/mewbak/revbayes/character"
	"github.com/mewbak/revbayes/ctmc"
	"github.com/mewbak/revbayes/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const fourTaxa = "((A:0.1,B:0.2):0.05,(C:0.3,D:0.4):0.15);"

func binaryMatrix(t *testing.T, rows map[string]string) *character.Matrix {
	t.Helper()
	alpha, err := character.NewStandard(2)
	require.NoError(t, err)
	m := character.NewMatrix(alpha)
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		if seq, ok := rows[name]; ok {
			require.NoError(t, m.AddSequence(name, seq))
		}
	}
	return m
}

func mk2Model(t *testing.T) Model {
	t.Helper()
	mk, err := ctmc.NewMk(2)
	require.NoError(t, err)
	return Model{Operator: mk}
}

func mk2(bl float64) [2][2]float64 {
	e := math.Exp(-2 * bl)
	s, d := 0.5+0.5*e, 0.5-0.5*e
	return [2][2]float64{{s, d}, {d, s}}
}

// fourTaxaSite enumerates every internal state assignment of fourTaxa.
func fourTaxaSite(a, b, c, d int) float64 {
	pAB, pCD := mk2(0.05), mk2(0.15)
	pA, pB, pC, pD := mk2(0.1), mk2(0.2), mk2(0.3), mk2(0.4)
	l := 0.
	for r := 0; r < 2; r++ {
		for x := 0; x < 2; x++ {
			for y := 0; y < 2; y++ {
				l += 0.5 * pAB[r][x] * pCD[r][y] * pA[x][a] * pB[x][b] * pC[y][c] * pD[y][d]
			}
		}
	}
	return l
}

func newEngine(t *testing.T, tr *tree.Tree, m *character.Matrix, model Model, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(tr, m, model, opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

// fullLnL evaluates a fresh engine from scratch.
func fullLnL(t *testing.T, tr *tree.Tree, m *character.Matrix, model Model, opts ...Option) float64 {
	t.Helper()
	e, err := NewEngine(tr, m, model, opts...)
	require.NoError(t, err)
	defer e.Close()
	ln, err := e.ComputeLnProbability()
	require.NoError(t, err)
	return ln
}

func TestFourTaxaHandComputed(t *testing.T) {
	tr, err := tree.ParseTree(fourTaxa)
	require.NoError(t, err)
	// one variable site and one invariant site
	m := binaryMatrix(t, map[string]string{"A": "00", "B": "10", "C": "00", "D": "10"})
	want := math.Log(fourTaxaSite(0, 1, 0, 1)) + math.Log(fourTaxaSite(0, 0, 0, 0))

	for _, scaling := range []bool{true, false} {
		t.Run(fmt.Sprintf("scaling=%v", scaling), func(t *testing.T) {
			e := newEngine(t, tr, m, mk2Model(t), WithScaling(scaling, 1))
			got, err := e.ComputeLnProbability()
			require.NoError(t, err)
			assert.InDelta(t, want, got, 1e-9)
			assert.Equal(t, tr.NumberOfNodes(), e.Recomputed())
		})
	}
}

func TestThreeChildRoot(t *testing.T) {
	tr, err := tree.ParseTree("(A:0.1,B:0.2,(C:0.3,D:0.4):0.15);")
	require.NoError(t, err)
	m := binaryMatrix(t, map[string]string{"A": "0", "B": "1", "C": "1", "D": "0"})
	pA, pB, pC, pD, pCD := mk2(0.1), mk2(0.2), mk2(0.3), mk2(0.4), mk2(0.15)
	want := 0.
	for r := 0; r < 2; r++ {
		below := 0.
		for y := 0; y < 2; y++ {
			below += pCD[r][y] * pC[y][1] * pD[y][0]
		}
		want += 0.5 * pA[r][0] * pB[r][1] * below
	}
	got, err := newEngine(t, tr, m, mk2Model(t)).ComputeLnProbability()
	require.NoError(t, err)
	assert.InDelta(t, math.Log(want), got, 1e-9)
}

func TestAmbiguityAndGaps(t *testing.T) {
	tr, err := tree.ParseTree(fourTaxa)
	require.NoError(t, err)
	m := binaryMatrix(t, map[string]string{"A": "{01}", "B": "-", "C": "0", "D": "1"})
	want := 0.
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			want += fourTaxaSite(a, b, 0, 1)
		}
	}
	got, err := newEngine(t, tr, m, mk2Model(t)).ComputeLnProbability()
	require.NoError(t, err)
	assert.InDelta(t, math.Log(want), got, 1e-9)
}

func TestRootArity(t *testing.T) {
	m := binaryMatrix(t, map[string]string{"A": "0", "B": "1", "C": "1", "D": "0"})
	for _, nwk := range []string{"(A:1,B:1,C:1,D:1);", "((A:1,B:1,C:1,D:1):1);"} {
		tr, err := tree.ParseTree(nwk)
		require.NoError(t, err)
		_, err = newEngine(t, tr, m, mk2Model(t)).ComputeLnProbability()
		assert.ErrorIs(t, err, ErrRootArity, nwk)
	}
}

type plainOperator struct {
	op TransitionOperator
}

func (p plainOperator) NumStates() int { return p.op.NumStates() }
func (p plainOperator) TransitionProbabilities(start, end, rate float64, out *mat.Dense) {
	p.op.TransitionProbabilities(start, end, rate, out)
}

func TestRootFrequencies(t *testing.T) {
	tr, err := tree.ParseTree(fourTaxa)
	require.NoError(t, err)
	m := binaryMatrix(t, map[string]string{"A": "0", "B": "1", "C": "1", "D": "0"})
	mk, err := ctmc.NewMk(2)
	require.NoError(t, err)

	e := newEngine(t, tr, m, Model{Operator: plainOperator{mk}})
	_, err = e.ComputeLnProbability()
	assert.ErrorIs(t, err, ErrNoRootFrequencies)

	require.NoError(t, e.SetRootFrequencies([]float64{0.5, 0.5}))
	got, err := e.ComputeLnProbability()
	require.NoError(t, err)
	assert.InDelta(t, fullLnL(t, tr, m, mk2Model(t)), got, 1e-12)

	assert.ErrorIs(t, e.SetRootFrequencies([]float64{1}), ErrRootFrequencies)
	_, err = NewEngine(tr, m, Model{Operator: mk, RootFrequencies: []float64{1, 2, 3}})
	assert.ErrorIs(t, err, ErrRootFrequencies)
	_, err = NewEngine(tr, m, Model{Operator: ctmc.NewJC()})
	assert.ErrorIs(t, err, ErrNumStates)
	// only e is still listening
	assert.Equal(t, 1, tr.NumberOfListeners())
}

func TestIdempotence(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	tr := randomTree(t, rng, 12)
	m := randomMatrix(t, rng, tr, 60)
	e := newEngine(t, tr, m, hkyGammaModel(t))
	first, err := e.ComputeLnProbability()
	require.NoError(t, err)
	second, err := e.ComputeLnProbability()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 0, e.Recomputed())
	assert.False(t, math.IsInf(first, 0))
}

func TestCompressionEquivalence(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	tr := randomTree(t, rng, 6)
	m := simulatedMatrix(t, rng, tr, 400)

	compressed := newEngine(t, tr, m, hkyGammaModel(t), WithCompression(true))
	plain := newEngine(t, tr, m, hkyGammaModel(t), WithCompression(false))
	a, err := compressed.ComputeLnProbability()
	require.NoError(t, err)
	b, err := plain.ComputeLnProbability()
	require.NoError(t, err)
	require.Less(t, compressed.Patterns().NumPatterns(), plain.Patterns().NumPatterns())
	assert.InEpsilon(t, b, a, 1e-9)
}

func TestScalingInvariance(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	tr := randomTree(t, rng, 16)
	m := randomMatrix(t, rng, tr, 40)
	off := fullLnL(t, tr, m, hkyGammaModel(t), WithScaling(false, 1))
	for _, density := range []int{1, 2, 5} {
		on := fullLnL(t, tr, m, hkyGammaModel(t), WithScaling(true, density))
		assert.InEpsilon(t, off, on, 1e-9, "density %d", density)
	}
}

func TestScalingPreventsUnderflow(t *testing.T) {
	const ntips = 1500
	cur := tree.NewNode("t0", 10)
	for i := 1; i < ntips-1; i++ {
		p := tree.NewNode("", 10)
		p.AddChild(cur)
		p.AddChild(tree.NewNode(fmt.Sprintf("t%d", i), 10))
		cur = p
	}
	root := tree.NewNode("", 0)
	root.AddChild(cur)
	root.AddChild(tree.NewNode(fmt.Sprintf("t%d", ntips-1), 10))
	tr, err := tree.NewTree(root)
	require.NoError(t, err)

	alpha, err := character.NewStandard(2)
	require.NoError(t, err)
	m := character.NewMatrix(alpha)
	for i := 0; i < ntips; i++ {
		require.NoError(t, m.AddSequence(fmt.Sprintf("t%d", i), "0"))
	}

	unscaled := fullLnL(t, tr, m, mk2Model(t), WithScaling(false, 1))
	assert.True(t, math.IsInf(unscaled, -1))

	scaled := fullLnL(t, tr, m, mk2Model(t), WithScaling(true, 1))
	assert.InDelta(t, ntips*math.Log(0.5), scaled, 1e-4)
	sparse := fullLnL(t, tr, m, mk2Model(t), WithScaling(true, 4))
	assert.InDelta(t, scaled, sparse, 1e-6)
}

func TestImpossibleDataScaling(t *testing.T) {
	// zero-length sister branches cannot explain two different states
	tr, err := tree.ParseTree("((A:0,B:0):0.05,(C:0.3,D:0.4):0.15);")
	require.NoError(t, err)
	m := binaryMatrix(t, map[string]string{"A": "00", "B": "10", "C": "00", "D": "10"})
	for _, density := range []int{1, 2} {
		e := newEngine(t, tr, m, mk2Model(t), WithScaling(true, density))
		ln, err := e.ComputeLnProbability()
		require.NoError(t, err)
		assert.False(t, math.IsNaN(ln))
		assert.True(t, math.IsInf(ln, -1), "density %d", density)
		root := tr.Root()
		for _, f := range e.scaler.Factors(e.tracker.Active(root), root) {
			assert.False(t, math.IsNaN(f) || math.IsInf(f, 0), "density %d", density)
		}
	}
}

func TestInvariantSiteBlending(t *testing.T) {
	tr, err := tree.ParseTree(fourTaxa)
	require.NoError(t, err)
	m := binaryMatrix(t, map[string]string{"A": "00", "B": "10", "C": "00", "D": "10"})
	l1, l2 := fourTaxaSite(0, 1, 0, 1), fourTaxaSite(0, 0, 0, 0)

	e := newEngine(t, tr, m, mk2Model(t))
	got, err := e.ComputeLnProbability()
	require.NoError(t, err)
	assert.InDelta(t, math.Log(l1)+math.Log(l2), got, 1e-9)

	require.NoError(t, e.SetPInv(0.25))
	got, err = e.ComputeLnProbability()
	require.NoError(t, err)
	assert.Equal(t, 1, e.Recomputed())
	assert.InDelta(t, math.Log(0.75*l1)+math.Log(0.25*0.5+0.75*l2), got, 1e-9)

	// every site invariant and p_inv=1 leaves only the root frequencies
	inv := binaryMatrix(t, map[string]string{"A": "010", "B": "010", "C": "010", "D": "010"})
	model := mk2Model(t)
	model.PInv = 1
	model.RootFrequencies = []float64{0.3, 0.7}
	got, err = newEngine(t, tr, inv, model).ComputeLnProbability()
	require.NoError(t, err)
	assert.InDelta(t, 2*math.Log(0.3)+math.Log(0.7), got, 1e-12)

	// a variable site has no probability under p_inv=1
	got, err = newEngine(t, tr, m, model).ComputeLnProbability()
	require.NoError(t, err)
	assert.True(t, math.IsInf(got, -1))

	assert.ErrorIs(t, e.SetPInv(1.5), ErrPInv)
}

func TestMixtureWeights(t *testing.T) {
	tr, err := tree.ParseTree(fourTaxa)
	require.NoError(t, err)
	m := binaryMatrix(t, map[string]string{"A": "0", "B": "1", "C": "0", "D": "1"})
	model := mk2Model(t)
	model.SiteRates = []float64{0.5, 1.5}
	got, err := newEngine(t, tr, m, model).ComputeLnProbability()
	require.NoError(t, err)

	// scaling every branch by a category rate is the same as scaling the tree
	slow, err := tree.ParseTree("((A:0.05,B:0.1):0.025,(C:0.15,D:0.2):0.075);")
	require.NoError(t, err)
	fast, err := tree.ParseTree("((A:0.15,B:0.3):0.075,(C:0.45,D:0.6):0.225);")
	require.NoError(t, err)
	ls := math.Exp(fullLnL(t, slow, m, mk2Model(t)))
	lf := math.Exp(fullLnL(t, fast, m, mk2Model(t)))
	assert.InDelta(t, math.Log(0.5*ls+0.5*lf), got, 1e-9)

	model.SiteRateWeights = []float64{1, 3}
	got, err = newEngine(t, tr, m, model).ComputeLnProbability()
	require.NoError(t, err)
	assert.InDelta(t, math.Log(0.25*ls+0.75*lf), got, 1e-9)

	model.SiteRateWeights = []float64{1}
	_, err = NewEngine(tr, m, model)
	assert.ErrorIs(t, err, ErrSiteRates)
}

func TestNonMCMCMode(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	tr := randomTree(t, rng, 8)
	m := randomMatrix(t, rng, tr, 30)
	want := fullLnL(t, tr, m, hkyGammaModel(t))

	e := newEngine(t, tr, m, hkyGammaModel(t), WithMCMCMode(false))
	for i := 0; i < 2; i++ {
		got, err := e.ComputeLnProbability()
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, tr.NumberOfNodes(), e.Recomputed())
		assert.False(t, e.store.Allocated())
	}

	e.SetMCMCMode(true)
	got, err := e.ComputeLnProbability()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	_, err = e.ComputeLnProbability()
	require.NoError(t, err)
	assert.Equal(t, 0, e.Recomputed())
	assert.True(t, e.store.Allocated())
}

func TestResubscribe(t *testing.T) {
	tr, err := tree.ParseTree(fourTaxa)
	require.NoError(t, err)
	m := binaryMatrix(t, map[string]string{"A": "01", "B": "11", "C": "00", "D": "10"})
	e := newEngine(t, tr, m, mk2Model(t))
	want, err := e.ComputeLnProbability()
	require.NoError(t, err)

	tr.Unsubscribe(e.sub)
	got, err := e.ComputeLnProbability()
	require.NoError(t, err)
	assert.True(t, tr.IsSubscribed(e.sub))
	assert.Equal(t, tr.NumberOfNodes(), e.Recomputed())
	assert.InDelta(t, want, got, 1e-12)

	other, err := tree.ParseTree("((A:0.3,C:0.2):0.05,(B:0.1,D:0.4):0.15);")
	require.NoError(t, err)
	e.SetTopology(other)
	assert.Equal(t, 0, tr.NumberOfListeners())
	got, err = e.ComputeLnProbability()
	require.NoError(t, err)
	assert.True(t, other.IsSubscribed(e.sub))
	assert.InDelta(t, fullLnL(t, other, m, mk2Model(t)), got, 1e-12)
}

func TestBranchRates(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	tr := randomTree(t, rng, 10)
	m := randomMatrix(t, rng, tr, 30)
	rates := make([]float64, tr.NumberOfNodes())
	for i := range rates {
		rates[i] = 0.5 + rng.Float64()
	}
	model := hkyGammaModel(t)
	model.BranchRates = NewRateVector(rates)
	e := newEngine(t, tr, m, model)
	_, err := e.ComputeLnProbability()
	require.NoError(t, err)

	node := 0
	require.NoError(t, e.SetBranchRate(node, 3))
	got, err := e.ComputeLnProbability()
	require.NoError(t, err)
	depth := 1
	for p := tr.Parent(node); p >= 0; p = tr.Parent(p) {
		depth++
	}
	assert.Equal(t, depth, e.Recomputed())

	rates[node] = 3
	fresh := hkyGammaModel(t)
	fresh.BranchRates = NewRateVector(rates)
	assert.InEpsilon(t, fullLnL(t, tr, m, fresh), got, 1e-12)

	// a vector change without recorded indices invalidates everything
	e.model.BranchRates.SetAll(rates)
	e.Touch(ClockRates())
	_, err = e.ComputeLnProbability()
	require.NoError(t, err)
	assert.Equal(t, tr.NumberOfNodes(), e.Recomputed())
}

func TestBranchVectorsFollowTopology(t *testing.T) {
	tr, err := tree.ParseTree(fourTaxa)
	require.NoError(t, err)
	m := binaryMatrix(t, map[string]string{"A": "01", "B": "11", "C": "00", "D": "10", "E": "01"})
	ones := func(n int) []float64 {
		r := make([]float64, n)
		for i := range r {
			r[i] = 1
		}
		return r
	}
	model := mk2Model(t)
	model.BranchRates = NewRateVector(ones(tr.NumberOfNodes()))
	e := newEngine(t, tr, m, model)
	_, err = e.ComputeLnProbability()
	require.NoError(t, err)

	bigger, err := tree.ParseTree("(((A:0.1,E:0.2):0.1,B:0.2):0.05,(C:0.3,D:0.4):0.15);")
	require.NoError(t, err)
	e.SetTopology(bigger)
	ln, err := e.ComputeLnProbability()
	require.ErrorIs(t, err, ErrBranchVector)
	assert.True(t, math.IsInf(ln, -1))
	assert.ErrorIs(t, e.Bootstrap(rand.New(rand.NewPCG(1, 2))), ErrBranchVector)

	// resizing the vector lets the next evaluation rebuild
	e.model.BranchRates.SetAll(ones(bigger.NumberOfNodes()))
	ln, err = e.ComputeLnProbability()
	require.NoError(t, err)
	assert.Equal(t, bigger.NumberOfNodes(), e.Recomputed())
	assert.InDelta(t, fullLnL(t, bigger, m, mk2Model(t)), ln, 1e-12)

	// a smaller tree is rejected too rather than reading stale entries
	e.SetTopology(tr)
	_, err = e.ComputeLnProbability()
	assert.ErrorIs(t, err, ErrBranchVector)

	ops := NewOperatorVector(make([]TransitionOperator, bigger.NumberOfNodes()))
	ops.Set(0, model.Operator)
	ops.SetAll(make([]TransitionOperator, tr.NumberOfNodes()))
	assert.Equal(t, tr.NumberOfNodes(), ops.Len())
	assert.Empty(t, ops.TouchedIndices())
}

func TestBranchOperators(t *testing.T) {
	tr, err := tree.ParseTree(fourTaxa)
	require.NoError(t, err)
	m := dnaMatrix(t, map[string]string{"A": "ACGT", "B": "ACGA", "C": "AGGT", "D": "TCGT"}, "A", "B", "C", "D")
	ops := make([]TransitionOperator, tr.NumberOfNodes())
	for i := range ops {
		ops[i] = ctmc.NewJC()
	}
	e := newEngine(t, tr, m, Model{BranchOperators: NewOperatorVector(ops)})
	jc, err := e.ComputeLnProbability()
	require.NoError(t, err)
	assert.InDelta(t, fullLnL(t, tr, m, Model{Operator: ctmc.NewJC()}), jc, 1e-12)

	hky, err := ctmc.NewHKY(5, []float64{0.25, 0.25, 0.25, 0.25})
	require.NoError(t, err)
	c, _ := tr.TipIndex("C")
	require.NoError(t, e.SetBranchOperator(c, hky))
	_, err = e.ComputeLnProbability()
	require.NoError(t, err)
	assert.Equal(t, 3, e.Recomputed())

	mk, err := ctmc.NewMk(2)
	require.NoError(t, err)
	assert.ErrorIs(t, e.SetBranchOperator(c, mk), ErrNumStates)
}

// randomTree joins random pairs of nodes until two subtrees remain under
// the root.
func randomTree(t *testing.T, rng *rand.Rand, ntips int) *tree.Tree {
	t.Helper()
	var pool []*tree.Node
	for i := 0; i < ntips; i++ {
		pool = append(pool, tree.NewNode(fmt.Sprintf("t%d", i), 0.01+0.3*rng.Float64()))
	}
	take := func() *tree.Node {
		i := rng.IntN(len(pool))
		n := pool[i]
		pool = append(pool[:i], pool[i+1:]...)
		return n
	}
	for len(pool) > 2 {
		a, b := take(), take()
		n := tree.NewNode("", 0.01+0.3*rng.Float64())
		n.AddChild(a)
		n.AddChild(b)
		pool = append(pool, n)
	}
	root := tree.NewNode("", 0)
	root.AddChild(pool[0])
	root.AddChild(pool[1])
	tr, err := tree.NewTree(root)
	require.NoError(t, err)
	return tr
}

func randomMatrix(t *testing.T, rng *rand.Rand, tr *tree.Tree, nsites int) *character.Matrix {
	t.Helper()
	const symbols = "ACGTACGTACGTRY-N?"
	m := character.NewMatrix(character.DNA)
	for i := 0; i < tr.NumberOfTips(); i++ {
		seq := make([]byte, nsites)
		for s := range seq {
			seq[s] = symbols[rng.IntN(len(symbols))]
		}
		require.NoError(t, m.AddSequence(tr.TipName(i), string(seq)))
	}
	return m
}

func simulatedMatrix(t *testing.T, rng *rand.Rand, tr *tree.Tree, nsites int) *character.Matrix {
	t.Helper()
	seed := randomMatrix(t, rng, tr, 1)
	e := newEngine(t, tr, seed, hkyGammaModel(t))
	m, err := e.Simulate(rng, nsites)
	require.NoError(t, err)
	return m
}

func hkyGammaModel(t *testing.T) Model {
	t.Helper()
	h, err := ctmc.NewHKY(2.5, []float64{0.3, 0.2, 0.2, 0.3})
	require.NoError(t, err)
	rates, err := ctmc.DiscreteGamma(0.7, 4, false)
	require.NoError(t, err)
	return Model{Operator: h, SiteRates: rates, PInv: 0.2}
}
