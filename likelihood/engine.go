package likelihood

import (
	"fmt"
	"math"

	"github.com/mewbak/revbayes/character"
	"github.com/mewbak/revbayes/tree"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Engine evaluates the log-likelihood of a character matrix on a tree by
// pruning, recomputing only the nodes invalidated since the last evaluation.
type Engine struct {
	topo  Topology
	data  *character.Matrix
	model Model
	opts  Options
	log   *zap.SugaredLogger

	numStates int

	patterns      *Patterns
	blockStart    int
	blockEnd      int
	numProcesses  int
	activeProcess int

	store   *PartialStore
	tracker *Tracker
	scaler  *Scaler

	sub              tree.Subscription
	structureChanged bool

	pmat []*mat.Dense // one transition matrix per site rate category
	cond []float64

	lnProb       float64
	storedLnProb float64
	combined     float64
	touched      bool
	rebuiltInTxn bool
	recomputed   int
}

//NewEngine will return an engine subscribed to topo, evaluating data under model
func NewEngine(topo Topology, data *character.Matrix, model Model, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	e := &Engine{
		topo:         topo,
		data:         data,
		model:        model,
		opts:         o,
		log:          o.log,
		numStates:    data.Alphabet.NumStates(),
		numProcesses: 1,
		store:        new(PartialStore),
		tracker:      NewTracker(nil),
		scaler:       NewScaler(o.scaling, o.scalingDensity),
	}
	if e.model.SiteRates == nil {
		e.model.SiteRates = []float64{1}
	}
	e.sub = topo.Subscribe(e.handleTreeChange)
	if err := e.rebuild(); err != nil {
		topo.Unsubscribe(e.sub)
		return nil, err
	}
	return e, nil
}

// Close removes the engine's tree subscription.
func (e *Engine) Close() {
	e.topo.Unsubscribe(e.sub)
}

func (e *Engine) tipNames() []string {
	names := make([]string, e.topo.NumberOfTips())
	for i := range names {
		names[i] = e.topo.TipName(i)
	}
	return names
}

func (e *Engine) compress() (*Patterns, error) {
	return Compress(e.data, e.tipNames(), e.opts.compress)
}

// rebuild recompresses the data and resizes every per-node structure. The
// model is checked against the current node count first, since per-branch
// vectors sized for a previous tree cannot be used.
func (e *Engine) rebuild() error {
	if err := e.model.validate(e.topo.NumberOfNodes(), e.numStates); err != nil {
		return err
	}
	p, err := e.compress()
	if err != nil {
		return err
	}
	return e.usePatterns(p)
}

func (e *Engine) usePatterns(p *Patterns) error {
	if p.NumPatterns() == 0 {
		return ErrNoPatterns
	}
	start, end, err := p.Block(e.numProcesses, e.activeProcess)
	if err != nil {
		return err
	}
	e.patterns = p
	e.blockStart, e.blockEnd = start, end
	e.resize()
	return nil
}

func (e *Engine) resize() {
	n := e.topo.NumberOfNodes()
	ncat := len(e.model.SiteRates)
	np := e.blockEnd - e.blockStart
	e.log.Debugf("resize: nodes=%d categories=%d patterns=%d states=%d", n, ncat, np, e.numStates)
	e.store.Resize(n, ncat, np, e.numStates)
	e.scaler.Resize(n, np)
	if !e.opts.mcmcMode {
		e.store.Release()
		e.scaler.Release()
	}
	parent := make([]int, n)
	for i := range parent {
		parent[i] = e.topo.Parent(i)
	}
	if e.tracker.Open() {
		e.rebuiltInTxn = true
	}
	e.tracker.Reset(parent)
	e.pmat = make([]*mat.Dense, ncat)
	for c := range e.pmat {
		e.pmat[c] = mat.NewDense(e.numStates, e.numStates, nil)
	}
	e.cond = make([]float64, e.numStates)
	e.structureChanged = false
}

func (e *Engine) handleTreeChange(ev tree.ChangeEvent) {
	if ev.All {
		e.Touch(Restructured())
		return
	}
	e.Touch(Branch(ev.Node))
}

// SetTopology swaps the tree. The old tree loses the engine's subscription
// and everything is rebuilt at the next evaluation.
func (e *Engine) SetTopology(topo Topology) {
	e.topo.Unsubscribe(e.sub)
	e.topo = topo
	e.sub = tree.Subscription{}
	e.structureChanged = true
}

// SetNumberOfProcesses sets the number of pattern blocks.
func (e *Engine) SetNumberOfProcesses(n int) {
	e.numProcesses = n
	e.structureChanged = true
}

// SetActiveProcess selects the pattern block this engine evaluates.
func (e *Engine) SetActiveProcess(pid int) {
	e.activeProcess = pid
	e.structureChanged = true
}

// Block returns the pattern range [start,end) of this engine.
func (e *Engine) Block() (start, end int) { return e.blockStart, e.blockEnd }

// Patterns returns the current pattern set.
func (e *Engine) Patterns() *Patterns { return e.patterns }

// SetMCMCMode switches between keeping the store across evaluations and
// allocating it for each evaluation.
func (e *Engine) SetMCMCMode(on bool) {
	e.opts.mcmcMode = on
	if !on {
		e.store.Release()
		e.scaler.Release()
		e.tracker.ForceAllDirty()
	}
}

// Recomputed returns the number of nodes recomputed by the last evaluation.
func (e *Engine) Recomputed() int { return e.recomputed }

// LnProbability returns the last computed value without evaluating.
func (e *Engine) LnProbability() float64 { return e.lnProb }

// SetCombinedLnProbability stores the reduced value of all pattern blocks.
func (e *Engine) SetCombinedLnProbability(v float64) { e.combined = v }

// CombinedLnProbability returns the value broadcast by the last reduction.
func (e *Engine) CombinedLnProbability() float64 { return e.combined }

// ComputeLnProbability returns the log-likelihood of this engine's pattern
// block, recomputing the dirty nodes only. Configuration errors are
// returned; impossible data yields -Inf.
func (e *Engine) ComputeLnProbability() (float64, error) {
	if err := e.prepare(); err != nil {
		return math.Inf(-1), err
	}
	return e.evaluate()
}

// prepare performs every step that may touch shared state: the tree
// subscription and the pattern rebuild.
func (e *Engine) prepare() error {
	if !e.topo.IsSubscribed(e.sub) {
		e.log.Debugf("tree subscription lost, resubscribing")
		e.sub = e.topo.Subscribe(e.handleTreeChange)
		e.structureChanged = true
	}
	if e.structureChanged || e.patterns == nil {
		if err := e.rebuild(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) evaluate() (float64, error) {
	e.recomputed = 0
	root := e.topo.Root()
	children := e.topo.Children(root)
	if len(children) != 2 && len(children) != 3 {
		return math.Inf(-1), fmt.Errorf("%w: root has %d", ErrRootArity, len(children))
	}
	freqs, err := e.rootFrequencies()
	if err != nil {
		return math.Inf(-1), err
	}
	if !e.store.Allocated() {
		e.store.Reallocate()
		e.scaler.Reallocate()
		e.tracker.ForceAllDirty()
	}
	if e.tracker.Dirty(root) {
		for _, c := range children {
			e.recurse(c)
		}
		e.computeRoot(root, children)
		e.tracker.Clean(root)
		e.recomputed++
		e.lnProb = e.sumRootLikelihood(root, freqs)
	}
	if !e.opts.mcmcMode {
		e.store.Release()
		e.scaler.Release()
		e.tracker.ForceAllDirty()
	}
	return e.lnProb, nil
}

func (e *Engine) recurse(node int) {
	if !e.tracker.Dirty(node) {
		return
	}
	children := e.topo.Children(node)
	for _, c := range children {
		e.recurse(c)
	}
	e.computeNode(node, children)
	e.tracker.Clean(node)
	e.recomputed++
}

func (e *Engine) operatorFor(node int) TransitionOperator {
	if e.model.BranchOperators != nil {
		if op := e.model.BranchOperators.At(node); op != nil {
			return op
		}
	}
	return e.model.Operator
}

func (e *Engine) clockRateFor(node int) float64 {
	if e.model.BranchRates != nil {
		return e.model.BranchRates.At(node)
	}
	if e.model.ClockRate == 0 {
		return 1
	}
	return e.model.ClockRate
}

// updateTransitionProbabilities fills pmat for the branch above node.
func (e *Engine) updateTransitionProbabilities(node int) {
	op := e.operatorFor(node)
	end := e.topo.Age(node)
	start := end + e.topo.BranchLength(node)
	clock := e.clockRateFor(node)
	for c, r := range e.model.SiteRates {
		op.TransitionProbabilities(start, end, clock*r, e.pmat[c])
	}
}

// computeNode writes the partial likelihood at the top of the branch above
// node: L[i] = sum_j P[i][j] * prod_children L_child[j]. Tips use their
// observed state set instead of the children's product.
func (e *Engine) computeNode(node int, children []int) {
	e.updateTransitionProbabilities(node)
	buf := e.tracker.Active(node)
	ns := e.numStates
	np := e.blockEnd - e.blockStart
	tip := e.topo.IsTip(node)
	for c := range e.model.SiteRates {
		P := e.pmat[c].RawMatrix()
		out := e.store.Category(buf, node, c)
		for p := 0; p < np; p++ {
			site := out[p*ns : (p+1)*ns]
			if tip {
				if e.patterns.Gaps[node][e.blockStart+p] {
					for i := range site {
						site[i] = 1
					}
					continue
				}
				bits := e.patterns.Bits[node][e.blockStart+p]
				for j := range e.cond {
					if bits&(1<<uint(j)) != 0 {
						e.cond[j] = 1
					} else {
						e.cond[j] = 0
					}
				}
			} else {
				for j := range e.cond {
					e.cond[j] = 1
				}
				for _, ch := range children {
					floats.Mul(e.cond, e.store.Site(e.tracker.Active(ch), ch, c, p))
				}
			}
			for i := 0; i < ns; i++ {
				site[i] = floats.Dot(P.Data[i*P.Stride:i*P.Stride+ns], e.cond)
			}
		}
	}
	e.scale(node, children)
}

// computeRoot writes the product of the children's partials at the root.
func (e *Engine) computeRoot(root int, children []int) {
	buf := e.tracker.Active(root)
	block := e.store.Node(buf, root)
	for i := range block {
		block[i] = 1
	}
	for _, ch := range children {
		floats.Mul(block, e.store.Node(e.tracker.Active(ch), ch))
	}
	e.scale(root, children)
}

func (e *Engine) scale(node int, children []int) {
	if !e.scaler.Enabled {
		return
	}
	kids := make([][]float64, len(children))
	for k, ch := range children {
		kids[k] = e.scaler.Factors(e.tracker.Active(ch), ch)
	}
	e.scaler.Scale(node,
		e.store.Node(e.tracker.Active(node), node),
		len(e.model.SiteRates), e.numStates, kids,
		e.scaler.Factors(e.tracker.Active(node), node))
}

func (e *Engine) rootFrequencies() ([]float64, error) {
	if e.model.RootFrequencies != nil {
		return e.model.RootFrequencies, nil
	}
	if so, ok := e.operatorFor(e.topo.Root()).(StationaryOperator); ok {
		if f, ok := so.StationaryFrequencies(); ok {
			return f, nil
		}
	}
	return nil, ErrNoRootFrequencies
}

func (e *Engine) categoryWeights() []float64 {
	if e.model.SiteRateWeights != nil {
		w := append([]float64(nil), e.model.SiteRateWeights...)
		floats.Scale(1/floats.Sum(w), w)
		return w
	}
	n := len(e.model.SiteRates)
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// sumRootLikelihood combines the root partials with the root frequencies,
// the mixture weights and the invariant-site component, adds back the
// scaling factors and weights each pattern by its count.
func (e *Engine) sumRootLikelihood(root int, freqs []float64) float64 {
	buf := e.tracker.Active(root)
	ns := e.numStates
	np := e.blockEnd - e.blockStart
	w := e.categoryWeights()
	pinv := e.model.PInv
	var S []float64
	if e.scaler.Enabled {
		S = e.scaler.Factors(buf, root)
	}
	ln := 0.
	for p := 0; p < np; p++ {
		mix := 0.
		for c := range w {
			site := e.store.Site(buf, root, c, p)
			mix += w[c] * floats.Dot(freqs, site[:ns])
		}
		scale := 0.
		if S != nil {
			scale = S[p]
		}
		k := e.blockStart + p
		if e.patterns.PatternCounts[k] == 0 {
			continue
		}
		var lnSite float64
		if pinv > 0 {
			lnSite = math.Log((1-pinv)*mix) - scale
			if e.patterns.Invariant[k] {
				lnSite = logAddExp(math.Log(pinv*freqs[e.patterns.InvariantState[k]]), lnSite)
			}
		} else {
			lnSite = math.Log(mix) - scale
		}
		ln += lnSite * float64(e.patterns.PatternCounts[k])
	}
	return ln
}

func logAddExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}
