package mcmc

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/mewbak/revbayes/likelihood"
	"github.com/mewbak/revbayes/trace"
	"github.com/mewbak/revbayes/tree"
	"go.uber.org/zap"
)

// Likelihood is the part of a likelihood engine the chain drives. Proposals
// change the tree or call a setter, which touches the engine; the chain
// then evaluates and either keeps or restores.
type Likelihood interface {
	ComputeLnProbability() (float64, error)
	Keep(likelihood.Affecter) error
	Restore(likelihood.Affecter) error
	InTransaction() bool
	SetPInv(float64) error
	PInv() float64
}

// Sink receives the sampled generations.
type Sink interface {
	Record(trace.Sample) error
}

// Move names used in the acceptance statistics.
const (
	BranchMove = "branch-multiplier"
	CladeMove  = "clade-multiplier"
	PInvMove   = "pinv-window"
)

// Config holds the run length, output frequencies and move settings.
type Config struct {
	Generations int
	PrintFreq   int
	SampleFreq  int

	// StepLength is the starting multiplier step, tuned every TuneInterval
	// generations up to TuneUntil.
	StepLength   float64
	TuneInterval int
	TuneUntil    int

	PInvWindow float64

	// relative move frequencies
	BranchWeight float64
	CladeWeight  float64
	PInvWeight   float64
}

//DefaultConfig will return the settings used when nothing is specified
func DefaultConfig() Config {
	return Config{
		Generations:  100000,
		PrintFreq:    10000,
		SampleFreq:   1000,
		StepLength:   0.1,
		TuneInterval: 200,
		TuneUntil:    10000,
		PInvWindow:   0.1,
		BranchWeight: 0.9,
		CladeWeight:  0.1,
	}
}

// Chain is a Metropolis-Hastings sampler over the branch lengths of a fixed
// topology and, optionally, the proportion of invariant sites.
type Chain struct {
	cfg   Config
	tree  *tree.Tree
	lik   Likelihood
	prior *BranchLengthPrior
	rng   *rand.Rand
	log   *zap.SugaredLogger
	sink  Sink

	lnL     float64
	stepLen float64
	weights []float64
	stats   map[string]*trace.MoveStats
}

// Option configures a Chain.
type Option func(*Chain)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Chain) {
		if log != nil {
			c.log = log
		}
	}
}

func WithSink(s Sink) Option {
	return func(c *Chain) { c.sink = s }
}

//InitMCMC will set up a chain over tr, whose likelihood is lik
func InitMCMC(cfg Config, tr *tree.Tree, lik Likelihood, prior *BranchLengthPrior, rng *rand.Rand, opts ...Option) (*Chain, error) {
	if cfg.Generations < 0 || cfg.PrintFreq <= 0 || cfg.SampleFreq <= 0 {
		return nil, ErrGenerations
	}
	weights := []float64{cfg.BranchWeight, cfg.CladeWeight, cfg.PInvWeight}
	total := 0.
	for _, w := range weights {
		if w < 0 {
			return nil, ErrNoMoves
		}
		total += w
	}
	if total == 0 {
		return nil, ErrNoMoves
	}
	c := &Chain{
		cfg:     cfg,
		tree:    tr,
		lik:     lik,
		prior:   prior,
		rng:     rng,
		log:     zap.NewNop().Sugar(),
		stepLen: cfg.StepLength,
		weights: weights,
		stats: map[string]*trace.MoveStats{
			BranchMove: {},
			CladeMove:  {},
			PInvMove:   {},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

//Run will run the chain for the configured number of generations
func (c *Chain) Run(ctx context.Context) error {
	ll, err := c.lik.ComputeLnProbability()
	if err != nil {
		return err
	}
	// a rebuild during the first evaluation leaves a transaction open
	if c.lik.InTransaction() {
		if err := c.lik.Keep(likelihood.Everything()); err != nil {
			return err
		}
	}
	// proposals from -Inf give a NaN acceptance ratio and are never accepted
	if math.IsInf(ll, -1) {
		return fmt.Errorf("%w: lnL is -Inf", ErrImpossibleStart)
	}
	c.lnL = ll
	c.prior.CUR = c.prior.Calc(c.tree)
	c.log.Infof("generation\tlogPrior\tlogLikelihood\tacceptanceRatio\tstepLength")
	c.log.Infof("0\t%f\t%f\tNA\t%f", c.prior.CUR, c.lnL, c.stepLen)
	if err := c.sample(0); err != nil {
		return err
	}
	for i := 1; i <= c.cfg.Generations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.update(); err != nil {
			return err
		}
		// use the burn in period to adjust the multiplier step length
		if c.cfg.TuneInterval > 0 && i%c.cfg.TuneInterval == 0 && i <= c.cfg.TuneUntil {
			if st := c.stats[BranchMove]; st.Proposed > 0 {
				c.stepLen = adjustStepLength(c.stepLen, st.Ratio())
			}
		}
		if i%c.cfg.PrintFreq == 0 {
			c.log.Infof("%d\t%f\t%f\t%f\t%f", i, c.prior.CUR, c.lnL, c.stats[BranchMove].Ratio(), c.stepLen)
		}
		if i%c.cfg.SampleFreq == 0 {
			if err := c.sample(i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Chain) update() error {
	switch pick(c.rng, c.weights) {
	case 0:
		return c.singleBranchLengthUpdate()
	case 1:
		return c.cladeBranchLengthUpdate()
	default:
		return c.pinvUpdate()
	}
}

func (c *Chain) singleBranchLengthUpdate() error {
	node := c.rng.IntN(c.tree.Root())
	old := c.tree.BranchLength(node)
	star, propRat := singleBrlenMultiplierProp(c.rng, old, c.stepLen)
	if err := c.tree.SetBranchLength(node, star); err != nil {
		return err
	}
	return c.decide(BranchMove, likelihood.Branch(node), propRat, func() error {
		return c.tree.SetBranchLength(node, old)
	})
}

func (c *Chain) cladeBranchLengthUpdate() error {
	internal := c.tree.InternalNodes()
	internal = internal[:len(internal)-1] // without the root
	if len(internal) == 0 {
		return c.singleBranchLengthUpdate()
	}
	top := internal[c.rng.IntN(len(internal))]
	var clade []int
	for _, n := range c.tree.Node(top).PostorderArray() {
		clade = append(clade, n.ID)
	}
	oldlens := make([]float64, len(clade))
	for i, n := range clade {
		oldlens[i] = c.tree.BranchLength(n)
	}
	newlens, propRat := cladeBrlenMultiplierProp(c.rng, oldlens, c.stepLen)
	for i, n := range clade {
		if err := c.tree.SetBranchLength(n, newlens[i]); err != nil {
			return err
		}
	}
	return c.decide(CladeMove, likelihood.Branch(top), propRat, func() error {
		for i, n := range clade {
			if err := c.tree.SetBranchLength(n, oldlens[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Chain) pinvUpdate() error {
	old := c.lik.PInv()
	if err := c.lik.SetPInv(unitSlidingWindow(c.rng, old, c.cfg.PInvWindow)); err != nil {
		return err
	}
	return c.decide(PInvMove, likelihood.RootParameters(), 1, func() error {
		return c.lik.SetPInv(old)
	})
}

// decide evaluates a proposal that has already been applied and either
// keeps it or undoes it and restores the engine.
func (c *Chain) decide(move string, a likelihood.Affecter, propRat float64, undo func() error) error {
	llstar, err := c.lik.ComputeLnProbability()
	if err != nil {
		return err
	}
	lpstar := c.prior.Calc(c.tree)
	st := c.stats[move]
	st.Proposed++
	logAlpha := lpstar - c.prior.CUR + llstar - c.lnL + math.Log(propRat)
	if math.Log(c.rng.Float64()) < logAlpha {
		st.Accepted++
		c.lnL = llstar
		c.prior.CUR = lpstar
		return c.lik.Keep(a)
	}
	if err := undo(); err != nil {
		return err
	}
	return c.lik.Restore(a)
}

func (c *Chain) sample(gen int) error {
	if c.sink == nil {
		return nil
	}
	return c.sink.Record(trace.Sample{
		Generation:   gen,
		LnPrior:      c.prior.CUR,
		LnLikelihood: c.lnL,
		PInv:         c.lik.PInv(),
		TreeLength:   c.tree.TreeLength(),
		Newick:       c.tree.Newick(),
	})
}

// LnLikelihood returns the log-likelihood of the current state.
func (c *Chain) LnLikelihood() float64 { return c.lnL }

// LnPrior returns the branch-length log prior of the current state.
func (c *Chain) LnPrior() float64 { return c.prior.CUR }

// StepLength returns the tuned multiplier step length.
func (c *Chain) StepLength() float64 { return c.stepLen }

// Stats returns a copy of the per-move acceptance counts.
func (c *Chain) Stats() map[string]trace.MoveStats {
	ret := make(map[string]trace.MoveStats, len(c.stats))
	for k, v := range c.stats {
		ret[k] = *v
	}
	return ret
}

// Summary reports the final state of the chain.
func (c *Chain) Summary(runID string, elapsedSeconds float64) trace.Summary {
	return trace.Summary{
		RunID:             runID,
		Generations:       c.cfg.Generations,
		Moves:             c.Stats(),
		FinalLnLikelihood: c.lnL,
		FinalLnPrior:      c.prior.CUR,
		StepLength:        c.stepLen,
		ElapsedSeconds:    elapsedSeconds,
		Newick:            c.tree.Newick(),
	}
}

// pick draws an index with probability proportional to w.
func pick(rng *rand.Rand, w []float64) int {
	total := 0.
	for _, v := range w {
		total += v
	}
	u := rng.Float64() * total
	for i, v := range w {
		u -= v
		if u < 0 {
			return i
		}
	}
	for i := len(w) - 1; i >= 0; i-- {
		if w[i] > 0 {
			return i
		}
	}
	return 0
}
