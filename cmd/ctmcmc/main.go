package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/mewbak/revbayes/character"
	"github.com/mewbak/revbayes/config"
	"github.com/mewbak/revbayes/likelihood"
	"github.com/mewbak/revbayes/mcmc"
	"github.com/mewbak/revbayes/trace"
	"github.com/mewbak/revbayes/tree"
	"go.uber.org/zap"
)

// engine is what every mode needs from a single or partitioned engine.
type engine interface {
	mcmc.Likelihood
	Bootstrap(*rand.Rand) error
	Close()
}

func main() {
	confArg := flag.String("c", "", "YAML run configuration; flags below override it")
	treeArg := flag.String("t", "", "input tree (newick)")
	alnArg := flag.String("m", "", "character matrix (phylip or fasta)")
	genArg := flag.Int("gen", -1, "number of MCMC generations to run")
	runNameArg := flag.String("o", "", "specify the prefix for outfile names")
	threadArg := flag.Int("T", 0, "number of pattern blocks evaluated concurrently")
	seedArg := flag.Uint64("seed", 0, "random seed (0 keeps the configured seed)")
	startArg := flag.String("st", "0", "\tSpecify whether to use the input or random starting branch lengths\n\t\t0    input\n\t\t1    random")
	algArg := flag.String("f", "0", "indicate which analysis to perform:\n0:\tMCMC over branch lengths\n1:\tdraw joint ancestral states\n2:\tsimulate a matrix on the tree\n3:\tbootstrap replicate log-likelihoods\n")
	nArg := flag.Int("n", 10, "number of draws, sites or replicates for -f 1, 2 and 3")
	profArg := flag.String("prof", "", "write a CPU profile to this file")
	verboseArg := flag.Bool("v", false, "log cache events")
	flag.Parse()

	cfg := config.Default()
	if *confArg != "" {
		var err error
		if cfg, err = config.Load(*confArg); err != nil {
			log.Fatal(err)
		}
	}
	if *treeArg != "" {
		cfg.Tree = *treeArg
	}
	if *alnArg != "" {
		cfg.Alignment = *alnArg
	}
	if *genArg >= 0 {
		cfg.MCMC.Generations = *genArg
	}
	if *runNameArg != "" {
		cfg.Output.Prefix = *runNameArg
	}
	if *threadArg > 0 {
		cfg.Likelihood.Processes = *threadArg
	}
	if *seedArg != 0 {
		cfg.MCMC.Seed = *seedArg
	}
	if *startArg == "1" {
		cfg.MCMC.RandomStart = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if cfg.Tree == "" || cfg.Alignment == "" {
		fmt.Println("a tree (-t) and a character matrix (-m) are required")
		os.Exit(1)
	}

	if *profArg != "" {
		f, err := os.Create(*profArg)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	zl, err := newLogger(*verboseArg)
	if err != nil {
		log.Fatal(err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	root, err := tree.ReadNewickFile(cfg.Tree)
	if err != nil {
		log.Fatal(err)
	}
	tr, err := tree.NewTree(root)
	if err != nil {
		log.Fatal(err)
	}
	alpha, err := cfg.BuildAlphabet()
	if err != nil {
		log.Fatal(err)
	}
	data, err := character.ReadMatrixFile(cfg.Alignment, alpha)
	if err != nil {
		log.Fatal(err)
	}
	logger.Infof("read %d taxa x %d characters, %d tips in the tree", data.NumberOfTaxa(), data.NumberOfCharacters(), tr.NumberOfTips())

	rng := rand.New(rand.NewPCG(cfg.MCMC.Seed, cfg.MCMC.Seed^0x9e3779b97f4a7c15))
	if cfg.MCMC.RandomStart {
		tr.RandomizeBranchLengths(rng)
	}

	model := func() likelihood.Model {
		m, err := cfg.BuildModel(alpha.NumStates())
		if err != nil {
			log.Fatal(err)
		}
		return m
	}
	opts := cfg.EngineOptions(logger)
	var eng engine
	var single *likelihood.Engine
	if cfg.Likelihood.Processes > 1 {
		if eng, err = likelihood.NewPartitioned(cfg.Likelihood.Processes, tr, data, model, opts...); err != nil {
			log.Fatal(err)
		}
	} else {
		if single, err = likelihood.NewEngine(tr, data, model(), opts...); err != nil {
			log.Fatal(err)
		}
		eng = single
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch *algArg {
	case "0":
		err = runChain(ctx, cfg, tr, eng, rng, logger)
	case "1":
		if single == nil {
			log.Fatal("ancestral states need a single pattern block (-T 1)")
		}
		err = drawAncestral(cfg, tr, single, rng, *nArg)
	case "2":
		if single == nil {
			log.Fatal("simulation needs a single pattern block (-T 1)")
		}
		err = simulate(cfg, single, rng, *nArg)
	case "3":
		err = bootstrap(eng, rng, *nArg)
	default:
		err = fmt.Errorf("unknown analysis %q", *algArg)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.DisableStacktrace = true
	if !verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zc.Build()
}

func runChain(ctx context.Context, cfg config.Config, tr *tree.Tree, eng engine, rng *rand.Rand, logger *zap.SugaredLogger) error {
	prior, err := cfg.BranchPrior()
	if err != nil {
		return err
	}
	store, err := trace.Open(cfg.Output.TraceDB())
	if err != nil {
		return err
	}
	defer store.Close()
	run, err := store.NewRun(cfg.Output.Prefix)
	if err != nil {
		return err
	}
	chain, err := mcmc.InitMCMC(cfg.ChainConfig(), tr, eng, prior, rng,
		mcmc.WithLogger(logger), mcmc.WithSink(store))
	if err != nil {
		return err
	}
	start := time.Now()
	if err := chain.Run(ctx); err != nil {
		return err
	}
	elapsed := time.Since(start)
	logger.Infof("completed %d MCMC generations in %s", cfg.MCMC.Generations, elapsed)
	return trace.WriteSummary(cfg.Output.SummaryFile(), chain.Summary(run.String(), elapsed.Seconds()))
}

// drawAncestral writes one line per draw and node: draw, node, tip name
// (empty for internal nodes) and the state symbols of every site.
func drawAncestral(cfg config.Config, tr *tree.Tree, e *likelihood.Engine, rng *rand.Rand, n int) error {
	f, err := os.Create(cfg.Output.Prefix + ".anc")
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	alpha, err := cfg.BuildAlphabet()
	if err != nil {
		return err
	}
	for d := 0; d < n; d++ {
		states, err := e.DrawAncestralStates(rng)
		if err != nil {
			return err
		}
		for node, row := range states {
			var b strings.Builder
			for _, s := range row {
				b.WriteString(alpha.StateSymbol(s))
			}
			name := ""
			if tr.IsTip(node) {
				name = tr.TipName(node)
			}
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", d, node, name, b.String())
		}
	}
	return w.Flush()
}

func simulate(cfg config.Config, e *likelihood.Engine, rng *rand.Rand, nsites int) error {
	m, err := e.Simulate(rng, nsites)
	if err != nil {
		return err
	}
	f, err := os.Create(cfg.Output.Prefix + ".phy")
	if err != nil {
		return err
	}
	defer f.Close()
	return character.WritePhylip(f, m)
}

func bootstrap(eng engine, rng *rand.Rand, n int) error {
	for i := 0; i < n; i++ {
		if err := eng.Bootstrap(rng); err != nil {
			return err
		}
		ln, err := eng.ComputeLnProbability()
		if err != nil {
			return err
		}
		fmt.Println(i, ln)
	}
	return nil
}
