package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mewbak/revbayes/character"
	"github.com/mewbak/revbayes/ctmc"
	"github.com/mewbak/revbayes/likelihood"
	"github.com/mewbak/revbayes/mcmc"
	"go.uber.org/zap"
)

// BuildAlphabet returns the alphabet named by the configuration.
func (c *Config) BuildAlphabet() (character.Alphabet, error) {
	name := strings.ToLower(strings.TrimSpace(c.Alphabet))
	if name == "dna" {
		return character.DNA, nil
	}
	if k, ok := strings.CutPrefix(name, "standard:"); ok {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrAlphabet, c.Alphabet)
		}
		return character.NewStandard(n)
	}
	return nil, fmt.Errorf("%w: %q", ErrAlphabet, c.Alphabet)
}

func (c *Config) numStates() (int, error) {
	a, err := c.BuildAlphabet()
	if err != nil {
		return 0, err
	}
	return a.NumStates(), nil
}

func uniform(n int) []float64 {
	f := make([]float64, n)
	for i := range f {
		f[i] = 1 / float64(n)
	}
	return f
}

// BuildOperator returns the transition operator of the configured model.
func (c *Config) BuildOperator(numStates int) (likelihood.TransitionOperator, error) {
	m := c.Model
	freqs := m.Frequencies
	if freqs == nil {
		freqs = uniform(numStates)
	}
	switch strings.ToLower(m.Kind) {
	case "mk":
		return ctmc.NewMk(numStates)
	case "jc":
		if numStates != 4 {
			return nil, fmt.Errorf("%w: jc needs 4 states, not %d", ErrInvalid, numStates)
		}
		return ctmc.NewJC(), nil
	case "hky":
		if numStates != 4 {
			return nil, fmt.Errorf("%w: hky needs 4 states, not %d", ErrInvalid, numStates)
		}
		return ctmc.NewHKY(m.Kappa, freqs)
	case "gtr":
		rates := m.ExchangeRates
		if rates == nil {
			rates = make([]float64, numStates*(numStates-1)/2)
			for i := range rates {
				rates[i] = 1
			}
		}
		return ctmc.NewGTR(rates, freqs)
	}
	return nil, fmt.Errorf("%w: model kind %q", ErrInvalid, m.Kind)
}

// SiteRates returns the discrete gamma categories, or nil for a single
// category.
func (c *Config) SiteRates() ([]float64, error) {
	if c.Model.GammaCategories <= 1 {
		return nil, nil
	}
	return ctmc.DiscreteGamma(c.Model.GammaAlpha, c.Model.GammaCategories, c.Model.GammaMedian)
}

// BuildModel assembles the likelihood model for an alphabet of numStates.
func (c *Config) BuildModel(numStates int) (likelihood.Model, error) {
	op, err := c.BuildOperator(numStates)
	if err != nil {
		return likelihood.Model{}, err
	}
	rates, err := c.SiteRates()
	if err != nil {
		return likelihood.Model{}, err
	}
	return likelihood.Model{
		Operator:        op,
		ClockRate:       c.Model.ClockRate,
		SiteRates:       rates,
		PInv:            c.Model.PInv,
		RootFrequencies: c.Model.RootFrequencies,
	}, nil
}

// EngineOptions translates the likelihood section into engine options.
func (c *Config) EngineOptions(log *zap.SugaredLogger) []likelihood.Option {
	l := c.Likelihood
	return []likelihood.Option{
		likelihood.WithLogger(log),
		likelihood.WithScaling(l.Scaling, l.ScalingDensity),
		likelihood.WithCompression(l.Compressed),
		likelihood.WithAmbiguousAsGap(l.AmbiguousAsGap),
		likelihood.WithUnknownAsGap(l.UnknownAsGap),
		likelihood.WithNumSites(l.NumSites),
		likelihood.WithMCMCMode(l.MCMCMode),
	}
}

// BranchPrior builds the configured branch-length prior.
func (c *Config) BranchPrior() (*mcmc.BranchLengthPrior, error) {
	kind, err := mcmc.ParsePriorKind(c.MCMC.BranchPrior)
	if err != nil {
		return nil, err
	}
	return mcmc.InitializePrior(kind, c.MCMC.BranchPriorMean)
}

// ChainConfig returns the chain settings.
func (c *Config) ChainConfig() mcmc.Config {
	cfg := mcmc.DefaultConfig()
	cfg.Generations = c.MCMC.Generations
	cfg.PrintFreq = c.MCMC.PrintFreq
	cfg.SampleFreq = c.MCMC.SampleFreq
	cfg.StepLength = c.MCMC.StepLength
	if c.MCMC.SamplePInv {
		cfg.PInvWeight = 0.1
	}
	return cfg
}
