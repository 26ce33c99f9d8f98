package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes one run: the inputs, the substitution model, the
// likelihood settings and the chain.
type Config struct {
	Tree      string `yaml:"tree"`
	Alignment string `yaml:"alignment"`

	// Alphabet is "dna" or "standard:K".
	Alphabet string `yaml:"alphabet"`

	Model      Model      `yaml:"model"`
	Likelihood Likelihood `yaml:"likelihood"`
	MCMC       MCMC       `yaml:"mcmc"`
	Output     Output     `yaml:"output"`
}

// Model selects the transition operator and the rate heterogeneity.
type Model struct {
	// Kind is one of jc, hky, gtr or mk.
	Kind        string    `yaml:"kind"`
	Kappa       float64   `yaml:"kappa"`
	Frequencies []float64 `yaml:"frequencies"`

	// ExchangeRates are the GTR rates in the order AC, AG, AT, CG, CT, GT.
	ExchangeRates   []float64 `yaml:"exchange_rates"`
	GammaAlpha      float64   `yaml:"gamma_alpha"`
	GammaCategories int       `yaml:"gamma_categories"`
	GammaMedian     bool      `yaml:"gamma_median"`
	PInv            float64   `yaml:"pinv"`
	ClockRate       float64   `yaml:"clock_rate"`
	RootFrequencies []float64 `yaml:"root_frequencies"`
}

// Likelihood holds the engine options.
type Likelihood struct {
	Scaling        bool `yaml:"scaling"`
	ScalingDensity int  `yaml:"scaling_density"`
	Compressed     bool `yaml:"compressed"`
	AmbiguousAsGap bool `yaml:"ambiguous_as_gap"`
	UnknownAsGap   bool `yaml:"unknown_as_gap"`
	NumSites       int  `yaml:"num_sites"`
	Processes      int  `yaml:"processes"`
	MCMCMode       bool `yaml:"mcmc_mode"`
}

// MCMC holds the chain settings.
type MCMC struct {
	Generations     int     `yaml:"generations"`
	PrintFreq       int     `yaml:"print_freq"`
	SampleFreq      int     `yaml:"sample_freq"`
	Seed            uint64  `yaml:"seed"`
	BranchPrior     string  `yaml:"branch_prior"`
	BranchPriorMean float64 `yaml:"branch_prior_mean"`
	StepLength      float64 `yaml:"step_length"`
	RandomStart     bool    `yaml:"random_start"`
	SamplePInv      bool    `yaml:"sample_pinv"`
}

// Output names the files a run writes.
type Output struct {
	Prefix string `yaml:"prefix"`
}

// TraceDB returns the path of the sqlite trace.
func (o Output) TraceDB() string { return o.Prefix + ".db" }

// SummaryFile returns the path of the JSON run summary.
func (o Output) SummaryFile() string { return o.Prefix + ".json" }

//Default will return the configuration used for every unset field
func Default() Config {
	return Config{
		Alphabet: "dna",
		Model: Model{
			Kind:            "hky",
			Kappa:           2,
			GammaAlpha:      0.5,
			GammaCategories: 4,
		},
		Likelihood: Likelihood{
			Scaling:        true,
			ScalingDensity: 1,
			Compressed:     true,
			NumSites:       -1,
			Processes:      1,
			MCMCMode:       true,
		},
		MCMC: MCMC{
			Generations:     100000,
			PrintFreq:       10000,
			SampleFreq:      1000,
			Seed:            1,
			BranchPrior:     "exponential",
			BranchPriorMean: 0.1,
			StepLength:      0.1,
		},
		Output: Output{Prefix: "ctmcmc"},
	}
}

//Load will read a YAML configuration, filling unset fields from Default
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML on top of Default. Unknown keys are rejected.
func Parse(b []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return c, c.Validate()
}

// Validate checks the settings that do not need the input files.
func (c *Config) Validate() error {
	if _, err := c.numStates(); err != nil {
		return err
	}
	switch strings.ToLower(c.Model.Kind) {
	case "jc", "hky", "gtr", "mk":
	default:
		return fmt.Errorf("%w: model kind %q", ErrInvalid, c.Model.Kind)
	}
	if c.Model.PInv < 0 || c.Model.PInv > 1 {
		return fmt.Errorf("%w: pinv %g", ErrInvalid, c.Model.PInv)
	}
	if c.Model.GammaCategories < 0 {
		return fmt.Errorf("%w: %d gamma categories", ErrInvalid, c.Model.GammaCategories)
	}
	if c.Likelihood.ScalingDensity < 1 {
		return fmt.Errorf("%w: scaling density %d", ErrInvalid, c.Likelihood.ScalingDensity)
	}
	if c.Likelihood.Processes < 1 {
		return fmt.Errorf("%w: %d processes", ErrInvalid, c.Likelihood.Processes)
	}
	if c.MCMC.Generations < 0 || c.MCMC.PrintFreq < 1 || c.MCMC.SampleFreq < 1 {
		return fmt.Errorf("%w: generations %d, print %d, sample %d", ErrInvalid,
			c.MCMC.Generations, c.MCMC.PrintFreq, c.MCMC.SampleFreq)
	}
	if c.MCMC.StepLength <= 0 {
		return fmt.Errorf("%w: step length %g", ErrInvalid, c.MCMC.StepLength)
	}
	if c.Output.Prefix == "" {
		return fmt.Errorf("%w: empty output prefix", ErrInvalid)
	}
	return nil
}
