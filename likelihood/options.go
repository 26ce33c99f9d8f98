package likelihood

import "go.uber.org/zap"

// Options configures an Engine.
type Options struct {
	log *zap.SugaredLogger

	scaling        bool
	scalingDensity int
	compress       CompressOptions
	mcmcMode       bool
}

// Option is a functional option for NewEngine.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		log:            zap.NewNop().Sugar(),
		scaling:        true,
		scalingDensity: DefaultScalingDensity,
		compress:       CompressOptions{Compressed: true, NumSites: -1},
		mcmcMode:       true,
	}
}

// WithLogger sets the logger used for cache events.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *Options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithScaling enables or disables underflow rescaling; density selects the
// nodes rescaled (index % density == 0).
func WithScaling(enabled bool, density int) Option {
	return func(o *Options) {
		o.scaling = enabled
		if density > 0 {
			o.scalingDensity = density
		}
	}
}

// WithCompression controls merging of identical site columns.
func WithCompression(compressed bool) Option {
	return func(o *Options) { o.compress.Compressed = compressed }
}

func WithAmbiguousAsGap(v bool) Option {
	return func(o *Options) { o.compress.TreatAmbiguousAsGap = v }
}

func WithUnknownAsGap(v bool) Option {
	return func(o *Options) { o.compress.TreatUnknownAsGap = v }
}

// WithNumSites fixes the number of included sites the matrix must provide.
func WithNumSites(n int) Option {
	return func(o *Options) { o.compress.NumSites = n }
}

// WithMCMCMode keeps the partial likelihoods between evaluations. Without
// it every evaluation allocates the store and recomputes every node.
func WithMCMCMode(on bool) Option {
	return func(o *Options) { o.mcmcMode = on }
}
