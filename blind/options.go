package blind

import (
	"fmt"
	"math"
)

// Config holds every estimator parameter. Values are fixed at construction
// and shared read-only by all frames of a run.
type Config struct {
	// SampleRate is a fixed analysis rate in Hz. When non-zero, input at a
	// different rate is converted before framing. Zero adopts the caller's
	// rate as-is.
	SampleRate float64

	// FrameLength is the analysis window duration in seconds.
	FrameLength float64

	// Hop is the frame advance in seconds. Zero derives FrameLength/4.
	Hop float64

	// Percentile selects the quantile of the candidate distribution under
	// PolicyPercentile, in (0, 1).
	Percentile float64

	// Policy selects how candidates reduce to one estimate.
	Policy Policy

	// InitialDecay seeds the root search for the per-sample decay ratio.
	InitialDecay float64

	// InitialVariance is the starting fine-structure variance. The first
	// closed-form update replaces it.
	InitialVariance float64

	// DecayMin and DecayMax bound the decay ratio search. The lower bound
	// stays away from zero so the n-th frame weight remains representable.
	DecayMin float64
	DecayMax float64

	// VarianceMin and VarianceMax bound the fine-structure variance. The
	// defaults assume input normalized to roughly unit full scale.
	VarianceMin float64
	VarianceMax float64

	// BisectIter is the number of bisection steps bracketing the root.
	BisectIter int

	// MaxIter caps total solver iterations per frame, bisection included.
	MaxIter int

	// Tolerance is the convergence bound on the likelihood gradient.
	Tolerance float64

	// Workers sets the number of concurrent frame solvers. Values below
	// two solve frames sequentially.
	Workers int

	// Progress, when set, is called after each solved frame with the
	// number of frames done and the total. With Workers above one it may
	// be called from multiple goroutines.
	Progress func(done, total int)
}

// Option configures the estimator.
type Option func(*Config)

// DefaultConfig returns the standard configuration: 200 ms frames with 75%
// overlap, median aggregation, and the customary search ranges.
func DefaultConfig() Config {
	return Config{
		FrameLength:     0.2,
		Percentile:      0.5,
		Policy:          PolicyPercentile,
		InitialDecay:    0.9,
		InitialVariance: 0.5,
		DecayMin:        0.2,
		DecayMax:        0.99999999,
		VarianceMin:     0,
		VarianceMax:     1,
		BisectIter:      8,
		MaxIter:         1000,
		Tolerance:       0.1,
		Workers:         1,
	}
}

// WithSampleRate fixes the analysis rate in Hz; input at other rates is
// converted on entry.
func WithSampleRate(fs float64) Option {
	return func(cfg *Config) {
		cfg.SampleRate = fs
	}
}

// WithFrameLength sets the analysis window duration in seconds.
func WithFrameLength(seconds float64) Option {
	return func(cfg *Config) {
		cfg.FrameLength = seconds
	}
}

// WithHop sets the frame advance in seconds.
func WithHop(seconds float64) Option {
	return func(cfg *Config) {
		cfg.Hop = seconds
	}
}

// WithPercentile sets the candidate quantile used by PolicyPercentile.
func WithPercentile(q float64) Option {
	return func(cfg *Config) {
		cfg.Percentile = q
	}
}

// WithPolicy selects the aggregation policy.
func WithPolicy(p Policy) Option {
	return func(cfg *Config) {
		cfg.Policy = p
	}
}

// WithInitialDecay seeds the decay-ratio search.
func WithInitialDecay(a float64) Option {
	return func(cfg *Config) {
		cfg.InitialDecay = a
	}
}

// WithInitialVariance seeds the fine-structure variance.
func WithInitialVariance(v float64) Option {
	return func(cfg *Config) {
		cfg.InitialVariance = v
	}
}

// WithDecayRange bounds the decay-ratio search to [min, max].
func WithDecayRange(min, max float64) Option {
	return func(cfg *Config) {
		cfg.DecayMin = min
		cfg.DecayMax = max
	}
}

// WithVarianceRange bounds the fine-structure variance to [min, max].
func WithVarianceRange(min, max float64) Option {
	return func(cfg *Config) {
		cfg.VarianceMin = min
		cfg.VarianceMax = max
	}
}

// WithBisectIterations sets the bracketing step count.
func WithBisectIterations(n int) Option {
	return func(cfg *Config) {
		cfg.BisectIter = n
	}
}

// WithMaxIterations caps total solver iterations per frame.
func WithMaxIterations(n int) Option {
	return func(cfg *Config) {
		cfg.MaxIter = n
	}
}

// WithTolerance sets the convergence bound on the likelihood gradient.
func WithTolerance(e float64) Option {
	return func(cfg *Config) {
		cfg.Tolerance = e
	}
}

// WithWorkers sets the number of concurrent frame solvers.
func WithWorkers(n int) Option {
	return func(cfg *Config) {
		cfg.Workers = n
	}
}

// WithProgress installs a per-frame progress callback.
func WithProgress(fn func(done, total int)) Option {
	return func(cfg *Config) {
		cfg.Progress = fn
	}
}

func (c Config) normalized() Config {
	if c.Hop == 0 {
		c.Hop = c.FrameLength / 4
	}

	if c.Workers < 1 {
		c.Workers = 1
	}

	return c
}

//nolint:cyclop
func (c Config) validate() error {
	if !(c.FrameLength > 0) || math.IsInf(c.FrameLength, 0) {
		return fmt.Errorf("blind: frame length %v must be positive: %w", c.FrameLength, ErrInvalidConfig)
	}

	if !(c.Hop > 0) || math.IsInf(c.Hop, 0) {
		return fmt.Errorf("blind: hop %v must be positive: %w", c.Hop, ErrInvalidConfig)
	}

	if c.SampleRate < 0 || math.IsNaN(c.SampleRate) || math.IsInf(c.SampleRate, 0) {
		return fmt.Errorf("blind: sample rate %v must be zero or positive: %w", c.SampleRate, ErrInvalidConfig)
	}

	if !(c.Percentile > 0 && c.Percentile < 1) {
		return fmt.Errorf("blind: percentile %v outside (0, 1): %w", c.Percentile, ErrInvalidConfig)
	}

	if !(c.DecayMin > 0 && c.DecayMin < c.DecayMax && c.DecayMax <= 1) {
		return fmt.Errorf("blind: decay range [%v, %v] must satisfy 0 < min < max <= 1: %w",
			c.DecayMin, c.DecayMax, ErrInvalidConfig)
	}

	if !(c.InitialDecay > c.DecayMin && c.InitialDecay < c.DecayMax) {
		return fmt.Errorf("blind: initial decay %v outside (%v, %v): %w",
			c.InitialDecay, c.DecayMin, c.DecayMax, ErrInvalidConfig)
	}

	if !(c.VarianceMin >= 0 && c.VarianceMin < c.VarianceMax) || math.IsInf(c.VarianceMax, 0) {
		return fmt.Errorf("blind: variance range [%v, %v] must satisfy 0 <= min < max: %w",
			c.VarianceMin, c.VarianceMax, ErrInvalidConfig)
	}

	if !(c.InitialVariance > 0) || c.InitialVariance > c.VarianceMax {
		return fmt.Errorf("blind: initial variance %v outside (0, %v]: %w",
			c.InitialVariance, c.VarianceMax, ErrInvalidConfig)
	}

	if c.BisectIter < 1 {
		return fmt.Errorf("blind: bisection iterations %d must be at least 1: %w", c.BisectIter, ErrInvalidConfig)
	}

	if c.MaxIter <= c.BisectIter {
		return fmt.Errorf("blind: iteration cap %d must exceed bisection iterations %d: %w",
			c.MaxIter, c.BisectIter, ErrInvalidConfig)
	}

	if !(c.Tolerance > 0) || math.IsInf(c.Tolerance, 0) {
		return fmt.Errorf("blind: tolerance %v must be positive: %w", c.Tolerance, ErrInvalidConfig)
	}

	return nil
}
