// Package bands splits signals into fractional-octave bands for per-band
// reverberation analysis. Band placement follows the IEC 61260 base-10
// system; the split itself is a zero-phase spectral masking pass, so band
// outputs carry no group delay against each other.
package bands

import (
	"errors"
	"math"
)

// octaveRatio is G = 10^(3/10) per IEC 61260.
var octaveRatio = math.Pow(10, 0.3)

const (
	defaultLowerFreq  = 20.0
	defaultUpperFreq  = 20000.0
	defaultTransition = 0.1
)

var (
	// ErrInvalidFraction indicates a fractional-octave denominator below 1.
	ErrInvalidFraction = errors.New("bands: fraction must be at least 1")
	// ErrInvalidRate indicates a non-positive sample rate.
	ErrInvalidRate = errors.New("bands: sample rate must be positive")
	// ErrNoBands indicates that no band fits the requested range below
	// Nyquist.
	ErrNoBands = errors.New("bands: no band fits the requested range")
	// ErrEmptyInput indicates an empty signal.
	ErrEmptyInput = errors.New("bands: empty input")
)

// Band is one fractional-octave band. Low and High are the nominal band
// edges; Center is their geometric mean.
type Band struct {
	Center float64
	Low    float64
	High   float64
}

type config struct {
	lowerHz    float64
	upperHz    float64
	transition float64
}

func defaultConfig() config {
	return config{
		lowerHz:    defaultLowerFreq,
		upperHz:    defaultUpperFreq,
		transition: defaultTransition,
	}
}

// Option configures band construction and splitting.
type Option func(*config)

// WithFrequencyRange restricts band centers to [lower, upper] Hz.
// Invalid ranges are ignored.
func WithFrequencyRange(lower, upper float64) Option {
	return func(cfg *config) {
		if lower > 0 && upper > lower {
			cfg.lowerHz = lower
			cfg.upperHz = upper
		}
	}
}

// WithTransition sets the relative width of the raised-cosine band flanks,
// as a fraction of the edge frequency. Values outside [0, 0.3] are ignored.
func WithTransition(t float64) Option {
	return func(cfg *config) {
		if t >= 0 && t <= 0.3 {
			cfg.transition = t
		}
	}
}

// Octave returns the fractional-octave bands whose centers lie inside the
// configured frequency range and whose upper edges clear Nyquist. fraction
// selects the bandwidth: 1 gives full octaves, 3 gives third octaves.
//
// Centers follow f_k = 1000 * G^(k/N) with G = 10^(3/10); edges sit at
// f_k * G^(+-1/(2N)).
func Octave(fraction int, sampleRate float64, opts ...Option) ([]Band, error) {
	if fraction < 1 {
		return nil, ErrInvalidFraction
	}

	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, ErrInvalidRate
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	n := float64(fraction)
	halfBW := math.Pow(octaveRatio, 1/(2*n))
	nyquist := sampleRate / 2

	kMin := int(math.Ceil(n * math.Log(cfg.lowerHz/1000) / math.Log(octaveRatio)))
	kMax := int(math.Floor(n * math.Log(cfg.upperHz/1000) / math.Log(octaveRatio)))

	out := make([]Band, 0, kMax-kMin+1)

	for k := kMin; k <= kMax; k++ {
		fc := 1000 * math.Pow(octaveRatio, float64(k)/n)

		b := Band{Center: fc, Low: fc / halfBW, High: fc * halfBW}
		if b.High >= nyquist || b.Low <= 0 {
			continue
		}

		out = append(out, b)
	}

	if len(out) == 0 {
		return nil, ErrNoBands
	}

	return out, nil
}
