// Package resample provides one-shot sample-rate conversion for offline
// analysis. Conversion is rational: the rate ratio is approximated by a
// small integer fraction and the signal is interpolated with a Kaiser
// windowed sinc kernel evaluated at the exact output instants.
package resample

import (
	"errors"
	"math"
)

// ErrInvalidRate indicates a non-positive or non-finite sample rate.
var ErrInvalidRate = errors.New("resample: invalid sample rate")

type config struct {
	halfTaps    int
	kaiserBeta  float64
	cutoffScale float64
	maxDen      int
}

// Option configures the conversion kernel.
type Option func(*config)

// WithHalfTaps overrides the one-sided kernel support in samples of the
// lower rate.
func WithHalfTaps(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.halfTaps = n
		}
	}
}

// WithKaiserBeta overrides the Kaiser window beta parameter.
func WithKaiserBeta(beta float64) Option {
	return func(cfg *config) {
		if beta >= 0 {
			cfg.kaiserBeta = beta
		}
	}
}

// WithCutoffScale overrides normalized cutoff scaling in range (0, 1].
// 1.0 equals the theoretical anti-aliasing cutoff.
func WithCutoffScale(v float64) Option {
	return func(cfg *config) {
		if v > 0 && v <= 1 {
			cfg.cutoffScale = v
		}
	}
}

// WithMaxDenominator caps denominator size for rate-ratio approximation.
func WithMaxDenominator(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxDen = n
		}
	}
}

func defaultConfig() config {
	return config{
		halfTaps:    16,
		kaiserBeta:  7.5,
		cutoffScale: 0.92,
		maxDen:      4096,
	}
}

// To converts x from rate fsIn to rate fsOut and returns the converted
// signal. An identity ratio returns a copy.
func To(x []float64, fsIn, fsOut float64, opts ...Option) ([]float64, error) {
	if !validRate(fsIn) || !validRate(fsOut) {
		return nil, ErrInvalidRate
	}

	cfg := defaultConfig()

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	up, down := ratio(fsOut/fsIn, cfg.maxDen)
	if up == down {
		out := make([]float64, len(x))
		copy(out, x)

		return out, nil
	}

	if len(x) == 0 {
		return nil, nil
	}

	return convert(x, up, down, cfg), nil
}

// Ratio returns the reduced integer fraction used for converting fsIn to
// fsOut under the default denominator cap.
func Ratio(fsIn, fsOut float64) (up, down int, err error) {
	if !validRate(fsIn) || !validRate(fsOut) {
		return 0, 0, ErrInvalidRate
	}

	up, down = ratio(fsOut/fsIn, defaultConfig().maxDen)

	return up, down, nil
}

func validRate(fs float64) bool {
	return fs > 0 && !math.IsNaN(fs) && !math.IsInf(fs, 0)
}

func convert(x []float64, up, down int, cfg config) []float64 {
	n := len(x)

	outLen := int(math.Round(float64(n) * float64(up) / float64(down)))
	if outLen < 1 {
		return nil
	}

	// Cutoff in cycles per input sample, tightened to the output Nyquist
	// when decimating. The kernel support stretches with the same factor
	// so the slower sinc still sees enough taps.
	fc := 0.5 * cfg.cutoffScale
	stretch := 1.0

	if down > up {
		stretch = float64(down) / float64(up)
		fc /= stretch
	}

	half := int(math.Ceil(float64(cfg.halfTaps) * stretch))
	halfWidth := float64(half)
	step := float64(down) / float64(up)

	out := make([]float64, outLen)

	for j := range out {
		t := float64(j) * step

		k0 := int(math.Ceil(t - halfWidth))
		if k0 < 0 {
			k0 = 0
		}

		k1 := int(math.Floor(t + halfWidth))
		if k1 > n-1 {
			k1 = n - 1
		}

		var acc, wsum float64

		for k := k0; k <= k1; k++ {
			d := float64(k) - t
			w := sinc(2*fc*d) * kaiser(d/halfWidth, cfg.kaiserBeta)

			acc += w * x[k]
			wsum += w
		}

		if wsum != 0 {
			out[j] = acc / wsum
		}
	}

	return out
}

// ratio approximates v by a reduced fraction with bounded denominator using
// continued-fraction convergents.
func ratio(v float64, maxDen int) (num, den int) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 1, 1
	}

	a0 := math.Floor(v)
	p0, q0 := 1.0, 0.0
	p1, q1 := a0, 1.0
	x := v

	for {
		frac := x - math.Floor(x)
		if frac == 0 {
			break
		}

		x = 1 / frac
		a := math.Floor(x)

		p2 := a*p1 + p0

		q2 := a*q1 + q0
		if q2 > float64(maxDen) {
			break
		}

		p0, q0 = p1, q1
		p1, q1 = p2, q2
	}

	num = int(math.Round(p1))

	den = int(math.Round(q1))
	if num <= 0 || den <= 0 {
		return 1, 1
	}

	g := gcd(num, den)

	return num / g, den / g
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}

	if a == 0 {
		return 1
	}

	return a
}

func sinc(x float64) float64 {
	if math.Abs(x) < 1e-12 {
		return 1
	}

	pix := math.Pi * x

	return math.Sin(pix) / pix
}

// kaiser evaluates the Kaiser window at normalized position u in [-1, 1].
func kaiser(u, beta float64) float64 {
	if u < -1 || u > 1 {
		return 0
	}

	if beta == 0 {
		return 1
	}

	return i0(beta*math.Sqrt(1-u*u)) / i0(beta)
}

// i0 is the zeroth-order modified Bessel function, by power series.
func i0(x float64) float64 {
	sum := 1.0
	term := 1.0

	x2 := (x * x) / 4
	for k := 1; k < 64; k++ {
		term *= x2 / float64(k*k)

		sum += term
		if term < 1e-16*sum {
			break
		}
	}

	return sum
}
