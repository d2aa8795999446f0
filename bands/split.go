package bands

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// Split decomposes x into one signal per band by masking its spectrum.
// Adjacent fractional-octave bands share their edge frequency, and the
// raised-cosine flanks of neighbors are complementary there, so summing
// adjacent band outputs reconstructs the spectrum between their centers.
//
// The result holds one slice of len(x) samples per band, in band order.
func Split(x []float64, sampleRate float64, list []Band, opts ...Option) ([][]float64, error) {
	if len(x) == 0 {
		return nil, ErrEmptyInput
	}

	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, ErrInvalidRate
	}

	if len(list) == 0 {
		return nil, ErrNoBands
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	fftSize := nextPowerOf2(len(x))

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("bands: fft plan: %w", err)
	}

	padded := make([]complex128, fftSize)
	for i, v := range x {
		padded[i] = complex(v, 0)
	}

	spectrum := make([]complex128, fftSize)
	if err := plan.Forward(spectrum, padded); err != nil {
		return nil, fmt.Errorf("bands: forward fft: %w", err)
	}

	re := make([]float64, fftSize)
	im := make([]float64, fftSize)

	for i, c := range spectrum {
		re[i] = real(c)
		im[i] = imag(c)
	}

	var (
		mask     = make([]float64, fftSize)
		reMasked = make([]float64, fftSize)
		imMasked = make([]float64, fftSize)
		masked   = make([]complex128, fftSize)
		restored = make([]complex128, fftSize)
	)

	out := make([][]float64, len(list))

	for bi, band := range list {
		fillMask(mask, band, sampleRate, fftSize, cfg.transition)

		vecmath.MulBlock(reMasked, re, mask)
		vecmath.MulBlock(imMasked, im, mask)

		for i := range masked {
			masked[i] = complex(reMasked[i], imMasked[i])
		}

		if err := plan.Inverse(restored, masked); err != nil {
			return nil, fmt.Errorf("bands: inverse fft: %w", err)
		}

		y := make([]float64, len(x))
		for i := range y {
			y[i] = real(restored[i])
		}

		out[bi] = y
	}

	return out, nil
}

// fillMask writes the band's spectral weight for every FFT bin. The mask is
// conjugate-symmetric so the masked spectrum stays that of a real signal.
func fillMask(mask []float64, band Band, sampleRate float64, fftSize int, transition float64) {
	binHz := sampleRate / float64(fftSize)
	half := fftSize / 2

	for k := 0; k <= half; k++ {
		m := bandWeight(float64(k)*binHz, band, transition)

		mask[k] = m
		if k > 0 && k < half {
			mask[fftSize-k] = m
		}
	}
}

// bandWeight evaluates the raised-cosine band flank at frequency f. The
// rise spans [Low*(1-t), Low*(1+t)] and the fall mirrors it around High,
// so the fall of one band and the rise of its upper neighbor sum to one
// across their shared edge.
func bandWeight(f float64, band Band, transition float64) float64 {
	if transition == 0 {
		if f >= band.Low && f < band.High {
			return 1
		}

		return 0
	}

	return edgeRise(f, band.Low, transition) * (1 - edgeRise(f, band.High, transition))
}

func edgeRise(f, edge, transition float64) float64 {
	lo := edge * (1 - transition)
	hi := edge * (1 + transition)

	switch {
	case f <= lo:
		return 0
	case f >= hi:
		return 1
	}

	s := math.Sin(math.Pi / 2 * (f - lo) / (hi - lo))

	return s * s
}

func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}

	p := 1
	for p < n {
		p *= 2
	}

	return p
}
