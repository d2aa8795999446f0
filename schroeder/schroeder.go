// Package schroeder derives reverberation times from a measured impulse
// response by backward integration of its energy decay.
//
// It is the reference counterpart to package blind: where blind recovers
// RT60 from reverberant audio alone, this package computes it directly
// when an impulse response is available, which makes it the natural
// cross-check for blind estimates.
package schroeder

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrEmptyInput indicates an empty impulse response.
	ErrEmptyInput = errors.New("schroeder: empty impulse response")
	// ErrInvalidRate indicates a non-positive sample rate.
	ErrInvalidRate = errors.New("schroeder: sample rate must be positive")
	// ErrNoDecay indicates that the decay curve never spans a usable
	// fitting range.
	ErrNoDecay = errors.New("schroeder: decay range not reached")
)

// Times collects decay times fitted on the integrated energy decay curve,
// each extrapolated to 60 dB. RT60 prefers the T30 fit and falls back to
// T20. A fit whose dB window the curve never reaches is zero.
type Times struct {
	// RT60 is the reverberation time in seconds.
	RT60 float64
	// EDT is the early decay time, fitted over 0 to -10 dB.
	EDT float64
	// T20 is fitted over -5 to -25 dB.
	T20 float64
	// T30 is fitted over -5 to -35 dB.
	T30 float64
}

// Analyze trims h at its energy peak, integrates the remaining tail and
// fits the standard decay times. fs is the sample rate of h in Hz.
func Analyze(h []float64, fs float64) (Times, error) {
	if len(h) == 0 {
		return Times{}, ErrEmptyInput
	}

	if !(fs > 0) || math.IsInf(fs, 0) {
		return Times{}, fmt.Errorf("schroeder: sample rate %v: %w", fs, ErrInvalidRate)
	}

	curve, err := DecayCurve(h[peakIndex(h):])
	if err != nil {
		return Times{}, err
	}

	t := Times{
		EDT: fitDecay(curve, fs, 0, -10),
		T20: fitDecay(curve, fs, -5, -25),
		T30: fitDecay(curve, fs, -5, -35),
	}

	switch {
	case t.T30 > 0:
		t.RT60 = t.T30
	case t.T20 > 0:
		t.RT60 = t.T20
	default:
		return Times{}, ErrNoDecay
	}

	return t, nil
}

// DecayCurve returns the backward-integrated energy decay of h in dB
// relative to the total energy. Zero-energy tails floor at -200 dB.
func DecayCurve(h []float64) ([]float64, error) {
	if len(h) == 0 {
		return nil, ErrEmptyInput
	}

	curve := make([]float64, len(h))

	// Summing from the quiet end keeps the small tail contributions from
	// drowning in the head energy.
	sum := 0.0
	for i := len(h) - 1; i >= 0; i-- {
		sum += h[i] * h[i]
		curve[i] = sum
	}

	total := curve[0]
	if total <= 0 {
		return nil, fmt.Errorf("schroeder: impulse response carries no energy: %w", ErrNoDecay)
	}

	for i, v := range curve {
		if ratio := v / total; ratio > 0 {
			curve[i] = 10 * math.Log10(ratio)
		} else {
			curve[i] = -200
		}
	}

	return curve, nil
}

// fitDecay regresses curve level against time over [startDB, endDB] and
// extrapolates the fitted slope to 60 dB of decay. Zero when the curve
// never spans the window or does not fall across it.
func fitDecay(curve []float64, fs, startDB, endDB float64) float64 {
	start, end := -1, -1

	for i, v := range curve {
		if start < 0 && v <= startDB {
			start = i
		}

		if start >= 0 && v <= endDB {
			end = i
			break
		}
	}

	if start < 0 || end <= start {
		return 0
	}

	n := end - start + 1
	seconds := make([]float64, n)
	level := make([]float64, n)

	for i := range n {
		seconds[i] = float64(i) / fs
		level[i] = curve[start+i]
	}

	_, slope := stat.LinearRegression(seconds, level, nil, false)
	if slope >= 0 {
		return 0
	}

	return -60 / slope
}

func peakIndex(h []float64) int {
	idx := 0
	peak := 0.0

	for i, v := range h {
		if a := math.Abs(v); a > peak {
			peak = a
			idx = i
		}
	}

	return idx
}
