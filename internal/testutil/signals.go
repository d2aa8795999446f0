// Package testutil provides deterministic reverberation test signals and
// tolerance helpers shared by package tests.
package testutil

import (
	"math"
	"math/rand/v2"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/stat/distuv"
)

// decayTime60 converts an amplitude time constant into a -60 dB decay time.
const decayTime60 = 3 * math.Ln10

// DecayForRT60 returns the per-sample decay ratio whose envelope falls by
// 60 dB over rt60 seconds at the given sample rate.
func DecayForRT60(rt60, sampleRate float64) float64 {
	return math.Exp(-decayTime60 / (rt60 * sampleRate))
}

// DecayingNoise synthesizes decay^n scaled Gaussian fine structure with a
// fixed seed. sigma is the standard deviation of the underlying process.
func DecayingNoise(seed uint64, decay, sigma float64, length int) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: sigma, Src: rand.NewPCG(seed, seed)}

	out := make([]float64, length)
	for i := range out {
		out[i] = dist.Rand()
	}

	env := make([]float64, length)

	e := 1.0
	for i := range env {
		env[i] = e
		e *= decay
	}

	vecmath.MulBlockInPlace(out, env)

	return out
}

// DecayingChirp sweeps a sine from f0 to f1 Hz under an envelope that decays
// 60 dB over rt60 seconds.
func DecayingChirp(sampleRate, rt60, f0, f1, duration float64) []float64 {
	length := int(duration * sampleRate)
	rate := (f1 - f0) / (2 * duration)

	out := make([]float64, length)
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = math.Exp(-decayTime60*t/rt60) * math.Sin(2*math.Pi*(f0+rate*t)*t)
	}

	return out
}

// Sine generates a deterministic sine wave.
func Sine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)

	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}

	return out
}
