// Package blind estimates room reverberation time (RT60) directly from a
// recorded signal, without access to an impulse response.
//
// The recording is modeled per frame as a deterministic exponential
// envelope over stationary Gaussian fine structure, y[n] = a^n * x[n].
// Each frame is fitted by maximum likelihood: bisection brackets a sign
// change of the likelihood gradient in the decay ratio a, Newton-Raphson
// refines it, and the fine-structure variance follows in closed form from
// each accepted a. Converged frames map to RT60 candidates through
// tau = -1/ln(a) and the -60 dB decay convention, and a robust aggregation
// policy (percentile or first dominant mode) reduces the candidate
// population to one value. Frames that fail to converge are expected and
// dropped silently.
//
// Input is assumed normalized to roughly unit full scale; the default
// variance range admits nothing louder.
//
// # Usage
//
//	est, err := blind.New(blind.WithFrameLength(0.2))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	rt60, err := est.Estimate(signal, 16000)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("RT60 = %.2f s\n", rt60)
//
// EstimateDetailed additionally reports every contributing frame, for
// decay traces and histograms.
package blind
