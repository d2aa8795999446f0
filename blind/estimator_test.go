package blind

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/cwbudde/algo-reverb/internal/testutil"
)

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name string
		opts []Option
	}{
		{"zero frame length", []Option{WithFrameLength(0)}},
		{"negative frame length", []Option{WithFrameLength(-0.1)}},
		{"infinite frame length", []Option{WithFrameLength(math.Inf(1))}},
		{"negative hop", []Option{WithHop(-0.01)}},
		{"negative sample rate", []Option{WithSampleRate(-8000)}},
		{"nan sample rate", []Option{WithSampleRate(math.NaN())}},
		{"percentile zero", []Option{WithPercentile(0)}},
		{"percentile one", []Option{WithPercentile(1)}},
		{"percentile above one", []Option{WithPercentile(1.5)}},
		{"inverted decay range", []Option{WithDecayRange(0.9, 0.5)}},
		{"decay range above one", []Option{WithDecayRange(0.5, 1.5)}},
		{"zero decay min", []Option{WithDecayRange(0, 0.9)}},
		{"initial decay outside range", []Option{WithInitialDecay(0.1)}},
		{"zero initial variance", []Option{WithInitialVariance(0)}},
		{"initial variance above max", []Option{WithInitialVariance(2)}},
		{"negative variance min", []Option{WithVarianceRange(-1, 1)}},
		{"empty variance range", []Option{WithVarianceRange(1, 1)}},
		{"zero bisection steps", []Option{WithBisectIterations(0)}},
		{"cap below bisection", []Option{WithMaxIterations(5)}},
		{"zero tolerance", []Option{WithTolerance(0)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.opts...)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNewAcceptsFlatEnvelopeBound(t *testing.T) {
	// A decay ceiling of exactly one is a legal range: frames landing
	// there carry no decay and are dropped, not rejected up front.
	if _, err := New(WithDecayRange(0.5, 1)); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := e.Config()
	if cfg.FrameLength != 0.2 {
		t.Fatalf("frame length = %v, want 0.2", cfg.FrameLength)
	}

	if cfg.Hop != 0.05 {
		t.Fatalf("hop = %v, want a quarter frame", cfg.Hop)
	}

	if cfg.Policy != PolicyPercentile || cfg.Percentile != 0.5 {
		t.Fatalf("default aggregation = %v at %v, want median", cfg.Policy, cfg.Percentile)
	}
}

func TestEstimateEndToEnd(t *testing.T) {
	const (
		fs     = 16000.0
		rt60   = 0.4
		length = 32000
	)

	decay := testutil.DecayForRT60(rt60, fs)
	x := testutil.DecayingNoise(21, decay, 0.4, length)

	e, err := New(WithFrameLength(0.05), WithHop(0.025))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := e.EstimateDetailed(x, fs)
	if err != nil {
		t.Fatalf("EstimateDetailed: %v", err)
	}

	testutil.RequireRelNear(t, "rt60", res.RT60, rt60, 0.2)

	if res.SampleRate != fs {
		t.Fatalf("analysis rate = %v, want %v", res.SampleRate, fs)
	}

	wantFrames := (length-800)/400 + 1
	if res.FramesTotal != wantFrames {
		t.Fatalf("frames = %d, want %d", res.FramesTotal, wantFrames)
	}

	if res.FramesConverged < wantFrames-5 {
		t.Fatalf("only %d of %d frames converged", res.FramesConverged, res.FramesTotal)
	}

	if len(res.Candidates) != res.FramesConverged {
		t.Fatalf("candidate count %d != converged count %d", len(res.Candidates), res.FramesConverged)
	}

	prev := math.Inf(-1)
	for i, c := range res.Candidates {
		if c.Time <= prev || c.Time >= 2 {
			t.Fatalf("candidate %d at %v s out of temporal order", i, c.Time)
		}

		prev = c.Time

		if !(c.RT60 > 0) || math.IsInf(c.RT60, 0) {
			t.Fatalf("candidate %d rt60 = %v", i, c.RT60)
		}

		if !(c.A > 0 && c.A < 1) || c.Sigma2 < 0 {
			t.Fatalf("candidate %d fit a = %v, sigma2 = %v", i, c.A, c.Sigma2)
		}
	}

	short, err := e.Estimate(x, fs)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	if short != res.RT60 {
		t.Fatalf("Estimate = %v, EstimateDetailed = %v", short, res.RT60)
	}
}

func TestEstimateMonotonicity(t *testing.T) {
	const fs = 16000.0

	e, err := New(WithFrameLength(0.05), WithHop(0.025))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	estimate := func(rt60 float64) float64 {
		decay := testutil.DecayForRT60(rt60, fs)
		x := testutil.DecayingNoise(33, decay, 0.5, 24000)

		got, err := e.Estimate(x, fs)
		if err != nil {
			t.Fatalf("Estimate(rt60 %v): %v", rt60, err)
		}

		return got
	}

	fast := estimate(0.3)
	slow := estimate(0.8)

	if !(slow > fast) {
		t.Fatalf("slower decay gave %v s, faster gave %v s", slow, fast)
	}

	testutil.RequireRelNear(t, "fast rt60", fast, 0.3, 0.2)
	testutil.RequireRelNear(t, "slow rt60", slow, 0.8, 0.2)
}

func TestEstimateShortInput(t *testing.T) {
	e, err := New(WithFrameLength(0.05))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, n := range []int{0, 1, 100, 799} {
		_, err := e.Estimate(make([]float64, n), 16000)
		if !errors.Is(err, ErrInsufficientData) {
			t.Fatalf("%d samples: err = %v, want ErrInsufficientData", n, err)
		}
	}
}

func TestEstimateInvalidRate(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	x := make([]float64, 8000)

	for _, fs := range []float64{0, -16000, math.NaN(), math.Inf(1)} {
		_, err := e.Estimate(x, fs)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("rate %v: err = %v, want ErrInvalidConfig", fs, err)
		}
	}
}

func TestEstimateNoConvergingFrames(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Every frame of a growing envelope leaves the gradient unbracketed.
	x := testutil.DecayingNoise(44, 1.004, 0.5, 8000)

	_, err = e.Estimate(x, 16000)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestEstimateFlatSignalStaysFinite(t *testing.T) {
	// Stationary noise under a decay ceiling of one: frames either fail
	// to converge or land just below the ceiling. Frames pinned at one
	// are dropped, so the result is never an infinite decay time.
	e, err := New(WithDecayRange(0.5, 1), WithFrameLength(0.05), WithHop(0.05))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	x := testutil.DecayingNoise(111, 1.0, 0.5, 16000)

	got, err := e.Estimate(x, 16000)
	if err != nil {
		if !errors.Is(err, ErrInsufficientData) {
			t.Fatalf("err = %v, want ErrInsufficientData", err)
		}

		return
	}

	if !(got > 0) || math.IsInf(got, 0) || math.IsNaN(got) {
		t.Fatalf("flat signal produced rt60 %v", got)
	}
}

func TestEstimateWorkersMatchSerial(t *testing.T) {
	const fs = 16000.0

	decay := testutil.DecayForRT60(0.5, fs)
	x := testutil.DecayingNoise(55, decay, 0.3, 24000)

	serial, err := New(WithFrameLength(0.05), WithHop(0.025), WithWorkers(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	parallel, err := New(WithFrameLength(0.05), WithHop(0.025), WithWorkers(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want, err := serial.EstimateDetailed(x, fs)
	if err != nil {
		t.Fatalf("serial: %v", err)
	}

	got, err := parallel.EstimateDetailed(x, fs)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}

	if got.RT60 != want.RT60 {
		t.Fatalf("parallel rt60 %v != serial %v", got.RT60, want.RT60)
	}

	if got.FramesTotal != want.FramesTotal || got.FramesConverged != want.FramesConverged {
		t.Fatalf("parallel frame counts %d/%d != serial %d/%d",
			got.FramesConverged, got.FramesTotal, want.FramesConverged, want.FramesTotal)
	}

	if len(got.Candidates) != len(want.Candidates) {
		t.Fatalf("candidate counts differ: %d vs %d", len(got.Candidates), len(want.Candidates))
	}

	for i := range got.Candidates {
		if got.Candidates[i] != want.Candidates[i] {
			t.Fatalf("candidate %d differs: %+v vs %+v", i, got.Candidates[i], want.Candidates[i])
		}
	}
}

func TestEstimateResamples(t *testing.T) {
	const rt60 = 0.5

	decay := testutil.DecayForRT60(rt60, 48000)
	x := testutil.DecayingNoise(66, decay, 0.3, 72000)

	e, err := New(WithSampleRate(16000), WithFrameLength(0.05), WithHop(0.025))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := e.EstimateDetailed(x, 48000)
	if err != nil {
		t.Fatalf("EstimateDetailed: %v", err)
	}

	if res.SampleRate != 16000 {
		t.Fatalf("analysis rate = %v, want 16000", res.SampleRate)
	}

	testutil.RequireRelNear(t, "rt60", res.RT60, rt60, 0.25)
}

func TestEstimateProgressSerial(t *testing.T) {
	const fs = 16000.0

	decay := testutil.DecayForRT60(0.4, fs)
	x := testutil.DecayingNoise(77, decay, 0.3, 16000)

	var calls [][2]int

	e, err := New(
		WithFrameLength(0.05),
		WithHop(0.025),
		WithProgress(func(done, total int) {
			calls = append(calls, [2]int{done, total})
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := e.EstimateDetailed(x, fs)
	if err != nil {
		t.Fatalf("EstimateDetailed: %v", err)
	}

	if len(calls) != res.FramesTotal {
		t.Fatalf("progress called %d times for %d frames", len(calls), res.FramesTotal)
	}

	for i, c := range calls {
		if c[0] != i+1 || c[1] != res.FramesTotal {
			t.Fatalf("call %d reported %d/%d", i, c[0], c[1])
		}
	}
}

func TestEstimateProgressParallel(t *testing.T) {
	const fs = 16000.0

	decay := testutil.DecayForRT60(0.4, fs)
	x := testutil.DecayingNoise(88, decay, 0.3, 16000)

	var (
		mu      sync.Mutex
		count   int
		maxDone int
	)

	e, err := New(
		WithFrameLength(0.05),
		WithHop(0.025),
		WithWorkers(4),
		WithProgress(func(done, total int) {
			mu.Lock()
			defer mu.Unlock()

			count++
			if done > maxDone {
				maxDone = done
			}
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := e.EstimateDetailed(x, fs)
	if err != nil {
		t.Fatalf("EstimateDetailed: %v", err)
	}

	if count != res.FramesTotal || maxDone != res.FramesTotal {
		t.Fatalf("progress saw %d calls with max %d, want %d of %d",
			count, maxDone, res.FramesTotal, res.FramesTotal)
	}
}

func TestEstimatorReuse(t *testing.T) {
	const fs = 16000.0

	decay := testutil.DecayForRT60(0.6, fs)
	x := testutil.DecayingNoise(99, decay, 0.3, 16000)

	e, err := New(WithFrameLength(0.05))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first, err := e.Estimate(x, fs)
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	second, err := e.Estimate(x, fs)
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if first != second {
		t.Fatalf("repeated runs differ: %v vs %v", first, second)
	}
}

func TestDecayTime(t *testing.T) {
	// tau of 1/ln(10^3) seconds reaches -60 dB in exactly one second.
	tau := 1 / (3 * math.Ln10)
	testutil.RequireNear(t, "rt60", DecayTime(60, tau), 1, 1e-12)

	testutil.RequireNear(t, "rt30", DecayTime(30, tau), 0.5, 1e-12)

	if DecayTime(60, 0) != 0 {
		t.Fatal("zero tau must give zero decay time")
	}
}
