package blind

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-reverb/frame"
	"github.com/cwbudde/algo-reverb/resample"
)

var (
	// ErrInvalidConfig indicates a rejected configuration value.
	ErrInvalidConfig = errors.New("blind: invalid configuration")
	// ErrInsufficientData indicates that no frame produced a usable
	// candidate, or that the input is shorter than one frame.
	ErrInsufficientData = errors.New("blind: insufficient data")
)

// Candidate is one converged frame's contribution to the estimate.
type Candidate struct {
	// Time is the frame start in seconds at the analysis rate.
	Time float64
	// RT60 is the frame's reverberation time in seconds.
	RT60 float64
	// A is the fitted per-sample decay ratio.
	A float64
	// Sigma2 is the fitted fine-structure variance.
	Sigma2 float64
}

// Result carries the aggregate estimate together with per-frame
// diagnostics in temporal order.
type Result struct {
	// RT60 is the aggregated reverberation time in seconds.
	RT60 float64
	// SampleRate is the rate the analysis ran at.
	SampleRate float64
	// FramesTotal is the number of frames examined.
	FramesTotal int
	// FramesConverged is the number of frames that contributed a
	// candidate.
	FramesConverged int
	// Candidates lists the contributing frames in temporal order.
	Candidates []Candidate
}

// Estimator derives RT60 from a recorded signal without an impulse
// response. It is reentrant; concurrent calls share only the immutable
// configuration.
type Estimator struct {
	cfg Config
}

// New creates an estimator. Configuration problems are reported here,
// before any signal is touched.
func New(opts ...Option) (*Estimator, error) {
	cfg := DefaultConfig()

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	cfg = cfg.normalized()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Estimator{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (e *Estimator) Config() Config {
	return e.cfg
}

// Estimate returns the RT60 of x in seconds. fs is the rate of x in Hz.
func (e *Estimator) Estimate(x []float64, fs float64) (float64, error) {
	res, err := e.EstimateDetailed(x, fs)
	if err != nil {
		return 0, err
	}

	return res.RT60, nil
}

// EstimateDetailed returns the RT60 of x together with the per-frame
// candidates behind it.
func (e *Estimator) EstimateDetailed(x []float64, fs float64) (Result, error) {
	if !(fs > 0) || math.IsInf(fs, 0) {
		return Result{}, fmt.Errorf("blind: sample rate %v must be positive: %w", fs, ErrInvalidConfig)
	}

	rate := fs

	if e.cfg.SampleRate > 0 && fs != e.cfg.SampleRate {
		conv, err := resample.To(x, fs, e.cfg.SampleRate)
		if err != nil {
			return Result{}, fmt.Errorf("blind: rate matching: %w", err)
		}

		x = conv
		rate = e.cfg.SampleRate
	}

	length := int(math.Round(e.cfg.FrameLength * rate))
	hop := int(math.Round(e.cfg.Hop * rate))

	if length < 2 || hop < 1 {
		return Result{}, fmt.Errorf("blind: frame of %v s and hop of %v s collapse at %v Hz: %w",
			e.cfg.FrameLength, e.cfg.Hop, rate, ErrInvalidConfig)
	}

	sl, err := frame.NewSlicer(length, hop)
	if err != nil {
		return Result{}, fmt.Errorf("blind: %w", err)
	}

	total := sl.Count(len(x))
	if total == 0 {
		return Result{}, fmt.Errorf("blind: %d samples hold no complete %d sample frame: %w",
			len(x), length, ErrInsufficientData)
	}

	estimates := e.solveAll(x, sl, length, total)

	candidates := make([]Candidate, 0, total)

	for i, est := range estimates {
		// Frames pinned at a flat envelope carry no decay information.
		if !est.Converged || est.A >= 1 {
			continue
		}

		tau := -1 / math.Log(est.A) / rate
		candidates = append(candidates, Candidate{
			Time:   float64(sl.Start(i)) / rate,
			RT60:   DecayTime(60, tau),
			A:      est.A,
			Sigma2: est.Sigma2,
		})
	}

	if len(candidates) == 0 {
		return Result{}, fmt.Errorf("blind: no frame converged: %w", ErrInsufficientData)
	}

	values := make([]float64, len(candidates))
	for i, c := range candidates {
		values[i] = c.RT60
	}

	rt60, err := Aggregate(values, e.cfg.Policy, e.cfg.Percentile)
	if err != nil {
		return Result{}, err
	}

	return Result{
		RT60:            rt60,
		SampleRate:      rate,
		FramesTotal:     total,
		FramesConverged: len(candidates),
		Candidates:      candidates,
	}, nil
}

// solveAll fits every frame, sequentially or with a worker pool. Results
// land in a pre-sized slice indexed by frame number, so temporal order
// survives any scheduling.
func (e *Estimator) solveAll(x []float64, sl frame.Slicer, length, total int) []Estimate {
	estimates := make([]Estimate, total)

	workers := e.cfg.Workers
	if workers > total {
		workers = total
	}

	if workers <= 1 {
		sv := newSolver(e.cfg, length)

		for i := range total {
			estimates[i] = sv.solve(sl.Frame(x, i))

			if e.cfg.Progress != nil {
				e.cfg.Progress(i+1, total)
			}
		}

		return estimates
	}

	var (
		wg   sync.WaitGroup
		done atomic.Int64
	)

	for w := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			sv := newSolver(e.cfg, length)

			for i := w; i < total; i += workers {
				estimates[i] = sv.solve(sl.Frame(x, i))

				if e.cfg.Progress != nil {
					e.cfg.Progress(int(done.Add(1)), total)
				}
			}
		}()
	}

	wg.Wait()

	return estimates
}

// DecayTime returns the time in seconds for an exponential amplitude
// envelope with time constant tau seconds to fall by decayDB decibels.
func DecayTime(decayDB, tau float64) float64 {
	return decayDB * math.Ln10 / 20 * tau
}
