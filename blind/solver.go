package blind

import (
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"
)

// Estimate is one frame's maximum-likelihood fit of the decaying-envelope
// model y[n] = a^n * x[n] with stationary Gaussian fine structure x.
type Estimate struct {
	// A is the per-sample decay ratio in (0, 1].
	A float64
	// Sigma2 is the fine-structure variance.
	Sigma2 float64
	// Iterations counts solver steps spent, bracketing included.
	Iterations int
	// Converged reports whether A and Sigma2 satisfy the stationarity
	// condition within tolerance and inside their configured ranges. Only
	// converged estimates may enter aggregation.
	Converged bool
}

// solver fits the decay model to fixed-length frames. Scratch state is
// reused between frames; a solver must not be shared across goroutines.
type solver struct {
	cfg    Config
	n      int
	lenFac float64
	y2     []float64
}

func newSolver(cfg Config, frameLen int) *solver {
	return &solver{
		cfg:    cfg,
		n:      frameLen,
		lenFac: float64(frameLen) * float64(frameLen-1) / 2,
		y2:     make([]float64, frameLen),
	}
}

// solve runs the alternating estimation for one frame: bisection brackets a
// sign change of the likelihood gradient in a, Newton-Raphson refines it,
// and the variance follows in closed form from each accepted a.
func (s *solver) solve(frame []float64) Estimate {
	vecmath.MulBlock(s.y2, frame, frame)

	if floats.Sum(s.y2) == 0 {
		return Estimate{}
	}

	iterations := 0

	// Bracket between the initial guess and the upper range bound; when
	// the gradient does not change sign there, retry below the guess.
	lo, hi := s.cfg.InitialDecay, s.cfg.DecayMax
	glo, _ := s.profile(lo)

	ghi, _ := s.profile(hi)
	if sameSign(glo, ghi) {
		hi, ghi = lo, glo
		lo = s.cfg.DecayMin

		glo, _ = s.profile(lo)
		if sameSign(glo, ghi) {
			return Estimate{A: hi, Iterations: iterations}
		}
	}

	for range s.cfg.BisectIter {
		iterations++
		mid := 0.5 * (lo + hi)

		gm, _ := s.profile(mid)
		if gm == 0 {
			lo, hi = mid, mid
			break
		}

		if sameSign(gm, glo) {
			lo, glo = mid, gm
		} else {
			hi = mid
		}
	}

	a := 0.5 * (lo + hi)
	converged := false

	var sigma2 float64

	for iterations < s.cfg.MaxIter {
		iterations++

		s0, s1, s2 := s.sums(a)
		sigma2 = s.clampVariance(s0 / float64(s.n))

		g := (s1/sigma2 - s.lenFac) / a
		if math.Abs(g) < s.cfg.Tolerance {
			converged = true
			break
		}

		slope := (s.lenFac - (s1+2*s2)/sigma2) / (a * a)
		if slope == 0 || math.IsNaN(slope) || math.IsInf(slope, 0) || math.IsInf(g, 0) {
			break
		}

		next := a - g/slope
		if math.IsNaN(next) {
			break
		}

		if next < s.cfg.DecayMin {
			next = s.cfg.DecayMin
		}

		if next > s.cfg.DecayMax {
			next = s.cfg.DecayMax
		}

		// A repeated value means the update stalled or pinned at a range
		// bound without meeting tolerance.
		if next == a {
			break
		}

		a = next
	}

	s0, _, _ := s.sums(a)
	sigma2 = s.clampVariance(s0 / float64(s.n))

	if sigma2 <= 0 {
		converged = false
	}

	return Estimate{A: a, Sigma2: sigma2, Iterations: iterations, Converged: converged}
}

// sums accumulates the weighted energy moments sum(a^-2n * y^2 * n^k) for
// k = 0, 1, 2. Zero samples are skipped so saturated weights cannot turn
// into NaN terms; fully saturated sums keep a valid sign as +Inf.
func (s *solver) sums(a float64) (s0, s1, s2 float64) {
	invA2 := 1 / (a * a)
	w := 1.0

	for k, v := range s.y2 {
		if v != 0 {
			wk := w * v
			fk := float64(k)

			s0 += wk
			s1 += fk * wk
			s2 += fk * fk * wk
		}

		w *= invA2
	}

	return s0, s1, s2
}

// profile evaluates the likelihood gradient in a with the variance at its
// own closed-form optimum for that a.
func (s *solver) profile(a float64) (g, sigma2 float64) {
	s0, s1, _ := s.sums(a)
	sigma2 = s.clampVariance(s0 / float64(s.n))
	g = (s1/sigma2 - s.lenFac) / a

	return g, sigma2
}

func (s *solver) clampVariance(v float64) float64 {
	if v < s.cfg.VarianceMin {
		return s.cfg.VarianceMin
	}

	if v > s.cfg.VarianceMax {
		return s.cfg.VarianceMax
	}

	return v
}

func sameSign(x, y float64) bool {
	return math.Signbit(x) == math.Signbit(y)
}
