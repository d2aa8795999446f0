package blind

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Policy selects how per-frame candidates reduce to one estimate.
type Policy int

const (
	// PolicyPercentile returns the configured quantile of the candidate
	// distribution. Suits unimodal populations such as isolated decays;
	// the median tracks the central value.
	PolicyPercentile Policy = iota

	// PolicyFirstMode returns the first dominant mode of the candidate
	// density. Suits multimodal populations such as connected speech,
	// where onsets and decays mix and a global quantile is biased by the
	// mixture weights.
	PolicyFirstMode
)

// Aggregate reduces a candidate population to a single representative RT60
// value. Unknown policies fall back to PolicyPercentile.
func Aggregate(candidates []float64, policy Policy, percentile float64) (float64, error) {
	if len(candidates) == 0 {
		return 0, fmt.Errorf("blind: empty candidate set: %w", ErrInsufficientData)
	}

	sorted := make([]float64, len(candidates))
	copy(sorted, candidates)
	sort.Float64s(sorted)

	if policy == PolicyFirstMode {
		return firstMode(sorted), nil
	}

	if !(percentile > 0 && percentile < 1) {
		return 0, fmt.Errorf("blind: percentile %v outside (0, 1): %w", percentile, ErrInvalidConfig)
	}

	return stat.Quantile(percentile, stat.LinInterp, sorted, nil), nil
}

// firstMode histograms the sorted candidates, smooths the counts, and
// returns the median of the values inside the first bin whose density
// drops at its right neighbor.
func firstMode(sorted []float64) float64 {
	n := len(sorted)
	lo := sorted[0]
	hi := sorted[n-1]

	span := hi - lo
	if span <= 0 {
		return lo
	}

	bins := int(math.Round(math.Sqrt(float64(n))))
	if bins < 4 {
		bins = 4
	}

	if bins > 64 {
		bins = 64
	}

	// The top divider sits just above the maximum so every candidate
	// falls inside a bin.
	top := hi + span*1e-9
	if top == hi {
		top = math.Nextafter(hi, math.Inf(1))
	}

	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, top)

	counts := stat.Histogram(nil, dividers, sorted, nil)

	// Smooth with a [1 2 1] kernel, reflecting the counts at both edges
	// so boundary bins are not damped.
	density := make([]float64, len(counts))
	for i := range counts {
		v := 2 * counts[i]

		if i > 0 {
			v += counts[i-1]
		} else {
			v += counts[i]
		}

		if i < len(counts)-1 {
			v += counts[i+1]
		} else {
			v += counts[i]
		}

		density[i] = v / 4
	}

	mode := len(density) - 1

	for i := 0; i < len(density)-1; i++ {
		if density[i] > density[i+1] {
			mode = i
			break
		}
	}

	first := sort.SearchFloat64s(sorted, dividers[mode])

	last := first
	for last < n && sorted[last] < dividers[mode+1] {
		last++
	}

	if first >= last {
		return stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	}

	return stat.Quantile(0.5, stat.LinInterp, sorted[first:last], nil)
}
