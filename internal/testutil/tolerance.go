package testutil

import (
	"math"
	"testing"
)

// RequireNear fails t if got differs from want by more than eps (absolute).
func RequireNear(t *testing.T, name string, got, want, eps float64) {
	t.Helper()

	if diff := math.Abs(got - want); diff > eps || math.IsNaN(diff) {
		t.Fatalf("%s: got %v, want %v (diff %v > eps %v)", name, got, want, diff, eps)
	}
}

// RequireRelNear fails t if got differs from want by more than rel relative
// to want.
func RequireRelNear(t *testing.T, name string, got, want, rel float64) {
	t.Helper()

	if want == 0 {
		RequireNear(t, name, got, want, rel)
		return
	}

	if diff := math.Abs(got-want) / math.Abs(want); diff > rel || math.IsNaN(diff) {
		t.Fatalf("%s: got %v, want %v (relative diff %v > %v)", name, got, want, diff, rel)
	}
}

// RequireSliceNear fails t if got and want differ in length or if any
// element pair exceeds eps (absolute tolerance).
func RequireSliceNear(t *testing.T, got, want []float64, eps float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if diff := math.Abs(got[i] - want[i]); diff > eps || math.IsNaN(diff) {
			t.Fatalf("index %d: got %v, want %v (diff %v > eps %v)", i, got[i], want[i], diff, eps)
		}
	}
}

// RequireFinite fails t if any element is NaN or Inf.
func RequireFinite(t *testing.T, data []float64) {
	t.Helper()

	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("index %d: non-finite value %v", i, v)
		}
	}
}
