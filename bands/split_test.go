package bands

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-reverb/internal/testutil"
)

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(x)))
}

func TestSplitIsolatesTone(t *testing.T) {
	const fs = 8192

	list, err := Octave(1, fs)
	if err != nil {
		t.Fatalf("Octave: %v", err)
	}

	if len(list) != 7 {
		t.Fatalf("band count = %d, want 7", len(list))
	}

	// One second at 8192 Hz puts a 1 kHz tone exactly on bin 1000, well
	// inside the flat region of the 1 kHz octave.
	x := testutil.Sine(1000, fs, 1, fs)

	outs, err := Split(x, fs, list)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	testutil.RequireSliceNear(t, outs[5], x, 1e-9)

	for i, y := range outs {
		if i == 5 {
			continue
		}

		if r := rms(y); r > 1e-9 {
			t.Fatalf("band %d leaked rms %v", i, r)
		}
	}
}

func TestSplitComplementaryEdges(t *testing.T) {
	const fs = 8192

	list, err := Octave(1, fs)
	if err != nil {
		t.Fatalf("Octave: %v", err)
	}

	// 1400 Hz lies inside the transition the 1 kHz and 2 kHz octaves
	// share, so the tone splits across exactly those two bands.
	x := testutil.Sine(1400, fs, 1, fs)

	outs, err := Split(x, fs, list)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	inRMS := rms(x)

	sum := make([]float64, len(x))
	for i := range sum {
		sum[i] = outs[5][i] + outs[6][i]
	}

	testutil.RequireSliceNear(t, sum, x, 1e-9)

	for _, bi := range []int{5, 6} {
		if r := rms(outs[bi]); r < 0.1*inRMS || r > 0.9*inRMS {
			t.Fatalf("band %d carries rms %v of %v, want a partial share", bi, r, inRMS)
		}
	}

	for i, y := range outs {
		if i == 5 || i == 6 {
			continue
		}

		if r := rms(y); r > 1e-9 {
			t.Fatalf("band %d leaked rms %v", i, r)
		}
	}
}

func TestSplitBrickWall(t *testing.T) {
	const fs = 8192

	list, err := Octave(1, fs)
	if err != nil {
		t.Fatalf("Octave: %v", err)
	}

	x := testutil.Sine(1000, fs, 1, fs)

	outs, err := Split(x, fs, list, WithTransition(0))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	testutil.RequireSliceNear(t, outs[5], x, 1e-9)
}

func TestSplitPadsOddLengths(t *testing.T) {
	const fs = 16000

	list, err := Octave(1, fs)
	if err != nil {
		t.Fatalf("Octave: %v", err)
	}

	if len(list) != 8 {
		t.Fatalf("band count = %d, want 8", len(list))
	}

	x := testutil.DecayingNoise(17, 0.9995, 0.5, 5000)

	outs, err := Split(x, fs, list)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	if len(outs) != len(list) {
		t.Fatalf("output count = %d, want %d", len(outs), len(list))
	}

	for i, y := range outs {
		if len(y) != len(x) {
			t.Fatalf("band %d length = %d, want %d", i, len(y), len(x))
		}

		testutil.RequireFinite(t, y)
	}
}

func TestSplitErrors(t *testing.T) {
	list, err := Octave(1, 16000)
	if err != nil {
		t.Fatalf("Octave: %v", err)
	}

	if _, err := Split(nil, 16000, list); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("empty input: err = %v, want ErrEmptyInput", err)
	}

	if _, err := Split([]float64{1, 2, 3}, 0, list); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("zero rate: err = %v, want ErrInvalidRate", err)
	}

	if _, err := Split([]float64{1, 2, 3}, 16000, nil); !errors.Is(err, ErrNoBands) {
		t.Fatalf("no bands: err = %v, want ErrNoBands", err)
	}
}
