// Package frame slices signals into overlapping fixed-length analysis frames.
package frame

import "errors"

// ErrInvalidGeometry indicates a non-positive frame length or hop size.
var ErrInvalidGeometry = errors.New("frame: length and hop must be positive")

// Slicer produces overlapping views over a signal. Frames are subslices of
// the input; they share its backing array and must not outlive it.
type Slicer struct {
	Length int
	Hop    int
}

// NewSlicer creates a slicer for frames of length samples advancing by hop.
func NewSlicer(length, hop int) (Slicer, error) {
	if length < 1 || hop < 1 {
		return Slicer{}, ErrInvalidGeometry
	}

	return Slicer{Length: length, Hop: hop}, nil
}

// Count returns the number of complete frames in a signal of n samples.
func (s Slicer) Count(n int) int {
	if n < s.Length {
		return 0
	}

	return (n-s.Length)/s.Hop + 1
}

// Start returns the sample index at which frame i begins.
func (s Slicer) Start(i int) int {
	return i * s.Hop
}

// Frame returns a view of frame i. The caller must keep i below Count(len(x)).
func (s Slicer) Frame(x []float64, i int) []float64 {
	start := s.Start(i)

	return x[start : start+s.Length]
}

// Cut returns views of every complete frame in x.
func (s Slicer) Cut(x []float64) [][]float64 {
	n := s.Count(len(x))
	if n == 0 {
		return nil
	}

	frames := make([][]float64, n)
	for i := range n {
		frames[i] = s.Frame(x, i)
	}

	return frames
}
