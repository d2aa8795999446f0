// Package trace renders per-frame diagnostics of a blind reverberation
// analysis as image files.
package trace

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/cwbudde/algo-reverb/blind"
)

// ErrNoCandidates indicates that there is nothing to draw.
var ErrNoCandidates = errors.New("trace: no candidates to draw")

// SaveTrace draws per-frame RT60 candidates against their frame start
// times, with the aggregate as a dashed reference when positive. The image
// format follows the file extension of path.
func SaveTrace(candidates []blind.Candidate, aggregate float64, path string) error {
	if len(candidates) == 0 {
		return ErrNoCandidates
	}

	p := plot.New()
	p.Title.Text = "Per-frame RT60"
	p.X.Label.Text = "time [s]"
	p.Y.Label.Text = "RT60 [s]"
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(candidates))
	for i, c := range candidates {
		xys[i] = plotter.XY{X: c.Time, Y: c.RT60}
	}

	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return fmt.Errorf("trace: %w", err)
	}

	p.Add(line, points)

	if aggregate > 0 {
		ref := plotter.XYs{
			{X: candidates[0].Time, Y: aggregate},
			{X: candidates[len(candidates)-1].Time, Y: aggregate},
		}

		refLine, err := plotter.NewLine(ref)
		if err != nil {
			return fmt.Errorf("trace: %w", err)
		}

		refLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(refLine)
		p.Legend.Add("aggregate", refLine)
	}

	if err := p.Save(20*vg.Centimeter, 10*vg.Centimeter, path); err != nil {
		return fmt.Errorf("trace: save %s: %w", path, err)
	}

	return nil
}

// SaveHistogram draws the distribution of candidate RT60 values with the
// given number of bins. Non-positive bin counts select 16.
func SaveHistogram(candidates []blind.Candidate, bins int, path string) error {
	if len(candidates) == 0 {
		return ErrNoCandidates
	}

	if bins < 1 {
		bins = 16
	}

	vals := make(plotter.Values, len(candidates))
	for i, c := range candidates {
		vals[i] = c.RT60
	}

	p := plot.New()
	p.Title.Text = "RT60 candidate distribution"
	p.X.Label.Text = "RT60 [s]"
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return fmt.Errorf("trace: %w", err)
	}

	p.Add(h)

	if err := p.Save(16*vg.Centimeter, 10*vg.Centimeter, path); err != nil {
		return fmt.Errorf("trace: save %s: %w", path, err)
	}

	return nil
}
