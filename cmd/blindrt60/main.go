// Command blindrt60 estimates reverberation time from recorded audio
// without a measured impulse response.
//
// Usage:
//
//	blindrt60 [flags] file.wav [file.wav ...]
//
// The broadband RT60 of every file is printed as a table. With -bands the
// signal is additionally split into fractional-octave bands and each band
// is estimated on its own. With -ir the inputs are treated as measured
// impulse responses and analyzed by Schroeder integration instead, which
// serves as the reference when validating blind estimates.
//
// Examples:
//
//	blindrt60 recording.wav
//	blindrt60 -framelen 0.05 -hop 0.025 recording.wav
//	blindrt60 -bands -fraction 3 room.wav
//	blindrt60 -plot trace.png -hist hist.png room.wav
//	blindrt60 -ir -bands measured_ir.wav
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"

	"github.com/cwbudde/algo-reverb/bands"
	"github.com/cwbudde/algo-reverb/blind"
	"github.com/cwbudde/algo-reverb/resample"
	"github.com/cwbudde/algo-reverb/schroeder"
	"github.com/cwbudde/algo-reverb/trace"
	"github.com/cwbudde/algo-reverb/wavio"
)

type settings struct {
	frameLen   float64
	hop        float64
	percentile float64
	policy     blind.Policy
	rate       float64
	bands      bool
	fraction   int
	impulse    bool
	plotPath   string
	histPath   string
	workers    int
	verbose    bool
}

type bandReport struct {
	center float64
	result blind.Result
	times  schroeder.Times
	ok     bool
}

type fileReport struct {
	file   string
	result blind.Result
	times  schroeder.Times
	bands  []bandReport
}

func main() {
	frameLen := flag.Float64("framelen", 0.2, "analysis frame length in seconds")
	hop := flag.Float64("hop", 0, "frame advance in seconds (default framelen/4)")
	percentile := flag.Float64("percentile", 0.5, "candidate quantile under the percentile policy")
	policy := flag.String("policy", "percentile", "aggregation policy: percentile or mode")
	rate := flag.Float64("rate", 0, "resample input to this rate in Hz (default keep native)")
	bandSplit := flag.Bool("bands", false, "estimate per fractional-octave band")
	fraction := flag.Int("fraction", 1, "octave fraction for -bands (1=octave, 3=third octave)")
	impulse := flag.Bool("ir", false, "treat inputs as impulse responses (Schroeder integration)")
	plotPath := flag.String("plot", "", "write a per-frame RT60 trace image (single input only)")
	histPath := flag.String("hist", "", "write a candidate histogram image (single input only)")
	workers := flag.Int("workers", runtime.NumCPU(), "concurrent frame solvers")
	verbose := flag.Bool("v", false, "show progress and signal details")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: blindrt60 [flags] file.wav [file.wav ...]\n\n")
		fmt.Fprintf(os.Stderr, "Estimates reverberation time from recorded audio alone.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  blindrt60 recording.wav\n")
		fmt.Fprintf(os.Stderr, "  blindrt60 -framelen 0.05 -hop 0.025 recording.wav\n")
		fmt.Fprintf(os.Stderr, "  blindrt60 -bands -fraction 3 room.wav\n")
	}
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	pol, err := parsePolicy(*policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if (*plotPath != "" || *histPath != "") && len(files) > 1 {
		fmt.Fprintf(os.Stderr, "error: -plot and -hist require a single input file\n")
		os.Exit(1)
	}

	if (*plotPath != "" || *histPath != "") && *impulse {
		fmt.Fprintf(os.Stderr, "error: -plot and -hist apply to blind analysis only\n")
		os.Exit(1)
	}

	cfg := settings{
		frameLen:   *frameLen,
		hop:        *hop,
		percentile: *percentile,
		policy:     pol,
		rate:       *rate,
		bands:      *bandSplit,
		fraction:   *fraction,
		impulse:    *impulse,
		plotPath:   *plotPath,
		histPath:   *histPath,
		workers:    *workers,
		verbose:    *verbose,
	}

	var reports []fileReport

	for _, file := range files {
		rep, err := analyzeFile(file, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s: %v\n", file, err)
			continue
		}

		reports = append(reports, rep)
	}

	if len(reports) == 0 {
		fmt.Fprintf(os.Stderr, "error: no input could be analyzed\n")
		os.Exit(1)
	}

	printReports(reports, cfg.impulse)
}

func parsePolicy(name string) (blind.Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "percentile", "median":
		return blind.PolicyPercentile, nil
	case "mode", "first-mode":
		return blind.PolicyFirstMode, nil
	default:
		return 0, fmt.Errorf("unknown policy %q (use percentile or mode)", name)
	}
}

func analyzeFile(file string, cfg settings) (fileReport, error) {
	x, fs, err := wavio.ReadMono(file)
	if err != nil {
		return fileReport{}, err
	}

	if cfg.verbose {
		fmt.Fprintf(os.Stderr, "%s: %.2f s at %.0f Hz\n", file, float64(len(x))/fs, fs)
	}

	if cfg.impulse {
		return analyzeImpulse(file, x, fs, cfg)
	}

	est, err := blind.New(estimatorOptions(cfg, cfg.verbose)...)
	if err != nil {
		return fileReport{}, err
	}

	res, err := est.EstimateDetailed(x, fs)
	if err != nil {
		return fileReport{}, err
	}

	if cfg.plotPath != "" {
		if err := trace.SaveTrace(res.Candidates, res.RT60, cfg.plotPath); err != nil {
			return fileReport{}, err
		}
	}

	if cfg.histPath != "" {
		if err := trace.SaveHistogram(res.Candidates, 0, cfg.histPath); err != nil {
			return fileReport{}, err
		}
	}

	rep := fileReport{file: file, result: res}

	if cfg.bands {
		rep.bands, err = analyzeBands(x, fs, cfg)
		if err != nil {
			return fileReport{}, err
		}
	}

	return rep, nil
}

// estimatorOptions maps the command line onto estimator options. With
// progress enabled the bar is created on the first callback, once the
// frame total is known.
func estimatorOptions(cfg settings, progress bool) []blind.Option {
	opts := []blind.Option{
		blind.WithFrameLength(cfg.frameLen),
		blind.WithPercentile(cfg.percentile),
		blind.WithPolicy(cfg.policy),
		blind.WithWorkers(cfg.workers),
	}

	if cfg.hop > 0 {
		opts = append(opts, blind.WithHop(cfg.hop))
	}

	if cfg.rate > 0 {
		opts = append(opts, blind.WithSampleRate(cfg.rate))
	}

	if progress {
		var (
			mu  sync.Mutex
			bar *progressbar.ProgressBar
		)

		opts = append(opts, blind.WithProgress(func(done, total int) {
			mu.Lock()
			defer mu.Unlock()

			if bar == nil {
				bar = progressbar.Default(int64(total), "frames")
			}

			_ = bar.Set(done)
		}))
	}

	return opts
}

// analyzeImpulse runs the Schroeder reference analysis instead of the
// blind estimator.
func analyzeImpulse(file string, x []float64, fs float64, cfg settings) (fileReport, error) {
	if cfg.rate > 0 && cfg.rate != fs {
		converted, err := resample.To(x, fs, cfg.rate)
		if err != nil {
			return fileReport{}, err
		}

		x, fs = converted, cfg.rate
	}

	times, err := schroeder.Analyze(x, fs)
	if err != nil {
		return fileReport{}, err
	}

	rep := fileReport{file: file, times: times}

	if cfg.bands {
		rep.bands, err = impulseBands(x, fs, cfg)
		if err != nil {
			return fileReport{}, err
		}
	}

	return rep, nil
}

func impulseBands(x []float64, fs float64, cfg settings) ([]bandReport, error) {
	list, err := bands.Octave(cfg.fraction, fs)
	if err != nil {
		return nil, err
	}

	split, err := bands.Split(x, fs, list)
	if err != nil {
		return nil, err
	}

	reports := make([]bandReport, 0, len(list))

	for i, band := range list {
		times, err := schroeder.Analyze(split[i], fs)

		switch {
		case errors.Is(err, schroeder.ErrNoDecay):
			reports = append(reports, bandReport{center: band.Center})
		case err != nil:
			return nil, err
		default:
			reports = append(reports, bandReport{center: band.Center, times: times, ok: true})
		}
	}

	return reports, nil
}

// analyzeBands splits the signal into fractional-octave bands and fits
// each band on its own. Bands where no frame converges are reported as
// skipped rather than failing the whole file.
func analyzeBands(x []float64, fs float64, cfg settings) ([]bandReport, error) {
	list, err := bands.Octave(cfg.fraction, fs)
	if err != nil {
		return nil, err
	}

	split, err := bands.Split(x, fs, list)
	if err != nil {
		return nil, err
	}

	est, err := blind.New(estimatorOptions(cfg, false)...)
	if err != nil {
		return nil, err
	}

	reports := make([]bandReport, 0, len(list))

	for i, band := range list {
		res, err := est.EstimateDetailed(split[i], fs)

		switch {
		case errors.Is(err, blind.ErrInsufficientData):
			reports = append(reports, bandReport{center: band.Center})
		case err != nil:
			return nil, err
		default:
			reports = append(reports, bandReport{center: band.Center, result: res, ok: true})
		}
	}

	return reports, nil
}

func printReports(reports []fileReport, impulse bool) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	header, dashes := "Input\tRT60 [s]\tFrames\n", "-----\t--------\t------\n"
	if impulse {
		header = "Input\tRT60 [s]\tEDT [s]\tT20 [s]\tT30 [s]\n"
		dashes = "-----\t--------\t-------\t-------\t-------\n"
	}

	if _, err := fmt.Fprint(tw, header, dashes); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: failed to write output header: %v\n", err)
		return
	}

	for _, rep := range reports {
		if _, err := fmt.Fprint(tw, fileRow(rep, impulse)); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: failed to write output row: %v\n", err)
			return
		}

		for _, b := range rep.bands {
			if _, err := fmt.Fprint(tw, bandRow(b, impulse)); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "error: failed to write output row: %v\n", err)
				return
			}
		}
	}

	if err := tw.Flush(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: failed to flush output: %v\n", err)
	}
}

func fileRow(rep fileReport, impulse bool) string {
	if impulse {
		return fmt.Sprintf("%s\t%.3f\t%.3f\t%.3f\t%.3f\n",
			rep.file, rep.times.RT60, rep.times.EDT, rep.times.T20, rep.times.T30)
	}

	return fmt.Sprintf("%s\t%.3f\t%d/%d\n",
		rep.file, rep.result.RT60, rep.result.FramesConverged, rep.result.FramesTotal)
}

func bandRow(b bandReport, impulse bool) string {
	switch {
	case !b.ok && impulse:
		return fmt.Sprintf("  %.0f Hz\t-\t-\t-\t-\n", b.center)
	case !b.ok:
		return fmt.Sprintf("  %.0f Hz\t-\t-\n", b.center)
	case impulse:
		return fmt.Sprintf("  %.0f Hz\t%.3f\t%.3f\t%.3f\t%.3f\n",
			b.center, b.times.RT60, b.times.EDT, b.times.T20, b.times.T30)
	default:
		return fmt.Sprintf("  %.0f Hz\t%.3f\t%d/%d\n",
			b.center, b.result.RT60, b.result.FramesConverged, b.result.FramesTotal)
	}
}
