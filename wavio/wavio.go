// Package wavio loads and stores mono float64 signals as WAV files.
package wavio

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrNotWAV indicates a file the RIFF decoder rejects.
	ErrNotWAV = errors.New("wavio: not a valid WAV file")
	// ErrNoSamples indicates a well-formed file without PCM frames.
	ErrNoSamples = errors.New("wavio: file holds no samples")
	// ErrEmptySignal indicates an attempt to store an empty signal.
	ErrEmptySignal = errors.New("wavio: empty signal")
	// ErrInvalidRate indicates a non-positive sample rate.
	ErrInvalidRate = errors.New("wavio: sample rate must be positive")
)

// ReadMono reads a WAV file, mixes its channels down to mono, and scales
// samples to [-1, 1] by the source bit depth. It returns the samples and
// the file's sample rate in Hz.
func ReadMono(path string) ([]float64, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("wavio: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("wavio: %s: %w", path, ErrNotWAV)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wavio: decode %s: %w", path, err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, 0, fmt.Errorf("wavio: %s: %w", path, ErrNoSamples)
	}

	depth := buf.SourceBitDepth
	if depth <= 0 || depth > 32 {
		depth = 16
	}

	scale := 1 / float64(int64(1)<<(depth-1))

	out := make([]float64, frames)
	for i := range out {
		var acc float64
		for c := range channels {
			acc += float64(buf.Data[i*channels+c])
		}

		out[i] = acc / float64(channels) * scale
	}

	return out, float64(buf.Format.SampleRate), nil
}

// WriteMono stores x as a 16 bit mono WAV file at the given rate. Samples
// outside [-1, 1] are clipped.
func WriteMono(path string, x []float64, sampleRate int) error {
	if len(x) == 0 {
		return ErrEmptySignal
	}

	if sampleRate <= 0 {
		return fmt.Errorf("wavio: rate %d: %w", sampleRate, ErrInvalidRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavio: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)

	data := make([]int, len(x))
	for i, v := range x {
		switch {
		case math.IsNaN(v):
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}

		data[i] = int(math.Round(v * 32767))
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		f.Close()

		return fmt.Errorf("wavio: encode %s: %w", path, err)
	}

	if err := enc.Close(); err != nil {
		f.Close()

		return fmt.Errorf("wavio: finalize %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("wavio: %w", err)
	}

	return nil
}
