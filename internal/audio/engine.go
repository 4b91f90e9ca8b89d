// Package audio wraps the ffmpeg operations used to repackage, decode, cut
// and join a single audio stream.
package audio

import (
	"context"

	"github.com/maauso/delayfix/internal/silence"
)

// Engine is the set of audio operations a correction needs. Every call
// blocks until the output file exists, or returns an error.
type Engine interface {
	// RepackageLossless copies the first audio stream of src into a Matroska
	// container without re-encoding.
	RepackageLossless(ctx context.Context, src, dst string) error
	// ToMonoPCM decodes src to 16-bit mono PCM (RF64 WAV) for silence analysis.
	ToMonoPCM(ctx context.Context, src, dst string) error
	// DetectSilence reports the silent intervals of a decoded WAV file.
	DetectSilence(ctx context.Context, wavPath string, thresholdDb int, minDurationS float64) ([]silence.Interval, error)
	// Extract writes [startS, endS] of src to dst. It stream-copies unless
	// sampleAccurate is set, in which case it re-encodes with the source codec.
	Extract(ctx context.Context, src, dst string, startS, endS float64, sampleAccurate bool) error
	// ConcatLossless joins inputs, in order, into dst without re-encoding.
	ConcatLossless(ctx context.Context, inputs []string, dst string) error
	// CutFromStart keeps the first keepS seconds of src.
	CutFromStart(ctx context.Context, src, dst string, keepS float64, sampleAccurate bool) error
	// CutFromOffset keeps src from offsetS to its end.
	CutFromOffset(ctx context.Context, src, dst string, offsetS float64, sampleAccurate bool) error
}

// Verify interface implementation at compile time.
var _ Engine = (*FFmpegEngine)(nil)
