// Package frame derives the fixed frame clock of a frame-based audio codec and
// aligns durations and timecodes to exact multiples of it.
package frame

import (
	"errors"
	"fmt"
)

// ErrInvalidClock is returned when a clock is built from non-positive values.
var ErrInvalidClock = errors.New("invalid frame clock: samples per frame and sample rate must be positive")

// Clock is the playback quantum of one audio stream.
// The zero value means "no clock"; use NewClock or SampleClock.
type Clock struct {
	spf        int
	sampleRate float64
	frameMs    float64
}

// NewClock builds a Clock with FrameDurationMs = spf / sampleRate * 1000.
func NewClock(spf int, sampleRate float64) (Clock, error) {
	if spf <= 0 || sampleRate <= 0 {
		return Clock{}, fmt.Errorf("%w: spf=%d, sample_rate=%g", ErrInvalidClock, spf, sampleRate)
	}
	return Clock{
		spf:        spf,
		sampleRate: sampleRate,
		frameMs:    float64(spf) / sampleRate * 1000,
	}, nil
}

// SampleClock builds a one-sample clock, used when the stream is processed
// sample-accurately instead of on codec frame boundaries.
func SampleClock(sampleRate float64) (Clock, error) {
	return NewClock(1, sampleRate)
}

// SPF returns the number of samples per frame.
func (c Clock) SPF() int { return c.spf }

// SampleRate returns the sample rate in Hz.
func (c Clock) SampleRate() float64 { return c.sampleRate }

// FrameDurationMs returns the frame duration in milliseconds.
func (c Clock) FrameDurationMs() float64 { return c.frameMs }

// FrameDurationS returns the frame duration in seconds.
func (c Clock) FrameDurationS() float64 { return c.frameMs / 1000 }

// IsZero reports whether c is the zero Clock.
func (c Clock) IsZero() bool { return c.spf == 0 }

// Frames returns how many frames (possibly fractional) ms spans.
func (c Clock) Frames(ms float64) float64 {
	if c.frameMs <= 0 {
		return 0
	}
	return ms / c.frameMs
}

// AlignDuration aligns ms with AlignDuration using this clock.
func (c Clock) AlignDuration(ms float64) float64 { return AlignDuration(ms, c.frameMs) }

// AlignTimecode aligns seconds with AlignTimecode using this clock.
func (c Clock) AlignTimecode(seconds float64) float64 { return AlignTimecode(seconds, c.frameMs) }

func (c Clock) String() string {
	if c.IsZero() {
		return "frame.Clock{}"
	}
	return fmt.Sprintf("%d samples @ %.0f Hz = %.6f ms", c.spf, c.sampleRate, c.frameMs)
}
