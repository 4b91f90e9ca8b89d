// Package silence searches a decoded mono track for a usable silent window
// with an escalating duration by sensitivity sweep.
package silence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/delayfix/internal/frame"
)

// ErrSilenceNotFound is returned when no (duration, threshold) pair of the
// search grid produced an interval.
var ErrSilenceNotFound = errors.New("no usable silence found")

// Interval is one silent interval reported by a Detector, in seconds.
type Interval struct {
	StartS    float64
	EndS      float64
	DurationS float64
}

// Detector reports silent intervals at least minDurationS long and quieter
// than thresholdDb.
type Detector interface {
	DetectSilence(ctx context.Context, wavPath string, thresholdDb int, minDurationS float64) ([]Interval, error)
}

// Phase is one sensitivity pass of the search.
type Phase struct {
	Name         string
	ThresholdsDb []int
}

// Search is the grid walked by the Locator: durations are the outer loop,
// thresholds the inner loop, phase by phase.
type Search struct {
	DurationsMs []float64
	Phases      []Phase
}

// DefaultSearch tries sensitive thresholds first and only falls back to
// louder ones when nothing matched.
func DefaultSearch() Search {
	return Search{
		DurationsMs: []float64{500, 400, 300},
		Phases: []Phase{
			{Name: "sensitive", ThresholdsDb: []int{-90, -80, -70}},
			{Name: "relaxed", ThresholdsDb: []int{-60, -50}},
		},
	}
}

// Window is a located silent window. Invariant: EndS > StartS and
// DurationS = EndS - StartS.
type Window struct {
	StartS      float64
	EndS        float64
	DurationS   float64
	ThresholdDb int
}

// Align snaps both boundaries to the frame grid of clock. If snapping
// collapses the window, the end is pushed out by one frame.
func (w Window) Align(clock frame.Clock) Window {
	if clock.IsZero() {
		return w
	}
	start := clock.AlignTimecode(w.StartS)
	end := clock.AlignTimecode(w.EndS)
	if end <= start {
		end = start + clock.FrameDurationS()
	}
	return Window{StartS: start, EndS: end, DurationS: end - start, ThresholdDb: w.ThresholdDb}
}

// Result holds the window as detected and the window to extract.
type Result struct {
	Raw         Window
	Aligned     Window
	MinDuration float64 // seconds, as passed to the detector
	Phase       string
	Queries     int
}

// Locator finds the first silent window of a track.
type Locator struct {
	detector Detector
	search   Search
	logger   *slog.Logger
}

// NewLocator creates a Locator with DefaultSearch.
func NewLocator(detector Detector, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{detector: detector, search: DefaultSearch(), logger: logger}
}

// WithSearch returns a copy of l that walks s instead of DefaultSearch.
func (l *Locator) WithSearch(s Search) *Locator {
	c := *l
	c.search = s
	return &c
}

// Locate walks the search grid against wavPath. The first pair that yields an
// interval wins and only its first interval is used.
//
// A non-zero clock aligns each candidate duration before it reaches the
// detector. With alignBoundaries set, the returned window is also snapped to
// the frame grid; otherwise Aligned equals Raw.
func (l *Locator) Locate(ctx context.Context, wavPath string, clock frame.Clock, alignBoundaries bool) (Result, error) {
	queries := 0
	for _, phase := range l.search.Phases {
		l.logger.Debug("silence search phase", slog.String("phase", phase.Name))

		for _, durMs := range l.search.DurationsMs {
			minMs := durMs
			if !clock.IsZero() {
				minMs = clock.AlignDuration(durMs)
			}
			minS := minMs / 1000

			for _, threshold := range phase.ThresholdsDb {
				if err := ctx.Err(); err != nil {
					return Result{}, err
				}
				queries++

				intervals, err := l.detector.DetectSilence(ctx, wavPath, threshold, minS)
				if err != nil {
					return Result{}, fmt.Errorf("detect silence at %d dB / %.3f s: %w", threshold, minS, err)
				}

				first, ok := firstValid(intervals)
				if !ok {
					continue
				}

				raw := Window{StartS: first.StartS, EndS: first.EndS, DurationS: first.EndS - first.StartS, ThresholdDb: threshold}
				aligned := raw
				if alignBoundaries {
					aligned = raw.Align(clock)
				}

				l.logger.Info("silence found",
					slog.String("phase", phase.Name),
					slog.Int("threshold_db", threshold),
					slog.Float64("min_duration_s", minS),
					slog.Float64("start_s", raw.StartS),
					slog.Float64("end_s", raw.EndS),
					slog.Float64("aligned_start_s", aligned.StartS),
					slog.Float64("aligned_end_s", aligned.EndS),
				)
				return Result{Raw: raw, Aligned: aligned, MinDuration: minS, Phase: phase.Name, Queries: queries}, nil
			}
		}
	}

	return Result{}, fmt.Errorf("%w after %d queries", ErrSilenceNotFound, queries)
}

func firstValid(intervals []Interval) (Interval, bool) {
	for _, iv := range intervals {
		end := iv.EndS
		if end <= iv.StartS && iv.DurationS > 0 {
			end = iv.StartS + iv.DurationS
		}
		if end > iv.StartS {
			return Interval{StartS: iv.StartS, EndS: end, DurationS: end - iv.StartS}, true
		}
	}
	return Interval{}, false
}
