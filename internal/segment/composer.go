// Package segment decomposes a silence duration into whole copies of a
// reusable silence clip plus one frame-aligned partial copy, and materializes
// that decomposition on disk.
package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/maauso/delayfix/internal/frame"
)

// ErrInvalidRequest is returned for a non-positive request or source length.
var ErrInvalidRequest = errors.New("invalid segment request")

// minRemainderMs is the shortest remainder worth a partial segment.
const minRemainderMs = 1.0

// Kind tells whether an entry reuses the whole source or a cut of it.
type Kind string

const (
	KindFull    Kind = "full"
	KindPartial Kind = "partial"
)

// Source is a materialized silence clip. DurationMs is the re-measured
// length, not the length that was requested from the extractor.
type Source struct {
	Path       string
	DurationMs float64
}

// Entry is one piece of a Plan. Partial entries cover [0, DurationMs] of the
// source.
type Entry struct {
	SourceRef  string
	Kind       Kind
	DurationMs float64
}

// Plan is the ordered list of entries realizing RequestMs.
type Plan struct {
	Entries     []Entry
	RequestMs   float64
	FullCount   int
	RemainderMs float64 // before alignment
	PlannedMs   float64 // sum of entry durations
}

// Empty reports whether p has no entries.
func (p Plan) Empty() bool { return len(p.Entries) == 0 }

// Compose splits requestMs into whole copies of src and at most one partial
// copy whose length is rounded to the frame grid of clock. A remainder that
// rounds to zero frames is dropped; one that rounds up to the whole source
// becomes another full copy.
func Compose(src Source, requestMs float64, clock frame.Clock) (Plan, error) {
	if requestMs <= 0 {
		return Plan{}, fmt.Errorf("%w: request %.3f ms", ErrInvalidRequest, requestMs)
	}
	if src.DurationMs <= 0 {
		return Plan{}, fmt.Errorf("%w: source %s has no duration", ErrInvalidRequest, src.Path)
	}

	ratio := requestMs / src.DurationMs
	full := math.Floor(ratio)
	if math.Abs(ratio-math.Round(ratio)) < 1e-9 {
		full = math.Round(ratio)
	}
	remainder := math.Max(requestMs-full*src.DurationMs, 0)

	p := Plan{RequestMs: requestMs, FullCount: int(full), RemainderMs: remainder}
	for i := 0; i < int(full); i++ {
		p.Entries = append(p.Entries, Entry{SourceRef: src.Path, Kind: KindFull, DurationMs: src.DurationMs})
	}

	if remainder >= minRemainderMs {
		// Nearest frame with no three-frame floor: a one-frame partial keeps
		// the result within one frame of the request.
		partial := frame.NearestMultiple(remainder, clock.FrameDurationMs())
		switch {
		case partial >= src.DurationMs-1e-6:
			p.FullCount++
			p.Entries = append(p.Entries, Entry{SourceRef: src.Path, Kind: KindFull, DurationMs: src.DurationMs})
		case partial > 1e-6:
			p.Entries = append(p.Entries, Entry{SourceRef: src.Path, Kind: KindPartial, DurationMs: partial})
		}
	}

	for _, e := range p.Entries {
		p.PlannedMs += e.DurationMs
	}
	return p, nil
}

// Extractor cuts [startS, endS] of src into dst.
type Extractor interface {
	Extract(ctx context.Context, src, dst string, startS, endS float64, sampleAccurate bool) error
}

// Measurer returns the real duration of a media file.
type Measurer interface {
	MeasureMs(ctx context.Context, path string) (float64, error)
}

// Scratch names files inside a per-run scratch directory.
type Scratch interface {
	Path(name string) string
}

// Realized is a materialized Plan: Files are in concatenation order.
type Realized struct {
	Plan        Plan
	Files       []string
	RealizedMs  float64
	DeviationMs float64
	Deviated    bool
}

// Composer materializes plans through an Extractor.
type Composer struct {
	extractor Extractor
	measurer  Measurer
	logger    *slog.Logger
	// warnMs is added to half a frame to get the largest silent deviation.
	warnMs float64
}

// NewComposer creates a Composer.
func NewComposer(extractor Extractor, measurer Measurer, warnMs float64, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{extractor: extractor, measurer: measurer, warnMs: warnMs, logger: logger}
}

// Materialize extracts the partial entry of p (full entries reuse the source
// file as-is), re-measures it and reports the realized total. A realized total
// further than half a frame plus warnMs from the request is logged and
// flagged, never failed.
func (c *Composer) Materialize(ctx context.Context, p Plan, clock frame.Clock, scratch Scratch, label string, sampleAccurate bool) (Realized, error) {
	r := Realized{Plan: p}

	for i, e := range p.Entries {
		switch e.Kind {
		case KindFull:
			r.Files = append(r.Files, e.SourceRef)
			r.RealizedMs += e.DurationMs
		case KindPartial:
			dst := scratch.Path(fmt.Sprintf("%s_partial_%02d.mka", label, i))
			if err := c.extractor.Extract(ctx, e.SourceRef, dst, 0, e.DurationMs/1000, sampleAccurate); err != nil {
				return Realized{}, fmt.Errorf("extract partial silence: %w", err)
			}
			measured, err := c.measurer.MeasureMs(ctx, dst)
			if err != nil {
				return Realized{}, fmt.Errorf("measure partial silence: %w", err)
			}
			c.logger.Debug("partial silence extracted",
				slog.String("path", dst),
				slog.Float64("requested_ms", e.DurationMs),
				slog.Float64("measured_ms", measured),
			)
			r.Files = append(r.Files, dst)
			r.RealizedMs += measured
		default:
			return Realized{}, fmt.Errorf("%w: unknown entry kind %q", ErrInvalidRequest, e.Kind)
		}
	}

	r.DeviationMs = r.RealizedMs - p.RequestMs
	limit := clock.FrameDurationMs()/2 + c.warnMs
	if math.Abs(r.DeviationMs) > limit {
		r.Deviated = true
		c.logger.Warn("realized silence deviates from request",
			slog.String("label", label),
			slog.Float64("request_ms", p.RequestMs),
			slog.Float64("realized_ms", r.RealizedMs),
			slog.Float64("deviation_ms", r.DeviationMs),
			slog.Float64("limit_ms", limit),
		)
	}

	c.logger.Info("silence segments ready",
		slog.String("label", label),
		slog.Int("full", p.FullCount),
		slog.Int("files", len(r.Files)),
		slog.Float64("realized_ms", r.RealizedMs),
	)
	return r, nil
}
