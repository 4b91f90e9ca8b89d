// Package plan decides, from a signed delay and an optional target duration,
// which cut/pad/concatenate sequence brings a stream to the wanted length.
package plan

import (
	"errors"
	"fmt"
	"math"

	"github.com/maauso/delayfix/internal/frame"
)

// DefaultToleranceMs is how close two durations must be to count as equal.
const DefaultToleranceMs = 0.1

var (
	// ErrNoAdjustment is returned for a zero delay without a target; the
	// caller runs an analysis instead.
	ErrNoAdjustment = errors.New("no delay or target requested")
	// ErrCutExceedsDuration is returned when a cut would remove the whole
	// stream. Cuts are never clamped.
	ErrCutExceedsDuration = errors.New("cut exceeds stream duration")
	// ErrInvalidRequest is returned for requests missing a duration or clock.
	ErrInvalidRequest = errors.New("invalid plan request")
)

// Kind names an operation plan.
type Kind string

const (
	KindExactAlready Kind = "exact_already"
	KindCutOnly      Kind = "cut_only"
	KindPadOnly      Kind = "pad_only"
	KindCutThenPad   Kind = "cut_then_pad"
	KindPadThenCut   Kind = "pad_then_cut"
)

// Request is the input of Decide.
type Request struct {
	// DelayMs is positive to prepend silence, negative to drop leading audio.
	DelayMs   float64
	HasTarget bool
	TargetS   float64
	// CurrentMs is the measured duration of the stream.
	CurrentMs   float64
	Clock       frame.Clock
	ToleranceMs float64
}

// Decision is the outcome of Decide. Durations are in milliseconds and
// already frame-aligned, except pads that close a gap to the target, which
// the segment composer aligns.
type Decision struct {
	Kind          Kind
	CutMs         float64 // removed from the start
	LeadingPadMs  float64
	TrailingPadMs float64
	ExtraCutMs    float64 // removed from the end after padding
	ExpectedMs    float64
}

// NeedsSilence reports whether realizing d requires a silence source.
func (d Decision) NeedsSilence() bool {
	return d.LeadingPadMs > 0 || d.TrailingPadMs > 0
}

// Decide selects the operation plan for req. Same-direction adjustments are
// folded into one operation.
func Decide(req Request) (Decision, error) {
	if req.CurrentMs <= 0 {
		return Decision{}, fmt.Errorf("%w: stream duration %.3f ms", ErrInvalidRequest, req.CurrentMs)
	}
	if req.Clock.IsZero() {
		return Decision{}, fmt.Errorf("%w: frame clock required", ErrInvalidRequest)
	}
	if req.HasTarget && req.TargetS <= 0 {
		return Decision{}, fmt.Errorf("%w: target %.3f s", ErrInvalidRequest, req.TargetS)
	}

	tol := req.ToleranceMs
	if tol <= 0 {
		tol = DefaultToleranceMs
	}
	targetMs := req.TargetS * 1000

	switch {
	case math.Abs(req.DelayMs) < tol:
		if !req.HasTarget {
			return Decision{}, ErrNoAdjustment
		}
		return decideTargetOnly(req, targetMs, tol)
	case req.DelayMs < 0:
		return decideCut(req, targetMs, tol)
	default:
		return decidePad(req, targetMs, tol)
	}
}

func decideTargetOnly(req Request, targetMs, tol float64) (Decision, error) {
	need := targetMs - req.CurrentMs
	switch {
	case math.Abs(need) < tol:
		return Decision{Kind: KindExactAlready, ExpectedMs: req.CurrentMs}, nil
	case need > 0:
		return Decision{Kind: KindPadOnly, TrailingPadMs: need, ExpectedMs: targetMs}, nil
	default:
		cut := req.Clock.AlignDuration(-need)
		if err := checkCut(cut, req.CurrentMs); err != nil {
			return Decision{}, err
		}
		return Decision{Kind: KindCutOnly, CutMs: cut, ExpectedMs: req.CurrentMs - cut}, nil
	}
}

func decideCut(req Request, targetMs, tol float64) (Decision, error) {
	cut := req.Clock.AlignDuration(-req.DelayMs)
	if err := checkCut(cut, req.CurrentMs); err != nil {
		return Decision{}, err
	}
	after := req.CurrentMs - cut

	if !req.HasTarget {
		return Decision{Kind: KindCutOnly, CutMs: cut, ExpectedMs: after}, nil
	}

	extra := targetMs - after
	switch {
	case math.Abs(extra) < tol:
		return Decision{Kind: KindCutOnly, CutMs: cut, ExpectedMs: after}, nil
	case extra < 0:
		total := req.Clock.AlignDuration(cut - extra)
		if err := checkCut(total, req.CurrentMs); err != nil {
			return Decision{}, err
		}
		return Decision{Kind: KindCutOnly, CutMs: total, ExpectedMs: req.CurrentMs - total}, nil
	default:
		return Decision{Kind: KindCutThenPad, CutMs: cut, TrailingPadMs: extra, ExpectedMs: targetMs}, nil
	}
}

func decidePad(req Request, targetMs, tol float64) (Decision, error) {
	pad := req.Clock.AlignDuration(req.DelayMs)
	after := req.CurrentMs + pad

	if !req.HasTarget {
		return Decision{Kind: KindPadOnly, LeadingPadMs: pad, ExpectedMs: after}, nil
	}

	extra := targetMs - after
	switch {
	case math.Abs(extra) < tol:
		return Decision{Kind: KindPadOnly, LeadingPadMs: pad, ExpectedMs: after}, nil
	case extra > 0:
		return Decision{Kind: KindPadOnly, LeadingPadMs: pad, TrailingPadMs: extra, ExpectedMs: targetMs}, nil
	default:
		endCut := req.Clock.AlignDuration(-extra)
		if err := checkCut(endCut, after); err != nil {
			return Decision{}, err
		}
		return Decision{Kind: KindPadThenCut, LeadingPadMs: pad, ExtraCutMs: endCut, ExpectedMs: after - endCut}, nil
	}
}

func checkCut(cutMs, durationMs float64) error {
	if cutMs >= durationMs {
		return fmt.Errorf("%w: cut %.3f ms, duration %.3f ms", ErrCutExceedsDuration, cutMs, durationMs)
	}
	return nil
}

// OutputSuffix names the corrected file: "_delay", "_target" or
// "_delay_target".
func OutputSuffix(hasDelay, hasTarget bool) string {
	switch {
	case hasDelay && hasTarget:
		return "_delay_target"
	case hasDelay:
		return "_delay"
	case hasTarget:
		return "_target"
	default:
		return ""
	}
}
