package plan

import (
	"fmt"

	"github.com/maauso/delayfix/internal/frame"
	"github.com/maauso/delayfix/internal/segment"
)

// Operation is an immutable operation plan. The concrete types are
// ExactAlready, CutOnly, PadOnly, CutThenPad and PadThenCut.
type Operation interface {
	Kind() Kind
	operation()
}

// ExactAlready leaves the stream untouched.
type ExactAlready struct{}

// CutOnly drops CutMs from the start of the stream.
type CutOnly struct {
	CutMs float64
}

// PadOnly concatenates Leading, the stream and Trailing in one pass. Either
// plan may be empty.
type PadOnly struct {
	Leading  segment.Plan
	Trailing segment.Plan
}

// CutThenPad drops CutMs from the start, then appends Trailing.
type CutThenPad struct {
	CutMs    float64
	Trailing segment.Plan
}

// PadThenCut prepends Leading, then keeps all but the last ExtraCutMs of the
// intermediate file.
type PadThenCut struct {
	Leading    segment.Plan
	ExtraCutMs float64
}

func (ExactAlready) Kind() Kind { return KindExactAlready }
func (CutOnly) Kind() Kind      { return KindCutOnly }
func (PadOnly) Kind() Kind      { return KindPadOnly }
func (CutThenPad) Kind() Kind   { return KindCutThenPad }
func (PadThenCut) Kind() Kind   { return KindPadThenCut }

func (ExactAlready) operation() {}
func (CutOnly) operation()      {}
func (PadOnly) operation()      {}
func (CutThenPad) operation()   {}
func (PadThenCut) operation()   {}

// Build turns d into an Operation, composing silence segments from src for
// every pad. src is ignored when d needs no silence.
func Build(d Decision, src segment.Source, clock frame.Clock) (Operation, error) {
	switch d.Kind {
	case KindExactAlready:
		return ExactAlready{}, nil

	case KindCutOnly:
		return CutOnly{CutMs: d.CutMs}, nil

	case KindPadOnly:
		var op PadOnly
		trailingMs := d.TrailingPadMs
		if d.LeadingPadMs > 0 {
			leading, err := segment.Compose(src, d.LeadingPadMs, clock)
			if err != nil {
				return nil, fmt.Errorf("compose leading pad: %w", err)
			}
			op.Leading = leading
			// The trailing pad closes the gap to the target, so it absorbs
			// whatever the leading plan could not realize.
			if trailingMs > 0 {
				trailingMs += d.LeadingPadMs - leading.PlannedMs
			}
		}
		if trailingMs > 0 {
			trailing, err := segment.Compose(src, trailingMs, clock)
			if err != nil {
				return nil, fmt.Errorf("compose trailing pad: %w", err)
			}
			op.Trailing = trailing
		}
		return op, nil

	case KindCutThenPad:
		trailing, err := segment.Compose(src, d.TrailingPadMs, clock)
		if err != nil {
			return nil, fmt.Errorf("compose trailing pad: %w", err)
		}
		return CutThenPad{CutMs: d.CutMs, Trailing: trailing}, nil

	case KindPadThenCut:
		leading, err := segment.Compose(src, d.LeadingPadMs, clock)
		if err != nil {
			return nil, fmt.Errorf("compose leading pad: %w", err)
		}
		return PadThenCut{Leading: leading, ExtraCutMs: d.ExtraCutMs}, nil

	default:
		return nil, fmt.Errorf("%w: unknown plan kind %q", ErrInvalidRequest, d.Kind)
	}
}
