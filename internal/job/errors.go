package job

import (
	"context"
	"errors"

	"github.com/maauso/delayfix/internal/audio"
	"github.com/maauso/delayfix/internal/frame"
	"github.com/maauso/delayfix/internal/media"
	"github.com/maauso/delayfix/internal/plan"
	"github.com/maauso/delayfix/internal/silence"
	"github.com/maauso/delayfix/internal/timecode"
)

var (
	// ErrInvalidRequest is returned for a request the pipeline cannot start.
	ErrInvalidRequest = errors.New("invalid correction request")
	// ErrInputNotFound is returned when the input file does not exist.
	ErrInputNotFound = errors.New("input file not found")
)

// ErrorCode is the stable failure class recorded on a failed job and used by
// the CLI to pick its exit code.
type ErrorCode string

const (
	CodeInvalidInput              ErrorCode = "invalid_input"
	CodeInputNotFound             ErrorCode = "input_not_found"
	CodeFrameDurationUndetermined ErrorCode = "frame_duration_undetermined"
	CodeSilenceNotFound           ErrorCode = "silence_not_found"
	CodeMetadataUnavailable       ErrorCode = "metadata_unavailable"
	CodeCutExceedsDuration        ErrorCode = "cut_exceeds_duration"
	CodeEngineFailure             ErrorCode = "engine_failure"
	CodeCancelled                 ErrorCode = "cancelled"
	CodeInternal                  ErrorCode = "internal"
)

// Classify maps an error from the pipeline to its ErrorCode. A nil error has
// no code.
func Classify(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, timecode.ErrParse),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, plan.ErrNoAdjustment),
		errors.Is(err, plan.ErrInvalidRequest):
		return CodeInvalidInput
	case errors.Is(err, ErrInputNotFound):
		return CodeInputNotFound
	case errors.Is(err, frame.ErrFrameDurationUndetermined):
		return CodeFrameDurationUndetermined
	case errors.Is(err, silence.ErrSilenceNotFound):
		return CodeSilenceNotFound
	case errors.Is(err, media.ErrMetadataUnavailable):
		return CodeMetadataUnavailable
	case errors.Is(err, plan.ErrCutExceedsDuration):
		return CodeCutExceedsDuration
	case errors.Is(err, audio.ErrEngineInvocation):
		return CodeEngineFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	default:
		return CodeInternal
	}
}
