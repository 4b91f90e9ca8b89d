package cli

import "github.com/maauso/delayfix/internal/job"

// Process exit codes.
const (
	ExitOK                    = 0
	ExitFailure               = 1
	ExitInvalidInput          = 2
	ExitFrameUndetermined     = 3
	ExitSilenceNotFound       = 4
	ExitMetadataUnavailable   = 5
	ExitCutExceedsDuration    = 6
	ExitEngineInvocationError = 7
)

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch job.Classify(err) {
	case job.CodeInvalidInput:
		return ExitInvalidInput
	case job.CodeFrameDurationUndetermined:
		return ExitFrameUndetermined
	case job.CodeSilenceNotFound:
		return ExitSilenceNotFound
	case job.CodeMetadataUnavailable:
		return ExitMetadataUnavailable
	case job.CodeCutExceedsDuration:
		return ExitCutExceedsDuration
	case job.CodeEngineFailure:
		return ExitEngineInvocationError
	default:
		return ExitFailure
	}
}
