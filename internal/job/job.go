// Package job provides the correction Job aggregate and the service that runs
// a delay/target correction end to end. It includes the Job entity with its
// state machine, as well as repository interfaces for persistence.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/delayfix/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusQueued indicates the job is accepted but not started.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates the pipeline is working on the job.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates a corrected file was produced.
	StatusCompleted Status = "COMPLETED"
	// StatusExact indicates the input already had the target duration and
	// nothing was written.
	StatusExact Status = "EXACT"
	// StatusFailed indicates the pipeline stopped with an error.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job's context was cancelled.
	StatusCancelled Status = "CANCELLED"
)

// Stage names the pipeline step a running job is in.
type Stage string

const (
	StageRepackage Stage = "repackage"
	StageProbe     Stage = "probe"
	StageResolve   Stage = "resolve"
	StagePlan      Stage = "plan"
	StageSilence   Stage = "silence"
	StageRealize   Stage = "realize"
	StageVerify    Stage = "verify"
	StagePublish   Stage = "publish"
	StageUpload    Stage = "upload"
	StageDone      Stage = "done"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusExact, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusExact:     {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job represents one correction request and everything learned while
// running it.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Stage is the last pipeline step entered.
	Stage Stage
	// Error contains the error message if the job failed.
	Error string
	// ErrorCode is a stable machine-readable failure class.
	ErrorCode string

	// InputPath is the file being corrected.
	InputPath string
	// DelayMs is the signed delay; zero means none.
	DelayMs float64
	// HasTarget reports whether TargetS was requested.
	HasTarget bool
	// TargetS is the requested total duration in seconds.
	TargetS float64
	// SampleAccurate selects the one-sample clock and re-encoded extraction.
	SampleAccurate bool
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool

	// PlanKind is the operation chosen by the planner.
	PlanKind string
	// FrameDurationMs is the resolved frame clock.
	FrameDurationMs float64
	// OriginalMs is the measured input duration.
	OriginalMs float64
	// ExpectedMs is the planner's predicted output duration.
	ExpectedMs float64
	// FinalMs is the measured output duration.
	FinalMs float64

	// OutputPath is the published corrected file.
	OutputPath string
	// OutputURL is the S3 URL if PushToS3 was true.
	OutputURL string

	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial QUEUED status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial QUEUED status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusExact, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
		if status != StatusFailed && status != StatusCancelled {
			j.Stage = StageDone
		}
	}

	return nil
}

// Start transitions the job from QUEUED to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED state.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// MarkExact transitions the job to EXACT state.
func (j *Job) MarkExact() error {
	return j.TransitionTo(StatusExact)
}

// Fail transitions the job to FAILED state with an error code and message.
func (j *Job) Fail(code, errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.ErrorCode = code
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetStage records the pipeline step the job entered.
func (j *Job) SetStage(stage Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Stage = stage
	j.UpdatedAt = time.Now()
}

// SetAnalysis records what probing and planning learned about the input.
func (j *Job) SetAnalysis(frameMs, originalMs float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.FrameDurationMs = frameMs
	j.OriginalMs = originalMs
	j.UpdatedAt = time.Now()
}

// SetPlan records the planner's decision.
func (j *Job) SetPlan(kind string, expectedMs float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.PlanKind = kind
	j.ExpectedMs = expectedMs
	j.UpdatedAt = time.Now()
}

// SetOutput sets the output path, its measured duration and optional S3 URL.
func (j *Job) SetOutput(path string, finalMs float64, url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = path
	j.FinalMs = finalMs
	j.OutputURL = url
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusExact ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:              j.ID,
		Status:          j.Status,
		Stage:           j.Stage,
		Error:           j.Error,
		ErrorCode:       j.ErrorCode,
		InputPath:       j.InputPath,
		DelayMs:         j.DelayMs,
		HasTarget:       j.HasTarget,
		TargetS:         j.TargetS,
		SampleAccurate:  j.SampleAccurate,
		PushToS3:        j.PushToS3,
		PlanKind:        j.PlanKind,
		FrameDurationMs: j.FrameDurationMs,
		OriginalMs:      j.OriginalMs,
		ExpectedMs:      j.ExpectedMs,
		FinalMs:         j.FinalMs,
		OutputPath:      j.OutputPath,
		OutputURL:       j.OutputURL,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
}
