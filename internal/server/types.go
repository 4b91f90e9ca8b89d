// Package server provides the HTTP job API for delayfix.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CreateJobRequest is the HTTP request body for creating a correction job.
type CreateJobRequest struct {
	// InputPath is the audio file to correct, relative to the media root or
	// an absolute path under it.
	InputPath string `json:"input_path" validate:"required"`
	// Delay is the signed delay, e.g. "2000", "-1.5s" or "120ms".
	Delay string `json:"delay" validate:"required_without=Target"`
	// Target is the wanted total duration, e.g. "01:23:45.678".
	Target string `json:"target" validate:"required_without=Delay"`
	// SampleAccurate selects single-sample precision with re-encoding.
	SampleAccurate bool `json:"sample_accurate"`
	// OutputDir receives the corrected file; empty means next to the input.
	// It is confined to the media root like InputPath.
	OutputDir string `json:"output_dir"`
	// PushToS3 indicates whether to upload the corrected file to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	// Stage is the last pipeline step entered.
	Stage string `json:"stage,omitempty"`
	// Error contains the error message if the job failed.
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	InputPath      string   `json:"input_path"`
	DelayMs        float64  `json:"delay_ms"`
	TargetS        *float64 `json:"target_s,omitempty"`
	SampleAccurate bool     `json:"sample_accurate"`

	PlanKind        string  `json:"plan,omitempty"`
	FrameDurationMs float64 `json:"frame_duration_ms,omitempty"`
	OriginalMs      float64 `json:"original_ms,omitempty"`
	ExpectedMs      float64 `json:"expected_ms,omitempty"`
	FinalMs         float64 `json:"final_ms,omitempty"`

	// OutputPath is the published corrected file once the job completed.
	OutputPath string `json:"output_path,omitempty"`
	// OutputURL is the S3 URL of the corrected file (if push_to_s3=true).
	OutputURL string `json:"output_url,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
