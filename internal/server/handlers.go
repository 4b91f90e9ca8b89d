package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/delayfix/internal/job"
	"github.com/maauso/delayfix/internal/timecode"
)

var knownStatuses = map[job.Status]bool{
	job.StatusQueued:    true,
	job.StatusRunning:   true,
	job.StatusCompleted: true,
	job.StatusExact:     true,
	job.StatusFailed:    true,
	job.StatusCancelled: true,
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.CorrectionService
	validator          *validator.Validate
	logger             *slog.Logger
	root               mediaRoot
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithMediaRoot confines input_path and output_dir to dir. The default root
// is the working directory.
func WithMediaRoot(dir string) HandlerOption {
	return func(h *Handlers) {
		h.root = newMediaRoot(dir)
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.CorrectionService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		root:               newMediaRoot("."),
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	input, code, err := toServiceRequest(req)
	if err != nil {
		h.logger.Warn("request parsing failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), code)
		return
	}

	if err := h.confine(&input); err != nil {
		h.logger.Warn("request path rejected",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PATH")
		return
	}

	createdJob, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		if errors.Is(err, job.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// Detached from the request so the job outlives the response.
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string, inp job.Request) {
			_, processErr := h.service.ProcessExistingJob(ctx, jobID, inp)
			if processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID, input)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.String("input", input.InputPath),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// ListJobs handles GET /jobs requests, optionally filtered by ?status=.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := job.Status(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	if status != "" && !knownStatuses[status] {
		writeError(w, http.StatusBadRequest, "unknown job status: "+string(status), "INVALID_STATUS")
		return
	}

	jobs, err := h.service.ListJobs(r.Context(), status)
	if err != nil {
		h.logger.Error("failed to list jobs",
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// toServiceRequest parses the textual delay and target of req. On failure it
// also returns the error code to report.
// confine rewrites the paths of req to absolute paths under the media root.
func (h *Handlers) confine(req *job.Request) error {
	in, err := h.root.resolve(req.InputPath)
	if err != nil {
		return fmt.Errorf("input_path: %w", err)
	}
	out, err := h.root.resolve(req.OutputDir)
	if err != nil {
		return fmt.Errorf("output_dir: %w", err)
	}
	req.InputPath, req.OutputDir = in, out
	return nil
}

func toServiceRequest(req CreateJobRequest) (job.Request, string, error) {
	out := job.Request{
		InputPath:      req.InputPath,
		SampleAccurate: req.SampleAccurate,
		OutputDir:      req.OutputDir,
		PushToS3:       req.PushToS3,
	}
	if req.Delay != "" {
		ms, err := timecode.ParseDelay(req.Delay)
		if err != nil {
			return job.Request{}, "INVALID_DELAY", err
		}
		out.DelayMs = ms
	}
	if req.Target != "" {
		s, err := timecode.ParseTarget(req.Target)
		if err != nil {
			return job.Request{}, "INVALID_TARGET", err
		}
		out.HasTarget = true
		out.TargetS = s
	}
	return out, "", nil
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:              j.ID,
		Status:          string(j.Status),
		Stage:           string(j.Stage),
		Error:           j.Error,
		ErrorCode:       j.ErrorCode,
		InputPath:       j.InputPath,
		DelayMs:         j.DelayMs,
		SampleAccurate:  j.SampleAccurate,
		PlanKind:        j.PlanKind,
		FrameDurationMs: j.FrameDurationMs,
		OriginalMs:      j.OriginalMs,
		ExpectedMs:      j.ExpectedMs,
		FinalMs:         j.FinalMs,
		CreatedAt:       j.CreatedAt,
	}
	if j.HasTarget {
		target := j.TargetS
		resp.TargetS = &target
	}
	if j.Status == job.StatusCompleted {
		resp.OutputPath = j.OutputPath
		resp.OutputURL = j.OutputURL
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
