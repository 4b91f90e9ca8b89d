package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/maauso/delayfix/internal/audio"
	"github.com/maauso/delayfix/internal/frame"
	"github.com/maauso/delayfix/internal/media"
	"github.com/maauso/delayfix/internal/plan"
	"github.com/maauso/delayfix/internal/segment"
	"github.com/maauso/delayfix/internal/silence"
	"github.com/maauso/delayfix/internal/storage"
)

// Prober reads stream metadata and measures durations.
type Prober interface {
	media.Prober
	MeasureMs(ctx context.Context, path string) (float64, error)
}

// Request contains the input parameters for one correction.
type Request struct {
	// InputPath is the audio file to correct.
	InputPath string
	// DelayMs is the signed delay; zero means none.
	DelayMs float64
	// HasTarget reports whether TargetS is set.
	HasTarget bool
	// TargetS is the wanted total duration in seconds.
	TargetS float64
	// SampleAccurate works on single samples instead of codec frames and
	// re-encodes extracted segments.
	SampleAccurate bool
	// OutputDir receives the corrected file; empty means next to the input.
	OutputDir string
	// PushToS3 uploads the corrected file after publishing.
	PushToS3 bool
}

// HasDelay reports whether a non-zero delay was requested.
func (r Request) HasDelay() bool { return r.DelayMs != 0 }

// Result contains everything a correction produced.
type Result struct {
	// JobID is the unique identifier for the job.
	JobID string
	// Status is the final job status.
	Status Status

	Metadata media.Metadata
	Clock    frame.Clock
	// Strategy names the resolver strategy that produced Clock.
	Strategy  string
	Decision  plan.Decision
	Operation plan.Operation

	// Silence is set when the plan needed a silence source.
	Silence       *silence.Result
	SilenceSource segment.Source
	Segments      []segment.Realized

	// FinalMs is the measured duration of the corrected file.
	FinalMs float64
	// TargetDiffMs is FinalMs minus the target; zero without a target.
	TargetDiffMs float64

	OutputPath string
	OutputURL  string
	// ScratchDir is set when temporary files were kept.
	ScratchDir string
}

// Analysis is the report of an analysis run: no file is written.
type Analysis struct {
	Metadata media.Metadata
	Clock    frame.Clock
	Strategy string
	// Silence is nil when the input has no usable silence. Source is then
	// empty too.
	Silence *silence.Result
	Source  segment.Source
	// ScratchDir is set when temporary files were kept.
	ScratchDir string
}

// CorrectionService orchestrates a delay/target correction: repackage,
// probe, resolve the frame clock, plan, locate silence, realize the plan,
// verify and publish.
type CorrectionService struct {
	repo     Repository
	engine   audio.Engine
	prober   Prober
	store    storage.Storage
	resolver *frame.Resolver
	locator  *silence.Locator
	composer *segment.Composer
	logger   *slog.Logger

	toleranceMs     float64
	deviationWarnMs float64
	s3Prefix        string
	search          *silence.Search
}

// ServiceOption configures a CorrectionService.
type ServiceOption func(*CorrectionService)

// WithToleranceMs sets how close durations must be to count as equal.
func WithToleranceMs(ms float64) ServiceOption {
	return func(s *CorrectionService) {
		if ms > 0 {
			s.toleranceMs = ms
		}
	}
}

// WithDeviationWarnMs sets the slack, on top of half a frame, before a
// realized silence segment is reported as deviating.
func WithDeviationWarnMs(ms float64) ServiceOption {
	return func(s *CorrectionService) {
		if ms >= 0 {
			s.deviationWarnMs = ms
		}
	}
}

// WithS3Prefix sets the key prefix of uploaded files.
func WithS3Prefix(prefix string) ServiceOption {
	return func(s *CorrectionService) {
		s.s3Prefix = prefix
	}
}

// WithSilenceSearch replaces the default silence search grid.
func WithSilenceSearch(search silence.Search) ServiceOption {
	return func(s *CorrectionService) {
		s.search = &search
	}
}

// NewCorrectionService creates a new CorrectionService.
func NewCorrectionService(
	repo Repository,
	engine audio.Engine,
	prober Prober,
	store storage.Storage,
	logger *slog.Logger,
	opts ...ServiceOption,
) *CorrectionService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &CorrectionService{
		repo:            repo,
		engine:          engine,
		prober:          prober,
		store:           store,
		logger:          logger,
		toleranceMs:     plan.DefaultToleranceMs,
		deviationWarnMs: 1.0,
		s3Prefix:        "corrected",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.resolver = frame.NewResolver(logger)
	s.locator = silence.NewLocator(engine, logger)
	if s.search != nil {
		s.locator = s.locator.WithSearch(*s.search)
	}
	s.composer = segment.NewComposer(engine, prober, s.deviationWarnMs, logger)
	return s
}

// CreateJob validates req, creates a job for it and persists it in QUEUED
// status.
func (s *CorrectionService) CreateJob(ctx context.Context, req Request) (*Job, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	job := New()
	job.InputPath = req.InputPath
	job.DelayMs = req.DelayMs
	job.HasTarget = req.HasTarget
	job.TargetS = req.TargetS
	job.SampleAccurate = req.SampleAccurate
	job.PushToS3 = req.PushToS3

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("input", req.InputPath),
		slog.Float64("delay_ms", req.DelayMs),
		slog.Bool("has_target", req.HasTarget),
		slog.Float64("target_s", req.TargetS),
		slog.Bool("sample_accurate", req.SampleAccurate),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (s *CorrectionService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, or only those in status when it is non-empty.
func (s *CorrectionService) ListJobs(ctx context.Context, status Status) ([]*Job, error) {
	if status == "" {
		return s.repo.List(ctx)
	}
	return s.repo.ListByStatus(ctx, status)
}

// Process creates a job for req and runs it to completion.
func (s *CorrectionService) Process(ctx context.Context, req Request) (*Result, error) {
	job, err := s.CreateJob(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, job, req)
}

// ProcessExistingJob runs a job previously created with CreateJob.
func (s *CorrectionService) ProcessExistingJob(ctx context.Context, jobID string, req Request) (*Result, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("find job %s: %w", jobID, err)
	}
	return s.run(ctx, job, req)
}

// Analyze repackages the input, resolves its frame clock and extracts its
// first usable silence, without planning or writing a corrected file. An
// input without usable silence is still reported, with Silence left nil.
func (s *CorrectionService) Analyze(ctx context.Context, inputPath string, sampleAccurate bool) (*Analysis, error) {
	if err := checkInput(inputPath); err != nil {
		return nil, err
	}

	scratch, err := s.store.NewScratch(ctx, "analyze")
	if err != nil {
		return nil, fmt.Errorf("create scratch space: %w", err)
	}
	defer s.cleanup(scratch)

	mka, md, err := s.prepare(ctx, scratch, inputPath, nil)
	if err != nil {
		return nil, err
	}

	a := &Analysis{Metadata: md}
	a.Clock, a.Strategy, err = s.clockFor(md, sampleAccurate)
	if err != nil {
		return a, err
	}

	loc, src, err := s.silenceSource(ctx, scratch, mka, a.Clock, sampleAccurate)
	switch {
	case errors.Is(err, silence.ErrSilenceNotFound):
		s.logger.Warn("no usable silence in input",
			slog.String("input", inputPath),
			slog.String("error", err.Error()),
		)
	case err != nil:
		return a, err
	default:
		a.Silence, a.Source = &loc, src
	}
	if scratch.Kept() {
		a.ScratchDir = scratch.Dir()
	}
	return a, nil
}

// run drives job through the pipeline and records the outcome on it.
func (s *CorrectionService) run(ctx context.Context, job *Job, req Request) (*Result, error) {
	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", job.ID, err)
	}
	s.save(ctx, job)

	res, err := s.correct(ctx, job, req)
	if res == nil {
		res = &Result{}
	}
	res.JobID = job.ID

	if err != nil {
		code := Classify(err)
		if code == CodeCancelled {
			_ = job.Cancel()
		} else {
			_ = job.Fail(string(code), err.Error())
		}
		s.logger.Error("correction failed",
			slog.String("job_id", job.ID),
			slog.String("stage", string(job.Stage)),
			slog.String("code", string(code)),
			slog.String("error", err.Error()),
		)
		s.save(context.WithoutCancel(ctx), job)
		res.Status = job.GetStatus()
		return res, err
	}

	if res.Decision.Kind == plan.KindExactAlready {
		_ = job.MarkExact()
	} else {
		_ = job.Complete()
	}
	s.save(ctx, job)
	res.Status = job.GetStatus()

	s.logger.Info("correction finished",
		slog.String("job_id", job.ID),
		slog.String("status", string(res.Status)),
		slog.String("plan", string(res.Decision.Kind)),
		slog.String("output", res.OutputPath),
	)
	return res, nil
}

func (s *CorrectionService) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CorrectionService) enter(ctx context.Context, job *Job, stage Stage) {
	job.SetStage(stage)
	s.save(ctx, job)
	s.logger.Debug("stage entered",
		slog.String("job_id", job.ID),
		slog.String("stage", string(stage)),
	)
}

func (s *CorrectionService) cleanup(scratch *storage.Scratch) {
	if err := scratch.Cleanup(); err != nil {
		s.logger.Warn("failed to clean up scratch space",
			slog.String("dir", scratch.Dir()),
			slog.String("error", err.Error()),
		)
		return
	}
	if scratch.Kept() {
		s.logger.Info("temporary files kept", slog.String("dir", scratch.Dir()))
	}
}

func validateRequest(req Request) error {
	if req.InputPath == "" {
		return fmt.Errorf("%w: input path is required", ErrInvalidRequest)
	}
	if !req.HasDelay() && !req.HasTarget {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, plan.ErrNoAdjustment)
	}
	if req.HasTarget && req.TargetS <= 0 {
		return fmt.Errorf("%w: target must be positive, got %g s", ErrInvalidRequest, req.TargetS)
	}
	return nil
}

func checkInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return fmt.Errorf("stat input %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidRequest, path)
	}
	return nil
}
