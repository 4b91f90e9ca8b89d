package job

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	"github.com/maauso/delayfix/internal/frame"
	"github.com/maauso/delayfix/internal/media"
	"github.com/maauso/delayfix/internal/plan"
	"github.com/maauso/delayfix/internal/segment"
	"github.com/maauso/delayfix/internal/silence"
	"github.com/maauso/delayfix/internal/storage"
	"github.com/maauso/delayfix/internal/timecode"
)

// strategySample names the clock used in sample-accurate mode.
const strategySample = "sample_accurate"

// correct runs the pipeline stages for one job. The returned Result is never
// nil and holds whatever was learned before a failure.
func (s *CorrectionService) correct(ctx context.Context, job *Job, req Request) (*Result, error) {
	res := &Result{}

	if err := checkInput(req.InputPath); err != nil {
		return res, err
	}

	scratch, err := s.store.NewScratch(ctx, job.ID)
	if err != nil {
		return res, fmt.Errorf("create scratch space: %w", err)
	}
	defer s.cleanup(scratch)
	if scratch.Kept() {
		res.ScratchDir = scratch.Dir()
	}

	mka, md, err := s.prepare(ctx, scratch, req.InputPath, func(st Stage) { s.enter(ctx, job, st) })
	res.Metadata = md
	if err != nil {
		return res, err
	}

	s.enter(ctx, job, StageResolve)
	res.Clock, res.Strategy, err = s.clockFor(md, req.SampleAccurate)
	if err != nil {
		return res, err
	}
	job.SetAnalysis(res.Clock.FrameDurationMs(), md.DurationMs)

	s.enter(ctx, job, StagePlan)
	d, err := plan.Decide(plan.Request{
		DelayMs:     req.DelayMs,
		HasTarget:   req.HasTarget,
		TargetS:     req.TargetS,
		CurrentMs:   md.DurationMs,
		Clock:       res.Clock,
		ToleranceMs: s.toleranceMs,
	})
	if err != nil {
		return res, fmt.Errorf("plan correction: %w", err)
	}
	res.Decision = d
	job.SetPlan(string(d.Kind), d.ExpectedMs)

	s.logger.Info("correction planned",
		slog.String("job_id", job.ID),
		slog.String("plan", string(d.Kind)),
		slog.Float64("current_ms", md.DurationMs),
		slog.Float64("cut_ms", d.CutMs),
		slog.Float64("leading_pad_ms", d.LeadingPadMs),
		slog.Float64("trailing_pad_ms", d.TrailingPadMs),
		slog.Float64("extra_cut_ms", d.ExtraCutMs),
		slog.Float64("expected_ms", d.ExpectedMs),
	)

	if d.Kind == plan.KindExactAlready {
		res.Operation = plan.ExactAlready{}
		res.FinalMs = md.DurationMs
		res.TargetDiffMs = md.DurationMs - req.TargetS*1000
		return res, nil
	}

	var src segment.Source
	if d.NeedsSilence() {
		s.enter(ctx, job, StageSilence)
		loc, source, err := s.silenceSource(ctx, scratch, mka, res.Clock, req.SampleAccurate)
		if err != nil {
			return res, err
		}
		res.Silence = &loc
		res.SilenceSource = source
		src = source
	}

	op, err := plan.Build(d, src, res.Clock)
	if err != nil {
		return res, fmt.Errorf("build operation plan: %w", err)
	}
	res.Operation = op

	s.enter(ctx, job, StageRealize)
	out, segs, err := s.realize(ctx, op, mka, scratch, res.Clock, req.SampleAccurate)
	res.Segments = segs
	if err != nil {
		return res, err
	}

	s.enter(ctx, job, StageVerify)
	res.FinalMs, err = s.prober.MeasureMs(ctx, out)
	if err != nil {
		return res, fmt.Errorf("measure corrected file: %w", err)
	}
	if req.HasTarget {
		res.TargetDiffMs = res.FinalMs - req.TargetS*1000
	}
	s.verify(job, res, req)

	s.enter(ctx, job, StagePublish)
	destDir := req.OutputDir
	if destDir == "" {
		destDir = filepath.Dir(req.InputPath)
	}
	res.OutputPath, err = s.store.Publish(ctx, out, destDir, OutputName(req))
	if err != nil {
		return res, fmt.Errorf("publish corrected file: %w", err)
	}

	if req.PushToS3 {
		s.enter(ctx, job, StageUpload)
		res.OutputURL, err = storage.UploadFile(ctx, s.store, s.s3Prefix, res.OutputPath)
		if err != nil {
			return res, fmt.Errorf("upload corrected file: %w", err)
		}
	}

	job.SetOutput(res.OutputPath, res.FinalMs, res.OutputURL)
	return res, nil
}

// prepare repackages the input into a Matroska file in scratch and probes it.
func (s *CorrectionService) prepare(
	ctx context.Context,
	scratch *storage.Scratch,
	inputPath string,
	enter func(Stage),
) (string, media.Metadata, error) {
	if enter == nil {
		enter = func(Stage) {}
	}

	enter(StageRepackage)
	mka := scratch.Path("input.mka")
	if err := s.engine.RepackageLossless(ctx, inputPath, mka); err != nil {
		return "", media.Metadata{}, fmt.Errorf("repackage %s: %w", inputPath, err)
	}

	enter(StageProbe)
	md, err := s.prober.Probe(ctx, mka)
	if err != nil {
		return "", media.Metadata{}, fmt.Errorf("probe %s: %w", inputPath, err)
	}

	s.logger.Info("input probed",
		slog.String("input", inputPath),
		slog.String("codec", md.Codec),
		slog.Float64("sample_rate", md.SampleRate),
		slog.Int("channels", md.Channels),
		slog.Float64("duration_ms", md.DurationMs),
		slog.String("duration", timecode.Friendly(md.DurationS())),
	)
	return mka, md, nil
}

// clockFor resolves the frame clock of md, or builds a one-sample clock in
// sample-accurate mode.
func (s *CorrectionService) clockFor(md media.Metadata, sampleAccurate bool) (frame.Clock, string, error) {
	if sampleAccurate {
		c, err := frame.SampleClock(md.SampleRate)
		if err != nil {
			return frame.Clock{}, "", fmt.Errorf("%w: %w", frame.ErrFrameDurationUndetermined, err)
		}
		return c, strategySample, nil
	}

	r, err := s.resolver.Resolve(md.Track())
	if err != nil {
		return frame.Clock{}, "", err
	}
	return r.Clock, r.Strategy, nil
}

// silenceSource locates the first usable silence of mka and extracts it as a
// reusable clip. The clip's duration is snapped to whole frames before
// extraction and re-measured afterwards; the measurement is authoritative.
func (s *CorrectionService) silenceSource(
	ctx context.Context,
	scratch *storage.Scratch,
	mka string,
	clock frame.Clock,
	sampleAccurate bool,
) (silence.Result, segment.Source, error) {
	wav := scratch.Path("analysis.wav")
	if err := s.engine.ToMonoPCM(ctx, mka, wav); err != nil {
		return silence.Result{}, segment.Source{}, fmt.Errorf("decode for silence analysis: %w", err)
	}

	loc, err := s.locator.Locate(ctx, wav, clock, !sampleAccurate)
	if err != nil {
		return silence.Result{}, segment.Source{}, fmt.Errorf("locate silence: %w", err)
	}

	w := loc.Aligned
	durMs := w.DurationS * 1000
	if !sampleAccurate {
		durMs = clock.AlignDuration(durMs)
	}

	clip := scratch.Path("silence.mka")
	if err := s.engine.Extract(ctx, mka, clip, w.StartS, w.StartS+durMs/1000, sampleAccurate); err != nil {
		return loc, segment.Source{}, fmt.Errorf("extract silence: %w", err)
	}

	measured, err := s.prober.MeasureMs(ctx, clip)
	if err != nil {
		return loc, segment.Source{}, fmt.Errorf("measure silence: %w", err)
	}

	s.logger.Info("silence source ready",
		slog.String("start", timecode.Friendly(w.StartS)),
		slog.Float64("requested_ms", durMs),
		slog.Float64("measured_ms", measured),
		slog.Float64("frames", clock.Frames(measured)),
	)
	return loc, segment.Source{Path: clip, DurationMs: measured}, nil
}

// realize executes op against mka and returns the path of the corrected
// file in scratch.
func (s *CorrectionService) realize(
	ctx context.Context,
	op plan.Operation,
	mka string,
	scratch *storage.Scratch,
	clock frame.Clock,
	sampleAccurate bool,
) (string, []segment.Realized, error) {
	out := scratch.Path("corrected.mka")
	var segs []segment.Realized

	switch op := op.(type) {
	case plan.CutOnly:
		if err := s.engine.CutFromOffset(ctx, mka, out, op.CutMs/1000, sampleAccurate); err != nil {
			return "", nil, fmt.Errorf("cut %.3f ms from start: %w", op.CutMs, err)
		}

	case plan.PadOnly:
		leading, err := s.materialize(ctx, op.Leading, clock, scratch, "leading", sampleAccurate)
		if err != nil {
			return "", nil, err
		}
		trailing, err := s.materialize(ctx, op.Trailing, clock, scratch, "trailing", sampleAccurate)
		if err != nil {
			return "", nil, err
		}
		segs = appendRealized(segs, leading, trailing)

		inputs := make([]string, 0, len(leading.Files)+len(trailing.Files)+1)
		inputs = append(inputs, leading.Files...)
		inputs = append(inputs, mka)
		inputs = append(inputs, trailing.Files...)
		if err := s.engine.ConcatLossless(ctx, inputs, out); err != nil {
			return "", segs, fmt.Errorf("concatenate padding: %w", err)
		}

	case plan.CutThenPad:
		cut := scratch.Path("cut.mka")
		if err := s.engine.CutFromOffset(ctx, mka, cut, op.CutMs/1000, sampleAccurate); err != nil {
			return "", nil, fmt.Errorf("cut %.3f ms from start: %w", op.CutMs, err)
		}
		trailing, err := s.materialize(ctx, op.Trailing, clock, scratch, "trailing", sampleAccurate)
		if err != nil {
			return "", nil, err
		}
		segs = appendRealized(segs, trailing)

		inputs := append([]string{cut}, trailing.Files...)
		if err := s.engine.ConcatLossless(ctx, inputs, out); err != nil {
			return "", segs, fmt.Errorf("concatenate trailing pad: %w", err)
		}

	case plan.PadThenCut:
		leading, err := s.materialize(ctx, op.Leading, clock, scratch, "leading", sampleAccurate)
		if err != nil {
			return "", nil, err
		}
		segs = appendRealized(segs, leading)

		padded := scratch.Path("padded.mka")
		inputs := append(append([]string{}, leading.Files...), mka)
		if err := s.engine.ConcatLossless(ctx, inputs, padded); err != nil {
			return "", segs, fmt.Errorf("concatenate leading pad: %w", err)
		}

		paddedMs, err := s.prober.MeasureMs(ctx, padded)
		if err != nil {
			return "", segs, fmt.Errorf("measure padded file: %w", err)
		}
		keepMs := paddedMs - op.ExtraCutMs
		if keepMs <= 0 {
			return "", segs, fmt.Errorf("%w: cut %.3f ms, duration %.3f ms", plan.ErrCutExceedsDuration, op.ExtraCutMs, paddedMs)
		}
		if err := s.engine.CutFromStart(ctx, padded, out, keepMs/1000, sampleAccurate); err != nil {
			return "", segs, fmt.Errorf("cut %.3f ms from end: %w", op.ExtraCutMs, err)
		}

	default:
		return "", nil, fmt.Errorf("%w: cannot realize %T", ErrInvalidRequest, op)
	}

	return out, segs, nil
}

// materialize realizes p through the composer; an empty plan yields nothing.
func (s *CorrectionService) materialize(
	ctx context.Context,
	p segment.Plan,
	clock frame.Clock,
	scratch *storage.Scratch,
	label string,
	sampleAccurate bool,
) (segment.Realized, error) {
	if p.Empty() {
		return segment.Realized{Plan: p}, nil
	}
	r, err := s.composer.Materialize(ctx, p, clock, scratch, label, sampleAccurate)
	if err != nil {
		return segment.Realized{}, fmt.Errorf("materialize %s pad: %w", label, err)
	}
	return r, nil
}

func appendRealized(segs []segment.Realized, rs ...segment.Realized) []segment.Realized {
	for _, r := range rs {
		if !r.Plan.Empty() {
			segs = append(segs, r)
		}
	}
	return segs
}

// verify logs how the measured result compares with the plan and target.
func (s *CorrectionService) verify(job *Job, res *Result, req Request) {
	diff := res.FinalMs - res.Decision.ExpectedMs
	attrs := []any{
		slog.String("job_id", job.ID),
		slog.Float64("final_ms", res.FinalMs),
		slog.Float64("expected_ms", res.Decision.ExpectedMs),
		slog.Float64("diff_ms", diff),
		slog.String("final", timecode.Friendly(res.FinalMs/1000)),
	}
	if req.HasTarget {
		attrs = append(attrs, slog.Float64("target_diff_ms", res.TargetDiffMs))
	}

	if math.Abs(diff) > res.Clock.FrameDurationMs()+s.deviationWarnMs {
		s.logger.Warn("final duration differs from plan", attrs...)
		return
	}
	s.logger.Info("final duration verified", attrs...)
}

// OutputName names the corrected file of req: the input's stem, a suffix
// for the adjustments made and the .mka extension. Suffixes left by an
// earlier correction are dropped first, so re-correcting movie_delay.mka
// gives movie_delay.mka again.
func OutputName(req Request) string {
	base := filepath.Base(req.InputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	for {
		trimmed := strings.TrimSuffix(strings.TrimSuffix(stem, "_target"), "_delay")
		if trimmed == stem || trimmed == "" {
			break
		}
		stem = trimmed
	}
	return stem + plan.OutputSuffix(req.HasDelay(), req.HasTarget) + ".mka"
}
