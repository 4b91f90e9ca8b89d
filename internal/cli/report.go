package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/maauso/delayfix/internal/frame"
	"github.com/maauso/delayfix/internal/job"
	"github.com/maauso/delayfix/internal/media"
	"github.com/maauso/delayfix/internal/plan"
	"github.com/maauso/delayfix/internal/segment"
	"github.com/maauso/delayfix/internal/silence"
	"github.com/maauso/delayfix/internal/timecode"
)

const keyWidth = 18

type report struct {
	sb strings.Builder
}

func (r *report) title(s string) {
	r.sb.WriteString(TitleStyle.Render(s))
	r.sb.WriteString("\n")
}

func (r *report) section(s string) {
	r.sb.WriteString("\n")
	r.sb.WriteString(SectionStyle.Render(s))
	r.sb.WriteString("\n")
}

func (r *report) kv(key, value string) {
	r.sb.WriteString("  ")
	r.sb.WriteString(KeyStyle.Render(fmt.Sprintf("%-*s", keyWidth, key)))
	r.sb.WriteString(" ")
	r.sb.WriteString(ValueStyle.Render(value))
	r.sb.WriteString("\n")
}

func (r *report) line(s string) {
	r.sb.WriteString("  ")
	r.sb.WriteString(s)
	r.sb.WriteString("\n")
}

func (r *report) String() string { return r.sb.String() }

// RenderResult formats the outcome of a correction run.
func RenderResult(req job.Request, res *job.Result) string {
	var r report
	r.title("delayfix: " + filepath.Base(req.InputPath))

	r.section("Request")
	if req.HasDelay() {
		r.kv("Delay", fmt.Sprintf("%+.3f ms", req.DelayMs))
	}
	if req.HasTarget {
		r.kv("Target", timecode.Friendly(req.TargetS))
	}
	if req.SampleAccurate {
		r.kv("Precision", "sample accurate (re-encoded)")
	}

	writeStream(&r, res.Metadata, res.Clock, res.Strategy)
	writeDecision(&r, res.Decision, res.Clock)

	if res.Silence != nil {
		writeSilence(&r, *res.Silence, res.SilenceSource, res.Clock)
	}
	if len(res.Segments) > 0 {
		r.section("Silence segments")
		for _, seg := range res.Segments {
			writeSegment(&r, seg)
		}
	}

	r.section("Result")
	if res.Status == job.StatusExact {
		r.line(SuccessStyle.Render("Already exact: duration matches the target, no file written."))
		return r.String()
	}
	r.kv("Final duration", timecode.Friendly(res.FinalMs/1000))
	if req.HasTarget {
		r.kv("Target diff", fmt.Sprintf("%+.3f ms", res.TargetDiffMs))
	}
	r.kv("Output", res.OutputPath)
	if res.OutputURL != "" {
		r.kv("Uploaded", res.OutputURL)
	}
	if res.ScratchDir != "" {
		r.kv("Temp files", res.ScratchDir)
	}
	return r.String()
}

// RenderAnalysis formats the outcome of an analysis run.
func RenderAnalysis(inputPath string, a *job.Analysis) string {
	var r report
	r.title("delayfix analysis: " + filepath.Base(inputPath))

	writeStream(&r, a.Metadata, a.Clock, a.Strategy)
	if a.Silence != nil {
		writeSilence(&r, *a.Silence, a.Source, a.Clock)
	} else {
		r.section("Silence")
		r.line(WarnStyle.Render("no usable silence found"))
	}

	if a.ScratchDir != "" {
		r.section("Temp files")
		r.kv("Directory", a.ScratchDir)
	}
	return r.String()
}

func writeStream(r *report, md media.Metadata, clock frame.Clock, strategy string) {
	r.section("Stream")
	r.kv("Codec", md.Codec)
	if md.Container != "" {
		r.kv("Container", md.Container)
	}
	r.kv("Sample rate", fmt.Sprintf("%.0f Hz", md.SampleRate))
	r.kv("Channels", fmt.Sprintf("%d", md.Channels))
	r.kv("Duration", timecode.Friendly(md.DurationS()))

	if clock.IsZero() {
		return
	}
	r.section("Frame clock")
	r.kv("Samples/frame", fmt.Sprintf("%d", clock.SPF()))
	r.kv("Frame duration", fmt.Sprintf("%.6f ms", clock.FrameDurationMs()))
	if strategy != "" {
		r.kv("Resolved by", strategy)
	}
	r.kv("Frames", fmt.Sprintf("%.3f", clock.Frames(md.DurationMs)))
}

func writeDecision(r *report, d plan.Decision, clock frame.Clock) {
	if d.Kind == "" {
		return
	}
	r.section("Plan")
	r.kv("Operation", string(d.Kind))
	if d.CutMs > 0 {
		r.kv("Cut from start", msAndFrames(d.CutMs, clock))
	}
	if d.LeadingPadMs > 0 {
		r.kv("Leading pad", msAndFrames(d.LeadingPadMs, clock))
	}
	if d.TrailingPadMs > 0 {
		r.kv("Trailing pad", msAndFrames(d.TrailingPadMs, clock))
	}
	if d.ExtraCutMs > 0 {
		r.kv("Cut from end", msAndFrames(d.ExtraCutMs, clock))
	}
	r.kv("Expected", timecode.Friendly(d.ExpectedMs/1000))
}

func writeSilence(r *report, s silence.Result, src segment.Source, clock frame.Clock) {
	r.section("Silence")
	if s.Phase != "" {
		r.kv("Found in", fmt.Sprintf("%s phase, query %d", s.Phase, s.Queries))
	}
	r.kv("Threshold", fmt.Sprintf("%d dB", s.Raw.ThresholdDb))
	r.kv("Min duration", fmt.Sprintf("%.0f ms", s.MinDuration*1000))
	r.kv("Detected", windowText(s.Raw))
	r.kv("Aligned", windowText(s.Aligned))
	if !clock.IsZero() {
		r.kv("Start shift", fmt.Sprintf("%+.3f ms", (s.Aligned.StartS-s.Raw.StartS)*1000))
		r.kv("End shift", fmt.Sprintf("%+.3f ms", (s.Aligned.EndS-s.Raw.EndS)*1000))
	}
	if src.Path != "" {
		r.kv("Clip", msAndFrames(src.DurationMs, clock))
	}
}

func writeSegment(r *report, seg segment.Realized) {
	text := fmt.Sprintf("requested %.3f ms, planned %.3f ms (%d full",
		seg.Plan.RequestMs, seg.Plan.PlannedMs, seg.Plan.FullCount)
	if len(seg.Plan.Entries) > seg.Plan.FullCount {
		text += " + partial"
	}
	text += fmt.Sprintf("), realized %.3f ms", seg.RealizedMs)
	if seg.Deviated {
		r.line(WarnStyle.Render(fmt.Sprintf("%s, deviation %+.3f ms", text, seg.DeviationMs)))
		return
	}
	r.line(text)
}

func windowText(w silence.Window) string {
	return fmt.Sprintf("%s -> %s (%.3f ms)",
		timecode.FFmpeg(w.StartS), timecode.FFmpeg(w.EndS), w.DurationS*1000)
}

func msAndFrames(ms float64, clock frame.Clock) string {
	if clock.IsZero() {
		return fmt.Sprintf("%.3f ms", ms)
	}
	return fmt.Sprintf("%.3f ms (%.3f frames)", ms, clock.Frames(ms))
}
