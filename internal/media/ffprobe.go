package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/maauso/delayfix/internal/timecode"
)

// commandRunner runs an external program and returns its stdout and stderr.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type osCommandRunner struct{}

func (osCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// FFprobe implements Prober using the ffprobe CLI.
type FFprobe struct {
	ffprobePath  string
	countPackets bool
	cmd          commandRunner
	logger       *slog.Logger
}

// NewFFprobe creates a new FFprobe.
// If ffprobePath is empty, it defaults to "ffprobe" (found via PATH).
// Packet counting is enabled; it reads the whole stream but gives the frame
// resolver an exact frame count when the container has none.
func NewFFprobe(ffprobePath string, logger *slog.Logger) *FFprobe {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFprobe{ffprobePath: ffprobePath, countPackets: true, cmd: osCommandRunner{}, logger: logger}
}

// SetCountPackets toggles -count_packets.
func (p *FFprobe) SetCountPackets(on bool) {
	p.countPackets = on
}

// Probe implements Prober.
func (p *FFprobe) Probe(ctx context.Context, path string) (Metadata, error) {
	args := []string{"-v", "error"}
	if p.countPackets {
		args = append(args, "-count_packets")
	}
	args = append(args,
		"-select_streams", "a:0",
		"-show_streams",
		"-show_format",
		"-of", "json",
		path,
	)

	stdout, stderr, err := p.cmd.Run(ctx, p.ffprobePath, args...)
	if err != nil {
		if ctx.Err() != nil {
			return Metadata{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return Metadata{}, fmt.Errorf("%w: ffprobe %s: %w, stderr: %s",
			ErrMetadataUnavailable, path, err, strings.TrimSpace(string(stderr)))
	}

	md, err := parseProbeOutput(path, stdout)
	if err != nil {
		return Metadata{}, err
	}

	p.logger.Debug("probed audio stream",
		slog.String("path", path),
		slog.String("codec", md.Codec),
		slog.String("container", md.Container),
		slog.Float64("sample_rate", md.SampleRate),
		slog.Int("channels", md.Channels),
		slog.Float64("duration_ms", md.DurationMs),
	)
	return md, nil
}

// MeasureMs returns the duration of path in milliseconds.
func (p *FFprobe) MeasureMs(ctx context.Context, path string) (float64, error) {
	md, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return md.DurationMs, nil
}

// parseProbeOutput flattens ffprobe's JSON into Metadata.
func parseProbeOutput(path string, raw []byte) (Metadata, error) {
	if !gjson.ValidBytes(raw) {
		return Metadata{}, fmt.Errorf("%w: %s: ffprobe returned invalid JSON", ErrMetadataUnavailable, path)
	}
	doc := gjson.ParseBytes(raw)

	stream := doc.Get("streams.0")
	if !stream.Exists() || stream.Get("codec_type").String() != "audio" {
		return Metadata{}, fmt.Errorf("%w: %s has no audio stream", ErrMetadataUnavailable, path)
	}
	format := doc.Get("format")

	md := Metadata{
		Path:       path,
		Codec:      stream.Get("codec_name").String(),
		Container:  format.Get("format_name").String(),
		SampleRate: stream.Get("sample_rate").Float(),
		Channels:   int(stream.Get("channels").Int()),
		FrameRate:  frameRate(stream),
		Tags:       map[string]string{},
		Attributes: map[string]string{},
	}

	format.Get("tags").ForEach(func(k, v gjson.Result) bool {
		md.Tags[k.String()] = v.String()
		return true
	})
	stream.Get("tags").ForEach(func(k, v gjson.Result) bool {
		md.Tags[k.String()] = v.String()
		return true
	})

	stream.ForEach(func(k, v gjson.Result) bool {
		if v.IsObject() || v.IsArray() {
			return true
		}
		md.Attributes[k.String()] = v.String()
		return true
	})
	format.ForEach(func(k, v gjson.Result) bool {
		if v.IsObject() || v.IsArray() {
			return true
		}
		md.Attributes["format_"+k.String()] = v.String()
		return true
	})

	var text []string
	for _, block := range []gjson.Result{stream.Get("tags"), format.Get("tags")} {
		if block.Exists() {
			text = append(text, block.Raw)
		}
	}
	md.TagText = strings.Join(text, "\n")

	durationS, ok := duration(stream, format, md.Tags)
	if !ok {
		return Metadata{}, fmt.Errorf("%w: %s has no duration", ErrMetadataUnavailable, path)
	}
	md.DurationMs = durationS * 1000
	return md, nil
}

// frameRate prefers avg_frame_rate over r_frame_rate; audio streams often
// report "0/0" for both.
func frameRate(stream gjson.Result) string {
	for _, key := range []string{"avg_frame_rate", "r_frame_rate"} {
		if v := stream.Get(key).String(); v != "" && v != "0/0" {
			return v
		}
	}
	return ""
}

// duration tries the stream duration, then the Matroska per-stream DURATION
// tag, then the container duration.
func duration(stream, format gjson.Result, tags map[string]string) (float64, bool) {
	if d, err := strconv.ParseFloat(stream.Get("duration").String(), 64); err == nil && d > 0 {
		return d, true
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := tags[k]
		upper := strings.ToUpper(k)
		if upper != "DURATION" && !strings.HasPrefix(upper, "DURATION-") {
			continue
		}
		if d, err := timecode.ParseClock(v); err == nil && d > 0 {
			return d, true
		}
	}
	if d, err := strconv.ParseFloat(format.Get("duration").String(), 64); err == nil && d > 0 {
		return d, true
	}
	return 0, false
}
