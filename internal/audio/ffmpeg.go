package audio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/maauso/delayfix/internal/silence"
	"github.com/maauso/delayfix/internal/timecode"
)

// Static errors for engine operations.
var (
	// ErrEngineInvocation matches every failed ffmpeg call.
	ErrEngineInvocation = errors.New("audio engine invocation failed")
	// ErrMissingOutput is returned when ffmpeg exits cleanly but leaves no
	// (or an empty) output file.
	ErrMissingOutput = errors.New("output file missing or empty")
	// ErrNoInputs is returned when a concatenation has nothing to join.
	ErrNoInputs = errors.New("no input files to concatenate")
)

// DefaultDiagnosticLimit bounds the stderr kept in an FFmpegError.
const DefaultDiagnosticLimit = 512

// commandRunner runs an external program and returns its stdout and stderr.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type osCommandRunner struct{}

func (osCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	// #nosec G204 - binary paths come from configuration, not user input
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Option configures an FFmpegEngine.
type Option func(*FFmpegEngine)

// WithDiagnosticLimit sets how many bytes of stderr an FFmpegError keeps.
func WithDiagnosticLimit(n int) Option {
	return func(e *FFmpegEngine) {
		if n > 0 {
			e.diagnosticLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *FFmpegEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFFprobePath sets the ffprobe binary used to look up the codec for
// sample-accurate re-encoding.
func WithFFprobePath(path string) Option {
	return func(e *FFmpegEngine) {
		if path != "" {
			e.ffprobePath = path
		}
	}
}

func withCommandRunner(r commandRunner) Option {
	return func(e *FFmpegEngine) { e.cmd = r }
}

// FFmpegEngine implements Engine using the ffmpeg CLI.
type FFmpegEngine struct {
	ffmpegPath      string
	ffprobePath     string
	diagnosticLimit int
	cmd             commandRunner
	logger          *slog.Logger
}

// NewFFmpegEngine creates a new FFmpegEngine.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegEngine(ffmpegPath string, opts ...Option) *FFmpegEngine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	e := &FFmpegEngine{
		ffmpegPath:      ffmpegPath,
		ffprobePath:     "ffprobe",
		diagnosticLimit: DefaultDiagnosticLimit,
		cmd:             osCommandRunner{},
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RepackageLossless implements Engine.RepackageLossless.
func (e *FFmpegEngine) RepackageLossless(ctx context.Context, src, dst string) error {
	if err := requireInput(src); err != nil {
		return err
	}
	return e.runToFile(ctx, dst,
		"-i", src,
		"-map", "0:a:0",
		"-c", "copy",
		"-y", "-loglevel", "error",
		dst,
	)
}

// ToMonoPCM implements Engine.ToMonoPCM. Dynamic range compression is
// disabled so quiet passages keep their real level.
func (e *FFmpegEngine) ToMonoPCM(ctx context.Context, src, dst string) error {
	return e.runToFile(ctx, dst,
		"-drc_scale", "0",
		"-i", src,
		"-map", "0:a:0",
		"-c:a", "pcm_s16le",
		"-ac", "1",
		"-f", "wav",
		"-rf64", "always",
		"-y", "-loglevel", "error",
		dst,
	)
}

// DetectSilence implements Engine.DetectSilence using the silencedetect filter.
func (e *FFmpegEngine) DetectSilence(ctx context.Context, wavPath string, thresholdDb int, minDurationS float64) ([]silence.Interval, error) {
	filter := fmt.Sprintf("silencedetect=noise=%ddB:d=%.3f", thresholdDb, minDurationS)
	args := []string{
		"-hide_banner", "-nostats",
		"-i", wavPath,
		"-af", filter,
		"-f", "null", "-",
	}

	// ffmpeg writes silencedetect output to stderr
	stderr, err := e.run(ctx, args)
	if err != nil {
		return nil, err
	}

	intervals := parseSilenceOutput(string(stderr))
	e.logger.Debug("silencedetect finished",
		slog.Int("threshold_db", thresholdDb),
		slog.Float64("min_duration_s", minDurationS),
		slog.Int("intervals", len(intervals)),
	)
	return intervals, nil
}

// Extract implements Engine.Extract.
func (e *FFmpegEngine) Extract(ctx context.Context, src, dst string, startS, endS float64, sampleAccurate bool) error {
	if endS <= startS {
		return fmt.Errorf("%w: extract window [%.6f, %.6f] is empty", ErrEngineInvocation, startS, endS)
	}
	codec, err := e.codecArgs(ctx, src, sampleAccurate)
	if err != nil {
		return err
	}

	args := []string{
		"-i", src,
		"-ss", timecode.FFmpeg(startS),
		"-t", strconv.FormatFloat(endS-startS, 'f', 6, 64),
		"-map", "0:a:0",
	}
	args = append(args, codec...)
	args = append(args, "-y", "-loglevel", "error", dst)
	return e.runToFile(ctx, dst, args...)
}

// ConcatLossless implements Engine.ConcatLossless. The concat list is written
// next to dst so it stays with the run's scratch files.
func (e *FFmpegEngine) ConcatLossless(ctx context.Context, inputs []string, dst string) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}
	for _, in := range inputs {
		if err := requireInput(in); err != nil {
			return err
		}
	}

	listFile := strings.TrimSuffix(dst, filepath.Ext(dst)) + "_concat.txt"
	if err := writeConcatList(listFile, inputs); err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}

	return e.runToFile(ctx, dst,
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-map", "0:a:0",
		"-c", "copy",
		"-y", "-loglevel", "error",
		dst,
	)
}

// CutFromStart implements Engine.CutFromStart.
func (e *FFmpegEngine) CutFromStart(ctx context.Context, src, dst string, keepS float64, sampleAccurate bool) error {
	if keepS <= 0 {
		return fmt.Errorf("%w: keep duration %.6f s", ErrEngineInvocation, keepS)
	}
	codec, err := e.codecArgs(ctx, src, sampleAccurate)
	if err != nil {
		return err
	}

	args := []string{
		"-i", src,
		"-t", strconv.FormatFloat(keepS, 'f', 6, 64),
		"-map", "0:a:0",
	}
	args = append(args, codec...)
	args = append(args, "-y", "-loglevel", "error", dst)
	return e.runToFile(ctx, dst, args...)
}

// CutFromOffset implements Engine.CutFromOffset.
func (e *FFmpegEngine) CutFromOffset(ctx context.Context, src, dst string, offsetS float64, sampleAccurate bool) error {
	codec, err := e.codecArgs(ctx, src, sampleAccurate)
	if err != nil {
		return err
	}

	args := []string{
		"-i", src,
		"-ss", timecode.FFmpeg(offsetS),
		"-map", "0:a:0",
	}
	args = append(args, codec...)
	args = append(args, "-y", "-loglevel", "error", dst)
	return e.runToFile(ctx, dst, args...)
}

// codecArgs returns stream copy for frame-accurate work. Sample-accurate
// work re-encodes with the codec of src, which is lossless for the PCM and
// lossless-compressed families that need it.
func (e *FFmpegEngine) codecArgs(ctx context.Context, src string, sampleAccurate bool) ([]string, error) {
	if !sampleAccurate {
		return []string{"-c", "copy"}, nil
	}

	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src,
	}
	stdout, stderr, err := e.cmd.Run(ctx, e.ffprobePath, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, e.newError(e.ffprobePath, args, stderr, err)
	}
	codec := strings.TrimSpace(string(stdout))
	if codec == "" {
		return nil, e.newError(e.ffprobePath, args, stderr, errors.New("no audio codec reported"))
	}
	return []string{"-c:a", codec}, nil
}

// runToFile runs ffmpeg and checks that dst exists and is not empty.
func (e *FFmpegEngine) runToFile(ctx context.Context, dst string, args ...string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	stderr, err := e.run(ctx, args)
	if err != nil {
		return err
	}
	if info, statErr := os.Stat(dst); statErr != nil || info.Size() == 0 {
		return e.newError(e.ffmpegPath, args, stderr, fmt.Errorf("%w: %s", ErrMissingOutput, dst))
	}
	return nil
}

// run executes ffmpeg and returns its stderr.
func (e *FFmpegEngine) run(ctx context.Context, args []string) ([]byte, error) {
	e.logger.Debug("running ffmpeg", slog.String("args", strings.Join(args, " ")))

	_, stderr, err := e.cmd.Run(ctx, e.ffmpegPath, args...)
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, e.newError(e.ffmpegPath, args, stderr, err)
	}
	return stderr, nil
}

func (e *FFmpegEngine) newError(bin string, args []string, stderr []byte, err error) *FFmpegError {
	return &FFmpegError{
		Binary: filepath.Base(bin),
		Args:   args,
		Stderr: truncate(strings.TrimSpace(string(stderr)), e.diagnosticLimit),
		Err:    err,
	}
}

// FFmpegError represents a failed ffmpeg or ffprobe call, including the
// (truncated) stderr output.
type FFmpegError struct {
	Binary string
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("%s error: %v\nargs: %v\nstderr: %s", e.Binary, e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// Is makes every FFmpegError match ErrEngineInvocation.
func (e *FFmpegError) Is(target error) bool {
	return target == ErrEngineInvocation
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func requireInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: input %s: %w", ErrEngineInvocation, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: input %s is a directory", ErrEngineInvocation, path)
	}
	return nil
}

// writeConcatList writes the file list in the format required by ffmpeg's
// concat demuxer. The same file may appear several times.
func writeConcatList(listFile string, inputs []string) error {
	f, err := os.Create(listFile) // #nosec G304 - path is inside the run's scratch directory
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	for _, path := range inputs {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		// Escape single quotes in path
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		if _, err := fmt.Fprintf(w, "file '%s'\n", escapedPath); err != nil {
			return fmt.Errorf("write to concat list: %w", err)
		}
	}
	return w.Flush()
}

var (
	silenceStartRe = regexp.MustCompile(`silence_start:\s*(-?[\d.]+)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*(-?[\d.]+)(?:\s*\|\s*silence_duration:\s*([\d.]+))?`)
)

// parseSilenceOutput parses ffmpeg silencedetect output. A start without a
// matching end is dropped.
func parseSilenceOutput(output string) []silence.Interval {
	var intervals []silence.Interval

	var currentStart float64
	hasStart := false

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if m := silenceStartRe.FindStringSubmatch(line); m != nil {
			val, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			currentStart = max(val, 0)
			hasStart = true
		}

		if m := silenceEndRe.FindStringSubmatch(line); m != nil && hasStart {
			end, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			duration := end - currentStart
			if m[2] != "" {
				if d, err := strconv.ParseFloat(m[2], 64); err == nil {
					duration = d
				}
			}
			intervals = append(intervals, silence.Interval{
				StartS:    currentStart,
				EndS:      end,
				DurationS: duration,
			})
			hasStart = false
		}
	}

	return intervals
}
