package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records calls and, unless told otherwise, writes a small file
// at the last argument so output checks pass.
type fakeRunner struct {
	calls      [][]string
	stdout     string
	stderr     string
	err        error
	skipOutput bool
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, []byte(f.stderr), f.err
	}
	if !f.skipOutput && len(args) > 0 && filepath.IsAbs(args[len(args)-1]) {
		_ = os.WriteFile(args[len(args)-1], []byte("data"), 0o600)
	}
	return []byte(f.stdout), []byte(f.stderr), nil
}

func newTestEngine(r *fakeRunner) *FFmpegEngine {
	return NewFFmpegEngine("", withCommandRunner(r))
}

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	return path
}

func TestNewFFmpegEngine_Defaults(t *testing.T) {
	e := NewFFmpegEngine("")
	assert.Equal(t, "ffmpeg", e.ffmpegPath)
	assert.Equal(t, "ffprobe", e.ffprobePath)
	assert.Equal(t, DefaultDiagnosticLimit, e.diagnosticLimit)

	e = NewFFmpegEngine("/opt/ffmpeg", WithFFprobePath("/opt/ffprobe"), WithDiagnosticLimit(64))
	assert.Equal(t, "/opt/ffmpeg", e.ffmpegPath)
	assert.Equal(t, "/opt/ffprobe", e.ffprobePath)
	assert.Equal(t, 64, e.diagnosticLimit)
}

func TestRepackageLossless(t *testing.T) {
	dir := t.TempDir()
	src := touch(t, filepath.Join(dir, "in.ac3"))
	dst := filepath.Join(dir, "out.mka")

	r := &fakeRunner{}
	require.NoError(t, newTestEngine(r).RepackageLossless(context.Background(), src, dst))

	require.Len(t, r.calls, 1)
	assert.Equal(t, []string{"ffmpeg", "-i", src, "-map", "0:a:0", "-c", "copy", "-y", "-loglevel", "error", dst}, r.calls[0])
}

func TestRepackageLossless_MissingInput(t *testing.T) {
	r := &fakeRunner{}
	err := newTestEngine(r).RepackageLossless(context.Background(), "/nonexistent/in.ac3", "/tmp/out.mka")
	assert.ErrorIs(t, err, ErrEngineInvocation)
	assert.Empty(t, r.calls)
}

func TestToMonoPCM(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.wav")
	r := &fakeRunner{}
	require.NoError(t, newTestEngine(r).ToMonoPCM(context.Background(), "in.mka", dst))

	args := strings.Join(r.calls[0], " ")
	assert.True(t, strings.HasPrefix(args, "ffmpeg -drc_scale 0 -i in.mka"))
	assert.Contains(t, args, "-c:a pcm_s16le -ac 1 -f wav -rf64 always")
}

func TestExtract_StreamCopy(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "silence.mka")
	r := &fakeRunner{}
	require.NoError(t, newTestEngine(r).Extract(context.Background(), "in.mka", dst, 1.02, 1.74, false))

	assert.Equal(t, []string{
		"ffmpeg", "-i", "in.mka",
		"-ss", "00:00:01.020000", "-t", "0.720000",
		"-map", "0:a:0", "-c", "copy",
		"-y", "-loglevel", "error", dst,
	}, r.calls[0])
}

func TestExtract_SampleAccurateUsesSourceCodec(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "silence.mka")
	r := &fakeRunner{stdout: "pcm_s24le\n"}
	require.NoError(t, newTestEngine(r).Extract(context.Background(), "in.mka", dst, 0, 0.5, true))

	require.Len(t, r.calls, 2)
	assert.Equal(t, "ffprobe", r.calls[0][0])
	assert.Contains(t, strings.Join(r.calls[1], " "), "-c:a pcm_s24le")
}

func TestExtract_EmptyWindow(t *testing.T) {
	r := &fakeRunner{}
	err := newTestEngine(r).Extract(context.Background(), "in.mka", "/tmp/x.mka", 2, 2, false)
	assert.ErrorIs(t, err, ErrEngineInvocation)
	assert.Empty(t, r.calls)
}

func TestCutFromStartAndOffset(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{}
	e := newTestEngine(r)

	require.NoError(t, e.CutFromStart(context.Background(), "in.mka", filepath.Join(dir, "a.mka"), 11.5, false))
	require.NoError(t, e.CutFromOffset(context.Background(), "in.mka", filepath.Join(dir, "b.mka"), 2, false))

	assert.Contains(t, strings.Join(r.calls[0], " "), "-i in.mka -t 11.500000 -map 0:a:0 -c copy")
	assert.Contains(t, strings.Join(r.calls[1], " "), "-i in.mka -ss 00:00:02.000000 -map 0:a:0 -c copy")

	err := e.CutFromStart(context.Background(), "in.mka", filepath.Join(dir, "c.mka"), 0, false)
	assert.ErrorIs(t, err, ErrEngineInvocation)
}

func TestConcatLossless(t *testing.T) {
	dir := t.TempDir()
	silence := touch(t, filepath.Join(dir, "silence.mka"))
	original := touch(t, filepath.Join(dir, "it's.mka"))
	dst := filepath.Join(dir, "joined.mka")

	r := &fakeRunner{}
	require.NoError(t, newTestEngine(r).ConcatLossless(context.Background(), []string{silence, silence, original}, dst))

	list, err := os.ReadFile(filepath.Join(dir, "joined_concat.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(list)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "file '"+silence+"'", lines[0])
	assert.Equal(t, lines[0], lines[1])
	assert.Contains(t, lines[2], `it'\''s.mka`)

	assert.Contains(t, strings.Join(r.calls[0], " "), "-f concat -safe 0")

	err = newTestEngine(r).ConcatLossless(context.Background(), nil, dst)
	assert.ErrorIs(t, err, ErrNoInputs)
}

func TestEngine_MissingOutput(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.wav")
	r := &fakeRunner{skipOutput: true}

	err := newTestEngine(r).ToMonoPCM(context.Background(), "in.mka", dst)
	assert.ErrorIs(t, err, ErrEngineInvocation)
	assert.ErrorIs(t, err, ErrMissingOutput)
}

func TestEngine_FailureTruncatesStderr(t *testing.T) {
	boom := errors.New("exit status 1")
	r := &fakeRunner{err: boom, stderr: strings.Repeat("e", 100)}
	e := NewFFmpegEngine("", withCommandRunner(r), WithDiagnosticLimit(10))

	err := e.ToMonoPCM(context.Background(), "in.mka", filepath.Join(t.TempDir(), "out.wav"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineInvocation)
	assert.ErrorIs(t, err, boom)

	var ffErr *FFmpegError
	require.ErrorAs(t, err, &ffErr)
	assert.Equal(t, "ffmpeg", ffErr.Binary)
	assert.Equal(t, strings.Repeat("e", 10)+"...", ffErr.Stderr)
	assert.Contains(t, ffErr.Error(), "ffmpeg error: exit status 1")
}

func TestDetectSilence_ParsesStderr(t *testing.T) {
	r := &fakeRunner{stderr: `
[silencedetect @ 0x55f1a2b3c4d0] silence_start: 1.013
[silencedetect @ 0x55f1a2b3c4d0] silence_end: 1.731 | silence_duration: 0.718
`}
	got, err := newTestEngine(r).DetectSilence(context.Background(), "in.wav", -80, 0.4)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.013, got[0].StartS, 1e-12)
	assert.InDelta(t, 1.731, got[0].EndS, 1e-12)

	assert.Contains(t, r.calls[0], "silencedetect=noise=-80dB:d=0.400")
}

func TestParseSilenceOutput(t *testing.T) {
	// Sample ffmpeg silencedetect output
	output := `
[silencedetect @ 0x55f1a2b3c4d0] silence_start: -0.00133
[silencedetect @ 0x55f1a2b3c4d0] silence_end: 0.52 | silence_duration: 0.52133
[silencedetect @ 0x55f1a2b3c4d0] silence_start: 10.5
[silencedetect @ 0x55f1a2b3c4d0] silence_end: 11.2 | silence_duration: 0.7
[silencedetect @ 0x55f1a2b3c4d0] silence_start: 45.0
`

	intervals := parseSilenceOutput(output)
	require.Len(t, intervals, 2)

	assert.InDelta(t, 0.0, intervals[0].StartS, 0)
	assert.InDelta(t, 0.52, intervals[0].EndS, 1e-12)
	assert.InDelta(t, 10.5, intervals[1].StartS, 1e-12)
	assert.InDelta(t, 11.2, intervals[1].EndS, 1e-12)
	assert.InDelta(t, 0.7, intervals[1].DurationS, 1e-12)
}

// checkFFmpeg skips test if ffmpeg is not available.
func checkFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
}

// createTestAudio writes 1 s of tone, 1 s of silence and 1 s of tone as AC-3.
func createTestAudio(t *testing.T, outputPath string) {
	t.Helper()
	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=1:sample_rate=48000",
		"-f", "lavfi", "-i", "anullsrc=channel_layout=mono:sample_rate=48000:duration=1",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=1:sample_rate=48000",
		"-filter_complex", "[0:a][1:a][2:a]concat=n=3:v=0:a=1[out]",
		"-map", "[out]",
		"-c:a", "ac3",
		outputPath,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestFFmpegEngine_Integration(t *testing.T) {
	checkFFmpeg(t)

	dir := t.TempDir()
	input := filepath.Join(dir, "input.ac3")
	createTestAudio(t, input)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	e := NewFFmpegEngine("")
	mka := filepath.Join(dir, "input.mka")
	require.NoError(t, e.RepackageLossless(ctx, input, mka))

	wav := filepath.Join(dir, "input.wav")
	require.NoError(t, e.ToMonoPCM(ctx, mka, wav))

	intervals, err := e.DetectSilence(ctx, wav, -60, 0.5)
	require.NoError(t, err)
	require.NotEmpty(t, intervals)
	assert.InDelta(t, 1.0, intervals[0].StartS, 0.1)

	clip := filepath.Join(dir, "silence.mka")
	require.NoError(t, e.Extract(ctx, mka, clip, 1.024, 1.92, false))

	joined := filepath.Join(dir, "joined.mka")
	require.NoError(t, e.ConcatLossless(ctx, []string{clip, mka}, joined))

	info, err := os.Stat(joined)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
