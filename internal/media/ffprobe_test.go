package media

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/delayfix/internal/frame"
)

type fakeRunner struct {
	args   []string
	stdout string
	stderr string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.args = append([]string{name}, args...)
	return []byte(f.stdout), []byte(f.stderr), f.err
}

func newTestProber(r *fakeRunner) *FFprobe {
	p := NewFFprobe("", nil)
	p.cmd = r
	return p
}

const mkaProbe = `{
  "streams": [{
    "index": 0,
    "codec_name": "eac3",
    "codec_type": "audio",
    "sample_rate": "48000",
    "channels": 6,
    "r_frame_rate": "0/0",
    "avg_frame_rate": "0/0",
    "nb_read_packets": "499",
    "disposition": {"default": 1},
    "tags": {
      "language": "eng",
      "NUMBER_OF_FRAMES-eng": "499",
      "DURATION": "00:00:09.980000000"
    }
  }],
  "format": {
    "filename": "in.mka",
    "format_name": "matroska,webm",
    "duration": "9.981000",
    "tags": {"ENCODER": "Lavf61.7.100", "language": "und"}
  }
}`

func TestProbe_Matroska(t *testing.T) {
	r := &fakeRunner{stdout: mkaProbe}
	md, err := newTestProber(r).Probe(context.Background(), "in.mka")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ffprobe", "-v", "error", "-count_packets",
		"-select_streams", "a:0", "-show_streams", "-show_format", "-of", "json", "in.mka",
	}, r.args)

	assert.Equal(t, "eac3", md.Codec)
	assert.Equal(t, "matroska,webm", md.Container)
	assert.InDelta(t, 48000.0, md.SampleRate, 0)
	assert.Equal(t, 6, md.Channels)
	assert.Empty(t, md.FrameRate)
	// Stream has no duration field; the DURATION tag beats the container.
	assert.InDelta(t, 9980.0, md.DurationMs, 1e-6)
	assert.InDelta(t, 9.98, md.DurationS(), 1e-9)

	assert.Equal(t, "eng", md.Tags["language"], "stream tags win over format tags")
	assert.Equal(t, "Lavf61.7.100", md.Tags["ENCODER"])
	assert.Equal(t, "499", md.Attributes["nb_read_packets"])
	assert.Equal(t, "9.981000", md.Attributes["format_duration"])
	_, hasDisposition := md.Attributes["disposition"]
	assert.False(t, hasDisposition)
	assert.Contains(t, md.TagText, "NUMBER_OF_FRAMES-eng")
}

func TestProbe_TrackFeedsResolver(t *testing.T) {
	md, err := newTestProber(&fakeRunner{stdout: mkaProbe}).Probe(context.Background(), "in.mka")
	require.NoError(t, err)

	res, err := frame.NewResolver(nil).Resolve(md.Track())
	require.NoError(t, err)
	assert.Equal(t, 960, res.Clock.SPF())
	assert.InDelta(t, 20.0, res.Clock.FrameDurationMs(), 1e-9)
}

func TestProbe_StreamDurationAndFrameRate(t *testing.T) {
	out := `{"streams":[{"codec_name":"aac","codec_type":"audio","sample_rate":"48000","channels":2,
"avg_frame_rate":"375/8","duration":"12.000000"}],"format":{"format_name":"mov,mp4","duration":"12.1"}}`

	md, err := newTestProber(&fakeRunner{stdout: out}).Probe(context.Background(), "in.m4a")
	require.NoError(t, err)
	assert.Equal(t, "375/8", md.FrameRate)
	assert.InDelta(t, 12000.0, md.DurationMs, 1e-6)
}

func TestProbe_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
	}{
		{"ffprobe fails", &fakeRunner{err: errors.New("exit status 1"), stderr: "No such file"}},
		{"invalid json", &fakeRunner{stdout: "not json"}},
		{"no streams", &fakeRunner{stdout: `{"streams":[],"format":{}}`}},
		{"video only", &fakeRunner{stdout: `{"streams":[{"codec_type":"video","duration":"3"}]}`}},
		{"no duration", &fakeRunner{stdout: `{"streams":[{"codec_type":"audio","codec_name":"ac3"}],"format":{}}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestProber(tt.runner).Probe(context.Background(), "in.mka")
			assert.ErrorIs(t, err, ErrMetadataUnavailable)
		})
	}
}

func TestMeasureMs(t *testing.T) {
	r := &fakeRunner{stdout: mkaProbe}
	p := newTestProber(r)
	p.SetCountPackets(false)

	ms, err := p.MeasureMs(context.Background(), "in.mka")
	require.NoError(t, err)
	assert.InDelta(t, 9980.0, ms, 1e-6)
	assert.NotContains(t, r.args, "-count_packets")
}

func TestFFprobe_Integration(t *testing.T) {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}

	path := filepath.Join(t.TempDir(), "tone.mka")
	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=2:sample_rate=48000",
		"-c:a", "ac3", path,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))

	md, err := NewFFprobe("", nil).Probe(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "ac3", md.Codec)
	assert.InDelta(t, 2000.0, md.DurationMs, 50)

	res, err := frame.NewResolver(nil).Resolve(md.Track())
	require.NoError(t, err)
	assert.InDelta(t, 32.0, res.Clock.FrameDurationMs(), 0.5)
}
