package job

import (
	"context"
	"math"
	"os"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/maauso/delayfix/internal/media"
	"github.com/maauso/delayfix/internal/silence"
)

// mockEngine is a testify mock of audio.Engine. Successful calls leave a
// small file at the destination so later stages find their inputs.
type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) RepackageLossless(ctx context.Context, src, dst string) error {
	return touchOnSuccess(dst, m.Called(ctx, src, dst).Error(0))
}

func (m *mockEngine) ToMonoPCM(ctx context.Context, src, dst string) error {
	return touchOnSuccess(dst, m.Called(ctx, src, dst).Error(0))
}

func (m *mockEngine) DetectSilence(ctx context.Context, wavPath string, thresholdDb int, minDurationS float64) ([]silence.Interval, error) {
	args := m.Called(ctx, wavPath, thresholdDb, minDurationS)
	ivs, _ := args.Get(0).([]silence.Interval)
	return ivs, args.Error(1)
}

func (m *mockEngine) Extract(ctx context.Context, src, dst string, startS, endS float64, sampleAccurate bool) error {
	return touchOnSuccess(dst, m.Called(ctx, src, dst, startS, endS, sampleAccurate).Error(0))
}

func (m *mockEngine) ConcatLossless(ctx context.Context, inputs []string, dst string) error {
	return touchOnSuccess(dst, m.Called(ctx, inputs, dst).Error(0))
}

func (m *mockEngine) CutFromStart(ctx context.Context, src, dst string, keepS float64, sampleAccurate bool) error {
	return touchOnSuccess(dst, m.Called(ctx, src, dst, keepS, sampleAccurate).Error(0))
}

func (m *mockEngine) CutFromOffset(ctx context.Context, src, dst string, offsetS float64, sampleAccurate bool) error {
	return touchOnSuccess(dst, m.Called(ctx, src, dst, offsetS, sampleAccurate).Error(0))
}

func touchOnSuccess(dst string, err error) error {
	if err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("mka"), 0o600)
}

// mockProber is a testify mock of Prober.
type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, path string) (media.Metadata, error) {
	args := m.Called(ctx, path)
	md, _ := args.Get(0).(media.Metadata)
	return md, args.Error(1)
}

func (m *mockProber) MeasureMs(ctx context.Context, path string) (float64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(float64), args.Error(1)
}

// scratchFile matches a scratch path by the name given to Scratch.Path.
func scratchFile(name string) interface{} {
	return mock.MatchedBy(func(p string) bool { return strings.HasSuffix(p, "_"+name) })
}

func approx(want float64) interface{} {
	return mock.MatchedBy(func(got float64) bool { return math.Abs(got-want) < 1e-9 })
}

// filesNamed matches a concat input list by the names given to Scratch.Path.
func filesNamed(names ...string) interface{} {
	return mock.MatchedBy(func(files []string) bool {
		if len(files) != len(names) {
			return false
		}
		for i, n := range names {
			if !strings.HasSuffix(files[i], "_"+n) {
				return false
			}
		}
		return true
	})
}
