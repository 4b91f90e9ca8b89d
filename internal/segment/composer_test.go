package segment

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/delayfix/internal/frame"
)

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, src, dst string, startS, endS float64, sampleAccurate bool) error {
	args := m.Called(ctx, src, dst, startS, endS, sampleAccurate)
	return args.Error(0)
}

type mockMeasurer struct {
	mock.Mock
}

func (m *mockMeasurer) MeasureMs(ctx context.Context, path string) (float64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(float64), args.Error(1)
}

type dirScratch string

func (d dirScratch) Path(name string) string { return filepath.Join(string(d), name) }

func clock20(t *testing.T) frame.Clock {
	t.Helper()
	c, err := frame.NewClock(960, 48000)
	require.NoError(t, err)
	return c
}

func TestCompose(t *testing.T) {
	src := Source{Path: "/tmp/silence.mka", DurationMs: 500}
	c := clock20(t)

	tests := []struct {
		name      string
		request   float64
		full      int
		partial   float64
		planned   float64
		remainder float64
	}{
		{"whole copies only", 2000, 4, 0, 2000, 0},
		{"copies and partial", 2030, 4, 20, 2020, 30},
		{"partial only", 120, 0, 120, 120, 120},
		{"remainder rounds up", 2015, 4, 20, 2020, 15},
		{"remainder under a frame half", 2009, 4, 0, 2000, 9},
		{"tiny remainder ignored", 2000.5, 4, 0, 2000, 0.5},
		{"remainder rounds to whole source", 995, 2, 0, 1000, 495},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compose(src, tt.request, c)
			require.NoError(t, err)

			assert.InDelta(t, tt.remainder, p.RemainderMs, 1e-9)
			assert.InDelta(t, tt.planned, p.PlannedMs, 1e-9)
			assert.Equal(t, tt.full, p.FullCount)

			var partials []Entry
			for _, e := range p.Entries {
				assert.Equal(t, src.Path, e.SourceRef)
				if e.Kind == KindPartial {
					partials = append(partials, e)
				}
			}
			if tt.partial == 0 {
				assert.Empty(t, partials)
			} else {
				require.Len(t, partials, 1)
				assert.InDelta(t, tt.partial, partials[0].DurationMs, 1e-9)
				assert.Equal(t, partials[0], p.Entries[len(p.Entries)-1])
			}
		})
	}
}

func TestCompose_ArithmeticProperties(t *testing.T) {
	c := clock20(t)
	for _, base := range []float64{300, 416, 500, 720.5} {
		for _, req := range []float64{1, 59, 300, 999, 2000, 2030, 12345.6} {
			src := Source{Path: "s.mka", DurationMs: base}
			p, err := Compose(src, req, c)
			require.NoError(t, err)

			assert.InDelta(t, req, float64(int(req/base))*base+p.RemainderMs, 1e-6, "base=%v req=%v", base, req)
			assert.Less(t, abs(p.PlannedMs-req), base, "base=%v req=%v", base, req)
		}
	}
}

func TestCompose_Invalid(t *testing.T) {
	_, err := Compose(Source{Path: "s", DurationMs: 500}, 0, frame.Clock{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = Compose(Source{Path: "s"}, 100, frame.Clock{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestMaterialize(t *testing.T) {
	ctx := context.Background()
	c := clock20(t)
	src := Source{Path: "/scratch/silence.mka", DurationMs: 500}

	p, err := Compose(src, 2030, c)
	require.NoError(t, err)

	ext := &mockExtractor{}
	meas := &mockMeasurer{}
	dst := "/scratch/target_partial_04.mka"
	ext.On("Extract", ctx, src.Path, dst, 0.0, 0.02, false).Return(nil)
	meas.On("MeasureMs", ctx, dst).Return(20.0, nil)

	r, err := NewComposer(ext, meas, 1, nil).Materialize(ctx, p, c, dirScratch("/scratch"), "target", false)
	require.NoError(t, err)

	assert.Equal(t, []string{src.Path, src.Path, src.Path, src.Path, dst}, r.Files)
	assert.InDelta(t, 2020, r.RealizedMs, 1e-9)
	assert.InDelta(t, -10, r.DeviationMs, 1e-9)
	assert.False(t, r.Deviated)
	ext.AssertExpectations(t)
	meas.AssertExpectations(t)
}

func TestMaterialize_MeasuredDurationWins(t *testing.T) {
	ctx := context.Background()
	c := clock20(t)
	src := Source{Path: "/scratch/silence.mka", DurationMs: 500}

	p, err := Compose(src, 240, c)
	require.NoError(t, err)

	ext := &mockExtractor{}
	meas := &mockMeasurer{}
	ext.On("Extract", ctx, mock.Anything, mock.Anything, 0.0, 0.24, true).Return(nil)
	meas.On("MeasureMs", ctx, mock.Anything).Return(260.0, nil)

	r, err := NewComposer(ext, meas, 1, nil).Materialize(ctx, p, c, dirScratch("/scratch"), "delay", true)
	require.NoError(t, err)

	assert.InDelta(t, 260, r.RealizedMs, 1e-9)
	assert.True(t, r.Deviated)
}

func TestMaterialize_ExtractFailure(t *testing.T) {
	ctx := context.Background()
	c := clock20(t)

	p, err := Compose(Source{Path: "s.mka", DurationMs: 500}, 100, c)
	require.NoError(t, err)

	boom := errors.New("boom")
	ext := &mockExtractor{}
	ext.On("Extract", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(boom)

	_, err = NewComposer(ext, &mockMeasurer{}, 1, nil).Materialize(ctx, p, c, dirScratch("/x"), "delay", false)
	assert.ErrorIs(t, err, boom)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
