package main

import (
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/delayfix/internal/cli"
	"github.com/maauso/delayfix/internal/job"
	"github.com/maauso/delayfix/internal/timecode"
)

func TestFixCmd_Request(t *testing.T) {
	tests := []struct {
		name    string
		cmd     FixCmd
		want    job.Request
		wantErr error
	}{
		{
			name: "delay only",
			cmd:  FixCmd{File: "movie.ac3", Delay: "2000"},
			want: job.Request{InputPath: "movie.ac3", DelayMs: 2000},
		},
		{
			name: "negative delay in seconds",
			cmd:  FixCmd{File: "movie.ac3", Delay: "-1.5s", SampleAccurate: true},
			want: job.Request{InputPath: "movie.ac3", DelayMs: -1500, SampleAccurate: true},
		},
		{
			name: "target only",
			cmd:  FixCmd{File: "movie.ac3", Delay: "0", Target: "01:35:50.500", OutputDir: "/out", PushS3: true},
			want: job.Request{InputPath: "movie.ac3", HasTarget: true, TargetS: 5750.5, OutputDir: "/out", PushToS3: true},
		},
		{
			name:    "zero delay without target",
			cmd:     FixCmd{File: "movie.ac3", Delay: "0"},
			wantErr: job.ErrInvalidRequest,
		},
		{
			name:    "bad delay",
			cmd:     FixCmd{File: "movie.ac3", Delay: "two seconds"},
			wantErr: timecode.ErrParse,
		},
		{
			name:    "bad target",
			cmd:     FixCmd{File: "movie.ac3", Delay: "0", Target: "soon"},
			wantErr: timecode.ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.request()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, cli.ExitInvalidInput, cli.ExitCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.InputPath, got.InputPath)
			assert.InDelta(t, tt.want.DelayMs, got.DelayMs, 1e-9)
			assert.Equal(t, tt.want.HasTarget, got.HasTarget)
			assert.InDelta(t, tt.want.TargetS, got.TargetS, 1e-9)
			assert.Equal(t, tt.want.SampleAccurate, got.SampleAccurate)
			assert.Equal(t, tt.want.OutputDir, got.OutputDir)
			assert.Equal(t, tt.want.PushToS3, got.PushToS3)
		})
	}
}

func TestCLI_Parse(t *testing.T) {
	var args CLI
	parser, err := kong.New(&args, kong.Name("delayfix"), kong.Exit(func(int) {}))
	require.NoError(t, err)

	ctx, err := parser.Parse([]string{"--keep-temp", "fix", "--sample-accurate", "--output-dir", "/out", "movie.ac3", "--", "-2000", "12.5"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ctx.Command(), "fix"))
	assert.True(t, args.KeepTemp)
	assert.Equal(t, "movie.ac3", args.Fix.File)
	assert.Equal(t, "-2000", args.Fix.Delay)
	assert.Equal(t, "12.5", args.Fix.Target)
	assert.True(t, args.Fix.SampleAccurate)
	assert.Equal(t, "/out", args.Fix.OutputDir)

	args = CLI{}
	ctx, err = parser.Parse([]string{"serve", "--port", "9000"})
	require.NoError(t, err)
	assert.Equal(t, "serve", ctx.Command())
	assert.Equal(t, 9000, args.Serve.Port)
	assert.Empty(t, args.Serve.AllowedOrigins)

	args = CLI{}
	_, err = parser.Parse([]string{"serve", "--allowed-origin", "http://localhost:3000"})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:3000"}, args.Serve.AllowedOrigins)
}
