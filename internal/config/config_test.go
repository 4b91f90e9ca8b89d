package config

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return LoadFrom(context.Background(), envconfig.MapLookuper(env))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ".", cfg.MediaRoot)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.True(t, cfg.FFprobeCountPackets)
	assert.Equal(t, "tmp/delayfix", cfg.TempDir)
	assert.False(t, cfg.KeepTemp)
	assert.InDelta(t, 0.1, cfg.ToleranceMs, 1e-12)
	assert.InDelta(t, 1.0, cfg.DeviationWarnMs, 1e-12)
	assert.Equal(t, 512, cfg.DiagnosticLimit)
	assert.Equal(t, "corrected", cfg.S3Prefix)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"PORT":                  "3000",
		"MEDIA_ROOT":            "/srv/media",
		"FFMPEG_PATH":           "/opt/ffmpeg/bin/ffmpeg",
		"FFPROBE_PATH":          "/opt/ffmpeg/bin/ffprobe",
		"FFPROBE_COUNT_PACKETS": "false",
		"TEMP_DIR":              "/custom/temp",
		"KEEP_TEMP":             "true",
		"TOLERANCE_MS":          "0.5",
		"DEVIATION_WARN_MS":     "2.5",
		"DIAGNOSTIC_LIMIT":      "200",
		"S3_BUCKET":             "my-bucket",
		"S3_REGION":             "us-east-1",
		"S3_ENDPOINT":           "http://localhost:9000",
		"S3_PREFIX":             "fixed",
		"AWS_ACCESS_KEY_ID":     "access-key",
		"AWS_SECRET_ACCESS_KEY": "secret-key",
		"LOG_FORMAT":            "JSON",
		"LOG_LEVEL":             "Debug",
	})
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/srv/media", cfg.MediaRoot)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "/opt/ffmpeg/bin/ffprobe", cfg.FFprobePath)
	assert.False(t, cfg.FFprobeCountPackets)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.True(t, cfg.KeepTemp)
	assert.InDelta(t, 0.5, cfg.ToleranceMs, 1e-12)
	assert.InDelta(t, 2.5, cfg.DeviationWarnMs, 1e-12)
	assert.Equal(t, 200, cfg.DiagnosticLimit)
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "http://localhost:9000", cfg.S3Endpoint)
	assert.Equal(t, "fixed", cfg.S3Prefix)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.S3Enabled())
}

func TestLoad_FromProcessEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TOLERANCE_MS", "0.2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.InDelta(t, 0.2, cfg.ToleranceMs, 1e-12)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port not a number", map[string]string{"PORT": "not-a-number"}},
		{"tolerance not a number", map[string]string{"TOLERANCE_MS": "tiny"}},
		{"keep temp not a bool", map[string]string{"KEEP_TEMP": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// go-envconfig returns an error when parsing fails
			_, err := load(t, tt.env)
			require.Error(t, err)
		})
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"port out of range", map[string]string{"PORT": "70000"}, "Port"},
		{"zero tolerance", map[string]string{"TOLERANCE_MS": "0"}, "ToleranceMs"},
		{"negative warn threshold", map[string]string{"DEVIATION_WARN_MS": "-1"}, "DeviationWarnMs"},
		{"tiny diagnostic limit", map[string]string{"DIAGNOSTIC_LIMIT": "4"}, "DiagnosticLimit"},
		{"bucket without region", map[string]string{"S3_BUCKET": "b"}, "S3Region"},
		{"bad endpoint", map[string]string{"S3_ENDPOINT": "not a url"}, "S3Endpoint"},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}, "LogFormat"},
		{"unknown log level", map[string]string{"LOG_LEVEL": "verbose"}, "LogLevel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.env)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		FFmpegPath:         "/usr/bin/ffmpeg",
		TempDir:            "/tmp/test",
		S3Bucket:           "bucket",
		S3Region:           "region",
		AWSAccessKeyID:     "access-key",
		AWSSecretAccessKey: "secret-key",
		LogFormat:          "json",
		LogLevel:           "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "/usr/bin/ffmpeg")
	assert.Contains(t, str, "/tmp/test")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret-key")
	assert.NotContains(t, str, "access-key")
}

func TestConfig_NewLoggerTo_JSON(t *testing.T) {
	cfg := &Config{
		LogFormat: "json",
		LogLevel:  "info",
	}

	var buf bytes.Buffer
	logger := cfg.NewLoggerTo(&buf)
	require.NotNil(t, logger)

	logger.Debug("hidden")
	logger.Info("test message", slog.Float64("frame_ms", 20))

	assert.Contains(t, buf.String(), `"msg":"test message"`)
	assert.Contains(t, buf.String(), `"frame_ms":20`)
	assert.NotContains(t, buf.String(), "hidden")
}

func TestConfig_NewLoggerTo_Text(t *testing.T) {
	cfg := &Config{
		LogFormat: "text",
		LogLevel:  "debug",
	}

	var buf bytes.Buffer
	cfg.NewLoggerTo(&buf).Debug("probing", slog.String("path", "in.mka"))

	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "path=in.mka")
}

func TestConfig_NewLogger(t *testing.T) {
	cfg := &Config{LogFormat: "text", LogLevel: "warn"}
	require.NotNil(t, cfg.NewLogger())
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:            8080,
			MediaRoot:       ".",
			FFmpegPath:      "ffmpeg",
			FFprobePath:     "ffprobe",
			TempDir:         "tmp",
			ToleranceMs:     0.1,
			DeviationWarnMs: 1,
			DiagnosticLimit: 512,
			LogFormat:       "text",
			LogLevel:        "info",
		}
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing ffmpeg path", func(t *testing.T) {
		cfg := valid()
		cfg.FFmpegPath = ""
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "FFmpegPath (required)")
	})

	t.Run("missing media root", func(t *testing.T) {
		cfg := valid()
		cfg.MediaRoot = ""
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "MediaRoot (required)")
	})

	t.Run("s3 with region", func(t *testing.T) {
		cfg := valid()
		cfg.S3Bucket = "bucket"
		cfg.S3Region = "eu-west-1"
		assert.NoError(t, cfg.Validate())
	})
}
