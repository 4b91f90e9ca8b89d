// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// ErrInvalidConfig is returned when a loaded value fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`
	// MediaRoot bounds the input and output paths the HTTP API accepts.
	MediaRoot string `env:"MEDIA_ROOT, default=." json:"media_root" validate:"required"`

	// Tool locations
	FFmpegPath          string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path" validate:"required"`
	FFprobePath         string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path" validate:"required"`
	FFprobeCountPackets bool   `env:"FFPROBE_COUNT_PACKETS, default=true" json:"ffprobe_count_packets"`

	// Storage settings
	TempDir  string `env:"TEMP_DIR, default=tmp/delayfix" json:"temp_dir" validate:"required"`
	KeepTemp bool   `env:"KEEP_TEMP, default=false" json:"keep_temp"`

	// Processing settings
	ToleranceMs     float64 `env:"TOLERANCE_MS, default=0.1" json:"tolerance_ms" validate:"gt=0"`
	DeviationWarnMs float64 `env:"DEVIATION_WARN_MS, default=1.0" json:"deviation_warn_ms" validate:"gte=0"`
	DiagnosticLimit int     `env:"DIAGNOSTIC_LIMIT, default=512" json:"diagnostic_limit" validate:"min=16"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty" validate:"required_with=S3Bucket"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	S3Prefix           string `env:"S3_PREFIX, default=corrected" json:"s3_prefix"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level" validate:"oneof=debug info warn warning error"`
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates the result.
func Load() (*Config, error) {
	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom reads configuration from an arbitrary lookuper.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints declared in the struct tags.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger with an explicit destination. The CLI logs to
// stderr so reports on stdout stay clean.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, MediaRoot: %s, FFmpegPath: %s, FFprobePath: %s, TempDir: %s, KeepTemp: %t, ToleranceMs: %g, DeviationWarnMs: %g, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.MediaRoot,
		c.FFmpegPath,
		c.FFprobePath,
		c.TempDir,
		c.KeepTemp,
		c.ToleranceMs,
		c.DeviationWarnMs,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
