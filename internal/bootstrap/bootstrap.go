// Package bootstrap provides dependency initialization for delayfix.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/delayfix/internal/audio"
	"github.com/maauso/delayfix/internal/config"
	"github.com/maauso/delayfix/internal/job"
	"github.com/maauso/delayfix/internal/media"
	"github.com/maauso/delayfix/internal/storage"
)

// Dependencies holds the initialized dependencies shared by the CLI and the
// HTTP server.
type Dependencies struct {
	Service *job.CorrectionService
	Storage storage.Storage
	Repo    job.Repository
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	engine := audio.NewFFmpegEngine(cfg.FFmpegPath,
		audio.WithFFprobePath(cfg.FFprobePath),
		audio.WithDiagnosticLimit(cfg.DiagnosticLimit),
		audio.WithLogger(logger),
	)
	prober := media.NewFFprobe(cfg.FFprobePath, logger)
	prober.SetCountPackets(cfg.FFprobeCountPackets)

	repo := job.NewMemoryRepository()

	svc := job.NewCorrectionService(
		repo,
		engine,
		prober,
		store,
		logger,
		job.WithToleranceMs(cfg.ToleranceMs),
		job.WithDeviationWarnMs(cfg.DeviationWarnMs),
		job.WithS3Prefix(cfg.S3Prefix),
	)

	return &Dependencies{
		Service: svc,
		Storage: store,
		Repo:    repo,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		s3Store.SetKeepTemp(cfg.KeepTemp)
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	localStore.SetKeepTemp(cfg.KeepTemp)
	logger.Debug("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
		slog.Bool("keep_temp", cfg.KeepTemp),
	)
	return localStore, nil
}
