package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/delayfix/internal/bootstrap"
	"github.com/maauso/delayfix/internal/cli"
	"github.com/maauso/delayfix/internal/config"
	"github.com/maauso/delayfix/internal/job"
	"github.com/maauso/delayfix/internal/server"
	"github.com/maauso/delayfix/internal/timecode"
)

// Globals holds the flags and streams shared by every command.
type Globals struct {
	Verbose  bool
	KeepTemp bool
	Stdout   io.Writer
	Stderr   io.Writer
}

// setup loads the configuration, applies the global flags and builds the
// dependencies. Logs go to logOut.
func (g *Globals) setup(logOut io.Writer) (*config.Config, *slog.Logger, *bootstrap.Dependencies, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if g.Verbose {
		cfg.LogLevel = "debug"
	}
	if g.KeepTemp {
		cfg.KeepTemp = true
	}

	logger := cfg.NewLoggerTo(logOut)
	slog.SetDefault(logger)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize dependencies: %w", err)
	}
	return cfg, logger, deps, nil
}

// FixCmd applies a delay and/or a target duration to one file.
type FixCmd struct {
	File   string `arg:"" name:"file" help:"Audio file to correct."`
	Delay  string `arg:"" optional:"" name:"delay" help:"Signed delay, e.g. 2000, -1.5s, 120ms. 0 means none."`
	Target string `arg:"" optional:"" name:"target" help:"Wanted total duration, e.g. 01:35:50.500."`

	SampleAccurate bool   `name:"sample-accurate" help:"Work on single samples and re-encode extracted segments."`
	OutputDir      string `name:"output-dir" placeholder:"dir" type:"path" help:"Directory for the corrected file (default: next to the input)."`
	PushS3         bool   `name:"push-s3" help:"Upload the corrected file to S3_BUCKET."`
}

// Run executes the fix command.
func (c *FixCmd) Run(g *Globals) error {
	if c.Delay == "" && c.Target == "" {
		return runAnalysis(g, c.File, c.SampleAccurate)
	}

	req, err := c.request()
	if err != nil {
		return err
	}

	_, _, deps, err := g.setup(g.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := deps.Service.Process(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprint(g.Stdout, cli.RenderResult(req, res))
	return nil
}

func (c *FixCmd) request() (job.Request, error) {
	req := job.Request{
		InputPath:      c.File,
		SampleAccurate: c.SampleAccurate,
		OutputDir:      c.OutputDir,
		PushToS3:       c.PushS3,
	}
	if c.Delay != "" {
		ms, err := timecode.ParseDelay(c.Delay)
		if err != nil {
			return job.Request{}, err
		}
		req.DelayMs = ms
	}
	if c.Target != "" {
		s, err := timecode.ParseTarget(c.Target)
		if err != nil {
			return job.Request{}, err
		}
		req.HasTarget = true
		req.TargetS = s
	}
	if !req.HasDelay() && !req.HasTarget {
		return job.Request{}, fmt.Errorf("%w: delay 0 needs a target", job.ErrInvalidRequest)
	}
	return req, nil
}

// AnalyzeCmd reports the frame clock and the first usable silence of a file.
type AnalyzeCmd struct {
	File           string `arg:"" name:"file" help:"Audio file to analyze."`
	SampleAccurate bool   `name:"sample-accurate" help:"Use a one-sample clock and raw silence boundaries."`
}

// Run executes the analyze command.
func (c *AnalyzeCmd) Run(g *Globals) error {
	return runAnalysis(g, c.File, c.SampleAccurate)
}

func runAnalysis(g *Globals, file string, sampleAccurate bool) error {
	_, _, deps, err := g.setup(g.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := deps.Service.Analyze(ctx, file, sampleAccurate)
	if err != nil {
		return err
	}
	fmt.Fprint(g.Stdout, cli.RenderAnalysis(file, a))
	return nil
}

// ServeCmd runs the HTTP job API until interrupted.
type ServeCmd struct {
	Port           int      `help:"Listen port (overrides PORT)." placeholder:"port"`
	AllowedOrigins []string `name:"allowed-origin" help:"CORS origin to allow; repeatable. None by default."`
}

// Run executes the serve command.
func (c *ServeCmd) Run(g *Globals) error {
	cfg, logger, deps, err := g.setup(g.Stdout)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}

	logger.Info("starting delayfix API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.String("media_root", cfg.MediaRoot),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	handlers := server.NewHandlers(deps.Service, logger, server.WithMediaRoot(cfg.MediaRoot))
	router := server.NewRouter(handlers, logger, server.Config{AllowedOrigins: c.AllowedOrigins})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
