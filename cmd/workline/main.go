package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/worklinehq/workline/internal/api"
	"github.com/worklinehq/workline/internal/executor"
	"github.com/worklinehq/workline/internal/logging"
	"github.com/worklinehq/workline/internal/routines"
	"github.com/worklinehq/workline/internal/runner"
	"github.com/worklinehq/workline/internal/script"
	"github.com/worklinehq/workline/internal/store"
	"github.com/worklinehq/workline/internal/validation"
	"github.com/worklinehq/workline/internal/workflow"
)

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage.
	st, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	// Execution stack.
	jq := script.NewGoJQEngine()
	registry, err := routines.NewDefaultRegistry(jq)
	if err != nil {
		return err
	}
	scripts, err := script.NewRunner(logger, duration(cfg.ScriptTimeout, 10*time.Second))
	if err != nil {
		return err
	}
	webhooks := executor.NewWebhookClient(duration(cfg.WebhookTimeout, 10*time.Second))
	exec := executor.New(registry, scripts, webhooks, logger)

	// Workflow advancer and job runner. The runner resumes suspended
	// workflows through the same poll cycle that runs ordinary jobs.
	advancer := workflow.New(st, st, exec, logger, cfg.MaxWorkflowSteps)
	jobRunner := runner.New(st, exec, resumeAdapter{advancer}, logger, cfg.BatchSize, cfg.PoolSize)

	poller := runner.NewPoller(jobRunner, duration(cfg.PollInterval, time.Minute), logger)
	if err := poller.Start(ctx); err != nil {
		return err
	}
	defer poller.Stop()

	// HTTP surface.
	validator, err := validation.NewJobValidator()
	if err != nil {
		return err
	}
	auth := api.NewAuth(cfg.JWTSecret, cfg.APIKey)
	if !auth.Enabled() {
		logger.Warn("no api credentials configured, api is open")
	}
	server := api.NewServer(st, st, jobRunner, advancer, validator, auth, logger)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("workline listening", slog.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// resumeAdapter narrows the advancer to the runner's interface; the
// runner only needs to know whether the advance errored.
type resumeAdapter struct {
	advancer *workflow.Advancer
}

func (a resumeAdapter) Advance(ctx context.Context, executionID int64) error {
	_, err := a.advancer.Advance(ctx, executionID)
	return err
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(logging.NewCorrelationHandler(inner))
	slog.SetDefault(logger)
	return logger
}
