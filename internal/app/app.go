package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/mailpilot/internal/account"
	"github.com/foxzi/mailpilot/internal/api"
	"github.com/foxzi/mailpilot/internal/config"
	"github.com/foxzi/mailpilot/internal/job"
	"github.com/foxzi/mailpilot/internal/metrics"
	"github.com/foxzi/mailpilot/internal/provider"
)

// App is the main application
type App struct {
	config        *config.Config
	accounts      *account.Store
	jobs          job.Controllers
	ticker        *job.Ticker
	apiServer     *api.Server
	metricsServer *metrics.Server
	collector     *metrics.Collector
	logger        *slog.Logger

	// runCtx is handed to provider calls made by job runs
	runCtx    context.Context
	runCancel context.CancelFunc
}

// New creates a new application
func New(cfg *config.Config, version string) (*App, error) {
	logger := NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	accounts, err := account.NewStore(cfg.Storage.Path, cfg.Storage.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to open account storage: %w", err)
	}
	if cfg.Storage.Secret == "" {
		logger.Warn("storage.secret is not set, provider API keys are stored in plain text")
	}

	clients := provider.NewManager(cfg.Provider.BaseURL, cfg.Provider.Timeout)

	runCtx, runCancel := context.WithCancel(context.Background())
	opts := job.Options{
		TickInterval:      cfg.Jobs.TickInterval,
		PausePollInterval: cfg.Jobs.PausePollInterval,
		MaxRecipients:     cfg.Jobs.MaxRecipients,
	}
	jobLogger := logger.With("component", "jobs")
	jobs := job.Controllers{
		job.KindSend:  job.NewController(runCtx, job.NewSendOperation(clients), job.NewStore(), opts, jobLogger),
		job.KindTrack: job.NewController(runCtx, job.NewTrackOperation(clients), job.NewStore(), opts, jobLogger),
	}

	a := &App{
		config:    cfg,
		accounts:  accounts,
		jobs:      jobs,
		ticker:    job.NewTicker(cfg.Jobs.TickInterval, jobs.Stores()...),
		logger:    logger,
		runCtx:    runCtx,
		runCancel: runCancel,
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		a.collector = metrics.NewCollector(m, jobs, accounts, cfg.Storage.Path, 15*time.Second)
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs,
			logger.With("component", "metrics"))
	}

	a.apiServer = api.NewServer(&cfg.Server, accounts, clients, jobs, version, logger.With("component", "api"))

	return a, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting mailpilot",
		"api_addr", a.config.Server.ListenAddr,
		"provider", a.config.Provider.BaseURL,
		"metrics", a.config.Metrics.Enabled,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.ticker.Start(ctx)
	if a.collector != nil {
		a.collector.Start(ctx)
	}

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop API server
	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	// Stop job runs
	a.runCancel()
	a.jobs.Shutdown()
	a.ticker.Stop()

	if a.collector != nil {
		a.collector.Stop()
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := a.accounts.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// NewLogger creates a logger based on configuration
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
