package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"CryptoNewsAnalyzer/internal/config"
	"CryptoNewsAnalyzer/internal/infrastructure/llm"
	"CryptoNewsAnalyzer/internal/infrastructure/lock"
	"CryptoNewsAnalyzer/internal/infrastructure/scheduler"
	"CryptoNewsAnalyzer/internal/infrastructure/storage"
	"CryptoNewsAnalyzer/internal/infrastructure/telegram"
	"CryptoNewsAnalyzer/internal/logging"
	"CryptoNewsAnalyzer/internal/monitoring"
	"CryptoNewsAnalyzer/internal/publisher"
	"CryptoNewsAnalyzer/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *storage.PostStore
	grok     *llm.GrokClient
	chat     *telegram.Client
	runLock  *lock.RedisLock
	history  *monitoring.History
	reporter *monitoring.Reporter
	pipeline *usecase.Pipeline
}

// New opens the store and builds every component from cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	db, err := storage.Open(ctx, storage.Config{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Database.Migrate {
		if err := storage.Migrate(ctx, db, baseLogger); err != nil {
			db.Close()
			return nil, err
		}
	}
	store, err := storage.NewPostStore(db, storage.Options{
		MinTextLength: cfg.Analysis.MinTextLength,
		Logger:        baseLogger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &Application{
		cfg:     cfg,
		logger:  baseLogger,
		store:   store,
		grok:    llm.NewGrokClient(cfg.Grok, baseLogger),
		chat:    telegram.NewClient(cfg.Telegram, baseLogger),
		history: monitoring.NewHistory(0),
	}

	renderer, err := publisher.NewRenderer(cfg.Telegram.MaxLength, nil)
	if err != nil {
		a.Close()
		return nil, err
	}
	pub := publisher.New(renderer, a.chat, publisher.Options{
		Pacing: cfg.Telegram.SendPacing,
		Logger: baseLogger,
	})

	deps := usecase.PipelineDeps{
		Store:      store,
		Classifier: a.grok,
		Publisher:  pub,
		Settings: usecase.Settings{
			FetchWindow:   cfg.Analysis.FetchWindow(),
			Limit:         cfg.Analysis.Limit,
			MinThreshold:  cfg.Analysis.MinThreshold,
			RetentionDays: cfg.Analysis.RetentionDays,
			RequeueAfter:  cfg.Analysis.RequeueAfter,
			LockTTL:       cfg.Analysis.RunLockTimeout,
		},
		Logger:   baseLogger,
		Observer: a.history.Record,
	}
	if cfg.Redis.URL != "" {
		a.runLock, err = lock.NewRedisLock(cfg.Redis.URL, cfg.Redis.Key, baseLogger)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Lock = a.runLock
	}
	a.pipeline = usecase.NewPipeline(deps)

	a.reporter = monitoring.NewReporter(monitoring.ReporterDeps{
		Store:       store,
		Classifier:  a.grok,
		Chat:        a.chat,
		History:     a.history,
		StatsWindow: cfg.Analysis.StatsWindow,
		Logger:      baseLogger,
	})
	return a, nil
}

// Run performs a single pipeline execution.
func (a *Application) Run(ctx context.Context, force bool) (usecase.RunReport, error) {
	return a.pipeline.Run(ctx, usecase.RunOptions{Force: force})
}

// Prune deletes classification records past retention.
func (a *Application) Prune(ctx context.Context) (int64, error) {
	return a.pipeline.Prune(ctx)
}

// Report builds the operator report.
func (a *Application) Report(ctx context.Context) monitoring.Report {
	return a.reporter.Build(ctx)
}

// ConnectionCheck is the outcome of probing one external dependency.
type ConnectionCheck struct {
	Name string
	OK   bool
}

// TestConnections probes the store, the classifier and the chat destination.
func (a *Application) TestConnections(ctx context.Context) []ConnectionCheck {
	checks := []ConnectionCheck{
		{Name: "database", OK: a.store.Healthcheck(ctx)},
		{Name: "grok", OK: a.grok.TestConnection(ctx)},
		{Name: "telegram", OK: a.chat.SendTest(ctx)},
	}
	if a.runLock != nil {
		err := a.runLock.Ping(ctx)
		if err != nil {
			a.logger.Warn("redis ping failed", "error", err)
		}
		checks = append(checks, ConnectionCheck{Name: "redis", OK: err == nil})
	}
	return checks
}

// Serve runs the scheduler and the operator HTTP server until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	sched := usecase.NewScheduler(scheduler.NewIntervalScheduler(a.cfg.Scheduler.Interval), a.pipeline, a.logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	server := monitoring.NewServer(a.cfg.Server.Addr, a.reporter, a.logger)
	serverErrs := server.Start()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case err, ok := <-serverErrs:
		if ok {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("http shutdown: %w", err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("scheduler stop: %w", err))
	}
	a.logger.Info("daemon stopped")
	return serveErr
}

// Close releases the store and the lock client.
func (a *Application) Close() error {
	var err error
	if a.runLock != nil {
		err = errors.Join(err, a.runLock.Close())
	}
	if a.store != nil {
		err = errors.Join(err, a.store.Close())
	}
	return err
}
