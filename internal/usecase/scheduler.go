package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"CryptoNewsAnalyzer/internal/logging"
	"CryptoNewsAnalyzer/internal/ports"
)

const defaultPruneEvery = 24 * time.Hour

// Scheduler drives recurring pipeline runs and the daily retention sweep.
type Scheduler struct {
	driver     ports.Scheduler
	pipeline   *Pipeline
	logger     *slog.Logger
	pruneEvery time.Duration

	mu        sync.Mutex
	lastPrune time.Time
}

// NewScheduler binds the pipeline to an interval driver.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{
		driver:     driver,
		pipeline:   pipeline,
		logger:     logger.With("component", "scheduler"),
		pruneEvery: defaultPruneEvery,
	}
}

// Start registers the tick job with the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}
	return s.driver.Start(ctx, func(trigger time.Time) { s.tick(ctx, trigger) })
}

// tick runs the pipeline, then prunes when the last sweep is older than pruneEvery.
func (s *Scheduler) tick(ctx context.Context, trigger time.Time) {
	s.logger.Info("scheduled run triggered", "at", trigger)
	report, err := s.pipeline.Run(ctx, RunOptions{})
	if err != nil {
		s.logger.Error("scheduled run failed", "run_id", report.RunID, "stage", report.Stage, "error", err)
	}

	s.mu.Lock()
	due := s.lastPrune.IsZero() || trigger.Sub(s.lastPrune) >= s.pruneEvery
	s.mu.Unlock()
	if !due {
		return
	}
	if _, err := s.pipeline.Prune(ctx); err != nil {
		s.logger.Error("scheduled prune failed", "error", err)
		return
	}
	s.mu.Lock()
	s.lastPrune = trigger
	s.mu.Unlock()
}

// Stop waits for the driver to wind down.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
