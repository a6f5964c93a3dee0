package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"CryptoNewsAnalyzer/internal/domain"
	"CryptoNewsAnalyzer/internal/logging"
	"CryptoNewsAnalyzer/internal/metrics"
	"CryptoNewsAnalyzer/internal/ports"
)

// RunStatus is the terminal state of one pipeline run.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusSkipped   RunStatus = "skipped"
	StatusFailed    RunStatus = "failed"
)

// Stage names the step a run reached.
type Stage string

const (
	StageLock     Stage = "lock"
	StageRequeue  Stage = "requeue"
	StageFetch    Stage = "fetch"
	StageCheck    Stage = "threshold"
	StageClaim    Stage = "claim"
	StageClassify Stage = "classify"
	StagePersist  Stage = "persist"
	StagePublish  Stage = "publish"
	StageDone     Stage = "done"
)

// RunOptions alter a single run.
type RunOptions struct {
	// Force skips the minimum batch size check.
	Force bool
}

// RunReport describes how a run ended.
type RunReport struct {
	RunID        string          `json:"run_id"`
	Status       RunStatus       `json:"status"`
	Stage        Stage           `json:"stage"`
	Reason       string          `json:"reason,omitempty"`
	Error        string          `json:"error,omitempty"`
	PublishError string          `json:"publish_error,omitempty"`
	Stats        domain.RunStats `json:"stats"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
}

// Settings bound one run.
type Settings struct {
	FetchWindow   time.Duration
	Limit         int
	MinThreshold  int
	RetentionDays int
	RequeueAfter  time.Duration
	LockTTL       time.Duration
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Store      ports.PostStore
	Classifier ports.Classifier
	Publisher  ports.Publisher
	Lock       ports.RunLock
	Settings   Settings
	Logger     *slog.Logger
	Now        func() time.Time
	// Observer receives every finished report.
	Observer func(RunReport)
}

// Pipeline runs FETCH, CLAIM, CLASSIFY, PERSIST and PUBLISH in sequence.
type Pipeline struct {
	store      ports.PostStore
	classifier ports.Classifier
	publisher  ports.Publisher
	lock       ports.RunLock
	settings   Settings
	logger     *slog.Logger
	now        func() time.Time
	observer   func(RunReport)
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Settings.LockTTL <= 0 {
		deps.Settings.LockTTL = 30 * time.Minute
	}
	return &Pipeline{
		store:      deps.Store,
		classifier: deps.Classifier,
		publisher:  deps.Publisher,
		lock:       deps.Lock,
		settings:   deps.Settings,
		logger:     deps.Logger.With("component", "pipeline"),
		now:        deps.Now,
		observer:   deps.Observer,
	}
}

// Run executes one pipeline pass. The returned error is non-nil only for failed runs.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (RunReport, error) {
	if p.store == nil || p.classifier == nil {
		return RunReport{}, fmt.Errorf("%w: pipeline requires a store and a classifier", domain.ErrConfig)
	}

	report := RunReport{RunID: uuid.NewString(), StartedAt: p.now()}
	logger := p.logger.With("run_id", report.RunID)
	logger.Info("run started", "force", opts.Force)

	if p.lock != nil {
		report.Stage = StageLock
		release, acquired, err := p.lock.Acquire(ctx, p.settings.LockTTL)
		switch {
		case err != nil:
			logger.Warn("run lock unavailable, continuing without it", "error", err)
		case !acquired:
			return p.skip(logger, report, "another run in progress"), nil
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("run lock release failed", "error", err)
				}
			}()
		}
	}

	if p.settings.RequeueAfter > 0 {
		report.Stage = StageRequeue
		released, err := p.store.ReleaseStale(ctx, p.settings.RequeueAfter)
		if err != nil {
			return p.fail(logger, report, fmt.Errorf("release stale claims: %w", err))
		}
		if released > 0 {
			logger.Info("stale claims requeued", "released", released)
		}
	}

	report.Stage = StageFetch
	posts, total, err := p.store.FetchUnprocessed(ctx, p.settings.FetchWindow, p.settings.Limit)
	if err != nil {
		return p.fail(logger, report, fmt.Errorf("fetch unprocessed: %w", err))
	}
	report.Stats.Found = len(posts)
	report.Stats.Total = total
	logger.Info("posts fetched", "found", len(posts), "total_matching", total)

	if len(posts) == 0 {
		return p.skip(logger, report, "no unprocessed posts"), nil
	}

	report.Stage = StageCheck
	if len(posts) < p.settings.MinThreshold && !opts.Force {
		return p.skip(logger, report, fmt.Sprintf("too few posts: %d < %d", len(posts), p.settings.MinThreshold)), nil
	}

	report.Stage = StageClaim
	ids := make([]int64, len(posts))
	for i, post := range posts {
		ids[i] = post.ID
	}
	claimedIDs, err := p.store.Claim(ctx, ids)
	if err != nil {
		return p.fail(logger, report, fmt.Errorf("claim posts: %w", err))
	}
	posts = onlyClaimed(posts, claimedIDs)
	if len(posts) < len(ids) {
		logger.Warn("some posts were claimed elsewhere", "requested", len(ids), "claimed", len(posts))
	}
	if len(posts) == 0 {
		return p.skip(logger, report, "posts already claimed by another run"), nil
	}

	report.Stage = StageClassify
	results, err := p.classifier.Classify(ctx, posts)
	if err != nil {
		var ce *domain.ClassificationError
		if errors.As(err, &ce) {
			logger.Error("classification failed",
				"cause", ce.Cause,
				"attempts", ce.Attempts,
				"retryable", ce.Retryable,
			)
		}
		return p.fail(logger, report, fmt.Errorf("classify: %w", err))
	}
	pairs, err := domain.ZipPairs(posts, results)
	if err != nil {
		return p.fail(logger, report, fmt.Errorf("pair results: %w", err))
	}
	report.Stats.Observe(pairs)
	for _, pair := range pairs {
		metrics.PostsClassified.WithLabelValues(string(pair.Classification.Category)).Inc()
	}

	report.Stage = StagePersist
	if err := p.store.Persist(ctx, pairs); err != nil {
		return p.fail(logger, report, fmt.Errorf("persist: %w", err))
	}

	if report.Stats.Valuable > 0 && p.publisher != nil {
		report.Stage = StagePublish
		res, err := p.publisher.Publish(ctx, pairs)
		report.Stats.Published = res.Sent
		report.Stats.Errors += res.Failed
		if err != nil {
			report.PublishError = err.Error()
			logger.Error("publish failed", "error", err, "sent", res.Sent, "failed", res.Failed)
		}
	}

	report.Stage = StageDone
	return p.finish(logger, report, StatusCompleted), nil
}

// Prune removes classification records past the retention period.
func (p *Pipeline) Prune(ctx context.Context) (int64, error) {
	if p.store == nil {
		return 0, fmt.Errorf("%w: pipeline requires a store", domain.ErrConfig)
	}
	days := p.settings.RetentionDays
	if days <= 0 {
		days = 30
	}
	deleted, err := p.store.Prune(ctx, days)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	metrics.RecordsPruned.Add(float64(deleted))
	p.logger.Info("prune finished", "deleted", deleted, "retention_days", days)
	return deleted, nil
}

func (p *Pipeline) skip(logger *slog.Logger, report RunReport, reason string) RunReport {
	report.Reason = reason
	return p.finish(logger, report, StatusSkipped)
}

func (p *Pipeline) fail(logger *slog.Logger, report RunReport, err error) (RunReport, error) {
	report.Error = err.Error()
	report.Stats.Errors++
	return p.finish(logger, report, StatusFailed), err
}

func (p *Pipeline) finish(logger *slog.Logger, report RunReport, status RunStatus) RunReport {
	report.Status = status
	report.FinishedAt = p.now()
	report.Stats.Elapsed = report.FinishedAt.Sub(report.StartedAt)

	metrics.RunsTotal.WithLabelValues(string(status)).Inc()
	metrics.RunDuration.Observe(report.Stats.Elapsed.Seconds())
	if status == StatusCompleted {
		metrics.LastRunValuable.Set(float64(report.Stats.Valuable))
	}

	attrs := []any{
		"status", status,
		"stage", report.Stage,
		"found", report.Stats.Found,
		"processed", report.Stats.Processed,
		"valuable", report.Stats.Valuable,
		"published", report.Stats.Published,
		"errors", report.Stats.Errors,
		"elapsed", report.Stats.Elapsed,
		"success_rate", report.Stats.SuccessRate(),
	}
	switch status {
	case StatusFailed:
		logger.Error("run failed", append(attrs, "error", report.Error)...)
	case StatusSkipped:
		logger.Info("run skipped", append(attrs, "reason", report.Reason)...)
	default:
		logger.Info("run completed", attrs...)
	}

	if p.observer != nil {
		p.observer(report)
	}
	return report
}

func onlyClaimed(posts []domain.Post, ids []int64) []domain.Post {
	claimed := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		claimed[id] = struct{}{}
	}
	out := posts[:0:0]
	for _, post := range posts {
		if _, ok := claimed[post.ID]; ok {
			post.State = domain.StateInFlight
			out = append(out, post)
		}
	}
	return out
}
