package ports

import (
	"context"
	"time"

	"CryptoNewsAnalyzer/internal/domain"
)

// PostStore owns persistence of posts and classification records.
type PostStore interface {
	FetchUnprocessed(ctx context.Context, window time.Duration, limit int) ([]domain.Post, int, error)
	Claim(ctx context.Context, ids []int64) ([]int64, error)
	Persist(ctx context.Context, pairs []domain.Pair) error
	AggregateStatistics(ctx context.Context, window time.Duration) (domain.CategoryStats, error)
	Prune(ctx context.Context, retentionDays int) (int64, error)
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Healthcheck(ctx context.Context) bool
}

// Classifier turns a batch of posts into one classification per post, same order.
type Classifier interface {
	Classify(ctx context.Context, posts []domain.Post) ([]domain.Classification, error)
	TestConnection(ctx context.Context) bool
}

// ChatSender delivers one rendered message to the destination channel.
type ChatSender interface {
	Send(ctx context.Context, text string) error
}

// ChatProbe exposes the sender's connectivity checks.
type ChatProbe interface {
	Identity(ctx context.Context) (string, error)
	SendTest(ctx context.Context) bool
}

// Publisher republishes the valuable subset of classified pairs.
type Publisher interface {
	Publish(ctx context.Context, pairs []domain.Pair) (domain.PublishResult, error)
}

// RunLock serialises pipeline runs across processes.
type RunLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
