package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"CryptoNewsAnalyzer/internal/domain"
	"CryptoNewsAnalyzer/internal/logging"
	"CryptoNewsAnalyzer/internal/ports"
)

const (
	postsTable           = "posts"
	classificationsTable = "classifications"
	insertChunk          = 200
)

// Options tune the store's quality gate and clock.
type Options struct {
	MinTextLength int
	Now           func() time.Time
	Logger        *slog.Logger
}

// PostStore persists posts and classification records in a SQL database.
type PostStore struct {
	db            *sqlx.DB
	sb            sq.StatementBuilderType
	minTextLength int
	now           func() time.Time
	logger        *slog.Logger
}

var _ ports.PostStore = (*PostStore)(nil)

type postRow struct {
	ID        int64     `db:"id"`
	URL       string    `db:"url"`
	Text      string    `db:"post_text"`
	CreatedAt time.Time `db:"created_at"`
	State     string    `db:"processing_state"`
}

type categoryRow struct {
	Category string `db:"category"`
	Total    int64  `db:"total"`
	Complete int64  `db:"complete"`
}

// NewPostStore wraps an open connection.
func NewPostStore(db *sqlx.DB, opts Options) (*PostStore, error) {
	dialect, err := DialectFor(db.DriverName())
	if err != nil {
		return nil, err
	}
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &PostStore{
		db:            db,
		sb:            sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
		minTextLength: opts.MinTextLength,
		now:           opts.Now,
		logger:        logger.With("component", "store"),
	}, nil
}

// timestamps are stored in UTC at second precision so text-backed drivers compare them consistently.
func (s *PostStore) ts(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func (s *PostStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr(op+": begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return wrapErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return wrapErr(op+": commit", err)
	}
	return nil
}

func (s *PostStore) qualityGate(window time.Duration) sq.And {
	return sq.And{
		sq.Eq{"processing_state": string(domain.StateUnseen)},
		sq.GtOrEq{"created_at": s.ts(s.now().Add(-window))},
		sq.Expr("TRIM(post_text) <> ''"),
		sq.Expr("LENGTH(TRIM(post_text)) >= ?", s.minTextLength),
		sq.NotLike{"post_text": "RT @%"},
	}
}

// FetchUnprocessed returns up to limit unseen posts inside the window, newest first,
// along with the total number of posts that passed the quality gate.
func (s *PostStore) FetchUnprocessed(ctx context.Context, window time.Duration, limit int) ([]domain.Post, int, error) {
	if limit <= 0 {
		return nil, 0, fmt.Errorf("%w: limit must be positive", domain.ErrValidation)
	}
	where := s.qualityGate(window)

	var (
		rows  []postRow
		total int
	)
	err := s.withTx(ctx, "fetch unprocessed", func(tx *sqlx.Tx) error {
		countSQL, countArgs, err := s.sb.Select("COUNT(*)").From(postsTable).Where(where).ToSql()
		if err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
			return fmt.Errorf("count: %w", err)
		}

		query, args, err := s.sb.
			Select("id", "url", "post_text", "created_at", "processing_state").
			From(postsTable).
			Where(where).
			OrderBy("created_at DESC", "id DESC").
			Limit(uint64(limit)).
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
			return fmt.Errorf("select: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	posts := make([]domain.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, domain.Post{
			ID:        r.ID,
			URL:       r.URL,
			Text:      r.Text,
			CreatedAt: r.CreatedAt,
			State:     domain.ProcessingState(r.State),
		})
	}
	return posts, total, nil
}

// Claim flips unseen posts to in-flight and returns the ids this call changed.
// Posts already claimed are left untouched and omitted from the result.
func (s *PostStore) Claim(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var claimed []int64
	err := s.withTx(ctx, "claim", func(tx *sqlx.Tx) error {
		query, args, err := s.sb.Update(postsTable).
			Set("processing_state", string(domain.StateInFlight)).
			Set("claimed_at", s.ts(s.now())).
			Where(sq.Eq{"id": ids, "processing_state": string(domain.StateUnseen)}).
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return err
		}
		return tx.SelectContext(ctx, &claimed, query, args...)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("posts claimed", "requested", len(ids), "claimed", len(claimed))
	return claimed, nil
}

// Persist appends one classification record per pair inside a single transaction.
func (s *PostStore) Persist(ctx context.Context, pairs []domain.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	createdAt := s.ts(s.now())
	return s.withTx(ctx, "persist", func(tx *sqlx.Tx) error {
		for start := 0; start < len(pairs); start += insertChunk {
			end := min(start+insertChunk, len(pairs))
			ins := s.sb.Insert(classificationsTable).
				Columns("post_url", "category", "title", "description", "created_at")
			for _, p := range pairs[start:end] {
				c := p.Classification
				ins = ins.Values(p.Post.URL, string(c.Category), c.Title, c.Description, createdAt)
			}
			query, args, err := ins.ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

// AggregateStatistics counts records created inside the window per category.
func (s *PostStore) AggregateStatistics(ctx context.Context, window time.Duration) (domain.CategoryStats, error) {
	stats := domain.CategoryStats{ByCategory: map[domain.Category]int{}}
	var rows []categoryRow
	err := s.withTx(ctx, "aggregate statistics", func(tx *sqlx.Tx) error {
		query, args, err := s.sb.
			Select(
				"category",
				"COUNT(*) AS total",
				"SUM(CASE WHEN title <> '' AND description <> '' THEN 1 ELSE 0 END) AS complete",
			).
			From(classificationsTable).
			Where(sq.GtOrEq{"created_at": s.ts(s.now().Add(-window))}).
			GroupBy("category").
			ToSql()
		if err != nil {
			return err
		}
		return tx.SelectContext(ctx, &rows, query, args...)
	})
	if err != nil {
		return stats, err
	}

	for _, r := range rows {
		category := domain.Category(r.Category)
		count := int(r.Total)
		stats.ByCategory[category] += count
		stats.Total += count
		switch category {
		case domain.CategorySpam:
			stats.Spam += count
		case domain.CategoryFlood:
			stats.Flood += count
		case domain.CategoryAlreadyPosted:
			stats.Duplicate += count
		default:
			stats.Valuable += int(r.Complete)
		}
	}
	return stats, nil
}

// Prune deletes classification records older than the retention period.
func (s *PostStore) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("%w: retention days must be positive", domain.ErrValidation)
	}
	cutoff := s.ts(s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour))
	var deleted int64
	err := s.withTx(ctx, "prune", func(tx *sqlx.Tx) error {
		query, args, err := s.sb.Delete(classificationsTable).
			Where(sq.Lt{"created_at": cutoff}).
			ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("classification records pruned", "deleted", deleted, "retention_days", retentionDays)
	return deleted, nil
}

// ReleaseStale returns in-flight posts claimed before olderThan that never got a
// classification record back to unseen.
func (s *PostStore) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := s.ts(s.now().Add(-olderThan))
	var released int64
	err := s.withTx(ctx, "release stale", func(tx *sqlx.Tx) error {
		query, args, err := s.sb.Update(postsTable).
			Set("processing_state", string(domain.StateUnseen)).
			Set("claimed_at", nil).
			Where(sq.Eq{"processing_state": string(domain.StateInFlight)}).
			Where(sq.Lt{"claimed_at": cutoff}).
			Where(sq.Expr("NOT EXISTS (SELECT 1 FROM classifications c WHERE c.post_url = posts.url)")).
			ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		released, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.logger.Warn("stale claims released", "released", released, "older_than", olderThan)
	}
	return released, nil
}

// Healthcheck reports whether a trivial query succeeds.
func (s *PostStore) Healthcheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		s.logger.Warn("store healthcheck failed", "error", err)
		return false
	}
	return one == 1
}

// Close releases the underlying connection pool.
func (s *PostStore) Close() error {
	return s.db.Close()
}
