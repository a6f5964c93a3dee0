package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"CryptoNewsAnalyzer/internal/domain"
)

// Config holds database connection configuration.
type Config struct {
	Driver   string
	DSN      string
	MaxConns int
}

// Dialect captures the per-driver differences the store cares about.
type Dialect struct {
	Driver      string
	Placeholder sq.PlaceholderFormat
	Migrations  string
}

var dialects = map[string]Dialect{
	"postgres": {Driver: "postgres", Placeholder: sq.Dollar, Migrations: "postgres"},
	"pgx":      {Driver: "pgx", Placeholder: sq.Dollar, Migrations: "postgres"},
	"sqlite":   {Driver: "sqlite", Placeholder: sq.Question, Migrations: "sqlite"},
}

// DialectFor resolves a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(driver))]
	if !ok {
		return Dialect{}, fmt.Errorf("%w: unsupported database driver %q", domain.ErrConfig, driver)
	}
	return d, nil
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if dialect.Driver == "sqlite" && !strings.HasPrefix(dsn, "file:") {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dsn)
	}

	db, err := sqlx.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", domain.ErrStore, err)
	}

	if dialect.Driver == "sqlite" {
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(cfg.MaxConns)
		} else {
			db.SetMaxOpenConns(10)
		}
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(time.Hour)
		db.SetConnMaxIdleTime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping database: %w", domain.ErrStore, err)
	}
	return db, nil
}
