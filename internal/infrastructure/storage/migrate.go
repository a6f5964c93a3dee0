package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"CryptoNewsAnalyzer/internal/domain"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// Migrate applies every pending schema migration for the connection's dialect.
func Migrate(ctx context.Context, db *sqlx.DB, logger *slog.Logger) error {
	dialect, err := DialectFor(db.DriverName())
	if err != nil {
		return err
	}

	gooseDialect := goose.DialectPostgres
	if dialect.Migrations == "sqlite" {
		gooseDialect = goose.DialectSQLite3
	}

	fsys, err := fs.Sub(migrationFS, "migrations/"+dialect.Migrations)
	if err != nil {
		return fmt.Errorf("%w: migrations: %w", domain.ErrStore, err)
	}

	provider, err := goose.NewProvider(gooseDialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("%w: migration provider: %w", domain.ErrStore, err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("%w: migrate up: %w", domain.ErrStore, err)
	}
	if logger != nil {
		for _, r := range results {
			logger.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
		}
	}
	return nil
}
