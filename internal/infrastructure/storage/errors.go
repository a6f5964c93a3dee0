package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"CryptoNewsAnalyzer/internal/domain"
)

// ErrConstraint marks writes rejected by a schema constraint.
var ErrConstraint = errors.New("constraint violation")

func wrapErr(op string, err error) error {
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: %s: %w: %w", domain.ErrStore, op, ErrConstraint, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStore, op, err)
}

func isConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23")
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
