package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gosuda/tillpoint/internal/domain"
)

// PostgreSQL SQLSTATE codes the stores react to.
const (
	CodeUniqueViolation  = "23505"
	CodeUndefinedColumn  = "42703"
	CodeDuplicateObject  = "42710"
	CodeDuplicateDB      = "42P04"
	CodeInvalidPassword  = "28P01"
	CodeInvalidAuthSpec  = "28000"
	CodeInsufficientPriv = "42501"
)

// MapError wraps err with op, translating no-rows to domain.ErrNotFound and
// unique violations to domain.ErrConflict.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if HasCode(err, CodeUniqueViolation) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// HasCode reports whether err is a PostgreSQL error with one of codes.
func HasCode(err error, codes ...string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, c := range codes {
		if pgErr.Code == c {
			return true
		}
	}
	return false
}
