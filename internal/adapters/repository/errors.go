package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound          = errors.New("record not found")
	ErrNotPending        = errors.New("approval is not pending")
	ErrConflict          = errors.New("record changed concurrently")
	ErrDuplicate         = errors.New("duplicate record")
	ErrInvalidEntity     = errors.New("invalid record")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// PostgreSQL error codes.
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"
)

// mapError translates driver errors into this package's sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		case foreignKeyViolationCode, checkViolationCode:
			return fmt.Errorf("%w: constraint %s: %v", ErrInvalidEntity, pgErr.ConstraintName, err)
		case notNullViolationCode:
			return fmt.Errorf("%w: column %s: %v", ErrInvalidEntity, pgErr.ColumnName, err)
		}
	}
	return err
}
