package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phrazzld/curation-engine/internal/task"
)

// SQLSTATE codes the store translates.
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"
)

var (
	// ErrDuplicateTask is returned when a task or configuration ID is reused.
	ErrDuplicateTask = errors.New("task already stored")

	// ErrConstraint is returned when a row violates a schema constraint, for
	// example a status outside the allowed set.
	ErrConstraint = errors.New("task violates a schema constraint")
)

// mapError translates driver errors into store errors. The original error
// stays in the message for debugging.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", task.ErrTaskNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolationCode:
		return fmt.Errorf("%w: %v", ErrDuplicateTask, err)
	case foreignKeyViolationCode, checkViolationCode:
		return fmt.Errorf("%w (%s): %v", ErrConstraint, pgErr.ConstraintName, err)
	case notNullViolationCode:
		return fmt.Errorf("%w (%s not null): %v", ErrConstraint, pgErr.ColumnName, err)
	}
	return err
}

// requireRow fails with task.ErrTaskNotFound when a statement addressed to
// task id touched no row.
func requireRow(result sql.Result, id uuid.UUID) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	return nil
}
