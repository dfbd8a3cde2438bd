package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/curation-engine/internal/task"
)

func TestMapError(t *testing.T) {
	plain := errors.New("connection reset")

	tests := []struct {
		name  string
		err   error
		errIs error
		same  bool
	}{
		{name: "no rows", err: sql.ErrNoRows, errIs: task.ErrTaskNotFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", sql.ErrNoRows), errIs: task.ErrTaskNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: uniqueViolationCode}, errIs: ErrDuplicateTask},
		{
			name:  "foreign key violation",
			err:   &pgconn.PgError{Code: foreignKeyViolationCode, ConstraintName: "task_configuration_task_id_fkey"},
			errIs: ErrConstraint,
		},
		{
			name:  "check violation",
			err:   &pgconn.PgError{Code: checkViolationCode, ConstraintName: "tasks_status_check"},
			errIs: ErrConstraint,
		},
		{name: "not null violation", err: &pgconn.PgError{Code: notNullViolationCode, ColumnName: "kind"}, errIs: ErrConstraint},
		{name: "other postgres error", err: &pgconn.PgError{Code: "40001"}, same: true},
		{name: "plain error", err: plain, same: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if tt.same {
				assert.Same(t, tt.err, got)
				return
			}
			assert.ErrorIs(t, got, tt.errIs)
		})
	}

	assert.NoError(t, mapError(nil))
	assert.Contains(t, mapError(&pgconn.PgError{Code: checkViolationCode, ConstraintName: "tasks_status_check"}).Error(),
		"tasks_status_check")
}

func TestRequireRow(t *testing.T) {
	id := uuid.New()

	assert.NoError(t, requireRow(sqlmock.NewResult(0, 1), id))

	err := requireRow(sqlmock.NewResult(0, 0), id)
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
	assert.Contains(t, err.Error(), id.String())

	err = requireRow(sqlmock.NewErrorResult(errors.New("driver does not report rows")), id)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, task.ErrTaskNotFound)
}
