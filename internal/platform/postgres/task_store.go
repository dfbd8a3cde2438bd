package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/curation-engine/internal/platform/logger"
	"github.com/phrazzld/curation-engine/internal/task"
)

// selectTasks joins every task row with its configuration entries. Callers
// append a WHERE clause; rows are grouped back into tasks by scanTasks.
const selectTasks = `
	SELECT t.id, t.kind, t.worker_name, t.status, t.target, t.feedback,
	       t.created_at, t.last_update,
	       c.id, c.key, c.value, c.upload_ref
	FROM tasks t
	LEFT JOIN task_configuration c ON c.task_id = t.id
`

// orderTasks orders by creation, then by insertion sequence for ties.
const orderTasks = ` ORDER BY t.created_at ASC, t.seq ASC, c.position ASC`

// PostgresTaskStore implements the task.TaskStore interface using PostgreSQL
type PostgresTaskStore struct {
	db DBTX
}

// Ensure PostgresTaskStore implements task.TaskStore interface
var _ task.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore
func NewPostgresTaskStore(db DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// WithTx returns a store that runs every statement inside tx.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) *PostgresTaskStore {
	return &PostgresTaskStore{db: tx}
}

// inTx runs fn in a transaction when the store holds a *sql.DB. A store
// already bound to a transaction runs fn directly.
func (s *PostgresTaskStore) inTx(ctx context.Context, fn func(ctx context.Context, s *PostgresTaskStore) error) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return fn(ctx, s)
	}
	return runInTx(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, s.WithTx(tx))
	})
}

// Insert persists a task together with its configuration entries.
func (s *PostgresTaskStore) Insert(ctx context.Context, t *task.Task) error {
	log := logger.FromContext(ctx)

	feedback, err := encodeFeedback(t.Feedback)
	if err != nil {
		return err
	}

	err = s.inTx(ctx, func(ctx context.Context, s *PostgresTaskStore) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO tasks (id, kind, worker_name, status, target, feedback, created_at, last_update)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
		`,
			t.ID,
			string(t.Kind),
			t.WorkerName,
			string(t.Status),
			t.Target,
			feedback,
			t.CreatedAt.UTC(),
			t.LastUpdate.UTC(),
		)
		if err != nil {
			return mapError(err)
		}

		for i, e := range t.Configuration {
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO task_configuration (id, task_id, position, key, value, upload_ref)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, e.ID, t.ID, i, e.Key, e.Value, e.UploadRef)
			if err != nil {
				return mapError(err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to insert task",
			"task_id", t.ID,
			"task_kind", t.Kind,
			"error", err)
		return fmt.Errorf("failed to insert task: %w", err)
	}

	t.MarkFeedbackSaved()
	return nil
}

// Get loads one task by ID.
func (s *PostgresTaskStore) Get(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	tasks, err := s.query(ctx, selectTasks+` WHERE t.id = $1`+orderTasks, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	return tasks[0], nil
}

// FindWaitingOrderedByCreation returns WAITING tasks of kind, oldest first.
func (s *PostgresTaskStore) FindWaitingOrderedByCreation(ctx context.Context, kind task.Kind) ([]*task.Task, error) {
	return s.FindByStatus(ctx, kind, task.StatusWaiting)
}

// FindByStatus returns tasks of kind in status, oldest first.
func (s *PostgresTaskStore) FindByStatus(ctx context.Context, kind task.Kind, status task.Status) ([]*task.Task, error) {
	return s.query(ctx, selectTasks+` WHERE t.kind = $1 AND t.status = $2`+orderTasks,
		string(kind), string(status))
}

// CountByStatus counts tasks of kind in status.
func (s *PostgresTaskStore) CountByStatus(ctx context.Context, kind task.Kind, status task.Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE kind = $1 AND status = $2`,
		string(kind), string(status),
	).Scan(&n)
	if err != nil {
		logger.FromContext(ctx).Error("failed to count tasks",
			"task_kind", kind,
			"status", status,
			"error", err)
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

// CompareAndSetStatus moves task id from expected to next in one conditional
// UPDATE, so two dispatchers can never claim the same row.
func (s *PostgresTaskStore) CompareAndSetStatus(
	ctx context.Context,
	id uuid.UUID,
	expected, next task.Status,
) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = $3, last_update = $4
		WHERE id = $1 AND status = $2
	`, id, string(expected), string(next), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to update task status: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check task existence: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	return false, nil
}

// Update overwrites status, last update and the values and upload references
// of the task's configuration entries, and appends its unsaved feedback.
func (s *PostgresTaskStore) Update(ctx context.Context, t *task.Task) error {
	feedback, err := encodeFeedback(t.UnsavedFeedback())
	if err != nil {
		return err
	}

	err = s.inTx(ctx, func(ctx context.Context, s *PostgresTaskStore) error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE tasks
			SET status = $2, last_update = $3, feedback = feedback || $4::jsonb
			WHERE id = $1
		`, t.ID, string(t.Status), t.LastUpdate.UTC(), feedback)
		if err != nil {
			return mapError(err)
		}
		if err := requireRow(result, t.ID); err != nil {
			return err
		}

		for _, e := range t.Configuration {
			_, err := s.db.ExecContext(ctx, `
				UPDATE task_configuration SET value = $3, upload_ref = $4
				WHERE id = $1 AND task_id = $2
			`, e.ID, t.ID, e.Value, e.UploadRef)
			if err != nil {
				return mapError(err)
			}
		}
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to update task",
			"task_id", t.ID,
			"status", t.Status,
			"error", err)
		return fmt.Errorf("failed to update task: %w", err)
	}

	t.MarkFeedbackSaved()
	return nil
}

// AppendFeedback appends lines to the stored feedback of task id.
func (s *PostgresTaskStore) AppendFeedback(ctx context.Context, id uuid.UUID, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	feedback, err := encodeFeedback(lines)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET feedback = feedback || $2::jsonb WHERE id = $1`,
		id, feedback)
	if err != nil {
		return fmt.Errorf("failed to append task feedback: %w", mapError(err))
	}
	if err := requireRow(result, id); err != nil {
		return err
	}
	return nil
}

// DeleteWhere removes tasks of kind in any of statuses. Configuration rows
// go with them through the foreign key cascade.
func (s *PostgresTaskStore) DeleteWhere(ctx context.Context, kind task.Kind, statuses ...task.Status) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(statuses)+1)
	args = append(args, string(kind))
	placeholders := make([]string, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(`DELETE FROM tasks WHERE kind = $1 AND status IN (%s)`,
		strings.Join(placeholders, ", "))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Error("failed to delete tasks",
			"task_kind", kind,
			"statuses", statuses,
			"error", err)
		return 0, fmt.Errorf("failed to delete tasks: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// query runs a selectTasks query and groups the joined rows into tasks,
// preserving row order.
func (s *PostgresTaskStore) query(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", "error", err)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		tasks []*task.Task
		byID  = make(map[uuid.UUID]*task.Task)
	)
	for rows.Next() {
		var (
			id                 uuid.UUID
			kind, status       string
			workerName, target string
			feedback           []byte
			createdAt, updated time.Time
			entryID            uuid.NullUUID
			key, value, ref    sql.NullString
		)
		if err := rows.Scan(
			&id, &kind, &workerName, &status, &target, &feedback,
			&createdAt, &updated,
			&entryID, &key, &value, &ref,
		); err != nil {
			log.Error("failed to scan task row", "error", err)
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}

		t, seen := byID[id]
		if !seen {
			t = &task.Task{
				ID:            id,
				Kind:          task.Kind(kind),
				WorkerName:    workerName,
				Status:        task.Status(status),
				Target:        target,
				Configuration: []task.ConfigurationEntry{},
				Feedback:      []string{},
				CreatedAt:     createdAt.UTC(),
				LastUpdate:    updated.UTC(),
			}
			if len(feedback) > 0 {
				if err := json.Unmarshal(feedback, &t.Feedback); err != nil {
					return nil, fmt.Errorf("failed to decode feedback of task %s: %w", id, err)
				}
			}
			byID[id] = t
			tasks = append(tasks, t)
		}

		if entryID.Valid {
			t.Configuration = append(t.Configuration, task.ConfigurationEntry{
				ID:        entryID.UUID,
				Key:       key.String,
				Value:     value.String,
				UploadRef: ref.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows", "error", err)
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

func encodeFeedback(lines []string) (string, error) {
	if lines == nil {
		lines = []string{}
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("failed to encode feedback: %w", err)
	}
	return string(b), nil
}
