package task

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Common errors returned by the task engine
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrUnknownKind       = errors.New("unknown task kind")
	ErrDuplicateWorker   = errors.New("duplicate worker name")
	ErrMissingWorkerName = errors.New("task has no worker name")
	ErrKindMismatch      = errors.New("task kind does not match queue")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrUploadNotFound    = errors.New("upload not found")
)

// TaskStore defines the interface for persisting tasks.
// The store is shared by every queue; kind arguments scope each call to one family.
// Version: 2.0
type TaskStore interface {
	// Insert persists a new task together with its configuration entries.
	Insert(ctx context.Context, t *Task) error

	// Get loads one task by ID. Returns ErrTaskNotFound when absent.
	Get(ctx context.Context, id uuid.UUID) (*Task, error)

	// FindWaitingOrderedByCreation returns WAITING tasks of kind, oldest first.
	FindWaitingOrderedByCreation(ctx context.Context, kind Kind) ([]*Task, error)

	// FindByStatus returns tasks of kind in status, oldest first.
	FindByStatus(ctx context.Context, kind Kind, status Status) ([]*Task, error)

	// CountByStatus counts tasks of kind in status.
	CountByStatus(ctx context.Context, kind Kind, status Status) (int, error)

	// CompareAndSetStatus atomically moves task id from expected to next.
	// It reports false without error when the task was not in expected.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status) (bool, error)

	// Update overwrites status, last update and configuration entries and
	// appends the task's unsaved feedback. Stored feedback is never rewritten.
	Update(ctx context.Context, t *Task) error

	// AppendFeedback appends lines to the stored feedback of task id without
	// touching its status.
	AppendFeedback(ctx context.Context, id uuid.UUID, lines ...string) error

	// DeleteWhere removes tasks of kind in any of statuses and returns the count.
	DeleteWhere(ctx context.Context, kind Kind, statuses ...Status) (int, error)
}

// UploadStore holds the transient binary payloads referenced by
// configuration entries.
type UploadStore interface {
	// Put stores data for the configuration entry and returns its reference.
	Put(ctx context.Context, entryID uuid.UUID, data []byte) (string, error)

	// Get returns the payload for the configuration entry.
	Get(ctx context.Context, entryID uuid.UUID) ([]byte, error)

	// Clear removes the payload for the configuration entry. Clearing an
	// absent payload is not an error.
	Clear(ctx context.Context, entryID uuid.UUID) error
}
