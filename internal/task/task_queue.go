package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Queue serialises admission and claim-for-execution of the tasks of one kind.
// All status and feedback mutation of those tasks goes through a Queue.
type Queue struct {
	kind    Kind
	store   TaskStore
	uploads UploadStore
	logger  *slog.Logger

	// inFlight tracks claimed tasks that have not been retired yet
	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

// NewQueue creates a queue for kind backed by store. uploads holds the
// payloads released when tasks leave the queue; it may be nil when the
// workers of kind take no uploads.
func NewQueue(kind Kind, store TaskStore, uploads UploadStore, logger *slog.Logger) *Queue {
	return &Queue{
		kind:     kind,
		store:    store,
		uploads:  uploads,
		logger:   logger.With("component", "task_queue", "task_kind", kind),
		inFlight: make(map[uuid.UUID]struct{}),
	}
}

// Kind returns the task kind served by the queue.
func (q *Queue) Kind() Kind {
	return q.kind
}

// Enqueue persists t as WAITING.
func (q *Queue) Enqueue(ctx context.Context, t *Task) error {
	if t.WorkerName == "" {
		return ErrMissingWorkerName
	}
	if t.Kind == "" {
		t.Kind = q.kind
	}
	if t.Kind != q.kind {
		return fmt.Errorf("%w: got %s, queue serves %s", ErrKindMismatch, t.Kind, q.kind)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	for i := range t.Configuration {
		if t.Configuration[i].ID == uuid.Nil {
			t.Configuration[i].ID = uuid.New()
		}
	}
	if t.Feedback == nil {
		t.Feedback = []string{}
	}

	t.setStatus(StatusWaiting)
	t.CreatedAt = t.LastUpdate

	if err := q.store.Insert(ctx, t); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	q.logger.Debug("task enqueued",
		"task_id", t.ID,
		"worker", t.WorkerName)
	return nil
}

// ClaimNext atomically moves the oldest WAITING task to IN_PROGRESS and
// returns it. It returns nil without side effects when nothing is waiting.
// Concurrent callers never receive the same task: only one compare-and-set
// on a given task can succeed.
func (q *Queue) ClaimNext(ctx context.Context) (*Task, error) {
	waiting, err := q.store.FindWaitingOrderedByCreation(ctx, q.kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting tasks: %w", err)
	}

	for _, candidate := range waiting {
		claimed, err := q.store.CompareAndSetStatus(ctx, candidate.ID, StatusWaiting, StatusInProgress)
		if err != nil {
			return nil, fmt.Errorf("failed to claim task %s: %w", candidate.ID, err)
		}
		if !claimed {
			// Another caller won the race or the task was stopped meanwhile.
			continue
		}

		t, err := q.store.Get(ctx, candidate.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload claimed task %s: %w", candidate.ID, err)
		}

		q.mu.Lock()
		q.inFlight[t.ID] = struct{}{}
		q.mu.Unlock()

		q.logger.Debug("task claimed", "task_id", t.ID, "worker", t.WorkerName)
		return t, nil
	}

	return nil, nil
}

// MarkDone records the outcome of a claimed task: COMPLETED when ok,
// STOPPED otherwise. The write is unconditional, so it wins over an
// external stop that happened while the worker was running.
func (q *Queue) MarkDone(ctx context.Context, t *Task, ok bool) error {
	status := StatusStopped
	if ok {
		status = StatusCompleted
	}
	if !t.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, t.ID, t.Status)
	}
	t.setStatus(status)

	if err := q.store.Update(ctx, t); err != nil {
		return fmt.Errorf("failed to update task status to %s: %w", status, err)
	}

	q.retire(t.ID)
	return nil
}

// Size returns the number of WAITING tasks.
func (q *Queue) Size(ctx context.Context) (int, error) {
	n, err := q.store.CountByStatus(ctx, q.kind, StatusWaiting)
	if err != nil {
		return 0, fmt.Errorf("failed to count waiting tasks: %w", err)
	}
	return n, nil
}

// Clear removes every WAITING task and returns how many were removed.
// IN_PROGRESS and terminal tasks are never touched.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	n, err := q.deleteWhere(ctx, StatusWaiting)
	if err != nil {
		return 0, fmt.Errorf("failed to clear waiting tasks: %w", err)
	}
	q.logger.Info("waiting tasks cleared", "count", n)
	return n, nil
}

// Purge removes WAITING and STOPPED tasks. It is the only path by which the
// engine deletes retired tasks.
func (q *Queue) Purge(ctx context.Context) (int, error) {
	n, err := q.deleteWhere(ctx, StatusWaiting, StatusStopped)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tasks: %w", err)
	}
	q.logger.Info("tasks purged", "count", n)
	return n, nil
}

// deleteWhere deletes the tasks in statuses and discards the uploads of
// every task that is gone afterwards. A task claimed between the listing
// and the delete survives and keeps its uploads for the dispatcher.
func (q *Queue) deleteWhere(ctx context.Context, statuses ...Status) (int, error) {
	var doomed []*Task
	for _, status := range statuses {
		tasks, err := q.store.FindByStatus(ctx, q.kind, status)
		if err != nil {
			return 0, err
		}
		doomed = append(doomed, tasks...)
	}

	n, err := q.store.DeleteWhere(ctx, q.kind, statuses...)
	if err != nil {
		return 0, err
	}

	for _, t := range doomed {
		if !t.hasUploads() {
			continue
		}
		if _, err := q.store.Get(ctx, t.ID); !errors.Is(err, ErrTaskNotFound) {
			continue
		}
		if err := discardUploads(ctx, t, q.uploads); err != nil {
			q.logger.Error("failed to discard uploads of deleted task", "task_id", t.ID, "error", err)
		}
	}
	return n, nil
}

// Get loads a task of this queue's kind.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Kind != q.kind {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// Stop moves a WAITING or IN_PROGRESS task to STOPPED on behalf of an
// external actor.
func (q *Queue) Stop(ctx context.Context, id uuid.UUID, reason string) (*Task, error) {
	for _, from := range []Status{StatusWaiting, StatusInProgress} {
		t, ok, err := q.transition(ctx, id, from, StatusStopped)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if reason == "" {
			reason = "stopped by request"
		}
		// A running worker may still read its uploads; the dispatcher
		// releases them once the worker returns.
		if from == StatusWaiting {
			q.release(ctx, t)
		}
		return q.appendFeedback(ctx, t, reason)
	}
	return nil, fmt.Errorf("%w: task %s is not waiting or in progress", ErrInvalidTransition, id)
}

// Remove takes a WAITING task out of the waiting set by moving it to CANCELLED.
func (q *Queue) Remove(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, ok, err := q.transition(ctx, id, StatusWaiting, StatusCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: task %s is not waiting", ErrInvalidTransition, id)
	}
	q.release(ctx, t)
	return q.appendFeedback(ctx, t, "removed from queue")
}

// Recover stops tasks left IN_PROGRESS by a previous process. They are not
// re-run, since a claimed task must never execute twice.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	stuck, err := q.store.FindByStatus(ctx, q.kind, StatusInProgress)
	if err != nil {
		return 0, fmt.Errorf("failed to get in-progress tasks: %w", err)
	}

	q.logger.Info("recovering unfinished tasks", "in_progress_count", len(stuck))

	recovered := 0
	for _, t := range stuck {
		ok, err := q.store.CompareAndSetStatus(ctx, t.ID, StatusInProgress, StatusStopped)
		if err != nil {
			q.logger.Error("failed to stop interrupted task", "task_id", t.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		t.setStatus(StatusStopped)
		q.release(ctx, t)
		if err := q.store.AppendFeedback(ctx, t.ID, "interrupted by restart"); err != nil {
			q.logger.Error("failed to record recovery feedback", "task_id", t.ID, "error", err)
			continue
		}
		recovered++
	}
	return recovered, nil
}

// InFlight returns the number of claimed tasks whose worker has not
// returned yet. Downstream work still awaiting Complete is not counted.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// Complete records that downstream work for a claimed task has finished.
// The status is left to the dispatcher. Tasks that were never claimed,
// WAITING or CANCELLED ones, are rejected with ErrInvalidTransition.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusWaiting || t.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: task %s was never claimed", ErrInvalidTransition, id)
	}
	return q.appendFeedback(ctx, t, fmt.Sprintf("completion signalled for task: %s", id))
}

func (q *Queue) retire(id uuid.UUID) {
	q.mu.Lock()
	delete(q.inFlight, id)
	q.mu.Unlock()
}

// release frees the uploads of a task that left the queue without running.
func (q *Queue) release(ctx context.Context, t *Task) {
	if err := ReleaseUploads(ctx, t, q.uploads, q.store); err != nil {
		q.logger.Error("failed to release task uploads", "task_id", t.ID, "error", err)
	}
}

// transition performs a compare-and-set and reloads the task on success.
func (q *Queue) transition(ctx context.Context, id uuid.UUID, from, to Status) (*Task, bool, error) {
	if !from.CanTransitionTo(to) {
		return nil, false, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	if _, err := q.Get(ctx, id); err != nil {
		return nil, false, err
	}
	ok, err := q.store.CompareAndSetStatus(ctx, id, from, to)
	if err != nil {
		return nil, false, fmt.Errorf("failed to move task %s to %s: %w", id, to, err)
	}
	if !ok {
		return nil, false, nil
	}
	t, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// appendFeedback adds one line to a stored task without changing its status.
func (q *Queue) appendFeedback(ctx context.Context, t *Task, line string) (*Task, error) {
	if err := q.store.AppendFeedback(ctx, t.ID, line); err != nil {
		return nil, fmt.Errorf("failed to record feedback for task %s: %w", t.ID, err)
	}
	t.Feedback = append(t.Feedback, line)
	return t, nil
}
