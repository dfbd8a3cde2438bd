package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UnknownWorker is the worker name reported to observers for tasks whose
// worker is not registered.
const UnknownWorker = "unknown"

// Observer receives dispatcher lifecycle events. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	TaskClaimed(kind Kind, workerName string)
	TaskFinished(kind Kind, workerName string, ok bool, elapsed time.Duration)
	TickSkipped(kind Kind)
}

type noopObserver struct{}

func (noopObserver) TaskClaimed(Kind, string) {}
func (noopObserver) TaskFinished(Kind, string, bool, time.Duration) {}
func (noopObserver) TickSkipped(Kind) {}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithObserver sets the observer notified of claims, outcomes and skipped ticks.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// Dispatcher drives one task of its queue to completion per tick.
type Dispatcher struct {
	queue    *Queue
	registry *Registry
	logger   *slog.Logger
	observer Observer

	// running guards against overlapping ticks on the same queue
	running sync.Mutex
}

// NewDispatcher creates a dispatcher for queue. The registry must serve the
// same task kind as the queue.
func NewDispatcher(
	queue *Queue,
	registry *Registry,
	logger *slog.Logger,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	if queue.Kind() != registry.Kind() {
		return nil, fmt.Errorf("%w: queue serves %s, registry serves %s",
			ErrKindMismatch, queue.Kind(), registry.Kind())
	}

	d := &Dispatcher{
		queue:    queue,
		registry: registry,
		logger:   logger.With("component", "dispatcher", "task_kind", queue.Kind()),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Kind returns the task kind served by the dispatcher.
func (d *Dispatcher) Kind() Kind {
	return d.queue.Kind()
}

// Queue returns the dispatcher's queue.
func (d *Dispatcher) Queue() *Queue {
	return d.queue
}

// Registry returns the dispatcher's worker registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// ProcessQueue claims at most one WAITING task, runs its worker, records
// the outcome and releases its uploads. It reports whether a task was
// processed. A tick that starts while the previous one is still running is
// skipped. Worker errors and panics never escape.
func (d *Dispatcher) ProcessQueue(ctx context.Context) bool {
	if !d.running.TryLock() {
		d.logger.Debug("previous tick still running, skipping")
		d.observer.TickSkipped(d.Kind())
		return false
	}
	defer d.running.Unlock()

	t, err := d.queue.ClaimNext(ctx)
	if err != nil {
		d.logger.Error("failed to claim next task", "error", err)
		return false
	}
	if t == nil {
		return false
	}

	// Client-supplied names stay out of metric labels unless registered.
	w, found := d.registry.ByName(t.WorkerName)
	label := UnknownWorker
	if found {
		label = w.Name()
	}

	d.observer.TaskClaimed(d.Kind(), label)
	log := d.logger.With("task_id", t.ID, "worker", t.WorkerName)
	started := time.Now()

	ok := false
	if found {
		log.Info("processing task")
		ok = d.execute(ctx, w, t, log)
	} else {
		log.Warn("no worker registered for task")
		t.AddFeedback("worker not found: %s", t.WorkerName)
	}

	t.AddFeedback("finished processing task: %s. Result: %t", t.ID, ok)
	if err := d.queue.MarkDone(ctx, t, ok); err != nil {
		log.Error("failed to record task outcome", "error", err)
	}

	if err := ReleaseUploads(ctx, t, d.queue.uploads, d.queue.store); err != nil {
		log.Error("failed to release task uploads", "error", err)
	}

	elapsed := time.Since(started)
	d.observer.TaskFinished(d.Kind(), label, ok, elapsed)
	log.Info("task processed", "result", ok, "duration_ms", elapsed.Milliseconds())
	return true
}

// execute runs the worker inside a failure boundary.
func (d *Dispatcher) execute(ctx context.Context, w Worker, t *Task, log *slog.Logger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panicked",
				"panic", r,
				"stack", string(debug.Stack()))
			t.AddFeedback("exception during processing: %v", r)
			ok = false
		}
	}()

	var err error
	ok, err = w.ProcessTask(ctx, t, d.onComplete)
	if err != nil {
		log.Error("worker failed", "error", err)
		t.AddFeedback("exception during processing: %s", err.Error())
		return false
	}
	return ok
}

// onComplete is the CompletionFunc handed to workers.
func (d *Dispatcher) onComplete(ctx context.Context, t *Task) {
	if _, err := d.Complete(ctx, t.ID); err != nil {
		d.logger.Error("failed to record completion", "task_id", t.ID, "error", err)
	}
}

// Complete signals that downstream work triggered for task id has finished.
func (d *Dispatcher) Complete(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := d.queue.Complete(ctx, id)
	if err != nil {
		return nil, err
	}
	d.logger.Info("completion signalled", "task_id", id)
	return t, nil
}
