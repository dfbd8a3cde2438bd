package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	claimed  int
	finished []bool
	workers  []string
	skipped  int
}

func (o *recordingObserver) TaskClaimed(_ Kind, worker string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.claimed++
	o.workers = append(o.workers, worker)
}

func (o *recordingObserver) TaskFinished(_ Kind, worker string, ok bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, ok)
	o.workers = append(o.workers, worker)
}

func (o *recordingObserver) TickSkipped(Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped++
}

type dispatcherFixture struct {
	queue      *Queue
	store      *MemoryTaskStore
	uploads    *MemoryUploadStore
	observer   *recordingObserver
	dispatcher *Dispatcher
}

func newDispatcherFixture(t *testing.T, workers ...Worker) *dispatcherFixture {
	t.Helper()
	store := NewMemoryTaskStore()
	uploads := NewMemoryUploadStore()
	queue := NewQueue(KindScanner, store, uploads, setupTestLogger())
	registry, err := NewRegistry(KindScanner, workers...)
	require.NoError(t, err)

	f := &dispatcherFixture{
		queue:    queue,
		store:    store,
		uploads:  uploads,
		observer: &recordingObserver{},
	}
	f.dispatcher, err = NewDispatcher(queue, registry, setupTestLogger(), WithObserver(f.observer))
	require.NoError(t, err)
	return f
}

func (f *dispatcherFixture) reload(t *testing.T, tk *Task) *Task {
	t.Helper()
	stored, err := f.store.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	return stored
}

func TestNewDispatcherRejectsKindMismatch(t *testing.T) {
	queue := NewQueue(KindScanner, NewMemoryTaskStore(), nil, setupTestLogger())
	registry, err := NewRegistry(KindImport)
	require.NoError(t, err)

	_, err = NewDispatcher(queue, registry, setupTestLogger())
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestProcessQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue is a no-op tick", func(t *testing.T) {
		f := newDispatcherFixture(t, NewMockWorker("ScanCode"))
		assert.False(t, f.dispatcher.ProcessQueue(ctx))
		assert.Equal(t, 0, f.observer.claimed)
	})

	t.Run("successful worker completes task", func(t *testing.T) {
		w := NewMockWorker("ScanCode")
		f := newDispatcherFixture(t, w)
		tk := enqueue(t, f.queue, "ScanCode")

		assert.True(t, f.dispatcher.ProcessQueue(ctx))

		stored := f.reload(t, tk)
		assert.Equal(t, StatusCompleted, stored.Status)
		assert.Equal(t, []string{
			fmt.Sprintf("finished processing task: %s. Result: true", tk.ID),
		}, stored.Feedback)
		require.Len(t, w.Calls(), 1)
		assert.Equal(t, StatusInProgress, w.Calls()[0].Status)
		assert.Equal(t, []bool{true}, f.observer.finished)
		assert.Equal(t, 0, f.queue.InFlight())
	})

	t.Run("false result stops task", func(t *testing.T) {
		w := NewMockWorker("ScanCode")
		w.ProcessFn = func(ctx context.Context, tk *Task, done CompletionFunc) (bool, error) {
			tk.AddFeedback("scan target missing")
			return false, nil
		}
		f := newDispatcherFixture(t, w)
		tk := enqueue(t, f.queue, "ScanCode")

		f.dispatcher.ProcessQueue(ctx)

		stored := f.reload(t, tk)
		assert.Equal(t, StatusStopped, stored.Status)
		assert.Equal(t, []string{
			"scan target missing",
			fmt.Sprintf("finished processing task: %s. Result: false", tk.ID),
		}, stored.Feedback)
	})

	t.Run("worker name is matched case-insensitively", func(t *testing.T) {
		w := NewMockWorker("ScanCode")
		f := newDispatcherFixture(t, w)
		tk := enqueue(t, f.queue, "scancode")

		f.dispatcher.ProcessQueue(ctx)

		assert.Equal(t, StatusCompleted, f.reload(t, tk).Status)
		assert.Len(t, w.Calls(), 1)
	})

	t.Run("unknown worker stops task", func(t *testing.T) {
		f := newDispatcherFixture(t, NewMockWorker("ScanCode"))
		tk := enqueue(t, f.queue, "FossID")

		assert.True(t, f.dispatcher.ProcessQueue(ctx))

		stored := f.reload(t, tk)
		assert.Equal(t, StatusStopped, stored.Status)
		assert.Equal(t, []string{
			"worker not found: FossID",
			fmt.Sprintf("finished processing task: %s. Result: false", tk.ID),
		}, stored.Feedback)
		assert.Equal(t, []string{UnknownWorker, UnknownWorker}, f.observer.workers)
	})

	t.Run("observer gets the registered worker name", func(t *testing.T) {
		f := newDispatcherFixture(t, NewMockWorker("ScanCode"))
		enqueue(t, f.queue, "scancode")

		assert.True(t, f.dispatcher.ProcessQueue(ctx))
		assert.Equal(t, []string{"ScanCode", "ScanCode"}, f.observer.workers)
	})

	t.Run("worker error is isolated", func(t *testing.T) {
		w := NewMockWorker("ScanCode")
		w.ProcessFn = func(ctx context.Context, tk *Task, done CompletionFunc) (bool, error) {
			return true, errors.New("connection refused")
		}
		f := newDispatcherFixture(t, w)
		failing := enqueue(t, f.queue, "ScanCode")
		next := enqueue(t, f.queue, "ScanCode")

		assert.True(t, f.dispatcher.ProcessQueue(ctx))

		stored := f.reload(t, failing)
		assert.Equal(t, StatusStopped, stored.Status)
		assert.Contains(t, stored.Feedback, "exception during processing: connection refused")
		assert.Equal(t, StatusWaiting, f.reload(t, next).Status)
	})

	t.Run("worker panic is isolated", func(t *testing.T) {
		w := NewMockWorker("ScanCode")
		w.ProcessFn = func(ctx context.Context, tk *Task, done CompletionFunc) (bool, error) {
			panic("index out of range")
		}
		f := newDispatcherFixture(t, w)
		tk := enqueue(t, f.queue, "ScanCode")

		assert.NotPanics(t, func() {
			f.dispatcher.ProcessQueue(ctx)
		})

		stored := f.reload(t, tk)
		assert.Equal(t, StatusStopped, stored.Status)
		assert.Equal(t, []string{
			"exception during processing: index out of range",
			fmt.Sprintf("finished processing task: %s. Result: false", tk.ID),
		}, stored.Feedback)
		assert.Equal(t, []bool{false}, f.observer.finished)
	})

	t.Run("one task per tick in creation order", func(t *testing.T) {
		w := NewMockWorker("ScanCode")
		f := newDispatcherFixture(t, w)
		first := enqueue(t, f.queue, "ScanCode")
		second := enqueue(t, f.queue, "ScanCode")

		f.dispatcher.ProcessQueue(ctx)
		assert.Equal(t, StatusCompleted, f.reload(t, first).Status)
		assert.Equal(t, StatusWaiting, f.reload(t, second).Status)

		f.dispatcher.ProcessQueue(ctx)
		assert.Equal(t, StatusCompleted, f.reload(t, second).Status)

		calls := w.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, first.ID, calls[0].ID)
		assert.Equal(t, second.ID, calls[1].ID)
	})

	t.Run("uploads are released regardless of outcome", func(t *testing.T) {
		for _, result := range []bool{true, false} {
			w := NewMockWorker("ScanCode")
			w.ProcessFn = func(ctx context.Context, tk *Task, done CompletionFunc) (bool, error) {
				return result, nil
			}
			f := newDispatcherFixture(t, w)
			tk := New(KindScanner, "ScanCode", "", ConfigurationEntry{Key: "archive", Value: "src.zip"})
			ref, err := f.uploads.Put(ctx, tk.Configuration[0].ID, []byte("PK"))
			require.NoError(t, err)
			tk.Configuration[0].UploadRef = ref
			require.NoError(t, f.queue.Enqueue(ctx, tk))

			f.dispatcher.ProcessQueue(ctx)

			assert.Equal(t, 0, f.uploads.Len())
			entry, ok := f.reload(t, tk).Entry("archive")
			require.True(t, ok)
			assert.False(t, entry.HasUpload())
			assert.Equal(t, "src.zip", entry.Value)
		}
	})
}

func TestProcessQueueSkipsOverlappingTick(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	w := NewMockWorker("ScanCode")
	w.ProcessFn = func(ctx context.Context, tk *Task, done CompletionFunc) (bool, error) {
		close(started)
		<-release
		return true, nil
	}
	f := newDispatcherFixture(t, w)
	enqueue(t, f.queue, "ScanCode")
	second := enqueue(t, f.queue, "ScanCode")

	finished := make(chan bool)
	go func() {
		finished <- f.dispatcher.ProcessQueue(ctx)
	}()
	<-started

	assert.False(t, f.dispatcher.ProcessQueue(ctx))
	assert.Equal(t, 1, f.observer.skipped)
	assert.Equal(t, StatusWaiting, f.reload(t, second).Status)
	assert.Equal(t, 1, f.queue.InFlight())

	close(release)
	assert.True(t, <-finished)
	assert.Len(t, w.Calls(), 1)
}

func TestCompletionSignal(t *testing.T) {
	ctx := context.Background()

	t.Run("synchronous completion", func(t *testing.T) {
		w := NewMockWorker("ScanCode")
		w.ProcessFn = func(ctx context.Context, tk *Task, done CompletionFunc) (bool, error) {
			done(ctx, tk)
			return true, nil
		}
		f := newDispatcherFixture(t, w)
		tk := enqueue(t, f.queue, "ScanCode")

		f.dispatcher.ProcessQueue(ctx)

		stored := f.reload(t, tk)
		assert.Equal(t, StatusCompleted, stored.Status)
		assert.Equal(t, []string{
			fmt.Sprintf("completion signalled for task: %s", tk.ID),
			fmt.Sprintf("finished processing task: %s. Result: true", tk.ID),
		}, stored.Feedback)
	})

	t.Run("remote completion after the tick", func(t *testing.T) {
		f := newDispatcherFixture(t, NewMockWorker("ScanCode"))
		tk := enqueue(t, f.queue, "ScanCode")
		f.dispatcher.ProcessQueue(ctx)

		completed, err := f.dispatcher.Complete(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, completed.Status)

		stored := f.reload(t, tk)
		assert.Equal(t, StatusCompleted, stored.Status)
		assert.Equal(t, fmt.Sprintf("completion signalled for task: %s", tk.ID), stored.Feedback[len(stored.Feedback)-1])
	})

	t.Run("unknown task", func(t *testing.T) {
		f := newDispatcherFixture(t, NewMockWorker("ScanCode"))
		tk := New(KindScanner, "ScanCode", "")
		_, err := f.dispatcher.Complete(ctx, tk.ID)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("task never claimed", func(t *testing.T) {
		f := newDispatcherFixture(t, NewMockWorker("ScanCode"))
		waiting := enqueue(t, f.queue, "ScanCode")
		cancelled := enqueue(t, f.queue, "ScanCode")
		_, err := f.queue.Remove(ctx, cancelled.ID)
		require.NoError(t, err)

		for _, tk := range []*Task{waiting, cancelled} {
			_, err := f.dispatcher.Complete(ctx, tk.ID)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
		assert.Empty(t, f.reload(t, waiting).Feedback)
		assert.Equal(t, []string{"removed from queue"}, f.reload(t, cancelled).Feedback)
	})
}
