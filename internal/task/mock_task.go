package task

import (
	"context"
	"sync"
)

// MockWorker is a configurable Worker for tests in this and other packages.
type MockWorker struct {
	ConfigurationSchema

	WorkerName string
	ProcessFn  func(ctx context.Context, t *Task, done CompletionFunc) (bool, error)

	mu    sync.Mutex
	calls []*Task
}

// NewMockWorker creates a MockWorker that succeeds without side effects.
func NewMockWorker(name string, schema ...ConfigurationKey) *MockWorker {
	return &MockWorker{
		ConfigurationSchema: schema,
		WorkerName:          name,
		ProcessFn: func(ctx context.Context, t *Task, done CompletionFunc) (bool, error) {
			return true, nil
		},
	}
}

// Name returns the worker's name
func (w *MockWorker) Name() string {
	return w.WorkerName
}

// ProcessTask records the call and delegates to ProcessFn
func (w *MockWorker) ProcessTask(ctx context.Context, t *Task, done CompletionFunc) (bool, error) {
	w.mu.Lock()
	w.calls = append(w.calls, t.Clone())
	w.mu.Unlock()
	return w.ProcessFn(ctx, t, done)
}

// Calls returns copies of the tasks the worker was invoked with, in order
func (w *MockWorker) Calls() []*Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*Task(nil), w.calls...)
}
