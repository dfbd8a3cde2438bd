package task

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryTaskStore implements the TaskStore interface in process memory.
// It backs the "memory" database driver and the engine's tests.
type MemoryTaskStore struct {
	mutex sync.RWMutex
	tasks map[uuid.UUID]*storedTask
	seq   uint64
}

type storedTask struct {
	task *Task
	seq  uint64
}

// Ensure MemoryTaskStore implements TaskStore interface
var _ TaskStore = (*MemoryTaskStore)(nil)

// NewMemoryTaskStore creates an empty MemoryTaskStore.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[uuid.UUID]*storedTask),
	}
}

// Insert persists a copy of t.
func (s *MemoryTaskStore) Insert(ctx context.Context, t *Task) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("task %s already exists", t.ID)
	}

	s.seq++
	c := t.Clone()
	c.MarkFeedbackSaved()
	s.tasks[t.ID] = &storedTask{task: c, seq: s.seq}
	t.MarkFeedbackSaved()
	return nil
}

// Get returns a copy of the stored task.
func (s *MemoryTaskStore) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	st, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return st.task.Clone(), nil
}

// FindWaitingOrderedByCreation returns WAITING tasks of kind in insertion order.
func (s *MemoryTaskStore) FindWaitingOrderedByCreation(ctx context.Context, kind Kind) ([]*Task, error) {
	return s.FindByStatus(ctx, kind, StatusWaiting)
}

// FindByStatus returns copies of the tasks of kind in status, in insertion order.
func (s *MemoryTaskStore) FindByStatus(ctx context.Context, kind Kind, status Status) ([]*Task, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	matched := make([]*storedTask, 0)
	for _, st := range s.tasks {
		if st.task.Kind == kind && st.task.Status == status {
			matched = append(matched, st)
		}
	}
	slices.SortFunc(matched, func(a, b *storedTask) int {
		if c := a.task.CreatedAt.Compare(b.task.CreatedAt); c != 0 {
			return c
		}
		return int(a.seq) - int(b.seq)
	})

	out := make([]*Task, 0, len(matched))
	for _, st := range matched {
		out = append(out, st.task.Clone())
	}
	return out, nil
}

// CountByStatus counts tasks of kind in status.
func (s *MemoryTaskStore) CountByStatus(ctx context.Context, kind Kind, status Status) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	n := 0
	for _, st := range s.tasks {
		if st.task.Kind == kind && st.task.Status == status {
			n++
		}
	}
	return n, nil
}

// CompareAndSetStatus moves the task from expected to next under the store lock.
func (s *MemoryTaskStore) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	st, ok := s.tasks[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if st.task.Status != expected {
		return false, nil
	}
	st.task.setStatus(next)
	return true, nil
}

// Update overwrites status and configuration and appends unsaved feedback.
func (s *MemoryTaskStore) Update(ctx context.Context, t *Task) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	st, ok := s.tasks[t.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	}

	st.task.Status = t.Status
	st.task.LastUpdate = t.LastUpdate
	st.task.Configuration = append([]ConfigurationEntry(nil), t.Configuration...)
	st.task.Feedback = append(st.task.Feedback, t.UnsavedFeedback()...)
	t.MarkFeedbackSaved()
	return nil
}

// AppendFeedback appends lines to the stored feedback of task id.
func (s *MemoryTaskStore) AppendFeedback(ctx context.Context, id uuid.UUID, lines ...string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	st, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	st.task.Feedback = append(st.task.Feedback, lines...)
	return nil
}

// DeleteWhere removes tasks of kind in any of statuses.
func (s *MemoryTaskStore) DeleteWhere(ctx context.Context, kind Kind, statuses ...Status) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n := 0
	for id, st := range s.tasks {
		if st.task.Kind == kind && slices.Contains(statuses, st.task.Status) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

// MemoryUploadStore implements UploadStore in process memory.
type MemoryUploadStore struct {
	mutex   sync.RWMutex
	uploads map[uuid.UUID][]byte
}

// Ensure MemoryUploadStore implements UploadStore interface
var _ UploadStore = (*MemoryUploadStore)(nil)

// NewMemoryUploadStore creates an empty MemoryUploadStore.
func NewMemoryUploadStore() *MemoryUploadStore {
	return &MemoryUploadStore{uploads: make(map[uuid.UUID][]byte)}
}

// Put stores a copy of data for the entry.
func (s *MemoryUploadStore) Put(ctx context.Context, entryID uuid.UUID, data []byte) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.uploads[entryID] = append([]byte(nil), data...)
	return "memory:" + entryID.String(), nil
}

// Get returns the payload for the entry.
func (s *MemoryUploadStore) Get(ctx context.Context, entryID uuid.UUID) ([]byte, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	data, ok := s.uploads[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, entryID)
	}
	return append([]byte(nil), data...), nil
}

// Clear removes the payload for the entry if present.
func (s *MemoryUploadStore) Clear(ctx context.Context, entryID uuid.UUID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.uploads, entryID)
	return nil
}

// Len returns the number of payloads currently held.
func (s *MemoryUploadStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.uploads)
}
