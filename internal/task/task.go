package task

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind selects the task family and therefore the Worker Registry consulted
// when a task of that kind is dispatched.
type Kind string

// Supported task families
const (
	KindScanner Kind = "scanner"
	KindImport  Kind = "import"
	KindCurator Kind = "curator"
)

// Kinds returns every supported task family in a stable order.
func Kinds() []Kind {
	return []Kind{KindScanner, KindImport, KindCurator}
}

// ParseKind converts a string into a Kind, case-insensitively.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Status represents the current state of a task
type Status string

// Possible task status values
const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusStopped    Status = "STOPPED"
	StatusCancelled  Status = "CANCELLED"
)

// String returns the string representation of the Status.
func (s Status) String() string { return string(s) }

// CanTransitionTo checks if the current status can move to the target status.
// markDone is last-write-wins, so IN_PROGRESS may be overwritten by COMPLETED
// or STOPPED even after an external stop flipped it.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusWaiting:
		return target == StatusInProgress || target == StatusStopped || target == StatusCancelled
	case StatusInProgress:
		return target == StatusCompleted || target == StatusStopped
	default:
		return false
	}
}

// ConfigurationEntry is one declared parameter of a task.
type ConfigurationEntry struct {
	// ID identifies the entry for the upload store.
	ID uuid.UUID `json:"id"`

	// Key must be one of the owning Worker's supported keys.
	Key string `json:"key"`

	// Value is the string-encoded scalar; its type comes from the Worker schema.
	Value string `json:"value"`

	// UploadRef points to a transient binary payload. Empty means no upload.
	UploadRef string `json:"upload_ref,omitempty"`
}

// HasUpload reports whether the entry currently carries an upload reference.
func (e ConfigurationEntry) HasUpload() bool {
	return e.UploadRef != ""
}

// Task is one unit of queued work.
type Task struct {
	ID            uuid.UUID            `json:"id"`
	Kind          Kind                 `json:"kind"`
	WorkerName    string               `json:"worker_name"`
	Status        Status               `json:"status"`
	Configuration []ConfigurationEntry `json:"configuration"`
	Feedback      []string             `json:"feedback"`
	Target        string               `json:"target"`
	CreatedAt     time.Time            `json:"created_at"`
	LastUpdate    time.Time            `json:"last_update"`

	// unsaved holds feedback lines appended since the task was last persisted.
	unsaved []string
}

// New creates a WAITING task of the given kind for the named worker.
func New(kind Kind, workerName, target string, entries ...ConfigurationEntry) *Task {
	now := time.Now().UTC()
	t := &Task{
		ID:            uuid.New(),
		Kind:          kind,
		WorkerName:    workerName,
		Status:        StatusWaiting,
		Configuration: make([]ConfigurationEntry, 0, len(entries)),
		Feedback:      []string{},
		Target:        target,
		CreatedAt:     now,
		LastUpdate:    now,
	}
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		t.Configuration = append(t.Configuration, e)
	}
	return t
}

// AddFeedback appends a human-readable line to the task's audit trail.
func (t *Task) AddFeedback(format string, args ...any) {
	line := format
	if len(args) > 0 {
		line = fmt.Sprintf(format, args...)
	}
	t.Feedback = append(t.Feedback, line)
	t.unsaved = append(t.unsaved, line)
}

// UnsavedFeedback returns the feedback lines not yet written by a TaskStore.
func (t *Task) UnsavedFeedback() []string {
	out := make([]string, len(t.unsaved))
	copy(out, t.unsaved)
	return out
}

// MarkFeedbackSaved is called by a TaskStore once unsaved lines are persisted.
func (t *Task) MarkFeedbackSaved() {
	t.unsaved = nil
}

// Entry returns the configuration entry with the given key.
func (t *Task) Entry(key string) (ConfigurationEntry, bool) {
	for _, e := range t.Configuration {
		if e.Key == key {
			return e, true
		}
	}
	return ConfigurationEntry{}, false
}

func (t *Task) hasUploads() bool {
	return slices.ContainsFunc(t.Configuration, ConfigurationEntry.HasUpload)
}

// Value returns the configured value for key, or "" when the key is absent.
func (t *Task) Value(key string) string {
	e, _ := t.Entry(key)
	return e.Value
}

// Clone returns a deep copy of the task, including unsaved feedback.
func (t *Task) Clone() *Task {
	c := *t
	c.Configuration = append([]ConfigurationEntry(nil), t.Configuration...)
	c.Feedback = append([]string(nil), t.Feedback...)
	c.unsaved = append([]string(nil), t.unsaved...)
	return &c
}

// setStatus moves the task to status and refreshes LastUpdate.
func (t *Task) setStatus(status Status) {
	t.Status = status
	t.LastUpdate = time.Now().UTC()
}
