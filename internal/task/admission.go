package task

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// AdmissionRequest asks for a new task to be enqueued for a named worker.
type AdmissionRequest struct {
	Kind          Kind             `json:"kind" validate:"required,oneof=scanner import curator"`
	WorkerName    string           `json:"worker_name" validate:"required"`
	Target        string           `json:"target"`
	Configuration []AdmissionEntry `json:"configuration" validate:"dive"`
}

// AdmissionEntry is one requested configuration value. Upload carries the
// binary payload of a FILE_UPLOAD key.
type AdmissionEntry struct {
	Key    string `json:"key" validate:"required"`
	Value  string `json:"value"`
	Upload []byte `json:"upload,omitempty"`
}

// AdmissionError reports why a request was rejected. Nothing is enqueued
// when it is returned.
type AdmissionError struct {
	Reason string
}

func (e *AdmissionError) Error() string {
	return "admission rejected: " + e.Reason
}

func reject(format string, args ...any) error {
	return &AdmissionError{Reason: fmt.Sprintf(format, args...)}
}

// Admit validates req against the schema of the requested worker, fills in
// defaults, stores uploads and enqueues the task as WAITING.
func Admit(
	ctx context.Context,
	queue *Queue,
	registry *Registry,
	uploads UploadStore,
	req AdmissionRequest,
) (*Task, error) {
	if req.Kind != queue.Kind() {
		return nil, reject("task kind %q is not served by the %s queue", req.Kind, queue.Kind())
	}

	w, ok := registry.ByName(req.WorkerName)
	if !ok {
		return nil, reject("unknown worker %q for %s tasks", req.WorkerName, req.Kind)
	}

	supported := w.SupportedConfigurationKeys()
	seen := make(map[string]bool, len(req.Configuration))
	entries := make([]ConfigurationEntry, 0, len(supported))
	pending := make(map[uuid.UUID][]byte)

	for _, in := range req.Configuration {
		if !slices.Contains(supported, in.Key) {
			return nil, reject("worker %q does not support key %q", w.Name(), in.Key)
		}
		if seen[in.Key] {
			return nil, reject("duplicate key %q", in.Key)
		}
		seen[in.Key] = true

		typ := w.ConfigurationType(in.Key)
		if err := checkValue(w, in.Key, typ, in.Value); err != nil {
			return nil, err
		}

		entry := ConfigurationEntry{ID: uuid.New(), Key: in.Key, Value: in.Value}
		if len(in.Upload) > 0 {
			if typ != ConfigFileUpload {
				return nil, reject("key %q does not accept an upload", in.Key)
			}
			if len(pending) > 0 {
				return nil, reject("a task may carry at most one upload")
			}
			pending[entry.ID] = in.Upload
		}
		entries = append(entries, entry)
	}

	for _, key := range supported {
		if seen[key] {
			continue
		}
		if def := w.DefaultConfigurationValue(key); def != "" {
			entries = append(entries, ConfigurationEntry{ID: uuid.New(), Key: key, Value: def})
		}
	}

	for _, key := range w.RequiredConfigurationKeys() {
		i := slices.IndexFunc(entries, func(e ConfigurationEntry) bool { return e.Key == key })
		if i < 0 {
			return nil, reject("missing required key %q", key)
		}
		e := entries[i]
		if w.ConfigurationType(key) == ConfigFileUpload {
			if _, ok := pending[e.ID]; !ok {
				return nil, reject("required key %q needs an upload", key)
			}
			continue
		}
		if strings.TrimSpace(e.Value) == "" {
			return nil, reject("required key %q is empty", key)
		}
	}

	t := New(queue.Kind(), w.Name(), req.Target, entries...)

	for i := range t.Configuration {
		data, ok := pending[t.Configuration[i].ID]
		if !ok {
			continue
		}
		if uploads == nil {
			return nil, reject("uploads are not enabled")
		}
		ref, err := uploads.Put(ctx, t.Configuration[i].ID, data)
		if err != nil {
			return nil, fmt.Errorf("failed to store upload for key %s: %w", t.Configuration[i].Key, err)
		}
		t.Configuration[i].UploadRef = ref
	}

	if err := queue.Enqueue(ctx, t); err != nil {
		// Do not leave an orphaned payload behind.
		for id := range pending {
			_ = uploads.Clear(ctx, id)
		}
		return nil, err
	}
	return t, nil
}

func checkValue(w Worker, key string, typ ConfigurationType, value string) error {
	if value == "" {
		return nil
	}
	switch typ {
	case ConfigBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return reject("key %q expects a boolean, got %q", key, value)
		}
	case ConfigNumeric:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return reject("key %q expects a finite number, got %q", key, value)
		}
	case ConfigEnum:
		eo, ok := w.(enumOptioner)
		if !ok {
			return nil
		}
		if opts := eo.EnumOptions(key); !slices.Contains(opts, value) {
			return reject("key %q must be one of %s, got %q", key, strings.Join(opts, ", "), value)
		}
	}
	return nil
}
