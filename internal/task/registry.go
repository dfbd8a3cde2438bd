package task

import (
	"fmt"
	"strings"
)

// Registry maps worker names to Worker instances for one task kind.
// It is populated once at process start and read-only afterwards.
type Registry struct {
	kind    Kind
	workers map[string]Worker
	order   []Worker
}

// NewRegistry builds a registry for kind. Worker names are matched
// case-insensitively, so two workers whose names differ only in case collide.
func NewRegistry(kind Kind, workers ...Worker) (*Registry, error) {
	r := &Registry{
		kind:    kind,
		workers: make(map[string]Worker, len(workers)),
	}
	for _, w := range workers {
		if w == nil {
			return nil, fmt.Errorf("%s registry: nil worker", kind)
		}
		name := strings.TrimSpace(w.Name())
		if name == "" {
			return nil, fmt.Errorf("%s registry: worker with empty name", kind)
		}
		key := strings.ToLower(name)
		if _, exists := r.workers[key]; exists {
			return nil, fmt.Errorf("%w: %s registry already has %q", ErrDuplicateWorker, kind, name)
		}
		r.workers[key] = w
		r.order = append(r.order, w)
	}
	return r, nil
}

// Kind returns the task kind served by this registry.
func (r *Registry) Kind() Kind {
	return r.kind
}

// All returns the registered workers in registration order.
func (r *Registry) All() []Worker {
	out := make([]Worker, len(r.order))
	copy(out, r.order)
	return out
}

// ByName resolves a worker by name, ignoring case and surrounding whitespace.
func (r *Registry) ByName(name string) (Worker, bool) {
	w, ok := r.workers[strings.ToLower(strings.TrimSpace(name))]
	return w, ok
}
