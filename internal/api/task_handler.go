package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/curation-engine/internal/api/shared"
	"github.com/phrazzld/curation-engine/internal/platform/logger"
	"github.com/phrazzld/curation-engine/internal/task"
)

// AdmissionRecorder counts admission outcomes. *metrics.Engine implements it.
type AdmissionRecorder interface {
	IncAdmitted(kind task.Kind)
	IncRejected(kind task.Kind)
}

type noopRecorder struct{}

func (noopRecorder) IncAdmitted(task.Kind) {}
func (noopRecorder) IncRejected(task.Kind) {}

// TaskHandler serves the task and queue administration endpoints.
type TaskHandler struct {
	dispatchers map[task.Kind]*task.Dispatcher
	uploads     task.UploadStore
	recorder    AdmissionRecorder
	logger      *slog.Logger
}

// NewTaskHandler creates a TaskHandler over one dispatcher per task kind.
// recorder may be nil.
func NewTaskHandler(
	dispatchers []*task.Dispatcher,
	uploads task.UploadStore,
	recorder AdmissionRecorder,
	logger *slog.Logger,
) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	h := &TaskHandler{
		dispatchers: make(map[task.Kind]*task.Dispatcher, len(dispatchers)),
		uploads:     uploads,
		recorder:    recorder,
		logger:      logger.With(slog.String("component", "task_handler")),
	}
	for _, d := range dispatchers {
		h.dispatchers[d.Kind()] = d
	}
	return h
}

// CreateTask handles POST /tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req task.AdmissionRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, shared.ValidationMessage(err), err)
		return
	}

	d, ok := h.dispatchers[req.Kind]
	if !ok {
		h.recorder.IncRejected(req.Kind)
		HandleAPIError(w, r, task.ErrUnknownKind, "")
		return
	}

	t, err := task.Admit(r.Context(), d.Queue(), d.Registry(), h.uploads, req)
	if err != nil {
		var admission *task.AdmissionError
		if errors.As(err, &admission) {
			h.recorder.IncRejected(req.Kind)
			log.Info("task rejected",
				"task_kind", req.Kind,
				"worker", req.WorkerName,
				"reason", admission.Reason)
		}
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	h.recorder.IncAdmitted(t.Kind)
	log.Info("task admitted",
		"task_id", t.ID,
		"task_kind", t.Kind,
		"worker", t.WorkerName)
	shared.RespondWithJSON(w, r, http.StatusCreated, toTaskResponse(t))
}

// GetTask handles GET /tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	_, t, err := h.find(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, toTaskResponse(t))
}

// StopTask handles POST /tasks/{id}/stop. The body is optional.
func (h *TaskHandler) StopTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req StopRequest
	if r.ContentLength != 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
			return
		}
		if err := shared.ValidateRequest(&req); err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, shared.ValidationMessage(err), err)
			return
		}
	}

	d, _, err := h.find(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to stop task")
		return
	}
	t, err := d.Queue().Stop(r.Context(), id, req.Reason)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to stop task")
		return
	}

	subject, _ := shared.GetSubject(r.Context())
	logger.FromContextOrDefault(r.Context(), h.logger).Info("task stopped",
		"task_id", id,
		"task_kind", t.Kind,
		"by", subject)
	shared.RespondWithJSON(w, r, http.StatusOK, toTaskResponse(t))
}

// RemoveTask handles DELETE /tasks/{id}. Only WAITING tasks can be removed;
// they end CANCELLED.
func (h *TaskHandler) RemoveTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	d, _, err := h.find(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to remove task")
		return
	}
	t, err := d.Queue().Remove(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to remove task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, toTaskResponse(t))
}

// CompleteTask handles POST /tasks/{id}/complete, the hook remote processes
// call when the work a task triggered has finished.
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	d, _, err := h.find(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to complete task")
		return
	}
	t, err := d.Complete(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to complete task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, toTaskResponse(t))
}

// GetQueue handles GET /queues/{kind}.
func (h *TaskHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	d, ok := h.pathKind(w, r)
	if !ok {
		return
	}
	size, err := d.Queue().Size(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read queue")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, QueueResponse{
		Kind:     d.Kind(),
		Waiting:  size,
		InFlight: d.Queue().InFlight(),
	})
}

// ClearQueue handles DELETE /queues/{kind}/waiting.
func (h *TaskHandler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	d, ok := h.pathKind(w, r)
	if !ok {
		return
	}
	n, err := d.Queue().Clear(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to clear queue")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ClearResponse{Kind: d.Kind(), Removed: n})
}

// ListWorkers handles GET /workers/{kind}.
func (h *TaskHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	d, ok := h.pathKind(w, r)
	if !ok {
		return
	}
	workers := d.Registry().All()
	resp := WorkersResponse{Kind: d.Kind(), Workers: make([]task.WorkerSchema, 0, len(workers))}
	for _, wk := range workers {
		resp.Workers = append(resp.Workers, task.DescribeWorker(wk))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// find resolves the dispatcher owning task id by asking each queue in turn.
func (h *TaskHandler) find(ctx context.Context, id uuid.UUID) (*task.Dispatcher, *task.Task, error) {
	for _, kind := range task.Kinds() {
		d, ok := h.dispatchers[kind]
		if !ok {
			continue
		}
		t, err := d.Queue().Get(ctx, id)
		if errors.Is(err, task.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return d, t, nil
	}
	return nil, nil, task.ErrTaskNotFound
}

// pathID parses the {id} parameter, writing a 400 response when invalid.
func (h *TaskHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		logger.FromContextOrDefault(r.Context(), h.logger).Debug("invalid task id", "value", raw)
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return uuid.Nil, false
	}
	return id, true
}

// pathKind resolves the {kind} parameter to its dispatcher, writing a 404
// response for unknown kinds.
func (h *TaskHandler) pathKind(w http.ResponseWriter, r *http.Request) (*task.Dispatcher, bool) {
	kind, err := task.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return nil, false
	}
	d, ok := h.dispatchers[kind]
	if !ok {
		HandleAPIError(w, r, task.ErrUnknownKind, "")
		return nil, false
	}
	return d, true
}
