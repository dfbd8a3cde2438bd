package api

import (
	"time"

	"github.com/phrazzld/curation-engine/internal/task"
)

// TaskResponse is the API view of a task. Upload payloads are never
// returned; only whether an entry still carries one.
type TaskResponse struct {
	ID            string                  `json:"id"`
	Kind          task.Kind               `json:"kind"`
	WorkerName    string                  `json:"worker_name"`
	Status        task.Status             `json:"status"`
	Target        string                  `json:"target,omitempty"`
	Configuration []ConfigurationResponse `json:"configuration"`
	Feedback      []string                `json:"feedback"`
	CreatedAt     time.Time               `json:"created_at"`
	LastUpdate    time.Time               `json:"last_update"`
}

// ConfigurationResponse is one configuration entry of a TaskResponse.
type ConfigurationResponse struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	HasUpload bool   `json:"has_upload"`
}

// StopRequest is the optional body of a stop request.
type StopRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// QueueResponse reports the counters of one task queue.
type QueueResponse struct {
	Kind     task.Kind `json:"kind"`
	Waiting  int       `json:"waiting"`
	InFlight int       `json:"in_flight"`
}

// ClearResponse reports how many WAITING tasks a clear removed.
type ClearResponse struct {
	Kind    task.Kind `json:"kind"`
	Removed int       `json:"removed"`
}

// WorkersResponse lists the workers registered for a task kind.
type WorkersResponse struct {
	Kind    task.Kind           `json:"kind"`
	Workers []task.WorkerSchema `json:"workers"`
}

func toTaskResponse(t *task.Task) TaskResponse {
	resp := TaskResponse{
		ID:            t.ID.String(),
		Kind:          t.Kind,
		WorkerName:    t.WorkerName,
		Status:        t.Status,
		Target:        t.Target,
		Configuration: make([]ConfigurationResponse, 0, len(t.Configuration)),
		Feedback:      t.Feedback,
		CreatedAt:     t.CreatedAt,
		LastUpdate:    t.LastUpdate,
	}
	if resp.Feedback == nil {
		resp.Feedback = []string{}
	}
	for _, e := range t.Configuration {
		resp.Configuration = append(resp.Configuration, ConfigurationResponse{
			Key:       e.Key,
			Value:     e.Value,
			HasUpload: e.HasUpload(),
		})
	}
	return resp
}
