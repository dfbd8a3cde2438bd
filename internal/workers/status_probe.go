package workers

import (
	"context"
	"fmt"

	"github.com/phrazzld/curation-engine/internal/events"
	"github.com/phrazzld/curation-engine/internal/task"
)

// StatusProbeName is the registered name of the StatusProbe worker.
const StatusProbeName = "StatusProbe"

// StatusProbe asks the remote processes listening on the status subject to
// report in.
type StatusProbe struct {
	task.ConfigurationSchema
	gateway Publisher
	subject string
}

// NewStatusProbe creates a StatusProbe publishing on subject.
func NewStatusProbe(gateway Publisher, subject string) *StatusProbe {
	return &StatusProbe{
		ConfigurationSchema: task.ConfigurationSchema{
			{Key: "message", Type: task.ConfigString, Default: "ping"},
		},
		gateway: gateway,
		subject: subject,
	}
}

// Name implements task.Worker.
func (w *StatusProbe) Name() string { return StatusProbeName }

// ProcessTask publishes a status_request carrying the configured message.
func (w *StatusProbe) ProcessTask(ctx context.Context, t *task.Task, done task.CompletionFunc) (bool, error) {
	msg := stringValue(t, "message", "ping")
	if _, err := w.gateway.Publish(ctx, w.subject, "question", events.StatusRequest{Details: msg}); err != nil {
		return false, fmt.Errorf("status request not delivered: %w", err)
	}
	t.AddFeedback("status request sent: %s", msg)
	return true, nil
}
