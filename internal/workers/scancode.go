package workers

import (
	"context"
	"fmt"

	"github.com/phrazzld/curation-engine/internal/events"
	"github.com/phrazzld/curation-engine/internal/task"
)

// ScanCodeName is the registered name of the ScanCode worker.
const ScanCodeName = "ScanCode"

// ScanCode hands a source tree to the remote ScanCode toolkit.
type ScanCode struct {
	task.ConfigurationSchema
	gateway Publisher
	subject string
}

// NewScanCode creates a ScanCode worker publishing on subject.
func NewScanCode(gateway Publisher, subject string) *ScanCode {
	return &ScanCode{
		ConfigurationSchema: task.ConfigurationSchema{
			{Key: "path", Type: task.ConfigBasePath, Required: true},
			{Key: "includeCopyrights", Type: task.ConfigBoolean, Default: "true"},
			{Key: "timeoutSeconds", Type: task.ConfigNumeric, Default: "3600"},
			{Key: "depth", Type: task.ConfigEnum, Default: "full", Options: []string{"shallow", "full"}},
		},
		gateway: gateway,
		subject: subject,
	}
}

// Name implements task.Worker.
func (w *ScanCode) Name() string { return ScanCodeName }

// ProcessTask publishes a scan_request for the configured path.
func (w *ScanCode) ProcessTask(ctx context.Context, t *task.Task, done task.CompletionFunc) (bool, error) {
	path := t.Value("path")
	if path == "" {
		t.AddFeedback("no scan path configured")
		return false, nil
	}

	req := events.ScanRequest{
		TaskID:            t.ID,
		Target:            t.Target,
		Path:              path,
		IncludeCopyrights: boolValue(t, "includeCopyrights", true),
		TimeoutSeconds:    int(numberValue(t, "timeoutSeconds", 3600)),
		Depth:             stringValue(t, "depth", "full"),
	}
	if _, err := w.gateway.Publish(ctx, w.subject, "scan", req); err != nil {
		return false, fmt.Errorf("scan request not delivered: %w", err)
	}

	t.AddFeedback("scan requested for %s on %s", path, w.subject)
	return true, nil
}
