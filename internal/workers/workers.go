package workers

import (
	"context"
	"math"
	"strconv"

	"github.com/phrazzld/curation-engine/internal/events"
	"github.com/phrazzld/curation-engine/internal/task"
)

// Subjects names the broker subject each family publishes to.
type Subjects struct {
	Scanner string
	Import  string
	Curator string
	Status  string
}

// Publisher sends dispatch envelopes. *events.Gateway implements it.
type Publisher interface {
	Publish(ctx context.Context, subject, description string, payload events.Payload) (*events.Envelope, error)
}

// NewScannerRegistry returns the registry of the scanner family.
func NewScannerRegistry(gateway Publisher, subjects Subjects) (*task.Registry, error) {
	return task.NewRegistry(task.KindScanner,
		NewScanCode(gateway, subjects.Scanner),
		NewStatusProbe(gateway, subjects.Status),
	)
}

// NewImportRegistry returns the registry of the import family.
func NewImportRegistry(gateway Publisher, subjects Subjects, uploads task.UploadStore) (*task.Registry, error) {
	return task.NewRegistry(task.KindImport,
		NewSPDXImport(gateway, subjects.Import, uploads),
	)
}

// NewCuratorRegistry returns the registry of the curator family. A nil
// advisor yields an empty registry, so curator tasks stop with
// "worker not found".
func NewCuratorRegistry(gateway Publisher, subjects Subjects, advisor LicenseAdvisor) (*task.Registry, error) {
	if advisor == nil {
		return task.NewRegistry(task.KindCurator)
	}
	return task.NewRegistry(task.KindCurator,
		NewLicenseCurator(gateway, subjects.Curator, advisor),
	)
}

// boolValue parses a BOOLEAN entry, falling back to def when absent.
func boolValue(t *task.Task, key string, def bool) bool {
	v, err := strconv.ParseBool(t.Value(key))
	if err != nil {
		return def
	}
	return v
}

// numberValue parses a NUMERIC entry, falling back to def when absent or
// not finite.
func numberValue(t *task.Task, key string, def float64) float64 {
	v, err := strconv.ParseFloat(t.Value(key), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// stringValue returns the entry value, or def when it is empty.
func stringValue(t *task.Task, key, def string) string {
	if v := t.Value(key); v != "" {
		return v
	}
	return def
}
