package workers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/phrazzld/curation-engine/internal/events"
	"github.com/phrazzld/curation-engine/internal/task"
)

// SPDXImportName is the registered name of the SPDX import worker.
const SPDXImportName = "SPDX Import"

// SPDX document formats accepted by the import worker
const (
	FormatAuto     = "auto"
	FormatTagValue = "tag-value"
	FormatJSON     = "json"
)

// ErrNotSPDX is returned when an uploaded report is not an SPDX document.
var ErrNotSPDX = errors.New("not an SPDX document")

// SPDXDocument is the summary of an uploaded SPDX report.
type SPDXDocument struct {
	Format       string
	Version      string
	Name         string
	PackageCount int
}

// SPDXImport validates an uploaded SPDX report and hands it to the importer.
type SPDXImport struct {
	task.ConfigurationSchema
	gateway Publisher
	subject string
	uploads task.UploadStore
}

// NewSPDXImport creates an SPDX import worker publishing on subject and
// reading reports from uploads.
func NewSPDXImport(gateway Publisher, subject string, uploads task.UploadStore) *SPDXImport {
	return &SPDXImport{
		ConfigurationSchema: task.ConfigurationSchema{
			{Key: "report", Type: task.ConfigFileUpload, Required: true},
			{Key: "format", Type: task.ConfigEnum, Default: FormatAuto,
				Options: []string{FormatAuto, FormatTagValue, FormatJSON}},
		},
		gateway: gateway,
		subject: subject,
		uploads: uploads,
	}
}

// Name implements task.Worker.
func (w *SPDXImport) Name() string { return SPDXImportName }

// ProcessTask reads the uploaded report, checks it is SPDX and publishes an
// import_request with the document attached.
func (w *SPDXImport) ProcessTask(ctx context.Context, t *task.Task, done task.CompletionFunc) (bool, error) {
	entry, ok := t.Entry("report")
	if !ok || !entry.HasUpload() {
		t.AddFeedback("no SPDX report uploaded")
		return false, nil
	}

	data, err := w.uploads.Get(ctx, entry.ID)
	if err != nil {
		return false, fmt.Errorf("reading uploaded report: %w", err)
	}

	doc, err := ParseSPDX(data, stringValue(t, "format", FormatAuto))
	if err != nil {
		t.AddFeedback("report %s rejected: %s", entry.Value, err.Error())
		return false, nil
	}
	t.AddFeedback("%s document %q (%s) with %d packages", doc.Version, doc.Name, doc.Format, doc.PackageCount)

	req := events.ImportRequest{
		TaskID:       t.ID,
		Target:       t.Target,
		Format:       doc.Format,
		SPDXVersion:  doc.Version,
		DocumentName: doc.Name,
		PackageCount: doc.PackageCount,
		Document:     data,
	}
	if _, err := w.gateway.Publish(ctx, w.subject, "import", req); err != nil {
		return false, fmt.Errorf("import request not delivered: %w", err)
	}
	return true, nil
}

// ParseSPDX summarises an SPDX report in the given format. FormatAuto picks
// JSON when the first non-blank byte opens an object.
func ParseSPDX(data []byte, format string) (*SPDXDocument, error) {
	switch format {
	case FormatJSON:
		return parseSPDXJSON(data)
	case FormatTagValue:
		return parseSPDXTagValue(data)
	case FormatAuto, "":
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
			return parseSPDXJSON(data)
		}
		return parseSPDXTagValue(data)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func parseSPDXJSON(data []byte) (*SPDXDocument, error) {
	var raw struct {
		SPDXVersion string            `json:"spdxVersion"`
		Name        string            `json:"name"`
		Packages    []json.RawMessage `json:"packages"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSPDX, err)
	}
	if !strings.HasPrefix(raw.SPDXVersion, "SPDX-") {
		return nil, fmt.Errorf("%w: missing spdxVersion", ErrNotSPDX)
	}
	return &SPDXDocument{
		Format:       FormatJSON,
		Version:      raw.SPDXVersion,
		Name:         raw.Name,
		PackageCount: len(raw.Packages),
	}, nil
}

func parseSPDXTagValue(data []byte) (*SPDXDocument, error) {
	doc := &SPDXDocument{Format: FormatTagValue}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		tag, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(tag) {
		case "SPDXVersion":
			if doc.Version == "" {
				doc.Version = value
			}
		case "DocumentName":
			if doc.Name == "" {
				doc.Name = value
			}
		case "PackageName":
			doc.PackageCount++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSPDX, err)
	}
	if !strings.HasPrefix(doc.Version, "SPDX-") {
		return nil, fmt.Errorf("%w: missing SPDXVersion tag", ErrNotSPDX)
	}
	return doc, nil
}
