package workers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/curation-engine/internal/events"
	"github.com/phrazzld/curation-engine/internal/task"
)

const tagValueReport = `SPDXVersion: SPDX-2.3
DataLicense: CC0-1.0
SPDXID: SPDXRef-DOCUMENT
DocumentName: widget-1.0

PackageName: widget
SPDXID: SPDXRef-Package-widget
PackageLicenseConcluded: MIT

PackageName: left-pad
SPDXID: SPDXRef-Package-left-pad
PackageLicenseConcluded: NOASSERTION
`

const jsonReport = `{
  "spdxVersion": "SPDX-2.3",
  "name": "widget-1.0",
  "packages": [
    {"name": "widget", "licenseConcluded": "MIT"}
  ]
}`

func TestParseSPDX(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		format  string
		want    *SPDXDocument
		wantErr error
	}{
		{
			name:   "tag-value detected automatically",
			data:   tagValueReport,
			format: FormatAuto,
			want:   &SPDXDocument{Format: FormatTagValue, Version: "SPDX-2.3", Name: "widget-1.0", PackageCount: 2},
		},
		{
			name:   "json detected automatically",
			data:   "\n  " + jsonReport,
			format: "",
			want:   &SPDXDocument{Format: FormatJSON, Version: "SPDX-2.3", Name: "widget-1.0", PackageCount: 1},
		},
		{
			name:   "explicit tag-value",
			data:   tagValueReport,
			format: FormatTagValue,
			want:   &SPDXDocument{Format: FormatTagValue, Version: "SPDX-2.3", Name: "widget-1.0", PackageCount: 2},
		},
		{
			name:    "json declared but tag-value given",
			data:    tagValueReport,
			format:  FormatJSON,
			wantErr: ErrNotSPDX,
		},
		{
			name:    "json without version",
			data:    `{"name":"x","packages":[]}`,
			format:  FormatAuto,
			wantErr: ErrNotSPDX,
		},
		{
			name:    "plain text",
			data:    "just some notes\nnothing to see",
			format:  FormatAuto,
			wantErr: ErrNotSPDX,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseSPDX([]byte(tt.data), tt.format)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc)
		})
	}

	_, err := ParseSPDX([]byte(jsonReport), "yaml")
	assert.ErrorContains(t, err, "unsupported format")
}

// newReportTask creates an import task whose report entry has data uploaded.
func newReportTask(t *testing.T, uploads *task.MemoryUploadStore, data string) *task.Task {
	t.Helper()
	tk := task.New(task.KindImport, SPDXImportName, "https://github.com/acme/widget",
		task.ConfigurationEntry{Key: "report", Value: "widget.spdx"},
	)
	ref, err := uploads.Put(context.Background(), tk.Configuration[0].ID, []byte(data))
	require.NoError(t, err)
	tk.Configuration[0].UploadRef = ref
	return tk
}

func TestSPDXImportProcessTask(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes the validated document", func(t *testing.T) {
		h := newHarness()
		uploads := task.NewMemoryUploadStore()
		w := NewSPDXImport(h.gateway, testSubjects.Import, uploads)
		tk := newReportTask(t, uploads, tagValueReport)

		ok, err := w.ProcessTask(ctx, tk, noopDone)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{`SPDX-2.3 document "widget-1.0" (tag-value) with 2 packages`}, tk.Feedback)

		envs := h.envelopes(t, testSubjects.Import)
		require.Len(t, envs, 1)
		assert.Equal(t, "import", envs[0].Description)
		req := envs[0].Data.(*events.ImportRequest)
		assert.Equal(t, tk.ID, req.TaskID)
		assert.Equal(t, FormatTagValue, req.Format)
		assert.Equal(t, 2, req.PackageCount)
		assert.Equal(t, []byte(tagValueReport), req.Document)
	})

	t.Run("rejects a report that is not SPDX", func(t *testing.T) {
		h := newHarness()
		uploads := task.NewMemoryUploadStore()
		w := NewSPDXImport(h.gateway, testSubjects.Import, uploads)
		tk := newReportTask(t, uploads, "hello world")

		ok, err := w.ProcessTask(ctx, tk, noopDone)
		require.NoError(t, err)
		assert.False(t, ok)
		require.Len(t, tk.Feedback, 1)
		assert.Contains(t, tk.Feedback[0], "report widget.spdx rejected: not an SPDX document")
		assert.Empty(t, h.envelopes(t, testSubjects.Import))
	})

	t.Run("no upload", func(t *testing.T) {
		w := NewSPDXImport(newHarness().gateway, testSubjects.Import, task.NewMemoryUploadStore())
		tk := task.New(task.KindImport, SPDXImportName, "", task.ConfigurationEntry{Key: "report", Value: "widget.spdx"})

		ok, err := w.ProcessTask(ctx, tk, noopDone)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"no SPDX report uploaded"}, tk.Feedback)
	})

	t.Run("upload missing from the store", func(t *testing.T) {
		w := NewSPDXImport(newHarness().gateway, testSubjects.Import, task.NewMemoryUploadStore())
		tk := task.New(task.KindImport, SPDXImportName, "",
			task.ConfigurationEntry{Key: "report", Value: "widget.spdx", UploadRef: "memory:gone"})

		ok, err := w.ProcessTask(ctx, tk, noopDone)
		assert.False(t, ok)
		assert.ErrorIs(t, err, task.ErrUploadNotFound)
	})

	t.Run("publish failure is returned", func(t *testing.T) {
		uploads := task.NewMemoryUploadStore()
		w := NewSPDXImport(failingPublisher{}, testSubjects.Import, uploads)
		tk := newReportTask(t, uploads, jsonReport)

		ok, err := w.ProcessTask(ctx, tk, noopDone)
		assert.False(t, ok)
		assert.ErrorContains(t, err, "import request not delivered")
	})
}
