package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors returned by envelope decoding
var (
	ErrUnknownType      = errors.New("unknown envelope type")
	ErrMalformedMessage = errors.New("malformed envelope")
)

// Envelope type tags understood by the remote processes
const (
	TypeStatusRequest   = "status_request"
	TypeScanRequest     = "scan_request"
	TypeImportRequest   = "import_request"
	TypeCurationRequest = "curation_request"
)

// Payload is the kind-specific body of an Envelope.
type Payload interface {
	// EnvelopeType returns the discriminator written to the envelope's type field.
	EnvelopeType() string
}

// Envelope is the message published to the broker. Field order defines the
// wire layout and must not change.
type Envelope struct {
	// Type identifies the remote processing kind and the shape of Data
	Type string `json:"type"`

	// Description is a human-readable summary
	Description string `json:"description"`

	// Timestamp is the creation time in seconds since the Unix epoch, UTC
	Timestamp int64 `json:"timestamp"`

	// Data is the kind-specific payload
	Data Payload `json:"data"`
}

// NewEnvelope wraps payload in an Envelope stamped with now.
func NewEnvelope(description string, payload Payload, now time.Time) *Envelope {
	return &Envelope{
		Type:        payload.EnvelopeType(),
		Description: description,
		Timestamp:   now.UTC().Unix(),
		Data:        payload,
	}
}

// Encode serialises the envelope to its JSON wire form.
func (e *Envelope) Encode() ([]byte, error) {
	if e.Data == nil {
		return nil, fmt.Errorf("%w: envelope has no data", ErrMalformedMessage)
	}
	return json.Marshal(e)
}

// Publisher sends an encoded message to a named subject on the broker.
// Delivery is fire-and-forget from the caller's perspective.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// StatusRequest asks a remote process to report its status.
type StatusRequest struct {
	Details string `json:"details"`
}

// EnvelopeType implements Payload.
func (StatusRequest) EnvelopeType() string { return TypeStatusRequest }

// ScanRequest hands a source tree to a remote scanner.
type ScanRequest struct {
	TaskID            uuid.UUID `json:"task_id"`
	Target            string    `json:"target"`
	Path              string    `json:"path"`
	IncludeCopyrights bool      `json:"include_copyrights"`
	TimeoutSeconds    int       `json:"timeout_seconds"`
	Depth             string    `json:"depth"`
}

// EnvelopeType implements Payload.
func (ScanRequest) EnvelopeType() string { return TypeScanRequest }

// ImportRequest hands a validated SPDX document to the importer.
type ImportRequest struct {
	TaskID       uuid.UUID `json:"task_id"`
	Target       string    `json:"target"`
	Format       string    `json:"format"`
	SPDXVersion  string    `json:"spdx_version"`
	DocumentName string    `json:"document_name,omitempty"`
	PackageCount int       `json:"package_count"`
	Document     []byte    `json:"document"`
}

// EnvelopeType implements Payload.
func (ImportRequest) EnvelopeType() string { return TypeImportRequest }

// CurationRequest proposes a license conclusion to the curation service.
type CurationRequest struct {
	TaskID     uuid.UUID `json:"task_id"`
	Target     string    `json:"target"`
	Component  string    `json:"component"`
	License    string    `json:"license"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale,omitempty"`
}

// EnvelopeType implements Payload.
func (CurationRequest) EnvelopeType() string { return TypeCurationRequest }

// Registry maps envelope type tags to payload factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Payload
}

// NewRegistry creates a registry that knows the built-in payload variants.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]func() Payload)}
	r.Register(TypeStatusRequest, func() Payload { return &StatusRequest{} })
	r.Register(TypeScanRequest, func() Payload { return &ScanRequest{} })
	r.Register(TypeImportRequest, func() Payload { return &ImportRequest{} })
	r.Register(TypeCurationRequest, func() Payload { return &CurationRequest{} })
	return r
}

// Register adds or replaces the factory for a type tag.
func (r *Registry) Register(envelopeType string, factory func() Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[envelopeType] = factory
}

// Decode parses an encoded envelope and reconstructs its payload variant.
func (r *Registry) Decode(data []byte) (*Envelope, error) {
	var raw struct {
		Type        string          `json:"type"`
		Description string          `json:"description"`
		Timestamp   int64           `json:"timestamp"`
		Data        json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	r.mu.RLock()
	factory, ok := r.factories[raw.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, raw.Type)
	}

	payload := factory()
	if len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, payload); err != nil {
			return nil, fmt.Errorf("%w: data of %s: %v", ErrMalformedMessage, raw.Type, err)
		}
	}

	return &Envelope{
		Type:        raw.Type,
		Description: raw.Description,
		Timestamp:   raw.Timestamp,
		Data:        payload,
	}, nil
}
