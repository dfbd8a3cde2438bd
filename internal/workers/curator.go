package workers

import (
	"context"
	"fmt"

	"github.com/phrazzld/curation-engine/internal/events"
	"github.com/phrazzld/curation-engine/internal/task"
)

// LicenseCuratorName is the registered name of the AI license curator.
const LicenseCuratorName = "AI License Curator"

// LicenseQuery describes the component a license is wanted for.
type LicenseQuery struct {
	Component string
	Target    string
	Evidence  string
}

// LicenseSuggestion is an advisor's answer to a LicenseQuery.
type LicenseSuggestion struct {
	License    string  `json:"license"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// LicenseAdvisor suggests an SPDX license expression for a component.
type LicenseAdvisor interface {
	SuggestLicense(ctx context.Context, q LicenseQuery) (*LicenseSuggestion, error)
}

// LicenseCurator asks a LicenseAdvisor for a conclusion and proposes it to
// the curation service.
type LicenseCurator struct {
	task.ConfigurationSchema
	gateway Publisher
	subject string
	advisor LicenseAdvisor
}

// NewLicenseCurator creates a curator worker publishing on subject.
func NewLicenseCurator(gateway Publisher, subject string, advisor LicenseAdvisor) *LicenseCurator {
	return &LicenseCurator{
		ConfigurationSchema: task.ConfigurationSchema{
			{Key: "component", Type: task.ConfigString, Required: true},
			{Key: "evidence", Type: task.ConfigString},
			{Key: "minConfidence", Type: task.ConfigNumeric, Default: "0.5"},
		},
		gateway: gateway,
		subject: subject,
		advisor: advisor,
	}
}

// Name implements task.Worker.
func (w *LicenseCurator) Name() string { return LicenseCuratorName }

// ProcessTask asks the advisor for a license and publishes a
// curation_request when the suggestion is confident enough.
func (w *LicenseCurator) ProcessTask(ctx context.Context, t *task.Task, done task.CompletionFunc) (bool, error) {
	q := LicenseQuery{
		Component: t.Value("component"),
		Target:    t.Target,
		Evidence:  t.Value("evidence"),
	}
	if q.Component == "" {
		t.AddFeedback("no component configured")
		return false, nil
	}

	s, err := w.advisor.SuggestLicense(ctx, q)
	if err != nil {
		return false, fmt.Errorf("license advisor failed: %w", err)
	}
	t.AddFeedback("suggested license %s for %s (confidence %.2f)", s.License, q.Component, s.Confidence)

	threshold := numberValue(t, "minConfidence", 0.5)
	if s.Confidence < threshold {
		t.AddFeedback("confidence %.2f below threshold %.2f, not proposed", s.Confidence, threshold)
		return false, nil
	}

	req := events.CurationRequest{
		TaskID:     t.ID,
		Target:     t.Target,
		Component:  q.Component,
		License:    s.License,
		Confidence: s.Confidence,
		Rationale:  s.Rationale,
	}
	if _, err := w.gateway.Publish(ctx, w.subject, "curation", req); err != nil {
		return false, fmt.Errorf("curation request not delivered: %w", err)
	}
	return true, nil
}
