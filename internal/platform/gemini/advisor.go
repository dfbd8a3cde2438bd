package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/cenkalti/backoff"
	"google.golang.org/genai"

	"github.com/phrazzld/curation-engine/internal/config"
	"github.com/phrazzld/curation-engine/internal/workers"
)

const promptText = `You are an open source license compliance expert.
Identify the license of the software component below and answer with a JSON
object of the form {"license": "<SPDX license expression>", "confidence": <0..1>,
"rationale": "<one sentence>"}. Use NOASSERTION when the evidence is not enough.

Component: {{.Component}}
{{- if .Target}}
Distributed as part of: {{.Target}}
{{- end}}
{{- if .Evidence}}
Evidence:
{{.Evidence}}
{{- end}}
`

var promptTemplate = template.Must(template.New("license").Parse(promptText))

// contentGenerator is the subset of *genai.Models used by the advisor.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Advisor implements workers.LicenseAdvisor using the Gemini API.
type Advisor struct {
	logger     *slog.Logger
	models     contentGenerator
	model      string
	maxRetries int
	baseDelay  time.Duration
}

// Ensure Advisor implements workers.LicenseAdvisor interface
var _ workers.LicenseAdvisor = (*Advisor)(nil)

// NewAdvisor creates an Advisor from the LLM configuration.
func NewAdvisor(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Advisor, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return newAdvisor(logger, client.Models, cfg), nil
}

func newAdvisor(logger *slog.Logger, models contentGenerator, cfg config.LLMConfig) *Advisor {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	delay := time.Duration(cfg.RetryDelaySeconds) * time.Second
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Advisor{
		logger:     logger.With("component", "license_advisor", "model", cfg.ModelName),
		models:     models,
		model:      cfg.ModelName,
		maxRetries: maxRetries,
		baseDelay:  delay,
	}
}

// SuggestLicense asks the model for the license of q.Component.
func (a *Advisor) SuggestLicense(ctx context.Context, q workers.LicenseQuery) (*workers.LicenseSuggestion, error) {
	prompt, err := createPrompt(q)
	if err != nil {
		return nil, err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = a.baseDelay
	exp.RandomizationFactor = 0.5
	exp.MaxElapsedTime = 0

	// WithMaxRetries treats zero as unlimited
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if a.maxRetries > 0 {
		policy = backoff.WithMaxRetries(exp, uint64(a.maxRetries))
	}

	var suggestion *workers.LicenseSuggestion
	attempt := 0
	operation := func() error {
		attempt++
		a.logger.InfoContext(ctx, "Making Gemini API call",
			"attempt", attempt,
			"max_attempts", a.maxRetries+1)

		s, err := a.generate(ctx, prompt)
		if err == nil {
			suggestion = s
			return nil
		}
		a.logger.ErrorContext(ctx, "Gemini API call failed",
			"attempt", attempt,
			"error", err)
		if errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrContentBlocked) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(policy, ctx)
	if err := backoff.Retry(operation, b); err != nil {
		if errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrContentBlocked) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: after %d attempts: %v", ErrTransientFailure, attempt, err)
	}
	return suggestion, nil
}

// generate performs one API call and decodes the answer.
func (a *Advisor) generate(ctx context.Context, prompt string) (*workers.LicenseSuggestion, error) {
	resp, err := a.models.GenerateContent(ctx, a.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, err
	}
	return parseResponse(resp)
}

func createPrompt(q workers.LicenseQuery) (string, error) {
	if strings.TrimSpace(q.Component) == "" {
		return "", ErrEmptyComponent
	}
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, q); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

func parseResponse(resp *genai.GenerateContentResponse) (*workers.LicenseSuggestion, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, ErrContentBlocked
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	var s workers.LicenseSuggestion
	if err := json.Unmarshal([]byte(text.String()), &s); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", ErrInvalidResponse, err)
	}
	if strings.TrimSpace(s.License) == "" {
		return nil, fmt.Errorf("%w: no license in response", ErrInvalidResponse)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", ErrInvalidResponse, s.Confidence)
	}
	return &s, nil
}
