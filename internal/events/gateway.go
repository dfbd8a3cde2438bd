package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Gateway publishes dispatch envelopes through a Publisher.
type Gateway struct {
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewGateway creates a Gateway that publishes through p.
func NewGateway(p Publisher, logger *slog.Logger) *Gateway {
	return &Gateway{
		publisher: p,
		logger:    logger.With("component", "outbound_gateway"),
		now:       time.Now,
	}
}

// Publish wraps payload in an envelope and sends it to subject. No reply is
// awaited and failed publishes are not retried; the error is returned so the
// caller can record it.
func (g *Gateway) Publish(ctx context.Context, subject, description string, payload Payload) (*Envelope, error) {
	env := NewEnvelope(description, payload, g.now())

	data, err := env.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", env.Type, err)
	}

	if err := g.publisher.Publish(ctx, subject, data); err != nil {
		g.logger.Error("failed to publish envelope",
			"subject", subject,
			"envelope_type", env.Type,
			"error", err)
		return nil, fmt.Errorf("failed to publish %s envelope to %s: %w", env.Type, subject, err)
	}

	g.logger.Debug("envelope published",
		"subject", subject,
		"envelope_type", env.Type,
		"bytes", len(data))
	return env, nil
}
