package events

import (
	"context"
	"log/slog"
	"sync"
)

// Handler receives messages published on a Bus subject.
type Handler func(ctx context.Context, subject string, payload []byte) error

// Bus is an in-process Publisher that delivers messages synchronously to the
// handlers subscribed to their subject.
type Bus struct {
	handlers map[string][]Handler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// Ensure Bus implements Publisher interface
var _ Publisher = (*Bus)(nil)

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger.With("component", "in_memory_bus"),
	}
}

// Subscribe registers handler for messages on subject.
func (b *Bus) Subscribe(subject string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[subject] = append(b.handlers[subject], handler)
	b.logger.Debug("registered subscriber",
		"subject", subject,
		"handler_count", len(b.handlers[subject]))
}

// Publish delivers payload to every handler of subject. If any handler
// returns an error, the message is still delivered to the other handlers
// and the first error encountered is returned.
func (b *Bus) Publish(ctx context.Context, subject string, payload []byte) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[subject]))
	copy(handlers, b.handlers[subject])
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug("no subscribers for subject", "subject", subject)
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		if err := handler(ctx, subject, msg); err != nil {
			b.logger.Error("subscriber failed to process message",
				"error", err,
				"handler_index", i,
				"subject", subject)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// Recorder is a Bus subscriber that keeps every message it receives.
type Recorder struct {
	mu       sync.Mutex
	messages [][]byte
}

// Handle implements Handler.
func (r *Recorder) Handle(ctx context.Context, subject string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, payload)
	return nil
}

// Messages returns the recorded payloads in arrival order.
func (r *Recorder) Messages() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.messages...)
}
