// Package kafka publishes dispatch envelopes to Kafka topics. The envelope
// subject is used as the topic name.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/phrazzld/curation-engine/internal/events"
)

// ClientConfig contains the settings needed to reach the Kafka cluster.
type ClientConfig struct {
	Brokers  []string
	ClientID string
}

// NewClient creates a Kafka client configured for synchronous, fully
// acknowledged produce requests.
func NewClient(cfg ClientConfig) (sarama.Client, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	config.Version = sarama.V3_6_0_0

	return sarama.NewClient(cfg.Brokers, config)
}

// Publisher implements events.Publisher on a sarama SyncProducer.
type Publisher struct {
	producer sarama.SyncProducer
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Ensure Publisher implements events.Publisher interface
var _ events.Publisher = (*Publisher)(nil)

// NewPublisher wraps an existing producer.
func NewPublisher(producer sarama.SyncProducer, tracer trace.Tracer, logger *slog.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		tracer:   tracer,
		logger:   logger.With("component", "kafka_publisher"),
	}
}

// Connect creates a client and producer, retrying with exponential backoff
// while the brokers are unreachable.
func Connect(ctx context.Context, cfg ClientConfig, tracer trace.Tracer, logger *slog.Logger) (*Publisher, error) {
	var producer sarama.SyncProducer

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 2 * time.Minute
	expBackoff.InitialInterval = time.Second

	operation := func() error {
		client, err := NewClient(cfg)
		if err != nil {
			logger.Warn("kafka not reachable yet", "brokers", cfg.Brokers, "error", err)
			return fmt.Errorf("creating client: %w", err)
		}
		producer, err = sarama.NewSyncProducerFromClient(client)
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("creating producer: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to kafka after retries: %w", err)
	}
	return NewPublisher(producer, tracer, logger), nil
}

// Publish sends payload to the topic named by subject.
func (p *Publisher) Publish(ctx context.Context, subject string, payload []byte) error {
	_, span := p.tracer.Start(ctx, "kafka.produce",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(subject),
			semconv.MessagingOperationPublish,
		),
	)
	defer span.End()

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: subject,
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to publish to topic %s: %w", subject, err)
	}

	p.logger.Debug("message published",
		"topic", subject,
		"partition", partition,
		"offset", offset)
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
