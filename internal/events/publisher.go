package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"stocklink/internal/logger"
)

const Topic = "catalog-events"

const (
	TypeSyncCompleted           = "sync.completed"
	TypeCanonicalProductCreated = "canonical.product.created"
)

// Event is the envelope every catalog event shares.
type Event struct {
	Type         string                 `json:"type"`
	ConnectionID string                 `json:"connection_id,omitempty"`
	Data         map[string]interface{} `json:"data"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Publisher pushes catalog events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NewPublisher returns a Kafka-backed publisher when brokers are
// configured, otherwise a NopPublisher.
func NewPublisher(brokers string, logger *logger.Logger) Publisher {
	if brokers == "" {
		return NopPublisher{}
	}
	return NewKafkaPublisher(brokers, logger)
}

// KafkaPublisher writes events to the catalog-events topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

func NewKafkaPublisher(brokers string, logger *logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers),
		Topic:        Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ConnectionID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events; used when no broker is configured and in
// tests.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }
