package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/abduss/studiovault/internal/config"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Event types published on the media topic.
const (
	AssetCommitted    = "asset.committed"
	AssetDeleted      = "asset.deleted"
	SelectionApproved = "selection.approved"
	ArchiveCompleted  = "archive.completed"
)

// Envelope is the JSON body of every published message.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher emits domain events keyed by customer.
type Publisher interface {
	Publish(ctx context.Context, eventType string, tenantID, customerID uuid.UUID, payload any) error
	Close() error
}

// New returns a Kafka publisher, or a no-op one when no brokers are configured.
func New(cfg config.KafkaConfig) Publisher {
	if len(cfg.Brokers) == 0 {
		return Nop{}
	}
	return &KafkaPublisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			RequiredAcks: kafkago.RequireAll,
			Compression:  compressionFromString(cfg.Compression),
			MaxAttempts:  cfg.Retries,
		},
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes envelopes to a single topic, keyed by customer id so
// one customer's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// Publish marshals payload into an Envelope and writes it.
func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, tenantID, customerID uuid.UUID, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	now := time.Now
	if p.now != nil {
		now = p.now
	}

	env := Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		TenantID:   tenantID,
		CustomerID: customerID,
		OccurredAt: now().UTC(),
		Payload:    body,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(customerID.String()),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "tenant_id", Value: []byte(tenantID.String())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, string, uuid.UUID, uuid.UUID, any) error { return nil }
func (Nop) Close() error                                                     { return nil }

func compressionFromString(name string) kafkago.Compression {
	switch strings.ToLower(name) {
	case "gzip":
		return kafkago.Gzip
	case "lz4":
		return kafkago.Lz4
	case "zstd":
		return kafkago.Zstd
	default:
		return kafkago.Snappy
	}
}
