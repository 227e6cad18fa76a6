package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/abduss/studiovault/internal/config"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafkago.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNewWithoutBrokersIsNop(t *testing.T) {
	pub := New(config.KafkaConfig{})
	_, ok := pub.(Nop)
	assert.True(t, ok)
	require.NoError(t, pub.Publish(context.Background(), AssetCommitted, uuid.New(), uuid.New(), nil))
}

func TestKafkaPublisherWritesEnvelopeKeyedByCustomer(t *testing.T) {
	w := &fakeWriter{}
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pub := &KafkaPublisher{writer: w, now: func() time.Time { return fixed }}

	tenantID, customerID := uuid.New(), uuid.New()
	err := pub.Publish(context.Background(), SelectionApproved, tenantID, customerID, map[string]int{"album": 2})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, customerID.String(), string(msg.Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, SelectionApproved, env.Type)
	assert.Equal(t, tenantID, env.TenantID)
	assert.Equal(t, fixed, env.OccurredAt)
	assert.JSONEq(t, `{"album":2}`, string(env.Payload))

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}
