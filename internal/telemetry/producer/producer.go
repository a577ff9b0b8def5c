// Package producer publishes auth events to a Kafka topic for downstream consumers (security
// analytics, notification workers).
package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"chat-credential-engine/internal/telemetry"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "chat.auth-events"

// writeTimeout bounds a single publish so a slow broker never holds an emit goroutine.
const writeTimeout = 5 * time.Second

// MessageWriter is the subset of *kafka.Writer used by Producer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer implements telemetry.EventEmitter over a Kafka writer. A nil *Producer is a no-op.
type Producer struct {
	writer MessageWriter
}

var _ telemetry.EventEmitter = (*Producer)(nil)

// NewProducer returns a producer writing to topic on brokers. It returns nil when brokers is
// empty, so callers can pass the result to telemetry.Fanout unconditionally.
func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return NewProducerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	})
}

// NewProducerWithWriter wraps an existing writer (tests, custom transports).
func NewProducerWithWriter(w MessageWriter) *Producer {
	return &Producer{writer: w}
}

// record is the JSON payload of one event.
type record struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	TokenID   string    `json:"token_id,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message encodes event as a Kafka message keyed by user id, so one user's events stay ordered
// within a partition.
func Message(event *telemetry.AuthEvent) (kafka.Message, error) {
	payload, err := json.Marshal(record{
		Type:      event.Type,
		UserID:    event.UserID,
		DeviceID:  event.DeviceID,
		TokenID:   event.TokenID,
		ClientIP:  event.ClientIP,
		Reason:    event.Reason,
		CreatedAt: event.CreatedAt.UTC(),
	})
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if event.UserID != "" {
		msg.Key = []byte(event.UserID)
	}
	return msg, nil
}

// Emit publishes event. Errors are returned for the caller to log.
func (p *Producer) Emit(ctx context.Context, event *telemetry.AuthEvent) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	msg, err := Message(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, msg)
}

// Close flushes and closes the writer. Safe on a nil Producer.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
