// Package queue implements the alert mirror: a non-blocking side channel
// that publishes every admitted alert to a downstream analytics topic.
// Failures here must never block the primary dispatch path (see
// repository.AlertMirror).
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/andreirk/bscwatch/internal/domain/model"
	"github.com/andreirk/bscwatch/internal/domain/repository"
)

// Config holds the broker list and topic a write-only mirror needs.
type Config struct {
	Brokers []string
	Topic   string
}

// KafkaMirror implements repository.AlertMirror on top of kafka-go,
// partitioning by token so a given token's alerts stay ordered.
type KafkaMirror struct {
	writer *kafka.Writer
}

// NewKafkaMirror builds a mirror publishing to the given topic.
func NewKafkaMirror(cfg Config) *KafkaMirror {
	return &KafkaMirror{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}}
}

var _ repository.AlertMirror = (*KafkaMirror)(nil)

// Publish writes one alert to the mirror topic, keyed by token.
func (m *KafkaMirror) Publish(ctx context.Context, a *model.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(a.Token),
		Value: data,
		Time:  time.Now(),
	})
}

// Close flushes and closes the underlying writer.
func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}
