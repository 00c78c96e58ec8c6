package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"analyticsadmin/internal/domain"
)

// Writer is the subset of kafka.Writer the publisher needs. Tests inject their own.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is a domain.EventPublisher that can be closed on shutdown.
type Publisher interface {
	domain.EventPublisher
	Close() error
}

// KafkaProducer writes domain events as JSON messages keyed by event name.
type KafkaProducer struct {
	writer Writer
	logger *slog.Logger
	now    func() time.Time
}

// NewKafkaProducer returns a producer writing to topic on the given brokers.
func NewKafkaProducer(brokers []string, topic string, logger *slog.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return NewKafkaProducerWithWriter(w, logger)
}

// NewKafkaProducerWithWriter allows injecting a test writer.
func NewKafkaProducerWithWriter(w Writer, logger *slog.Logger) *KafkaProducer {
	return &KafkaProducer{writer: w, logger: logger, now: time.Now}
}

// Publish marshals value to JSON and writes one message with the given key.
func (p *KafkaProducer) Publish(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		p.logger.Error("failed to marshal event", "key", key, "error", err)
		return fmt.Errorf("marshal event %s: %w", key, err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: b,
		Time:  p.now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("kafka write error", "key", key, "error", err)
		return fmt.Errorf("publish event %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// NoopPublisher logs events instead of sending them. Used when no broker is configured.
type NoopPublisher struct {
	logger *slog.Logger
}

func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger}
}

func (n *NoopPublisher) Publish(ctx context.Context, key string, value any) error {
	n.logger.Debug("event would be published (noop)", "key", key)
	return nil
}

func (n *NoopPublisher) Close() error { return nil }

// NewPublisher picks the kafka producer when brokers are configured, otherwise the noop one.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) Publisher {
	if len(brokers) == 0 || topic == "" {
		logger.Warn("kafka brokers or topic not configured, events are not published")
		return NewNoopPublisher(logger)
	}
	return NewKafkaProducer(brokers, topic, logger)
}
