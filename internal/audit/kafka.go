package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaEmitter produces audit events to a Kafka topic.
type KafkaEmitter struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// KafkaConfig configures the Kafka producer.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// NewKafkaEmitter creates a Kafka-backed audit emitter. Writes are synchronous
// so emission failures surface to the caller.
func NewKafkaEmitter(cfg KafkaConfig, logger *zap.Logger) *KafkaEmitter {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  5 * time.Second,
	}
	if cfg.ClientID != "" {
		writer.Transport = &kafka.Transport{ClientID: cfg.ClientID}
	}
	return &KafkaEmitter{
		writer: writer,
		logger: logger.With(zap.String("component", "audit-kafka")),
	}
}

// NewKafkaEmitterFromConfig parses a comma-separated broker list and returns
// (nil, nil) when Kafka is not configured.
func NewKafkaEmitterFromConfig(brokers, topic, clientID string, logger *zap.Logger) (*KafkaEmitter, error) {
	brokers = strings.TrimSpace(brokers)
	if brokers == "" {
		return nil, nil
	}
	if topic == "" {
		return nil, fmt.Errorf("audit: kafka topic is required when brokers are set")
	}
	return NewKafkaEmitter(KafkaConfig{
		Brokers:  strings.Split(brokers, ","),
		Topic:    topic,
		ClientID: clientID,
	}, logger), nil
}

// Emit produces the event keyed by its ID.
func (e *KafkaEmitter) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: serialize event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.EventID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(event.Action)},
		},
		Time: event.CreatedAt,
	}

	if err := e.writer.WriteMessages(ctx, message); err != nil {
		e.logger.Error("failed to publish audit event",
			zap.String("event_id", event.EventID.String()),
			zap.String("action", event.Action),
			zap.Error(err),
		)
		return fmt.Errorf("audit: publish event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (e *KafkaEmitter) Close() error {
	return e.writer.Close()
}
