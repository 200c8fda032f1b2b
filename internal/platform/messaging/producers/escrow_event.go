package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/projectpay-escrow-engine/internal/config"
	"github.com/segmentio/kafka-go"
)

// EscrowEventProducer publishes escrow events drained from the outbox.
// Messages are keyed by escrow id so events for one escrow stay ordered
// within a partition.
type EscrowEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewEscrowEventProducer creates the outbox-side producer and ensures the
// events topic exists
func NewEscrowEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*EscrowEventProducer, error) {
	if cfg.EventsTopic == "" {
		return nil, fmt.Errorf("kafka events topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for escrow event producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.EventsTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure events topic %s exists for escrow event producer: %w", cfg.EventsTopic, err)
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.EventsTopic,
		Balancer: &kafka.LeastBytes{},
		// Outbox delivery guarantees hinge on the broker acknowledging the
		// write before the message row is deleted
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &EscrowEventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.EventsTopic,
	}, nil
}

func (p *EscrowEventProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for escrow event producer: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish escrow event",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish escrow event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published escrow event",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *EscrowEventProducer) Close() error {
	p.logger.Info("Closing escrow event Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close escrow event kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
