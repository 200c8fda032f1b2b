package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// MessagePublisher puts escrow events on the primary topic, keyed by escrow
// id so per-escrow ordering survives partitioning
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// DeadLetterPublisher parks messages the dispatcher cannot parse on the DLQ
// topic together with the failure reason
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter is the slice of kafka.Writer the producers need, narrowed so
// tests can substitute a fake
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
