// Package outbox_poller drains the escrow event outbox into Kafka. Events
// are written to the outbox in the same transaction as the financial change
// they describe; the poller gives them at-least-once delivery to the event
// pipeline.
package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/projectpay-escrow-engine/internal/domain/outbox"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/projectpay-escrow-engine/internal/platform/messaging/producers"
)

// EventPublisher publishes outbox messages to the event pipeline
type EventPublisher interface {
	PublishEvent(ctx context.Context, message *outbox.Message) error
}

// EventPublisherImpl implements EventPublisher on the Kafka producer
type EventPublisherImpl struct {
	outboxRepo outbox.Repository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

// NewEventPublisher creates a new publisher
func NewEventPublisher(
	outboxRepo outbox.Repository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) EventPublisher {
	return &EventPublisherImpl{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishEvent validates and publishes one outbox message, then marks it
// PROCESSED. A payload that cannot be decoded is marked FAILED_TO_PUBLISH
// immediately; retrying cannot fix it.
func (p *EventPublisherImpl) PublishEvent(ctx context.Context, message *outbox.Message) error {
	event, err := message.GetEvent()
	if err != nil {
		p.logger.Error("Failed to unmarshal escrow event from outbox payload",
			"outbox_id", message.ID, "event_id", message.EventID, "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after unmarshal error", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("unmarshal payload for outbox %d failed: %w", message.ID, err)
	}

	logger := p.logger
	if event.CorrelationID != "" {
		logger = p.logger.With("correlation_id", event.CorrelationID)
	}

	// Keyed by escrow id so one escrow's events stay ordered per partition
	if err := p.producer.Publish(ctx, event.EscrowID.String(), event); err != nil {
		logger.Error("Failed to publish escrow event to Kafka",
			"outbox_id", message.ID, "event_id", event.EventID.String(), "type", string(event.Type), "error", err,
		)
		return fmt.Errorf("failed to publish event %s: %w", event.EventID.String(), err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Event published but failed to mark outbox message PROCESSED",
			"outbox_id", message.ID, "event_id", event.EventID.String(), "error", err,
		)
		return fmt.Errorf("event %s published, but failed to mark outbox %d as PROCESSED: %w", event.EventID.String(), message.ID, err)
	}

	logger.Info("Escrow event published",
		"outbox_id", message.ID,
		"event_id", event.EventID.String(),
		"type", string(event.Type),
	)
	return nil
}
