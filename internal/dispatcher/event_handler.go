package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/projectpay-escrow-engine/internal/platform/messaging/producers"
)

// EscrowEventHandler handles incoming escrow event messages from Kafka
type EscrowEventHandler struct {
	deliveryService DeliveryService
	producer        producers.DeadLetterPublisher
	logger          *slog.Logger
}

// NewEscrowEventHandler creates a new handler
func NewEscrowEventHandler(
	logger *slog.Logger,
	deliveryService DeliveryService,
	producer producers.DeadLetterPublisher,
) *EscrowEventHandler {
	return &EscrowEventHandler{
		deliveryService: deliveryService,
		producer:        producer,
		logger:          logger,
	}
}

// HandleMessage processes Kafka messages. Poison messages go to the DLQ so
// the partition keeps moving; delivery failures leave the offset uncommitted
// for redelivery.
func (h *EscrowEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var event shared.EscrowEvent
	if err := json.Unmarshal(value, &event); err != nil {
		unmarshalErrorMsg := "Failed to unmarshal escrow event from Kafka message"
		h.logger.Error(unmarshalErrorMsg,
			"error", err,
			"message_key", string(key),
		)

		// Send to DLQ if available
		if h.producer != nil {
			dlqReason := fmt.Sprintf("%s: %s", unmarshalErrorMsg, err.Error())
			if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, dlqReason); dlqErr != nil {
				h.logger.Error("Failed to publish message to DLQ after unmarshal error",
					"dlq_error", dlqErr,
					"original_error", err,
					"message_key", string(key),
				)
			} else {
				h.logger.Info("Published unprocessable message to DLQ", "message_key", string(key), "reason", dlqReason)
				// Message handled, commit offset
				return nil
			}
		}
		// Allow Kafka retries
		return fmt.Errorf("failed to unmarshal message value: %w", err)
	}

	logger := h.logger
	if event.CorrelationID != "" {
		logger = h.logger.With("correlation_id", event.CorrelationID)
	}

	logger.Info("Received escrow event for delivery",
		"event_id", event.EventID.String(),
		"escrow_id", event.EscrowID.String(),
		"type", string(event.Type),
		"recipients", len(event.Recipients),
	)

	if err := h.deliveryService.Deliver(ctx, &event); err != nil {
		logger.Error("Failed to deliver escrow event",
			"event_id", event.EventID.String(),
			"error", err,
		)
		return fmt.Errorf("delivering event %s failed: %w", event.EventID.String(), err)
	}

	logger.Info("Escrow event delivered", "event_id", event.EventID.String())
	return nil // Success, commit offset
}
