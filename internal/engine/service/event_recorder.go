package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/outbox"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

// EventRecorderImpl implements the EventRecorder interface on the outbox
type EventRecorderImpl struct {
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

// NewEventRecorder creates a new outbox-backed event recorder
func NewEventRecorder(outboxRepo outbox.Repository, logger *slog.Logger) EventRecorder {
	return &EventRecorderImpl{
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// Record writes the event to the outbox using the caller's transaction, so
// the event exists exactly when the financial change it describes commits
func (r *EventRecorderImpl) Record(ctx context.Context, tx pgx.Tx, event *shared.EscrowEvent) error {
	logger := r.logger
	if event.CorrelationID != "" {
		logger = r.logger.With("correlation_id", event.CorrelationID)
	}

	outboxRepoTx := r.outboxRepo.WithTx(tx)

	message, err := outbox.NewMessage(event)
	if err != nil {
		logger.Error("Failed to build outbox message",
			"event_id", event.EventID.String(),
			"type", string(event.Type),
			"error", err,
		)
		return fmt.Errorf("failed to build outbox message for event %s: %w", event.EventID.String(), err)
	}

	if err := outboxRepoTx.Create(ctx, message); err != nil {
		logger.Error("Failed to create outbox message",
			"event_id", event.EventID.String(),
			"escrow_id", event.EscrowID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message for event %s: %w", event.EventID.String(), err)
	}

	logger.Info("Escrow event recorded",
		"event_id", event.EventID.String(),
		"type", string(event.Type),
		"outbox_id", message.ID,
	)
	return nil
}
