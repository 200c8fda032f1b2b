// Package dispatcher consumes escrow events from Kafka and fans them out to
// notification recipients through a worker pool, archiving every delivered
// event. Notification failures never block or fail the escrow engine.
package dispatcher

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

// NotificationSink delivers one event notification to one recipient.
// Implementations wrap email, push or webhook channels.
type NotificationSink interface {
	Notify(ctx context.Context, recipient uuid.UUID, event *shared.EscrowEvent) error
}

// LogNotificationSink writes notifications to the structured log. The
// default sink until a real channel is configured; also useful in tests.
type LogNotificationSink struct {
	logger *slog.Logger
}

// NewLogNotificationSink creates a log-backed notification sink
func NewLogNotificationSink(logger *slog.Logger) NotificationSink {
	return &LogNotificationSink{logger: logger}
}

// Notify logs the notification
func (s *LogNotificationSink) Notify(_ context.Context, recipient uuid.UUID, event *shared.EscrowEvent) error {
	s.logger.Info("Notification delivered",
		"recipient", recipient.String(),
		"event_id", event.EventID.String(),
		"type", string(event.Type),
		"escrow_id", event.EscrowID.String(),
		"amount", event.Amount,
	)
	return nil
}
