package shared

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies escrow events emitted through the outbox
type EventType string

const (
	EventEscrowCreated      EventType = "ESCROW_CREATED"
	EventDepositReceived    EventType = "DEPOSIT_RECEIVED"
	EventEscrowFunded       EventType = "ESCROW_FUNDED"
	EventEscrowCompleted    EventType = "ESCROW_COMPLETED"
	EventEscrowClosed       EventType = "ESCROW_CLOSED"
	EventPaymentReleased    EventType = "PAYMENT_RELEASED"
	EventRetentionReleased  EventType = "RETENTION_RELEASED"
	EventChangeOrderApplied EventType = "CHANGE_ORDER_APPLIED"
	EventDisputeOpened      EventType = "DISPUTE_OPENED"
	EventDisputeMediation   EventType = "DISPUTE_MEDIATION"
	EventDisputeResolved    EventType = "DISPUTE_RESOLVED"
	EventSettlementPending  EventType = "SETTLEMENT_PENDING"
)

// EscrowEvent is the notification payload written to the outbox on every
// financial transition and delivered to recipients by the event dispatcher.
type EscrowEvent struct {
	EventID       uuid.UUID   `json:"event_id"`
	EscrowID      uuid.UUID   `json:"escrow_id"`
	Type          EventType   `json:"type"`
	Recipients    []uuid.UUID `json:"recipients"`
	Amount        int64       `json:"amount,omitempty"` // Minor units
	PaymentType   PaymentType `json:"payment_type,omitempty"`
	PaymentUnitID *uuid.UUID  `json:"payment_unit_id,omitempty"`
	DisputeID     *uuid.UUID  `json:"dispute_id,omitempty"`
	Detail        string      `json:"detail,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

// NewEscrowEvent creates an event with a fresh id and timestamp
func NewEscrowEvent(escrowID uuid.UUID, eventType EventType, recipients ...uuid.UUID) *EscrowEvent {
	return &EscrowEvent{
		EventID:    uuid.New(),
		EscrowID:   escrowID,
		Type:       eventType,
		Recipients: recipients,
		OccurredAt: time.Now().UTC(),
	}
}
