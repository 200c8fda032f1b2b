package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

// Message stores an escrow event for reliable publishing. Written in the
// same transaction as the financial change it describes.
type Message struct {
	ID            int64               `json:"id"`
	EventID       uuid.UUID           `json:"event_id"`
	EscrowID      uuid.UUID           `json:"escrow_id"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

// NewMessage wraps an escrow event as a pending outbox message
func NewMessage(event *shared.EscrowEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:   event.EventID,
		EscrowID:  event.EscrowID,
		Payload:   payload,
		Status:    shared.OutboxStatusPending,
		Attempts:  0,
		CreatedAt: time.Now(),
	}, nil
}

// GetEvent extracts the escrow event from the payload
func (m *Message) GetEvent() (*shared.EscrowEvent, error) {
	var event shared.EscrowEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
