package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

// Entry is one immutable fund movement into or out of an escrow account.
// Amounts are signed: deposits positive, releases negative, so the sum of
// COMPLETED entries for an escrow reconciles with its running balance.
type Entry struct {
	ID                    uuid.UUID          `json:"id"`
	EscrowID              uuid.UUID          `json:"escrow_id"`
	RecipientID           uuid.UUID          `json:"recipient_id"`
	Amount                int64              `json:"amount"` // Minor units, signed
	PaymentType           shared.PaymentType `json:"payment_type"`
	Method                string             `json:"method,omitempty"` // Deposit method, empty for releases
	ExternalTransactionID string             `json:"external_transaction_id"`
	IdempotencyKey        string             `json:"idempotency_key,omitempty"`
	CorrelationID         string             `json:"correlation_id,omitempty"`
	Status                shared.EntryStatus `json:"status"`
	CreatedAt             time.Time          `json:"created_at"`
}

// NewDeposit builds a completed deposit entry
func NewDeposit(escrowID, clientID uuid.UUID, amount int64, method, externalTransactionID, correlationID string) (*Entry, error) {
	if amount <= 0 {
		return nil, shared.ErrInvalidAmount
	}
	return &Entry{
		ID:                    uuid.New(),
		EscrowID:              escrowID,
		RecipientID:           clientID,
		Amount:                amount,
		PaymentType:           shared.PaymentTypeDeposit,
		Method:                method,
		ExternalTransactionID: externalTransactionID,
		CorrelationID:         correlationID,
		Status:                shared.EntryStatusCompleted,
		CreatedAt:             time.Now(),
	}, nil
}

// NewRelease builds a completed release entry with a negative signed amount
func NewRelease(escrowID, recipientID uuid.UUID, amount int64, paymentType shared.PaymentType, externalTransactionID, idempotencyKey, correlationID string) (*Entry, error) {
	if amount <= 0 {
		return nil, shared.ErrInvalidAmount
	}
	if !paymentType.IsRelease() {
		return nil, shared.ErrInvalidPaymentType
	}
	return &Entry{
		ID:                    uuid.New(),
		EscrowID:              escrowID,
		RecipientID:           recipientID,
		Amount:                -amount,
		PaymentType:           paymentType,
		ExternalTransactionID: externalTransactionID,
		IdempotencyKey:        idempotencyKey,
		CorrelationID:         correlationID,
		Status:                shared.EntryStatusCompleted,
		CreatedAt:             time.Now(),
	}, nil
}
