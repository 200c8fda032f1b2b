package escrow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

// Repository defines escrow account persistence operations
type Repository interface {
	Create(ctx context.Context, acc *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByProjectID(ctx context.Context, projectID uuid.UUID) (*Account, error)
	ListByParty(ctx context.Context, partyID uuid.UUID) ([]*Account, error)

	// Update persists the account using optimistic version locking
	Update(ctx context.Context, acc *Account) error

	// LockForUpdate acquires a row lock for transactional fund movements
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrEscrowNotFound indicates a missing escrow account
type ErrEscrowNotFound struct {
	EscrowID uuid.UUID
}

func (e ErrEscrowNotFound) Error() string {
	return "escrow account not found: " + e.EscrowID.String()
}

// Is matches any ErrEscrowNotFound when the target carries a nil id
func (e ErrEscrowNotFound) Is(target error) bool {
	t, ok := target.(ErrEscrowNotFound)
	if !ok {
		return false
	}
	return t.EscrowID == uuid.Nil || e.EscrowID == t.EscrowID
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	EscrowID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for escrow: " + e.EscrowID.String()
}

// ErrInsufficientEscrowBalance indicates a release exceeding the available
// balance (escrow balance net of dispute-frozen amounts). Retryable once the
// escrow is funded or the dispute resolves.
type ErrInsufficientEscrowBalance struct {
	EscrowID  uuid.UUID
	Requested int64
	Available int64
}

func (e ErrInsufficientEscrowBalance) Error() string {
	return fmt.Sprintf("insufficient escrow balance for %s: requested %d, available %d",
		e.EscrowID.String(), e.Requested, e.Available)
}

// Is matches any ErrInsufficientEscrowBalance when the target carries a nil id
func (e ErrInsufficientEscrowBalance) Is(target error) bool {
	t, ok := target.(ErrInsufficientEscrowBalance)
	if !ok {
		return false
	}
	return t.EscrowID == uuid.Nil || e.EscrowID == t.EscrowID
}

// ErrInvalidStatusTransition indicates an illegal lifecycle move
type ErrInvalidStatusTransition struct {
	From shared.EscrowStatus
	To   shared.EscrowStatus
}

func (e ErrInvalidStatusTransition) Error() string {
	return fmt.Sprintf("invalid escrow status transition from %s to %s", e.From, e.To)
}
