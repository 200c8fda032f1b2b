package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines conditional payment unit persistence operations
type Repository interface {
	Create(ctx context.Context, unit *Unit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Unit, error)
	GetByEscrowID(ctx context.Context, escrowID uuid.UUID) ([]*Unit, error)

	// ListNonTerminal returns every unit under an escrow not yet PAID,
	// used by change order rescaling and cash flow projection
	ListNonTerminal(ctx context.Context, escrowID uuid.UUID) ([]*Unit, error)

	// Update persists the unit using optimistic version locking
	Update(ctx context.Context, unit *Unit) error
	WithTx(tx pgx.Tx) Repository
}

// ErrUnitNotFound indicates a missing payment unit
type ErrUnitNotFound struct {
	UnitID uuid.UUID
}

func (e ErrUnitNotFound) Error() string {
	return "payment unit not found: " + e.UnitID.String()
}

// Is matches any ErrUnitNotFound when the target carries a nil id
func (e ErrUnitNotFound) Is(target error) bool {
	t, ok := target.(ErrUnitNotFound)
	if !ok {
		return false
	}
	return t.UnitID == uuid.Nil || e.UnitID == t.UnitID
}

// ErrUnitConcurrentModification indicates optimistic lock failure
type ErrUnitConcurrentModification struct {
	UnitID uuid.UUID
}

func (e ErrUnitConcurrentModification) Error() string {
	return "concurrent modification detected for payment unit: " + e.UnitID.String()
}
