package changeorder

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages append-only change order records
type Repository interface {
	Create(ctx context.Context, co *ChangeOrder) error
	ListByEscrowID(ctx context.Context, escrowID uuid.UUID) ([]*ChangeOrder, error)

	// NextNumber returns the next change order number for an escrow,
	// starting at 1. Must be called under the escrow row lock so numbers
	// stay unique per escrow.
	NextNumber(ctx context.Context, escrowID uuid.UUID) (int, error)
	WithTx(tx pgx.Tx) Repository
}
