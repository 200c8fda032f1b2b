package dispute

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines payment dispute persistence operations
type Repository interface {
	Create(ctx context.Context, d *Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*Dispute, error)
	ListByEscrowID(ctx context.Context, escrowID uuid.UUID) ([]*Dispute, error)

	// OpenAmount returns the sum of dispute amounts in SUBMITTED or
	// MEDIATION for an escrow. Subtracted from the escrow balance to get
	// the available balance; must run under the escrow row lock when used
	// to gate a release.
	OpenAmount(ctx context.Context, escrowID uuid.UUID) (int64, error)

	// CountOpenByParty counts open disputes where the party is submitter
	// or respondent, used as a cash flow risk signal
	CountOpenByParty(ctx context.Context, partyID uuid.UUID) (int64, error)

	// Update persists the dispute using optimistic version locking
	Update(ctx context.Context, d *Dispute) error
	WithTx(tx pgx.Tx) Repository
}

// ErrDisputeNotFound indicates a missing dispute
type ErrDisputeNotFound struct {
	DisputeID uuid.UUID
}

func (e ErrDisputeNotFound) Error() string {
	return "dispute not found: " + e.DisputeID.String()
}

// Is matches any ErrDisputeNotFound when the target carries a nil id
func (e ErrDisputeNotFound) Is(target error) bool {
	t, ok := target.(ErrDisputeNotFound)
	if !ok {
		return false
	}
	return t.DisputeID == uuid.Nil || e.DisputeID == t.DisputeID
}

// ErrDisputeConcurrentModification indicates optimistic lock failure
type ErrDisputeConcurrentModification struct {
	DisputeID uuid.UUID
}

func (e ErrDisputeConcurrentModification) Error() string {
	return "concurrent modification detected for dispute: " + e.DisputeID.String()
}
