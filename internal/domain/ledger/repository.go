package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

// Repository manages the append-only ledger. Entries are write-once:
// there is no update or delete operation, corrections are new entries.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// GetByIdempotencyKey returns nil when no entry carries the key,
	// enabling idempotent release processing
	GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*Entry, error)

	GetByEscrowID(ctx context.Context, escrowID uuid.UUID, limit, offset int) ([]*Entry, error)
	CountByEscrowID(ctx context.Context, escrowID uuid.UUID) (int64, error)

	// SumCompleted returns the signed sum of COMPLETED entries for an
	// escrow, optionally restricted to one payment type
	SumCompleted(ctx context.Context, escrowID uuid.UUID, paymentType *shared.PaymentType) (int64, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrEntryNotFound indicates a missing ledger entry
type ErrEntryNotFound struct {
	EntryID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	return "ledger entry not found: " + e.EntryID.String()
}

// Is matches any ErrEntryNotFound when the target carries a nil id
func (e ErrEntryNotFound) Is(target error) bool {
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	return t.EntryID == uuid.Nil || e.EntryID == t.EntryID
}

// ErrDuplicateRelease indicates an idempotency key collision: the release
// was already executed and must not be repeated
type ErrDuplicateRelease struct {
	IdempotencyKey string
}

func (e ErrDuplicateRelease) Error() string {
	return "release already executed for idempotency key: " + e.IdempotencyKey
}
