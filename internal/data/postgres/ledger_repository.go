package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/ledger"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/projectpay-escrow-engine/internal/platform/persistence"
)

// LedgerRepository implements the ledger.Repository interface for PostgreSQL.
// The ledger_entries table has no UPDATE path; entries are append-only.
type LedgerRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so ledger appends commit
// together with the balance update they describe
func (r *LedgerRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &LedgerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const entryColumns = `id, escrow_id, recipient_id, amount, payment_type, method,
		external_transaction_id, idempotency_key, correlation_id, status, created_at`

func scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	err := row.Scan(
		&e.ID,
		&e.EscrowID,
		&e.RecipientID,
		&e.Amount,
		&e.PaymentType,
		&e.Method,
		&e.ExternalTransactionID,
		&e.IdempotencyKey,
		&e.CorrelationID,
		&e.Status,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Append stores a new ledger entry. A partial unique index on
// idempotency_key turns a replayed release into ErrDuplicateRelease.
func (r *LedgerRepository) Append(ctx context.Context, entry *ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries (id, escrow_id, recipient_id, amount, payment_type, method,
			external_transaction_id, idempotency_key, correlation_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)
	`

	_, err := r.querier.Exec(ctx, query,
		entry.ID,
		entry.EscrowID,
		entry.RecipientID,
		entry.Amount,
		entry.PaymentType,
		entry.Method,
		entry.ExternalTransactionID,
		entry.IdempotencyKey,
		entry.CorrelationID,
		entry.Status,
		entry.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) && entry.IdempotencyKey != "" {
			return ledger.ErrDuplicateRelease{IdempotencyKey: entry.IdempotencyKey}
		}
		r.logger.Error("Failed to append ledger entry", "escrowID", entry.EscrowID.String(), "error", err)
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

// GetByID retrieves a ledger entry by its ID
func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE id = $1
	`

	entry, err := scanEntry(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{EntryID: id}
		}
		r.logger.Error("Failed to get ledger entry", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return entry, nil
}

// GetByIdempotencyKey returns the entry carrying the key, or nil, nil when
// the release has not been executed yet
func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE idempotency_key = $1
	`

	entry, err := scanEntry(r.querier.QueryRow(ctx, query, idempotencyKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get ledger entry by idempotency key", "key", idempotencyKey, "error", err)
		return nil, fmt.Errorf("failed to get ledger entry by idempotency key: %w", err)
	}

	return entry, nil
}

// GetByEscrowID retrieves an escrow's ledger entries, newest first
func (r *LedgerRepository) GetByEscrowID(ctx context.Context, escrowID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE escrow_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, escrowID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to get ledger entries", "escrowID", escrowID.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}

	return entries, nil
}

// CountByEscrowID returns the total number of entries for pagination
func (r *LedgerRepository) CountByEscrowID(ctx context.Context, escrowID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM ledger_entries WHERE escrow_id = $1`

	var count int64
	if err := r.querier.QueryRow(ctx, query, escrowID).Scan(&count); err != nil {
		r.logger.Error("Failed to count ledger entries", "escrowID", escrowID.String(), "error", err)
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	return count, nil
}

// SumCompleted returns the signed sum of COMPLETED entries for an escrow,
// optionally restricted to one payment type. The unrestricted sum must equal
// the escrow balance.
func (r *LedgerRepository) SumCompleted(ctx context.Context, escrowID uuid.UUID, paymentType *shared.PaymentType) (int64, error) {
	var sum int64
	var err error
	if paymentType == nil {
		query := `
			SELECT COALESCE(SUM(amount), 0)
			FROM ledger_entries
			WHERE escrow_id = $1 AND status = $2
		`
		err = r.querier.QueryRow(ctx, query, escrowID, shared.EntryStatusCompleted).Scan(&sum)
	} else {
		query := `
			SELECT COALESCE(SUM(amount), 0)
			FROM ledger_entries
			WHERE escrow_id = $1 AND status = $2 AND payment_type = $3
		`
		err = r.querier.QueryRow(ctx, query, escrowID, shared.EntryStatusCompleted, *paymentType).Scan(&sum)
	}
	if err != nil {
		r.logger.Error("Failed to sum ledger entries", "escrowID", escrowID.String(), "error", err)
		return 0, fmt.Errorf("failed to sum ledger entries: %w", err)
	}

	return sum, nil
}
