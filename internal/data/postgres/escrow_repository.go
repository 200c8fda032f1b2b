// Package postgres provides PostgreSQL implementations of the domain
// repositories. It is the system of record for escrow balances, the ledger,
// payment units, change orders and disputes, and keeps every fund movement
// transactionally safe.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/platform/persistence"
)

// EscrowRepository implements the escrow.Repository interface for PostgreSQL
type EscrowRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewEscrowRepository creates a new PostgreSQL escrow repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewEscrowRepository(logger *slog.Logger, db *persistence.PostgresDB) escrow.Repository {
	return &EscrowRepository{
		querier: db.Pool(), // Initialize with the pool
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing for atomic
// operations across multiple repository calls
func (r *EscrowRepository) WithTx(tx pgx.Tx) escrow.Repository {
	return &EscrowRepository{
		querier: tx, // Use the transaction
		logger:  r.logger,
	}
}

const escrowColumns = `id, project_id, client_id, contractor_id, total_project_value, escrow_balance,
		total_deposited, total_paid, retention_percentage, retention_amount, retention_released,
		status, processor_account_id, version, created_at, updated_at`

func scanEscrow(row pgx.Row) (*escrow.Account, error) {
	var acc escrow.Account
	err := row.Scan(
		&acc.ID,
		&acc.ProjectID,
		&acc.ClientID,
		&acc.ContractorID,
		&acc.TotalProjectValue,
		&acc.EscrowBalance,
		&acc.TotalDeposited,
		&acc.TotalPaid,
		&acc.RetentionPercentage,
		&acc.RetentionAmount,
		&acc.RetentionReleased,
		&acc.Status,
		&acc.ProcessorAccountID,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// Create stores a new escrow account. A unique constraint on project_id
// rejects a second escrow for the same project.
func (r *EscrowRepository) Create(ctx context.Context, acc *escrow.Account) error {
	query := `
		INSERT INTO escrow_accounts (id, project_id, client_id, contractor_id, total_project_value, escrow_balance,
			total_deposited, total_paid, retention_percentage, retention_amount, retention_released,
			status, processor_account_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.querier.Exec(ctx, query,
		acc.ID,
		acc.ProjectID,
		acc.ClientID,
		acc.ContractorID,
		acc.TotalProjectValue,
		acc.EscrowBalance,
		acc.TotalDeposited,
		acc.TotalPaid,
		acc.RetentionPercentage,
		acc.RetentionAmount,
		acc.RetentionReleased,
		acc.Status,
		acc.ProcessorAccountID,
		acc.Version,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create escrow account", "error", err)
		return fmt.Errorf("failed to create escrow account: %w", err)
	}

	return nil
}

// GetByID retrieves an escrow account by its ID
func (r *EscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Account, error) {
	query := `
		SELECT ` + escrowColumns + `
		FROM escrow_accounts
		WHERE id = $1
	`

	acc, err := scanEscrow(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escrow.ErrEscrowNotFound{EscrowID: id}
		}
		r.logger.Error("Failed to get escrow account", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get escrow account: %w", err)
	}

	return acc, nil
}

// GetByProjectID retrieves the escrow account tied to a project.
// Returns nil, nil when the project has no escrow yet.
func (r *EscrowRepository) GetByProjectID(ctx context.Context, projectID uuid.UUID) (*escrow.Account, error) {
	query := `
		SELECT ` + escrowColumns + `
		FROM escrow_accounts
		WHERE project_id = $1
	`

	acc, err := scanEscrow(r.querier.QueryRow(ctx, query, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get escrow by project", "projectID", projectID.String(), "error", err)
		return nil, fmt.Errorf("failed to get escrow by project: %w", err)
	}

	return acc, nil
}

// ListByParty returns every escrow where the party is client or contractor,
// newest first. Used by the cash flow projection.
func (r *EscrowRepository) ListByParty(ctx context.Context, partyID uuid.UUID) ([]*escrow.Account, error) {
	query := `
		SELECT ` + escrowColumns + `
		FROM escrow_accounts
		WHERE client_id = $1 OR contractor_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.querier.Query(ctx, query, partyID)
	if err != nil {
		r.logger.Error("Failed to list escrows by party", "partyID", partyID.String(), "error", err)
		return nil, fmt.Errorf("failed to list escrows by party: %w", err)
	}
	defer rows.Close()

	var accounts []*escrow.Account
	for rows.Next() {
		acc, err := scanEscrow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escrow account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate escrow accounts: %w", err)
	}

	return accounts, nil
}

// Update persists an escrow account using optimistic locking.
// Returns ErrConcurrentModification if the row moved on since it was read.
func (r *EscrowRepository) Update(ctx context.Context, acc *escrow.Account) error {
	query := `
		UPDATE escrow_accounts
		SET total_project_value = $1, escrow_balance = $2, total_deposited = $3, total_paid = $4,
			retention_percentage = $5, retention_amount = $6, retention_released = $7,
			status = $8, processor_account_id = $9, version = $10, updated_at = $11
		WHERE id = $12 AND version = $13
	`

	result, err := r.querier.Exec(ctx, query,
		acc.TotalProjectValue,
		acc.EscrowBalance,
		acc.TotalDeposited,
		acc.TotalPaid,
		acc.RetentionPercentage,
		acc.RetentionAmount,
		acc.RetentionReleased,
		acc.Status,
		acc.ProcessorAccountID,
		acc.Version,
		acc.UpdatedAt,
		acc.ID,
		acc.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update escrow account", "id", acc.ID.String(), "error", err)
		return fmt.Errorf("failed to update escrow account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return escrow.ErrConcurrentModification{EscrowID: acc.ID}
	}

	return nil
}

// LockForUpdate obtains a pessimistic lock on the escrow row and returns its
// current state. Must be used within a transaction; every fund movement
// serializes on this lock.
func (r *EscrowRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*escrow.Account, error) {
	query := `
		SELECT ` + escrowColumns + `
		FROM escrow_accounts
		WHERE id = $1
		FOR UPDATE
	`

	acc, err := scanEscrow(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escrow.ErrEscrowNotFound{EscrowID: id}
		}
		r.logger.Error("Failed to lock escrow for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock escrow for update: %w", err)
	}

	return acc, nil
}
