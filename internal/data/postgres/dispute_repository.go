package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/dispute"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/projectpay-escrow-engine/internal/platform/persistence"
)

// DisputeRepository implements the dispute.Repository interface for PostgreSQL
type DisputeRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewDisputeRepository creates a new PostgreSQL dispute repository
func NewDisputeRepository(logger *slog.Logger, db *persistence.PostgresDB) dispute.Repository {
	return &DisputeRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction
func (r *DisputeRepository) WithTx(tx pgx.Tx) dispute.Repository {
	return &DisputeRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const disputeColumns = `id, escrow_id, payment_unit_id, dispute_amount, submitted_by, respondent_id,
		status, mediator, mediation_date, resolution, resolution_amount, resolved_by,
		response_deadline, settlement_pending, version, created_at, updated_at`

func scanDispute(row pgx.Row) (*dispute.Dispute, error) {
	var d dispute.Dispute
	err := row.Scan(
		&d.ID,
		&d.EscrowID,
		&d.PaymentUnitID,
		&d.DisputeAmount,
		&d.SubmittedBy,
		&d.RespondentID,
		&d.Status,
		&d.Mediator,
		&d.MediationDate,
		&d.Resolution,
		&d.ResolutionAmount,
		&d.ResolvedBy,
		&d.ResponseDeadline,
		&d.SettlementPending,
		&d.Version,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create stores a new dispute
func (r *DisputeRepository) Create(ctx context.Context, d *dispute.Dispute) error {
	query := `
		INSERT INTO payment_disputes (id, escrow_id, payment_unit_id, dispute_amount, submitted_by, respondent_id,
			status, mediator, mediation_date, resolution, resolution_amount, resolved_by,
			response_deadline, settlement_pending, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.querier.Exec(ctx, query,
		d.ID,
		d.EscrowID,
		d.PaymentUnitID,
		d.DisputeAmount,
		d.SubmittedBy,
		d.RespondentID,
		d.Status,
		d.Mediator,
		d.MediationDate,
		d.Resolution,
		d.ResolutionAmount,
		d.ResolvedBy,
		d.ResponseDeadline,
		d.SettlementPending,
		d.Version,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create dispute", "escrowID", d.EscrowID.String(), "error", err)
		return fmt.Errorf("failed to create dispute: %w", err)
	}

	return nil
}

// GetByID retrieves a dispute by its ID
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*dispute.Dispute, error) {
	query := `
		SELECT ` + disputeColumns + `
		FROM payment_disputes
		WHERE id = $1
	`

	d, err := scanDispute(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dispute.ErrDisputeNotFound{DisputeID: id}
		}
		r.logger.Error("Failed to get dispute", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}

	return d, nil
}

// ListByEscrowID returns an escrow's disputes, newest first
func (r *DisputeRepository) ListByEscrowID(ctx context.Context, escrowID uuid.UUID) ([]*dispute.Dispute, error) {
	query := `
		SELECT ` + disputeColumns + `
		FROM payment_disputes
		WHERE escrow_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.querier.Query(ctx, query, escrowID)
	if err != nil {
		r.logger.Error("Failed to list disputes", "escrowID", escrowID.String(), "error", err)
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	defer rows.Close()

	var disputes []*dispute.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispute: %w", err)
		}
		disputes = append(disputes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate disputes: %w", err)
	}

	return disputes, nil
}

// OpenAmount returns the sum of dispute amounts still in SUBMITTED or
// MEDIATION for an escrow. Release paths call this under the escrow row
// lock to compute the available balance.
func (r *DisputeRepository) OpenAmount(ctx context.Context, escrowID uuid.UUID) (int64, error) {
	query := `
		SELECT COALESCE(SUM(dispute_amount), 0)
		FROM payment_disputes
		WHERE escrow_id = $1 AND status IN ($2, $3)
	`

	var sum int64
	err := r.querier.QueryRow(ctx, query, escrowID,
		shared.DisputeStatusSubmitted, shared.DisputeStatusMediation).Scan(&sum)
	if err != nil {
		r.logger.Error("Failed to sum open dispute amounts", "escrowID", escrowID.String(), "error", err)
		return 0, fmt.Errorf("failed to sum open dispute amounts: %w", err)
	}

	return sum, nil
}

// CountOpenByParty counts open disputes where the party appears as submitter
// or respondent. A cash flow risk signal.
func (r *DisputeRepository) CountOpenByParty(ctx context.Context, partyID uuid.UUID) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM payment_disputes
		WHERE (submitted_by = $1 OR respondent_id = $1) AND status IN ($2, $3)
	`

	var count int64
	err := r.querier.QueryRow(ctx, query, partyID,
		shared.DisputeStatusSubmitted, shared.DisputeStatusMediation).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count open disputes by party", "partyID", partyID.String(), "error", err)
		return 0, fmt.Errorf("failed to count open disputes by party: %w", err)
	}

	return count, nil
}

// Update persists a dispute using optimistic locking
func (r *DisputeRepository) Update(ctx context.Context, d *dispute.Dispute) error {
	query := `
		UPDATE payment_disputes
		SET status = $1, mediator = $2, mediation_date = $3, resolution = $4,
			resolution_amount = $5, resolved_by = $6, settlement_pending = $7,
			version = $8, updated_at = $9
		WHERE id = $10 AND version = $11
	`

	result, err := r.querier.Exec(ctx, query,
		d.Status,
		d.Mediator,
		d.MediationDate,
		d.Resolution,
		d.ResolutionAmount,
		d.ResolvedBy,
		d.SettlementPending,
		d.Version,
		d.UpdatedAt,
		d.ID,
		d.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update dispute", "id", d.ID.String(), "error", err)
		return fmt.Errorf("failed to update dispute: %w", err)
	}

	if result.RowsAffected() == 0 {
		return dispute.ErrDisputeConcurrentModification{DisputeID: d.ID}
	}

	return nil
}
