package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/payment"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/projectpay-escrow-engine/internal/platform/persistence"
)

// PaymentRepository implements the payment.Repository interface for PostgreSQL
type PaymentRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewPaymentRepository creates a new PostgreSQL payment unit repository
func NewPaymentRepository(logger *slog.Logger, db *persistence.PostgresDB) payment.Repository {
	return &PaymentRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction
func (r *PaymentRepository) WithTx(tx pgx.Tx) payment.Repository {
	return &PaymentRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const unitColumns = `id, escrow_id, contractor_id, unit_type, status, prior_status, payment_amount,
		task_id, completion_requirements, verification_criteria, approval_required, photos_required,
		milestone_name, payment_percentage, deliverables, due_date,
		quality_score, verification_notes, photo_refs, approved_by, paid_date,
		payment_transaction_id, expected_completion_date, version, created_at, updated_at`

func scanUnit(row pgx.Row) (*payment.Unit, error) {
	var u payment.Unit
	err := row.Scan(
		&u.ID,
		&u.EscrowID,
		&u.ContractorID,
		&u.UnitType,
		&u.Status,
		&u.PriorStatus,
		&u.PaymentAmount,
		&u.TaskID,
		&u.CompletionRequirements,
		&u.VerificationCriteria,
		&u.ApprovalRequired,
		&u.PhotosRequired,
		&u.MilestoneName,
		&u.PaymentPercentage,
		&u.Deliverables,
		&u.DueDate,
		&u.QualityScore,
		&u.VerificationNotes,
		&u.PhotoRefs,
		&u.ApprovedBy,
		&u.PaidDate,
		&u.PaymentTransactionID,
		&u.ExpectedCompletionDate,
		&u.Version,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create stores a new payment unit
func (r *PaymentRepository) Create(ctx context.Context, unit *payment.Unit) error {
	query := `
		INSERT INTO payment_units (id, escrow_id, contractor_id, unit_type, status, prior_status, payment_amount,
			task_id, completion_requirements, verification_criteria, approval_required, photos_required,
			milestone_name, payment_percentage, deliverables, due_date,
			quality_score, verification_notes, photo_refs, approved_by, paid_date,
			payment_transaction_id, expected_completion_date, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	`

	_, err := r.querier.Exec(ctx, query,
		unit.ID,
		unit.EscrowID,
		unit.ContractorID,
		unit.UnitType,
		unit.Status,
		unit.PriorStatus,
		unit.PaymentAmount,
		unit.TaskID,
		unit.CompletionRequirements,
		unit.VerificationCriteria,
		unit.ApprovalRequired,
		unit.PhotosRequired,
		unit.MilestoneName,
		unit.PaymentPercentage,
		unit.Deliverables,
		unit.DueDate,
		unit.QualityScore,
		unit.VerificationNotes,
		unit.PhotoRefs,
		unit.ApprovedBy,
		unit.PaidDate,
		unit.PaymentTransactionID,
		unit.ExpectedCompletionDate,
		unit.Version,
		unit.CreatedAt,
		unit.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create payment unit", "error", err)
		return fmt.Errorf("failed to create payment unit: %w", err)
	}

	return nil
}

// GetByID retrieves a payment unit by its ID
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Unit, error) {
	query := `
		SELECT ` + unitColumns + `
		FROM payment_units
		WHERE id = $1
	`

	unit, err := scanUnit(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrUnitNotFound{UnitID: id}
		}
		r.logger.Error("Failed to get payment unit", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get payment unit: %w", err)
	}

	return unit, nil
}

// GetByEscrowID retrieves all payment units under an escrow, oldest first
func (r *PaymentRepository) GetByEscrowID(ctx context.Context, escrowID uuid.UUID) ([]*payment.Unit, error) {
	query := `
		SELECT ` + unitColumns + `
		FROM payment_units
		WHERE escrow_id = $1
		ORDER BY created_at ASC
	`

	return r.queryUnits(ctx, query, escrowID)
}

// ListNonTerminal returns every unit under an escrow not yet PAID.
// Change order rescaling and cash flow projection operate on this set.
func (r *PaymentRepository) ListNonTerminal(ctx context.Context, escrowID uuid.UUID) ([]*payment.Unit, error) {
	query := `
		SELECT ` + unitColumns + `
		FROM payment_units
		WHERE escrow_id = $1 AND status != $2
		ORDER BY created_at ASC
	`

	return r.queryUnits(ctx, query, escrowID, shared.UnitStatusPaid)
}

func (r *PaymentRepository) queryUnits(ctx context.Context, query string, args ...interface{}) ([]*payment.Unit, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query payment units", "error", err)
		return nil, fmt.Errorf("failed to query payment units: %w", err)
	}
	defer rows.Close()

	var units []*payment.Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment unit: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment units: %w", err)
	}

	return units, nil
}

// Update persists a payment unit using optimistic locking.
// Returns ErrUnitConcurrentModification when the row moved on since read.
func (r *PaymentRepository) Update(ctx context.Context, unit *payment.Unit) error {
	query := `
		UPDATE payment_units
		SET status = $1, prior_status = $2, payment_amount = $3,
			quality_score = $4, verification_notes = $5, photo_refs = $6, approved_by = $7,
			paid_date = $8, payment_transaction_id = $9, due_date = $10,
			expected_completion_date = $11, version = $12, updated_at = $13
		WHERE id = $14 AND version = $15
	`

	result, err := r.querier.Exec(ctx, query,
		unit.Status,
		unit.PriorStatus,
		unit.PaymentAmount,
		unit.QualityScore,
		unit.VerificationNotes,
		unit.PhotoRefs,
		unit.ApprovedBy,
		unit.PaidDate,
		unit.PaymentTransactionID,
		unit.DueDate,
		unit.ExpectedCompletionDate,
		unit.Version,
		unit.UpdatedAt,
		unit.ID,
		unit.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update payment unit", "id", unit.ID.String(), "error", err)
		return fmt.Errorf("failed to update payment unit: %w", err)
	}

	if result.RowsAffected() == 0 {
		return payment.ErrUnitConcurrentModification{UnitID: unit.ID}
	}

	return nil
}
