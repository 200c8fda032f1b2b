package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/changeorder"
	"github.com/projectpay-escrow-engine/internal/platform/persistence"
)

// ChangeOrderRepository implements the changeorder.Repository interface for
// PostgreSQL. Change orders are append-only audit records.
type ChangeOrderRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewChangeOrderRepository creates a new PostgreSQL change order repository
func NewChangeOrderRepository(logger *slog.Logger, db *persistence.PostgresDB) changeorder.Repository {
	return &ChangeOrderRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so the audit record commits
// together with the value change and unit rescale it describes
func (r *ChangeOrderRepository) WithTx(tx pgx.Tx) changeorder.Repository {
	return &ChangeOrderRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a change order record. A unique constraint on
// (escrow_id, change_order_number) rejects duplicate numbering.
func (r *ChangeOrderRepository) Create(ctx context.Context, co *changeorder.ChangeOrder) error {
	query := `
		INSERT INTO change_orders (id, escrow_id, change_order_number, amount_change, schedule_impact_days,
			reason, approved_by, prior_total_value, new_total_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.querier.Exec(ctx, query,
		co.ID,
		co.EscrowID,
		co.ChangeOrderNumber,
		co.AmountChange,
		co.ScheduleImpactDays,
		co.Reason,
		co.ApprovedBy,
		co.PriorTotalValue,
		co.NewTotalValue,
		co.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create change order", "escrowID", co.EscrowID.String(), "error", err)
		return fmt.Errorf("failed to create change order: %w", err)
	}

	return nil
}

// ListByEscrowID returns an escrow's change orders in application order
func (r *ChangeOrderRepository) ListByEscrowID(ctx context.Context, escrowID uuid.UUID) ([]*changeorder.ChangeOrder, error) {
	query := `
		SELECT id, escrow_id, change_order_number, amount_change, schedule_impact_days,
			reason, approved_by, prior_total_value, new_total_value, created_at
		FROM change_orders
		WHERE escrow_id = $1
		ORDER BY change_order_number ASC
	`

	rows, err := r.querier.Query(ctx, query, escrowID)
	if err != nil {
		r.logger.Error("Failed to list change orders", "escrowID", escrowID.String(), "error", err)
		return nil, fmt.Errorf("failed to list change orders: %w", err)
	}
	defer rows.Close()

	var orders []*changeorder.ChangeOrder
	for rows.Next() {
		var co changeorder.ChangeOrder
		err := rows.Scan(
			&co.ID,
			&co.EscrowID,
			&co.ChangeOrderNumber,
			&co.AmountChange,
			&co.ScheduleImpactDays,
			&co.Reason,
			&co.ApprovedBy,
			&co.PriorTotalValue,
			&co.NewTotalValue,
			&co.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change order: %w", err)
		}
		orders = append(orders, &co)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate change orders: %w", err)
	}

	return orders, nil
}

// NextNumber returns the next change order number for an escrow, starting
// at 1. Callers hold the escrow row lock, which keeps numbers unique.
func (r *ChangeOrderRepository) NextNumber(ctx context.Context, escrowID uuid.UUID) (int, error) {
	query := `
		SELECT COALESCE(MAX(change_order_number), 0) + 1
		FROM change_orders
		WHERE escrow_id = $1
	`

	var next int
	if err := r.querier.QueryRow(ctx, query, escrowID).Scan(&next); err != nil {
		r.logger.Error("Failed to get next change order number", "escrowID", escrowID.String(), "error", err)
		return 0, fmt.Errorf("failed to get next change order number: %w", err)
	}

	return next, nil
}
