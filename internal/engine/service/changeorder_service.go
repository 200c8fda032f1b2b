package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/changeorder"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/domain/payment"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/projectpay-escrow-engine/internal/platform/persistence"
)

// ChangeOrderServiceImpl implements the ChangeOrderService interface
type ChangeOrderServiceImpl struct {
	changeOrderRepo changeorder.Repository
	escrowRepo      escrow.Repository
	paymentRepo     payment.Repository
	events          EventRecorder
	txManager       persistence.TxManager
	logger          *slog.Logger
}

// NewChangeOrderService creates a new change order service
func NewChangeOrderService(
	changeOrderRepo changeorder.Repository,
	escrowRepo escrow.Repository,
	paymentRepo payment.Repository,
	events EventRecorder,
	txManager persistence.TxManager,
	logger *slog.Logger,
) ChangeOrderService {
	return &ChangeOrderServiceImpl{
		changeOrderRepo: changeOrderRepo,
		escrowRepo:      escrowRepo,
		paymentRepo:     paymentRepo,
		events:          events,
		txManager:       txManager,
		logger:          logger,
	}
}

// Apply adjusts the contract value, recomputes retention, rescales every
// non-terminal payment unit proportionally and records the audit row, all in
// one transaction under the escrow row lock
func (s *ChangeOrderServiceImpl) Apply(ctx context.Context, escrowID uuid.UUID, amountChange int64, scheduleImpactDays int, reason, approvedBy, correlationID string) (*changeorder.ChangeOrder, error) {
	logger := s.logger
	if correlationID != "" {
		logger = s.logger.With("correlation_id", correlationID)
	}

	var co *changeorder.ChangeOrder
	err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		escrowRepoTx := s.escrowRepo.WithTx(tx)
		paymentRepoTx := s.paymentRepo.WithTx(tx)
		changeOrderRepoTx := s.changeOrderRepo.WithTx(tx)

		acc, err := escrowRepoTx.LockForUpdate(ctx, escrowID)
		if err != nil {
			return err
		}
		if acc.Status == shared.EscrowStatusClosed {
			return escrow.ErrEscrowClosed
		}

		number, err := changeOrderRepoTx.NextNumber(ctx, escrowID)
		if err != nil {
			return err
		}

		order, err := changeorder.New(escrowID, number, amountChange, scheduleImpactDays, reason, approvedBy, acc.TotalProjectValue)
		if err != nil {
			return err
		}

		acc.ApplyValueChange(amountChange)
		if err := escrowRepoTx.Update(ctx, acc); err != nil {
			return err
		}

		units, err := paymentRepoTx.ListNonTerminal(ctx, escrowID)
		if err != nil {
			return err
		}

		// Rescaled amounts are bounded by what the contract still has to
		// allocate: the new total minus paid-out funds and retention
		unallocated := acc.TotalProjectValue - acc.TotalPaid - acc.RetentionAmount
		if unallocated < 0 {
			unallocated = 0
		}
		for _, unit := range units {
			unit.Rescale(order.NewTotalValue, order.PriorTotalValue, scheduleImpactDays)
			if unit.PaymentAmount > unallocated {
				logger.Warn("Rescaled amount exceeds unallocated escrow, capping",
					"unit_id", unit.ID.String(),
					"rescaled", unit.PaymentAmount,
					"unallocated", unallocated,
				)
				unit.ClampAmount(unallocated)
			}
			unallocated -= unit.PaymentAmount
			if err := paymentRepoTx.Update(ctx, unit); err != nil {
				return err
			}
		}

		if err := changeOrderRepoTx.Create(ctx, order); err != nil {
			return err
		}

		event := shared.NewEscrowEvent(escrowID, shared.EventChangeOrderApplied, acc.ClientID, acc.ContractorID)
		event.Amount = amountChange
		event.CorrelationID = correlationID
		event.Detail = reason
		if err := s.events.Record(ctx, tx, event); err != nil {
			return err
		}

		logger.Info("Change order applied",
			"escrow_id", escrowID.String(),
			"change_order_number", number,
			"amount_change", amountChange,
			"new_total_value", order.NewTotalValue,
			"units_rescaled", len(units),
		)
		co = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	return co, nil
}

// List returns an escrow's change orders in application order
func (s *ChangeOrderServiceImpl) List(ctx context.Context, escrowID uuid.UUID) ([]*changeorder.ChangeOrder, error) {
	if _, err := s.escrowRepo.GetByID(ctx, escrowID); err != nil {
		return nil, err
	}
	return s.changeOrderRepo.ListByEscrowID(ctx, escrowID)
}
