package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/domain/ledger"
	"github.com/projectpay-escrow-engine/internal/domain/payment"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/projectpay-escrow-engine/internal/platform/persistence"
	"github.com/projectpay-escrow-engine/internal/platform/processor"
)

// PaymentServiceImpl implements the PaymentService interface
type PaymentServiceImpl struct {
	paymentRepo payment.Repository
	escrowRepo  escrow.Repository
	ledgerRepo  ledger.Repository
	funds       FundsManager
	events      EventRecorder
	processor   processor.Client
	txManager   persistence.TxManager
	logger      *slog.Logger
}

// NewPaymentService creates a new payment unit service
func NewPaymentService(
	paymentRepo payment.Repository,
	escrowRepo escrow.Repository,
	ledgerRepo ledger.Repository,
	funds FundsManager,
	events EventRecorder,
	processorClient processor.Client,
	txManager persistence.TxManager,
	logger *slog.Logger,
) PaymentService {
	return &PaymentServiceImpl{
		paymentRepo: paymentRepo,
		escrowRepo:  escrowRepo,
		ledgerRepo:  ledgerRepo,
		funds:       funds,
		events:      events,
		processor:   processorClient,
		txManager:   txManager,
		logger:      logger,
	}
}

// CreateTaskPayment registers a task payment unit under an escrow
func (s *PaymentServiceImpl) CreateTaskPayment(ctx context.Context, params CreateTaskPaymentParams) (*payment.Unit, error) {
	acc, err := s.escrowRepo.GetByID(ctx, params.EscrowID)
	if err != nil {
		return nil, err
	}

	unit, err := payment.NewTaskUnit(
		params.EscrowID,
		acc.ContractorID,
		params.TaskID,
		params.PaymentAmount,
		params.CompletionRequirements,
		params.VerificationCriteria,
		params.ApprovalRequired,
		params.PhotosRequired,
		params.ExpectedCompletionDate,
	)
	if err != nil {
		return nil, err
	}

	if err := s.paymentRepo.Create(ctx, unit); err != nil {
		return nil, err
	}

	s.logger.Info("Task payment unit created",
		"unit_id", unit.ID.String(),
		"escrow_id", params.EscrowID.String(),
		"amount", params.PaymentAmount,
	)
	return unit, nil
}

// CreateMilestonePayment registers a milestone payment unit. The amount must
// match the declared percentage of the contract value.
func (s *PaymentServiceImpl) CreateMilestonePayment(ctx context.Context, params CreateMilestonePaymentParams) (*payment.Unit, error) {
	acc, err := s.escrowRepo.GetByID(ctx, params.EscrowID)
	if err != nil {
		return nil, err
	}

	unit, err := payment.NewMilestoneUnit(
		params.EscrowID,
		acc.ContractorID,
		params.MilestoneName,
		params.PaymentAmount,
		params.PaymentPercentage,
		acc.TotalProjectValue,
		params.Deliverables,
		params.DueDate,
		params.ApprovalRequired,
	)
	if err != nil {
		return nil, err
	}

	if err := s.paymentRepo.Create(ctx, unit); err != nil {
		return nil, err
	}

	s.logger.Info("Milestone payment unit created",
		"unit_id", unit.ID.String(),
		"escrow_id", params.EscrowID.String(),
		"milestone", params.MilestoneName,
		"amount", params.PaymentAmount,
	)
	return unit, nil
}

// GetPayment retrieves a payment unit by its ID
func (s *PaymentServiceImpl) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Unit, error) {
	return s.paymentRepo.GetByID(ctx, id)
}

// ListPayments returns all payment units under an escrow
func (s *PaymentServiceImpl) ListPayments(ctx context.Context, escrowID uuid.UUID) ([]*payment.Unit, error) {
	return s.paymentRepo.GetByEscrowID(ctx, escrowID)
}

// VerifyCompletion records completion evidence in its own transaction, then
// releases the payment when no separate approval is needed. A release
// failure leaves the unit VERIFIED so the release can be retried.
func (s *PaymentServiceImpl) VerifyCompletion(ctx context.Context, unitID uuid.UUID, qualityScore int, photoRefs []string, notes, correlationID string) (*payment.Unit, error) {
	logger := s.withCorrelation(correlationID)

	unit, err := s.paymentRepo.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if err := unit.Verify(qualityScore, photoRefs, notes); err != nil {
		return nil, err
	}
	if err := s.paymentRepo.Update(ctx, unit); err != nil {
		return nil, err
	}
	logger.Info("Payment unit verified",
		"unit_id", unit.ID.String(),
		"quality_score", qualityScore,
		"approval_required", unit.ApprovalRequired,
	)

	if !unit.ApprovalRequired {
		if payErr := s.processPayment(ctx, unit, correlationID); payErr != nil {
			logger.Warn("Verified but release failed, unit stays payable",
				"unit_id", unit.ID.String(), "error", payErr)
			return unit, payErr
		}
	}
	return unit, nil
}

// Approve records the client's approval in its own transaction, then
// releases the payment. A release failure leaves the unit APPROVED for
// retry.
func (s *PaymentServiceImpl) Approve(ctx context.Context, unitID uuid.UUID, approvedBy, correlationID string) (*payment.Unit, error) {
	logger := s.withCorrelation(correlationID)

	unit, err := s.paymentRepo.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if err := unit.Approve(approvedBy); err != nil {
		return nil, err
	}
	if err := s.paymentRepo.Update(ctx, unit); err != nil {
		return nil, err
	}
	logger.Info("Payment unit approved", "unit_id", unit.ID.String(), "approved_by", approvedBy)

	if payErr := s.processPayment(ctx, unit, correlationID); payErr != nil {
		logger.Warn("Approved but release failed, unit stays payable",
			"unit_id", unit.ID.String(), "error", payErr)
		return unit, payErr
	}
	return unit, nil
}

// Release retries the payout of a unit already in a payable state
func (s *PaymentServiceImpl) Release(ctx context.Context, unitID uuid.UUID, correlationID string) (*payment.Unit, error) {
	unit, err := s.paymentRepo.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Status == shared.UnitStatusPaid {
		return unit, payment.ErrAlreadyPaid{UnitID: unit.ID}
	}
	if unit.Status == shared.UnitStatusFrozen {
		return nil, payment.ErrUnitFrozen
	}
	if !unit.ReadyForPayment() {
		return nil, payment.ErrInvalidStateTransition{UnitID: unit.ID, From: unit.Status, To: shared.UnitStatusPaid}
	}

	if err := s.processPayment(ctx, unit, correlationID); err != nil {
		return nil, err
	}
	return unit, nil
}

// processPayment executes the payout for a payable unit: idempotency check,
// processor withdrawal, then one transaction covering the balance update,
// ledger append, unit transition to PAID and the outbox event
func (s *PaymentServiceImpl) processPayment(ctx context.Context, unit *payment.Unit, correlationID string) error {
	logger := s.withCorrelation(correlationID)

	idempotencyKey := fmt.Sprintf("%s:%s", unit.EscrowID.String(), unit.ID.String())

	existing, err := s.ledgerRepo.GetByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.Warn("Release already executed for unit",
			"unit_id", unit.ID.String(),
			"entry_id", existing.ID.String(),
			"external_txn_id", existing.ExternalTransactionID,
		)
		return payment.ErrAlreadyPaid{UnitID: unit.ID}
	}

	acc, err := s.escrowRepo.GetByID(ctx, unit.EscrowID)
	if err != nil {
		return err
	}

	paymentType := shared.PaymentTypeTaskCompletion
	if unit.UnitType == shared.UnitTypeMilestone {
		paymentType = shared.PaymentTypeMilestone
	}

	// Advisory availability check before the processor moves real funds;
	// the binding check runs again under the row lock
	available, err := s.funds.AvailableBalance(ctx, unit.EscrowID)
	if err != nil {
		return err
	}
	if available < unit.PaymentAmount {
		logger.Warn("Release blocked before processor call, insufficient available balance",
			"unit_id", unit.ID.String(),
			"escrow_id", unit.EscrowID.String(),
			"requested", unit.PaymentAmount,
			"available", available,
		)
		return escrow.ErrInsufficientEscrowBalance{
			EscrowID:  unit.EscrowID,
			Requested: unit.PaymentAmount,
			Available: available,
		}
	}

	externalTxnID, err := s.processor.Withdraw(ctx, acc.ProcessorAccountID, unit.ContractorID, unit.PaymentAmount, idempotencyKey)
	if err != nil {
		logger.Error("Processor withdrawal failed",
			"unit_id", unit.ID.String(),
			"escrow_id", unit.EscrowID.String(),
			"amount", unit.PaymentAmount,
			"error", err,
		)
		return fmt.Errorf("processor withdrawal failed: %w", err)
	}

	err = s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		_, entry, txErr := s.funds.ReleaseWithinTx(ctx, tx, unit.EscrowID, unit.ContractorID, unit.PaymentAmount, paymentType, externalTxnID, idempotencyKey, correlationID)
		if txErr != nil {
			return txErr
		}

		if markErr := unit.MarkPaid(externalTxnID); markErr != nil {
			return markErr
		}
		if updateErr := s.paymentRepo.WithTx(tx).Update(ctx, unit); updateErr != nil {
			return updateErr
		}

		event := shared.NewEscrowEvent(unit.EscrowID, shared.EventPaymentReleased, acc.ClientID, unit.ContractorID)
		event.Amount = unit.PaymentAmount
		event.PaymentType = paymentType
		unitID := unit.ID
		event.PaymentUnitID = &unitID
		event.CorrelationID = correlationID
		event.Detail = fmt.Sprintf("ledger entry %s", entry.ID.String())
		return s.events.Record(ctx, tx, event)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateRelease{IdempotencyKey: idempotencyKey}) {
			return payment.ErrAlreadyPaid{UnitID: unit.ID}
		}
		return err
	}

	logger.Info("Payment released",
		"unit_id", unit.ID.String(),
		"escrow_id", unit.EscrowID.String(),
		"amount", unit.PaymentAmount,
		"external_txn_id", externalTxnID,
	)
	return nil
}

func (s *PaymentServiceImpl) withCorrelation(correlationID string) *slog.Logger {
	if correlationID == "" {
		return s.logger
	}
	return s.logger.With("correlation_id", correlationID)
}
