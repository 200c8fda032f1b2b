package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/dispute"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/domain/payment"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/projectpay-escrow-engine/internal/platform/persistence"
	"github.com/projectpay-escrow-engine/internal/platform/processor"
)

// DefaultMediator is assigned when mediation is requested without naming one
const DefaultMediator = "independent-mediator"

// DisputeServiceImpl implements the DisputeService interface
type DisputeServiceImpl struct {
	disputeRepo dispute.Repository
	escrowRepo  escrow.Repository
	paymentRepo payment.Repository
	funds       FundsManager
	events      EventRecorder
	processor   processor.Client
	txManager   persistence.TxManager
	logger      *slog.Logger
}

// NewDisputeService creates a new dispute service
func NewDisputeService(
	disputeRepo dispute.Repository,
	escrowRepo escrow.Repository,
	paymentRepo payment.Repository,
	funds FundsManager,
	events EventRecorder,
	processorClient processor.Client,
	txManager persistence.TxManager,
	logger *slog.Logger,
) DisputeService {
	return &DisputeServiceImpl{
		disputeRepo: disputeRepo,
		escrowRepo:  escrowRepo,
		paymentRepo: paymentRepo,
		funds:       funds,
		events:      events,
		processor:   processorClient,
		txManager:   txManager,
		logger:      logger,
	}
}

// Open files a dispute under the escrow row lock so the freeze takes effect
// atomically with respect to concurrent releases. A referenced VERIFIED or
// APPROVED unit moves to FROZEN; a PAID or PENDING unit keeps its state, the
// freeze acting purely on the available balance.
func (s *DisputeServiceImpl) Open(ctx context.Context, escrowID uuid.UUID, paymentUnitID *uuid.UUID, disputeAmount int64, submittedBy, respondentID uuid.UUID, correlationID string) (*dispute.Dispute, error) {
	logger := s.withCorrelation(correlationID)

	var d *dispute.Dispute
	err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		escrowRepoTx := s.escrowRepo.WithTx(tx)
		disputeRepoTx := s.disputeRepo.WithTx(tx)
		paymentRepoTx := s.paymentRepo.WithTx(tx)

		acc, err := escrowRepoTx.LockForUpdate(ctx, escrowID)
		if err != nil {
			return err
		}
		if acc.Status == shared.EscrowStatusClosed {
			return escrow.ErrEscrowClosed
		}

		filed, err := dispute.New(escrowID, paymentUnitID, disputeAmount, submittedBy, respondentID)
		if err != nil {
			return err
		}

		if paymentUnitID != nil {
			unit, err := paymentRepoTx.GetByID(ctx, *paymentUnitID)
			if err != nil {
				return err
			}
			switch unit.Status {
			case shared.UnitStatusVerified, shared.UnitStatusApproved:
				if err := unit.Freeze(); err != nil {
					return err
				}
				if err := paymentRepoTx.Update(ctx, unit); err != nil {
					return err
				}
				logger.Info("Payment unit frozen by dispute",
					"unit_id", unit.ID.String(), "prior_status", string(*unit.PriorStatus))
			default:
				// PENDING and PAID units keep their state; the freeze acts
				// on the available balance only
			}
		}

		if err := disputeRepoTx.Create(ctx, filed); err != nil {
			return err
		}

		event := shared.NewEscrowEvent(escrowID, shared.EventDisputeOpened, submittedBy, respondentID)
		event.Amount = disputeAmount
		disputeID := filed.ID
		event.DisputeID = &disputeID
		event.PaymentUnitID = paymentUnitID
		event.CorrelationID = correlationID
		if err := s.events.Record(ctx, tx, event); err != nil {
			return err
		}
		d = filed
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Dispute opened",
		"dispute_id", d.ID.String(),
		"escrow_id", escrowID.String(),
		"amount", disputeAmount,
	)
	return d, nil
}

// Get retrieves a dispute by its ID
func (s *DisputeServiceImpl) Get(ctx context.Context, id uuid.UUID) (*dispute.Dispute, error) {
	return s.disputeRepo.GetByID(ctx, id)
}

// List returns an escrow's disputes, newest first
func (s *DisputeServiceImpl) List(ctx context.Context, escrowID uuid.UUID) ([]*dispute.Dispute, error) {
	if _, err := s.escrowRepo.GetByID(ctx, escrowID); err != nil {
		return nil, err
	}
	return s.disputeRepo.ListByEscrowID(ctx, escrowID)
}

// RequestMediation escalates a SUBMITTED dispute to MEDIATION
func (s *DisputeServiceImpl) RequestMediation(ctx context.Context, disputeID uuid.UUID, mediator, correlationID string) (*dispute.Dispute, error) {
	logger := s.withCorrelation(correlationID)

	if mediator == "" {
		mediator = DefaultMediator
	}

	var d *dispute.Dispute
	err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		disputeRepoTx := s.disputeRepo.WithTx(tx)

		found, err := disputeRepoTx.GetByID(ctx, disputeID)
		if err != nil {
			return err
		}
		if err := found.RequestMediation(mediator); err != nil {
			return err
		}
		if err := disputeRepoTx.Update(ctx, found); err != nil {
			return err
		}

		event := shared.NewEscrowEvent(found.EscrowID, shared.EventDisputeMediation, found.SubmittedBy, found.RespondentID)
		event.Amount = found.DisputeAmount
		id := found.ID
		event.DisputeID = &id
		event.CorrelationID = correlationID
		event.Detail = fmt.Sprintf("mediation scheduled with %s", mediator)
		if err := s.events.Record(ctx, tx, event); err != nil {
			return err
		}
		d = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Dispute escalated to mediation", "dispute_id", disputeID.String(), "mediator", mediator)
	return d, nil
}

// Resolve terminates the dispute and lifts the freeze in one transaction,
// then pays any resolution amount to the prevailing party as a refund. A nil
// prevailingPartyID defaults to the submitter. The resolution decision is
// final: a settlement payment failure flags the dispute for manual follow-up
// instead of reopening it.
func (s *DisputeServiceImpl) Resolve(ctx context.Context, disputeID uuid.UUID, resolution string, resolutionAmount int64, prevailingPartyID uuid.UUID, resolvedBy, correlationID string) (*dispute.Dispute, error) {
	logger := s.withCorrelation(correlationID)

	payee := prevailingPartyID
	var d *dispute.Dispute
	err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		escrowRepoTx := s.escrowRepo.WithTx(tx)
		disputeRepoTx := s.disputeRepo.WithTx(tx)
		paymentRepoTx := s.paymentRepo.WithTx(tx)

		found, err := disputeRepoTx.GetByID(ctx, disputeID)
		if err != nil {
			return err
		}

		if payee == uuid.Nil {
			payee = found.SubmittedBy
		}
		if payee != found.SubmittedBy && payee != found.RespondentID {
			return dispute.ErrUnknownParty
		}

		// Serialize with releases on the same escrow
		if _, err := escrowRepoTx.LockForUpdate(ctx, found.EscrowID); err != nil {
			return err
		}

		if err := found.Resolve(resolution, resolutionAmount, resolvedBy); err != nil {
			return err
		}
		if err := disputeRepoTx.Update(ctx, found); err != nil {
			return err
		}

		if found.PaymentUnitID != nil {
			unit, err := paymentRepoTx.GetByID(ctx, *found.PaymentUnitID)
			if err != nil {
				return err
			}
			if unit.Status == shared.UnitStatusFrozen {
				if err := unit.Unfreeze(); err != nil {
					return err
				}
				if err := paymentRepoTx.Update(ctx, unit); err != nil {
					return err
				}
				logger.Info("Payment unit unfrozen on resolution", "unit_id", unit.ID.String())
			}
		}

		event := shared.NewEscrowEvent(found.EscrowID, shared.EventDisputeResolved, found.SubmittedBy, found.RespondentID)
		event.Amount = resolutionAmount
		id := found.ID
		event.DisputeID = &id
		event.CorrelationID = correlationID
		event.Detail = resolution
		if err := s.events.Record(ctx, tx, event); err != nil {
			return err
		}
		d = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Dispute resolved",
		"dispute_id", disputeID.String(),
		"resolution_amount", resolutionAmount,
		"resolved_by", resolvedBy,
	)

	if resolutionAmount > 0 {
		if settleErr := s.paySettlement(ctx, d, payee, correlationID); settleErr != nil {
			logger.Error("Settlement payment failed, dispute flagged for follow-up",
				"dispute_id", d.ID.String(),
				"amount", resolutionAmount,
				"error", settleErr,
			)
		}
	}
	return d, nil
}

// paySettlement pays the resolution amount to the prevailing party. On
// failure the dispute is flagged settlement-pending and a SETTLEMENT_PENDING
// event goes out for manual follow-up.
func (s *DisputeServiceImpl) paySettlement(ctx context.Context, d *dispute.Dispute, payee uuid.UUID, correlationID string) error {
	acc, err := s.escrowRepo.GetByID(ctx, d.EscrowID)
	if err != nil {
		return s.flagSettlementPending(ctx, d, correlationID, err)
	}

	// Advisory availability check before the processor moves real funds;
	// the binding check runs again under the row lock
	available, err := s.funds.AvailableBalance(ctx, d.EscrowID)
	if err != nil {
		return s.flagSettlementPending(ctx, d, correlationID, err)
	}
	if available < d.ResolutionAmount {
		return s.flagSettlementPending(ctx, d, correlationID, escrow.ErrInsufficientEscrowBalance{
			EscrowID:  d.EscrowID,
			Requested: d.ResolutionAmount,
			Available: available,
		})
	}

	idempotencyKey := fmt.Sprintf("settlement:%s", d.ID.String())
	externalTxnID, err := s.processor.Withdraw(ctx, acc.ProcessorAccountID, payee, d.ResolutionAmount, idempotencyKey)
	if err != nil {
		return s.flagSettlementPending(ctx, d, correlationID, err)
	}

	err = s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		_, _, txErr := s.funds.ReleaseWithinTx(ctx, tx, d.EscrowID, payee, d.ResolutionAmount, shared.PaymentTypeRefund, externalTxnID, idempotencyKey, correlationID)
		return txErr
	})
	if err != nil {
		return s.flagSettlementPending(ctx, d, correlationID, err)
	}
	return nil
}

func (s *DisputeServiceImpl) flagSettlementPending(ctx context.Context, d *dispute.Dispute, correlationID string, cause error) error {
	flagErr := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		disputeRepoTx := s.disputeRepo.WithTx(tx)

		found, err := disputeRepoTx.GetByID(ctx, d.ID)
		if err != nil {
			return err
		}
		found.FlagSettlementPending()
		if err := disputeRepoTx.Update(ctx, found); err != nil {
			return err
		}

		event := shared.NewEscrowEvent(d.EscrowID, shared.EventSettlementPending, d.SubmittedBy, d.RespondentID)
		event.Amount = d.ResolutionAmount
		id := d.ID
		event.DisputeID = &id
		event.CorrelationID = correlationID
		event.Detail = cause.Error()
		return s.events.Record(ctx, tx, event)
	})
	if flagErr != nil {
		s.logger.Error("Failed to flag dispute settlement pending",
			"dispute_id", d.ID.String(), "error", flagErr)
	}
	return cause
}

func (s *DisputeServiceImpl) withCorrelation(correlationID string) *slog.Logger {
	if correlationID == "" {
		return s.logger
	}
	return s.logger.With("correlation_id", correlationID)
}
