package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/domain/ledger"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/projectpay-escrow-engine/internal/platform/persistence"
	"github.com/projectpay-escrow-engine/internal/platform/processor"
)

// EscrowServiceImpl implements the EscrowService interface
type EscrowServiceImpl struct {
	escrowRepo escrow.Repository
	ledgerRepo ledger.Repository
	funds      FundsManager
	events     EventRecorder
	processor  processor.Client
	txManager  persistence.TxManager
	logger     *slog.Logger
}

// NewEscrowService creates a new escrow service
func NewEscrowService(
	escrowRepo escrow.Repository,
	ledgerRepo ledger.Repository,
	funds FundsManager,
	events EventRecorder,
	processorClient processor.Client,
	txManager persistence.TxManager,
	logger *slog.Logger,
) EscrowService {
	return &EscrowServiceImpl{
		escrowRepo: escrowRepo,
		ledgerRepo: ledgerRepo,
		funds:      funds,
		events:     events,
		processor:  processorClient,
		txManager:  txManager,
		logger:     logger,
	}
}

// CreateEscrow opens the processor-side account first, then records the
// escrow. Creation is idempotent per project: an existing escrow is returned
// unchanged.
func (s *EscrowServiceImpl) CreateEscrow(ctx context.Context, projectID uuid.UUID, totalProjectValue int64, retentionPercentage int, clientID, contractorID uuid.UUID, correlationID string) (*escrow.Account, error) {
	logger := s.withCorrelation(correlationID)

	existing, err := s.escrowRepo.GetByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Info("Escrow already exists for project", "project_id", projectID.String(), "escrow_id", existing.ID.String())
		return existing, nil
	}

	acc, err := escrow.NewAccount(projectID, totalProjectValue, retentionPercentage, clientID, contractorID)
	if err != nil {
		return nil, err
	}

	handle, err := s.processor.OpenAccount(ctx, projectID, clientID, contractorID)
	if err != nil {
		logger.Error("Failed to open processor account", "project_id", projectID.String(), "error", err)
		return nil, fmt.Errorf("failed to open processor account: %w", err)
	}
	acc.ProcessorAccountID = handle

	err = s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.escrowRepo.WithTx(tx).Create(ctx, acc); err != nil {
			return err
		}
		event := shared.NewEscrowEvent(acc.ID, shared.EventEscrowCreated, clientID, contractorID)
		event.Amount = totalProjectValue
		event.CorrelationID = correlationID
		event.Detail = fmt.Sprintf("escrow created for project %s", projectID.String())
		return s.events.Record(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Escrow account created",
		"escrow_id", acc.ID.String(),
		"project_id", projectID.String(),
		"total_value", totalProjectValue,
		"retention_pct", retentionPercentage,
	)
	return acc, nil
}

// GetEscrow retrieves an escrow account by its ID
func (s *EscrowServiceImpl) GetEscrow(ctx context.Context, id uuid.UUID) (*escrow.Account, error) {
	return s.escrowRepo.GetByID(ctx, id)
}

// GetEscrowByProject returns the project's escrow, or nil when none exists
func (s *EscrowServiceImpl) GetEscrowByProject(ctx context.Context, projectID uuid.UUID) (*escrow.Account, error) {
	return s.escrowRepo.GetByProjectID(ctx, projectID)
}

// FundEscrow runs the processor deposit first, then applies the balance
// change and ledger entry in one transaction with the funding event
func (s *EscrowServiceImpl) FundEscrow(ctx context.Context, escrowID uuid.UUID, amount int64, method, correlationID string) (*escrow.Account, *ledger.Entry, error) {
	logger := s.withCorrelation(correlationID)

	if amount <= 0 {
		return nil, nil, shared.ErrInvalidAmount
	}

	acc, err := s.escrowRepo.GetByID(ctx, escrowID)
	if err != nil {
		return nil, nil, err
	}
	if acc.Status == shared.EscrowStatusClosed {
		return nil, nil, escrow.ErrEscrowClosed
	}

	idempotencyKey := fmt.Sprintf("deposit:%s:%s", escrowID.String(), uuid.New().String())
	externalTxnID, err := s.processor.Deposit(ctx, acc.ProcessorAccountID, amount, method, idempotencyKey)
	if err != nil {
		logger.Error("Processor deposit failed", "escrow_id", escrowID.String(), "amount", amount, "error", err)
		return nil, nil, fmt.Errorf("processor deposit failed: %w", err)
	}

	var updated *escrow.Account
	var entry *ledger.Entry
	err = s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		updated, entry, txErr = s.funds.DepositWithinTx(ctx, tx, escrowID, amount, method, externalTxnID, correlationID)
		if txErr != nil {
			return txErr
		}

		// Every deposit is announced; crossing into FUNDED upgrades the
		// event so downstream consumers see the transition exactly once
		eventType := shared.EventDepositReceived
		eventAmount := amount
		if updated.Status == shared.EscrowStatusFunded && acc.Status != shared.EscrowStatusFunded {
			eventType = shared.EventEscrowFunded
			eventAmount = updated.EscrowBalance
		}
		event := shared.NewEscrowEvent(updated.ID, eventType, updated.ClientID, updated.ContractorID)
		event.Amount = eventAmount
		event.PaymentType = shared.PaymentTypeDeposit
		event.CorrelationID = correlationID
		return s.events.Record(ctx, tx, event)
	})
	if err != nil {
		return nil, nil, err
	}

	return updated, entry, nil
}

// GetLedger retrieves paginated ledger history for an escrow
func (s *EscrowServiceImpl) GetLedger(ctx context.Context, escrowID uuid.UUID, page, perPage int) ([]*ledger.Entry, int64, error) {
	if _, err := s.escrowRepo.GetByID(ctx, escrowID); err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	entries, err := s.ledgerRepo.GetByEscrowID(ctx, escrowID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.ledgerRepo.CountByEscrowID(ctx, escrowID)
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// MarkCompleted records the orchestrator's completion decision and emits the
// completion event
func (s *EscrowServiceImpl) MarkCompleted(ctx context.Context, escrowID uuid.UUID, correlationID string) (*escrow.Account, error) {
	logger := s.withCorrelation(correlationID)

	var acc *escrow.Account
	err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		escrowRepoTx := s.escrowRepo.WithTx(tx)

		locked, err := escrowRepoTx.LockForUpdate(ctx, escrowID)
		if err != nil {
			return err
		}
		if err := locked.MarkCompleted(); err != nil {
			return err
		}
		if err := escrowRepoTx.Update(ctx, locked); err != nil {
			return err
		}

		event := shared.NewEscrowEvent(locked.ID, shared.EventEscrowCompleted, locked.ClientID, locked.ContractorID)
		event.CorrelationID = correlationID
		if err := s.events.Record(ctx, tx, event); err != nil {
			return err
		}
		acc = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Escrow marked completed", "escrow_id", escrowID.String())
	return acc, nil
}

// ReleaseRetention pays the withheld retention to the contractor through the
// processor, then records the release atomically
func (s *EscrowServiceImpl) ReleaseRetention(ctx context.Context, escrowID uuid.UUID, correlationID string) (*escrow.Account, error) {
	logger := s.withCorrelation(correlationID)

	acc, err := s.escrowRepo.GetByID(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if acc.Status != shared.EscrowStatusCompleted {
		return nil, escrow.ErrNotCompleted
	}
	if acc.RetentionReleased {
		return nil, escrow.ErrRetentionReleased
	}
	if acc.RetentionAmount <= 0 {
		// Nothing withheld, just flip the flag
		return s.markRetentionReleased(ctx, escrowID, acc.ContractorID, correlationID, "", 0)
	}

	idempotencyKey := fmt.Sprintf("retention:%s", escrowID.String())
	if existing, err := s.ledgerRepo.GetByIdempotencyKey(ctx, idempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		logger.Warn("Retention release already executed", "escrow_id", escrowID.String(), "entry_id", existing.ID.String())
		return nil, ledger.ErrDuplicateRelease{IdempotencyKey: idempotencyKey}
	}

	// Advisory availability check before the processor moves real funds;
	// the binding check runs again under the row lock
	available, err := s.funds.AvailableBalance(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if available < acc.RetentionAmount {
		logger.Warn("Retention release blocked before processor call, insufficient available balance",
			"escrow_id", escrowID.String(),
			"requested", acc.RetentionAmount,
			"available", available,
		)
		return nil, escrow.ErrInsufficientEscrowBalance{
			EscrowID:  escrowID,
			Requested: acc.RetentionAmount,
			Available: available,
		}
	}

	externalTxnID, err := s.processor.Withdraw(ctx, acc.ProcessorAccountID, acc.ContractorID, acc.RetentionAmount, idempotencyKey)
	if err != nil {
		logger.Error("Processor retention withdrawal failed", "escrow_id", escrowID.String(), "error", err)
		return nil, fmt.Errorf("processor retention withdrawal failed: %w", err)
	}

	return s.markRetentionReleased(ctx, escrowID, acc.ContractorID, correlationID, externalTxnID, acc.RetentionAmount)
}

func (s *EscrowServiceImpl) markRetentionReleased(ctx context.Context, escrowID, contractorID uuid.UUID, correlationID, externalTxnID string, amount int64) (*escrow.Account, error) {
	var acc *escrow.Account
	err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		escrowRepoTx := s.escrowRepo.WithTx(tx)

		var updated *escrow.Account
		if amount > 0 {
			idempotencyKey := fmt.Sprintf("retention:%s", escrowID.String())
			released, _, txErr := s.funds.ReleaseWithinTx(ctx, tx, escrowID, contractorID, amount, shared.PaymentTypeRetentionRelease, externalTxnID, idempotencyKey, correlationID)
			if txErr != nil {
				return txErr
			}
			updated = released
		} else {
			locked, err := escrowRepoTx.LockForUpdate(ctx, escrowID)
			if err != nil {
				return err
			}
			updated = locked
		}

		if err := updated.MarkRetentionReleased(); err != nil {
			return err
		}
		if err := escrowRepoTx.Update(ctx, updated); err != nil {
			return err
		}

		event := shared.NewEscrowEvent(updated.ID, shared.EventRetentionReleased, updated.ClientID, updated.ContractorID)
		event.Amount = amount
		event.PaymentType = shared.PaymentTypeRetentionRelease
		event.CorrelationID = correlationID
		if err := s.events.Record(ctx, tx, event); err != nil {
			return err
		}
		acc = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// CloseEscrow terminates the account after completion and retention release
func (s *EscrowServiceImpl) CloseEscrow(ctx context.Context, escrowID uuid.UUID, correlationID string) (*escrow.Account, error) {
	logger := s.withCorrelation(correlationID)

	var acc *escrow.Account
	err := s.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		escrowRepoTx := s.escrowRepo.WithTx(tx)

		locked, err := escrowRepoTx.LockForUpdate(ctx, escrowID)
		if err != nil {
			return err
		}
		if err := locked.Close(); err != nil {
			return err
		}
		if err := escrowRepoTx.Update(ctx, locked); err != nil {
			return err
		}

		event := shared.NewEscrowEvent(locked.ID, shared.EventEscrowClosed, locked.ClientID, locked.ContractorID)
		event.CorrelationID = correlationID
		if err := s.events.Record(ctx, tx, event); err != nil {
			return err
		}
		acc = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Escrow closed", "escrow_id", escrowID.String(), "final_balance", acc.EscrowBalance)
	return acc, nil
}

func (s *EscrowServiceImpl) withCorrelation(correlationID string) *slog.Logger {
	if correlationID == "" {
		return s.logger
	}
	return s.logger.With("correlation_id", correlationID)
}
