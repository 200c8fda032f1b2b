package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/dispute"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/domain/ledger"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

// FundsManagerImpl implements the FundsManager interface
type FundsManagerImpl struct {
	escrowRepo  escrow.Repository
	ledgerRepo  ledger.Repository
	disputeRepo dispute.Repository
	logger      *slog.Logger
}

// NewFundsManager creates a new FundsManagerImpl
func NewFundsManager(escrowRepo escrow.Repository, ledgerRepo ledger.Repository, disputeRepo dispute.Repository, logger *slog.Logger) FundsManager {
	return &FundsManagerImpl{
		escrowRepo:  escrowRepo,
		ledgerRepo:  ledgerRepo,
		disputeRepo: disputeRepo,
		logger:      logger,
	}
}

// DepositWithinTx locks the escrow, applies the deposit and appends the
// completed ledger entry
func (m *FundsManagerImpl) DepositWithinTx(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, amount int64, method, externalTransactionID, correlationID string) (*escrow.Account, *ledger.Entry, error) {
	logger := m.logger
	if correlationID != "" {
		logger = m.logger.With("correlation_id", correlationID)
	}

	escrowRepoTx := m.escrowRepo.WithTx(tx)
	ledgerRepoTx := m.ledgerRepo.WithTx(tx)

	acc, err := escrowRepoTx.LockForUpdate(ctx, escrowID)
	if err != nil {
		logger.Error("Failed to lock escrow for deposit", "escrow_id", escrowID.String(), "error", err)
		return nil, nil, err
	}
	logger.Info("Escrow locked for deposit", "escrow_id", acc.ID.String(), "balance", acc.EscrowBalance, "version", acc.Version)

	if err := acc.Deposit(amount); err != nil {
		logger.Warn("Deposit rejected by escrow model", "escrow_id", acc.ID.String(), "amount", amount, "error", err)
		return nil, nil, err
	}

	if err := escrowRepoTx.Update(ctx, acc); err != nil {
		logger.Error("Failed to update escrow after deposit", "escrow_id", acc.ID.String(), "error", err)
		return nil, nil, err
	}

	entry, err := ledger.NewDeposit(acc.ID, acc.ClientID, amount, method, externalTransactionID, correlationID)
	if err != nil {
		return nil, nil, err
	}
	if err := ledgerRepoTx.Append(ctx, entry); err != nil {
		logger.Error("Failed to append deposit ledger entry", "escrow_id", acc.ID.String(), "error", err)
		return nil, nil, err
	}

	m.assertInvariant(acc)
	logger.Info("Deposit applied", "escrow_id", acc.ID.String(), "amount", amount, "new_balance", acc.EscrowBalance)
	return acc, entry, nil
}

// ReleaseWithinTx locks the escrow, computes the available balance net of
// open dispute freezes under the same lock, applies the release and appends
// the negative ledger entry
func (m *FundsManagerImpl) ReleaseWithinTx(ctx context.Context, tx pgx.Tx, escrowID, recipientID uuid.UUID, amount int64, paymentType shared.PaymentType, externalTransactionID, idempotencyKey, correlationID string) (*escrow.Account, *ledger.Entry, error) {
	logger := m.logger
	if correlationID != "" {
		logger = m.logger.With("correlation_id", correlationID)
	}

	escrowRepoTx := m.escrowRepo.WithTx(tx)
	ledgerRepoTx := m.ledgerRepo.WithTx(tx)
	disputeRepoTx := m.disputeRepo.WithTx(tx)

	acc, err := escrowRepoTx.LockForUpdate(ctx, escrowID)
	if err != nil {
		logger.Error("Failed to lock escrow for release", "escrow_id", escrowID.String(), "error", err)
		return nil, nil, err
	}
	logger.Info("Escrow locked for release", "escrow_id", acc.ID.String(), "balance", acc.EscrowBalance, "version", acc.Version)

	frozen, err := disputeRepoTx.OpenAmount(ctx, escrowID)
	if err != nil {
		logger.Error("Failed to compute dispute-frozen amount", "escrow_id", escrowID.String(), "error", err)
		return nil, nil, err
	}
	available := acc.EscrowBalance - frozen

	if err := acc.Release(amount, available); err != nil {
		if errors.Is(err, escrow.ErrInsufficientEscrowBalance{}) {
			logger.Warn("Release rejected, insufficient available balance",
				"escrow_id", acc.ID.String(), "requested", amount, "available", available, "frozen", frozen)
		}
		return nil, nil, err
	}

	if err := escrowRepoTx.Update(ctx, acc); err != nil {
		logger.Error("Failed to update escrow after release", "escrow_id", acc.ID.String(), "error", err)
		return nil, nil, err
	}

	entry, err := ledger.NewRelease(acc.ID, recipientID, amount, paymentType, externalTransactionID, idempotencyKey, correlationID)
	if err != nil {
		return nil, nil, err
	}
	if err := ledgerRepoTx.Append(ctx, entry); err != nil {
		if errors.Is(err, ledger.ErrDuplicateRelease{IdempotencyKey: idempotencyKey}) {
			logger.Warn("Duplicate release blocked by idempotency key", "escrow_id", acc.ID.String(), "key", idempotencyKey)
			return nil, nil, err
		}
		logger.Error("Failed to append release ledger entry", "escrow_id", acc.ID.String(), "error", err)
		return nil, nil, err
	}

	m.assertInvariant(acc)
	logger.Info("Release applied",
		"escrow_id", acc.ID.String(),
		"recipient_id", recipientID.String(),
		"amount", amount,
		"payment_type", string(paymentType),
		"new_balance", acc.EscrowBalance,
	)
	return acc, entry, nil
}

// AvailableBalance computes the escrow balance net of open dispute freezes
// from a plain read. It backs the advisory check services run before calling
// the processor; ReleaseWithinTx repeats the computation under the row lock.
func (m *FundsManagerImpl) AvailableBalance(ctx context.Context, escrowID uuid.UUID) (int64, error) {
	acc, err := m.escrowRepo.GetByID(ctx, escrowID)
	if err != nil {
		return 0, err
	}
	frozen, err := m.disputeRepo.OpenAmount(ctx, escrowID)
	if err != nil {
		return 0, err
	}
	return acc.EscrowBalance - frozen, nil
}

// assertInvariant logs loudly if the balance identity ever breaks. It never
// fails the transaction; the identity is enforced by construction.
func (m *FundsManagerImpl) assertInvariant(acc *escrow.Account) {
	if !acc.BalanceInvariantHolds() {
		m.logger.Error(fmt.Sprintf("escrow balance invariant violated for %s", acc.ID.String()),
			"balance", acc.EscrowBalance,
			"deposited", acc.TotalDeposited,
			"paid", acc.TotalPaid,
		)
	}
}
