package service

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/domain/ledger"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type escrowServiceMocks struct {
	escrowRepo *MockEscrowRepo
	ledgerRepo *MockLedgerRepo
	funds      *MockFundsManager
	events     *MockEventRecorder
	processor  *MockProcessorClient
}

func newEscrowService(t *testing.T) (EscrowService, *escrowServiceMocks) {
	t.Helper()
	m := &escrowServiceMocks{
		escrowRepo: &MockEscrowRepo{},
		ledgerRepo: &MockLedgerRepo{},
		funds:      &MockFundsManager{},
		events:     &MockEventRecorder{},
		processor:  &MockProcessorClient{},
	}
	svc := NewEscrowService(m.escrowRepo, m.ledgerRepo, m.funds, m.events, m.processor, stubTxManager{}, slog.Default())
	return svc, m
}

func TestEscrowService_CreateEscrow(t *testing.T) {
	ctx := context.Background()

	t.Run("successful creation", func(t *testing.T) {
		svc, m := newEscrowService(t)

		projectID := uuid.New()
		clientID := uuid.New()
		contractorID := uuid.New()

		m.escrowRepo.On("GetByProjectID", mock.Anything, projectID).Return(nil, nil)
		m.processor.On("OpenAccount", mock.Anything, projectID, clientID, contractorID).Return("proc-acc-7", nil)
		m.escrowRepo.On("WithTx", mock.Anything).Return(m.escrowRepo)
		m.escrowRepo.On("Create", mock.Anything, mock.MatchedBy(func(a *escrow.Account) bool {
			return a.ProjectID == projectID && a.ProcessorAccountID == "proc-acc-7" && a.RetentionAmount == 1000000
		})).Return(nil)
		m.events.On("Record", mock.Anything, mock.Anything, mock.MatchedBy(func(e *shared.EscrowEvent) bool {
			return e.Type == shared.EventEscrowCreated && e.Amount == 10000000
		})).Return(nil)

		acc, err := svc.CreateEscrow(ctx, projectID, 10000000, 10, clientID, contractorID, "corr-1")

		require.NoError(t, err)
		assert.Equal(t, shared.EscrowStatusCreated, acc.Status)
		m.escrowRepo.AssertExpectations(t)
		m.events.AssertExpectations(t)
	})

	t.Run("existing escrow returned unchanged", func(t *testing.T) {
		svc, m := newEscrowService(t)

		existing := fundedAccount(t, 0)
		m.escrowRepo.On("GetByProjectID", mock.Anything, existing.ProjectID).Return(existing, nil)

		acc, err := svc.CreateEscrow(ctx, existing.ProjectID, 9999, 5, uuid.New(), uuid.New(), "")

		require.NoError(t, err)
		assert.Same(t, existing, acc)
		m.processor.AssertNotCalled(t, "OpenAccount", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("processor failure aborts creation", func(t *testing.T) {
		svc, m := newEscrowService(t)

		projectID := uuid.New()
		m.escrowRepo.On("GetByProjectID", mock.Anything, projectID).Return(nil, nil)
		m.processor.On("OpenAccount", mock.Anything, projectID, mock.Anything, mock.Anything).Return("", &processorError{})

		_, err := svc.CreateEscrow(ctx, projectID, 10000000, 10, uuid.New(), uuid.New(), "")

		assert.Error(t, err)
		m.escrowRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestEscrowService_FundEscrow(t *testing.T) {
	ctx := context.Background()

	t.Run("successful funding to full", func(t *testing.T) {
		svc, m := newEscrowService(t)

		acc := fundedAccount(t, 0)
		acc.ProcessorAccountID = "proc-acc-1"

		funded := fundedAccount(t, 0)
		require.NoError(t, funded.Deposit(1000000))
		require.Equal(t, shared.EscrowStatusFunded, funded.Status)
		entry, err := ledger.NewDeposit(funded.ID, funded.ClientID, 1000000, "WIRE", "ext-txn-4", "")
		require.NoError(t, err)

		m.escrowRepo.On("GetByID", mock.Anything, acc.ID).Return(acc, nil)
		m.processor.On("Deposit", mock.Anything, "proc-acc-1", int64(1000000), "WIRE", mock.Anything).Return("ext-txn-4", nil)
		m.funds.On("DepositWithinTx", mock.Anything, mock.Anything, acc.ID, int64(1000000), "WIRE", "ext-txn-4", "").Return(funded, entry, nil)
		m.events.On("Record", mock.Anything, mock.Anything, mock.MatchedBy(func(e *shared.EscrowEvent) bool {
			return e.Type == shared.EventEscrowFunded
		})).Return(nil)

		updated, returnedEntry, err := svc.FundEscrow(ctx, acc.ID, 1000000, "WIRE", "")

		require.NoError(t, err)
		assert.Equal(t, shared.EscrowStatusFunded, updated.Status)
		assert.Equal(t, int64(1000000), returnedEntry.Amount)
		m.events.AssertExpectations(t)
	})

	t.Run("partial funding emits deposit event", func(t *testing.T) {
		svc, m := newEscrowService(t)

		acc := fundedAccount(t, 0)
		partial := fundedAccount(t, 400000)
		entry, err := ledger.NewDeposit(partial.ID, partial.ClientID, 400000, "ACH", "ext-txn-5", "")
		require.NoError(t, err)

		m.escrowRepo.On("GetByID", mock.Anything, acc.ID).Return(acc, nil)
		m.processor.On("Deposit", mock.Anything, mock.Anything, int64(400000), "ACH", mock.Anything).Return("ext-txn-5", nil)
		m.funds.On("DepositWithinTx", mock.Anything, mock.Anything, acc.ID, int64(400000), "ACH", "ext-txn-5", "").Return(partial, entry, nil)
		m.events.On("Record", mock.Anything, mock.Anything, mock.MatchedBy(func(e *shared.EscrowEvent) bool {
			return e.Type == shared.EventDepositReceived && e.Amount == 400000
		})).Return(nil)

		updated, _, err := svc.FundEscrow(ctx, acc.ID, 400000, "ACH", "")

		require.NoError(t, err)
		assert.Equal(t, shared.EscrowStatusActive, updated.Status)
		m.events.AssertExpectations(t)
	})

	t.Run("non positive amount", func(t *testing.T) {
		svc, _ := newEscrowService(t)
		_, _, err := svc.FundEscrow(ctx, uuid.New(), 0, "ACH", "")
		assert.ErrorIs(t, err, shared.ErrInvalidAmount)
	})

	t.Run("closed escrow", func(t *testing.T) {
		svc, m := newEscrowService(t)

		acc := fundedAccount(t, 0)
		acc.Status = shared.EscrowStatusClosed
		m.escrowRepo.On("GetByID", mock.Anything, acc.ID).Return(acc, nil)

		_, _, err := svc.FundEscrow(ctx, acc.ID, 100, "ACH", "")

		assert.ErrorIs(t, err, escrow.ErrEscrowClosed)
		m.processor.AssertNotCalled(t, "Deposit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestEscrowService_ReleaseRetention(t *testing.T) {
	ctx := context.Background()

	t.Run("requires completion", func(t *testing.T) {
		svc, m := newEscrowService(t)

		acc := fundedAccount(t, 500000)
		m.escrowRepo.On("GetByID", mock.Anything, acc.ID).Return(acc, nil)

		_, err := svc.ReleaseRetention(ctx, acc.ID, "")

		assert.ErrorIs(t, err, escrow.ErrNotCompleted)
	})

	t.Run("duplicate retention release blocked", func(t *testing.T) {
		svc, m := newEscrowService(t)

		acc := fundedAccount(t, 1000000)
		require.NoError(t, acc.MarkCompleted())
		existing, err := ledger.NewRelease(acc.ID, acc.ContractorID, acc.RetentionAmount, shared.PaymentTypeRetentionRelease, "ext-prev", "retention:"+acc.ID.String(), "")
		require.NoError(t, err)

		m.escrowRepo.On("GetByID", mock.Anything, acc.ID).Return(acc, nil)
		m.ledgerRepo.On("GetByIdempotencyKey", mock.Anything, "retention:"+acc.ID.String()).Return(existing, nil)

		_, err = svc.ReleaseRetention(ctx, acc.ID, "")

		assert.ErrorIs(t, err, ledger.ErrDuplicateRelease{IdempotencyKey: "retention:" + acc.ID.String()})
		m.processor.AssertNotCalled(t, "Withdraw", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("dispute freeze blocks retention withdrawal", func(t *testing.T) {
		svc, m := newEscrowService(t)

		acc := fundedAccount(t, 1000000)
		acc.ProcessorAccountID = "proc-acc-2"
		require.NoError(t, acc.MarkCompleted())
		idempotencyKey := "retention:" + acc.ID.String()

		m.escrowRepo.On("GetByID", mock.Anything, acc.ID).Return(acc, nil)
		m.ledgerRepo.On("GetByIdempotencyKey", mock.Anything, idempotencyKey).Return(nil, nil)
		m.funds.On("AvailableBalance", mock.Anything, acc.ID).Return(int64(40000), nil)

		_, err := svc.ReleaseRetention(ctx, acc.ID, "")

		var insufficientErr escrow.ErrInsufficientEscrowBalance
		require.ErrorAs(t, err, &insufficientErr)
		assert.Equal(t, acc.RetentionAmount, insufficientErr.Requested)
		assert.Equal(t, int64(40000), insufficientErr.Available)
		m.processor.AssertNotCalled(t, "Withdraw", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("successful retention release", func(t *testing.T) {
		svc, m := newEscrowService(t)

		acc := fundedAccount(t, 1000000)
		acc.ProcessorAccountID = "proc-acc-2"
		require.NoError(t, acc.MarkCompleted())
		idempotencyKey := "retention:" + acc.ID.String()

		released := fundedAccount(t, 1000000)
		require.NoError(t, released.MarkCompleted())
		require.NoError(t, released.Release(released.RetentionAmount, released.EscrowBalance))
		entry, err := ledger.NewRelease(released.ID, released.ContractorID, 100000, shared.PaymentTypeRetentionRelease, "ext-txn-6", idempotencyKey, "")
		require.NoError(t, err)

		m.escrowRepo.On("GetByID", mock.Anything, acc.ID).Return(acc, nil)
		m.ledgerRepo.On("GetByIdempotencyKey", mock.Anything, idempotencyKey).Return(nil, nil)
		m.funds.On("AvailableBalance", mock.Anything, acc.ID).Return(int64(1000000), nil)
		m.processor.On("Withdraw", mock.Anything, "proc-acc-2", acc.ContractorID, acc.RetentionAmount, idempotencyKey).Return("ext-txn-6", nil)
		m.escrowRepo.On("WithTx", mock.Anything).Return(m.escrowRepo)
		m.funds.On("ReleaseWithinTx", mock.Anything, mock.Anything, acc.ID, acc.ContractorID, acc.RetentionAmount, shared.PaymentTypeRetentionRelease, "ext-txn-6", idempotencyKey, "").Return(released, entry, nil)
		m.escrowRepo.On("Update", mock.Anything, mock.MatchedBy(func(a *escrow.Account) bool {
			return a.RetentionReleased
		})).Return(nil)
		m.events.On("Record", mock.Anything, mock.Anything, mock.MatchedBy(func(e *shared.EscrowEvent) bool {
			return e.Type == shared.EventRetentionReleased && e.Amount == acc.RetentionAmount
		})).Return(nil)

		updated, err := svc.ReleaseRetention(ctx, acc.ID, "")

		require.NoError(t, err)
		assert.True(t, updated.RetentionReleased)
		m.funds.AssertExpectations(t)
		m.events.AssertExpectations(t)
	})
}

func TestEscrowService_GetLedger(t *testing.T) {
	ctx := context.Background()
	svc, m := newEscrowService(t)

	acc := fundedAccount(t, 500000)
	entry, err := ledger.NewDeposit(acc.ID, acc.ClientID, 500000, "ACH", "ext", "")
	require.NoError(t, err)

	m.escrowRepo.On("GetByID", mock.Anything, acc.ID).Return(acc, nil)
	m.ledgerRepo.On("GetByEscrowID", mock.Anything, acc.ID, 20, 20).Return([]*ledger.Entry{entry}, nil)
	m.ledgerRepo.On("CountByEscrowID", mock.Anything, acc.ID).Return(int64(21), nil)

	entries, total, err := svc.GetLedger(ctx, acc.ID, 2, 20)

	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(21), total)
	m.ledgerRepo.AssertExpectations(t)
}
