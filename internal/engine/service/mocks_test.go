package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/changeorder"
	"github.com/projectpay-escrow-engine/internal/domain/dispute"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/domain/ledger"
	"github.com/projectpay-escrow-engine/internal/domain/payment"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// stubTxManager runs the callback directly with a nil transaction so service
// tests exercise the transactional flow without a database
type stubTxManager struct{}

func (stubTxManager) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

type MockEscrowRepo struct {
	mock.Mock
}

func (m *MockEscrowRepo) Create(ctx context.Context, acc *escrow.Account) error {
	args := m.Called(ctx, acc)
	return args.Error(0)
}

func (m *MockEscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Account), args.Error(1)
}

func (m *MockEscrowRepo) GetByProjectID(ctx context.Context, projectID uuid.UUID) (*escrow.Account, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Account), args.Error(1)
}

func (m *MockEscrowRepo) ListByParty(ctx context.Context, partyID uuid.UUID) ([]*escrow.Account, error) {
	args := m.Called(ctx, partyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*escrow.Account), args.Error(1)
}

func (m *MockEscrowRepo) Update(ctx context.Context, acc *escrow.Account) error {
	args := m.Called(ctx, acc)
	return args.Error(0)
}

func (m *MockEscrowRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*escrow.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Account), args.Error(1)
}

func (m *MockEscrowRepo) WithTx(tx pgx.Tx) escrow.Repository {
	args := m.Called(tx)
	return args.Get(0).(escrow.Repository)
}

type MockLedgerRepo struct {
	mock.Mock
}

func (m *MockLedgerRepo) Append(ctx context.Context, entry *ledger.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepo) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*ledger.Entry, error) {
	args := m.Called(ctx, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepo) GetByEscrowID(ctx context.Context, escrowID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	args := m.Called(ctx, escrowID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepo) CountByEscrowID(ctx context.Context, escrowID uuid.UUID) (int64, error) {
	args := m.Called(ctx, escrowID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepo) SumCompleted(ctx context.Context, escrowID uuid.UUID, paymentType *shared.PaymentType) (int64, error) {
	args := m.Called(ctx, escrowID, paymentType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepo) WithTx(tx pgx.Tx) ledger.Repository {
	args := m.Called(tx)
	return args.Get(0).(ledger.Repository)
}

type MockPaymentRepo struct {
	mock.Mock
}

func (m *MockPaymentRepo) Create(ctx context.Context, unit *payment.Unit) error {
	args := m.Called(ctx, unit)
	return args.Error(0)
}

func (m *MockPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*payment.Unit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Unit), args.Error(1)
}

func (m *MockPaymentRepo) GetByEscrowID(ctx context.Context, escrowID uuid.UUID) ([]*payment.Unit, error) {
	args := m.Called(ctx, escrowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*payment.Unit), args.Error(1)
}

func (m *MockPaymentRepo) ListNonTerminal(ctx context.Context, escrowID uuid.UUID) ([]*payment.Unit, error) {
	args := m.Called(ctx, escrowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*payment.Unit), args.Error(1)
}

func (m *MockPaymentRepo) Update(ctx context.Context, unit *payment.Unit) error {
	args := m.Called(ctx, unit)
	return args.Error(0)
}

func (m *MockPaymentRepo) WithTx(tx pgx.Tx) payment.Repository {
	args := m.Called(tx)
	return args.Get(0).(payment.Repository)
}

type MockDisputeRepo struct {
	mock.Mock
}

func (m *MockDisputeRepo) Create(ctx context.Context, d *dispute.Dispute) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*dispute.Dispute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispute.Dispute), args.Error(1)
}

func (m *MockDisputeRepo) ListByEscrowID(ctx context.Context, escrowID uuid.UUID) ([]*dispute.Dispute, error) {
	args := m.Called(ctx, escrowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dispute.Dispute), args.Error(1)
}

func (m *MockDisputeRepo) OpenAmount(ctx context.Context, escrowID uuid.UUID) (int64, error) {
	args := m.Called(ctx, escrowID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDisputeRepo) CountOpenByParty(ctx context.Context, partyID uuid.UUID) (int64, error) {
	args := m.Called(ctx, partyID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDisputeRepo) Update(ctx context.Context, d *dispute.Dispute) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDisputeRepo) WithTx(tx pgx.Tx) dispute.Repository {
	args := m.Called(tx)
	return args.Get(0).(dispute.Repository)
}

type MockChangeOrderRepo struct {
	mock.Mock
}

func (m *MockChangeOrderRepo) Create(ctx context.Context, co *changeorder.ChangeOrder) error {
	args := m.Called(ctx, co)
	return args.Error(0)
}

func (m *MockChangeOrderRepo) ListByEscrowID(ctx context.Context, escrowID uuid.UUID) ([]*changeorder.ChangeOrder, error) {
	args := m.Called(ctx, escrowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*changeorder.ChangeOrder), args.Error(1)
}

func (m *MockChangeOrderRepo) NextNumber(ctx context.Context, escrowID uuid.UUID) (int, error) {
	args := m.Called(ctx, escrowID)
	return args.Int(0), args.Error(1)
}

func (m *MockChangeOrderRepo) WithTx(tx pgx.Tx) changeorder.Repository {
	args := m.Called(tx)
	return args.Get(0).(changeorder.Repository)
}

type MockFundsManager struct {
	mock.Mock
}

func (m *MockFundsManager) DepositWithinTx(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, amount int64, method, externalTransactionID, correlationID string) (*escrow.Account, *ledger.Entry, error) {
	args := m.Called(ctx, tx, escrowID, amount, method, externalTransactionID, correlationID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*escrow.Account), args.Get(1).(*ledger.Entry), args.Error(2)
}

func (m *MockFundsManager) ReleaseWithinTx(ctx context.Context, tx pgx.Tx, escrowID, recipientID uuid.UUID, amount int64, paymentType shared.PaymentType, externalTransactionID, idempotencyKey, correlationID string) (*escrow.Account, *ledger.Entry, error) {
	args := m.Called(ctx, tx, escrowID, recipientID, amount, paymentType, externalTransactionID, idempotencyKey, correlationID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*escrow.Account), args.Get(1).(*ledger.Entry), args.Error(2)
}

func (m *MockFundsManager) AvailableBalance(ctx context.Context, escrowID uuid.UUID) (int64, error) {
	args := m.Called(ctx, escrowID)
	return args.Get(0).(int64), args.Error(1)
}

type MockEventRecorder struct {
	mock.Mock
}

func (m *MockEventRecorder) Record(ctx context.Context, tx pgx.Tx, event *shared.EscrowEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

type MockProcessorClient struct {
	mock.Mock
}

func (m *MockProcessorClient) OpenAccount(ctx context.Context, projectID, clientID, contractorID uuid.UUID) (string, error) {
	args := m.Called(ctx, projectID, clientID, contractorID)
	return args.String(0), args.Error(1)
}

func (m *MockProcessorClient) Deposit(ctx context.Context, accountHandle string, amount int64, method, idempotencyKey string) (string, error) {
	args := m.Called(ctx, accountHandle, amount, method, idempotencyKey)
	return args.String(0), args.Error(1)
}

func (m *MockProcessorClient) Withdraw(ctx context.Context, accountHandle string, recipientID uuid.UUID, amount int64, idempotencyKey string) (string, error) {
	args := m.Called(ctx, accountHandle, recipientID, amount, idempotencyKey)
	return args.String(0), args.Error(1)
}
