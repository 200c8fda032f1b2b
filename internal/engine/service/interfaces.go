// Package service implements the escrow engine's business operations:
// escrow lifecycle, conditional payments, change orders, disputes and the
// cash flow projection. Every fund movement runs the processor call first
// and then commits the ledger append, balance update and outbox event in a
// single database transaction.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/changeorder"
	"github.com/projectpay-escrow-engine/internal/domain/dispute"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/domain/ledger"
	"github.com/projectpay-escrow-engine/internal/domain/payment"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

// EscrowService defines escrow account lifecycle operations
type EscrowService interface {
	// CreateEscrow opens a processor-side account and records the escrow.
	// Returns the existing escrow unchanged when the project already has one.
	CreateEscrow(ctx context.Context, projectID uuid.UUID, totalProjectValue int64, retentionPercentage int, clientID, contractorID uuid.UUID, correlationID string) (*escrow.Account, error)

	// GetEscrow retrieves an escrow account by its ID
	// Returns ErrEscrowNotFound if the escrow doesn't exist
	GetEscrow(ctx context.Context, id uuid.UUID) (*escrow.Account, error)

	// GetEscrowByProject returns the project's escrow, or nil when none exists
	GetEscrowByProject(ctx context.Context, projectID uuid.UUID) (*escrow.Account, error)

	// FundEscrow deposits client funds through the processor and records
	// the ledger entry and balance change atomically
	FundEscrow(ctx context.Context, escrowID uuid.UUID, amount int64, method, correlationID string) (*escrow.Account, *ledger.Entry, error)

	// GetLedger retrieves a paginated ledger history for an escrow.
	// Returns entries, total count, and any error.
	GetLedger(ctx context.Context, escrowID uuid.UUID, page, perPage int) ([]*ledger.Entry, int64, error)

	// MarkCompleted records the orchestrator's project completion decision
	MarkCompleted(ctx context.Context, escrowID uuid.UUID, correlationID string) (*escrow.Account, error)

	// ReleaseRetention pays the withheld retention to the contractor.
	// Only legal once the escrow is COMPLETED.
	ReleaseRetention(ctx context.Context, escrowID uuid.UUID, correlationID string) (*escrow.Account, error)

	// CloseEscrow terminates the account after completion and retention release
	CloseEscrow(ctx context.Context, escrowID uuid.UUID, correlationID string) (*escrow.Account, error)
}

// CreateTaskPaymentParams carries the inputs for a task payment unit
type CreateTaskPaymentParams struct {
	EscrowID               uuid.UUID
	TaskID                 uuid.UUID
	PaymentAmount          int64
	CompletionRequirements []string
	VerificationCriteria   []string
	ApprovalRequired       bool
	PhotosRequired         bool
	ExpectedCompletionDate *time.Time
}

// CreateMilestonePaymentParams carries the inputs for a milestone payment unit
type CreateMilestonePaymentParams struct {
	EscrowID          uuid.UUID
	MilestoneName     string
	PaymentAmount     int64
	PaymentPercentage int
	Deliverables      []string
	DueDate           *time.Time
	ApprovalRequired  bool
}

// PaymentService defines conditional payment unit operations
type PaymentService interface {
	CreateTaskPayment(ctx context.Context, params CreateTaskPaymentParams) (*payment.Unit, error)
	CreateMilestonePayment(ctx context.Context, params CreateMilestonePaymentParams) (*payment.Unit, error)

	// GetPayment retrieves a payment unit by its ID
	GetPayment(ctx context.Context, id uuid.UUID) (*payment.Unit, error)

	// ListPayments returns all payment units under an escrow
	ListPayments(ctx context.Context, escrowID uuid.UUID) ([]*payment.Unit, error)

	// VerifyCompletion records completion evidence. When the unit needs no
	// separate approval the release follows immediately; a release failure
	// leaves the unit VERIFIED for retry.
	VerifyCompletion(ctx context.Context, unitID uuid.UUID, qualityScore int, photoRefs []string, notes, correlationID string) (*payment.Unit, error)

	// Approve records the client's approval and triggers the release.
	// A release failure leaves the unit APPROVED for retry.
	Approve(ctx context.Context, unitID uuid.UUID, approvedBy, correlationID string) (*payment.Unit, error)

	// Release retries the payout of a unit already in a payable state.
	// Returns ErrAlreadyPaid when the unit was paid before.
	Release(ctx context.Context, unitID uuid.UUID, correlationID string) (*payment.Unit, error)
}

// ChangeOrderService applies contract amendments
type ChangeOrderService interface {
	// Apply atomically adjusts the contract value, recomputes retention,
	// rescales non-terminal payment units and records the audit row
	Apply(ctx context.Context, escrowID uuid.UUID, amountChange int64, scheduleImpactDays int, reason, approvedBy, correlationID string) (*changeorder.ChangeOrder, error)

	// List returns an escrow's change orders in application order
	List(ctx context.Context, escrowID uuid.UUID) ([]*changeorder.ChangeOrder, error)
}

// DisputeService manages payment disputes and their fund freezes
type DisputeService interface {
	// Open files a dispute and freezes the disputed amount. A referenced
	// VERIFIED or APPROVED unit moves to FROZEN in the same transaction.
	Open(ctx context.Context, escrowID uuid.UUID, paymentUnitID *uuid.UUID, disputeAmount int64, submittedBy, respondentID uuid.UUID, correlationID string) (*dispute.Dispute, error)

	// Get retrieves a dispute by its ID
	Get(ctx context.Context, id uuid.UUID) (*dispute.Dispute, error)

	// List returns an escrow's disputes, newest first
	List(ctx context.Context, escrowID uuid.UUID) ([]*dispute.Dispute, error)

	// RequestMediation escalates a SUBMITTED dispute to MEDIATION
	RequestMediation(ctx context.Context, disputeID uuid.UUID, mediator, correlationID string) (*dispute.Dispute, error)

	// Resolve terminates the dispute, lifts the freeze and pays any
	// resolution amount to the prevailing party (the submitter when
	// prevailingPartyID is nil). A settlement payment failure flags the
	// dispute for follow-up without reopening it.
	Resolve(ctx context.Context, disputeID uuid.UUID, resolution string, resolutionAmount int64, prevailingPartyID uuid.UUID, resolvedBy, correlationID string) (*dispute.Dispute, error)
}

// ProjectionService computes forward-looking cash flow views
type ProjectionService interface {
	// GetDashboard projects expected inflows and outflows for a party over
	// the given horizon, with risk factors and a confidence score
	GetDashboard(ctx context.Context, partyID uuid.UUID, horizonDays int) (*CashFlowDashboard, error)
}

// FundsManager moves money on a locked escrow row inside a transaction.
// It is the single choke point enforcing the balance invariant and the
// dispute freeze.
type FundsManager interface {
	// DepositWithinTx locks the escrow, applies the deposit and appends the
	// ledger entry
	DepositWithinTx(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, amount int64, method, externalTransactionID, correlationID string) (*escrow.Account, *ledger.Entry, error)

	// ReleaseWithinTx locks the escrow, checks the requested amount against
	// the balance net of open dispute freezes, applies the release and
	// appends the ledger entry
	ReleaseWithinTx(ctx context.Context, tx pgx.Tx, escrowID, recipientID uuid.UUID, amount int64, paymentType shared.PaymentType, externalTransactionID, idempotencyKey, correlationID string) (*escrow.Account, *ledger.Entry, error)

	// AvailableBalance reports the escrow balance net of open dispute
	// freezes without taking the row lock. Callers use it to reject a
	// release before the processor moves external funds; the binding check
	// runs again inside ReleaseWithinTx under the lock.
	AvailableBalance(ctx context.Context, escrowID uuid.UUID) (int64, error)
}

// EventRecorder writes escrow events to the outbox inside the transaction
// that produced them
type EventRecorder interface {
	Record(ctx context.Context, tx pgx.Tx, event *shared.EscrowEvent) error
}
