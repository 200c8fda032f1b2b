package shared

import "errors"

var (
	ErrInvalidPaymentType = errors.New("invalid payment type")
	ErrInvalidAmount      = errors.New("amount must be positive")
)

// PaymentType classifies a fund movement in the ledger
type PaymentType string

const (
	PaymentTypeDeposit          PaymentType = "DEPOSIT"
	PaymentTypeTaskCompletion   PaymentType = "TASK_COMPLETION"
	PaymentTypeMilestone        PaymentType = "MILESTONE"
	PaymentTypeRetentionRelease PaymentType = "RETENTION_RELEASE"
	PaymentTypeRefund           PaymentType = "REFUND"
)

// IsRelease reports whether the payment type moves money out of escrow
func (t PaymentType) IsRelease() bool {
	switch t {
	case PaymentTypeTaskCompletion, PaymentTypeMilestone, PaymentTypeRetentionRelease, PaymentTypeRefund:
		return true
	}
	return false
}

// EntryStatus defines ledger entry processing states
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusCompleted EntryStatus = "COMPLETED"
	EntryStatusFailed    EntryStatus = "FAILED"
)

// EscrowStatus defines escrow account lifecycle states
type EscrowStatus string

const (
	EscrowStatusCreated   EscrowStatus = "CREATED"
	EscrowStatusActive    EscrowStatus = "ACTIVE"
	EscrowStatusFunded    EscrowStatus = "FUNDED"
	EscrowStatusCompleted EscrowStatus = "COMPLETED"
	EscrowStatusClosed    EscrowStatus = "CLOSED"
)

// UnitType discriminates the two conditional payment variants
type UnitType string

const (
	UnitTypeTask      UnitType = "TASK"
	UnitTypeMilestone UnitType = "MILESTONE"
)

// UnitStatus defines conditional payment unit states
type UnitStatus string

const (
	UnitStatusPending  UnitStatus = "PENDING"
	UnitStatusVerified UnitStatus = "VERIFIED"
	UnitStatusApproved UnitStatus = "APPROVED"
	UnitStatusPaid     UnitStatus = "PAID"
	UnitStatusFrozen   UnitStatus = "FROZEN"
)

// DisputeStatus defines payment dispute states
type DisputeStatus string

const (
	DisputeStatusSubmitted DisputeStatus = "SUBMITTED"
	DisputeStatusMediation DisputeStatus = "MEDIATION"
	DisputeStatusResolved  DisputeStatus = "RESOLVED"
)

// OutboxStatus defines event publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)
