package dispute

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

// Advisory scheduling windows consumed by the workflow orchestrator;
// the engine owns no timers.
const (
	ResponseWindow  = 7 * 24 * time.Hour
	MediationWindow = 3 * 24 * time.Hour
)

// Common errors
var (
	ErrSameParty       = errors.New("submitter and respondent cannot be the same party")
	ErrAlreadyResolved = errors.New("dispute is already resolved")
	ErrUnknownParty    = errors.New("prevailing party must be the submitter or the respondent")
)

// Dispute contests a payment under an escrow. While SUBMITTED or MEDIATION,
// the disputed amount is excluded from the escrow's available balance.
type Dispute struct {
	ID                uuid.UUID            `json:"id"`
	EscrowID          uuid.UUID            `json:"escrow_id"`
	PaymentUnitID     *uuid.UUID           `json:"payment_unit_id,omitempty"`
	DisputeAmount     int64                `json:"dispute_amount"` // Minor units
	SubmittedBy       uuid.UUID            `json:"submitted_by"`
	RespondentID      uuid.UUID            `json:"respondent_id"`
	Status            shared.DisputeStatus `json:"status"`
	Mediator          string               `json:"mediator,omitempty"`
	MediationDate     *time.Time           `json:"mediation_date,omitempty"`
	Resolution        string               `json:"resolution,omitempty"`
	ResolutionAmount  int64                `json:"resolution_amount"`
	ResolvedBy        string               `json:"resolved_by,omitempty"`
	ResponseDeadline  time.Time            `json:"response_deadline"`
	SettlementPending bool                 `json:"settlement_pending"`
	Version           int                  `json:"version"` // For optimistic locking
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// New opens a dispute in SUBMITTED with the standard response deadline
func New(escrowID uuid.UUID, paymentUnitID *uuid.UUID, disputeAmount int64, submittedBy, respondentID uuid.UUID) (*Dispute, error) {
	if disputeAmount <= 0 {
		return nil, shared.ErrInvalidAmount
	}
	if submittedBy == respondentID {
		return nil, ErrSameParty
	}

	now := time.Now()
	return &Dispute{
		ID:               uuid.New(),
		EscrowID:         escrowID,
		PaymentUnitID:    paymentUnitID,
		DisputeAmount:    disputeAmount,
		SubmittedBy:      submittedBy,
		RespondentID:     respondentID,
		Status:           shared.DisputeStatusSubmitted,
		ResponseDeadline: now.Add(ResponseWindow),
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// RequestMediation moves SUBMITTED -> MEDIATION and schedules the session
func (d *Dispute) RequestMediation(mediator string) error {
	if d.Status != shared.DisputeStatusSubmitted {
		return ErrInvalidDisputeTransition{DisputeID: d.ID, From: d.Status, To: shared.DisputeStatusMediation}
	}
	when := time.Now().Add(MediationWindow)
	d.Mediator = mediator
	d.MediationDate = &when
	d.Status = shared.DisputeStatusMediation
	d.touch()
	return nil
}

// Resolve terminates the dispute. The resolution decision is final even if
// the compensating settlement payment later fails.
func (d *Dispute) Resolve(resolution string, resolutionAmount int64, resolvedBy string) error {
	if d.Status == shared.DisputeStatusResolved {
		return ErrAlreadyResolved
	}
	if resolutionAmount < 0 {
		return shared.ErrInvalidAmount
	}
	d.Resolution = resolution
	d.ResolutionAmount = resolutionAmount
	d.ResolvedBy = resolvedBy
	d.Status = shared.DisputeStatusResolved
	d.touch()
	return nil
}

// FlagSettlementPending marks that the compensating payment needs manual
// follow-up; it does not reopen the dispute
func (d *Dispute) FlagSettlementPending() {
	d.SettlementPending = true
	d.touch()
}

// Open reports whether the dispute still freezes funds
func (d *Dispute) Open() bool {
	return d.Status == shared.DisputeStatusSubmitted || d.Status == shared.DisputeStatusMediation
}

func (d *Dispute) touch() {
	d.UpdatedAt = time.Now()
	d.Version++
}

// ErrInvalidDisputeTransition indicates an illegal dispute state move
type ErrInvalidDisputeTransition struct {
	DisputeID uuid.UUID
	From      shared.DisputeStatus
	To        shared.DisputeStatus
}

func (e ErrInvalidDisputeTransition) Error() string {
	return fmt.Sprintf("invalid dispute transition for %s: %s -> %s", e.DisputeID.String(), e.From, e.To)
}
