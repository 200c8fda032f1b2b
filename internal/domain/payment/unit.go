package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

// Common errors
var (
	ErrInvalidQualityScore  = errors.New("quality score must be between 0 and 100")
	ErrPhotosRequired       = errors.New("photo evidence is required for verification")
	ErrApprovalNotRequired  = errors.New("unit does not require approval")
	ErrInvalidPercentage    = errors.New("payment percentage must be between 1 and 100")
	ErrPercentageMismatch   = errors.New("milestone amount must equal percentage of total project value")
	ErrEmptyMilestoneName   = errors.New("milestone name cannot be empty")
	ErrUnitFrozen           = errors.New("payment unit is frozen by an open dispute")
	ErrNotFrozen            = errors.New("payment unit is not frozen")
	ErrFreezeNotAllowed     = errors.New("only verified or approved units can be frozen")
	ErrMissingTransactionID = errors.New("payment transaction id cannot be empty")
)

// Unit is a conditional payment released only on verified completion.
// TASK units pay a fixed amount for one deliverable; MILESTONE units pay a
// percentage of the contract value for a set of deliverables.
type Unit struct {
	ID           uuid.UUID         `json:"id"`
	EscrowID     uuid.UUID         `json:"escrow_id"`
	ContractorID uuid.UUID         `json:"contractor_id"`
	UnitType     shared.UnitType   `json:"unit_type"`
	Status       shared.UnitStatus `json:"status"`

	// PriorStatus holds the pre-freeze state while a dispute references
	// the unit, restored on resolution
	PriorStatus *shared.UnitStatus `json:"prior_status,omitempty"`

	PaymentAmount int64 `json:"payment_amount"` // Minor units

	// Task fields
	TaskID                 *uuid.UUID `json:"task_id,omitempty"`
	CompletionRequirements []string   `json:"completion_requirements,omitempty"`
	VerificationCriteria   []string   `json:"verification_criteria,omitempty"`
	ApprovalRequired       bool       `json:"approval_required"`
	PhotosRequired         bool       `json:"photos_required"`

	// Milestone fields
	MilestoneName     string     `json:"milestone_name,omitempty"`
	PaymentPercentage int        `json:"payment_percentage,omitempty"`
	Deliverables      []string   `json:"deliverables,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`

	QualityScore           *int       `json:"quality_score,omitempty"`
	VerificationNotes      string     `json:"verification_notes,omitempty"`
	PhotoRefs              []string   `json:"photo_refs,omitempty"`
	ApprovedBy             string     `json:"approved_by,omitempty"`
	PaidDate               *time.Time `json:"paid_date,omitempty"`
	PaymentTransactionID   string     `json:"payment_transaction_id,omitempty"`
	ExpectedCompletionDate *time.Time `json:"expected_completion_date,omitempty"`

	Version   int       `json:"version"` // For optimistic locking
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTaskUnit creates a task payment in PENDING
func NewTaskUnit(escrowID, contractorID, taskID uuid.UUID, paymentAmount int64, completionRequirements, verificationCriteria []string, approvalRequired, photosRequired bool, expectedCompletion *time.Time) (*Unit, error) {
	if paymentAmount <= 0 {
		return nil, shared.ErrInvalidAmount
	}

	now := time.Now()
	id := taskID
	return &Unit{
		ID:                     uuid.New(),
		EscrowID:               escrowID,
		ContractorID:           contractorID,
		UnitType:               shared.UnitTypeTask,
		Status:                 shared.UnitStatusPending,
		PaymentAmount:          paymentAmount,
		TaskID:                 &id,
		CompletionRequirements: completionRequirements,
		VerificationCriteria:   verificationCriteria,
		ApprovalRequired:       approvalRequired,
		PhotosRequired:         photosRequired,
		ExpectedCompletionDate: expectedCompletion,
		Version:                1,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

// NewMilestoneUnit creates a milestone payment in PENDING. The amount must
// equal the given percentage of the contract value at creation time.
func NewMilestoneUnit(escrowID, contractorID uuid.UUID, milestoneName string, paymentAmount int64, paymentPercentage int, totalProjectValue int64, deliverables []string, dueDate *time.Time, approvalRequired bool) (*Unit, error) {
	if milestoneName == "" {
		return nil, ErrEmptyMilestoneName
	}
	if paymentAmount <= 0 {
		return nil, shared.ErrInvalidAmount
	}
	if paymentPercentage <= 0 || paymentPercentage > 100 {
		return nil, ErrInvalidPercentage
	}
	if paymentAmount != totalProjectValue*int64(paymentPercentage)/100 {
		return nil, ErrPercentageMismatch
	}

	now := time.Now()
	return &Unit{
		ID:                     uuid.New(),
		EscrowID:               escrowID,
		ContractorID:           contractorID,
		UnitType:               shared.UnitTypeMilestone,
		Status:                 shared.UnitStatusPending,
		PaymentAmount:          paymentAmount,
		MilestoneName:          milestoneName,
		PaymentPercentage:      paymentPercentage,
		Deliverables:           deliverables,
		DueDate:                dueDate,
		ApprovalRequired:       approvalRequired,
		ExpectedCompletionDate: dueDate,
		Version:                1,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

// Verify records completion evidence and moves PENDING -> VERIFIED
func (u *Unit) Verify(qualityScore int, photoRefs []string, notes string) error {
	if u.Status != shared.UnitStatusPending {
		return ErrInvalidStateTransition{UnitID: u.ID, From: u.Status, To: shared.UnitStatusVerified}
	}
	if qualityScore < 0 || qualityScore > 100 {
		return ErrInvalidQualityScore
	}
	if u.PhotosRequired && len(photoRefs) == 0 {
		return ErrPhotosRequired
	}

	score := qualityScore
	u.QualityScore = &score
	u.PhotoRefs = photoRefs
	u.VerificationNotes = notes
	u.Status = shared.UnitStatusVerified
	u.touch()
	return nil
}

// Approve moves VERIFIED -> APPROVED; only valid when approval is required
func (u *Unit) Approve(approvedBy string) error {
	if !u.ApprovalRequired {
		return ErrApprovalNotRequired
	}
	if u.Status != shared.UnitStatusVerified {
		return ErrInvalidStateTransition{UnitID: u.ID, From: u.Status, To: shared.UnitStatusApproved}
	}
	u.ApprovedBy = approvedBy
	u.Status = shared.UnitStatusApproved
	u.touch()
	return nil
}

// ReadyForPayment reports whether the unit is in a payable state
func (u *Unit) ReadyForPayment() bool {
	if u.Status == shared.UnitStatusApproved {
		return true
	}
	return u.Status == shared.UnitStatusVerified && !u.ApprovalRequired
}

// MarkPaid transitions into the terminal PAID state exactly once
func (u *Unit) MarkPaid(paymentTransactionID string) error {
	if u.Status == shared.UnitStatusPaid {
		return ErrAlreadyPaid{UnitID: u.ID}
	}
	if u.Status == shared.UnitStatusFrozen {
		return ErrUnitFrozen
	}
	if !u.ReadyForPayment() {
		return ErrInvalidStateTransition{UnitID: u.ID, From: u.Status, To: shared.UnitStatusPaid}
	}
	if paymentTransactionID == "" {
		return ErrMissingTransactionID
	}

	now := time.Now()
	u.PaymentTransactionID = paymentTransactionID
	u.PaidDate = &now
	u.Status = shared.UnitStatusPaid
	u.touch()
	return nil
}

// Freeze parks a VERIFIED or APPROVED unit while a dispute references it
func (u *Unit) Freeze() error {
	if u.Status != shared.UnitStatusVerified && u.Status != shared.UnitStatusApproved {
		return ErrFreezeNotAllowed
	}
	prior := u.Status
	u.PriorStatus = &prior
	u.Status = shared.UnitStatusFrozen
	u.touch()
	return nil
}

// Unfreeze restores the pre-freeze state on dispute resolution
func (u *Unit) Unfreeze() error {
	if u.Status != shared.UnitStatusFrozen || u.PriorStatus == nil {
		return ErrNotFrozen
	}
	u.Status = *u.PriorStatus
	u.PriorStatus = nil
	u.touch()
	return nil
}

// Rescale adjusts the payment amount proportionally to a contract value
// change and shifts the expected completion date. Terminal units are never
// rescaled; the caller filters them out.
func (u *Unit) Rescale(newTotalValue, oldTotalValue int64, scheduleImpactDays int) {
	u.PaymentAmount = u.PaymentAmount * newTotalValue / oldTotalValue
	if u.ExpectedCompletionDate != nil {
		shifted := u.ExpectedCompletionDate.AddDate(0, 0, scheduleImpactDays)
		u.ExpectedCompletionDate = &shifted
	}
	if u.UnitType == shared.UnitTypeMilestone && u.DueDate != nil {
		shifted := u.DueDate.AddDate(0, 0, scheduleImpactDays)
		u.DueDate = &shifted
	}
	u.touch()
}

// ClampAmount bounds the payment amount at max. A shrinking change order can
// leave less unallocated escrow than the proportional rescale claims; the
// unit's amount never exceeds what the escrow can still allocate.
func (u *Unit) ClampAmount(max int64) {
	if max < 0 {
		max = 0
	}
	if u.PaymentAmount > max {
		u.PaymentAmount = max
		u.touch()
	}
}

func (u *Unit) touch() {
	u.UpdatedAt = time.Now()
	u.Version++
}

// ErrAlreadyPaid signals an attempt to pay a terminal unit again.
// Non-retryable: the caller already holds the original transaction id.
type ErrAlreadyPaid struct {
	UnitID uuid.UUID
}

func (e ErrAlreadyPaid) Error() string {
	return "payment unit already paid: " + e.UnitID.String()
}

// Is matches any ErrAlreadyPaid when the target carries a nil id
func (e ErrAlreadyPaid) Is(target error) bool {
	t, ok := target.(ErrAlreadyPaid)
	if !ok {
		return false
	}
	return t.UnitID == uuid.Nil || e.UnitID == t.UnitID
}

// ErrInvalidStateTransition signals an illegal state machine move
type ErrInvalidStateTransition struct {
	UnitID uuid.UUID
	From   shared.UnitStatus
	To     shared.UnitStatus
}

func (e ErrInvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid payment unit transition for %s: %s -> %s", e.UnitID.String(), e.From, e.To)
}

// Is matches any ErrInvalidStateTransition when the target carries a nil id
func (e ErrInvalidStateTransition) Is(target error) bool {
	t, ok := target.(ErrInvalidStateTransition)
	if !ok {
		return false
	}
	return t.UnitID == uuid.Nil || e.UnitID == t.UnitID
}
