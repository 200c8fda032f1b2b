package escrow

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

// Common errors
var (
	ErrInvalidRetention     = errors.New("retention percentage must be between 0 and 100")
	ErrInvalidProjectValue  = errors.New("total project value must be positive")
	ErrEscrowClosed         = errors.New("escrow account is closed")
	ErrNotCompleted         = errors.New("escrow must be COMPLETED first")
	ErrRetentionNotReleased = errors.New("retention must be released before closing")
	ErrRetentionReleased    = errors.New("retention already released")
)

// Account holds one project's client funds until release conditions are met.
// The balance invariant EscrowBalance == TotalDeposited - TotalPaid is
// maintained by the Deposit/Release methods and never written around.
type Account struct {
	ID                  uuid.UUID           `json:"id"`
	ProjectID           uuid.UUID           `json:"project_id"`
	ClientID            uuid.UUID           `json:"client_id"`
	ContractorID        uuid.UUID           `json:"contractor_id"`
	TotalProjectValue   int64               `json:"total_project_value"` // Minor units
	EscrowBalance       int64               `json:"escrow_balance"`
	TotalDeposited      int64               `json:"total_deposited"`
	TotalPaid           int64               `json:"total_paid"`
	RetentionPercentage int                 `json:"retention_percentage"` // 0-100
	RetentionAmount     int64               `json:"retention_amount"`     // Derived from value and percentage
	RetentionReleased   bool                `json:"retention_released"`
	Status              shared.EscrowStatus `json:"status"`
	ProcessorAccountID  string              `json:"processor_account_id"`
	Version             int                 `json:"version"` // For optimistic locking
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// NewAccount creates an escrow account for a project. The processor account
// handle is attached by the caller once the external account is open.
func NewAccount(projectID uuid.UUID, totalProjectValue int64, retentionPercentage int, clientID, contractorID uuid.UUID) (*Account, error) {
	if totalProjectValue <= 0 {
		return nil, ErrInvalidProjectValue
	}
	if retentionPercentage < 0 || retentionPercentage > 100 {
		return nil, ErrInvalidRetention
	}

	now := time.Now()
	return &Account{
		ID:                  uuid.New(),
		ProjectID:           projectID,
		ClientID:            clientID,
		ContractorID:        contractorID,
		TotalProjectValue:   totalProjectValue,
		RetentionPercentage: retentionPercentage,
		RetentionAmount:     retentionAmount(totalProjectValue, retentionPercentage),
		Status:              shared.EscrowStatusCreated,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

func retentionAmount(totalProjectValue int64, retentionPercentage int) int64 {
	return totalProjectValue * int64(retentionPercentage) / 100
}

// Deposit records funds arriving into escrow and advances the funding status
func (a *Account) Deposit(amount int64) error {
	if amount <= 0 {
		return shared.ErrInvalidAmount
	}
	if a.Status == shared.EscrowStatusClosed {
		return ErrEscrowClosed
	}

	a.TotalDeposited += amount
	a.EscrowBalance += amount
	if a.Status == shared.EscrowStatusCreated {
		a.Status = shared.EscrowStatusActive
	}
	if a.Status == shared.EscrowStatusActive && a.EscrowBalance >= a.TotalProjectValue {
		a.Status = shared.EscrowStatusFunded
	}
	a.touch()
	return nil
}

// Release moves funds out of escrow to a recipient. availableBalance is the
// escrow balance net of amounts frozen by open disputes; the caller computes
// it under the same row lock as this update.
func (a *Account) Release(amount, availableBalance int64) error {
	if amount <= 0 {
		return shared.ErrInvalidAmount
	}
	if a.Status == shared.EscrowStatusClosed {
		return ErrEscrowClosed
	}
	if amount > availableBalance {
		return ErrInsufficientEscrowBalance{
			EscrowID:  a.ID,
			Requested: amount,
			Available: availableBalance,
		}
	}

	a.EscrowBalance -= amount
	a.TotalPaid += amount
	a.touch()
	return nil
}

// MarkCompleted is driven by the workflow orchestrator when it decides the
// project is done; the engine never infers completion itself.
func (a *Account) MarkCompleted() error {
	if a.Status != shared.EscrowStatusActive && a.Status != shared.EscrowStatusFunded {
		return ErrInvalidStatusTransition{From: a.Status, To: shared.EscrowStatusCompleted}
	}
	a.Status = shared.EscrowStatusCompleted
	a.touch()
	return nil
}

// MarkRetentionReleased records that the withheld retention has been paid out
func (a *Account) MarkRetentionReleased() error {
	if a.Status != shared.EscrowStatusCompleted {
		return ErrNotCompleted
	}
	if a.RetentionReleased {
		return ErrRetentionReleased
	}
	a.RetentionReleased = true
	a.touch()
	return nil
}

// Close is only legal after completion and retention release
func (a *Account) Close() error {
	if a.Status != shared.EscrowStatusCompleted {
		return ErrNotCompleted
	}
	if !a.RetentionReleased {
		return ErrRetentionNotReleased
	}
	a.Status = shared.EscrowStatusClosed
	a.touch()
	return nil
}

// ApplyValueChange adjusts the contract value and derived retention for a
// change order. The caller validates the new total beforehand.
func (a *Account) ApplyValueChange(amountChange int64) {
	a.TotalProjectValue += amountChange
	a.RetentionAmount = retentionAmount(a.TotalProjectValue, a.RetentionPercentage)
	if a.Status == shared.EscrowStatusFunded && a.EscrowBalance < a.TotalProjectValue {
		a.Status = shared.EscrowStatusActive
	} else if a.Status == shared.EscrowStatusActive && a.EscrowBalance >= a.TotalProjectValue {
		a.Status = shared.EscrowStatusFunded
	}
	a.touch()
}

// BalanceInvariantHolds reports whether the core balance identity holds
func (a *Account) BalanceInvariantHolds() bool {
	return a.EscrowBalance == a.TotalDeposited-a.TotalPaid && a.EscrowBalance >= 0
}

func (a *Account) touch() {
	a.UpdatedAt = time.Now()
	a.Version++
}
