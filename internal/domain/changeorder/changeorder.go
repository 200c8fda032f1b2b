package changeorder

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidChangeOrder = errors.New("change order would drive total project value negative")
	ErrZeroContractValue  = errors.New("cannot rescale against a zero contract value")
	ErrEmptyReason        = errors.New("change order reason cannot be empty")
)

// ChangeOrder is an append-only audit record of a contract amendment.
// Its effects (value change, retention recompute, unit rescale) are applied
// atomically by the change order processor and never re-applied.
type ChangeOrder struct {
	ID                 uuid.UUID `json:"id"`
	EscrowID           uuid.UUID `json:"escrow_id"`
	ChangeOrderNumber  int       `json:"change_order_number"` // Unique per escrow
	AmountChange       int64     `json:"amount_change"`       // Minor units, signed
	ScheduleImpactDays int       `json:"schedule_impact_days"`
	Reason             string    `json:"reason"`
	ApprovedBy         string    `json:"approved_by"`
	PriorTotalValue    int64     `json:"prior_total_value"`
	NewTotalValue      int64     `json:"new_total_value"`
	CreatedAt          time.Time `json:"created_at"`
}

// New validates and builds a change order against the current contract value
func New(escrowID uuid.UUID, number int, amountChange int64, scheduleImpactDays int, reason, approvedBy string, priorTotalValue int64) (*ChangeOrder, error) {
	if reason == "" {
		return nil, ErrEmptyReason
	}
	if priorTotalValue == 0 {
		return nil, ErrZeroContractValue
	}
	newTotal := priorTotalValue + amountChange
	if newTotal < 0 {
		return nil, ErrInvalidChangeOrder
	}

	return &ChangeOrder{
		ID:                 uuid.New(),
		EscrowID:           escrowID,
		ChangeOrderNumber:  number,
		AmountChange:       amountChange,
		ScheduleImpactDays: scheduleImpactDays,
		Reason:             reason,
		ApprovedBy:         approvedBy,
		PriorTotalValue:    priorTotalValue,
		NewTotalValue:      newTotal,
		CreatedAt:          time.Now(),
	}, nil
}
