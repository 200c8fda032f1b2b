package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/domain/dispute"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/domain/payment"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
)

// DefaultHorizonDays bounds the projection window when none is requested
const DefaultHorizonDays = 90

const (
	baseConfidence = 0.8
	riskPenalty    = 0.1
	minConfidence  = 0.1
	maxConfidence  = 1.0
)

// EscrowProjection is the per-escrow slice of the dashboard
type EscrowProjection struct {
	EscrowID         uuid.UUID           `json:"escrow_id"`
	ProjectID        uuid.UUID           `json:"project_id"`
	Role             string              `json:"role"` // "client" or "contractor"
	Status           shared.EscrowStatus `json:"status"`
	EscrowBalance    int64               `json:"escrow_balance"`
	ExpectedInflow   int64               `json:"expected_inflow"`
	ExpectedOutflow  int64               `json:"expected_outflow"`
	PendingUnits     int                 `json:"pending_units"`
	RetentionHeld    int64               `json:"retention_held"`
	FundingShortfall int64               `json:"funding_shortfall"`
}

// CashFlowDashboard is a forward-looking cash position for one party
type CashFlowDashboard struct {
	PartyID         uuid.UUID           `json:"party_id"`
	HorizonDays     int                 `json:"horizon_days"`
	ExpectedInflow  int64               `json:"expected_inflow"`  // Minor units
	ExpectedOutflow int64               `json:"expected_outflow"` // Minor units
	NetPosition     int64               `json:"net_position"`
	Escrows         []*EscrowProjection `json:"escrows"`
	RiskFactors     []string            `json:"risk_factors"`
	Confidence      float64             `json:"confidence"` // 0.1 to 1.0
	GeneratedAt     time.Time           `json:"generated_at"`
}

// ProjectionServiceImpl implements the ProjectionService interface
type ProjectionServiceImpl struct {
	escrowRepo  escrow.Repository
	paymentRepo payment.Repository
	disputeRepo dispute.Repository
	logger      *slog.Logger
}

// NewProjectionService creates a new cash flow projection service
func NewProjectionService(
	escrowRepo escrow.Repository,
	paymentRepo payment.Repository,
	disputeRepo dispute.Repository,
	logger *slog.Logger,
) ProjectionService {
	return &ProjectionServiceImpl{
		escrowRepo:  escrowRepo,
		paymentRepo: paymentRepo,
		disputeRepo: disputeRepo,
		logger:      logger,
	}
}

// GetDashboard projects expected inflows and outflows for a party across all
// their escrows. Contractors see unpaid unit amounts and held retention as
// inflows; clients see remaining funding obligations as outflows. Each
// distinct risk lowers the confidence score.
func (s *ProjectionServiceImpl) GetDashboard(ctx context.Context, partyID uuid.UUID, horizonDays int) (*CashFlowDashboard, error) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	horizon := time.Now().AddDate(0, 0, horizonDays)

	accounts, err := s.escrowRepo.ListByParty(ctx, partyID)
	if err != nil {
		return nil, err
	}

	dashboard := &CashFlowDashboard{
		PartyID:     partyID,
		HorizonDays: horizonDays,
		GeneratedAt: time.Now(),
	}

	var underfunded, overdue int
	for _, acc := range accounts {
		if acc.Status == shared.EscrowStatusClosed {
			continue
		}

		proj := &EscrowProjection{
			EscrowID:      acc.ID,
			ProjectID:     acc.ProjectID,
			Status:        acc.Status,
			EscrowBalance: acc.EscrowBalance,
		}
		if acc.ContractorID == partyID {
			proj.Role = "contractor"
		} else {
			proj.Role = "client"
		}

		units, err := s.paymentRepo.ListNonTerminal(ctx, acc.ID)
		if err != nil {
			return nil, err
		}

		var unpaidWithinHorizon int64
		var unpaidTotal int64
		for _, unit := range units {
			unpaidTotal += unit.PaymentAmount
			if unit.ExpectedCompletionDate == nil || !unit.ExpectedCompletionDate.After(horizon) {
				unpaidWithinHorizon += unit.PaymentAmount
			}
			if unit.ExpectedCompletionDate != nil && unit.ExpectedCompletionDate.Before(time.Now()) {
				overdue++
			}
		}
		proj.PendingUnits = len(units)

		if !acc.RetentionReleased {
			proj.RetentionHeld = acc.RetentionAmount
		}

		if proj.Role == "contractor" {
			proj.ExpectedInflow = unpaidWithinHorizon
			if acc.Status == shared.EscrowStatusCompleted && !acc.RetentionReleased {
				proj.ExpectedInflow += acc.RetentionAmount
			}
		} else {
			remaining := acc.TotalProjectValue - acc.TotalDeposited
			if remaining > 0 {
				proj.ExpectedOutflow = remaining
			}
		}

		if shortfall := unpaidTotal - acc.EscrowBalance; shortfall > 0 && acc.Status != shared.EscrowStatusCreated {
			proj.FundingShortfall = shortfall
			underfunded++
		}

		dashboard.ExpectedInflow += proj.ExpectedInflow
		dashboard.ExpectedOutflow += proj.ExpectedOutflow
		dashboard.Escrows = append(dashboard.Escrows, proj)
	}
	dashboard.NetPosition = dashboard.ExpectedInflow - dashboard.ExpectedOutflow

	openDisputes, err := s.disputeRepo.CountOpenByParty(ctx, partyID)
	if err != nil {
		return nil, err
	}

	riskCount := 0
	if underfunded > 0 {
		riskCount++
		dashboard.RiskFactors = append(dashboard.RiskFactors,
			fmt.Sprintf("%d escrow(s) underfunded against remaining payment obligations", underfunded))
	}
	if openDisputes > 0 {
		riskCount++
		dashboard.RiskFactors = append(dashboard.RiskFactors,
			fmt.Sprintf("%d open dispute(s) freezing funds", openDisputes))
	}
	if overdue > 0 {
		riskCount++
		dashboard.RiskFactors = append(dashboard.RiskFactors,
			fmt.Sprintf("%d payment unit(s) past their expected completion date", overdue))
	}

	dashboard.Confidence = confidenceScore(riskCount)

	s.logger.Debug("Cash flow dashboard generated",
		"party_id", partyID.String(),
		"escrows", len(dashboard.Escrows),
		"net_position", dashboard.NetPosition,
		"confidence", dashboard.Confidence,
	)
	return dashboard, nil
}

// confidenceScore starts at the base level and loses a step per distinct
// risk factor, clamped to the valid range
func confidenceScore(riskCount int) float64 {
	score := baseConfidence - riskPenalty*float64(riskCount)
	if score < minConfidence {
		return minConfidence
	}
	if score > maxConfidence {
		return maxConfidence
	}
	return score
}
