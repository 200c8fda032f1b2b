package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/api_gateway/middleware"
	"github.com/projectpay-escrow-engine/internal/domain/dispute"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/engine/service"
)

// DisputeHandler handles HTTP requests for payment disputes
type DisputeHandler struct {
	disputeService service.DisputeService
	logger         *slog.Logger
}

// NewDisputeHandler creates a new dispute handler
func NewDisputeHandler(logger *slog.Logger, disputeService service.DisputeService) *DisputeHandler {
	return &DisputeHandler{
		disputeService: disputeService,
		logger:         logger,
	}
}

// Open files a dispute against an escrow, freezing the disputed amount
func (h *DisputeHandler) Open(c *gin.Context) {
	escrowID, ok := parseUUIDParam(c, "id", "escrow ID")
	if !ok {
		return
	}

	var req OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	submittedBy, _ := uuid.Parse(req.SubmittedBy)
	respondentID, _ := uuid.Parse(req.RespondentID)

	var paymentUnitID *uuid.UUID
	if req.PaymentUnitID != "" {
		unitID, err := uuid.Parse(req.PaymentUnitID)
		if err != nil {
			RespondBadRequest(c, "Invalid payment unit ID")
			return
		}
		paymentUnitID = &unitID
	}

	d, err := h.disputeService.Open(c.Request.Context(), escrowID, paymentUnitID, req.DisputeAmount, submittedBy, respondentID, middleware.GetCorrelationID(c))
	if err != nil {
		if errors.Is(err, escrow.ErrEscrowNotFound{}) {
			RespondNotFound(c, "Escrow account not found")
			return
		}
		if errors.Is(err, escrow.ErrEscrowClosed) {
			RespondConflict(c, "ESCROW_CLOSED", "Cannot dispute a closed escrow account")
			return
		}
		if errors.Is(err, dispute.ErrSameParty) {
			RespondBadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to open dispute", "escrow_id", escrowID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, mapDisputeToResponse(d))
}

// GetByID retrieves a dispute by its ID
func (h *DisputeHandler) GetByID(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "dispute ID")
	if !ok {
		return
	}

	d, err := h.disputeService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, dispute.ErrDisputeNotFound{}) {
			RespondNotFound(c, "Dispute not found")
			return
		}
		h.logger.Error("Failed to get dispute", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapDisputeToResponse(d))
}

// ListByEscrow returns an escrow's disputes, newest first
func (h *DisputeHandler) ListByEscrow(c *gin.Context) {
	escrowID, ok := parseUUIDParam(c, "id", "escrow ID")
	if !ok {
		return
	}

	disputes, err := h.disputeService.List(c.Request.Context(), escrowID)
	if err != nil {
		if errors.Is(err, escrow.ErrEscrowNotFound{}) {
			RespondNotFound(c, "Escrow account not found")
			return
		}
		h.logger.Error("Failed to list disputes", "escrow_id", escrowID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]DisputeResponse, 0, len(disputes))
	for _, d := range disputes {
		responses = append(responses, mapDisputeToResponse(d))
	}

	RespondOK(c, DisputeListResponse{Disputes: responses})
}

// RequestMediation escalates a submitted dispute to mediation
func (h *DisputeHandler) RequestMediation(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "dispute ID")
	if !ok {
		return
	}

	var req RequestMediationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	d, err := h.disputeService.RequestMediation(c.Request.Context(), id, req.Mediator, middleware.GetCorrelationID(c))
	if err != nil {
		if errors.Is(err, dispute.ErrDisputeNotFound{}) {
			RespondNotFound(c, "Dispute not found")
			return
		}
		var transitionErr dispute.ErrInvalidDisputeTransition
		if errors.As(err, &transitionErr) {
			RespondConflict(c, "INVALID_STATE", transitionErr.Error())
			return
		}
		h.logger.Error("Failed to request mediation", "dispute_id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapDisputeToResponse(d))
}

// Resolve terminates a dispute, lifts the fund freeze and pays any resolution
// amount to the prevailing party. A failed settlement payment leaves the
// dispute resolved with settlement_pending set.
func (h *DisputeHandler) Resolve(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "dispute ID")
	if !ok {
		return
	}

	var req ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	var prevailingPartyID uuid.UUID
	if req.PrevailingPartyID != "" {
		parsed, parseErr := uuid.Parse(req.PrevailingPartyID)
		if parseErr != nil {
			RespondBadRequest(c, "Invalid prevailing party ID")
			return
		}
		prevailingPartyID = parsed
	}

	d, err := h.disputeService.Resolve(c.Request.Context(), id, req.Resolution, req.ResolutionAmount, prevailingPartyID, req.ResolvedBy, middleware.GetCorrelationID(c))
	if err != nil {
		if errors.Is(err, dispute.ErrDisputeNotFound{}) {
			RespondNotFound(c, "Dispute not found")
			return
		}
		if errors.Is(err, dispute.ErrAlreadyResolved) {
			RespondConflict(c, "ALREADY_RESOLVED", "Dispute is already resolved")
			return
		}
		if errors.Is(err, dispute.ErrUnknownParty) {
			RespondBadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to resolve dispute", "dispute_id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapDisputeToResponse(d))
}

// mapDisputeToResponse maps a dispute entity to a response DTO
func mapDisputeToResponse(d *dispute.Dispute) DisputeResponse {
	resp := DisputeResponse{
		ID:                d.ID.String(),
		EscrowID:          d.EscrowID.String(),
		DisputeAmount:     d.DisputeAmount,
		SubmittedBy:       d.SubmittedBy.String(),
		RespondentID:      d.RespondentID.String(),
		Status:            string(d.Status),
		Mediator:          d.Mediator,
		Resolution:        d.Resolution,
		ResolutionAmount:  d.ResolutionAmount,
		ResolvedBy:        d.ResolvedBy,
		ResponseDeadline:  d.ResponseDeadline.Format(time.RFC3339),
		SettlementPending: d.SettlementPending,
		CreatedAt:         d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         d.UpdatedAt.Format(time.RFC3339),
	}
	if d.PaymentUnitID != nil {
		resp.PaymentUnitID = d.PaymentUnitID.String()
	}
	if d.MediationDate != nil {
		resp.MediationDate = d.MediationDate.Format(time.RFC3339)
	}
	return resp
}
