package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/api_gateway/middleware"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/domain/payment"
	"github.com/projectpay-escrow-engine/internal/engine/service"
)

// PaymentHandler handles HTTP requests for conditional payment units
type PaymentHandler struct {
	paymentService service.PaymentService
	logger         *slog.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(logger *slog.Logger, paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// CreateTask handles creation of a task payment unit under an escrow
func (h *PaymentHandler) CreateTask(c *gin.Context) {
	escrowID, ok := parseUUIDParam(c, "id", "escrow ID")
	if !ok {
		return
	}

	var req CreateTaskPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		RespondBadRequest(c, "Invalid task ID")
		return
	}

	expectedCompletion, ok := parseOptionalDate(c, req.ExpectedCompletionDate, "expected_completion_date")
	if !ok {
		return
	}

	unit, err := h.paymentService.CreateTaskPayment(c.Request.Context(), service.CreateTaskPaymentParams{
		EscrowID:               escrowID,
		TaskID:                 taskID,
		PaymentAmount:          req.PaymentAmount,
		CompletionRequirements: req.CompletionRequirements,
		VerificationCriteria:   req.VerificationCriteria,
		ApprovalRequired:       req.ApprovalRequired,
		PhotosRequired:         req.PhotosRequired,
		ExpectedCompletionDate: expectedCompletion,
	})
	if err != nil {
		h.respondCreateError(c, escrowID, err)
		return
	}

	RespondCreated(c, mapUnitToResponse(unit))
}

// CreateMilestone handles creation of a milestone payment unit under an escrow
func (h *PaymentHandler) CreateMilestone(c *gin.Context) {
	escrowID, ok := parseUUIDParam(c, "id", "escrow ID")
	if !ok {
		return
	}

	var req CreateMilestonePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	dueDate, ok := parseOptionalDate(c, req.DueDate, "due_date")
	if !ok {
		return
	}

	unit, err := h.paymentService.CreateMilestonePayment(c.Request.Context(), service.CreateMilestonePaymentParams{
		EscrowID:          escrowID,
		MilestoneName:     req.MilestoneName,
		PaymentAmount:     req.PaymentAmount,
		PaymentPercentage: req.PaymentPercentage,
		Deliverables:      req.Deliverables,
		DueDate:           dueDate,
		ApprovalRequired:  req.ApprovalRequired,
	})
	if err != nil {
		if errors.Is(err, payment.ErrPercentageMismatch) || errors.Is(err, payment.ErrInvalidPercentage) || errors.Is(err, payment.ErrEmptyMilestoneName) {
			RespondBadRequest(c, err.Error())
			return
		}
		h.respondCreateError(c, escrowID, err)
		return
	}

	RespondCreated(c, mapUnitToResponse(unit))
}

// GetByID retrieves a payment unit by its ID
func (h *PaymentHandler) GetByID(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "payment unit ID")
	if !ok {
		return
	}

	unit, err := h.paymentService.GetPayment(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, payment.ErrUnitNotFound{}) {
			RespondNotFound(c, "Payment unit not found")
			return
		}
		h.logger.Error("Failed to get payment unit", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapUnitToResponse(unit))
}

// ListByEscrow returns every payment unit under an escrow
func (h *PaymentHandler) ListByEscrow(c *gin.Context) {
	escrowID, ok := parseUUIDParam(c, "id", "escrow ID")
	if !ok {
		return
	}

	units, err := h.paymentService.ListPayments(c.Request.Context(), escrowID)
	if err != nil {
		if errors.Is(err, escrow.ErrEscrowNotFound{}) {
			RespondNotFound(c, "Escrow account not found")
			return
		}
		h.logger.Error("Failed to list payment units", "escrow_id", escrowID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]PaymentUnitResponse, 0, len(units))
	for _, unit := range units {
		responses = append(responses, mapUnitToResponse(unit))
	}

	RespondOK(c, PaymentListResponse{Payments: responses})
}

// Verify records completion evidence for a payment unit. When the unit needs
// no separate approval the payout follows in the same request.
func (h *PaymentHandler) Verify(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "payment unit ID")
	if !ok {
		return
	}

	var req VerifyCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	unit, err := h.paymentService.VerifyCompletion(c.Request.Context(), id, req.QualityScore, req.PhotoRefs, req.Notes, middleware.GetCorrelationID(c))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidQualityScore) || errors.Is(err, payment.ErrPhotosRequired) {
			RespondBadRequest(c, err.Error())
			return
		}
		h.respondReleaseError(c, id, err)
		return
	}

	RespondOK(c, mapUnitToResponse(unit))
}

// Approve records the client's approval of a verified unit and triggers the payout
func (h *PaymentHandler) Approve(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "payment unit ID")
	if !ok {
		return
	}

	var req ApprovePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	unit, err := h.paymentService.Approve(c.Request.Context(), id, req.ApprovedBy, middleware.GetCorrelationID(c))
	if err != nil {
		if errors.Is(err, payment.ErrApprovalNotRequired) {
			RespondConflict(c, "APPROVAL_NOT_REQUIRED", err.Error())
			return
		}
		h.respondReleaseError(c, id, err)
		return
	}

	RespondOK(c, mapUnitToResponse(unit))
}

// Release retries the payout of a unit already in a payable state
func (h *PaymentHandler) Release(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "payment unit ID")
	if !ok {
		return
	}

	unit, err := h.paymentService.Release(c.Request.Context(), id, middleware.GetCorrelationID(c))
	if err != nil {
		h.respondReleaseError(c, id, err)
		return
	}

	RespondOK(c, mapUnitToResponse(unit))
}

// respondCreateError maps payment unit creation failures
func (h *PaymentHandler) respondCreateError(c *gin.Context, escrowID uuid.UUID, err error) {
	if errors.Is(err, escrow.ErrEscrowNotFound{}) {
		RespondNotFound(c, "Escrow account not found")
		return
	}
	if errors.Is(err, escrow.ErrEscrowClosed) {
		RespondConflict(c, "ESCROW_CLOSED", "Cannot add payment units to a closed escrow")
		return
	}
	h.logger.Error("Failed to create payment unit", "escrow_id", escrowID.String(), "error", err)
	RespondInternalError(c)
}

// respondReleaseError maps payout and state machine failures shared by the
// verify, approve and release endpoints
func (h *PaymentHandler) respondReleaseError(c *gin.Context, unitID uuid.UUID, err error) {
	if errors.Is(err, payment.ErrUnitNotFound{}) {
		RespondNotFound(c, "Payment unit not found")
		return
	}
	if errors.Is(err, payment.ErrAlreadyPaid{}) {
		RespondConflict(c, "ALREADY_PAID", "Payment unit has already been paid")
		return
	}
	if errors.Is(err, payment.ErrUnitFrozen) {
		RespondConflict(c, "UNIT_FROZEN", "Payment unit is frozen by an open dispute")
		return
	}
	var transitionErr payment.ErrInvalidStateTransition
	if errors.As(err, &transitionErr) {
		RespondConflict(c, "INVALID_STATE", transitionErr.Error())
		return
	}
	var insufficientErr escrow.ErrInsufficientEscrowBalance
	if errors.As(err, &insufficientErr) {
		RespondUnprocessable(c, "INSUFFICIENT_BALANCE", insufficientErr.Error())
		return
	}
	if respondProcessorError(c, h.logger, err) {
		return
	}
	h.logger.Error("Payment unit operation failed", "unit_id", unitID.String(), "error", err)
	RespondInternalError(c)
}

// parseOptionalDate parses an optional RFC3339 date string, responding 400 on
// a malformed value
func parseOptionalDate(c *gin.Context, raw, field string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		RespondBadRequest(c, "Invalid "+field+": expected RFC3339 timestamp")
		return nil, false
	}
	return &parsed, true
}

// mapUnitToResponse maps a payment unit entity to a response DTO
func mapUnitToResponse(unit *payment.Unit) PaymentUnitResponse {
	resp := PaymentUnitResponse{
		ID:                     unit.ID.String(),
		EscrowID:               unit.EscrowID.String(),
		ContractorID:           unit.ContractorID.String(),
		UnitType:               string(unit.UnitType),
		Status:                 string(unit.Status),
		PaymentAmount:          unit.PaymentAmount,
		CompletionRequirements: unit.CompletionRequirements,
		VerificationCriteria:   unit.VerificationCriteria,
		ApprovalRequired:       unit.ApprovalRequired,
		PhotosRequired:         unit.PhotosRequired,
		MilestoneName:          unit.MilestoneName,
		PaymentPercentage:      unit.PaymentPercentage,
		Deliverables:           unit.Deliverables,
		QualityScore:           unit.QualityScore,
		VerificationNotes:      unit.VerificationNotes,
		PhotoRefs:              unit.PhotoRefs,
		ApprovedBy:             unit.ApprovedBy,
		PaymentTransactionID:   unit.PaymentTransactionID,
		CreatedAt:              unit.CreatedAt.Format(time.RFC3339),
		UpdatedAt:              unit.UpdatedAt.Format(time.RFC3339),
	}
	if unit.TaskID != nil {
		resp.TaskID = unit.TaskID.String()
	}
	if unit.DueDate != nil {
		resp.DueDate = unit.DueDate.Format(time.RFC3339)
	}
	if unit.PaidDate != nil {
		resp.PaidDate = unit.PaidDate.Format(time.RFC3339)
	}
	if unit.ExpectedCompletionDate != nil {
		resp.ExpectedCompletionDate = unit.ExpectedCompletionDate.Format(time.RFC3339)
	}
	return resp
}
