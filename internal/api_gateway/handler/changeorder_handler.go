package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/projectpay-escrow-engine/internal/api_gateway/middleware"
	"github.com/projectpay-escrow-engine/internal/domain/changeorder"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/engine/service"
)

// ChangeOrderHandler handles HTTP requests for contract amendments
type ChangeOrderHandler struct {
	changeOrderService service.ChangeOrderService
	logger             *slog.Logger
}

// NewChangeOrderHandler creates a new change order handler
func NewChangeOrderHandler(logger *slog.Logger, changeOrderService service.ChangeOrderService) *ChangeOrderHandler {
	return &ChangeOrderHandler{
		changeOrderService: changeOrderService,
		logger:             logger,
	}
}

// Apply handles a contract amendment: value change, retention recompute and
// payment unit rescale happen atomically
func (h *ChangeOrderHandler) Apply(c *gin.Context) {
	escrowID, ok := parseUUIDParam(c, "id", "escrow ID")
	if !ok {
		return
	}

	var req ApplyChangeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	co, err := h.changeOrderService.Apply(c.Request.Context(), escrowID, req.AmountChange, req.ScheduleImpactDays, req.Reason, req.ApprovedBy, middleware.GetCorrelationID(c))
	if err != nil {
		if errors.Is(err, escrow.ErrEscrowNotFound{}) {
			RespondNotFound(c, "Escrow account not found")
			return
		}
		if errors.Is(err, escrow.ErrEscrowClosed) {
			RespondConflict(c, "ESCROW_CLOSED", "Cannot amend a closed escrow account")
			return
		}
		if errors.Is(err, changeorder.ErrInvalidChangeOrder) || errors.Is(err, changeorder.ErrEmptyReason) || errors.Is(err, changeorder.ErrZeroContractValue) {
			RespondBadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to apply change order", "escrow_id", escrowID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, mapChangeOrderToResponse(co))
}

// ListByEscrow returns an escrow's change orders in application order
func (h *ChangeOrderHandler) ListByEscrow(c *gin.Context) {
	escrowID, ok := parseUUIDParam(c, "id", "escrow ID")
	if !ok {
		return
	}

	orders, err := h.changeOrderService.List(c.Request.Context(), escrowID)
	if err != nil {
		if errors.Is(err, escrow.ErrEscrowNotFound{}) {
			RespondNotFound(c, "Escrow account not found")
			return
		}
		h.logger.Error("Failed to list change orders", "escrow_id", escrowID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]ChangeOrderResponse, 0, len(orders))
	for _, co := range orders {
		responses = append(responses, mapChangeOrderToResponse(co))
	}

	RespondOK(c, ChangeOrderListResponse{ChangeOrders: responses})
}

// mapChangeOrderToResponse maps a change order entity to a response DTO
func mapChangeOrderToResponse(co *changeorder.ChangeOrder) ChangeOrderResponse {
	return ChangeOrderResponse{
		ID:                 co.ID.String(),
		EscrowID:           co.EscrowID.String(),
		ChangeOrderNumber:  co.ChangeOrderNumber,
		AmountChange:       co.AmountChange,
		ScheduleImpactDays: co.ScheduleImpactDays,
		Reason:             co.Reason,
		ApprovedBy:         co.ApprovedBy,
		PriorTotalValue:    co.PriorTotalValue,
		NewTotalValue:      co.NewTotalValue,
		CreatedAt:          co.CreatedAt.Format(time.RFC3339),
	}
}
