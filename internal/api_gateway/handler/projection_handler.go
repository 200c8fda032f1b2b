package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/projectpay-escrow-engine/internal/engine/service"
)

// ProjectionHandler handles HTTP requests for cash flow projections
type ProjectionHandler struct {
	projectionService service.ProjectionService
	logger            *slog.Logger
}

// NewProjectionHandler creates a new projection handler
func NewProjectionHandler(logger *slog.Logger, projectionService service.ProjectionService) *ProjectionHandler {
	return &ProjectionHandler{
		projectionService: projectionService,
		logger:            logger,
	}
}

// GetDashboard projects expected inflows and outflows for a party over the
// requested horizon
func (h *ProjectionHandler) GetDashboard(c *gin.Context) {
	partyID, ok := parseUUIDParam(c, "id", "party ID")
	if !ok {
		return
	}

	var query CashFlowQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	dashboard, err := h.projectionService.GetDashboard(c.Request.Context(), partyID, query.HorizonDays)
	if err != nil {
		h.logger.Error("Failed to build cash flow dashboard", "party_id", partyID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, dashboard)
}
