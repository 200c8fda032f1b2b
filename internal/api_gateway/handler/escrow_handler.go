package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/api_gateway/middleware"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/domain/ledger"
	"github.com/projectpay-escrow-engine/internal/engine/service"
	"github.com/projectpay-escrow-engine/internal/platform/processor"
)

// EscrowHandler handles HTTP requests for escrow account operations
type EscrowHandler struct {
	escrowService service.EscrowService
	logger        *slog.Logger
}

// NewEscrowHandler creates a new escrow handler
func NewEscrowHandler(logger *slog.Logger, escrowService service.EscrowService) *EscrowHandler {
	return &EscrowHandler{
		escrowService: escrowService,
		logger:        logger,
	}
}

// Create handles creation of a new escrow account for a project. Creating an
// escrow for a project that already has one returns the existing account.
func (h *EscrowHandler) Create(c *gin.Context) {
	var req CreateEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	projectID, _ := uuid.Parse(req.ProjectID)
	clientID, _ := uuid.Parse(req.ClientID)
	contractorID, _ := uuid.Parse(req.ContractorID)

	acc, err := h.escrowService.CreateEscrow(c.Request.Context(), projectID, req.TotalProjectValue, req.RetentionPercentage, clientID, contractorID, middleware.GetCorrelationID(c))
	if err != nil {
		if errors.Is(err, escrow.ErrInvalidProjectValue) || errors.Is(err, escrow.ErrInvalidRetention) {
			RespondBadRequest(c, err.Error())
			return
		}
		if respondProcessorError(c, h.logger, err) {
			return
		}
		h.logger.Error("Failed to create escrow", "project_id", req.ProjectID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, mapEscrowToResponse(acc))
}

// GetByID retrieves an escrow account by its ID, returning 404 if not found
func (h *EscrowHandler) GetByID(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "escrow ID")
	if !ok {
		return
	}

	acc, err := h.escrowService.GetEscrow(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, escrow.ErrEscrowNotFound{}) {
			RespondNotFound(c, "Escrow account not found")
			return
		}
		h.logger.Error("Failed to get escrow", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapEscrowToResponse(acc))
}

// GetByProject retrieves the escrow account attached to a project
func (h *EscrowHandler) GetByProject(c *gin.Context) {
	projectID, ok := parseUUIDParam(c, "id", "project ID")
	if !ok {
		return
	}

	acc, err := h.escrowService.GetEscrowByProject(c.Request.Context(), projectID)
	if err != nil {
		h.logger.Error("Failed to get escrow by project", "project_id", projectID.String(), "error", err)
		RespondInternalError(c)
		return
	}
	if acc == nil {
		RespondNotFound(c, "No escrow account exists for this project")
		return
	}

	RespondOK(c, mapEscrowToResponse(acc))
}

// Fund handles a client deposit into escrow
func (h *EscrowHandler) Fund(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "escrow ID")
	if !ok {
		return
	}

	var req FundEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	acc, entry, err := h.escrowService.FundEscrow(c.Request.Context(), id, req.Amount, req.Method, middleware.GetCorrelationID(c))
	if err != nil {
		if errors.Is(err, escrow.ErrEscrowNotFound{}) {
			RespondNotFound(c, "Escrow account not found")
			return
		}
		if errors.Is(err, escrow.ErrEscrowClosed) {
			RespondConflict(c, "ESCROW_CLOSED", "Cannot fund a closed escrow account")
			return
		}
		if respondProcessorError(c, h.logger, err) {
			return
		}
		h.logger.Error("Failed to fund escrow", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, FundEscrowResponse{
		Escrow: mapEscrowToResponse(acc),
		Entry:  mapEntryToResponse(entry),
	})
}

// GetLedger retrieves the paginated ledger history for an escrow
func (h *EscrowHandler) GetLedger(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "escrow ID")
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	entries, total, err := h.escrowService.GetLedger(c.Request.Context(), id, pagination.Page, pagination.PerPage)
	if err != nil {
		if errors.Is(err, escrow.ErrEscrowNotFound{}) {
			RespondNotFound(c, "Escrow account not found")
			return
		}
		h.logger.Error("Failed to get ledger", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]LedgerEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, mapEntryToResponse(entry))
	}

	RespondWithPaginatedData(c, http.StatusOK, responses, pagination.Page, pagination.PerPage, int(total))
}

// Complete records the orchestrator's decision that the project is finished
func (h *EscrowHandler) Complete(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "escrow ID")
	if !ok {
		return
	}

	acc, err := h.escrowService.MarkCompleted(c.Request.Context(), id, middleware.GetCorrelationID(c))
	if err != nil {
		if errors.Is(err, escrow.ErrEscrowNotFound{}) {
			RespondNotFound(c, "Escrow account not found")
			return
		}
		var transitionErr escrow.ErrInvalidStatusTransition
		if errors.As(err, &transitionErr) {
			RespondConflict(c, "INVALID_STATUS", transitionErr.Error())
			return
		}
		h.logger.Error("Failed to mark escrow completed", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapEscrowToResponse(acc))
}

// ReleaseRetention pays the withheld retention to the contractor
func (h *EscrowHandler) ReleaseRetention(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "escrow ID")
	if !ok {
		return
	}

	acc, err := h.escrowService.ReleaseRetention(c.Request.Context(), id, middleware.GetCorrelationID(c))
	if err != nil {
		if errors.Is(err, escrow.ErrEscrowNotFound{}) {
			RespondNotFound(c, "Escrow account not found")
			return
		}
		if errors.Is(err, escrow.ErrNotCompleted) || errors.Is(err, escrow.ErrRetentionReleased) {
			RespondConflict(c, "RETENTION_NOT_RELEASABLE", err.Error())
			return
		}
		if errors.Is(err, ledger.ErrDuplicateRelease{}) {
			RespondConflict(c, "DUPLICATE_RELEASE", "Retention release already recorded")
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
		h.logger.Error("Failed to release retention", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapEscrowToResponse(acc))
}

// Close terminates an escrow account after completion and retention release
func (h *EscrowHandler) Close(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "escrow ID")
	if !ok {
		return
	}

	acc, err := h.escrowService.CloseEscrow(c.Request.Context(), id, middleware.GetCorrelationID(c))
	if err != nil {
		if errors.Is(err, escrow.ErrEscrowNotFound{}) {
			RespondNotFound(c, "Escrow account not found")
			return
		}
		if errors.Is(err, escrow.ErrNotCompleted) || errors.Is(err, escrow.ErrRetentionNotReleased) {
			RespondConflict(c, "NOT_CLOSEABLE", err.Error())
			return
		}
		h.logger.Error("Failed to close escrow", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapEscrowToResponse(acc))
}

// parseUUIDParam parses a path parameter as a UUID, responding 400 on failure
func parseUUIDParam(c *gin.Context, param, label string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondBadRequest(c, "Invalid "+label)
		return uuid.Nil, false
	}
	return id, true
}

// respondProcessorError maps payment processor failures to 502 responses.
// Returns true when the error came from the processor.
func respondProcessorError(c *gin.Context, logger *slog.Logger, err error) bool {
	var procErr *processor.Error
	if !errors.As(err, &procErr) {
		return false
	}
	logger.Error("Payment processor call failed",
		"operation", procErr.Op,
		"status_code", procErr.StatusCode,
		"error", procErr,
	)
	RespondWithError(c, http.StatusBadGateway, "PROCESSOR_ERROR", "Payment processor rejected the operation: "+procErr.Message)
	return true
}

// mapEscrowToResponse maps an escrow account entity to a response DTO
func mapEscrowToResponse(acc *escrow.Account) EscrowResponse {
	return EscrowResponse{
		ID:                  acc.ID.String(),
		ProjectID:           acc.ProjectID.String(),
		ClientID:            acc.ClientID.String(),
		ContractorID:        acc.ContractorID.String(),
		TotalProjectValue:   acc.TotalProjectValue,
		EscrowBalance:       acc.EscrowBalance,
		TotalDeposited:      acc.TotalDeposited,
		TotalPaid:           acc.TotalPaid,
		RetentionPercentage: acc.RetentionPercentage,
		RetentionAmount:     acc.RetentionAmount,
		RetentionReleased:   acc.RetentionReleased,
		Status:              string(acc.Status),
		CreatedAt:           acc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           acc.UpdatedAt.Format(time.RFC3339),
	}
}

// mapEntryToResponse maps a ledger entry entity to a response DTO
func mapEntryToResponse(entry *ledger.Entry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:                    entry.ID.String(),
		EscrowID:              entry.EscrowID.String(),
		RecipientID:           entry.RecipientID.String(),
		Amount:                entry.Amount,
		PaymentType:           string(entry.PaymentType),
		Method:                entry.Method,
		ExternalTransactionID: entry.ExternalTransactionID,
		Status:                string(entry.Status),
		CreatedAt:             entry.CreatedAt.Format(time.RFC3339),
	}
}
