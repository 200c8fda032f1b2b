package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/projectpay-escrow-engine/internal/api_gateway/handler"
	"github.com/projectpay-escrow-engine/internal/api_gateway/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	escrowHandler *handler.EscrowHandler,
	paymentHandler *handler.PaymentHandler,
	changeOrderHandler *handler.ChangeOrderHandler,
	disputeHandler *handler.DisputeHandler,
	projectionHandler *handler.ProjectionHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Escrow account lifecycle
		escrows := v1.Group("/escrows")
		{
			escrows.POST("", escrowHandler.Create)
			escrows.GET("/:id", escrowHandler.GetByID)
			escrows.POST("/:id/fund", escrowHandler.Fund)
			escrows.GET("/:id/ledger", escrowHandler.GetLedger)
			escrows.POST("/:id/complete", escrowHandler.Complete)
			escrows.POST("/:id/retention-release", escrowHandler.ReleaseRetention)
			escrows.POST("/:id/close", escrowHandler.Close)

			// Conditional payment units under an escrow
			escrows.GET("/:id/payments", paymentHandler.ListByEscrow)
			escrows.POST("/:id/payments/task", paymentHandler.CreateTask)
			escrows.POST("/:id/payments/milestone", paymentHandler.CreateMilestone)

			// Contract amendments
			escrows.GET("/:id/change-orders", changeOrderHandler.ListByEscrow)
			escrows.POST("/:id/change-orders", changeOrderHandler.Apply)

			// Disputes filed against an escrow
			escrows.GET("/:id/disputes", disputeHandler.ListByEscrow)
			escrows.POST("/:id/disputes", disputeHandler.Open)
		}

		// Project lookup
		projects := v1.Group("/projects")
		{
			projects.GET("/:id/escrow", escrowHandler.GetByProject)
		}

		// Payment unit operations
		payments := v1.Group("/payments")
		{
			payments.GET("/:id", paymentHandler.GetByID)
			payments.POST("/:id/verify", paymentHandler.Verify)
			payments.POST("/:id/approve", paymentHandler.Approve)
			payments.POST("/:id/release", paymentHandler.Release)
		}

		// Dispute operations
		disputes := v1.Group("/disputes")
		{
			disputes.GET("/:id", disputeHandler.GetByID)
			disputes.POST("/:id/mediation", disputeHandler.RequestMediation)
			disputes.POST("/:id/resolve", disputeHandler.Resolve)
		}

		// Cash flow projections
		parties := v1.Group("/parties")
		{
			parties.GET("/:id/cashflow", projectionHandler.GetDashboard)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
