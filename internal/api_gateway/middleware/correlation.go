package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CorrelationIDHeader carries the caller's trace id into the engine
	CorrelationIDHeader = "X-Correlation-ID"

	// CorrelationIDKey stores the correlation id in the gin context
	CorrelationIDKey = "correlation_id"
)

// CorrelationID tags every request with a trace id. The workflow orchestrator
// normally supplies one; requests arriving without it get a fresh uuid so
// ledger entries and outbox events stay traceable end to end.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Header(CorrelationIDHeader, correlationID)
		c.Set(CorrelationIDKey, correlationID)

		c.Next()
	}
}

// GetCorrelationID returns the request's correlation id, or empty when the
// CorrelationID middleware has not run
func GetCorrelationID(c *gin.Context) string {
	if id, exists := c.Get(CorrelationIDKey); exists {
		if correlationID, ok := id.(string); ok {
			return correlationID
		}
	}
	return ""
}
