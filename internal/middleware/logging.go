package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Creecly/cleaninvest/internal/logger"
)

const requestIDKey = "requestID"

// RequestID returns the ID RequestLogging assigned to the request, or "" when
// the middleware is not installed.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogging returns a Gin middleware that logs each request with a unique
// request ID, method, path, status code, latency, and client IP using Zap.
// Requests slower than slowThreshold are logged at warn level; a zero
// threshold disables the check.
func RequestLogging(slowThreshold time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := uuid.New().String()
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()

		latency := time.Since(start)
		fields := []interface{}{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		log := logger.Get()
		if slowThreshold > 0 && latency > slowThreshold {
			log.Warnw("slow request", fields...)
			return
		}
		log.Infow("request", fields...)
	}
}
