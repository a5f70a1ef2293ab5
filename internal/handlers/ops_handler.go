package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Creecly/cleaninvest/internal/database"
	apperrors "github.com/Creecly/cleaninvest/internal/errors"
	"github.com/Creecly/cleaninvest/internal/logger"
)

// DBChecker reports database reachability and pool usage.
type DBChecker interface {
	Ping() error
	Stats() (database.PoolStats, error)
}

// OpsHandler serves health and operational endpoints.
type OpsHandler struct {
	db DBChecker
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(db DBChecker) *OpsHandler {
	return &OpsHandler{db: db}
}

// Health reports whether the API and its database are up
// @Summary     Health check
// @Tags        ops
// @Produce     json
// @Success     200 {object} map[string]string "Healthy"
// @Failure     503 {object} map[string]string "Database unreachable"
// @Router      /health [get]
func (h *OpsHandler) Health(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		logger.Get().Warnw("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
}

// DBStats returns connection pool statistics
// @Summary     Database pool stats
// @Tags        ops
// @Produce     json
// @Param       X-API-Key header string true "Ops API key"
// @Success     200 {object} database.PoolStats "Pool stats"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     503 {object} ErrorResponse "Ops endpoints disabled"
// @Router      /ops/db [get]
func (h *OpsHandler) DBStats(c *gin.Context) {
	stats, err := h.db.Stats()
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}
	c.JSON(http.StatusOK, stats)
}
