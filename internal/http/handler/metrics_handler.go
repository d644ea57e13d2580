package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reviewsync/internal/locks"
)

type MetricsHandler struct {
	metrics *locks.Metrics
	lm      *locks.Manager
}

func NewMetricsHandler(metrics *locks.Metrics, lm *locks.Manager) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, lm: lm}
}

// GET /api/v1/metrics/sweeper
func (h *MetricsHandler) GetSweeperMetrics(c *gin.Context) {
	ctx := c.Request.Context()
	last, sweeps, err := h.metrics.Snapshot(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "detail": err.Error()})
		return
	}
	live, err := h.lm.LiveSweepers(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sweeps": sweeps, "last": last, "live_sweepers": live})
}
