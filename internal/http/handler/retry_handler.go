package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reviewsync/internal/orchestrator"
	"reviewsync/internal/retryqueue"
)

type RetryHandler struct {
	orc   *orchestrator.Orchestrator
	queue *retryqueue.Queue
}

func NewRetryHandler(orc *orchestrator.Orchestrator, queue *retryqueue.Queue) *RetryHandler {
	return &RetryHandler{orc: orc, queue: queue}
}

// POST /api/v1/retries/:businessId/force?platform=...
func (h *RetryHandler) ForceRetry(c *gin.Context) {
	businessID := c.Param("businessId")
	platform := c.Query("platform")
	if platform == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": "platform is required"})
		return
	}

	entry, err := h.orc.ForceRetryBusiness(c.Request.Context(), businessID, platform)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// GET /api/v1/retries
//
// Lists permanently failed entries; these never re-enter the sweep on their
// own and need an operator decision.
func (h *RetryHandler) ListFrozen(c *gin.Context) {
	entries, err := h.queue.Frozen(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
