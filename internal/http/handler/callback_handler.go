package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"reviewsync/internal/orchestrator"
)

type CallbackHandler struct {
	orc   *orchestrator.Orchestrator
	token string
}

func NewCallbackHandler(orc *orchestrator.Orchestrator, token string) *CallbackHandler {
	return &CallbackHandler{orc: orc, token: token}
}

func (h *CallbackHandler) authorized(c *gin.Context) bool {
	if h.token == "" {
		return true
	}
	auth := c.GetHeader("Authorization")
	got, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

// POST /callbacks/runs
//
// Always acknowledges duplicates with 200 so the sender stops redelivering.
func (h *CallbackHandler) RunResult(c *gin.Context) {
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var res orchestrator.RunResult
	if err := c.ShouldBindJSON(&res); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	if res.RunID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": "run_id is required"})
		return
	}

	if err := h.orc.HandleRunResult(c.Request.Context(), res); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": true, "run_id": res.RunID})
}
