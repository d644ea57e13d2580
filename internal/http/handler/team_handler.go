package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"reviewsync/internal/interval"
	"reviewsync/internal/orchestrator"
)

type TeamHandler struct {
	orc      *orchestrator.Orchestrator
	resolver *interval.Resolver
}

func NewTeamHandler(orc *orchestrator.Orchestrator, resolver *interval.Resolver) *TeamHandler {
	return &TeamHandler{orc: orc, resolver: resolver}
}

// GET /api/v1/teams/:teamId/assignments
func (h *TeamHandler) ListAssignments(c *gin.Context) {
	teamID := c.Param("teamId")
	maps, err := h.orc.TeamAssignments(c.Request.Context(), teamID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"team_id": teamID, "assignments": maps, "count": len(maps)})
}

type SetIntervalRequest struct {
	IntervalHours int        `json:"interval_hours" binding:"required"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

// PUT /api/v1/teams/:teamId/intervals/:platform
//
// Only future placements see the override; already-mapped businesses keep
// their batch until moved through the businesses/move endpoint.
func (h *TeamHandler) SetInterval(c *gin.Context) {
	var req SetIntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	teamID := c.Param("teamId")
	platform := c.Param("platform")
	if err := h.resolver.SetCustomInterval(c.Request.Context(), teamID, platform, req.IntervalHours, req.ExpiresAt); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"team_id": teamID, "platform": platform, "interval_hours": req.IntervalHours})
}

// DELETE /api/v1/teams/:teamId/intervals/:platform
func (h *TeamHandler) RemoveInterval(c *gin.Context) {
	teamID := c.Param("teamId")
	platform := c.Param("platform")
	if err := h.resolver.RemoveCustomInterval(c.Request.Context(), teamID, platform); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"team_id": teamID, "platform": platform, "removed": true})
}
