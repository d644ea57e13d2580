package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reviewsync/internal/orchestrator"
)

type BusinessHandler struct {
	orc *orchestrator.Orchestrator
}

func NewBusinessHandler(orc *orchestrator.Orchestrator) *BusinessHandler {
	return &BusinessHandler{orc: orc}
}

type AddBusinessRequest struct {
	TeamID     string `json:"team_id" binding:"required"`
	Platform   string `json:"platform" binding:"required"`
	BusinessID string `json:"business_id" binding:"required"`
	Identifier string `json:"identifier" binding:"required"`
}

// POST /api/v1/businesses
func (h *BusinessHandler) AddBusiness(c *gin.Context) {
	var req AddBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	m, err := h.orc.AddBusiness(c.Request.Context(), req.TeamID, req.Platform, req.BusinessID, req.Identifier)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"mapping": m})
}

type MoveBusinessRequest struct {
	TeamID        string `json:"team_id" binding:"required"`
	Platform      string `json:"platform" binding:"required"`
	BusinessID    string `json:"business_id" binding:"required"`
	IntervalHours int    `json:"interval_hours" binding:"required"`
}

// POST /api/v1/businesses/move
func (h *BusinessHandler) MoveBusiness(c *gin.Context) {
	var req MoveBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	m, err := h.orc.MoveBusiness(c.Request.Context(), req.TeamID, req.Platform, req.BusinessID, req.IntervalHours)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mapping": m})
}

// DELETE /api/v1/businesses/:businessId?team_id=...&platform=...
func (h *BusinessHandler) RemoveBusiness(c *gin.Context) {
	businessID := c.Param("businessId")
	teamID := c.Query("team_id")
	platform := c.Query("platform")
	if teamID == "" || platform == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": "team_id and platform are required"})
		return
	}

	if err := h.orc.RemoveBusiness(c.Request.Context(), teamID, platform, businessID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true, "business_id": businessID})
}
