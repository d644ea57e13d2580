package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reviewsync/internal/batch"
	"reviewsync/internal/orchestrator"
)

type ScheduleHandler struct {
	orc *orchestrator.Orchestrator
	bm  *batch.Manager
}

func NewScheduleHandler(orc *orchestrator.Orchestrator, bm *batch.Manager) *ScheduleHandler {
	return &ScheduleHandler{orc: orc, bm: bm}
}

// GET /api/v1/schedules
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	schedules, err := h.orc.ListSchedules(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules, "count": len(schedules)})
}

// GET /api/v1/schedules/:id/businesses
func (h *ScheduleHandler) ListBusinesses(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return
	}

	maps, err := h.orc.BusinessesInSchedule(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule_id": id, "businesses": maps, "count": len(maps)})
}

// POST /api/v1/schedules/:id/run
func (h *ScheduleHandler) TriggerRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return
	}

	dispatched, err := h.orc.TriggerManualRun(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"schedule_id": id, "dispatched": dispatched})
}

// GET /api/v1/health
func (h *ScheduleHandler) BatchHealth(c *gin.Context) {
	report, err := h.bm.Health(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	summary := gin.H{"healthy": 0, "warning": 0, "critical": 0, "stalled": 0}
	for _, b := range report {
		summary[b.Status] = summary[b.Status].(int) + 1
		if b.Stalled {
			summary["stalled"] = summary["stalled"].(int) + 1
		}
	}
	c.JSON(http.StatusOK, gin.H{"batches": report, "summary": summary})
}
