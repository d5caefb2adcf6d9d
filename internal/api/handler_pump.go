package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetPumpSchedule returns the pump controller's schedule and run state.
func (h *Handler) GetPumpSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, h.pump.Status())
}

// RecalculatePump recomputes today's pump schedule on demand.
func (h *Handler) RecalculatePump(c *gin.Context) {
	sched, err := h.pump.ForceRecalculate(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sched)
}
