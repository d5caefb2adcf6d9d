package api

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/joltersapp/homecontrol/internal/controller"
)

// GetSprinklerStatus returns the irrigation controller's state and today's
// decision.
func (h *Handler) GetSprinklerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.irrigation.Status(c.Request.Context()))
}

// GetSprinklerHistory returns recent watering decisions.
func (h *Handler) GetSprinklerHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	history, err := h.store.DecisionHistory(c.Request.Context(), controller.DeviceSprinkler, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": history})
}

// CalculateSprinkler computes and stores today's watering decision on
// demand.
func (h *Handler) CalculateSprinkler(c *gin.Context) {
	decision, err := h.irrigation.CalculateDecision(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "decision": decision})
		return
	}
	c.JSON(http.StatusOK, decision)
}

type simulateRequest struct {
	ZoneMinutes  int `json:"zone_minutes" binding:"required"`
	BreakMinutes int `json:"break_minutes"`
}

// SimulateSprinkler runs a manual watering cycle with the requested
// per-zone duration and optional break. The cycle runs in the background;
// a long run should not hold an HTTP request open.
func (h *Handler) SimulateSprinkler(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ZoneMinutes < 1 || req.ZoneMinutes > 60 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zone_minutes must be between 1 and 60"})
		return
	}
	if req.BreakMinutes < 0 || req.BreakMinutes > 60 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "break_minutes must be between 0 and 60"})
		return
	}

	// The cycle outlives the request, so it cannot run on the request
	// context.
	go func() {
		if err := h.irrigation.Simulate(context.Background(), req.ZoneMinutes, req.BreakMinutes); err != nil {
			log.Printf("[API] Simulated watering failed: %v", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"started": true, "zone_minutes": req.ZoneMinutes})
}
