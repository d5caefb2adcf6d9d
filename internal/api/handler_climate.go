package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joltersapp/homecontrol/internal/controller"
)

// GetClimateStatus returns the climate controller's state.
func (h *Handler) GetClimateStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.climate.Status())
}

type targetRequest struct {
	Target float64 `json:"target" binding:"required"`
}

// SetClimateTarget changes the target temperature.
func (h *Handler) SetClimateTarget(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.climate.SetTarget(req.Target); err != nil {
		if errors.Is(err, controller.ErrTargetOutOfRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"target": req.Target})
}

type feedbackRequest struct {
	FeedbackType string `json:"feedback_type" binding:"required"`
}

// SubmitClimateFeedback records a user comfort report.
func (h *Handler) SubmitClimateFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.climate.SubmitFeedback(c.Request.Context(), req.FeedbackType); err != nil {
		if errors.Is(err, controller.ErrInvalidFeedback) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusCreated)
}
