package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetJobs returns the most recent job rows for a device.
func (h *Handler) GetJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	jobs, err := h.store.JobsByDevice(c.Request.Context(), c.Param("device"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// GetActiveJob returns the open session row for a device, if any.
func (h *Handler) GetActiveJob(c *gin.Context) {
	job, err := h.store.ActiveJob(c.Request.Context(), c.Param("device"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true, "job": job})
}
