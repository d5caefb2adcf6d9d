package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/joltersapp/homecontrol/config"
	"github.com/joltersapp/homecontrol/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), 5)

	// Reads are cached briefly; the controllers change state on minute
	// timescales.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 5*time.Minute)
	caching := mw.Cache(cacheStore, ttl)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/pump/schedule", caching, h.GetPumpSchedule)
		api.POST("/pump/recalculate", h.RecalculatePump)

		api.GET("/sprinkler/status", caching, h.GetSprinklerStatus)
		api.GET("/sprinkler/history", caching, h.GetSprinklerHistory)
		api.POST("/sprinkler/calculate", h.CalculateSprinkler)
		api.POST("/sprinkler/simulate", h.SimulateSprinkler)

		api.GET("/climate/status", caching, h.GetClimateStatus)
		api.POST("/climate/target", h.SetClimateTarget)
		api.POST("/climate/feedback", h.SubmitClimateFeedback)

		api.GET("/jobs/:device", caching, h.GetJobs)
		api.GET("/jobs/:device/active", h.GetActiveJob)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
