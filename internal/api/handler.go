package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	syncx "ordersync/internal/sync"
	"ordersync/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler is the device agent's localhost admin surface. The sales screens
// live in the host application; this only exposes health, metrics and the
// explicit sync controls.
type Handler struct {
	scheduler *syncx.Scheduler
}

// NewHandler creates a new HTTP handler
func NewHandler(scheduler *syncx.Scheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/sync/trigger", h.triggerSync)
	router.POST("/sync/notify", h.notifySync)
	router.POST("/sync/fast-mode", h.setFastMode)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// triggerSync runs a manual sync pass and surfaces its outcome, unlike the
// background triggers which only log.
func (h *Handler) triggerSync(c *gin.Context) {
	err := h.scheduler.TriggerManual(c.Request.Context())
	if errors.Is(err, syncx.ErrPassInFlight) {
		c.JSON(http.StatusConflict, gin.H{"error": "sync pass already in flight"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "sync failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "synced"})
}

// notifySync queues a background sync request for a host-reported event
// (connectivity regained, app brought to the foreground). Fire-and-forget:
// if a pass is already running or queued the request is dropped.
func (h *Handler) notifySync(c *gin.Context) {
	var req struct {
		Trigger string `json:"trigger" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var trigger syncx.Trigger
	switch req.Trigger {
	case "online":
		trigger = syncx.TriggerOnline
	case "visible":
		trigger = syncx.TriggerVisible
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown trigger", "trigger": req.Trigger})
		return
	}

	h.scheduler.Notify(trigger)
	c.JSON(http.StatusAccepted, gin.H{"queued": req.Trigger})
}

// setFastMode toggles the shortened periodic interval.
func (h *Handler) setFastMode(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.scheduler.SetFastMode(req.Enabled)
	c.JSON(http.StatusOK, gin.H{"fast_mode": req.Enabled})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
