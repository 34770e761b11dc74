package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"referral-triage-go/internal/poller"
	"referral-triage-go/internal/progress"
	"referral-triage-go/internal/store"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db     *gorm.DB
	store  *store.Store
	poller *poller.Poller
	hub    *progress.Hub
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, st *store.Store, p *poller.Poller, hub *progress.Hub) *Handlers {
	return &Handlers{db: db, store: st, poller: p, hub: hub}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Health check
	router.GET("/healthz", h.HealthCheck)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		// Poller control
		api.POST("/poller/start", h.StartPoller)
		api.POST("/poller/stop", h.StopPoller)
		api.POST("/poller/run-once", h.RunOnce)
		api.GET("/poller/status", h.GetPollerStatus)

		// Sessions and outcomes
		api.GET("/sessions/:id", h.GetSession)
		api.GET("/sessions/:id/outcomes", h.GetSessionOutcomes)

		// Persisted referrals
		api.GET("/referrals", h.GetReferrals)

		// Live progress stream
		api.GET("/events", h.StreamEvents)
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
