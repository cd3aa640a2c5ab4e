package http

import (
	"net/http"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

// ActivitySource exposes what /health and /stats report.
type ActivitySource interface {
	Uptime() time.Duration
	Snapshot() domain.Stats
}

type Counter interface {
	Count() int
}

type RoomCounter interface {
	RoomCount() int
}

type HealthHandler struct {
	activity ActivitySource
	sessions Counter
	rooms    RoomCounter
	checker  *monitoring.HealthChecker
}

func NewHealthHandler(activity ActivitySource, sessions Counter, rooms RoomCounter, checker *monitoring.HealthChecker) *HealthHandler {
	return &HealthHandler{
		activity: activity,
		sessions: sessions,
		rooms:    rooms,
		checker:  checker,
	}
}

func (h *HealthHandler) SetupRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/stats", h.Stats)
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      monitoring.StatusHealthy,
		"timestamp":   time.Now(),
		"uptime":      h.activity.Uptime().Round(time.Second).String(),
		"connections": h.sessions.Count(),
		"rooms":       h.rooms.RoomCount(),
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != monitoring.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *HealthHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": int64(h.activity.Uptime() / time.Second),
		"connections":    h.sessions.Count(),
		"rooms":          h.rooms.RoomCount(),
		"counters":       h.activity.Snapshot(),
	})
}
