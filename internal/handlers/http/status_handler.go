package http

import (
	"context"
	"net/http"
	"time"

	"botlink/internal/core/domain"
	"botlink/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readyTimeout = 2 * time.Second

// StatusHandler serves the operator endpoints next to the robot RPCs.
type StatusHandler struct {
	health   *monitoring.HealthChecker
	stats    func() domain.ServerStats
	gatherer prometheus.Gatherer
}

// NewStatusHandler wires the checker and stats source. A nil gatherer
// disables /metrics.
func NewStatusHandler(health *monitoring.HealthChecker, stats func() domain.ServerStats, gatherer prometheus.Gatherer) *StatusHandler {
	return &StatusHandler{
		health:   health,
		stats:    stats,
		gatherer: gatherer,
	}
}

func (h *StatusHandler) SetupRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/stats", h.Stats)
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

func (h *StatusHandler) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())

	code := http.StatusOK
	if status.Status == monitoring.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *StatusHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	if !h.health.IsReady(ctx) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"timestamp": time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

type statsResponse struct {
	HasCloudClient  bool             `json:"has_cloud_client"`
	ActiveSession   bool             `json:"active_session"`
	SessionID       string           `json:"session_id,omitempty"`
	Priority        *domain.Priority `json:"priority,omitempty"`
	Iterations      uint64           `json:"iterations"`
	HTTP2Served     uint64           `json:"http2_served"`
	WebRTCSessions  uint64           `json:"webrtc_sessions"`
	Preemptions     uint64           `json:"preemptions"`
	CloudReconnects uint64           `json:"cloud_reconnects"`
	CloudBreaker    string           `json:"cloud_breaker,omitempty"`
	CloudFailures   int              `json:"cloud_failures"`
	LastError       string           `json:"last_error,omitempty"`
	Uptime          string           `json:"uptime"`
}

func (h *StatusHandler) Stats(c *gin.Context) {
	st := h.stats()

	resp := statsResponse{
		HasCloudClient:  st.HasCloudClient,
		ActiveSession:   st.ActiveSession,
		SessionID:       st.SessionID,
		Priority:        st.Priority,
		Iterations:      st.Iterations,
		HTTP2Served:     st.HTTP2Served,
		WebRTCSessions:  st.WebRTCSessions,
		Preemptions:     st.Preemptions,
		CloudReconnects: st.CloudReconnects,
		CloudBreaker:    st.CloudBreaker,
		CloudFailures:   st.CloudFailures,
		LastError:       st.LastError,
	}
	if !st.StartedAt.IsZero() {
		resp.Uptime = time.Since(st.StartedAt).Truncate(time.Second).String()
	}

	c.JSON(http.StatusOK, resp)
}
