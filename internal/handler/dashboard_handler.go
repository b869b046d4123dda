package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openlearn-labs/lms-api/internal/bus"
	"github.com/openlearn-labs/lms-api/internal/dto"
	"github.com/openlearn-labs/lms-api/internal/middleware"
	"github.com/openlearn-labs/lms-api/internal/service"
	appErrors "github.com/openlearn-labs/lms-api/pkg/errors"
	"github.com/openlearn-labs/lms-api/pkg/response"
)

const streamKeepAlive = 25 * time.Second

type dashboardService interface {
	AdminSummary(ctx context.Context) (*dto.AdminDashboardResponse, bool, error)
	UserSummary(ctx context.Context, userID string) (*dto.UserDashboardResponse, bool, error)
	Invalidate(ctx context.Context, userID string)
}

// DashboardHandler wires the dashboard service and the event broker to
// HTTP endpoints, including the server-sent event streams.
type DashboardHandler struct {
	dashboards dashboardService
	broker     *bus.Broker
	metrics    *service.MetricsService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(dashboards dashboardService, broker *bus.Broker, metrics *service.MetricsService) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboards, broker: broker, metrics: metrics}
}

// Admin godoc
// @Summary Admin dashboard summary
// @Description Platform-wide course, enrollment and user aggregates
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Admin(c *gin.Context) {
	if h.dashboards == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.dashboards.AdminSummary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, nil, meta)
}

// Me godoc
// @Summary Personal dashboard summary
// @Description The caller's enrollment and progress overview
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /dashboard/me [get]
func (h *DashboardHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.dashboards.UserSummary(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, nil, meta)
}

// Stream godoc
// @Summary Live admin dashboard stream
// @Description Server-sent events; pushes a fresh admin summary on every enrollment or course event
// @Tags Dashboard
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /dashboard/stream [get]
func (h *DashboardHandler) Stream(c *gin.Context) {
	events, cancel := h.broker.SubscribeAdmin()
	defer cancel()

	h.stream(c, events, func() (interface{}, error) {
		summary, _, err := h.dashboards.AdminSummary(c.Request.Context())
		return summary, err
	}, "")
}

// StreamMe godoc
// @Summary Live personal dashboard stream
// @Description Server-sent events scoped to the caller's own enrollments
// @Tags Dashboard
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Failure 401 {object} response.Envelope
// @Router /dashboard/stream/me [get]
func (h *DashboardHandler) StreamMe(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	events, cancel := h.broker.SubscribeUser(claims.UserID)
	defer cancel()

	h.stream(c, events, func() (interface{}, error) {
		summary, _, err := h.dashboards.UserSummary(c.Request.Context(), claims.UserID)
		return summary, err
	}, claims.UserID)
}

// stream pumps summaries to the client until it disconnects. An initial
// snapshot goes out immediately; afterwards every bus event triggers an
// invalidate-then-recompute cycle so the pushed summary is never stale.
func (h *DashboardHandler) stream(c *gin.Context, events <-chan bus.Event, load func() (interface{}, error), userID string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "streaming unsupported"))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	if h.metrics != nil {
		h.metrics.StreamConnected()
		defer h.metrics.StreamDisconnected()
	}

	if !h.push(c, flusher, "summary", load) {
		return
	}

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			h.dashboards.Invalidate(ctx, userID)
			if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", evt.Type); err != nil {
				return
			}
			if !h.push(c, flusher, "summary", load) {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(c.Writer, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *DashboardHandler) push(c *gin.Context, flusher http.Flusher, event string, load func() (interface{}, error)) bool {
	summary, err := load()
	if err != nil {
		return false
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
