package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/openlearn-labs/lms-api/internal/bus"
	"github.com/openlearn-labs/lms-api/internal/dto"
	"github.com/openlearn-labs/lms-api/internal/middleware"
	"github.com/openlearn-labs/lms-api/internal/models"
)

type fakeDashboardSrv struct {
	mu          sync.Mutex
	adminResp   *dto.AdminDashboardResponse
	adminErr    error
	userResp    *dto.UserDashboardResponse
	userErr     error
	cacheHit    bool
	invalidated []string
}

func (f *fakeDashboardSrv) AdminSummary(context.Context) (*dto.AdminDashboardResponse, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adminResp, f.cacheHit, f.adminErr
}

func (f *fakeDashboardSrv) UserSummary(_ context.Context, userID string) (*dto.UserDashboardResponse, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userResp, f.cacheHit, f.userErr
}

func (f *fakeDashboardSrv) Invalidate(_ context.Context, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userID)
}

func (f *fakeDashboardSrv) invalidations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.invalidated...)
}

func TestDashboardHandlerAdminSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{
		adminResp: &dto.AdminDashboardResponse{
			Courses: dto.CourseCountsSection{Published: 3, Total: 3},
		},
	}, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard", nil)

	handler.Admin(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.NotNil(t, envelope.Meta["processing_time_ms"])
	assert.Equal(t, false, envelope.Meta["cache_hit"])
}

func TestDashboardHandlerAdminReportsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{
		adminResp: &dto.AdminDashboardResponse{},
		cacheHit:  true,
	}, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard", nil)

	handler.Admin(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
}

func TestDashboardHandlerMeRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{}, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/me", nil)

	handler.Me(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboardHandlerMeSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{
		userResp: &dto.UserDashboardResponse{UserID: "user-1", Enrolled: 2},
	}, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/me", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})

	handler.Me(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.Equal(t, "user-1", envelope.Data["user_id"])
	assert.Equal(t, false, envelope.Meta["cache_hit"])
}

func TestDashboardStreamPushesSnapshotAndEventUpdates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeDashboardSrv{adminResp: &dto.AdminDashboardResponse{}}
	broker := bus.NewBroker(4, zap.NewNop())
	handler := NewDashboardHandler(srv, broker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/stream", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		handler.Stream(c)
		close(done)
	}()

	// Wait for the subscription to land before publishing.
	time.Sleep(50 * time.Millisecond)
	broker.PublishAdmin(bus.Event{Type: bus.EventEnrollmentCreated, CourseID: "c1"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after context cancellation")
	}

	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: summary"), "initial snapshot plus one refresh")
	assert.Contains(t, body, "event: enrollment.created")
	assert.NotEmpty(t, srv.invalidations())
}

func TestDashboardStreamMeRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{}, bus.NewBroker(4, zap.NewNop()), nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/stream/me", nil)

	handler.StreamMe(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type responseEnvelope struct {
	Data map[string]interface{} `json:"data"`
	Meta map[string]interface{} `json:"meta"`
}
