package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openlearn-labs/lms-api/internal/models"
	"github.com/openlearn-labs/lms-api/internal/repository"
	appErrors "github.com/openlearn-labs/lms-api/pkg/errors"
)

type fakeDashboardCache struct {
	entries map[string][]byte
	deleted []string
}

func (f *fakeDashboardCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := f.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeDashboardCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if f.entries == nil {
		f.entries = make(map[string][]byte)
	}
	f.entries[key] = raw
	return nil
}

func (f *fakeDashboardCache) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.entries, key)
	return nil
}

type fakeCourseCounter struct {
	counts map[models.CourseStatus]int
	calls  int
}

func (f *fakeCourseCounter) CountByStatus(ctx context.Context) (map[models.CourseStatus]int, error) {
	f.calls++
	return f.counts, nil
}

type fakeEnrollmentReader struct {
	counts map[models.EnrollmentStatus]int
	byUser map[string][]models.Enrollment
}

func (f *fakeEnrollmentReader) CountByStatus(ctx context.Context) (map[models.EnrollmentStatus]int, error) {
	return f.counts, nil
}

func (f *fakeEnrollmentReader) RecentActivity(ctx context.Context, limit int) ([]repository.RecentActivityRow, error) {
	return nil, nil
}

func (f *fakeEnrollmentReader) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	return f.byUser[userID], nil
}

type fakeUserCounter struct {
	counts map[models.UserRole]int
}

func (f *fakeUserCounter) CountByRole(ctx context.Context) (map[models.UserRole]int, error) {
	return f.counts, nil
}

func newDashboardService(courses *fakeCourseCounter, cache *fakeDashboardCache) *DashboardService {
	enrollments := &fakeEnrollmentReader{}
	users := &fakeUserCounter{}
	return NewDashboardService(courses, enrollments, users, &fakeSummaryReader{}, cache, time.Minute, zap.NewNop())
}

func TestAdminSummaryReportsCacheMissThenHit(t *testing.T) {
	courses := &fakeCourseCounter{counts: map[models.CourseStatus]int{models.CourseStatusPublished: 2}}
	cache := &fakeDashboardCache{}
	svc := newDashboardService(courses, cache)

	summary, hit, err := svc.AdminSummary(context.Background())
	require.NoError(t, err)
	assert.False(t, hit, "first call computes")
	assert.Equal(t, 2, summary.Courses.Published)
	assert.Equal(t, 1, courses.calls)

	summary, hit, err = svc.AdminSummary(context.Background())
	require.NoError(t, err)
	assert.True(t, hit, "second call is served from cache")
	assert.Equal(t, 2, summary.Courses.Published)
	assert.Equal(t, 1, courses.calls, "cached call must not recount")
}

func TestUserSummaryReportsCacheMissThenHit(t *testing.T) {
	cache := &fakeDashboardCache{}
	enrollments := &fakeEnrollmentReader{byUser: map[string][]models.Enrollment{
		"user-1": {{CourseID: "c1", Status: models.EnrollmentStatusActive}},
	}}
	svc := NewDashboardService(&fakeCourseCounter{}, enrollments, &fakeUserCounter{}, &fakeSummaryReader{}, cache, time.Minute, zap.NewNop())

	summary, hit, err := svc.UserSummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, summary.InProgress)

	_, hit, err = svc.UserSummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestInvalidateDropsAdminAndUserKeys(t *testing.T) {
	cache := &fakeDashboardCache{}
	svc := newDashboardService(&fakeCourseCounter{}, cache)

	svc.Invalidate(context.Background(), "user-1")

	assert.Contains(t, cache.deleted, "dashboard:admin")
	assert.Contains(t, cache.deleted, "dashboard:user:user-1")
}
