package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/openlearn-labs/lms-api/internal/dto"
	"github.com/openlearn-labs/lms-api/internal/models"
	"github.com/openlearn-labs/lms-api/internal/repository"
	appErrors "github.com/openlearn-labs/lms-api/pkg/errors"
)

const (
	adminDashboardKey      = "dashboard:admin"
	userDashboardKeyPrefix = "dashboard:user:"
)

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type courseCounter interface {
	CountByStatus(ctx context.Context) (map[models.CourseStatus]int, error)
}

type enrollmentReader interface {
	CountByStatus(ctx context.Context) (map[models.EnrollmentStatus]int, error)
	RecentActivity(ctx context.Context, limit int) ([]repository.RecentActivityRow, error)
	ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error)
}

type userCounter interface {
	CountByRole(ctx context.Context) (map[models.UserRole]int, error)
}

// DashboardService computes the admin and per-user dashboard aggregates.
// Aggregates are cached in Redis; bus events invalidate before recompute.
type DashboardService struct {
	courses     courseCounter
	enrollments enrollmentReader
	users       userCounter
	summaries   summaryReader
	cache       dashboardCache
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewDashboardService constructs DashboardService.
func NewDashboardService(courses courseCounter, enrollments enrollmentReader, users userCounter, summaries summaryReader, cache dashboardCache, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{courses: courses, enrollments: enrollments, users: users, summaries: summaries, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// AdminSummary returns the platform-wide aggregate. The bool reports
// whether the summary was served from cache.
func (s *DashboardService) AdminSummary(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	var cached dto.AdminDashboardResponse
	if err := s.cache.Get(ctx, adminDashboardKey, &cached); err == nil {
		return &cached, true, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("admin dashboard cache read failed", zap.Error(err))
	}

	summary, err := s.computeAdminSummary(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := s.cache.Set(ctx, adminDashboardKey, summary, s.cacheTTL); err != nil {
		s.logger.Warn("admin dashboard cache write failed", zap.Error(err))
	}
	return summary, false, nil
}

// UserSummary returns one user's learning overview, cached per user. The
// bool reports whether the summary was served from cache.
func (s *DashboardService) UserSummary(ctx context.Context, userID string) (*dto.UserDashboardResponse, bool, error) {
	key := userDashboardKeyPrefix + userID
	var cached dto.UserDashboardResponse
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, true, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("user dashboard cache read failed", zap.Error(err))
	}

	summary, err := s.computeUserSummary(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if err := s.cache.Set(ctx, key, summary, s.cacheTTL); err != nil {
		s.logger.Warn("user dashboard cache write failed", zap.Error(err))
	}
	return summary, false, nil
}

// Invalidate drops the cached aggregates touched by an event. Called from
// the stream handlers before recompute.
func (s *DashboardService) Invalidate(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, adminDashboardKey); err != nil {
		s.logger.Warn("admin dashboard invalidation failed", zap.Error(err))
	}
	if userID != "" {
		if err := s.cache.Delete(ctx, userDashboardKeyPrefix+userID); err != nil {
			s.logger.Warn("user dashboard invalidation failed", zap.Error(err))
		}
	}
}

func (s *DashboardService) computeAdminSummary(ctx context.Context) (*dto.AdminDashboardResponse, error) {
	courseCounts, err := s.courses.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count courses")
	}
	enrollmentCounts, err := s.enrollments.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	userCounts, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}
	recent, err := s.enrollments.RecentActivity(ctx, 10)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent activity")
	}

	summary := &dto.AdminDashboardResponse{
		Courses: dto.CourseCountsSection{
			Draft:       courseCounts[models.CourseStatusDraft],
			Published:   courseCounts[models.CourseStatusPublished],
			Unpublished: courseCounts[models.CourseStatusUnpublished],
		},
		Enrollments: dto.EnrollmentCountsSection{
			Active:    enrollmentCounts[models.EnrollmentStatusActive],
			Completed: enrollmentCounts[models.EnrollmentStatusCompleted],
			Cancelled: enrollmentCounts[models.EnrollmentStatusCancelled],
		},
		Users: dto.UserCountsSection{
			Admins:      userCounts[models.RoleAdmin],
			Instructors: userCounts[models.RoleInstructor],
			Students:    userCounts[models.RoleStudent],
		},
		Recent:      make([]dto.RecentEnrollmentEntry, len(recent)),
		GeneratedAt: time.Now().UTC(),
	}
	summary.Courses.Total = summary.Courses.Draft + summary.Courses.Published + summary.Courses.Unpublished
	summary.Enrollments.Total = summary.Enrollments.Active + summary.Enrollments.Completed + summary.Enrollments.Cancelled
	summary.Users.Total = summary.Users.Admins + summary.Users.Instructors + summary.Users.Students

	for i, row := range recent {
		summary.Recent[i] = dto.RecentEnrollmentEntry{
			EnrollmentID: row.ID,
			UserName:     row.UserName,
			CourseTitle:  row.CourseTitle,
			Status:       row.Status,
			CreatedAt:    row.CreatedAt,
		}
	}
	return summary, nil
}

func (s *DashboardService) computeUserSummary(ctx context.Context, userID string) (*dto.UserDashboardResponse, error) {
	enrollments, err := s.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user enrollments")
	}

	courseIDs := make([]string, 0, len(enrollments))
	for _, enrollment := range enrollments {
		courseIDs = append(courseIDs, enrollment.CourseID)
	}
	courseSummaries, err := s.summaries.FindSummaries(ctx, courseIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course summaries")
	}

	summary := &dto.UserDashboardResponse{
		UserID:      userID,
		Courses:     make([]dto.UserCourseProgress, 0, len(enrollments)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, enrollment := range enrollments {
		entry := dto.UserCourseProgress{
			CourseID:    enrollment.CourseID,
			Status:      string(enrollment.Status),
			Progress:    enrollment.Progress,
			CompletedAt: enrollment.CompletedAt,
		}
		if course, ok := courseSummaries[enrollment.CourseID]; ok {
			entry.CourseTitle = course.Title
			entry.ThumbnailURL = course.ThumbnailURL
		}
		summary.Courses = append(summary.Courses, entry)

		switch enrollment.Status {
		case models.EnrollmentStatusCompleted:
			summary.Completed++
		case models.EnrollmentStatusActive:
			summary.InProgress++
		}
		if enrollment.Status != models.EnrollmentStatusCancelled {
			summary.Enrolled++
		}
	}
	return summary, nil
}
