package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openlearn-labs/lms-api/internal/bus"
	"github.com/openlearn-labs/lms-api/internal/models"
	"github.com/openlearn-labs/lms-api/internal/repository"
	appErrors "github.com/openlearn-labs/lms-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	Complete(ctx context.Context, id string, at time.Time) error
}

type summaryReader interface {
	FindSummaries(ctx context.Context, ids []string) (map[string]models.CourseSummary, error)
	FindUserSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
}

// SetEnrollmentStatusRequest is the staff-side status override payload.
type SetEnrollmentStatusRequest struct {
	CourseID string                  `json:"course_id" validate:"required"`
	UserID   string                  `json:"user_id" validate:"required"`
	Status   models.EnrollmentStatus `json:"status" validate:"required,oneof=ACTIVE COMPLETED CANCELLED"`
}

// EnrollmentService orchestrates the enrollment lifecycle.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseReader
	summaries summaryReader
	events    notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseReader, summaries summaryReader, events notifier, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, summaries: summaries, events: events, validator: validate, logger: logger}
}

// Enroll registers the acting student on a course.
//
// A missing course and an unpublished course produce the same forbidden
// answer, so callers cannot map the catalog through enrollment attempts.
// Any existing enrollment for the pair blocks re-enrollment regardless of
// its status, cancelled included. Under concurrency the unique index on
// (user_id, course_id) decides the single winner.
func (s *EnrollmentService) Enroll(ctx context.Context, actorID string, courseID string) (*models.Enrollment, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "course is not open for enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.Status != models.CourseStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course is not open for enrollment")
	}

	if _, err := s.repo.FindByUserAndCourse(ctx, actorID, courseID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in course")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}

	enrollment := &models.Enrollment{
		UserID:   actorID,
		CourseID: courseID,
		Status:   models.EnrollmentStatusActive,
		Progress: 0,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.publish(bus.EventEnrollmentCreated, actorID, courseID)
	return enrollment, nil
}

// Complete marks the actor's own enrollment finished. Completion overwrites
// whatever state the enrollment was in, including cancelled.
func (s *EnrollmentService) Complete(ctx context.Context, actorID string, courseID string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByUserAndCourse(ctx, actorID, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	completedAt := time.Now().UTC()
	if err := s.repo.Complete(ctx, enrollment.ID, completedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete enrollment")
	}
	enrollment.Status = models.EnrollmentStatusCompleted
	enrollment.Progress = 100
	enrollment.CompletedAt = &completedAt

	s.publish(bus.EventEnrollmentCompleted, actorID, courseID)
	return enrollment, nil
}

// SetStatus is the staff-side status override. COMPLETED is reserved for the
// learner's own completion flow and is always rejected here. Any other
// transition overwrites unconditionally.
func (s *EnrollmentService) SetStatus(ctx context.Context, req SetEnrollmentStatusRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if req.Status == models.EnrollmentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrValidation, "completion cannot be set administratively")
	}

	enrollment, err := s.repo.FindByUserAndCourse(ctx, req.UserID, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := s.repo.UpdateStatus(ctx, enrollment.ID, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	enrollment.Status = req.Status

	s.publish(bus.EventEnrollmentUpdated, req.UserID, req.CourseID)
	return enrollment, nil
}

// List returns enrollments scoped by role: students see their own records
// with course summaries, staff see everything with user summaries as well.
// The meta map carries the distinct courses referenced by the page.
func (s *EnrollmentService) List(ctx context.Context, actorID string, role models.UserRole, page int) ([]models.EnrollmentDetail, *models.Pagination, map[string]interface{}, error) {
	filter := models.EnrollmentFilter{Page: page, PageSize: 20}
	if role == models.RoleStudent {
		filter.UserID = actorID
	}

	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	details, courseSet, err := s.decorate(ctx, enrollments, role != models.RoleStudent)
	if err != nil {
		return nil, nil, nil, err
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	meta := map[string]interface{}{"distinct_courses": courseSet}
	return details, pagination, meta, nil
}

// ListEnrolledUsers returns a course's learners, cancelled excluded.
func (s *EnrollmentService) ListEnrolledUsers(ctx context.Context, courseID string, page int) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	filter := models.EnrollmentFilter{
		CourseID:      courseID,
		ExcludeStatus: models.EnrollmentStatusCancelled,
		Page:          page,
		PageSize:      20,
	}
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled users")
	}

	details, _, err := s.decorate(ctx, enrollments, true)
	if err != nil {
		return nil, nil, err
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return details, pagination, nil
}

func (s *EnrollmentService) decorate(ctx context.Context, enrollments []models.Enrollment, withUsers bool) ([]models.EnrollmentDetail, []string, error) {
	courseIDs := make([]string, 0, len(enrollments))
	userIDs := make([]string, 0, len(enrollments))
	seenCourses := make(map[string]bool)
	seenUsers := make(map[string]bool)
	for _, enrollment := range enrollments {
		if !seenCourses[enrollment.CourseID] {
			seenCourses[enrollment.CourseID] = true
			courseIDs = append(courseIDs, enrollment.CourseID)
		}
		if withUsers && !seenUsers[enrollment.UserID] {
			seenUsers[enrollment.UserID] = true
			userIDs = append(userIDs, enrollment.UserID)
		}
	}

	courseSummaries, err := s.summaries.FindSummaries(ctx, courseIDs)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course summaries")
	}
	var userSummaries map[string]models.UserSummary
	if withUsers {
		userSummaries, err = s.summaries.FindUserSummaries(ctx, userIDs)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user summaries")
		}
	}

	details := make([]models.EnrollmentDetail, len(enrollments))
	for i, enrollment := range enrollments {
		detail := models.EnrollmentDetail{Enrollment: enrollment}
		if course, ok := courseSummaries[enrollment.CourseID]; ok {
			detail.Course = &course
		}
		if withUsers {
			if user, ok := userSummaries[enrollment.UserID]; ok {
				detail.User = &user
			}
		}
		details[i] = detail
	}
	return details, courseIDs, nil
}

func (s *EnrollmentService) publish(eventType bus.EventType, userID, courseID string) {
	if s.events == nil {
		return
	}
	evt := bus.Event{Type: eventType, CourseID: courseID}
	s.events.PublishAdmin(evt)
	s.events.PublishUser(userID, evt)
}
