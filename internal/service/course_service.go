package service

import (
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openlearn-labs/lms-api/internal/bus"
	"github.com/openlearn-labs/lms-api/internal/models"
	"github.com/openlearn-labs/lms-api/internal/repository"
	appErrors "github.com/openlearn-labs/lms-api/pkg/errors"
	"github.com/openlearn-labs/lms-api/pkg/jobs"
	"github.com/openlearn-labs/lms-api/pkg/storage"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, id string, update repository.CourseUpdate) error
	Assign(ctx context.Context, courseID, userID string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error
	FindUserSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
}

type moduleLister interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Module, error)
}

type lessonLister interface {
	ListByModules(ctx context.Context, moduleIDs []string) (map[string][]models.Lesson, error)
}

type userChecker interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
}

type mediaStore interface {
	Save(ctx context.Context, r io.Reader, kind storage.MediaKind, originalName string) (*storage.MediaFile, error)
}

type cleanupDispatcher interface {
	Enqueue(job jobs.Job) error
}

type notifier interface {
	PublishAdmin(evt bus.Event)
	PublishUser(userID string, evt bus.Event)
}

// MediaUpload carries an incoming multipart file into the service layer.
type MediaUpload struct {
	Reader   io.Reader
	Filename string
}

// CreateCourseRequest describes course creation payload.
type CreateCourseRequest struct {
	Title       string `json:"title" validate:"required,min=3"`
	Description string `json:"description"`
	Thumbnail   *MediaUpload
}

// UpdateCourseRequest describes a partial course update.
type UpdateCourseRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=3"`
	Description *string `json:"description"`
	Price       *int64  `json:"price" validate:"omitempty,gte=0"`
	IsFree      *bool   `json:"is_free"`
	Thumbnail   *MediaUpload
}

// AssignCourseRequest binds a course to its permanent owner.
type AssignCourseRequest struct {
	CourseID string `json:"course_id" validate:"required"`
	UserID   string `json:"user_id" validate:"required"`
}

// SetCourseStatusRequest transitions the publication status.
type SetCourseStatusRequest struct {
	Status models.CourseStatus `json:"status" validate:"required,oneof=DRAFT PUBLISHED UNPUBLISHED"`
}

// CourseService orchestrates course catalog workflows.
type CourseService struct {
	repo      courseRepository
	modules   moduleLister
	lessons   lessonLister
	users     userChecker
	media     mediaStore
	cleanup   cleanupDispatcher
	events    notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, modules moduleLister, lessons lessonLister, users userChecker, media mediaStore, cleanup cleanupDispatcher, events notifier, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, modules: modules, lessons: lessons, users: users, media: media, cleanup: cleanup, events: events, validator: validate, logger: logger}
}

// List returns the courses visible to the role, newest first. The status
// filter is resolved by role before it reaches the database: staff filters
// are honored, a student's filter is replaced by the published constraint.
func (s *CourseService) List(ctx context.Context, role models.UserRole, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	filter.Statuses = VisibleStatuses(role, filter.Statuses)
	if len(filter.Statuses) == 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		return []models.Course{}, &models.Pagination{Page: page, PageSize: 20, TotalCount: 0}, nil
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return courses, pagination, nil
}

// Get returns the full course tree. A course the role cannot see is reported
// as not found, indistinguishable from a course that does not exist.
func (s *CourseService) Get(ctx context.Context, role models.UserRole, id string) (*models.CourseDetail, error) {
	course, err := s.visibleCourse(ctx, role, id)
	if err != nil {
		return nil, err
	}

	modules, err := s.modules.ListByCourse(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course modules")
	}
	moduleIDs := make([]string, len(modules))
	for i, module := range modules {
		moduleIDs[i] = module.ID
	}
	lessonsByModule, err := s.lessons.ListByModules(ctx, moduleIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course lessons")
	}

	detail := &models.CourseDetail{Course: *course, Modules: make([]models.ModuleDetail, len(modules))}
	for i, module := range modules {
		lessons := lessonsByModule[module.ID]
		if lessons == nil {
			lessons = []models.Lesson{}
		}
		detail.Modules[i] = models.ModuleDetail{Module: module, Lessons: lessons}
	}

	people := []string{course.CreatedBy}
	if course.AssignedTo != nil {
		people = append(people, *course.AssignedTo)
	}
	summaries, err := s.repo.FindUserSummaries(ctx, people)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course people")
	}
	if creator, ok := summaries[course.CreatedBy]; ok {
		detail.Creator = &creator
	}
	if course.AssignedTo != nil {
		if assignee, ok := summaries[*course.AssignedTo]; ok {
			detail.Assignee = &assignee
		}
	}
	return detail, nil
}

// Create registers a new draft course. The thumbnail upload happens before
// the insert; an upload failure leaves no record behind. Instructors are
// auto-assigned to their own courses.
func (s *CourseService) Create(ctx context.Context, actorID string, actorRole models.UserRole, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{
		Title:       req.Title,
		Description: req.Description,
		Status:      models.CourseStatusDraft,
		IsFree:      true,
		CreatedBy:   actorID,
	}
	if actorRole == models.RoleInstructor {
		course.AssignedTo = &actorID
	}

	if req.Thumbnail != nil {
		file, err := s.media.Save(ctx, req.Thumbnail.Reader, storage.MediaKindImage, req.Thumbnail.Filename)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "thumbnail upload failed")
		}
		course.ThumbnailURL = file.URL
		course.ThumbnailRef = file.Ref
	}

	if err := s.repo.Create(ctx, course); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course title already in use")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update applies a partial update. Thumbnail replacement uploads the new
// file first and only schedules the old one for deletion once the row has
// been updated.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	update := repository.CourseUpdate{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		IsFree:      req.IsFree,
	}
	oldRef := ""
	if req.Thumbnail != nil {
		file, err := s.media.Save(ctx, req.Thumbnail.Reader, storage.MediaKindImage, req.Thumbnail.Filename)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "thumbnail upload failed")
		}
		update.ThumbnailURL = &file.URL
		update.ThumbnailRef = &file.Ref
		oldRef = course.ThumbnailRef
	}

	if err := s.repo.Update(ctx, id, update); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course title already in use")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.scheduleMediaCleanup(id, oldRef)

	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload course")
	}
	return updated, nil
}

// Assign binds the course to its owner exactly once. Losing a race, or
// targeting an already-assigned course, reports a conflict.
func (s *CourseService) Assign(ctx context.Context, req AssignCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if _, err := s.repo.FindByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	exists, err := s.users.ExistsByID(ctx, req.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate assignee")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignee does not exist")
	}

	won, err := s.repo.Assign(ctx, req.CourseID, req.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign course")
	}
	if !won {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course already assigned")
	}

	course, err := s.repo.FindByID(ctx, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload course")
	}
	return course, nil
}

// SetStatus transitions the publication status and notifies admin
// dashboards. The notification is fire and forget.
func (s *CourseService) SetStatus(ctx context.Context, id string, req SetCourseStatusRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course status")
	}

	s.events.PublishAdmin(bus.Event{Type: bus.EventCourseStatusChanged, CourseID: id})

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload course")
	}
	return course, nil
}

func (s *CourseService) visibleCourse(ctx context.Context, role models.UserRole, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no course found or access denied")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !CourseVisible(role, course.Status) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no course found or access denied")
	}
	return course, nil
}

func (s *CourseService) scheduleMediaCleanup(resourceID, ref string) {
	if ref == "" || s.cleanup == nil {
		return
	}
	job := jobs.Job{ID: resourceID, Type: "media.delete", Payload: ref, Enqueued: time.Now().UTC()}
	if err := s.cleanup.Enqueue(job); err != nil {
		s.logger.Sugar().Warnw("failed to schedule media cleanup", "ref", ref, "error", err)
	}
}
