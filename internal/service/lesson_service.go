package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openlearn-labs/lms-api/internal/models"
	"github.com/openlearn-labs/lms-api/internal/repository"
	appErrors "github.com/openlearn-labs/lms-api/pkg/errors"
	"github.com/openlearn-labs/lms-api/pkg/jobs"
	"github.com/openlearn-labs/lms-api/pkg/storage"
)

type lessonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	Create(ctx context.Context, lesson *models.Lesson) error
	Update(ctx context.Context, id string, update repository.LessonUpdate) error
	Delete(ctx context.Context, id string) error
}

type moduleReader interface {
	FindByID(ctx context.Context, id string) (*models.Module, error)
}

type playbackSigner interface {
	Generate(lessonID, mediaRef string) (string, time.Time, error)
}

// CreateLessonRequest describes lesson creation payload.
type CreateLessonRequest struct {
	Title     string `json:"title" validate:"required,min=2"`
	Duration  int    `json:"duration" validate:"gte=0"`
	Order     int    `json:"order" validate:"gte=0"`
	Video     *MediaUpload
	Thumbnail *MediaUpload
}

// UpdateLessonRequest describes a partial lesson update.
type UpdateLessonRequest struct {
	Title     *string `json:"title" validate:"omitempty,min=2"`
	Duration  *int    `json:"duration" validate:"omitempty,gte=0"`
	Order     *int    `json:"order" validate:"omitempty,gte=0"`
	Video     *MediaUpload
	Thumbnail *MediaUpload
}

// PlaybackGrant is a short-lived signed reference to a lesson's video.
type PlaybackGrant struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LessonService orchestrates lesson workflows within a module.
type LessonService struct {
	repo      lessonRepository
	modules   moduleReader
	courses   courseReader
	media     mediaStore
	cleanup   cleanupDispatcher
	signer    playbackSigner
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLessonService constructs LessonService.
func NewLessonService(repo lessonRepository, modules moduleReader, courses courseReader, media mediaStore, cleanup cleanupDispatcher, signer playbackSigner, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonService{repo: repo, modules: modules, courses: courses, media: media, cleanup: cleanup, signer: signer, validator: validate, logger: logger}
}

// Create adds a lesson to an existing module. Media uploads happen before
// the insert so a failed upload leaves no record. The (module, order) slot
// is arbitrated by the database unique index.
func (s *LessonService) Create(ctx context.Context, moduleID string, req CreateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	if _, err := s.modules.FindByID(ctx, moduleID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}

	lesson := &models.Lesson{
		ModuleID: moduleID,
		Title:    req.Title,
		Duration: req.Duration,
		Order:    req.Order,
	}
	if req.Video != nil {
		file, err := s.media.Save(ctx, req.Video.Reader, storage.MediaKindVideo, req.Video.Filename)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "video upload failed")
		}
		lesson.VideoURL = file.URL
		lesson.VideoRef = file.Ref
	}
	if req.Thumbnail != nil {
		file, err := s.media.Save(ctx, req.Thumbnail.Reader, storage.MediaKindImage, req.Thumbnail.Filename)
		if err != nil {
			s.scheduleMediaCleanup(lesson.VideoRef)
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "thumbnail upload failed")
		}
		lesson.ThumbnailURL = file.URL
		lesson.ThumbnailRef = file.Ref
	}

	if err := s.repo.Create(ctx, lesson); err != nil {
		s.scheduleMediaCleanup(lesson.VideoRef)
		s.scheduleMediaCleanup(lesson.ThumbnailRef)
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "lesson order already taken")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	return lesson, nil
}

// Update applies a partial update. Media replacement uploads first and only
// schedules old files for deletion after the row has been updated.
func (s *LessonService) Update(ctx context.Context, id string, req UpdateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	lesson, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	update := repository.LessonUpdate{
		Title:    req.Title,
		Duration: req.Duration,
		Order:    req.Order,
	}
	oldVideoRef, oldThumbRef := "", ""
	if req.Video != nil {
		file, err := s.media.Save(ctx, req.Video.Reader, storage.MediaKindVideo, req.Video.Filename)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "video upload failed")
		}
		update.VideoURL = &file.URL
		update.VideoRef = &file.Ref
		oldVideoRef = lesson.VideoRef
	}
	if req.Thumbnail != nil {
		file, err := s.media.Save(ctx, req.Thumbnail.Reader, storage.MediaKindImage, req.Thumbnail.Filename)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "thumbnail upload failed")
		}
		update.ThumbnailURL = &file.URL
		update.ThumbnailRef = &file.Ref
		oldThumbRef = lesson.ThumbnailRef
	}

	if err := s.repo.Update(ctx, id, update); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "lesson order already taken")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}

	s.scheduleMediaCleanup(oldVideoRef)
	s.scheduleMediaCleanup(oldThumbRef)

	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload lesson")
	}
	return updated, nil
}

// Delete removes a lesson and schedules its media for cleanup. File cleanup
// is best effort; the row deletion is what counts.
func (s *LessonService) Delete(ctx context.Context, id string) error {
	lesson, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson")
	}
	s.scheduleMediaCleanup(lesson.VideoRef)
	s.scheduleMediaCleanup(lesson.ThumbnailRef)
	return nil
}

// Playback issues a short-lived signed token for the lesson's video.
// Visibility follows the parent course.
func (s *LessonService) Playback(ctx context.Context, role models.UserRole, id string) (*PlaybackGrant, error) {
	lesson, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	module, err := s.modules.FindByID(ctx, lesson.ModuleID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent module")
	}
	course, err := s.courses.FindByID(ctx, module.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent course")
	}
	if !CourseVisible(role, course.Status) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}
	if lesson.VideoRef == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson has no video")
	}

	token, expiresAt, err := s.signer.Generate(lesson.ID, lesson.VideoRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign playback token")
	}
	return &PlaybackGrant{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *LessonService) scheduleMediaCleanup(ref string) {
	if ref == "" || s.cleanup == nil {
		return
	}
	job := jobs.Job{ID: ref, Type: "media.delete", Payload: ref, Enqueued: time.Now().UTC()}
	if err := s.cleanup.Enqueue(job); err != nil {
		s.logger.Sugar().Warnw("failed to schedule media cleanup", "ref", ref, "error", err)
	}
}
