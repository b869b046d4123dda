package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openlearn-labs/lms-api/internal/models"
)

// LessonRepository handles persistence of lessons.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

const lessonColumns = `id, module_id, title, video_url, video_ref, duration, thumbnail_url, thumbnail_ref, ord, created_at, updated_at`

// FindByID returns a lesson by its ID.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := fmt.Sprintf("SELECT %s FROM lessons WHERE id = $1", lessonColumns)
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// ListByModule returns a module's lessons in ascending order position.
func (r *LessonRepository) ListByModule(ctx context.Context, moduleID string) ([]models.Lesson, error) {
	query := fmt.Sprintf("SELECT %s FROM lessons WHERE module_id = $1 ORDER BY ord ASC", lessonColumns)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, moduleID); err != nil {
		return nil, fmt.Errorf("list module lessons: %w", err)
	}
	return lessons, nil
}

// ListByModules loads lessons for several modules at once, grouped by module.
func (r *LessonRepository) ListByModules(ctx context.Context, moduleIDs []string) (map[string][]models.Lesson, error) {
	grouped := make(map[string][]models.Lesson, len(moduleIDs))
	if len(moduleIDs) == 0 {
		return grouped, nil
	}
	placeholders := make([]string, len(moduleIDs))
	args := make([]interface{}, len(moduleIDs))
	for i, id := range moduleIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf("SELECT %s FROM lessons WHERE module_id IN (%s) ORDER BY ord ASC",
		lessonColumns, strings.Join(placeholders, ","))
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, args...); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	for _, lesson := range lessons {
		grouped[lesson.ModuleID] = append(grouped[lesson.ModuleID], lesson)
	}
	return grouped, nil
}

// Create persists a new lesson. A colliding (module, order) pair surfaces as
// a unique violation for the caller to map.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lesson.CreatedAt = now
	lesson.UpdatedAt = now
	const query = `INSERT INTO lessons (id, module_id, title, video_url, video_ref, duration, thumbnail_url, thumbnail_ref, ord, created_at, updated_at)
        VALUES (:id, :module_id, :title, :video_url, :video_ref, :duration, :thumbnail_url, :thumbnail_ref, :ord, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return err
	}
	return nil
}

// LessonUpdate lists the updatable lesson fields. Nil pointers are skipped.
type LessonUpdate struct {
	Title        *string
	VideoURL     *string
	VideoRef     *string
	Duration     *int
	ThumbnailURL *string
	ThumbnailRef *string
	Order        *int
}

// Update applies a partial update. An order collision surfaces as a unique
// violation for the caller to map.
func (r *LessonRepository) Update(ctx context.Context, id string, update LessonUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}

	appendSet := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Title != nil {
		appendSet("title", *update.Title)
	}
	if update.VideoURL != nil {
		appendSet("video_url", *update.VideoURL)
	}
	if update.VideoRef != nil {
		appendSet("video_ref", *update.VideoRef)
	}
	if update.Duration != nil {
		appendSet("duration", *update.Duration)
	}
	if update.ThumbnailURL != nil {
		appendSet("thumbnail_url", *update.ThumbnailURL)
	}
	if update.ThumbnailRef != nil {
		appendSet("thumbnail_ref", *update.ThumbnailRef)
	}
	if update.Order != nil {
		appendSet("ord", *update.Order)
	}

	query := fmt.Sprintf("UPDATE lessons SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}

// Delete removes a lesson row.
func (r *LessonRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM lessons WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	return nil
}
