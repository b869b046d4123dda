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

// CourseRepository handles persistence of courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, title, description, thumbnail_url, thumbnail_ref, price, is_free, status, created_by, assigned_to, created_at, updated_at`

// List returns courses filtered by the provided criteria, newest first.
// Statuses act as a visibility pre-filter applied before pagination.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var conditions []string
	var args []interface{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM courses%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		courseColumns, clause, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM courses" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Create persists a new course. A duplicate title surfaces as a unique
// violation for the caller to map.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, title, description, thumbnail_url, thumbnail_ref, price, is_free, status, created_by, assigned_to, created_at, updated_at)
        VALUES (:id, :title, :description, :thumbnail_url, :thumbnail_ref, :price, :is_free, :status, :created_by, :assigned_to, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return err
	}
	return nil
}

// CourseUpdate lists the updatable course fields. Nil pointers are skipped.
type CourseUpdate struct {
	Title        *string
	Description  *string
	Price        *int64
	IsFree       *bool
	ThumbnailURL *string
	ThumbnailRef *string
}

// Update applies a partial update. A duplicate title surfaces as a unique
// violation for the caller to map.
func (r *CourseRepository) Update(ctx context.Context, id string, update CourseUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}

	appendSet := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Title != nil {
		appendSet("title", *update.Title)
	}
	if update.Description != nil {
		appendSet("description", *update.Description)
	}
	if update.Price != nil {
		appendSet("price", *update.Price)
	}
	if update.IsFree != nil {
		appendSet("is_free", *update.IsFree)
	}
	if update.ThumbnailURL != nil {
		appendSet("thumbnail_url", *update.ThumbnailURL)
	}
	if update.ThumbnailRef != nil {
		appendSet("thumbnail_ref", *update.ThumbnailRef)
	}

	query := fmt.Sprintf("UPDATE courses SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}

// Assign sets the course owner exactly once. Returns false when the course
// already has an assignee, so exactly one of N racing calls observes true.
func (r *CourseRepository) Assign(ctx context.Context, courseID, userID string) (bool, error) {
	const query = `UPDATE courses SET assigned_to = $2, updated_at = NOW() WHERE id = $1 AND assigned_to IS NULL`
	res, err := r.db.ExecContext(ctx, query, courseID, userID)
	if err != nil {
		return false, fmt.Errorf("assign course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("assign course result: %w", err)
	}
	return affected == 1, nil
}

// UpdateStatus transitions the course publication status.
func (r *CourseRepository) UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error {
	const query = `UPDATE courses SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update course status: %w", err)
	}
	return nil
}

// CountByStatus aggregates course counts per status for the dashboard.
func (r *CourseRepository) CountByStatus(ctx context.Context) (map[models.CourseStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS count FROM courses GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count courses by status: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[models.CourseStatus]int)
	for rows.Next() {
		var status models.CourseStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan course count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// FindSummaries loads course summaries for a set of IDs.
func (r *CourseRepository) FindSummaries(ctx context.Context, ids []string) (map[string]models.CourseSummary, error) {
	summaries := make(map[string]models.CourseSummary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf("SELECT id, title, thumbnail_url, status FROM courses WHERE id IN (%s)", strings.Join(placeholders, ","))
	var rows []models.CourseSummary
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find course summaries: %w", err)
	}
	for _, summary := range rows {
		summaries[summary.ID] = summary
	}
	return summaries, nil
}

// FindUserSummaries loads user summaries for a set of IDs.
func (r *CourseRepository) FindUserSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	summaries := make(map[string]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf("SELECT id, email, full_name, role FROM users WHERE id IN (%s)", strings.Join(placeholders, ","))
	var rows []models.UserSummary
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find user summaries: %w", err)
	}
	for _, summary := range rows {
		summaries[summary.ID] = summary
	}
	return summaries, nil
}
