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

// ModuleRepository handles persistence of course modules.
type ModuleRepository struct {
	db *sqlx.DB
}

// NewModuleRepository constructs the repository.
func NewModuleRepository(db *sqlx.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

const moduleColumns = `id, course_id, title, description, ord, created_at, updated_at`

// FindByID returns a module by its ID.
func (r *ModuleRepository) FindByID(ctx context.Context, id string) (*models.Module, error) {
	query := fmt.Sprintf("SELECT %s FROM modules WHERE id = $1", moduleColumns)
	var module models.Module
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		return nil, err
	}
	return &module, nil
}

// ListByCourse returns a course's modules in ascending order position.
func (r *ModuleRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Module, error) {
	query := fmt.Sprintf("SELECT %s FROM modules WHERE course_id = $1 ORDER BY ord ASC", moduleColumns)
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query, courseID); err != nil {
		return nil, fmt.Errorf("list course modules: %w", err)
	}
	return modules, nil
}

// Create persists a new module. A colliding (course, order) pair surfaces as
// a unique violation for the caller to map.
func (r *ModuleRepository) Create(ctx context.Context, module *models.Module) error {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	module.CreatedAt = now
	module.UpdatedAt = now
	const query = `INSERT INTO modules (id, course_id, title, description, ord, created_at, updated_at)
        VALUES (:id, :course_id, :title, :description, :ord, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, module); err != nil {
		return err
	}
	return nil
}

// ModuleUpdate lists the updatable module fields. Nil pointers are skipped.
type ModuleUpdate struct {
	Title       *string
	Description *string
	Order       *int
}

// Update applies a partial update. An order collision surfaces as a unique
// violation for the caller to map.
func (r *ModuleRepository) Update(ctx context.Context, id string, update ModuleUpdate) error {
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
	if update.Order != nil {
		appendSet("ord", *update.Order)
	}

	query := fmt.Sprintf("UPDATE modules SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}

// Delete removes a module row.
func (r *ModuleRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM modules WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete module: %w", err)
	}
	return nil
}

// CountLessons returns how many lessons still reference the module.
func (r *ModuleRepository) CountLessons(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM lessons WHERE module_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count module lessons: %w", err)
	}
	return count, nil
}
