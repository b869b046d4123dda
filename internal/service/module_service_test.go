package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openlearn-labs/lms-api/internal/models"
	"github.com/openlearn-labs/lms-api/internal/repository"
	appErrors "github.com/openlearn-labs/lms-api/pkg/errors"
)

type fakeModuleRepo struct {
	modules     map[string]*models.Module
	createErr   error
	updateErr   error
	lessonCount map[string]int
	deleted     []string
}

func (f *fakeModuleRepo) FindByID(ctx context.Context, id string) (*models.Module, error) {
	if module, ok := f.modules[id]; ok {
		copied := *module
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeModuleRepo) ListByCourse(ctx context.Context, courseID string) ([]models.Module, error) {
	var out []models.Module
	for _, module := range f.modules {
		if module.CourseID == courseID {
			out = append(out, *module)
		}
	}
	return out, nil
}

func (f *fakeModuleRepo) Create(ctx context.Context, module *models.Module) error {
	if f.createErr != nil {
		return f.createErr
	}
	if module.ID == "" {
		module.ID = "mod-new"
	}
	if f.modules == nil {
		f.modules = make(map[string]*models.Module)
	}
	copied := *module
	f.modules[module.ID] = &copied
	return nil
}

func (f *fakeModuleRepo) Update(ctx context.Context, id string, update repository.ModuleUpdate) error {
	return f.updateErr
}

func (f *fakeModuleRepo) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeModuleRepo) CountLessons(ctx context.Context, id string) (int, error) {
	return f.lessonCount[id], nil
}

func newModuleService(repo *fakeModuleRepo, courses *fakeCourseReader) *ModuleService {
	return NewModuleService(repo, courses, &fakeLessonLister{}, validator.New(), zap.NewNop())
}

func TestModuleCreateRequiresCourse(t *testing.T) {
	svc := newModuleService(&fakeModuleRepo{}, &fakeCourseReader{})

	_, err := svc.Create(context.Background(), "missing", CreateModuleRequest{Title: "Intro", Order: 1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestModuleCreateOrderCollisionConflict(t *testing.T) {
	repo := &fakeModuleRepo{createErr: &pq.Error{Code: "23505"}}
	courses := &fakeCourseReader{courses: map[string]*models.Course{"c1": {ID: "c1"}}}
	svc := newModuleService(repo, courses)

	_, err := svc.Create(context.Background(), "c1", CreateModuleRequest{Title: "Intro", Order: 1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestModuleGetInheritsCourseVisibility(t *testing.T) {
	repo := &fakeModuleRepo{modules: map[string]*models.Module{
		"m1": {ID: "m1", CourseID: "c1", Title: "Intro"},
	}}
	courses := &fakeCourseReader{courses: map[string]*models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusDraft},
	}}
	svc := newModuleService(repo, courses)

	_, err := svc.Get(context.Background(), models.RoleStudent, "m1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	detail, err := svc.Get(context.Background(), models.RoleInstructor, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", detail.ID)
	assert.NotNil(t, detail.Lessons)
}

func TestModuleDeleteRejectedWhileLessonsExist(t *testing.T) {
	repo := &fakeModuleRepo{
		modules:     map[string]*models.Module{"m1": {ID: "m1", CourseID: "c1"}},
		lessonCount: map[string]int{"m1": 2},
	}
	svc := newModuleService(repo, &fakeCourseReader{})

	err := svc.Delete(context.Background(), "m1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestModuleDeleteEmptyModule(t *testing.T) {
	repo := &fakeModuleRepo{modules: map[string]*models.Module{"m1": {ID: "m1", CourseID: "c1"}}}
	svc := newModuleService(repo, &fakeCourseReader{})

	require.NoError(t, svc.Delete(context.Background(), "m1"))
	assert.Contains(t, repo.deleted, "m1")
}
