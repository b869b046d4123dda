package service

import (
	"context"
	"database/sql"
	"strings"
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

type fakeCourseRepo struct {
	courses    map[string]*models.Course
	createErr  error
	updateErr  error
	created    *models.Course
	updated    map[string]repository.CourseUpdate
	assignWins bool
	assigned   [][2]string
	statusSet  map[string]models.CourseStatus
	lastFilter models.CourseFilter
}

func (f *fakeCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	f.lastFilter = filter
	var out []models.Course
	for _, course := range f.courses {
		out = append(out, *course)
	}
	return out, len(out), nil
}

func (f *fakeCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if course, ok := f.courses[id]; ok {
		copied := *course
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if f.createErr != nil {
		return f.createErr
	}
	if course.ID == "" {
		course.ID = "course-new"
	}
	if f.courses == nil {
		f.courses = make(map[string]*models.Course)
	}
	copied := *course
	f.courses[course.ID] = &copied
	f.created = course
	return nil
}

func (f *fakeCourseRepo) Update(ctx context.Context, id string, update repository.CourseUpdate) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updated == nil {
		f.updated = make(map[string]repository.CourseUpdate)
	}
	f.updated[id] = update
	return nil
}

func (f *fakeCourseRepo) Assign(ctx context.Context, courseID, userID string) (bool, error) {
	f.assigned = append(f.assigned, [2]string{courseID, userID})
	if f.assignWins {
		course := f.courses[courseID]
		course.AssignedTo = &userID
	}
	return f.assignWins, nil
}

func (f *fakeCourseRepo) UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error {
	if f.statusSet == nil {
		f.statusSet = make(map[string]models.CourseStatus)
	}
	f.statusSet[id] = status
	f.courses[id].Status = status
	return nil
}

func (f *fakeCourseRepo) FindUserSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	out := make(map[string]models.UserSummary)
	for _, id := range ids {
		out[id] = models.UserSummary{ID: id, FullName: "User " + id}
	}
	return out, nil
}

type fakeModuleLister struct {
	byCourse map[string][]models.Module
}

func (f *fakeModuleLister) ListByCourse(ctx context.Context, courseID string) ([]models.Module, error) {
	return f.byCourse[courseID], nil
}

func newCourseService(repo *fakeCourseRepo, media *fakeMediaStore, cleanup *fakeCleanup, events *fakeNotifier) *CourseService {
	if media == nil {
		media = &fakeMediaStore{}
	}
	if cleanup == nil {
		cleanup = &fakeCleanup{}
	}
	if events == nil {
		events = &fakeNotifier{}
	}
	return NewCourseService(repo, &fakeModuleLister{}, &fakeLessonLister{}, &fakeUserChecker{existing: map[string]bool{"user-2": true}}, media, cleanup, events, validator.New(), zap.NewNop())
}

func TestCourseListNarrowsStatusForStudents(t *testing.T) {
	repo := &fakeCourseRepo{courses: map[string]*models.Course{}}
	svc := newCourseService(repo, nil, nil, nil)

	_, _, err := svc.List(context.Background(), models.RoleStudent, models.CourseFilter{
		Statuses: []models.CourseStatus{models.CourseStatusDraft, models.CourseStatusPublished},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.CourseStatus{models.CourseStatusPublished}, repo.lastFilter.Statuses)
}

func TestCourseListStudentDraftFilterStillGetsPublished(t *testing.T) {
	// A student filtering on DRAFT is not short-circuited to an empty
	// page; the published constraint replaces the filter and the query
	// still runs.
	repo := &fakeCourseRepo{courses: map[string]*models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusPublished},
	}}
	svc := newCourseService(repo, nil, nil, nil)

	courses, _, err := svc.List(context.Background(), models.RoleStudent, models.CourseFilter{
		Statuses: []models.CourseStatus{models.CourseStatusDraft},
	})
	require.NoError(t, err)
	assert.Len(t, courses, 1)
	assert.Equal(t, []models.CourseStatus{models.CourseStatusPublished}, repo.lastFilter.Statuses)
}

func TestCourseGetInvisibleLooksLikeMissing(t *testing.T) {
	repo := &fakeCourseRepo{courses: map[string]*models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusDraft, CreatedBy: "user-1"},
	}}
	svc := newCourseService(repo, nil, nil, nil)

	_, errInvisible := svc.Get(context.Background(), models.RoleStudent, "c1")
	_, errMissing := svc.Get(context.Background(), models.RoleStudent, "c9")

	require.Error(t, errInvisible)
	require.Error(t, errMissing)
	assert.Equal(t, appErrors.FromError(errMissing).Message, appErrors.FromError(errInvisible).Message)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(errInvisible).Code)
}

func TestCourseGetBuildsOrderedTree(t *testing.T) {
	repo := &fakeCourseRepo{courses: map[string]*models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusPublished, CreatedBy: "user-1"},
	}}
	modules := &fakeModuleLister{byCourse: map[string][]models.Module{
		"c1": {{ID: "m1", CourseID: "c1", Order: 1}, {ID: "m2", CourseID: "c1", Order: 2}},
	}}
	lessons := &fakeLessonLister{byModule: map[string][]models.Lesson{
		"m1": {{ID: "l1", ModuleID: "m1", Order: 1}},
	}}
	svc := NewCourseService(repo, modules, lessons, &fakeUserChecker{}, &fakeMediaStore{}, &fakeCleanup{}, &fakeNotifier{}, validator.New(), zap.NewNop())

	detail, err := svc.Get(context.Background(), models.RoleStudent, "c1")
	require.NoError(t, err)
	require.Len(t, detail.Modules, 2)
	assert.Len(t, detail.Modules[0].Lessons, 1)
	assert.Empty(t, detail.Modules[1].Lessons)
	require.NotNil(t, detail.Creator)
}

func TestCourseCreateDefaultsAndInstructorAutoAssign(t *testing.T) {
	repo := &fakeCourseRepo{}
	svc := newCourseService(repo, nil, nil, nil)

	course, err := svc.Create(context.Background(), "inst-1", models.RoleInstructor, CreateCourseRequest{Title: "Go Basics"})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusDraft, course.Status)
	assert.True(t, course.IsFree)
	assert.Zero(t, course.Price)
	require.NotNil(t, course.AssignedTo)
	assert.Equal(t, "inst-1", *course.AssignedTo)

	admin, err := svc.Create(context.Background(), "admin-1", models.RoleAdmin, CreateCourseRequest{Title: "Go Advanced"})
	require.NoError(t, err)
	assert.Nil(t, admin.AssignedTo)
}

func TestCourseCreateUploadFailureLeavesNoRecord(t *testing.T) {
	repo := &fakeCourseRepo{}
	media := &fakeMediaStore{failFor: "broken.png"}
	svc := newCourseService(repo, media, nil, nil)

	_, err := svc.Create(context.Background(), "admin-1", models.RoleAdmin, CreateCourseRequest{
		Title:     "Go Basics",
		Thumbnail: &MediaUpload{Reader: strings.NewReader("img"), Filename: "broken.png"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestCourseCreateDuplicateTitleConflict(t *testing.T) {
	repo := &fakeCourseRepo{createErr: &pq.Error{Code: "23505"}}
	svc := newCourseService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), "admin-1", models.RoleAdmin, CreateCourseRequest{Title: "Go Basics"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseUpdateSchedulesOldThumbnailCleanup(t *testing.T) {
	repo := &fakeCourseRepo{courses: map[string]*models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusDraft, ThumbnailRef: "image/old.png"},
	}}
	cleanup := &fakeCleanup{}
	svc := newCourseService(repo, &fakeMediaStore{}, cleanup, nil)

	_, err := svc.Update(context.Background(), "c1", UpdateCourseRequest{
		Thumbnail: &MediaUpload{Reader: strings.NewReader("img"), Filename: "new.png"},
	})
	require.NoError(t, err)
	require.Len(t, cleanup.jobs, 1)
	assert.Equal(t, "image/old.png", cleanup.jobs[0].Payload)
}

func TestCourseAssignSetOnce(t *testing.T) {
	repo := &fakeCourseRepo{
		courses:    map[string]*models.Course{"c1": {ID: "c1", Status: models.CourseStatusDraft}},
		assignWins: true,
	}
	svc := newCourseService(repo, nil, nil, nil)

	course, err := svc.Assign(context.Background(), AssignCourseRequest{CourseID: "c1", UserID: "user-2"})
	require.NoError(t, err)
	require.NotNil(t, course.AssignedTo)

	repo.assignWins = false
	_, err = svc.Assign(context.Background(), AssignCourseRequest{CourseID: "c1", UserID: "user-2"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseAssignValidatesTargets(t *testing.T) {
	repo := &fakeCourseRepo{courses: map[string]*models.Course{"c1": {ID: "c1"}}}
	svc := newCourseService(repo, nil, nil, nil)

	_, err := svc.Assign(context.Background(), AssignCourseRequest{CourseID: "missing", UserID: "user-2"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Assign(context.Background(), AssignCourseRequest{CourseID: "c1", UserID: "ghost"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseSetStatusPublishesAdminEvent(t *testing.T) {
	repo := &fakeCourseRepo{courses: map[string]*models.Course{"c1": {ID: "c1", Status: models.CourseStatusDraft}}}
	events := &fakeNotifier{}
	svc := newCourseService(repo, nil, nil, events)

	course, err := svc.SetStatus(context.Background(), "c1", SetCourseStatusRequest{Status: models.CourseStatusPublished})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusPublished, course.Status)
	require.Len(t, events.adminEvents, 1)
	assert.Equal(t, "c1", events.adminEvents[0].CourseID)
}
