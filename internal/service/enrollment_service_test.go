package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openlearn-labs/lms-api/internal/bus"
	"github.com/openlearn-labs/lms-api/internal/models"
	appErrors "github.com/openlearn-labs/lms-api/pkg/errors"
)

type fakeEnrollmentRepo struct {
	byPair    map[string]models.Enrollment
	createErr error
	created   *models.Enrollment
	completed []string
	statusSet map[string]models.EnrollmentStatus
	listed    []models.Enrollment
	lastList  models.EnrollmentFilter
}

func pairKey(userID, courseID string) string { return userID + "|" + courseID }

func (f *fakeEnrollmentRepo) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	if e, ok := f.byPair[pairKey(userID, courseID)]; ok {
		copied := e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if f.createErr != nil {
		return f.createErr
	}
	if enrollment.ID == "" {
		enrollment.ID = "enr-new"
	}
	if f.byPair == nil {
		f.byPair = make(map[string]models.Enrollment)
	}
	f.byPair[pairKey(enrollment.UserID, enrollment.CourseID)] = *enrollment
	f.created = enrollment
	return nil
}

func (f *fakeEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	f.lastList = filter
	return f.listed, len(f.listed), nil
}

func (f *fakeEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if f.statusSet == nil {
		f.statusSet = make(map[string]models.EnrollmentStatus)
	}
	f.statusSet[id] = status
	return nil
}

func (f *fakeEnrollmentRepo) Complete(ctx context.Context, id string, at time.Time) error {
	f.completed = append(f.completed, id)
	return nil
}

func publishedCourse(id string) *models.Course {
	return &models.Course{ID: id, Title: "Course " + id, Status: models.CourseStatusPublished}
}

func newEnrollmentService(repo *fakeEnrollmentRepo, courses *fakeCourseReader, events *fakeNotifier) *EnrollmentService {
	return NewEnrollmentService(repo, courses, &fakeSummaryReader{}, events, validator.New(), zap.NewNop())
}

func TestEnrollHappyPath(t *testing.T) {
	repo := &fakeEnrollmentRepo{}
	courses := &fakeCourseReader{courses: map[string]*models.Course{"c1": publishedCourse("c1")}}
	events := &fakeNotifier{}
	svc := newEnrollmentService(repo, courses, events)

	enrollment, err := svc.Enroll(context.Background(), "student-1", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Zero(t, enrollment.Progress)
	assert.Len(t, events.adminEvents, 1)
	assert.Equal(t, bus.EventEnrollmentCreated, events.adminEvents[0].Type)
	assert.Len(t, events.userEvents["student-1"], 1)
}

func TestEnrollMissingAndUnpublishedCollapseToForbidden(t *testing.T) {
	draft := &models.Course{ID: "c2", Status: models.CourseStatusDraft}
	courses := &fakeCourseReader{courses: map[string]*models.Course{"c2": draft}}
	svc := newEnrollmentService(&fakeEnrollmentRepo{}, courses, &fakeNotifier{})

	_, errMissing := svc.Enroll(context.Background(), "student-1", "no-such-course")
	_, errDraft := svc.Enroll(context.Background(), "student-1", "c2")

	for _, err := range []error{errMissing, errDraft} {
		require.Error(t, err)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
		assert.Equal(t, "course is not open for enrollment", appErr.Message)
	}
}

func TestEnrollBlockedByAnyExistingEnrollment(t *testing.T) {
	courses := &fakeCourseReader{courses: map[string]*models.Course{"c1": publishedCourse("c1")}}
	for _, status := range []models.EnrollmentStatus{
		models.EnrollmentStatusActive,
		models.EnrollmentStatusCompleted,
		models.EnrollmentStatusCancelled,
	} {
		repo := &fakeEnrollmentRepo{byPair: map[string]models.Enrollment{
			pairKey("student-1", "c1"): {ID: "enr-1", UserID: "student-1", CourseID: "c1", Status: status},
		}}
		svc := newEnrollmentService(repo, courses, &fakeNotifier{})

		_, err := svc.Enroll(context.Background(), "student-1", "c1")
		require.Error(t, err, "status %s must block re-enrollment", status)
		assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	}
}

func TestEnrollRaceLoserGetsConflict(t *testing.T) {
	repo := &fakeEnrollmentRepo{createErr: &pq.Error{Code: "23505"}}
	courses := &fakeCourseReader{courses: map[string]*models.Course{"c1": publishedCourse("c1")}}
	events := &fakeNotifier{}
	svc := newEnrollmentService(repo, courses, events)

	_, err := svc.Enroll(context.Background(), "student-1", "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, events.adminEvents)
}

func TestCompleteOverwritesAnyPriorState(t *testing.T) {
	repo := &fakeEnrollmentRepo{byPair: map[string]models.Enrollment{
		pairKey("student-1", "c1"): {ID: "enr-1", UserID: "student-1", CourseID: "c1", Status: models.EnrollmentStatusCancelled},
	}}
	events := &fakeNotifier{}
	svc := newEnrollmentService(repo, &fakeCourseReader{}, events)

	enrollment, err := svc.Complete(context.Background(), "student-1", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.Equal(t, 100, enrollment.Progress)
	assert.NotNil(t, enrollment.CompletedAt)
	assert.Contains(t, repo.completed, "enr-1")
	assert.Len(t, events.userEvents["student-1"], 1)
}

func TestCompleteMissingEnrollmentIsNotFound(t *testing.T) {
	svc := newEnrollmentService(&fakeEnrollmentRepo{}, &fakeCourseReader{}, &fakeNotifier{})

	_, err := svc.Complete(context.Background(), "student-1", "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSetStatusRejectsCompleted(t *testing.T) {
	repo := &fakeEnrollmentRepo{byPair: map[string]models.Enrollment{
		pairKey("student-1", "c1"): {ID: "enr-1", UserID: "student-1", CourseID: "c1", Status: models.EnrollmentStatusActive},
	}}
	svc := newEnrollmentService(repo, &fakeCourseReader{}, &fakeNotifier{})

	_, err := svc.SetStatus(context.Background(), SetEnrollmentStatusRequest{
		CourseID: "c1",
		UserID:   "student-1",
		Status:   models.EnrollmentStatusCompleted,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.statusSet)
}

func TestSetStatusOverwritesUnconditionally(t *testing.T) {
	repo := &fakeEnrollmentRepo{byPair: map[string]models.Enrollment{
		pairKey("student-1", "c1"): {ID: "enr-1", UserID: "student-1", CourseID: "c1", Status: models.EnrollmentStatusCancelled},
	}}
	events := &fakeNotifier{}
	svc := newEnrollmentService(repo, &fakeCourseReader{}, events)

	enrollment, err := svc.SetStatus(context.Background(), SetEnrollmentStatusRequest{
		CourseID: "c1",
		UserID:   "student-1",
		Status:   models.EnrollmentStatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, models.EnrollmentStatusActive, repo.statusSet["enr-1"])
	assert.Len(t, events.adminEvents, 1)
	assert.Len(t, events.userEvents["student-1"], 1)
}

func TestListScopesStudentToOwnRecords(t *testing.T) {
	repo := &fakeEnrollmentRepo{listed: []models.Enrollment{
		{ID: "enr-1", UserID: "student-1", CourseID: "c1"},
	}}
	svc := NewEnrollmentService(repo, &fakeCourseReader{}, &fakeSummaryReader{
		courses: map[string]models.CourseSummary{"c1": {ID: "c1", Title: "Go"}},
	}, &fakeNotifier{}, validator.New(), zap.NewNop())

	details, pagination, meta, err := svc.List(context.Background(), "student-1", models.RoleStudent, 1)
	require.NoError(t, err)
	assert.Equal(t, "student-1", repo.lastList.UserID)
	require.Len(t, details, 1)
	require.NotNil(t, details[0].Course)
	assert.Nil(t, details[0].User)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, []string{"c1"}, meta["distinct_courses"])
}

func TestListGivesStaffEverythingWithUsers(t *testing.T) {
	repo := &fakeEnrollmentRepo{listed: []models.Enrollment{
		{ID: "enr-1", UserID: "student-1", CourseID: "c1"},
		{ID: "enr-2", UserID: "student-2", CourseID: "c1"},
	}}
	svc := NewEnrollmentService(repo, &fakeCourseReader{}, &fakeSummaryReader{
		courses: map[string]models.CourseSummary{"c1": {ID: "c1"}},
		users: map[string]models.UserSummary{
			"student-1": {ID: "student-1"},
			"student-2": {ID: "student-2"},
		},
	}, &fakeNotifier{}, validator.New(), zap.NewNop())

	details, _, meta, err := svc.List(context.Background(), "admin-1", models.RoleAdmin, 1)
	require.NoError(t, err)
	assert.Empty(t, repo.lastList.UserID)
	require.Len(t, details, 2)
	assert.NotNil(t, details[0].User)
	assert.Equal(t, []string{"c1"}, meta["distinct_courses"])
}

func TestListEnrolledUsersExcludesCancelled(t *testing.T) {
	repo := &fakeEnrollmentRepo{}
	courses := &fakeCourseReader{courses: map[string]*models.Course{"c1": publishedCourse("c1")}}
	svc := NewEnrollmentService(repo, courses, &fakeSummaryReader{}, &fakeNotifier{}, validator.New(), zap.NewNop())

	_, _, err := svc.ListEnrolledUsers(context.Background(), "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, repo.lastList.ExcludeStatus)
	assert.Equal(t, "c1", repo.lastList.CourseID)
}

func TestListEnrolledUsersMissingCourse(t *testing.T) {
	svc := newEnrollmentService(&fakeEnrollmentRepo{}, &fakeCourseReader{}, &fakeNotifier{})

	_, _, err := svc.ListEnrolledUsers(context.Background(), "nope", 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
