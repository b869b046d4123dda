package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/openlearn-labs/lms-api/internal/models"
)

func TestCourseRepositoryListAppliesStatusPreFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "description", "thumbnail_url", "thumbnail_ref", "price", "is_free", "status", "created_by", "assigned_to", "created_at", "updated_at"}).
		AddRow("course-1", "Go Basics", "intro", "", "", 0, true, models.CourseStatusPublished, "user-1", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE status IN ($1) ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(models.CourseStatusPublished).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses WHERE status IN ($1)")).
		WithArgs(models.CourseStatusPublished).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{
		Statuses: []models.CourseStatus{models.CourseStatusPublished},
		Page:     1,
		PageSize: 20,
	})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListTitleSearch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "description", "thumbnail_url", "thumbnail_ref", "price", "is_free", "status", "created_by", "assigned_to", "created_at", "updated_at"})
	mock.ExpectQuery(regexp.QuoteMeta("title ILIKE $1")).
		WithArgs("%golang%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses WHERE title ILIKE $1")).
		WithArgs("%golang%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.List(context.Background(), models.CourseFilter{Search: "golang"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCreateSurfacesDuplicateTitle(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO courses").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "courses_title_key"})

	err := repo.Create(context.Background(), &models.Course{Title: "Go Basics", CreatedBy: "user-1"})
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryAssignSetOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET assigned_to = $2, updated_at = NOW() WHERE id = $1 AND assigned_to IS NULL")).
		WithArgs("course-1", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := repo.Assign(context.Background(), "course-1", "user-2")
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryAssignLosesWhenAlreadyAssigned(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("UPDATE courses SET assigned_to").
		WithArgs("course-1", "user-3").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.Assign(context.Background(), "course-1", "user-3")
	require.NoError(t, err)
	require.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryUpdatePartial(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	title := "Advanced Go"
	price := int64(4900)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET updated_at = NOW(), title = $2, price = $3 WHERE id = $1")).
		WithArgs("course-1", title, price).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "course-1", CourseUpdate{Title: &title, Price: &price})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
