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

func TestModuleRepositoryCreateSurfacesOrderCollision(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleRepository(db)

	mock.ExpectExec("INSERT INTO modules").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "modules_course_id_ord_key"})

	err := repo.Create(context.Background(), &models.Module{CourseID: "course-1", Title: "Intro", Order: 1})
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleRepositoryListByCourseOrdered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleRepository(db)

	rows := sqlmock.NewRows([]string{"id", "course_id", "title", "description", "ord", "created_at", "updated_at"}).
		AddRow("mod-1", "course-1", "Intro", "", 1, time.Now(), time.Now()).
		AddRow("mod-2", "course-1", "Deep Dive", "", 2, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM modules WHERE course_id = $1 ORDER BY ord ASC")).
		WithArgs("course-1").
		WillReturnRows(rows)

	modules, err := repo.ListByCourse(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, modules, 2)
	require.Equal(t, 1, modules[0].Order)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleRepositoryCountLessons(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lessons WHERE module_id = $1")).
		WithArgs("mod-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountLessons(context.Background(), "mod-1")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
