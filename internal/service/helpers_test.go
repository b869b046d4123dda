package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/openlearn-labs/lms-api/internal/bus"
	"github.com/openlearn-labs/lms-api/internal/models"
	"github.com/openlearn-labs/lms-api/pkg/jobs"
	"github.com/openlearn-labs/lms-api/pkg/storage"
)

// Shared fakes used across the service tests in this package.

type fakeCourseReader struct {
	courses map[string]*models.Course
}

func (f *fakeCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if course, ok := f.courses[id]; ok {
		copied := *course
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type fakeNotifier struct {
	mu          sync.Mutex
	adminEvents []bus.Event
	userEvents  map[string][]bus.Event
}

func (f *fakeNotifier) PublishAdmin(evt bus.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adminEvents = append(f.adminEvents, evt)
}

func (f *fakeNotifier) PublishUser(userID string, evt bus.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userEvents == nil {
		f.userEvents = make(map[string][]bus.Event)
	}
	f.userEvents[userID] = append(f.userEvents[userID], evt)
}

type fakeSummaryReader struct {
	courses map[string]models.CourseSummary
	users   map[string]models.UserSummary
}

func (f *fakeSummaryReader) FindSummaries(ctx context.Context, ids []string) (map[string]models.CourseSummary, error) {
	out := make(map[string]models.CourseSummary)
	for _, id := range ids {
		if summary, ok := f.courses[id]; ok {
			out[id] = summary
		}
	}
	return out, nil
}

func (f *fakeSummaryReader) FindUserSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	out := make(map[string]models.UserSummary)
	for _, id := range ids {
		if summary, ok := f.users[id]; ok {
			out[id] = summary
		}
	}
	return out, nil
}

type fakeMediaStore struct {
	saved   []string
	failFor string
}

func (f *fakeMediaStore) Save(ctx context.Context, r io.Reader, kind storage.MediaKind, originalName string) (*storage.MediaFile, error) {
	if f.failFor != "" && f.failFor == originalName {
		return nil, fmt.Errorf("upload rejected")
	}
	ref := string(kind) + "/" + originalName
	f.saved = append(f.saved, ref)
	return &storage.MediaFile{Ref: ref, URL: "http://media.local/" + ref, Kind: kind}, nil
}

type fakeCleanup struct {
	jobs []jobs.Job
}

func (f *fakeCleanup) Enqueue(job jobs.Job) error {
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeUserChecker struct {
	existing map[string]bool
}

func (f *fakeUserChecker) ExistsByID(ctx context.Context, id string) (bool, error) {
	return f.existing[id], nil
}

type fakeLessonLister struct {
	byModule map[string][]models.Lesson
}

func (f *fakeLessonLister) ListByModules(ctx context.Context, moduleIDs []string) (map[string][]models.Lesson, error) {
	out := make(map[string][]models.Lesson)
	for _, id := range moduleIDs {
		if lessons, ok := f.byModule[id]; ok {
			out[id] = lessons
		}
	}
	return out, nil
}

type fakePlaybackSigner struct{}

func (fakePlaybackSigner) Generate(lessonID, mediaRef string) (string, time.Time, error) {
	return lessonID + "." + mediaRef, time.Now().Add(time.Hour), nil
}
