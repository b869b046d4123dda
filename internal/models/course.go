package models

import "time"

// CourseStatus represents the publication state of a course.
type CourseStatus string

// Possible course statuses.
const (
	CourseStatusDraft       CourseStatus = "DRAFT"
	CourseStatusPublished   CourseStatus = "PUBLISHED"
	CourseStatusUnpublished CourseStatus = "UNPUBLISHED"
)

// Course is the top level of the content hierarchy.
type Course struct {
	ID           string       `db:"id" json:"id"`
	Title        string       `db:"title" json:"title"`
	Description  string       `db:"description" json:"description"`
	ThumbnailURL string       `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	ThumbnailRef string       `db:"thumbnail_ref" json:"-"`
	Price        int64        `db:"price" json:"price"`
	IsFree       bool         `db:"is_free" json:"is_free"`
	Status       CourseStatus `db:"status" json:"status"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	AssignedTo   *string      `db:"assigned_to" json:"assigned_to,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// CourseSummary is the shortened course shape embedded in enrollment payloads.
type CourseSummary struct {
	ID           string       `db:"id" json:"id"`
	Title        string       `db:"title" json:"title"`
	ThumbnailURL string       `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	Status       CourseStatus `db:"status" json:"status"`
}

// CourseDetail enriches Course with its ordered content tree and people.
type CourseDetail struct {
	Course
	Creator  *UserSummary   `json:"creator,omitempty"`
	Assignee *UserSummary   `json:"assignee,omitempty"`
	Modules  []ModuleDetail `json:"modules"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	Statuses []CourseStatus
	Search   string
	Page     int
	PageSize int
}

// Module groups lessons inside a course. Order is unique per course.
type Module struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Order       int       `db:"ord" json:"order"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ModuleDetail enriches Module with its ordered lessons.
type ModuleDetail struct {
	Module
	Lessons []Lesson `json:"lessons"`
}

// Lesson is the leaf of the content hierarchy. Order is unique per module.
type Lesson struct {
	ID           string    `db:"id" json:"id"`
	ModuleID     string    `db:"module_id" json:"module_id"`
	Title        string    `db:"title" json:"title"`
	VideoURL     string    `db:"video_url" json:"video_url,omitempty"`
	VideoRef     string    `db:"video_ref" json:"-"`
	Duration     int       `db:"duration" json:"duration"`
	ThumbnailURL string    `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	ThumbnailRef string    `db:"thumbnail_ref" json:"-"`
	Order        int       `db:"ord" json:"order"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
