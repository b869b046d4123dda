package dto

import "time"

// AdminDashboardResponse captures the aggregated admin dashboard payload.
type AdminDashboardResponse struct {
	Courses     CourseCountsSection     `json:"courses"`
	Enrollments EnrollmentCountsSection `json:"enrollments"`
	Users       UserCountsSection       `json:"users"`
	Recent      []RecentEnrollmentEntry `json:"recentEnrollments"`
	GeneratedAt time.Time               `json:"generatedAt"`
}

// CourseCountsSection breaks courses down by publication status.
type CourseCountsSection struct {
	Total       int `json:"total"`
	Draft       int `json:"draft"`
	Published   int `json:"published"`
	Unpublished int `json:"unpublished"`
}

// EnrollmentCountsSection breaks enrollments down by lifecycle status.
type EnrollmentCountsSection struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

// UserCountsSection breaks users down by role.
type UserCountsSection struct {
	Total       int `json:"total"`
	Admins      int `json:"admins"`
	Instructors int `json:"instructors"`
	Students    int `json:"students"`
}

// RecentEnrollmentEntry is a single row in the recent activity feed.
type RecentEnrollmentEntry struct {
	EnrollmentID string    `json:"enrollmentId"`
	UserName     string    `json:"userName"`
	CourseTitle  string    `json:"courseTitle"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserDashboardResponse captures a single user's learning overview.
type UserDashboardResponse struct {
	UserID      string               `json:"userId"`
	Enrolled    int                  `json:"enrolled"`
	InProgress  int                  `json:"inProgress"`
	Completed   int                  `json:"completed"`
	Courses     []UserCourseProgress `json:"courses"`
	GeneratedAt time.Time            `json:"generatedAt"`
}

// UserCourseProgress describes one enrollment from the user's point of view.
type UserCourseProgress struct {
	CourseID     string     `json:"courseId"`
	CourseTitle  string     `json:"courseTitle"`
	ThumbnailURL string     `json:"thumbnailUrl,omitempty"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}
