package service

import "github.com/openlearn-labs/lms-api/internal/models"

// CourseVisible reports whether a role may see a course in the given
// publication status. Students only ever see published courses; staff roles
// see everything. Unknown roles see nothing.
func CourseVisible(role models.UserRole, status models.CourseStatus) bool {
	switch role {
	case models.RoleAdmin, models.RoleInstructor:
		return true
	case models.RoleStudent:
		return status == models.CourseStatusPublished
	default:
		return false
	}
}

// VisibleStatuses resolves the status filter a role's catalogue query runs
// with. Staff filters are honored as requested, with an empty request
// meaning everything. For students the published constraint always wins:
// the requested filter is ignored and a student asking for drafts still
// gets the published catalogue. Unknown roles get nothing.
func VisibleStatuses(role models.UserRole, requested []models.CourseStatus) []models.CourseStatus {
	switch role {
	case models.RoleStudent:
		return []models.CourseStatus{models.CourseStatusPublished}
	case models.RoleAdmin, models.RoleInstructor:
		if len(requested) == 0 {
			return []models.CourseStatus{
				models.CourseStatusDraft,
				models.CourseStatusPublished,
				models.CourseStatusUnpublished,
			}
		}
		return requested
	default:
		return nil
	}
}
