package sync

import (
	"context"

	"github.com/volatiletech/null/v8"

	"github.com/faridzul/jadual/core/timetable"
)

// SessionID is an authenticated upstream session handle.
type SessionID string

type (
	// SectionRow is a course section as returned upstream: the assigned
	// lecturer comes as a display name, not a worker number.
	SectionRow struct {
		CourseCode   string `json:"courseCode" validate:"required"`
		Section      string `json:"section" validate:"required"`
		LecturerName string `json:"lecturerName"`
	}

	// ScheduleRow is one upstream meeting slot, optionally carrying an inline
	// venue descriptor when the venue is missing from the catalog.
	ScheduleRow struct {
		CourseCode string           `json:"courseCode" validate:"required"`
		Section    string           `json:"section" validate:"required"`
		Day        int              `json:"day" validate:"min=1,max=7"`
		Time       int              `json:"time" validate:"min=1,max=16"`
		VenueCode  null.String      `json:"venueCode"`
		Venue      *timetable.Venue `json:"venue,omitempty"`
	}

	// RosterEntry is one student in a section roster. Upstream rosters carry
	// no matric number; identity backfill matches entries by student name.
	RosterEntry struct {
		Name string `json:"name"`
		KPNo string `json:"kpNo"`
	}
)

// Client is the upstream timetable web service consumed by the fetchers.
// Implementations classify failures as core.AuthenticationError or
// core.TransientUpstreamError so the retry policy can react uniformly.
type Client interface {
	Login(ctx context.Context, login, password string) (SessionID, error)
	Elevate(ctx context.Context, sid SessionID) (SessionID, error)

	FetchStudents(ctx context.Context, sid SessionID, session string, semester, limit, offset int) ([]timetable.Student, error)
	FetchLecturers(ctx context.Context, sid SessionID, session string, semester int) ([]timetable.Lecturer, error)
	FetchCourses(ctx context.Context, session string, semester int) ([]timetable.Course, error)
	FetchCourseSections(ctx context.Context, session string, semester int) ([]SectionRow, error)
	FetchSectionSchedules(ctx context.Context, session string, semester int, courseCode, section string) ([]ScheduleRow, error)
	FetchStudentRegistrations(ctx context.Context, matricNo string) ([]timetable.Registration, error)
	FetchSectionRoster(ctx context.Context, sid SessionID, session string, semester int, courseCode, section string) ([]RosterEntry, error)
}
