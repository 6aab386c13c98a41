package timetable

import (
	"context"
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"
)

// Meeting day/time bounds as emitted by the upstream service.
const (
	MinDay  = 1
	MaxDay  = 7
	MinTime = 1
	MaxTime = 16
)

type (
	// Session is an academic term, e.g. ("2024/2025", 1). Immutable once recorded.
	Session struct {
		Session   string    `json:"session" db:"session" validate:"required"`
		Semester  int       `json:"semester" db:"semester" validate:"min=1,max=3"`
		StartDate time.Time `json:"startDate" db:"start_date"`
		EndDate   time.Time `json:"endDate" db:"end_date"`
	}

	Student struct {
		MatricNo    string `json:"matricNo" db:"matric_no" validate:"required"`
		Name        string `json:"name" db:"name" validate:"required"`
		CourseCode  string `json:"courseCode" db:"course_code"` // home course/department
		FacultyCode string `json:"facultyCode" db:"faculty_code"`
		// KPNo is the national identity number. Empty means the upstream row
		// carried a placeholder and the number is pending backfill.
		KPNo string `json:"kpNo" db:"kp_no"`
	}

	Lecturer struct {
		WorkerNo int    `json:"workerNo" db:"worker_no" validate:"required"`
		Name     string `json:"name" db:"name" validate:"required"`
	}

	Course struct {
		Code   string `json:"code" db:"code" validate:"required"`
		Name   string `json:"name" db:"name"`
		Credit int    `json:"credit" db:"credit"`
	}

	CourseSection struct {
		Session    string   `json:"session" db:"session" validate:"required"`
		Semester   int      `json:"semester" db:"semester" validate:"min=1,max=3"`
		CourseCode string   `json:"courseCode" db:"course_code" validate:"required"`
		Section    string   `json:"section" db:"section" validate:"required"`
		LecturerNo null.Int `json:"lecturerNo" db:"lecturer_no"`
	}

	// SectionSchedule is one weekly meeting slot of a course section.
	SectionSchedule struct {
		Session    string      `json:"session" db:"session" validate:"required"`
		Semester   int         `json:"semester" db:"semester" validate:"min=1,max=3"`
		CourseCode string      `json:"courseCode" db:"course_code" validate:"required"`
		Section    string      `json:"section" db:"section" validate:"required"`
		Day        int         `json:"day" db:"day" validate:"min=1,max=7"`
		Time       int         `json:"time" db:"time" validate:"min=1,max=16"`
		VenueCode  null.String `json:"venueCode" db:"venue_code"`
	}

	// Registration links a student to a course section within a term.
	Registration struct {
		MatricNo   string `json:"matricNo" db:"matric_no" validate:"required"`
		Session    string `json:"session" db:"session" validate:"required"`
		Semester   int    `json:"semester" db:"semester" validate:"min=1,max=3"`
		CourseCode string `json:"courseCode" db:"course_code" validate:"required"`
		Section    string `json:"section" db:"section" validate:"required"`
	}

	Venue struct {
		Code      string `json:"code" db:"code" validate:"required"`
		Name      string `json:"name" db:"name"`
		ShortName string `json:"shortName" db:"short_name"`
		Capacity  int    `json:"capacity" db:"capacity"`
		Type      string `json:"type" db:"type"`
	}

	// Meeting is a section schedule row joined with its course and lecturer
	// names, as consumed by the analytics engine.
	Meeting struct {
		CourseCode   string      `db:"course_code"`
		Section      string      `db:"section"`
		CourseName   string      `db:"course_name"`
		Day          int         `db:"day"`
		Time         int         `db:"time"`
		VenueCode    null.String `db:"venue_code"`
		LecturerNo   null.Int    `db:"lecturer_no"`
		LecturerName null.String `db:"lecturer_name"`
	}
)

// NeedsKPBackfill reports whether the student's identity number is still a
// placeholder pending resolution through a section roster.
func (s Student) NeedsKPBackfill() bool { return s.KPNo == "" }

// SectionKey identifies a course section within one term.
type SectionKey struct {
	CourseCode string
	Section    string
}

func (k SectionKey) String() string { return k.CourseCode + "-" + k.Section }

func (s CourseSection) Key() SectionKey {
	return SectionKey{CourseCode: s.CourseCode, Section: s.Section}
}

func (m Meeting) Key() SectionKey {
	return SectionKey{CourseCode: m.CourseCode, Section: m.Section}
}

func (s Session) String() string { return fmt.Sprintf("%s/%d", s.Session, s.Semester) }

// Repository persists synchronized timetable data. All writes are idempotent
// upserts: insert when the natural key is absent, otherwise update only
// upstream-sourced mutable fields. Nothing is ever deleted.
type Repository interface {
	UpsertSession(ctx context.Context, s Session) error
	UpsertStudents(ctx context.Context, students []Student) error
	// UpdateStudentKP replaces a student's identity number. Used by the
	// backfill pass; a locally corrected number is only overwritten when
	// upstream supplies an actual replacement.
	UpdateStudentKP(ctx context.Context, matricNo, kpNo string) error
	UpsertLecturers(ctx context.Context, lecturers []Lecturer) error
	UpsertCourses(ctx context.Context, courses []Course) error
	UpsertCourseSections(ctx context.Context, sections []CourseSection) error
	UpsertSectionSchedules(ctx context.Context, schedules []SectionSchedule) error
	UpsertRegistrations(ctx context.Context, regs []Registration) error
	// UpsertVenueIfAbsent records a venue referenced by a schedule row that
	// upstream omitted from the venue catalog. Existing rows win.
	UpsertVenueIfAbsent(ctx context.Context, venue Venue) error

	QueryAllStudents(ctx context.Context) ([]Student, error)
	QueryAllLecturers(ctx context.Context) ([]Lecturer, error)
	QueryCourseSections(ctx context.Context, session string, semester int) ([]CourseSection, error)
	// QueryActiveStudents returns students holding at least one registration
	// within the given term.
	QueryActiveStudents(ctx context.Context, session string, semester int) ([]Student, error)
	QueryRegistrations(ctx context.Context, session string, semester int) ([]Registration, error)
	QueryMeetings(ctx context.Context, session string, semester int) ([]Meeting, error)
	CountSchedules(ctx context.Context, session string, semester int) (int, error)
}
