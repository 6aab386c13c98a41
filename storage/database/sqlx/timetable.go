package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/faridzul/jadual/core/timetable"
)

type timetableRepository struct {
	db *sqlx.DB
}

var _ timetable.Repository = (*timetableRepository)(nil)

func NewTimetableRepository(db *sql.DB, driverName string) *timetableRepository {
	return &timetableRepository{db: sqlx.NewDb(db, driverName)}
}

func (repo timetableRepository) UpsertSession(ctx context.Context, s timetable.Session) error {
	// terms are immutable once recorded
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO session (session, semester, start_date, end_date)
		VALUES (:session, :semester, :start_date, :end_date)
		ON CONFLICT (session, semester) DO NOTHING`, s)
	return errors.Wrap(err, "upserting session")
}

func (repo timetableRepository) UpsertStudents(ctx context.Context, students []timetable.Student) error {
	for _, student := range students {
		// a locally corrected kp_no survives unless upstream supplies a replacement
		_, err := repo.db.NamedExecContext(ctx, `
			INSERT INTO student (matric_no, name, course_code, faculty_code, kp_no)
			VALUES (:matric_no, :name, :course_code, :faculty_code, :kp_no)
			ON CONFLICT (matric_no) DO UPDATE SET
				name = EXCLUDED.name,
				course_code = EXCLUDED.course_code,
				faculty_code = EXCLUDED.faculty_code,
				kp_no = CASE WHEN EXCLUDED.kp_no <> '' THEN EXCLUDED.kp_no ELSE student.kp_no END`,
			student)
		if err != nil {
			return errors.Wrapf(err, "upserting student %s", student.MatricNo)
		}
	}
	return nil
}

func (repo timetableRepository) UpdateStudentKP(ctx context.Context, matricNo, kpNo string) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE student SET kp_no = $2 WHERE matric_no = $1`, matricNo, kpNo)
	return errors.Wrapf(err, "updating kp_no of %s", matricNo)
}

func (repo timetableRepository) UpsertLecturers(ctx context.Context, lecturers []timetable.Lecturer) error {
	for _, lecturer := range lecturers {
		_, err := repo.db.NamedExecContext(ctx, `
			INSERT INTO lecturer (worker_no, name)
			VALUES (:worker_no, :name)
			ON CONFLICT (worker_no) DO UPDATE SET name = EXCLUDED.name`, lecturer)
		if err != nil {
			return errors.Wrapf(err, "upserting lecturer %d", lecturer.WorkerNo)
		}
	}
	return nil
}

func (repo timetableRepository) UpsertCourses(ctx context.Context, courses []timetable.Course) error {
	for _, course := range courses {
		_, err := repo.db.NamedExecContext(ctx, `
			INSERT INTO course (code, name, credit)
			VALUES (:code, :name, :credit)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, credit = EXCLUDED.credit`,
			course)
		if err != nil {
			return errors.Wrapf(err, "upserting course %s", course.Code)
		}
	}
	return nil
}

func (repo timetableRepository) UpsertCourseSections(ctx context.Context, sections []timetable.CourseSection) error {
	for _, section := range sections {
		_, err := repo.db.NamedExecContext(ctx, `
			INSERT INTO course_section (session, semester, course_code, section, lecturer_no)
			VALUES (:session, :semester, :course_code, :section, :lecturer_no)
			ON CONFLICT (session, semester, course_code, section)
			DO UPDATE SET lecturer_no = EXCLUDED.lecturer_no`, section)
		if err != nil {
			return errors.Wrapf(err, "upserting section %s", section.Key())
		}
	}
	return nil
}

func (repo timetableRepository) UpsertSectionSchedules(ctx context.Context, schedules []timetable.SectionSchedule) error {
	for _, schedule := range schedules {
		_, err := repo.db.NamedExecContext(ctx, `
			INSERT INTO section_schedule (session, semester, course_code, section, day, "time", venue_code)
			VALUES (:session, :semester, :course_code, :section, :day, :time, :venue_code)
			ON CONFLICT (session, semester, course_code, section, day, "time")
			DO UPDATE SET venue_code = EXCLUDED.venue_code`, schedule)
		if err != nil {
			return errors.Wrapf(err, "upserting schedule %s-%s", schedule.CourseCode, schedule.Section)
		}
	}
	return nil
}

func (repo timetableRepository) UpsertRegistrations(ctx context.Context, regs []timetable.Registration) error {
	for _, reg := range regs {
		_, err := repo.db.NamedExecContext(ctx, `
			INSERT INTO registration (matric_no, session, semester, course_code, section)
			VALUES (:matric_no, :session, :semester, :course_code, :section)
			ON CONFLICT (matric_no, session, semester, course_code, section) DO NOTHING`, reg)
		if err != nil {
			return errors.Wrapf(err, "upserting registration %s/%s", reg.MatricNo, reg.CourseCode)
		}
	}
	return nil
}

func (repo timetableRepository) UpsertVenueIfAbsent(ctx context.Context, venue timetable.Venue) error {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO venue (code, name, short_name, capacity, type)
		VALUES (:code, :name, :short_name, :capacity, :type)
		ON CONFLICT (code) DO NOTHING`, venue)
	return errors.Wrapf(err, "upserting venue %s", venue.Code)
}

func (repo timetableRepository) QueryAllStudents(ctx context.Context) ([]timetable.Student, error) {
	students := make([]timetable.Student, 0)
	err := repo.db.SelectContext(ctx, &students,
		`SELECT matric_no, name, course_code, faculty_code, kp_no FROM student ORDER BY matric_no`)
	return students, errors.Wrap(err, "querying students")
}

func (repo timetableRepository) QueryAllLecturers(ctx context.Context) ([]timetable.Lecturer, error) {
	lecturers := make([]timetable.Lecturer, 0)
	err := repo.db.SelectContext(ctx, &lecturers,
		`SELECT worker_no, name FROM lecturer ORDER BY worker_no`)
	return lecturers, errors.Wrap(err, "querying lecturers")
}

func (repo timetableRepository) QueryCourseSections(ctx context.Context, session string, semester int) ([]timetable.CourseSection, error) {
	sections := make([]timetable.CourseSection, 0)
	err := repo.db.SelectContext(ctx, &sections, `
		SELECT session, semester, course_code, section, lecturer_no
		FROM course_section
		WHERE session = $1 AND semester = $2
		ORDER BY course_code, section`, session, semester)
	return sections, errors.Wrap(err, "querying course sections")
}

func (repo timetableRepository) QueryActiveStudents(ctx context.Context, session string, semester int) ([]timetable.Student, error) {
	students := make([]timetable.Student, 0)
	err := repo.db.SelectContext(ctx, &students, `
		SELECT DISTINCT s.matric_no, s.name, s.course_code, s.faculty_code, s.kp_no
		FROM student s
		JOIN registration r ON r.matric_no = s.matric_no
		WHERE r.session = $1 AND r.semester = $2
		ORDER BY s.matric_no`, session, semester)
	return students, errors.Wrap(err, "querying active students")
}

func (repo timetableRepository) QueryRegistrations(ctx context.Context, session string, semester int) ([]timetable.Registration, error) {
	regs := make([]timetable.Registration, 0)
	err := repo.db.SelectContext(ctx, &regs, `
		SELECT matric_no, session, semester, course_code, section
		FROM registration
		WHERE session = $1 AND semester = $2
		ORDER BY matric_no, course_code, section`, session, semester)
	return regs, errors.Wrap(err, "querying registrations")
}

func (repo timetableRepository) QueryMeetings(ctx context.Context, session string, semester int) ([]timetable.Meeting, error) {
	meetings := make([]timetable.Meeting, 0)
	err := repo.db.SelectContext(ctx, &meetings, `
		SELECT ss.course_code, ss.section, COALESCE(c.name, ss.course_code) AS course_name,
		       ss.day, ss."time", ss.venue_code, cs.lecturer_no, l.name AS lecturer_name
		FROM section_schedule ss
		LEFT JOIN course c ON c.code = ss.course_code
		LEFT JOIN course_section cs
			ON cs.session = ss.session AND cs.semester = ss.semester
			AND cs.course_code = ss.course_code AND cs.section = ss.section
		LEFT JOIN lecturer l ON l.worker_no = cs.lecturer_no
		WHERE ss.session = $1 AND ss.semester = $2
		ORDER BY ss.course_code, ss.section, ss.day, ss."time"`, session, semester)
	return meetings, errors.Wrap(err, "querying meetings")
}

func (repo timetableRepository) CountSchedules(ctx context.Context, session string, semester int) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM section_schedule WHERE session = $1 AND semester = $2`, session, semester)
	return count, errors.Wrap(err, "counting schedules")
}
