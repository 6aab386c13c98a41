package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/faridzul/jadual/core/timetable"
)

type timetableRepository struct {
	db *DB
}

var _ timetable.Repository = (*timetableRepository)(nil)

func NewTimetableRepository(db *DB) *timetableRepository {
	return &timetableRepository{db: db}
}

func (repo *timetableRepository) UpsertSession(_ context.Context, s timetable.Session) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := termKey{s.Session, s.Semester}
	if _, ok := repo.db.sessions[key]; !ok { // immutable once recorded
		repo.db.sessions[key] = s
	}
	return nil
}

func (repo *timetableRepository) UpsertStudents(_ context.Context, students []timetable.Student) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, student := range students {
		if existing, ok := repo.db.students[student.MatricNo]; ok && student.KPNo == "" {
			student.KPNo = existing.KPNo
		}
		repo.db.students[student.MatricNo] = student
	}
	return nil
}

func (repo *timetableRepository) UpdateStudentKP(_ context.Context, matricNo, kpNo string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if student, ok := repo.db.students[matricNo]; ok {
		student.KPNo = kpNo
		repo.db.students[matricNo] = student
	}
	return nil
}

func (repo *timetableRepository) UpsertLecturers(_ context.Context, lecturers []timetable.Lecturer) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, lecturer := range lecturers {
		repo.db.lecturers[lecturer.WorkerNo] = lecturer
	}
	return nil
}

func (repo *timetableRepository) UpsertCourses(_ context.Context, courses []timetable.Course) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, course := range courses {
		repo.db.courses[course.Code] = course
	}
	return nil
}

func (repo *timetableRepository) UpsertCourseSections(_ context.Context, sections []timetable.CourseSection) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, section := range sections {
		key := sectionKey{
			term:       termKey{section.Session, section.Semester},
			courseCode: section.CourseCode,
			section:    section.Section,
		}
		repo.db.sections[key] = section
	}
	return nil
}

func (repo *timetableRepository) UpsertSectionSchedules(_ context.Context, schedules []timetable.SectionSchedule) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, schedule := range schedules {
		key := scheduleKey{
			section: sectionKey{
				term:       termKey{schedule.Session, schedule.Semester},
				courseCode: schedule.CourseCode,
				section:    schedule.Section,
			},
			day:  schedule.Day,
			time: schedule.Time,
		}
		repo.db.schedules[key] = schedule
	}
	return nil
}

func (repo *timetableRepository) UpsertRegistrations(_ context.Context, regs []timetable.Registration) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, reg := range regs {
		key := regKey{
			matricNo: reg.MatricNo,
			section: sectionKey{
				term:       termKey{reg.Session, reg.Semester},
				courseCode: reg.CourseCode,
				section:    reg.Section,
			},
		}
		if _, ok := repo.db.registrations[key]; !ok {
			repo.db.registrations[key] = reg
		}
	}
	return nil
}

func (repo *timetableRepository) UpsertVenueIfAbsent(_ context.Context, venue timetable.Venue) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.venues[venue.Code]; !ok {
		repo.db.venues[venue.Code] = venue
	}
	return nil
}

func (repo *timetableRepository) QueryAllStudents(_ context.Context) ([]timetable.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]timetable.Student, 0, len(repo.db.students))
	for _, student := range repo.db.students {
		students = append(students, student)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].MatricNo < students[j].MatricNo })
	return students, nil
}

func (repo *timetableRepository) QueryAllLecturers(_ context.Context) ([]timetable.Lecturer, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	lecturers := make([]timetable.Lecturer, 0, len(repo.db.lecturers))
	for _, lecturer := range repo.db.lecturers {
		lecturers = append(lecturers, lecturer)
	}
	sort.Slice(lecturers, func(i, j int) bool { return lecturers[i].WorkerNo < lecturers[j].WorkerNo })
	return lecturers, nil
}

func (repo *timetableRepository) QueryCourseSections(_ context.Context, session string, semester int) ([]timetable.CourseSection, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	term := termKey{session, semester}
	sections := make([]timetable.CourseSection, 0)
	for key, section := range repo.db.sections {
		if key.term == term {
			sections = append(sections, section)
		}
	}
	sort.Slice(sections, func(i, j int) bool {
		if sections[i].CourseCode != sections[j].CourseCode {
			return sections[i].CourseCode < sections[j].CourseCode
		}
		return sections[i].Section < sections[j].Section
	})
	return sections, nil
}

func (repo *timetableRepository) QueryActiveStudents(ctx context.Context, session string, semester int) ([]timetable.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	term := termKey{session, semester}
	seen := make(map[string]struct{})
	students := make([]timetable.Student, 0)
	for key := range repo.db.registrations {
		if key.section.term != term {
			continue
		}
		if _, ok := seen[key.matricNo]; ok {
			continue
		}
		seen[key.matricNo] = struct{}{}
		if student, ok := repo.db.students[key.matricNo]; ok {
			students = append(students, student)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].MatricNo < students[j].MatricNo })
	return students, nil
}

func (repo *timetableRepository) QueryRegistrations(_ context.Context, session string, semester int) ([]timetable.Registration, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	term := termKey{session, semester}
	regs := make([]timetable.Registration, 0)
	for key, reg := range repo.db.registrations {
		if key.section.term == term {
			regs = append(regs, reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].MatricNo != regs[j].MatricNo {
			return regs[i].MatricNo < regs[j].MatricNo
		}
		if regs[i].CourseCode != regs[j].CourseCode {
			return regs[i].CourseCode < regs[j].CourseCode
		}
		return regs[i].Section < regs[j].Section
	})
	return regs, nil
}

func (repo *timetableRepository) QueryMeetings(_ context.Context, session string, semester int) ([]timetable.Meeting, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	term := termKey{session, semester}
	meetings := make([]timetable.Meeting, 0)
	for key, schedule := range repo.db.schedules {
		if key.section.term != term {
			continue
		}

		meeting := timetable.Meeting{
			CourseCode: schedule.CourseCode,
			Section:    schedule.Section,
			CourseName: schedule.CourseCode,
			Day:        schedule.Day,
			Time:       schedule.Time,
			VenueCode:  schedule.VenueCode,
		}
		if course, ok := repo.db.courses[schedule.CourseCode]; ok && course.Name != "" {
			meeting.CourseName = course.Name
		}
		if section, ok := repo.db.sections[key.section]; ok && section.LecturerNo.Valid {
			meeting.LecturerNo = section.LecturerNo
			if lecturer, ok := repo.db.lecturers[section.LecturerNo.Int]; ok {
				meeting.LecturerName = null.StringFrom(lecturer.Name)
			}
		}
		meetings = append(meetings, meeting)
	}

	sort.Slice(meetings, func(i, j int) bool {
		if meetings[i].CourseCode != meetings[j].CourseCode {
			return meetings[i].CourseCode < meetings[j].CourseCode
		}
		if meetings[i].Section != meetings[j].Section {
			return meetings[i].Section < meetings[j].Section
		}
		if meetings[i].Day != meetings[j].Day {
			return meetings[i].Day < meetings[j].Day
		}
		return meetings[i].Time < meetings[j].Time
	})
	return meetings, nil
}

func (repo *timetableRepository) CountSchedules(_ context.Context, session string, semester int) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	term := termKey{session, semester}
	var count int
	for key := range repo.db.schedules {
		if key.section.term == term {
			count++
		}
	}
	return count, nil
}
