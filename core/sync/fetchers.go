package sync

import (
	"context"
	"fmt"

	"github.com/volatiletech/null/v8"

	"github.com/faridzul/jadual/core"
	"github.com/faridzul/jadual/core/timetable"
)

// syncStudents pages through the student list with a fixed page size.
// Each page is upserted immediately so a mid-run failure loses at most one
// page of progress.
func (o *Orchestrator) syncStudents(ctx context.Context, session string, semester int, res *StepResult) error {
	r := o.newRetrier()
	for offset := 0; ; offset += o.pageSize {
		if offset > 0 {
			o.pace(ctx)
		}

		var page []timetable.Student
		err := r.do(ctx, fmt.Sprintf("fetch students offset=%d", offset), func(sid SessionID) error {
			var ferr error
			page, ferr = o.client.FetchStudents(ctx, sid, session, semester, o.pageSize, offset)
			return ferr
		})
		if err != nil {
			return err
		}

		rows := make([]timetable.Student, 0, len(page))
		for _, student := range page {
			if o.checkRow("student", student, res) {
				rows = append(rows, student)
			}
		}
		if err := o.repo.UpsertStudents(ctx, rows); err != nil {
			return err
		}
		res.Fetched += len(page)
		res.Upserted += len(rows)

		if len(page) < o.pageSize {
			return nil
		}
	}
}

func (o *Orchestrator) syncLecturers(ctx context.Context, session string, semester int, res *StepResult) error {
	r := o.newRetrier()
	var rows []timetable.Lecturer
	err := r.do(ctx, "fetch lecturers", func(sid SessionID) error {
		var ferr error
		rows, ferr = o.client.FetchLecturers(ctx, sid, session, semester)
		return ferr
	})
	if err != nil {
		return err
	}

	lecturers := make([]timetable.Lecturer, 0, len(rows))
	for _, lecturer := range rows {
		if o.checkRow("lecturer", lecturer, res) {
			lecturers = append(lecturers, lecturer)
		}
	}
	res.Fetched = len(rows)
	if err := o.repo.UpsertLecturers(ctx, lecturers); err != nil {
		return err
	}
	res.Upserted = len(lecturers)
	return nil
}

func (o *Orchestrator) syncCourses(ctx context.Context, session string, semester int, res *StepResult) error {
	r := o.newRetrier()
	var rows []timetable.Course
	err := r.do(ctx, "fetch courses", func(SessionID) error {
		var ferr error
		rows, ferr = o.client.FetchCourses(ctx, session, semester)
		return ferr
	})
	if err != nil {
		return err
	}

	courses := make([]timetable.Course, 0, len(rows))
	for _, course := range rows {
		if o.checkRow("course", course, res) {
			courses = append(courses, course)
		}
	}
	res.Fetched = len(rows)
	if err := o.repo.UpsertCourses(ctx, courses); err != nil {
		return err
	}
	res.Upserted = len(courses)
	return nil
}

// syncSections resolves each section's lecturer by matching the upstream
// display name against previously synced lecturers; sections whose named
// lecturer cannot be matched stay unassigned.
func (o *Orchestrator) syncSections(ctx context.Context, session string, semester int, res *StepResult) error {
	r := o.newRetrier()
	var rows []SectionRow
	err := r.do(ctx, "fetch course sections", func(SessionID) error {
		var ferr error
		rows, ferr = o.client.FetchCourseSections(ctx, session, semester)
		return ferr
	})
	if err != nil {
		return err
	}

	lecturers, err := o.repo.QueryAllLecturers(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]int, len(lecturers))
	for _, lecturer := range lecturers {
		byName[core.CleanString(lecturer.Name, true)] = lecturer.WorkerNo
	}

	sections := make([]timetable.CourseSection, 0, len(rows))
	for _, row := range rows {
		if !o.checkRow("course section", row, res) {
			continue
		}
		section := timetable.CourseSection{
			Session:    session,
			Semester:   semester,
			CourseCode: row.CourseCode,
			Section:    row.Section,
		}
		if row.LecturerName != "" {
			if workerNo, ok := byName[core.CleanString(row.LecturerName, true)]; ok {
				section.LecturerNo = null.IntFrom(workerNo)
			}
		}
		sections = append(sections, section)
	}
	res.Fetched = len(rows)
	if err := o.repo.UpsertCourseSections(ctx, sections); err != nil {
		return err
	}
	res.Upserted = len(sections)
	return nil
}

// syncSchedules fetches the meeting slots of every synced section, one
// request per section key, deduplicating self-clashing upstream rows and
// recording any inline venue the catalog is missing.
func (o *Orchestrator) syncSchedules(ctx context.Context, session string, semester int, res *StepResult) error {
	sections, err := o.repo.QueryCourseSections(ctx, session, semester)
	if err != nil {
		return err
	}

	r := o.newRetrier()
	for i, section := range sections {
		if i > 0 {
			o.pace(ctx)
		}

		var rows []ScheduleRow
		err := r.do(ctx, fmt.Sprintf("fetch schedule %s", section.Key()), func(SessionID) error {
			var ferr error
			rows, ferr = o.client.FetchSectionSchedules(ctx, session, semester, section.CourseCode, section.Section)
			return ferr
		})
		if err != nil {
			return err
		}

		schedules := make([]timetable.SectionSchedule, 0, len(rows))
		for _, row := range rows {
			if !o.checkRow("section schedule", row, res) {
				continue
			}
			if row.Venue != nil && row.Venue.Code != "" {
				if err := o.repo.UpsertVenueIfAbsent(ctx, *row.Venue); err != nil {
					return err
				}
			}
			schedules = append(schedules, timetable.SectionSchedule{
				CourseCode: row.CourseCode,
				Section:    row.Section,
				Day:        row.Day,
				Time:       row.Time,
				VenueCode:  row.VenueCode,
			})
		}
		res.Fetched += len(rows)

		deduped := timetable.DedupSchedules(session, semester, schedules)
		if err := o.repo.UpsertSectionSchedules(ctx, deduped); err != nil {
			return err
		}
		res.Upserted += len(deduped)
	}
	return nil
}

// syncRegistrations fetches each synced student's registrations, one request
// per matric number. Upstream returns the student's full history; only rows
// of the term being synced are kept.
func (o *Orchestrator) syncRegistrations(ctx context.Context, session string, semester int, res *StepResult) error {
	students, err := o.repo.QueryAllStudents(ctx)
	if err != nil {
		return err
	}

	r := o.newRetrier()
	for i, student := range students {
		if i > 0 {
			o.pace(ctx)
		}

		var rows []timetable.Registration
		err := r.do(ctx, fmt.Sprintf("fetch registrations %s", student.MatricNo), func(SessionID) error {
			var ferr error
			rows, ferr = o.client.FetchStudentRegistrations(ctx, student.MatricNo)
			return ferr
		})
		if err != nil {
			return err
		}

		regs := make([]timetable.Registration, 0, len(rows))
		for _, reg := range rows {
			if reg.Session != session || reg.Semester != semester {
				continue
			}
			if o.checkRow("registration", reg, res) {
				regs = append(regs, reg)
			}
		}
		res.Fetched += len(rows)
		if err := o.repo.UpsertRegistrations(ctx, regs); err != nil {
			return err
		}
		res.Upserted += len(regs)
	}
	return nil
}

// backfillIdentities resolves placeholder identity numbers through section
// rosters, matching by student name. Each roster is fetched at most once per
// run and every name it resolves is cached, so students sharing a section
// never trigger a second request.
func (o *Orchestrator) backfillIdentities(ctx context.Context, session string, semester int, res *StepResult) error {
	students, err := o.repo.QueryAllStudents(ctx)
	if err != nil {
		return err
	}
	pending := make([]timetable.Student, 0)
	for _, student := range students {
		if student.NeedsKPBackfill() {
			pending = append(pending, student)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	regs, err := o.repo.QueryRegistrations(ctx, session, semester)
	if err != nil {
		return err
	}
	regsByMatric := make(map[string][]timetable.Registration)
	for _, reg := range regs {
		regsByMatric[reg.MatricNo] = append(regsByMatric[reg.MatricNo], reg)
	}

	r := o.newRetrier()
	kpByName := make(map[string]string)
	fetched := make(map[timetable.SectionKey]struct{})
	requests := 0

	for _, student := range pending {
		name := core.CleanString(student.Name, true)

		if _, ok := kpByName[name]; !ok {
			for _, reg := range regsByMatric[student.MatricNo] {
				key := timetable.SectionKey{CourseCode: reg.CourseCode, Section: reg.Section}
				if _, ok := fetched[key]; ok {
					continue
				}
				fetched[key] = struct{}{}

				if requests > 0 {
					o.pace(ctx)
				}
				requests++

				var roster []RosterEntry
				err := r.do(ctx, fmt.Sprintf("fetch roster %s", key), func(sid SessionID) error {
					var ferr error
					roster, ferr = o.client.FetchSectionRoster(ctx, sid, session, semester, reg.CourseCode, reg.Section)
					return ferr
				})
				if err != nil {
					return err
				}
				res.Fetched += len(roster)

				for _, entry := range roster {
					entryName := core.CleanString(entry.Name, true)
					// placeholder entries are not cached: a later roster may
					// still carry the real number for the same name
					if entryName == "" || entry.KPNo == "" {
						continue
					}
					if _, ok := kpByName[entryName]; !ok {
						kpByName[entryName] = entry.KPNo
					}
				}
				if _, ok := kpByName[name]; ok {
					break
				}
			}
		}

		if kp := kpByName[name]; kp != "" {
			if err := o.repo.UpdateStudentKP(ctx, student.MatricNo, kp); err != nil {
				return err
			}
			res.Upserted++
		} else {
			res.Skipped++
		}
	}
	return nil
}
