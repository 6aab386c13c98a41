package timetable

import (
	"context"
	"sort"

	"github.com/faridzul/jadual/core"
)

const (
	// minBackToBackRun is the minimum number of consecutive slots that counts
	// as a back-to-back block.
	minBackToBackRun = 5

	// maxTeachingTime is the last analytics-facing time slot. Upstream emits
	// slots up to MaxTime but only 1..11 map to teaching hours; later slots
	// are administrative artifacts and are ignored by the engine.
	maxTeachingTime = 11
)

type (
	// Entry is one scheduled meeting of a student's registered section.
	Entry struct {
		Day     int    `json:"day"`
		Time    int    `json:"time"`
		Course  string `json:"course"`
		Section string `json:"section"`
		Venue   string `json:"venue"`
	}

	ClashCourse struct {
		Course  string `json:"course"`
		Section string `json:"section"`
		Venue   string `json:"venue"`
	}

	ClashSlot struct {
		Day     int           `json:"day"`
		Time    int           `json:"time"`
		Courses []ClashCourse `json:"courses"`
	}

	StudentBackToBack struct {
		MatricNo   string    `json:"matricNo"`
		Name       string    `json:"name"`
		CourseCode string    `json:"courseCode"`
		Schedules  [][]Entry `json:"schedules"`
	}

	StudentClashes struct {
		MatricNo   string      `json:"matricNo"`
		Name       string      `json:"name"`
		CourseCode string      `json:"courseCode"`
		Clashes    []ClashSlot `json:"clashes"`
	}

	VenueClashSection struct {
		Course   string  `json:"course"`
		Section  string  `json:"section"`
		Lecturer *string `json:"lecturer"`
	}

	VenueClash struct {
		Day            int                 `json:"day"`
		Time           int                 `json:"time"`
		Venue          string              `json:"venue"`
		CourseSections []VenueClashSection `json:"courseSections"`
	}

	DepartmentStat struct {
		Code            string `json:"code"`
		TotalStudents   int    `json:"totalStudents"`
		TotalClashes    int    `json:"totalClashes"`
		TotalBackToBack int    `json:"totalBackToBack"`
	}

	Report struct {
		ActiveStudents     int                 `json:"activeStudents"`
		BackToBackStudents []StudentBackToBack `json:"backToBackStudents"`
		ClashingStudents   []StudentClashes    `json:"clashingStudents"`
		VenueClashes       []VenueClash        `json:"venueClashes"`
		Departments        []DepartmentStat    `json:"departments"`
	}
)

// Service computes conflict analytics over synchronized timetable data for
// one term. It only reads; all state lives in the returned Report.
type Service struct {
	repo Repository
	log  core.Logger
}

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, log: logger}
}

// Analyze builds the full conflict report for a term.
// It trusts the referential integrity of synchronized data and fails hard
// with an IntegrityViolation when a registration references a student absent
// from the store, since that indicates a sync defect rather than bad input.
func (svc *Service) Analyze(ctx context.Context, session string, semester int) (Report, error) {
	students, err := svc.repo.QueryActiveStudents(ctx, session, semester)
	if err != nil {
		return Report{}, err
	}
	regs, err := svc.repo.QueryRegistrations(ctx, session, semester)
	if err != nil {
		return Report{}, err
	}
	meetings, err := svc.repo.QueryMeetings(ctx, session, semester)
	if err != nil {
		return Report{}, err
	}

	studentsByMatric := make(map[string]Student, len(students))
	for _, s := range students {
		studentsByMatric[s.MatricNo] = s
	}

	regsByMatric := make(map[string][]Registration)
	for _, reg := range regs {
		if _, ok := studentsByMatric[reg.MatricNo]; !ok {
			return Report{}, core.NewIntegrityViolation(
				"registration %s/%s-%s references unknown student %s",
				reg.CourseCode, reg.Section, session, reg.MatricNo)
		}
		regsByMatric[reg.MatricNo] = append(regsByMatric[reg.MatricNo], reg)
	}

	meetingsBySection := make(map[SectionKey][]Meeting)
	for _, m := range meetings {
		meetingsBySection[m.Key()] = append(meetingsBySection[m.Key()], m)
	}

	report := Report{
		ActiveStudents:     len(regsByMatric),
		BackToBackStudents: make([]StudentBackToBack, 0),
		ClashingStudents:   make([]StudentClashes, 0),
	}

	// deterministic student order
	matrics := make([]string, 0, len(regsByMatric))
	for matric := range regsByMatric {
		matrics = append(matrics, matric)
	}
	sort.Strings(matrics)

	type deptTally struct {
		students   int
		clashes    int
		backToBack int
	}
	depts := make(map[string]*deptTally)

	for _, matric := range matrics {
		student := studentsByMatric[matric]
		entries := expandEntries(regsByMatric[matric], meetingsBySection)
		blocks, clashes := scanEntries(entries)

		tally, ok := depts[student.CourseCode]
		if !ok {
			tally = &deptTally{}
			depts[student.CourseCode] = tally
		}
		tally.students++

		if len(blocks) > 0 {
			tally.backToBack++
			report.BackToBackStudents = append(report.BackToBackStudents, StudentBackToBack{
				MatricNo:   student.MatricNo,
				Name:       student.Name,
				CourseCode: student.CourseCode,
				Schedules:  blocks,
			})
		}
		if len(clashes) > 0 {
			tally.clashes++
			report.ClashingStudents = append(report.ClashingStudents, StudentClashes{
				MatricNo:   student.MatricNo,
				Name:       student.Name,
				CourseCode: student.CourseCode,
				Clashes:    clashes,
			})
		}
	}

	report.VenueClashes = venueClashes(meetings)

	report.Departments = make([]DepartmentStat, 0, len(depts))
	for code, tally := range depts {
		report.Departments = append(report.Departments, DepartmentStat{
			Code:            code,
			TotalStudents:   tally.students,
			TotalClashes:    tally.clashes,
			TotalBackToBack: tally.backToBack,
		})
	}
	sort.Slice(report.Departments, func(i, j int) bool {
		if report.Departments[i].TotalStudents != report.Departments[j].TotalStudents {
			return report.Departments[i].TotalStudents > report.Departments[j].TotalStudents
		}
		return report.Departments[i].Code < report.Departments[j].Code
	})

	return report, nil
}

// VenueClashes reports term-wide venue clashes, optionally restricted to
// clashes involving the given lecturer.
func (svc *Service) VenueClashes(ctx context.Context, session string, semester int, workerNo ...int) ([]VenueClash, error) {
	meetings, err := svc.repo.QueryMeetings(ctx, session, semester)
	if err != nil {
		return nil, err
	}
	clashes := venueClashes(meetings)
	if len(workerNo) == 0 {
		return clashes, nil
	}

	lecturerMeetings := make(map[SectionKey]struct{})
	for _, m := range meetings {
		if m.LecturerNo.Valid && m.LecturerNo.Int == workerNo[0] {
			lecturerMeetings[m.Key()] = struct{}{}
		}
	}
	filtered := clashes[:0]
	for _, clash := range clashes {
		for _, cs := range clash.CourseSections {
			if _, ok := lecturerMeetings[SectionKey{CourseCode: cs.Course, Section: cs.Section}]; ok {
				filtered = append(filtered, clash)
				break
			}
		}
	}
	return filtered, nil
}

// expandEntries joins a student's registrations against the section schedule
// map, one entry per scheduled meeting. A registration whose section has no
// schedule rows contributes nothing; the section is merely unscheduled.
func expandEntries(regs []Registration, meetingsBySection map[SectionKey][]Meeting) []Entry {
	var entries []Entry
	for _, reg := range regs {
		key := SectionKey{CourseCode: reg.CourseCode, Section: reg.Section}
		for _, m := range meetingsBySection[key] {
			if m.Time > maxTeachingTime {
				continue
			}
			entries = append(entries, Entry{
				Day:     m.Day,
				Time:    m.Time,
				Course:  m.CourseCode,
				Section: m.Section,
				Venue:   m.VenueCode.String,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Day != entries[j].Day {
			return entries[i].Day < entries[j].Day
		}
		return entries[i].Time < entries[j].Time
	})
	return entries
}

// scanEntries walks a student's day/time-sorted entries once, accumulating
// back-to-back runs and bucketing same-slot clashes.
func scanEntries(entries []Entry) (blocks [][]Entry, clashes []ClashSlot) {
	if len(entries) == 0 {
		return nil, nil
	}

	run := []Entry{entries[0]}
	endRun := func() {
		if len(run) >= minBackToBackRun {
			blocks = append(blocks, run)
		}
	}

	for i := 1; i < len(entries); i++ {
		e, prev := entries[i], entries[i-1]

		// a run only continues into the immediately following slot of the same day
		if e.Day == prev.Day && e.Time == prev.Time+1 {
			run = append(run, e)
		} else {
			endRun()
			run = []Entry{e}
		}

		if e.Day == prev.Day && e.Time == prev.Time {
			// same-slot entries are contiguous after sorting, so a 3-way+
			// overlap extends the clash opened for this slot instead of
			// opening a duplicate record.
			if last := len(clashes) - 1; last >= 0 && clashes[last].Day == e.Day && clashes[last].Time == e.Time {
				clashes[last].Courses = append(clashes[last].Courses, clashCourse(e))
			} else {
				clashes = append(clashes, ClashSlot{
					Day:     e.Day,
					Time:    e.Time,
					Courses: []ClashCourse{clashCourse(prev), clashCourse(e)},
				})
			}
		}
	}
	endRun()

	return blocks, clashes
}

func clashCourse(e Entry) ClashCourse {
	return ClashCourse{Course: e.Course, Section: e.Section, Venue: e.Venue}
}

// venueClashes groups meetings by (day, time, venue); two rows clash when
// they share a slot and venue but belong to different course sections.
func venueClashes(meetings []Meeting) []VenueClash {
	type slotKey struct {
		day   int
		time  int
		venue string
	}

	bySlot := make(map[slotKey][]Meeting)
	for _, m := range meetings {
		if !m.VenueCode.Valid || m.VenueCode.String == "" {
			continue
		}
		if m.Time > maxTeachingTime {
			continue
		}
		key := slotKey{day: m.Day, time: m.Time, venue: m.VenueCode.String}
		bySlot[key] = append(bySlot[key], m)
	}

	clashes := make([]VenueClash, 0)
	for key, slotMeetings := range bySlot {
		seen := make(map[SectionKey]struct{}, len(slotMeetings))
		sections := make([]VenueClashSection, 0, len(slotMeetings))
		for _, m := range slotMeetings {
			if _, ok := seen[m.Key()]; ok {
				continue
			}
			seen[m.Key()] = struct{}{}
			var lecturer *string
			if m.LecturerName.Valid {
				name := m.LecturerName.String
				lecturer = &name
			}
			sections = append(sections, VenueClashSection{
				Course:   m.CourseCode,
				Section:  m.Section,
				Lecturer: lecturer,
			})
		}
		if len(sections) < 2 {
			continue
		}
		sort.Slice(sections, func(i, j int) bool {
			if sections[i].Course != sections[j].Course {
				return sections[i].Course < sections[j].Course
			}
			return sections[i].Section < sections[j].Section
		})
		clashes = append(clashes, VenueClash{
			Day:            key.day,
			Time:           key.time,
			Venue:          key.venue,
			CourseSections: sections,
		})
	}

	sort.Slice(clashes, func(i, j int) bool {
		if clashes[i].Day != clashes[j].Day {
			return clashes[i].Day < clashes[j].Day
		}
		if clashes[i].Time != clashes[j].Time {
			return clashes[i].Time < clashes[j].Time
		}
		return clashes[i].Venue < clashes[j].Venue
	})
	return clashes
}
