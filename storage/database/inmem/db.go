package inmemdb

import (
	"sync"

	"github.com/faridzul/jadual/core/timetable"
)

type (
	termKey struct {
		session  string
		semester int
	}

	sectionKey struct {
		term       termKey
		courseCode string
		section    string
	}

	scheduleKey struct {
		section sectionKey
		day     int
		time    int
	}

	regKey struct {
		matricNo string
		section  sectionKey
	}

	// DB is an in-memory store mirroring the relational schema. Used by tests
	// and local runs without Postgres.
	DB struct {
		mu            sync.RWMutex
		sessions      map[termKey]timetable.Session
		students      map[string]timetable.Student
		lecturers     map[int]timetable.Lecturer
		courses       map[string]timetable.Course
		sections      map[sectionKey]timetable.CourseSection
		schedules     map[scheduleKey]timetable.SectionSchedule
		registrations map[regKey]timetable.Registration
		venues        map[string]timetable.Venue
	}
)

func Open() *DB {
	return &DB{
		sessions:      make(map[termKey]timetable.Session),
		students:      make(map[string]timetable.Student),
		lecturers:     make(map[int]timetable.Lecturer),
		courses:       make(map[string]timetable.Course),
		sections:      make(map[sectionKey]timetable.CourseSection),
		schedules:     make(map[scheduleKey]timetable.SectionSchedule),
		registrations: make(map[regKey]timetable.Registration),
		venues:        make(map[string]timetable.Venue),
	}
}
