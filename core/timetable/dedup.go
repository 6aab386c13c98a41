package timetable

// DedupSchedules collapses duplicate meeting rows sharing the same
// (courseCode, section, day, time) into one, preserving first-seen order.
// Upstream occasionally returns the same slot twice with differing incidental
// fields; the first row wins.
//
// The dedup key deliberately excludes the term: every row is stamped with the
// session/semester given here, making the one-term scoping an invariant of
// this function instead of an implicit caller contract.
func DedupSchedules(session string, semester int, rows []SectionSchedule) []SectionSchedule {
	type slotKey struct {
		courseCode string
		section    string
		day        int
		time       int
	}

	seen := make(map[slotKey]struct{}, len(rows))
	out := make([]SectionSchedule, 0, len(rows))
	for _, row := range rows {
		key := slotKey{row.CourseCode, row.Section, row.Day, row.Time}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		row.Session = session
		row.Semester = semester
		out = append(out, row)
	}
	return out
}
