package sync_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/faridzul/jadual/core"
	syncer "github.com/faridzul/jadual/core/sync"
	"github.com/faridzul/jadual/core/timetable"
	inmemdb "github.com/faridzul/jadual/storage/database/inmem"
)

const (
	testSession  = "2024/2025"
	testSemester = 1
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// fakeClient serves scripted upstream data and can be told to fail the
// student fetch at one offset a given number of times.
type fakeClient struct {
	loginCalls   int
	elevateCalls int
	rosterCalls  int

	students  []timetable.Student
	lecturers []timetable.Lecturer
	courses   []timetable.Course
	sections  []syncer.SectionRow
	schedules map[timetable.SectionKey][]syncer.ScheduleRow
	regs      map[string][]timetable.Registration
	rosters   map[timetable.SectionKey][]syncer.RosterEntry

	failStudentsOffset int
	failStudentsTimes  int
}

var _ syncer.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{
		schedules:          make(map[timetable.SectionKey][]syncer.ScheduleRow),
		regs:               make(map[string][]timetable.Registration),
		rosters:            make(map[timetable.SectionKey][]syncer.RosterEntry),
		failStudentsOffset: -1,
	}
}

func (f *fakeClient) Login(_ context.Context, _, _ string) (syncer.SessionID, error) {
	f.loginCalls++
	return syncer.SessionID(fmt.Sprintf("sid-%d", f.loginCalls)), nil
}

func (f *fakeClient) Elevate(_ context.Context, sid syncer.SessionID) (syncer.SessionID, error) {
	f.elevateCalls++
	return "admin-" + sid, nil
}

func (f *fakeClient) FetchStudents(_ context.Context, _ syncer.SessionID, _ string, _, limit, offset int) ([]timetable.Student, error) {
	if offset == f.failStudentsOffset && f.failStudentsTimes > 0 {
		f.failStudentsTimes--
		return nil, core.NewTransientUpstreamError("fetch students", fmt.Errorf("connection reset"))
	}
	if offset >= len(f.students) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.students) {
		end = len(f.students)
	}
	return f.students[offset:end], nil
}

func (f *fakeClient) FetchLecturers(_ context.Context, _ syncer.SessionID, _ string, _ int) ([]timetable.Lecturer, error) {
	return f.lecturers, nil
}

func (f *fakeClient) FetchCourses(_ context.Context, _ string, _ int) ([]timetable.Course, error) {
	return f.courses, nil
}

func (f *fakeClient) FetchCourseSections(_ context.Context, _ string, _ int) ([]syncer.SectionRow, error) {
	return f.sections, nil
}

func (f *fakeClient) FetchSectionSchedules(_ context.Context, _ string, _ int, courseCode, section string) ([]syncer.ScheduleRow, error) {
	return f.schedules[timetable.SectionKey{CourseCode: courseCode, Section: section}], nil
}

func (f *fakeClient) FetchStudentRegistrations(_ context.Context, matricNo string) ([]timetable.Registration, error) {
	return f.regs[matricNo], nil
}

func (f *fakeClient) FetchSectionRoster(_ context.Context, _ syncer.SessionID, _ string, _ int, courseCode, section string) ([]syncer.RosterEntry, error) {
	f.rosterCalls++
	return f.rosters[timetable.SectionKey{CourseCode: courseCode, Section: section}], nil
}

func testConfig() *core.Config {
	return &core.Config{
		TTMS: core.TTMSConfig{
			Login:       "admin",
			Password:    "secret",
			PageSize:    2,
			PacingDelay: 0, // no backpressure against a fake
			MaxAttempts: 3,
		},
	}
}

func newOrchestrator(client *fakeClient) (*syncer.Orchestrator, timetable.Repository) {
	conf := testConfig()
	repo := inmemdb.NewTimetableRepository(inmemdb.Open())
	sessions := syncer.NewSessionManager(client, conf)
	orch := syncer.NewOrchestrator(client, sessions, repo, validator.New(), nopLogger{}, conf)
	return orch, repo
}

func stepByName(t *testing.T, summary *syncer.RunSummary, name string) *syncer.StepResult {
	t.Helper()
	for _, step := range summary.Steps {
		if step.Name == name {
			return step
		}
	}
	t.Fatalf("summary has no step %q: %+v", name, summary.Steps)
	return nil
}

// seedFakeTerm scripts one small but complete term: three students over two
// pages, a matchable and an unmatchable section lecturer, a self-clashing
// schedule, a malformed schedule row, registration history spanning two terms
// and a roster resolving one of the two placeholder identity numbers.
func seedFakeTerm(client *fakeClient) {
	client.students = []timetable.Student{
		{MatricNo: "A21EC0001", Name: "AINA BINTI ALI", CourseCode: "SECJH", FacultyCode: "FC"},
		{MatricNo: "A21EC0002", Name: "BADRUL BIN BAKRI", CourseCode: "SECJH", FacultyCode: "FC", KPNo: "990101015555"},
		{MatricNo: "A21EC0003", Name: "CHONG WEI", CourseCode: "SECVH", FacultyCode: "FC"},
	}
	client.lecturers = []timetable.Lecturer{{WorkerNo: 123, Name: "DR. FARID BIN OSMAN"}}
	client.courses = []timetable.Course{
		{Code: "SECJ1013", Name: "Programming Technique I", Credit: 3},
		{Code: "SECR2043", Name: "Operating Systems", Credit: 3},
	}
	client.sections = []syncer.SectionRow{
		{CourseCode: "SECJ1013", Section: "01", LecturerName: "Dr. Farid Bin Osman "},
		{CourseCode: "SECR2043", Section: "05", LecturerName: "NO SUCH PERSON"},
	}
	client.schedules[timetable.SectionKey{CourseCode: "SECJ1013", Section: "01"}] = []syncer.ScheduleRow{
		{
			CourseCode: "SECJ1013", Section: "01", Day: 1, Time: 2,
			VenueCode: null.StringFrom("N28-105"),
			Venue:     &timetable.Venue{Code: "N28-105", Name: "BK1, N28"},
		},
		// upstream self-clash: same slot again with another venue
		{CourseCode: "SECJ1013", Section: "01", Day: 1, Time: 2, VenueCode: null.StringFrom("N28-106")},
		{CourseCode: "SECJ1013", Section: "01", Day: 1, Time: 3, VenueCode: null.StringFrom("N28-105")},
	}
	client.schedules[timetable.SectionKey{CourseCode: "SECR2043", Section: "05"}] = []syncer.ScheduleRow{
		{CourseCode: "SECR2043", Section: "05", Day: 2, Time: 4},
		{CourseCode: "SECR2043", Section: "05", Day: 0, Time: 4}, // malformed: day out of range
	}
	client.regs["A21EC0001"] = []timetable.Registration{
		{MatricNo: "A21EC0001", Session: testSession, Semester: testSemester, CourseCode: "SECJ1013", Section: "01"},
		{MatricNo: "A21EC0001", Session: "2023/2024", Semester: 2, CourseCode: "SECJ1013", Section: "02"},
	}
	client.regs["A21EC0002"] = []timetable.Registration{
		{MatricNo: "A21EC0002", Session: testSession, Semester: testSemester, CourseCode: "SECJ1013", Section: "01"},
		{MatricNo: "A21EC0002", Session: testSession, Semester: testSemester, CourseCode: "SECR2043", Section: "05"},
	}
	client.regs["A21EC0003"] = []timetable.Registration{
		{MatricNo: "A21EC0003", Session: testSession, Semester: testSemester, CourseCode: "SECJ1013", Section: "01"},
	}
	client.rosters[timetable.SectionKey{CourseCode: "SECJ1013", Section: "01"}] = []syncer.RosterEntry{
		{Name: "Aina Binti Ali", KPNo: "010203040506"},
		{Name: "Badrul Bin Bakri", KPNo: "990101015555"},
		// Chong Wei is missing; his identity stays pending
	}
}

func TestSessionManagerCachesSession(t *testing.T) {
	client := newFakeClient()
	sessions := syncer.NewSessionManager(client, testConfig())

	sid, err := sessions.Current(context.Background())
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if sid != "admin-sid-1" {
		t.Errorf("Current() = %q, want the elevated session", sid)
	}

	if _, err = sessions.Current(context.Background()); err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if client.loginCalls != 1 || client.elevateCalls != 1 {
		t.Errorf("cached session re-authenticated: %d logins, %d elevations", client.loginCalls, client.elevateCalls)
	}

	sessions.Invalidate()
	sid, err = sessions.Current(context.Background())
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if sid != "admin-sid-2" || client.loginCalls != 2 {
		t.Errorf("Invalidate() did not force a fresh session: sid=%q, logins=%d", sid, client.loginCalls)
	}
}

func TestRunSyncsTerm(t *testing.T) {
	client := newFakeClient()
	seedFakeTerm(client)
	orch, repo := newOrchestrator(client)
	ctx := context.Background()

	summary, err := orch.Run(ctx, testSession, testSemester)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if summary.HasFailures() {
		t.Fatalf("Run() reported failures:\n%s", summary)
	}

	students := stepByName(t, summary, "students")
	if students.Fetched != 3 || students.Upserted != 3 {
		t.Errorf("students step = %+v, want 3 fetched and upserted", students)
	}

	schedules := stepByName(t, summary, "schedules")
	if schedules.Fetched != 5 || schedules.Upserted != 3 || schedules.Skipped != 1 {
		t.Errorf("schedules step = %+v, want fetched 5, upserted 3 (deduped), skipped 1", schedules)
	}
	if n, _ := repo.CountSchedules(ctx, testSession, testSemester); n != 3 {
		t.Errorf("CountSchedules() = %d, want 3", n)
	}

	regs := stepByName(t, summary, "registrations")
	if regs.Fetched != 5 || regs.Upserted != 4 {
		t.Errorf("registrations step = %+v, want fetched 5, upserted 4 (other terms dropped)", regs)
	}
	stored, err := repo.QueryRegistrations(ctx, testSession, testSemester)
	if err != nil {
		t.Fatalf("QueryRegistrations() failed: %v", err)
	}
	if len(stored) != 4 {
		t.Errorf("QueryRegistrations() = %d rows, want 4", len(stored))
	}

	sections, err := repo.QueryCourseSections(ctx, testSession, testSemester)
	if err != nil {
		t.Fatalf("QueryCourseSections() failed: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("QueryCourseSections() = %d rows, want 2", len(sections))
	}
	if sections[0].LecturerNo != null.IntFrom(123) {
		t.Errorf("SECJ1013-01 lecturer = %+v, want worker no 123 matched by name", sections[0].LecturerNo)
	}
	if sections[1].LecturerNo.Valid {
		t.Errorf("SECR2043-05 lecturer = %+v, want unassigned for an unknown name", sections[1].LecturerNo)
	}

	backfill := stepByName(t, summary, "backfill")
	if backfill.Upserted != 1 || backfill.Skipped != 1 {
		t.Errorf("backfill step = %+v, want 1 resolved and 1 still pending", backfill)
	}
	if client.rosterCalls != 1 {
		t.Errorf("rosterCalls = %d, want 1 (shared section fetched once)", client.rosterCalls)
	}

	allStudents, err := repo.QueryAllStudents(ctx)
	if err != nil {
		t.Fatalf("QueryAllStudents() failed: %v", err)
	}
	byMatric := make(map[string]timetable.Student, len(allStudents))
	for _, s := range allStudents {
		byMatric[s.MatricNo] = s
	}
	if kp := byMatric["A21EC0001"].KPNo; kp != "010203040506" {
		t.Errorf("A21EC0001 kpNo = %q, want backfilled 010203040506", kp)
	}
	if kp := byMatric["A21EC0003"].KPNo; kp != "" {
		t.Errorf("A21EC0003 kpNo = %q, want still pending", kp)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	client := newFakeClient()
	seedFakeTerm(client)
	orch, repo := newOrchestrator(client)
	ctx := context.Background()

	if _, err := orch.Run(ctx, testSession, testSemester); err != nil {
		t.Fatalf("first Run() failed: %v", err)
	}
	summary, err := orch.Run(ctx, testSession, testSemester)
	if err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if summary.HasFailures() {
		t.Fatalf("second Run() reported failures:\n%s", summary)
	}

	students, _ := repo.QueryAllStudents(ctx)
	if len(students) != 3 {
		t.Errorf("QueryAllStudents() = %d rows after re-run, want 3", len(students))
	}
	for _, s := range students {
		if s.MatricNo == "A21EC0001" && s.KPNo != "010203040506" {
			t.Errorf("re-run reverted backfilled kpNo: %q", s.KPNo)
		}
	}
	if n, _ := repo.CountSchedules(ctx, testSession, testSemester); n != 3 {
		t.Errorf("CountSchedules() = %d after re-run, want 3", n)
	}
	regs, _ := repo.QueryRegistrations(ctx, testSession, testSemester)
	if len(regs) != 4 {
		t.Errorf("QueryRegistrations() = %d rows after re-run, want 4", len(regs))
	}
}

func TestBackfillTriesLaterRostersOnPlaceholder(t *testing.T) {
	client := newFakeClient()
	client.students = []timetable.Student{
		{MatricNo: "A21EC0001", Name: "AINA BINTI ALI", CourseCode: "SECJH", FacultyCode: "FC"},
	}
	client.regs["A21EC0001"] = []timetable.Registration{
		{MatricNo: "A21EC0001", Session: testSession, Semester: testSemester, CourseCode: "SECJ1013", Section: "01"},
		{MatricNo: "A21EC0001", Session: testSession, Semester: testSemester, CourseCode: "SECR2043", Section: "05"},
	}
	// the first roster only knows the student by a placeholder; the second
	// carries the real number
	client.rosters[timetable.SectionKey{CourseCode: "SECJ1013", Section: "01"}] = []syncer.RosterEntry{
		{Name: "Aina Binti Ali", KPNo: ""},
	}
	client.rosters[timetable.SectionKey{CourseCode: "SECR2043", Section: "05"}] = []syncer.RosterEntry{
		{Name: "Aina Binti Ali", KPNo: "010203040506"},
	}
	orch, repo := newOrchestrator(client)
	ctx := context.Background()

	summary, err := orch.Run(ctx, testSession, testSemester)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	backfill := stepByName(t, summary, "backfill")
	if backfill.Upserted != 1 || backfill.Skipped != 0 {
		t.Errorf("backfill step = %+v, want the second roster to resolve the student", backfill)
	}
	if client.rosterCalls != 2 {
		t.Errorf("rosterCalls = %d, want both rosters consulted", client.rosterCalls)
	}

	students, _ := repo.QueryAllStudents(ctx)
	if len(students) != 1 || students[0].KPNo != "010203040506" {
		t.Errorf("student = %+v, want kpNo resolved from the second roster", students)
	}
}

func TestRunAbortsStepAfterRepeatedFailures(t *testing.T) {
	client := newFakeClient()
	seedFakeTerm(client)
	client.failStudentsOffset = 2 // second page
	client.failStudentsTimes = 3
	orch, repo := newOrchestrator(client)
	ctx := context.Background()

	summary, err := orch.Run(ctx, testSession, testSemester)
	if err != nil {
		t.Fatalf("Run() failed, want a completed run with an aborted step: %v", err)
	}

	students := stepByName(t, summary, "students")
	if !students.Aborted {
		t.Fatal("students step not marked aborted")
	}
	if !summary.HasFailures() {
		t.Error("HasFailures() = false, want true")
	}
	if students.Upserted != 2 {
		t.Errorf("students upserted = %d, want the 2 from the successful first page", students.Upserted)
	}

	// one initial login plus one re-auth per failed attempt short of the budget
	if client.loginCalls != 3 {
		t.Errorf("loginCalls = %d, want 3", client.loginCalls)
	}

	// the run carried on past the aborted step
	lecturers := stepByName(t, summary, "lecturers")
	if lecturers.Aborted || lecturers.Upserted != 1 {
		t.Errorf("lecturers step = %+v, want it to run normally after the abort", lecturers)
	}
	stored, _ := repo.QueryAllStudents(ctx)
	if len(stored) != 2 {
		t.Errorf("QueryAllStudents() = %d rows, want the first page intact", len(stored))
	}
}

func TestRunRecoversFromTransientFailure(t *testing.T) {
	client := newFakeClient()
	seedFakeTerm(client)
	client.failStudentsOffset = 0
	client.failStudentsTimes = 1
	orch, repo := newOrchestrator(client)

	summary, err := orch.Run(context.Background(), testSession, testSemester)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if summary.HasFailures() {
		t.Fatalf("Run() reported failures after a recoverable hiccup:\n%s", summary)
	}
	if client.loginCalls != 2 {
		t.Errorf("loginCalls = %d, want 2 (initial plus one re-auth)", client.loginCalls)
	}
	students, _ := repo.QueryAllStudents(context.Background())
	if len(students) != 3 {
		t.Errorf("QueryAllStudents() = %d rows, want 3", len(students))
	}
}
