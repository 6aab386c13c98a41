package main

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/mail"
	"os"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/faridzul/jadual/core"
	syncer "github.com/faridzul/jadual/core/sync"
	"github.com/faridzul/jadual/core/timetable"
	emailsvc "github.com/faridzul/jadual/services/email"
	inmemdb "github.com/faridzul/jadual/storage/database/inmem"
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// stubClient serves an empty upstream and records the credentials used.
type stubClient struct {
	lastLogin    string
	lastPassword string
}

var _ syncer.Client = (*stubClient)(nil)

func (c *stubClient) Login(_ context.Context, login, password string) (syncer.SessionID, error) {
	c.lastLogin, c.lastPassword = login, password
	return "sid", nil
}

func (c *stubClient) Elevate(_ context.Context, sid syncer.SessionID) (syncer.SessionID, error) {
	return "admin-" + sid, nil
}

func (c *stubClient) FetchStudents(context.Context, syncer.SessionID, string, int, int, int) ([]timetable.Student, error) {
	return nil, nil
}

func (c *stubClient) FetchLecturers(context.Context, syncer.SessionID, string, int) ([]timetable.Lecturer, error) {
	return nil, nil
}

func (c *stubClient) FetchCourses(context.Context, string, int) ([]timetable.Course, error) {
	return nil, nil
}

func (c *stubClient) FetchCourseSections(context.Context, string, int) ([]syncer.SectionRow, error) {
	return nil, nil
}

func (c *stubClient) FetchSectionSchedules(context.Context, string, int, string, string) ([]syncer.ScheduleRow, error) {
	return nil, nil
}

func (c *stubClient) FetchStudentRegistrations(context.Context, string) ([]timetable.Registration, error) {
	return nil, nil
}

func (c *stubClient) FetchSectionRoster(context.Context, syncer.SessionID, string, int, string, string) ([]syncer.RosterEntry, error) {
	return nil, nil
}

func newTestCLI(client *stubClient) (*commandLine, timetable.Repository) {
	conf := &core.Config{
		TestMode: true,
		Env:      "TEST",
		TTMS:     core.TTMSConfig{Login: "admin", PageSize: 50, MaxAttempts: 3},
	}
	repo := inmemdb.NewTimetableRepository(inmemdb.Open())
	sessions := syncer.NewSessionManager(client, conf)
	return &commandLine{
		conf:   conf,
		orch:   syncer.NewOrchestrator(client, sessions, repo, validator.New(), nopLogger{}, conf),
		svc:    timetable.NewService(repo, nopLogger{}),
		logger: nopLogger{},
	}, repo
}

func TestCheckTerm(t *testing.T) {
	tests := []struct {
		name     string
		session  string
		semester int
		wantErr  bool
	}{
		{name: "valid", session: "2024/2025", semester: 1, wantErr: false},
		{name: "semester 3", session: "2024/2025", semester: 3, wantErr: false},
		{name: "empty session", session: "", semester: 1, wantErr: true},
		{name: "malformed session", session: "2024-2025", semester: 1, wantErr: true},
		{name: "semester too low", session: "2024/2025", semester: 0, wantErr: true},
		{name: "semester too high", session: "2024/2025", semester: 4, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTerm(tt.session, tt.semester)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkTerm(%q, %d) error = %v, wantErr %v", tt.session, tt.semester, err, tt.wantErr)
			}
		})
	}
}

func TestRunUsage(t *testing.T) {
	cli, _ := newTestCLI(&stubClient{})

	if err := cli.run([]string{"jadual-sync"}); err != errHelp {
		t.Errorf("run() with no command = %v, want errHelp", err)
	}
	if err := cli.run([]string{"jadual-sync", "frobnicate"}); err != errHelp {
		t.Errorf("run() with unknown command = %v, want errHelp", err)
	}
	if err := cli.run([]string{"jadual-sync", "run", "-session", "garbage"}); err == nil {
		t.Error("run() with a malformed session succeeded, want an error")
	}
}

func TestRunSyncPromptsForMissingPassword(t *testing.T) {
	origReadPassword := readPasswordFunc
	defer func() { readPasswordFunc = origReadPassword }()
	readPasswordFunc = func(int) ([]byte, error) { return []byte("s3cret"), nil }

	client := &stubClient{}
	cli, _ := newTestCLI(client)

	// silence the summary print
	origStdout := os.Stdout
	devNull, _ := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	os.Stdout = devNull
	err := cli.run([]string{"jadual-sync", "run", "-session", "2024/2025", "-semester", "1"})
	os.Stdout = origStdout
	devNull.Close()

	if err != nil {
		t.Fatalf("run() failed: %v", err)
	}
	if client.lastPassword != "s3cret" {
		t.Errorf("upstream saw password %q, want the prompted one", client.lastPassword)
	}
	if cli.conf.TTMS.Password != "s3cret" {
		t.Errorf("conf password = %q, want it retained for re-auth", cli.conf.TTMS.Password)
	}
}

func TestRunSyncEmailsSummaryBeforeReturning(t *testing.T) {
	emailsvc.SentMessages = nil

	client := &stubClient{}
	cli, _ := newTestCLI(client)
	cli.conf.TTMS.Password = "s3cret"
	cli.conf.ReportRecipients = []mail.Address{{Address: "ops@example.com"}}
	cli.mailSvc = emailsvc.NewConsoleService(cli.conf)

	origStdout := os.Stdout
	devNull, _ := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	os.Stdout = devNull
	err := cli.run([]string{"jadual-sync", "run", "-session", "2024/2025", "-semester", "1"})
	os.Stdout = origStdout
	devNull.Close()

	if err != nil {
		t.Fatalf("run() failed: %v", err)
	}

	// the CLI exits right after runSync returns, so the summary email must
	// already be delivered by then
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("SentMessages = %d, want the run summary recorded before run() returned", len(emailsvc.SentMessages))
	}
	msg := emailsvc.SentMessages[0]
	if !strings.HasPrefix(msg.Subject, "Sync completed") {
		t.Errorf("subject = %q, want a completion subject", msg.Subject)
	}
	if len(msg.To) != 1 || msg.To[0].Address != "ops@example.com" {
		t.Errorf("recipients = %v, want the configured report recipients", msg.To)
	}
}

func TestPrintReport(t *testing.T) {
	cli, repo := newTestCLI(&stubClient{})
	ctx := context.Background()

	err := repo.UpsertStudents(ctx, []timetable.Student{
		{MatricNo: "A21EC0001", Name: "AINA BINTI ALI", CourseCode: "SECJH"},
	})
	if err != nil {
		t.Fatalf("UpsertStudents() failed: %v", err)
	}
	err = repo.UpsertRegistrations(ctx, []timetable.Registration{
		{MatricNo: "A21EC0001", Session: "2024/2025", Semester: 1, CourseCode: "SECJ1013", Section: "01"},
	})
	if err != nil {
		t.Fatalf("UpsertRegistrations() failed: %v", err)
	}

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() failed: %v", err)
	}
	os.Stdout = w
	reportErr := cli.run([]string{"jadual-sync", "report", "-session", "2024/2025", "-semester", "1"})
	w.Close()
	os.Stdout = origStdout

	if reportErr != nil {
		t.Fatalf("run() failed: %v", reportErr)
	}

	out, err := ioutil.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured output: %v", err)
	}
	var report timetable.Report
	if err := json.Unmarshal(out, &report); err != nil {
		t.Fatalf("report output is not JSON: %v\n%s", err, out)
	}
	if report.ActiveStudents != 1 {
		t.Errorf("activeStudents = %d, want 1", report.ActiveStudents)
	}
}
