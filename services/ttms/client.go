package ttms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/faridzul/jadual/core"
	"github.com/faridzul/jadual/core/sync"
	"github.com/faridzul/jadual/core/timetable"
)

// Client talks to the university timetable web service: a single CGI endpoint
// that selects its query shape through an `entity` parameter and answers with
// JSON arrays.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ sync.Client = (*Client)(nil)

func NewClient(conf *core.Config) *Client {
	return &Client{
		baseURL: conf.TTMS.BaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// get performs one upstream query and decodes the JSON array response.
// Auth rejections become AuthenticationErrors; everything else that fails is
// a TransientUpstreamError (in practice usually a silently expired session).
func (c *Client) get(ctx context.Context, op string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, op)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.NewTransientUpstreamError(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return core.NewAuthenticationError(op, fmt.Errorf("upstream responded %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return core.NewTransientUpstreamError(op, fmt.Errorf("upstream responded %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.NewTransientUpstreamError(op, errors.Wrap(err, "decoding response"))
	}
	return nil
}

func (c *Client) Login(ctx context.Context, login, password string) (sync.SessionID, error) {
	const op = "ttms.Login"
	params := url.Values{}
	params.Set("entity", "authentication")
	params.Set("login", login)
	params.Set("password", password)

	var out []authDTO
	if err := c.get(ctx, op, params, &out); err != nil {
		return "", err
	}
	if len(out) == 0 || out[0].SessionID == "" {
		return "", core.NewAuthenticationError(op, nil)
	}
	return sync.SessionID(out[0].SessionID), nil
}

func (c *Client) Elevate(ctx context.Context, sid sync.SessionID) (sync.SessionID, error) {
	const op = "ttms.Elevate"
	params := url.Values{}
	params.Set("entity", "admin_session")
	params.Set("session_id", string(sid))

	var out []authDTO
	if err := c.get(ctx, op, params, &out); err != nil {
		return "", err
	}
	if len(out) == 0 || out[0].SessionID == "" {
		return "", core.NewAuthenticationError(op, nil)
	}
	return sync.SessionID(out[0].SessionID), nil
}

func (c *Client) FetchStudents(ctx context.Context, sid sync.SessionID, session string, semester, limit, offset int) ([]timetable.Student, error) {
	params := url.Values{}
	params.Set("entity", "pelajar")
	params.Set("session_id", string(sid))
	params.Set("sesi", session)
	params.Set("semester", strconv.Itoa(semester))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	var out []studentDTO
	if err := c.get(ctx, "ttms.FetchStudents", params, &out); err != nil {
		return nil, err
	}

	students := make([]timetable.Student, 0, len(out))
	for _, dto := range out {
		students = append(students, timetable.Student{
			MatricNo:    dto.NoMatrik,
			Name:        dto.Nama,
			CourseCode:  dto.KodKursus,
			FacultyCode: dto.KodFakulti,
			KPNo:        normalizeKP(dto.NoKP),
		})
	}
	return students, nil
}

func (c *Client) FetchLecturers(ctx context.Context, sid sync.SessionID, session string, semester int) ([]timetable.Lecturer, error) {
	params := url.Values{}
	params.Set("entity", "pensyarah")
	params.Set("session_id", string(sid))
	params.Set("sesi", session)
	params.Set("semester", strconv.Itoa(semester))

	var out []lecturerDTO
	if err := c.get(ctx, "ttms.FetchLecturers", params, &out); err != nil {
		return nil, err
	}

	lecturers := make([]timetable.Lecturer, 0, len(out))
	for _, dto := range out {
		lecturers = append(lecturers, timetable.Lecturer{WorkerNo: dto.NoPekerja, Name: dto.Nama})
	}
	return lecturers, nil
}

func (c *Client) FetchCourses(ctx context.Context, session string, semester int) ([]timetable.Course, error) {
	params := url.Values{}
	params.Set("entity", "subjek")
	params.Set("sesi", session)
	params.Set("semester", strconv.Itoa(semester))

	var out []courseDTO
	if err := c.get(ctx, "ttms.FetchCourses", params, &out); err != nil {
		return nil, err
	}

	courses := make([]timetable.Course, 0, len(out))
	for _, dto := range out {
		courses = append(courses, timetable.Course{Code: dto.KodSubjek, Name: dto.NamaSubjek, Credit: dto.Kredit})
	}
	return courses, nil
}

func (c *Client) FetchCourseSections(ctx context.Context, session string, semester int) ([]sync.SectionRow, error) {
	params := url.Values{}
	params.Set("entity", "subjek_seksyen")
	params.Set("sesi", session)
	params.Set("semester", strconv.Itoa(semester))

	var out []sectionDTO
	if err := c.get(ctx, "ttms.FetchCourseSections", params, &out); err != nil {
		return nil, err
	}

	rows := make([]sync.SectionRow, 0, len(out))
	for _, dto := range out {
		rows = append(rows, sync.SectionRow{
			CourseCode:   dto.KodSubjek,
			Section:      dto.Seksyen,
			LecturerName: strOrEmpty(dto.Pensyarah),
		})
	}
	return rows, nil
}

func (c *Client) FetchSectionSchedules(ctx context.Context, session string, semester int, courseCode, section string) ([]sync.ScheduleRow, error) {
	params := url.Values{}
	params.Set("entity", "jadual_subjek")
	params.Set("sesi", session)
	params.Set("semester", strconv.Itoa(semester))
	params.Set("kod_subjek", courseCode)
	params.Set("seksyen", section)

	var out []scheduleDTO
	if err := c.get(ctx, "ttms.FetchSectionSchedules", params, &out); err != nil {
		return nil, err
	}

	rows := make([]sync.ScheduleRow, 0, len(out))
	for _, dto := range out {
		row := sync.ScheduleRow{
			CourseCode: dto.KodSubjek,
			Section:    dto.Seksyen,
			Day:        dto.Hari,
			Time:       dto.Masa,
		}
		if venue := strOrEmpty(dto.KodRuang); venue != "" {
			row.VenueCode = null.StringFrom(venue)
		}
		if dto.Ruang != nil && dto.Ruang.KodRuang != "" {
			row.Venue = &timetable.Venue{
				Code:      dto.Ruang.KodRuang,
				Name:      dto.Ruang.NamaRuang,
				ShortName: dto.Ruang.NamaRuangSingkatan,
				Capacity:  dto.Ruang.Kapasiti,
				Type:      dto.Ruang.JenisRuang,
			}
			if !row.VenueCode.Valid {
				row.VenueCode = null.StringFrom(dto.Ruang.KodRuang)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Client) FetchStudentRegistrations(ctx context.Context, matricNo string) ([]timetable.Registration, error) {
	params := url.Values{}
	params.Set("entity", "pelajar_subjek")
	params.Set("no_matrik", matricNo)

	var out []registrationDTO
	if err := c.get(ctx, "ttms.FetchStudentRegistrations", params, &out); err != nil {
		return nil, err
	}

	regs := make([]timetable.Registration, 0, len(out))
	for _, dto := range out {
		regs = append(regs, timetable.Registration{
			MatricNo:   matricNo,
			Session:    dto.Sesi,
			Semester:   dto.Semester,
			CourseCode: dto.KodSubjek,
			Section:    dto.Seksyen,
		})
	}
	return regs, nil
}

func (c *Client) FetchSectionRoster(ctx context.Context, sid sync.SessionID, session string, semester int, courseCode, section string) ([]sync.RosterEntry, error) {
	params := url.Values{}
	params.Set("entity", "subjek_pelajar")
	params.Set("session_id", string(sid))
	params.Set("sesi", session)
	params.Set("semester", strconv.Itoa(semester))
	params.Set("kod_subjek", courseCode)
	params.Set("seksyen", section)

	var out []rosterDTO
	if err := c.get(ctx, "ttms.FetchSectionRoster", params, &out); err != nil {
		return nil, err
	}

	entries := make([]sync.RosterEntry, 0, len(out))
	for _, dto := range out {
		entries = append(entries, sync.RosterEntry{Name: dto.Nama, KPNo: normalizeKP(dto.NoKP)})
	}
	return entries, nil
}
