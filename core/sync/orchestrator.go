package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/faridzul/jadual/core"
	"github.com/faridzul/jadual/core/timetable"
)

type (
	// StepResult tallies one fetch step of a run.
	StepResult struct {
		Name     string `json:"name"`
		Fetched  int    `json:"fetched"`
		Upserted int    `json:"upserted"`
		Skipped  int    `json:"skipped"` // malformed rows dropped
		Aborted  bool   `json:"aborted"` // retry budget exhausted
	}

	// RunSummary describes one orchestrator run, step by step.
	RunSummary struct {
		RunID      string        `json:"runId"`
		Session    string        `json:"session"`
		Semester   int           `json:"semester"`
		StartedAt  time.Time     `json:"startedAt"`
		FinishedAt time.Time     `json:"finishedAt"`
		Steps      []*StepResult `json:"steps"`
	}

	// Orchestrator sequences the entity fetchers for one term and applies the
	// idempotent-upsert contract uniformly. Re-running a term is always safe:
	// no duplicate rows, no data loss.
	Orchestrator struct {
		client   Client
		sessions *SessionManager
		repo     timetable.Repository
		validate *validator.Validate
		log      core.Logger

		pacing      time.Duration
		pageSize    int
		maxAttempts int
	}
)

func (s *RunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sync run %s for %s semester %d\n", s.RunID, s.Session, s.Semester)
	fmt.Fprintf(&b, "started %s, finished %s\n\n", s.StartedAt.Format(time.RFC3339), s.FinishedAt.Format(time.RFC3339))
	for _, step := range s.Steps {
		status := "ok"
		if step.Aborted {
			status = "ABORTED"
		}
		fmt.Fprintf(&b, "%-14s %s: fetched %d, upserted %d, skipped %d\n",
			step.Name, status, step.Fetched, step.Upserted, step.Skipped)
	}
	return b.String()
}

// HasFailures reports whether any step aborted before completion.
func (s *RunSummary) HasFailures() bool {
	for _, step := range s.Steps {
		if step.Aborted {
			return true
		}
	}
	return false
}

func NewOrchestrator(
	client Client,
	sessions *SessionManager,
	repo timetable.Repository,
	validate *validator.Validate,
	logger core.Logger,
	conf *core.Config,
) *Orchestrator {
	return &Orchestrator{
		client:      client,
		sessions:    sessions,
		repo:        repo,
		validate:    validate,
		log:         logger,
		pacing:      conf.TTMS.PacingDelay,
		pageSize:    conf.TTMS.PageSize,
		maxAttempts: conf.TTMS.MaxAttempts,
	}
}

// Run synchronizes one term in dependency order: students, lecturers and
// courses first, then course sections, section schedules, registrations and
// finally the identity backfill. Failures abort at most their own step; the
// run always proceeds to completion and reports per-step tallies.
func (o *Orchestrator) Run(ctx context.Context, session string, semester int) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.New().String(),
		Session:   session,
		Semester:  semester,
		StartedAt: time.Now().UTC(),
	}
	o.log.Info(fmt.Sprintf("sync %s: starting run for %s semester %d", summary.RunID, session, semester))

	if err := o.repo.UpsertSession(ctx, timetable.Session{Session: session, Semester: semester}); err != nil {
		return nil, err
	}

	steps := []struct {
		name string
		run  func(ctx context.Context, session string, semester int, res *StepResult) error
	}{
		{"students", o.syncStudents},
		{"lecturers", o.syncLecturers},
		{"courses", o.syncCourses},
		{"sections", o.syncSections},
		{"schedules", o.syncSchedules},
		{"registrations", o.syncRegistrations},
		{"backfill", o.backfillIdentities},
	}

	for _, step := range steps {
		res := &StepResult{Name: step.name}
		summary.Steps = append(summary.Steps, res)

		err := step.run(ctx, session, semester, res)
		switch {
		case err == nil:
		case isStepAborted(err):
			res.Aborted = true
			o.log.Error(fmt.Sprintf("sync %s: step %s aborted: %v", summary.RunID, step.name, err), err)
		case ctx.Err() != nil:
			return summary, ctx.Err()
		default:
			// repository failures are not recoverable by re-auth
			return summary, err
		}
	}

	summary.FinishedAt = time.Now().UTC()
	o.log.Info(fmt.Sprintf("sync %s: run finished\n%s", summary.RunID, summary))
	return summary, nil
}

func (o *Orchestrator) newRetrier() *retrier {
	return &retrier{sessions: o.sessions, log: o.log, maxAttempts: o.maxAttempts}
}

// pace sleeps the configured pacing delay between upstream requests. This is
// deliberate backpressure toward the upstream service, not a tuning knob.
func (o *Orchestrator) pace(ctx context.Context) {
	if o.pacing <= 0 {
		return
	}
	select {
	case <-time.After(o.pacing):
	case <-ctx.Done():
	}
}

// checkRow validates one upstream row, logging and counting malformed rows.
func (o *Orchestrator) checkRow(entity string, row interface{}, res *StepResult) bool {
	if err := o.validate.Struct(row); err != nil {
		res.Skipped++
		shapeErr := core.NewDataShapeError(entity, err.Error())
		o.log.Warn(fmt.Sprintf("skipping row: %v", shapeErr), shapeErr)
		return false
	}
	return true
}
