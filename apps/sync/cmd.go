package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"regexp"
	"syscall"

	"golang.org/x/term"

	"github.com/faridzul/jadual/core"
	syncer "github.com/faridzul/jadual/core/sync"
	"github.com/faridzul/jadual/core/timetable"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")

	sessionRegex = regexp.MustCompile(`^\d{4}/\d{4}$`)
)

type commandLine struct {
	conf    *core.Config
	orch    *syncer.Orchestrator
	svc     *timetable.Service
	mailSvc core.EmailService
	logger  core.Logger
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  run -session YYYY/YYYY -semester N    - synchronize one term from the upstream service")
	fmt.Println("  report -session YYYY/YYYY -semester N [-lecturer WORKERNO] - print the conflict report as JSON")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runSession := runCmd.String("session", "", "Academic session, e.g. 2024/2025")
	runSemester := runCmd.Int("semester", 1, "Semester (1-3)")

	reportCmd := flag.NewFlagSet("report", flag.ExitOnError)
	reportSession := reportCmd.String("session", "", "Academic session, e.g. 2024/2025")
	reportSemester := reportCmd.Int("semester", 1, "Semester (1-3)")
	reportLecturer := reportCmd.Int("lecturer", 0, "Restrict venue clashes to this lecturer's worker no")

	switch args[1] {
	case "run":
		if err := runCmd.Parse(args[2:]); err != nil {
			return err
		}
		if err := checkTerm(*runSession, *runSemester); err != nil {
			runCmd.Usage()
			return err
		}
		return cli.runSync(*runSession, *runSemester)
	case "report":
		if err := reportCmd.Parse(args[2:]); err != nil {
			return err
		}
		if err := checkTerm(*reportSession, *reportSemester); err != nil {
			reportCmd.Usage()
			return err
		}
		return cli.printReport(*reportSession, *reportSemester, *reportLecturer)
	default:
		cli.printUsage()
		return errHelp
	}
}

func checkTerm(session string, semester int) error {
	if !sessionRegex.MatchString(session) {
		return fmt.Errorf("invalid session %q", session)
	}
	if semester < 1 || semester > 3 {
		return fmt.Errorf("invalid semester %d", semester)
	}
	return nil
}

func (cli *commandLine) runSync(session string, semester int) error {
	if cli.conf.TTMS.Password == "" {
		fmt.Print("Enter upstream password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		cli.conf.TTMS.Password = string(pwd)
	}

	summary, err := cli.orch.Run(context.Background(), session, semester)
	if err != nil {
		return err
	}

	fmt.Print(summary)
	if len(cli.conf.ReportRecipients) > 0 {
		subject := fmt.Sprintf("Sync completed for %s semester %d", session, semester)
		if summary.HasFailures() {
			subject = fmt.Sprintf("Sync completed with failures for %s semester %d", session, semester)
		}
		cli.mailSvc.SendMessages(&core.EmailMessage{
			To:      cli.conf.ReportRecipients,
			Subject: subject,
			Body:    summary.String(),
		})
	}
	return nil
}

func (cli *commandLine) printReport(session string, semester, lecturer int) error {
	ctx := context.Background()

	report, err := cli.svc.Analyze(ctx, session, semester)
	if err != nil {
		return err
	}
	if lecturer != 0 {
		clashes, err := cli.svc.VenueClashes(ctx, session, semester, lecturer)
		if err != nil {
			return err
		}
		report.VenueClashes = clashes
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
