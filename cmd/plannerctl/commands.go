package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/brainamp/planner-engine/config"
	"github.com/brainamp/planner-engine/internal/app"
	"github.com/brainamp/planner-engine/internal/application/command"
	"github.com/brainamp/planner-engine/internal/application/query"
	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/shared"
)

// open loads configuration and assembles the application. Logs go to stderr
// so stdout stays machine-readable.
func open(ctx context.Context, stderr io.Writer, autoMigrate bool) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Storage.AutoMigrate = autoMigrate
	return app.New(ctx, cfg, app.NewLogger(cfg, stderr))
}

func userFlags(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet("plannerctl "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	user := fs.String("user", "", "user id (required)")
	return fs, user
}

func parseUser(fs *flag.FlagSet, user *string, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*user) == "" {
		return errors.New("-user is required")
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ─── migrate ──────────────────────────────────────────────────────────────────

func migrateCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	a, err := open(ctx, stderr, false)
	if err != nil {
		return err
	}
	defer a.Close()

	m := a.Migrator()
	if m == nil {
		fmt.Fprintf(stdout, "storage driver %q manages its schema on open; nothing to do\n", a.Config.Storage.Driver)
		return nil
	}

	switch action {
	case "up":
		return m.Migrate(ctx)
	case "down":
		return m.Rollback(ctx)
	case "status":
		migrations, err := m.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
		for _, mig := range migrations {
			applied := "no"
			if mig.IsApplied {
				applied = mig.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", mig.Version, mig.Name, applied)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown migrate action %q (want up, down or status)", action)
	}
}

// ─── seed ─────────────────────────────────────────────────────────────────────

type seedFile struct {
	Modules []seedModule `yaml:"modules"`
}

type seedModule struct {
	ID              string `yaml:"id"`
	CourseID        string `yaml:"course_id"`
	Title           string `yaml:"title"`
	TaskDate        string `yaml:"task_date"`
	DayIndex        int    `yaml:"day_index"`
	LessonContent   string `yaml:"lesson_content"`
	PracticeContent string `yaml:"practice_content"`
	QuizContent     string `yaml:"quiz_content"`
}

func (s seedModule) toModule() (course.Module, error) {
	if strings.TrimSpace(s.ID) == "" {
		return course.Module{}, errors.New("module id is required")
	}
	m := course.Module{
		ID:              s.ID,
		CourseID:        s.CourseID,
		Title:           s.Title,
		DayIndex:        s.DayIndex,
		LessonContent:   s.LessonContent,
		PracticeContent: s.PracticeContent,
		QuizContent:     s.QuizContent,
	}
	if s.TaskDate != "" {
		d, err := shared.ParseDate("task_date", s.TaskDate)
		if err != nil {
			return course.Module{}, fmt.Errorf("module %s: %w", s.ID, err)
		}
		m.TaskDate = &d
	}
	return m, nil
}

func seedCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, user := userFlags("seed", stderr)
	if err := parseUser(fs, user, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("seed needs exactly one YAML file")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", fs.Arg(0), err)
	}

	modules := make([]course.Module, 0, len(file.Modules))
	for _, sm := range file.Modules {
		m, err := sm.toModule()
		if err != nil {
			return err
		}
		modules = append(modules, m)
	}

	a, err := open(ctx, stderr, true)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, m := range modules {
		if err := a.Seeder.Upsert(ctx, *user, m); err != nil {
			return fmt.Errorf("upsert %s: %w", m.ID, err)
		}
	}
	fmt.Fprintf(stdout, "seeded %d modules for %s\n", len(modules), *user)
	return nil
}

// ─── run ──────────────────────────────────────────────────────────────────────

func runCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, user := userFlags("run", stderr)
	if err := parseUser(fs, user, args); err != nil {
		return err
	}
	text := strings.Join(fs.Args(), " ")

	a, err := open(ctx, stderr, true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Interpreter.Run(ctx, command.RunCommand{UserID: *user, Text: text})
	if err != nil {
		return fmt.Errorf("%s: %s", shared.CodeOf(err), shared.MessageOf(err))
	}
	return printJSON(stdout, result)
}

// ─── day / month ──────────────────────────────────────────────────────────────

func dayCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, user := userFlags("day", stderr)
	if err := parseUser(fs, user, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("day needs a YYYY-MM-DD date")
	}

	a, err := open(ctx, stderr, true)
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := a.Calendar.GetDay(ctx, query.GetDayQuery{UserID: *user, Date: fs.Arg(0)})
	if err != nil {
		return fmt.Errorf("%s: %s", shared.CodeOf(err), shared.MessageOf(err))
	}
	return printJSON(stdout, view)
}

func monthCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, user := userFlags("month", stderr)
	if err := parseUser(fs, user, args); err != nil {
		return err
	}

	a, err := open(ctx, stderr, true)
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := a.Calendar.GetMonth(ctx, query.GetMonthQuery{UserID: *user, YearMonth: fs.Arg(0)})
	if err != nil {
		return fmt.Errorf("%s: %s", shared.CodeOf(err), shared.MessageOf(err))
	}
	return printJSON(stdout, view)
}
