package command

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/planner"
	"github.com/brainamp/planner-engine/internal/domain/shared"
	"github.com/brainamp/planner-engine/pkg/logger"
	"github.com/brainamp/planner-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLANNER COMMAND INTERPRETER
// Turns one line of free text into at most one planner action. Grammars are
// tried in table order and the first match wins, so precedence between
// overlapping wordings is decided by position alone.
// ══════════════════════════════════════════════════════════════════════════════

// MaxCommandLength bounds the accepted command text, in runes.
const MaxCommandLength = 600

// Result statuses.
const (
	StatusOK       = "ok"
	StatusNotFound = "not_found"
	StatusNoMatch  = "no_match"
)

// Grammar names, reported in CommandResult.Action.
const (
	ActionQuery    = "query_schedule"
	ActionMove     = "move_module"
	ActionAddTask  = "add_task"
	ActionMarkBusy = "mark_busy"
	ActionRemind   = "remind"
	ActionNone     = "none"
)

// FallbackMessage is returned when no grammar matches.
const FallbackMessage = "No planner action matched. Try: 'move <module> to YYYY-MM-DD HH:MM'."

// RunCommand carries one raw command.
type RunCommand struct {
	UserID string
	Text   string
}

// Validate validates the command.
func (c RunCommand) Validate() error {
	if err := requireUser("RunCommand", c.UserID); err != nil {
		return err
	}
	if utf8.RuneCountInString(c.Text) > MaxCommandLength {
		return shared.NewValidationError("command", "RunCommand", shared.CodeInvalidInput, "command",
			fmt.Sprintf("command must be at most %d characters", MaxCommandLength))
	}
	return nil
}

// CommandResult is the outcome of an interpreted command. A non-match is a
// normal result with Success false, never an error.
type CommandResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Action  string `json:"action"`
	Status  string `json:"status"`
	Item    any    `json:"item,omitempty"`
}

// MoveOutcome is the Item of a successful move.
type MoveOutcome struct {
	Module   *course.Module    `json:"module"`
	Reminder *planner.Reminder `json:"reminder,omitempty"`
}

// ModuleLookup resolves a free-text module reference.
type ModuleLookup interface {
	Resolve(ctx context.Context, userID, identifier string, needTaskDate bool) (*course.Ref, error)
}

// ─── Grammar table ────────────────────────────────────────────────────────────

type grammar struct {
	action  string
	pattern *regexp.Regexp
	handle  func(i *Interpreter, ctx context.Context, userID string, m []string) (*CommandResult, error)
}

const (
	datePart = `(\d{4}-\d{2}-\d{2})`
	timePart = `(\d{1,2}:\d{2})`
)

var grammars = []grammar{
	{
		action:  ActionQuery,
		pattern: regexp.MustCompile(`(?i)^(?:when\s+is|what\s+day\s+is|is)\s+(.+?)\s+scheduled(?:\s+for)?\??$`),
		handle:  (*Interpreter).querySchedule,
	},
	{
		action:  ActionMove,
		pattern: regexp.MustCompile(`(?i)^move\s+(.+?)\s+to\s+` + datePart + `(?:\s+` + timePart + `)?$`),
		handle:  (*Interpreter).moveModule,
	},
	{
		action:  ActionAddTask,
		pattern: regexp.MustCompile(`(?i)^add\s+task\s+(.+?)\s+on\s+` + datePart + `(?:\s+at\s+` + timePart + `)?$`),
		handle:  (*Interpreter).addTask,
	},
	{
		action:  ActionMarkBusy,
		pattern: regexp.MustCompile(`(?i)^mark\s+(.+?)\s+busy\s+on\s+` + datePart + `\s+from\s+` + timePart + `\s+to\s+` + timePart + `$`),
		handle:  (*Interpreter).markBusy,
	},
	{
		action:  ActionRemind,
		pattern: regexp.MustCompile(`(?i)^remind\s+me\s+to\s+(.+?)\s+on\s+` + datePart + `\s+at\s+` + timePart + `$`),
		handle:  (*Interpreter).remind,
	},
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERPRETER
// ══════════════════════════════════════════════════════════════════════════════

// Interpreter runs planner commands. It holds no per-call state.
type Interpreter struct {
	resolver ModuleLookup
	items    *PlannerItemsHandler
	modules  *UpdateModuleDateHandler
	log      *logger.Logger
}

// NewInterpreter creates a new Interpreter.
func NewInterpreter(
	resolver ModuleLookup,
	items *PlannerItemsHandler,
	modules *UpdateModuleDateHandler,
	log *logger.Logger,
) *Interpreter {
	return &Interpreter{
		resolver: resolver,
		items:    items,
		modules:  modules,
		log:      log.With(logger.Component("interpreter")),
	}
}

// Run interprets cmd.Text. Validation failures, unresolved moves and
// persistence failures are returned as errors; everything else is a result.
func (i *Interpreter) Run(ctx context.Context, cmd RunCommand) (*CommandResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(cmd.Text)

	for _, g := range grammars {
		m := g.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		i.log.Debug("planner command matched", logger.UserID(cmd.UserID), logger.Grammar(g.action))
		res, err := g.handle(i, ctx, cmd.UserID, m)
		if err != nil {
			return nil, shared.WithOp(err, "command", g.action)
		}
		res.Action = g.action
		return res, nil
	}

	return &CommandResult{
		Success: false,
		Message: FallbackMessage,
		Action:  ActionNone,
		Status:  StatusNoMatch,
	}, nil
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

func (i *Interpreter) querySchedule(ctx context.Context, userID string, m []string) (*CommandResult, error) {
	ident := cleanIdentifier(m[1])

	ref, err := i.resolver.Resolve(ctx, userID, ident, true)
	if err != nil {
		return nil, err
	}
	if ref == nil || ref.TaskDate == nil {
		return &CommandResult{
			Success: false,
			Message: fmt.Sprintf("I couldn't find a scheduled module matching '%s'.", ident),
			Status:  StatusNotFound,
		}, nil
	}

	title := ref.Title
	if title == "" {
		title = ident
	}
	return &CommandResult{
		Success: true,
		Message: fmt.Sprintf("'%s' is scheduled for %s.", title, prettyDate(*ref.TaskDate)),
		Status:  StatusOK,
		Item:    ref,
	}, nil
}

func (i *Interpreter) moveModule(ctx context.Context, userID string, m []string) (*CommandResult, error) {
	ident := cleanIdentifier(m[1])
	date, err := shared.ParseDate("date", m[2])
	if err != nil {
		return nil, err
	}
	at, err := shared.ParseOptionalClock("time", m[3])
	if err != nil {
		return nil, err
	}

	ref, err := i.resolver.Resolve(ctx, userID, ident, false)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, shared.NewNotFoundError("command", ActionMove, "no matching module found")
	}

	moved, err := i.modules.move(ctx, userID, ref.ID, date)
	if err != nil {
		return nil, err
	}

	out := &MoveOutcome{Module: moved}
	if at != nil {
		title := moved.Title
		if title == "" {
			title = "module"
		}
		rem, err := i.items.AddReminder(ctx, AddReminderCommand{
			UserID: userID,
			Input: planner.ReminderInput{
				Date:       date.String(),
				Time:       at.String(),
				Text:       "Work on " + title,
				TargetType: planner.TargetCourseModule,
				TargetID:   moved.ID,
			},
		})
		if err != nil {
			return nil, err
		}
		out.Reminder = rem
	}

	return &CommandResult{
		Success: true,
		Message: fmt.Sprintf("Moved '%s' to %s.", moved.Title, date),
		Status:  StatusOK,
		Item:    out,
	}, nil
}

func (i *Interpreter) addTask(ctx context.Context, userID string, m []string) (*CommandResult, error) {
	task, err := i.items.AddTask(ctx, AddTaskCommand{
		UserID: userID,
		Input:  planner.TaskInput{Date: m[2], Title: m[1], Time: m[3]},
	})
	if err != nil {
		return nil, err
	}
	return &CommandResult{
		Success: true,
		Message: fmt.Sprintf("Added task '%s' on %s.", task.Title, task.Date),
		Status:  StatusOK,
		Item:    task,
	}, nil
}

func (i *Interpreter) markBusy(ctx context.Context, userID string, m []string) (*CommandResult, error) {
	slot, err := i.items.AddBusySlot(ctx, AddBusySlotCommand{
		UserID: userID,
		Input:  planner.BusySlotInput{Date: m[2], StartTime: m[3], EndTime: m[4], Title: m[1]},
	})
	if err != nil {
		return nil, err
	}
	return &CommandResult{
		Success: true,
		Message: fmt.Sprintf("Marked '%s' busy on %s from %s to %s.", slot.Title, slot.Date, slot.StartTime, slot.EndTime),
		Status:  StatusOK,
		Item:    slot,
	}, nil
}

func (i *Interpreter) remind(ctx context.Context, userID string, m []string) (*CommandResult, error) {
	rem, err := i.items.AddReminder(ctx, AddReminderCommand{
		UserID: userID,
		Input:  planner.ReminderInput{Date: m[2], Time: m[3], Text: m[1]},
	})
	if err != nil {
		return nil, err
	}
	return &CommandResult{
		Success: true,
		Message: fmt.Sprintf("Reminder set for %s at %s.", rem.Date, rem.Time),
		Status:  StatusOK,
		Item:    rem,
	}, nil
}

func cleanIdentifier(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

func prettyDate(d shared.Date) string {
	t := d.Time()
	if t.IsZero() {
		return d.String()
	}
	return timeutil.FormatLongDate(t)
}
