// Package planner contains the per-user planner document: busy slots,
// custom tasks and reminders, together with the rules for building,
// capping and persisting them.
package planner

import (
	"strings"

	"github.com/brainamp/planner-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// Limits
// ═══════════════════════════════════════════════════════════════════════════

const (
	// MaxItemsPerList caps each list. Inserting into a full list evicts the oldest item.
	MaxItemsPerList = 250

	MaxBusyTitleLen  = 120
	MaxTaskTitleLen  = 180
	MaxTaskNotesLen  = 1000
	MaxReminderLen   = 240
	MaxTargetTypeLen = 40
	MaxTargetIDLen   = 120

	DefaultBusyTitle     = "Busy"
	DefaultTaskTitle     = "Task"
	DefaultReminderTitle = "Reminder"
)

// ItemType tags a calendar entry.
type ItemType string

const (
	ItemTypeCourseModule ItemType = "course_module"
	ItemTypeBusySlot     ItemType = "busy_slot"
	ItemTypeCustomTask   ItemType = "custom_task"
	ItemTypeReminder     ItemType = "reminder"
)

// TargetCourseModule is the reminder target type used when a reminder points at a module.
const TargetCourseModule = "course_module"

// ═══════════════════════════════════════════════════════════════════════════
// Items
// ═══════════════════════════════════════════════════════════════════════════

// BusySlot blocks out a time range on a date.
type BusySlot struct {
	ID        string       `json:"id"`
	Date      shared.Date  `json:"date"`
	StartTime shared.Clock `json:"start_time"`
	EndTime   shared.Clock `json:"end_time"`
	Title     string       `json:"title"`
}

// CustomTask is a user-authored to-do on a date.
type CustomTask struct {
	ID    string        `json:"id"`
	Date  shared.Date   `json:"date"`
	Title string        `json:"title"`
	Time  *shared.Clock `json:"time"`
	Notes *string       `json:"notes"`
}

// Reminder fires at a date and time, optionally pointing at another entity.
type Reminder struct {
	ID         string       `json:"id"`
	Date       shared.Date  `json:"date"`
	Time       shared.Clock `json:"time"`
	Text       string       `json:"text"`
	TargetType *string      `json:"target_type"`
	TargetID   *string      `json:"target_id"`
}

// ─── Inputs ────────────────────────────────────────────────────────────────

// BusySlotInput is the unvalidated form of a busy slot.
type BusySlotInput struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Title     string `json:"title"`
}

// TaskInput is the unvalidated form of a custom task.
type TaskInput struct {
	Date  string `json:"date"`
	Title string `json:"title"`
	Time  string `json:"time"`
	Notes string `json:"notes"`
}

// ReminderInput is the unvalidated form of a reminder.
type ReminderInput struct {
	Date       string `json:"date"`
	Time       string `json:"time"`
	Text       string `json:"text"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
}

// NewBusySlot validates in and builds a BusySlot with the given id.
func NewBusySlot(id string, in BusySlotInput) (BusySlot, error) {
	date, err := shared.ParseDate("date", in.Date)
	if err != nil {
		return BusySlot{}, err
	}
	start, err := shared.ParseClock("start_time", in.StartTime)
	if err != nil {
		return BusySlot{}, err
	}
	end, err := shared.ParseClock("end_time", in.EndTime)
	if err != nil {
		return BusySlot{}, err
	}
	if err := shared.ValidateClockRange(start, end); err != nil {
		return BusySlot{}, err
	}

	title := shared.Truncate(in.Title, MaxBusyTitleLen)
	if title == "" {
		title = DefaultBusyTitle
	}

	return BusySlot{ID: id, Date: date, StartTime: start, EndTime: end, Title: title}, nil
}

// NewCustomTask validates in and builds a CustomTask with the given id.
func NewCustomTask(id string, in TaskInput) (CustomTask, error) {
	date, err := shared.ParseDate("date", in.Date)
	if err != nil {
		return CustomTask{}, err
	}
	at, err := shared.ParseOptionalClock("time", in.Time)
	if err != nil {
		return CustomTask{}, err
	}
	title := shared.Truncate(in.Title, MaxTaskTitleLen)
	if title == "" {
		return CustomTask{}, shared.NewValidationError("planner", "NewCustomTask", shared.CodeInvalidInput, "title", "title is required")
	}

	return CustomTask{
		ID:    id,
		Date:  date,
		Title: title,
		Time:  at,
		Notes: shared.OptionalText(in.Notes, MaxTaskNotesLen),
	}, nil
}

// NewReminder validates in and builds a Reminder with the given id.
func NewReminder(id string, in ReminderInput) (Reminder, error) {
	date, err := shared.ParseDate("date", in.Date)
	if err != nil {
		return Reminder{}, err
	}
	at, err := shared.ParseClock("time", in.Time)
	if err != nil {
		return Reminder{}, err
	}
	text := shared.Truncate(in.Text, MaxReminderLen)
	if text == "" {
		return Reminder{}, shared.NewValidationError("planner", "NewReminder", shared.CodeInvalidInput, "text", "text is required")
	}

	return Reminder{
		ID:         id,
		Date:       date,
		Time:       at,
		Text:       text,
		TargetType: shared.OptionalText(in.TargetType, MaxTargetTypeLen),
		TargetID:   shared.OptionalText(in.TargetID, MaxTargetIDLen),
	}, nil
}

// DisplayTitle returns the busy slot title, defaulting when blank.
func (b BusySlot) DisplayTitle() string {
	return orDefault(b.Title, DefaultBusyTitle)
}

// DisplayTitle returns the task title, defaulting when blank.
func (t CustomTask) DisplayTitle() string {
	return orDefault(t.Title, DefaultTaskTitle)
}

// DisplayTitle returns the reminder text, defaulting when blank.
func (r Reminder) DisplayTitle() string {
	return orDefault(r.Text, DefaultReminderTitle)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
