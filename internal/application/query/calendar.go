package query

import (
	"context"
	"sort"
	"strings"

	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/planner"
	"github.com/brainamp/planner-engine/internal/domain/shared"
	"github.com/brainamp/planner-engine/pkg/logger"
	"github.com/brainamp/planner-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR QUERIES
// Merge course module rows and the planner document into month and day
// views. Both views are computed on demand; nothing is cached.
// ══════════════════════════════════════════════════════════════════════════════

// CalendarItem is one tagged entry of a calendar view. Fields irrelevant
// to the item type are omitted.
type CalendarItem struct {
	ID       string           `json:"id"`
	ItemType planner.ItemType `json:"item_type"`
	Title    string           `json:"title"`
	Date     string           `json:"date"`

	// course_module
	CourseID        string `json:"course_id,omitempty"`
	DayIndex        *int   `json:"day_index,omitempty"`
	LessonContent   string `json:"lesson_content,omitempty"`
	PracticeContent string `json:"practice_content,omitempty"`
	QuizContent     string `json:"quiz_content,omitempty"`

	// busy_slot
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`

	// custom_task, reminder
	Time       *string `json:"time,omitempty"`
	Notes      *string `json:"notes,omitempty"`
	TargetType *string `json:"target_type,omitempty"`
	TargetID   *string `json:"target_id,omitempty"`
}

// MonthView groups a month's items by date.
type MonthView struct {
	Month string                    `json:"month"`
	Days  map[string][]CalendarItem `json:"days"`
}

// DayView lists one day's items in display order.
type DayView struct {
	Date  string         `json:"date"`
	Items []CalendarItem `json:"items"`
}

// GetMonthQuery asks for one month. An empty YearMonth means the current month.
type GetMonthQuery struct {
	UserID    string
	YearMonth string
}

// GetDayQuery asks for one day.
type GetDayQuery struct {
	UserID string
	Date   string
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CalendarHandler serves month and day views.
type CalendarHandler struct {
	modules   course.Store
	documents *planner.DocumentStore
	log       *logger.Logger
}

// NewCalendarHandler creates a new CalendarHandler.
func NewCalendarHandler(modules course.Store, documents *planner.DocumentStore, log *logger.Logger) *CalendarHandler {
	return &CalendarHandler{
		modules:   modules,
		documents: documents,
		log:       log.With(logger.Component("calendar")),
	}
}

// GetMonth returns every item dated inside the month, grouped by date.
// Within a date, modules come first ordered by day_index, followed by busy
// slots, tasks and reminders in stored order.
func (h *CalendarHandler) GetMonth(ctx context.Context, q GetMonthQuery) (*MonthView, error) {
	month := shared.YearMonthOf(timeutil.Now())
	if strings.TrimSpace(q.YearMonth) != "" {
		parsed, err := shared.ParseYearMonth("month", q.YearMonth)
		if err != nil {
			return nil, err
		}
		month = parsed
	}
	from, to := month.Bounds()

	rows, err := h.modules.ListInRange(ctx, q.UserID, from, to)
	if err != nil {
		h.log.Error("failed to load modules for month", logger.UserID(q.UserID), logger.Err(err))
		return nil, err
	}
	doc, err := h.documents.Get(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	view := &MonthView{Month: month.String(), Days: make(map[string][]CalendarItem)}
	add := func(item CalendarItem) {
		view.Days[item.Date] = append(view.Days[item.Date], item)
	}

	for _, m := range rows {
		if m.HasTaskDate() {
			add(moduleItem(m, false))
		}
	}
	appendPlannerItems(doc, from, to, add)

	return view, nil
}

// GetDay returns one day's items sorted for display: modules first by
// day_index, then everything else by time, ties keeping source order.
func (h *CalendarHandler) GetDay(ctx context.Context, q GetDayQuery) (*DayView, error) {
	day, err := shared.ParseDate("date", q.Date)
	if err != nil {
		return nil, err
	}
	next := shared.DateOf(day.Time().AddDate(0, 0, 1))

	rows, err := h.modules.ListOnDate(ctx, q.UserID, day)
	if err != nil {
		h.log.Error("failed to load modules for day", logger.UserID(q.UserID), logger.Err(err))
		return nil, err
	}
	doc, err := h.documents.Get(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	items := make([]CalendarItem, 0, len(rows))
	for _, m := range rows {
		items = append(items, moduleItem(m, true))
	}
	appendPlannerItems(doc, day, next, func(item CalendarItem) {
		items = append(items, item)
	})

	sort.SliceStable(items, func(i, j int) bool {
		return dayKeyLess(dayKey(items[i]), dayKey(items[j]))
	})

	return &DayView{Date: day.String(), Items: items}, nil
}

// ─── Merging ──────────────────────────────────────────────────────────────────

func appendPlannerItems(doc *planner.Document, from, to shared.Date, add func(CalendarItem)) {
	for _, b := range doc.BusySlotsIn(from, to) {
		add(CalendarItem{
			ID:        b.ID,
			ItemType:  planner.ItemTypeBusySlot,
			Title:     b.DisplayTitle(),
			Date:      b.Date.String(),
			StartTime: strPtr(b.StartTime.String()),
			EndTime:   strPtr(b.EndTime.String()),
		})
	}
	for _, t := range doc.TasksIn(from, to) {
		item := CalendarItem{
			ID:       t.ID,
			ItemType: planner.ItemTypeCustomTask,
			Title:    t.DisplayTitle(),
			Date:     t.Date.String(),
			Notes:    t.Notes,
		}
		if t.Time != nil {
			item.Time = strPtr(t.Time.String())
		}
		add(item)
	}
	for _, r := range doc.RemindersIn(from, to) {
		add(CalendarItem{
			ID:         r.ID,
			ItemType:   planner.ItemTypeReminder,
			Title:      r.DisplayTitle(),
			Date:       r.Date.String(),
			Time:       strPtr(r.Time.String()),
			TargetType: r.TargetType,
			TargetID:   r.TargetID,
		})
	}
}

func moduleItem(m *course.Module, withContent bool) CalendarItem {
	idx := m.DayIndex
	item := CalendarItem{
		ID:       m.ID,
		ItemType: planner.ItemTypeCourseModule,
		Title:    m.Title,
		CourseID: m.CourseID,
		DayIndex: &idx,
	}
	if m.TaskDate != nil {
		item.Date = m.TaskDate.String()
	}
	if withContent {
		item.LessonContent = m.LessonContent
		item.PracticeContent = m.PracticeContent
		item.QuizContent = m.QuizContent
	}
	return item
}

// ─── Day ordering ─────────────────────────────────────────────────────────────

const (
	untimedKey   = "99:99"
	plannerIndex = 999
)

type sortKey struct {
	clock string
	index int
}

// dayKey maps modules to ("", day_index) and everything else to
// (time or start_time or "99:99", 999).
func dayKey(item CalendarItem) sortKey {
	if item.ItemType == planner.ItemTypeCourseModule {
		idx := 0
		if item.DayIndex != nil {
			idx = *item.DayIndex
		}
		return sortKey{clock: "", index: idx}
	}

	clock := untimedKey
	switch {
	case item.Time != nil && *item.Time != "":
		clock = *item.Time
	case item.StartTime != nil && *item.StartTime != "":
		clock = *item.StartTime
	}
	return sortKey{clock: clock, index: plannerIndex}
}

func dayKeyLess(a, b sortKey) bool {
	if a.clock != b.clock {
		return a.clock < b.clock
	}
	return a.index < b.index
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
