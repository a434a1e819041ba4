package planner

import (
	"github.com/brainamp/planner-engine/internal/domain/shared"
)

// MetadataKey is the key under which the document lives in the user's metadata bag.
const MetadataKey = "planner_state"

// Document is the whole planner state of one user. Each list is ordered
// newest first and holds at most MaxItemsPerList items.
type Document struct {
	BusySlots   []BusySlot   `json:"busy_slots"`
	CustomTasks []CustomTask `json:"custom_tasks"`
	Reminders   []Reminder   `json:"reminders"`
}

// NewDocument returns an empty document with non-nil lists.
func NewDocument() *Document {
	return &Document{
		BusySlots:   []BusySlot{},
		CustomTasks: []CustomTask{},
		Reminders:   []Reminder{},
	}
}

// ─── Mutations ─────────────────────────────────────────────────────────────

// PrependBusySlot inserts b at the head, evicting the oldest slot if full.
func (d *Document) PrependBusySlot(b BusySlot) {
	d.BusySlots = prepend(d.BusySlots, b)
}

// PrependTask inserts t at the head, evicting the oldest task if full.
func (d *Document) PrependTask(t CustomTask) {
	d.CustomTasks = prepend(d.CustomTasks, t)
}

// PrependReminder inserts r at the head, evicting the oldest reminder if full.
func (d *Document) PrependReminder(r Reminder) {
	d.Reminders = prepend(d.Reminders, r)
}

// RemoveBusySlot drops the slot with the given id. It reports false, leaving
// the list untouched, when no slot matches.
func (d *Document) RemoveBusySlot(id string) bool {
	var ok bool
	d.BusySlots, ok = remove(d.BusySlots, id, func(b BusySlot) string { return b.ID })
	return ok
}

// RemoveTask drops the task with the given id.
func (d *Document) RemoveTask(id string) bool {
	var ok bool
	d.CustomTasks, ok = remove(d.CustomTasks, id, func(t CustomTask) string { return t.ID })
	return ok
}

// RemoveReminder drops the reminder with the given id.
func (d *Document) RemoveReminder(id string) bool {
	var ok bool
	d.Reminders, ok = remove(d.Reminders, id, func(r Reminder) string { return r.ID })
	return ok
}

func prepend[T any](list []T, item T) []T {
	keep := len(list)
	if keep > MaxItemsPerList-1 {
		keep = MaxItemsPerList - 1
	}
	out := make([]T, 0, keep+1)
	out = append(out, item)
	return append(out, list[:keep]...)
}

func remove[T any](list []T, id string, idOf func(T) string) ([]T, bool) {
	out := make([]T, 0, len(list))
	for _, item := range list {
		if idOf(item) != id {
			out = append(out, item)
		}
	}
	if len(out) == len(list) {
		return list, false
	}
	return out, true
}

// ─── Queries ───────────────────────────────────────────────────────────────

// BusySlotsIn returns slots with from <= date < to, in stored order.
func (d *Document) BusySlotsIn(from, to shared.Date) []BusySlot {
	return filter(d.BusySlots, func(b BusySlot) bool { return b.Date != "" && b.Date.InRange(from, to) })
}

// TasksIn returns tasks with from <= date < to, in stored order.
func (d *Document) TasksIn(from, to shared.Date) []CustomTask {
	return filter(d.CustomTasks, func(t CustomTask) bool { return t.Date != "" && t.Date.InRange(from, to) })
}

// RemindersIn returns reminders with from <= date < to, in stored order.
func (d *Document) RemindersIn(from, to shared.Date) []Reminder {
	return filter(d.Reminders, func(r Reminder) bool { return r.Date != "" && r.Date.InRange(from, to) })
}

func filter[T any](list []T, keep func(T) bool) []T {
	var out []T
	for _, item := range list {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// Metadata coercion
// ═══════════════════════════════════════════════════════════════════════════

// DocumentFromMetadata extracts the planner document from a metadata bag.
// It never fails: a missing or malformed document, a non-list field, or a
// non-object element all coerce to empty values. Non-string scalars read as
// empty strings; blank optional fields read as absent.
func DocumentFromMetadata(meta map[string]any) *Document {
	doc := NewDocument()

	raw, ok := meta[MetadataKey].(map[string]any)
	if !ok {
		return doc
	}

	for _, obj := range objects(raw["busy_slots"]) {
		doc.BusySlots = append(doc.BusySlots, BusySlot{
			ID:        str(obj, "id"),
			Date:      shared.Date(str(obj, "date")),
			StartTime: clock(str(obj, "start_time")),
			EndTime:   clock(str(obj, "end_time")),
			Title:     str(obj, "title"),
		})
	}

	for _, obj := range objects(raw["custom_tasks"]) {
		var at *shared.Clock
		if s := optStr(obj, "time"); s != nil {
			c := clock(*s)
			at = &c
		}
		doc.CustomTasks = append(doc.CustomTasks, CustomTask{
			ID:    str(obj, "id"),
			Date:  shared.Date(str(obj, "date")),
			Title: str(obj, "title"),
			Time:  at,
			Notes: optStr(obj, "notes"),
		})
	}

	for _, obj := range objects(raw["reminders"]) {
		doc.Reminders = append(doc.Reminders, Reminder{
			ID:         str(obj, "id"),
			Date:       shared.Date(str(obj, "date")),
			Time:       clock(str(obj, "time")),
			Text:       str(obj, "text"),
			TargetType: optStr(obj, "target_type"),
			TargetID:   optStr(obj, "target_id"),
		})
	}

	return doc
}

// MetadataValue renders the document as plain JSON-compatible values, the
// shape stored under MetadataKey.
func (d *Document) MetadataValue() map[string]any {
	busy := make([]any, 0, len(d.BusySlots))
	for _, b := range d.BusySlots {
		busy = append(busy, map[string]any{
			"id":         b.ID,
			"date":       string(b.Date),
			"start_time": string(b.StartTime),
			"end_time":   string(b.EndTime),
			"title":      b.Title,
		})
	}

	tasks := make([]any, 0, len(d.CustomTasks))
	for _, t := range d.CustomTasks {
		var at any
		if t.Time != nil {
			at = string(*t.Time)
		}
		tasks = append(tasks, map[string]any{
			"id":    t.ID,
			"date":  string(t.Date),
			"title": t.Title,
			"time":  at,
			"notes": ptrValue(t.Notes),
		})
	}

	reminders := make([]any, 0, len(d.Reminders))
	for _, r := range d.Reminders {
		reminders = append(reminders, map[string]any{
			"id":          r.ID,
			"date":        string(r.Date),
			"time":        string(r.Time),
			"text":        r.Text,
			"target_type": ptrValue(r.TargetType),
			"target_id":   ptrValue(r.TargetID),
		})
	}

	return map[string]any{
		"busy_slots":   busy,
		"custom_tasks": tasks,
		"reminders":    reminders,
	}
}

func objects(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, el := range list {
		if obj, ok := el.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func str(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// clock canonicalizes stored times such as "9:00" to HH:MM. Values that do
// not parse are kept as stored.
func clock(s string) shared.Clock {
	if c, err := shared.ParseClock("time", s); err == nil {
		return c
	}
	return shared.Clock(s)
}

func optStr(obj map[string]any, key string) *string {
	s, ok := obj[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func ptrValue(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
