// Package course models the externally-owned course module schedule and
// the contract for resolving free-text references to one module.
package course

import (
	"regexp"
	"strings"

	"github.com/brainamp/planner-engine/internal/domain/shared"
)

const (
	// MaxLookupRows bounds how many of a user's modules are considered for resolution.
	MaxLookupRows = 300

	// MaxCandidates bounds the candidate list sent to the semantic resolver.
	MaxCandidates = 160
)

// Module is one scheduled unit of a generated course. Only TaskDate is
// mutable from this subsystem.
type Module struct {
	ID              string       `json:"id"`
	CourseID        string       `json:"course_id"`
	TaskDate        *shared.Date `json:"task_date"`
	DayIndex        int          `json:"day_index"`
	Title           string       `json:"title"`
	LessonContent   string       `json:"lesson_content,omitempty"`
	PracticeContent string       `json:"practice_content,omitempty"`
	QuizContent     string       `json:"quiz_content,omitempty"`
}

// HasTaskDate reports whether the module is scheduled.
func (m *Module) HasTaskDate() bool {
	return m.TaskDate != nil && *m.TaskDate != ""
}

// Ref is a resolved module reference.
type Ref struct {
	ID       string       `json:"id"`
	CourseID string       `json:"course_id"`
	Title    string       `json:"title"`
	TaskDate *shared.Date `json:"task_date"`
	DayIndex int          `json:"day_index"`
}

// RefOf builds a Ref from a module row.
func RefOf(m *Module) *Ref {
	return &Ref{ID: m.ID, CourseID: m.CourseID, Title: m.Title, TaskDate: m.TaskDate, DayIndex: m.DayIndex}
}

// Candidate is what the semantic resolver sees of a module.
type Candidate struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	TaskDate *string `json:"task_date,omitempty"`
}

// Classification is the resolver's verdict: a candidate id or nil.
type Classification struct {
	ID *string `json:"id"`
}

// ═══════════════════════════════════════════════════════════════════════════
// Identifier normalization
// ═══════════════════════════════════════════════════════════════════════════

var (
	quotesPattern  = regexp.MustCompile(`^["']+|["']+$`)
	articlePattern = regexp.MustCompile(`(?i)^\s*the\s+`)
	prefixPattern  = regexp.MustCompile(`(?i)^\s*(course\s+module|module|course)\s+`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// NormalizeIdentifier strips surrounding quotes, a leading "the", a leading
// "course module"/"module"/"course" word and collapses whitespace.
func NormalizeIdentifier(raw string) string {
	text := quotesPattern.ReplaceAllString(strings.TrimSpace(raw), "")
	text = articlePattern.ReplaceAllString(text, "")
	text = prefixPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}

// BuildCandidates turns module rows into a resolver candidate list. With
// needTaskDate, unscheduled rows are skipped. The list is capped at MaxCandidates.
func BuildCandidates(modules []*Module, needTaskDate bool) []Candidate {
	out := make([]Candidate, 0, min(len(modules), MaxCandidates))
	for _, m := range modules {
		if len(out) == MaxCandidates {
			break
		}
		if needTaskDate && !m.HasTaskDate() {
			continue
		}
		c := Candidate{ID: m.ID, Title: m.Title}
		if m.HasTaskDate() {
			d := m.TaskDate.String()
			c.TaskDate = &d
		}
		out = append(out, c)
	}
	return out
}
