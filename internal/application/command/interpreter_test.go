package command

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainamp/planner-engine/internal/application/query"
	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/planner"
	"github.com/brainamp/planner-engine/internal/domain/shared"
	"github.com/brainamp/planner-engine/internal/infrastructure/persistence/memory"
	"github.com/brainamp/planner-engine/pkg/logger"
)

type interpreterFixture struct {
	modules     *memory.ModuleStore
	docs        *planner.DocumentStore
	interpreter *Interpreter
	classified  []string
}

// newInterpreterFixture wires the interpreter to in-memory stores and a
// semantic resolver that matches a candidate whose title contains the phrase.
func newInterpreterFixture(t *testing.T) *interpreterFixture {
	t.Helper()
	f := &interpreterFixture{
		modules: memory.NewModuleStore(),
		docs:    planner.NewDocumentStore(memory.NewUserDirectory(), nil),
	}

	semantic := course.SemanticResolverFunc(func(_ context.Context, phrase string, candidates []course.Candidate) (*course.Classification, error) {
		f.classified = append(f.classified, phrase)
		needle := strings.ToLower(course.NormalizeIdentifier(phrase))
		for _, c := range candidates {
			if strings.Contains(strings.ToLower(c.Title), needle) {
				id := c.ID
				return &course.Classification{ID: &id}, nil
			}
		}
		return &course.Classification{}, nil
	})

	seq := 0
	items := NewPlannerItemsHandler(f.docs, logger.Nop()).WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	})
	resolver := query.NewModuleResolver(f.modules, semantic, time.Second, logger.Nop())
	f.interpreter = NewInterpreter(resolver, items, NewUpdateModuleDateHandler(f.modules, logger.Nop()), logger.Nop())
	return f
}

func (f *interpreterFixture) run(text string) (*CommandResult, error) {
	return f.interpreter.Run(context.Background(), RunCommand{UserID: "u1", Text: text})
}

func (f *interpreterFixture) doc(t *testing.T) *planner.Document {
	t.Helper()
	doc, err := f.docs.Get(context.Background(), "u1")
	require.NoError(t, err)
	return doc
}

func dateOf(s string) *shared.Date {
	d := shared.Date(s)
	return &d
}

func TestInterpreter_Remind(t *testing.T) {
	f := newInterpreterFixture(t)

	res, err := f.run("remind me to revise on 2026-02-20 at 09:30")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ActionRemind, res.Action)
	assert.Equal(t, "Reminder set for 2026-02-20 at 09:30.", res.Message)

	doc := f.doc(t)
	require.Len(t, doc.Reminders, 1)
	rem := doc.Reminders[0]
	assert.Equal(t, "revise", rem.Text)
	assert.Equal(t, shared.Date("2026-02-20"), rem.Date)
	assert.Equal(t, shared.Clock("09:30"), rem.Time)
	assert.Nil(t, rem.TargetType)
	assert.Nil(t, rem.TargetID)
}

func TestInterpreter_AddTask(t *testing.T) {
	f := newInterpreterFixture(t)

	res, err := f.run("Add Task read chapter 3 on 2026-02-18 at 8:00")
	require.NoError(t, err)
	assert.Equal(t, ActionAddTask, res.Action)
	assert.Equal(t, "Added task 'read chapter 3' on 2026-02-18.", res.Message)

	doc := f.doc(t)
	require.Len(t, doc.CustomTasks, 1)
	require.NotNil(t, doc.CustomTasks[0].Time)
	assert.Equal(t, shared.Clock("08:00"), *doc.CustomTasks[0].Time)

	res, err = f.run("add task stretch on 2026-02-18")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, f.doc(t).CustomTasks[0].Time)
}

func TestInterpreter_MarkBusy(t *testing.T) {
	f := newInterpreterFixture(t)

	res, err := f.run("mark gym busy on 2026-02-18 from 9:00 to 10:30")
	require.NoError(t, err)
	assert.Equal(t, "Marked 'gym' busy on 2026-02-18 from 09:00 to 10:30.", res.Message)

	_, err = f.run("mark gym busy on 2026-02-18 from 11:00 to 10:30")
	require.Error(t, err)
	assert.Equal(t, shared.CodeRangeInvalid, shared.CodeOf(err))
	assert.Len(t, f.doc(t).BusySlots, 1)
}

func TestInterpreter_ValidationErrorsWriteNothing(t *testing.T) {
	f := newInterpreterFixture(t)

	tests := []struct {
		text string
		code string
	}{
		{"add task x on 2026-02-30", shared.CodeInvalidDate},
		{"add task x on 2026-02-18 at 25:00", shared.CodeInvalidTime},
		{"remind me to x on 2026-02-18 at 9:75", shared.CodeInvalidTime},
		{"move vectors to 2026-13-01", shared.CodeInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := f.run(tt.text)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
			assert.Equal(t, tt.code, shared.CodeOf(err))
		})
	}

	doc := f.doc(t)
	assert.Empty(t, doc.CustomTasks)
	assert.Empty(t, doc.Reminders)
}

func TestInterpreter_MoveNotFoundMutatesNothing(t *testing.T) {
	f := newInterpreterFixture(t)
	f.modules.Seed("u1", course.Module{ID: "m1", Title: "Organic Chemistry", TaskDate: dateOf("2026-02-18")})

	_, err := f.run(`move "Linear Algebra" to 2026-03-01`)
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))

	mods, _ := f.modules.ListForUser(context.Background(), "u1", 10)
	require.Len(t, mods, 1)
	assert.Equal(t, shared.Date("2026-02-18"), *mods[0].TaskDate)
	assert.Empty(t, f.doc(t).Reminders)
}

func TestInterpreter_MoveWithReminder(t *testing.T) {
	f := newInterpreterFixture(t)
	f.modules.Seed("u1", course.Module{ID: "m1", Title: "Linear Algebra", TaskDate: dateOf("2026-02-18")})

	res, err := f.run("move the module linear algebra to 2026-03-01 14:00")
	require.NoError(t, err)
	assert.Equal(t, "Moved 'Linear Algebra' to 2026-03-01.", res.Message)

	mods, _ := f.modules.ListForUser(context.Background(), "u1", 10)
	assert.Equal(t, shared.Date("2026-03-01"), *mods[0].TaskDate)

	doc := f.doc(t)
	require.Len(t, doc.Reminders, 1)
	rem := doc.Reminders[0]
	assert.Equal(t, "Work on Linear Algebra", rem.Text)
	assert.Equal(t, shared.Clock("14:00"), rem.Time)
	assert.Equal(t, planner.TargetCourseModule, *rem.TargetType)
	assert.Equal(t, "m1", *rem.TargetID)

	outcome, ok := res.Item.(*MoveOutcome)
	require.True(t, ok)
	assert.Equal(t, "m1", outcome.Module.ID)
	assert.NotNil(t, outcome.Reminder)
}

func TestInterpreter_MoveWithoutTimeAddsNoReminder(t *testing.T) {
	f := newInterpreterFixture(t)
	f.modules.Seed("u1", course.Module{ID: "m1", Title: "Vectors"})

	res, err := f.run("move vectors to 2026-03-01")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, f.doc(t).Reminders)
}

func TestInterpreter_MoveWithInvalidTimeMovesNothing(t *testing.T) {
	f := newInterpreterFixture(t)
	f.modules.Seed("u1", course.Module{ID: "m1", Title: "Vectors", TaskDate: dateOf("2026-02-18")})

	for _, text := range []string{"move vectors to 2026-03-01 24:00", "move vectors to 2026-03-01 9:60"} {
		_, err := f.run(text)
		require.Error(t, err, text)
		assert.Equal(t, shared.CodeInvalidTime, shared.CodeOf(err), text)
	}

	mods, _ := f.modules.ListForUser(context.Background(), "u1", 10)
	require.Len(t, mods, 1)
	assert.Equal(t, shared.Date("2026-02-18"), *mods[0].TaskDate)
	assert.Empty(t, f.doc(t).Reminders)
	assert.Empty(t, f.classified)
}

func TestInterpreter_Query(t *testing.T) {
	f := newInterpreterFixture(t)
	f.modules.Seed("u1",
		course.Module{ID: "m1", Title: "Vectors", TaskDate: dateOf("2026-02-18")},
		course.Module{ID: "m2", Title: "Matrices"},
	)

	res, err := f.run("When is vectors scheduled?")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ActionQuery, res.Action)
	assert.Equal(t, "'Vectors' is scheduled for Wednesday, February 18, 2026.", res.Message)

	res, err = f.run("is matrices scheduled")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, StatusNotFound, res.Status)
	assert.Equal(t, "I couldn't find a scheduled module matching 'matrices'.", res.Message)

	assert.Empty(t, f.doc(t).Reminders)
}

func TestInterpreter_Precedence(t *testing.T) {
	order := make([]string, 0, len(grammars))
	for _, g := range grammars {
		order = append(order, g.action)
	}
	assert.Equal(t, []string{ActionQuery, ActionMove, ActionAddTask, ActionMarkBusy, ActionRemind}, order)

	f := newInterpreterFixture(t)
	f.modules.Seed("u1", course.Module{ID: "m1", Title: "when is vectors scheduled", TaskDate: dateOf("2026-02-18")})

	// Reads as a move whose module title happens to be phrased like a query.
	res, err := f.run("move when is vectors scheduled to 2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, ActionMove, res.Action)

	// Reads as a query whose identifier happens to contain a move phrase.
	res, err = f.run("is move vectors to 2026-03-01 scheduled")
	require.NoError(t, err)
	assert.Equal(t, ActionQuery, res.Action)
}

func TestInterpreter_Fallback(t *testing.T) {
	f := newInterpreterFixture(t)

	for _, text := range []string{"", "hello there", "remind me to revise tomorrow", "move vectors to next week"} {
		res, err := f.run(text)
		require.NoError(t, err, text)
		assert.False(t, res.Success)
		assert.Equal(t, StatusNoMatch, res.Status)
		assert.Equal(t, FallbackMessage, res.Message)
	}
	assert.Empty(t, f.classified)
}

func TestInterpreter_RejectsOversizedCommand(t *testing.T) {
	f := newInterpreterFixture(t)

	_, err := f.run("add task " + strings.Repeat("x", MaxCommandLength) + " on 2026-02-18")
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "command", shared.FieldOf(err))
}
