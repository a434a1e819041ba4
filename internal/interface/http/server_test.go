package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainamp/planner-engine/internal/application/command"
	"github.com/brainamp/planner-engine/internal/application/query"
	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/planner"
	"github.com/brainamp/planner-engine/internal/domain/shared"
	"github.com/brainamp/planner-engine/internal/infrastructure/persistence/memory"
	"github.com/brainamp/planner-engine/internal/interface/http/handlers"
	"github.com/brainamp/planner-engine/pkg/logger"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func newTestServer(t *testing.T, opts ...func(*Dependencies)) (http.Handler, *memory.ModuleStore) {
	t.Helper()
	log := logger.Nop()
	modules := memory.NewModuleStore()
	docs := planner.NewDocumentStore(memory.NewUserDirectory(), nil)

	items := command.NewPlannerItemsHandler(docs, log)
	moves := command.NewUpdateModuleDateHandler(modules, log)
	resolver := query.NewModuleResolver(modules, course.SemanticResolverFunc(
		func(_ context.Context, phrase string, candidates []course.Candidate) (*course.Classification, error) {
			for _, c := range candidates {
				if strings.EqualFold(c.Title, course.NormalizeIdentifier(phrase)) {
					id := c.ID
					return &course.Classification{ID: &id}, nil
				}
			}
			return &course.Classification{}, nil
		}), 0, log)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	deps := Dependencies{
		PlannerItems:     items,
		Interpreter:      command.NewInterpreter(resolver, items, moves, log),
		UpdateModuleDate: moves,
		Calendar:         query.NewCalendarHandler(modules, docs, log),
		ListModules:      query.NewListModulesHandler(modules),
		Logger:           log,
		Version:          "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return NewServer(cfg, deps).Handler(), modules
}

func do(t *testing.T, h http.Handler, method, path, user, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(handlers.UserIDHeader, user)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestServer_RequiresUser(t *testing.T) {
	h, _ := newTestServer(t)

	rec, env := do(t, h, http.MethodGet, "/api/course-modules", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "unauthorized", env.Error.Code)
}

func TestServer_BusySlotLifecycle(t *testing.T) {
	h, _ := newTestServer(t)

	rec, env := do(t, h, http.MethodPost, "/api/planner/busy", "u1",
		`{"date":"2026-03-02","start_time":"9:00","end_time":"10:30","title":"Gym"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var slot planner.BusySlot
	require.NoError(t, json.Unmarshal(env.Data, &slot))
	assert.Equal(t, shared.Clock("09:00"), slot.StartTime)
	require.NotEmpty(t, slot.ID)

	rec, env = do(t, h, http.MethodGet, "/api/calendar/day/2026-03-02", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var day query.DayView
	require.NoError(t, json.Unmarshal(env.Data, &day))
	require.Len(t, day.Items, 1)
	assert.Equal(t, planner.ItemTypeBusySlot, day.Items[0].ItemType)

	rec, _ = do(t, h, http.MethodDelete, "/api/planner/busy/"+slot.ID, "u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, h, http.MethodDelete, "/api/planner/busy/"+slot.ID, "u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, shared.CodeNotFound, env.Error.Code)
}

func TestServer_ValidationErrors(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
		code string
	}{
		{"bad time", "/api/planner/busy", `{"date":"2026-03-02","start_time":"25:00","end_time":"26:00"}`, shared.CodeInvalidTime},
		{"inverted range", "/api/planner/busy", `{"date":"2026-03-02","start_time":"11:00","end_time":"10:00"}`, shared.CodeRangeInvalid},
		{"bad date", "/api/planner/task", `{"date":"2026-02-30","title":"x"}`, shared.CodeInvalidDate},
		{"unknown field", "/api/planner/reminder", `{"date":"2026-03-02","time":"08:00","colour":"red"}`, shared.CodeInvalidInput},
		{"malformed json", "/api/planner/task", `{"date":`, shared.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, h, http.MethodPost, tt.path, "u1", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestServer_MonthRejectsMalformedMonth(t *testing.T) {
	h, _ := newTestServer(t)

	rec, env := do(t, h, http.MethodGet, "/api/calendar?month=2026-13", "u1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, shared.CodeInvalidDate, env.Error.Code)
}

func TestServer_CommandMovesModule(t *testing.T) {
	h, modules := newTestServer(t)
	d := shared.Date("2026-02-20")
	modules.Seed("u1", course.Module{ID: "m1", CourseID: "c1", Title: "Linear Algebra", TaskDate: &d, DayIndex: 1})

	rec, env := do(t, h, http.MethodPost, "/api/planner/command", "u1",
		`{"command":"move the module linear algebra to 2026-03-01 14:00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result command.CommandResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, command.ActionMove, result.Action)

	rec, env = do(t, h, http.MethodGet, "/api/calendar?month=2026-03", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var month query.MonthView
	require.NoError(t, json.Unmarshal(env.Data, &month))
	types := map[planner.ItemType]int{}
	for _, it := range month.Days["2026-03-01"] {
		types[it.ItemType]++
	}
	assert.Equal(t, 1, types[planner.ItemTypeCourseModule])
	assert.Equal(t, 1, types[planner.ItemTypeReminder])
}

func TestServer_UnmatchedCommandIsNotAnError(t *testing.T) {
	h, _ := newTestServer(t)

	rec, env := do(t, h, http.MethodPost, "/api/planner/command", "u1", `{"command":"sing a song"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result command.CommandResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.False(t, result.Success)
	assert.Equal(t, command.ActionNone, result.Action)
	assert.Equal(t, command.FallbackMessage, result.Message)
}

func TestServer_CommandGate(t *testing.T) {
	h, _ := newTestServer(t, func(d *Dependencies) {
		d.CommandAllowed = func(userID string) bool { return userID == "beta" }
	})

	rec, env := do(t, h, http.MethodPost, "/api/planner/command", "u1", `{"command":"sing a song"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "feature_disabled", env.Error.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/planner/command", "beta", `{"command":"sing a song"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_PatchModuleDate(t *testing.T) {
	h, modules := newTestServer(t)
	modules.Seed("u1", course.Module{ID: "m1", CourseID: "c1", Title: "Vectors", DayIndex: 1})

	rec, env := do(t, h, http.MethodPatch, "/api/course-modules/m1", "u1", `{"task_date":"2026-04-01"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var m course.Module
	require.NoError(t, json.Unmarshal(env.Data, &m))
	require.NotNil(t, m.TaskDate)
	assert.Equal(t, shared.Date("2026-04-01"), *m.TaskDate)

	rec, _ = do(t, h, http.MethodPatch, "/api/course-modules/m1", "u2", `{"task_date":"2026-04-01"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_HealthReflectsChecks(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("storage", func(context.Context) error { return nil })
	checker.AddAdvisoryCheck("resolver", func(context.Context) error { return errors.New("circuit open") })

	srv := NewServer(DefaultConfig(), Dependencies{Logger: logger.Nop(), HealthChecker: checker})
	h := srv.Handler()

	rec, _ := do(t, h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RateLimitPerUser(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 1
	srv := NewServer(cfg, Dependencies{Logger: logger.Nop()})
	h := srv.Handler()

	rec, _ := do(t, h, http.MethodGet, "/live", "u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, env := do(t, h, http.MethodGet, "/live", "u1", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", env.Error.Code)

	rec, _ = do(t, h, http.MethodGet, "/live", "u2", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
