package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainamp/planner-engine/internal/application/command"
	"github.com/brainamp/planner-engine/internal/application/query"
	"github.com/brainamp/planner-engine/internal/domain/planner"
)

func sqliteEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PLANNER_CONFIG_FILE", "")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "planner.db"))
	t.Setenv("RESOLVER_BASE_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func ctl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out, io.Discard)
	return out.String(), err
}

func TestCLI_SeedRemindAndReadBack(t *testing.T) {
	dir := sqliteEnv(t)

	seed := filepath.Join(dir, "modules.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
modules:
  - id: m1
    course_id: c1
    title: Vectors
    task_date: "2026-03-02"
    day_index: 1
  - id: m2
    course_id: c1
    title: Matrices
    day_index: 2
`), 0o600))

	out, err := ctl(t, "seed", "-user", "u1", seed)
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 2 modules")

	out, err = ctl(t, "run", "-user", "u1", "remind me to revise on 2026-03-02 at 09:30")
	require.NoError(t, err)
	var result command.CommandResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, command.ActionRemind, result.Action)

	out, err = ctl(t, "day", "-user", "u1", "2026-03-02")
	require.NoError(t, err)
	var day query.DayView
	require.NoError(t, json.Unmarshal([]byte(out), &day))
	require.Len(t, day.Items, 2)
	assert.Equal(t, planner.ItemTypeCourseModule, day.Items[0].ItemType)
	assert.Equal(t, planner.ItemTypeReminder, day.Items[1].ItemType)

	out, err = ctl(t, "month", "-user", "u1", "2026-03")
	require.NoError(t, err)
	var month query.MonthView
	require.NoError(t, json.Unmarshal([]byte(out), &month))
	assert.Len(t, month.Days["2026-03-02"], 2)
}

func TestCLI_Errors(t *testing.T) {
	sqliteEnv(t)

	_, err := ctl(t)
	require.Error(t, err)

	_, err = ctl(t, "frobnicate")
	require.Error(t, err)

	_, err = ctl(t, "day", "2026-03-02")
	assert.EqualError(t, err, "-user is required")

	_, err = ctl(t, "day", "-user", "u1", "2026-02-30")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_date")
}

func TestCLI_MigrateWithoutPostgres(t *testing.T) {
	sqliteEnv(t)

	out, err := ctl(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to do")
}
