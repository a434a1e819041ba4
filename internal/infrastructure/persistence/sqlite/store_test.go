package sqlite

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/planner"
	"github.com/brainamp/planner-engine/internal/domain/shared"
	"github.com/brainamp/planner-engine/pkg/logger"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Path: ":memory:"}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func day(s string) *shared.Date {
	d := shared.Date(s)
	return &d
}

func TestModuleStore_Queries(t *testing.T) {
	db := openTest(t)
	store := db.Modules()
	ctx := context.Background()

	for _, m := range []course.Module{
		{ID: "c", Title: "C", TaskDate: day("2026-02-19"), DayIndex: 1},
		{ID: "b", Title: "B", TaskDate: day("2026-02-18"), DayIndex: 2, LessonContent: "lesson b"},
		{ID: "a", Title: "A", TaskDate: day("2026-02-18"), DayIndex: 1},
		{ID: "u", Title: "Unscheduled"},
	} {
		require.NoError(t, store.Upsert(ctx, "u1", m))
	}
	require.NoError(t, store.Upsert(ctx, "u2", course.Module{ID: "x", Title: "X", TaskDate: day("2026-02-18")}))

	all, err := store.ListForUser(ctx, "u1", 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, m := range all {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "u"}, ids)
	assert.Nil(t, all[3].TaskDate)
	assert.Empty(t, all[1].LessonContent)

	feb, err := store.ListInRange(ctx, "u1", "2026-02-01", "2026-02-19")
	require.NoError(t, err)
	assert.Len(t, feb, 2)

	onDay, err := store.ListOnDate(ctx, "u1", "2026-02-18")
	require.NoError(t, err)
	require.Len(t, onDay, 2)
	assert.Equal(t, "lesson b", onDay[1].LessonContent)
}

func TestModuleStore_UpdateTaskDateIsUserScoped(t *testing.T) {
	db := openTest(t)
	store := db.Modules()
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, "u1", course.Module{ID: "m1", Title: "Vectors"}))

	foreign, err := store.UpdateTaskDate(ctx, "u2", "m1", "2026-03-01")
	require.NoError(t, err)
	assert.Nil(t, foreign)

	moved, err := store.UpdateTaskDate(ctx, "u1", "m1", "2026-03-01")
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, shared.Date("2026-03-01"), *moved.TaskDate)
	assert.Equal(t, "Vectors", moved.Title)
}

func TestUserDirectory_BacksDocumentStore(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	ok, err := db.Directory().UpdateMetadata(ctx, "u1", map[string]any{"theme": "dark"})
	require.NoError(t, err)
	require.True(t, ok)

	docs := planner.NewDocumentStore(db.Directory(), nil)
	require.NoError(t, docs.Mutate(ctx, "u1", func(doc *planner.Document) error {
		doc.PrependTask(planner.CustomTask{ID: "t1", Date: "2026-02-18", Title: "Read"})
		return nil
	}))

	meta, err := db.Directory().GetMetadata(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "dark", meta["theme"])
	assert.Contains(t, meta, planner.MetadataKey)

	doc, err := docs.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, doc.CustomTasks, 1)

	empty, err := db.Directory().GetMetadata(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "planner.db")
	db, err := Open(context.Background(), Config{Path: path}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Ping(context.Background()))
	require.NoError(t, db.Close())
	assert.FileExists(t, path)
}

func TestModuleStore_UpsertKeepsOwnership(t *testing.T) {
	db := openTest(t)
	store := db.Modules()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "u1", course.Module{ID: "m1", Title: "Vectors"}))
	require.NoError(t, store.Upsert(ctx, "u1", course.Module{ID: "m1", Title: "Vectors II", DayIndex: 3}))

	err := store.Upsert(ctx, "u2", course.Module{ID: "m1", Title: "Hijacked"})
	require.ErrorIs(t, err, course.ErrForeignModule)

	mine, err := store.ListForUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Vectors II", mine[0].Title)
	assert.Equal(t, 3, mine[0].DayIndex)

	theirs, err := store.ListForUser(ctx, "u2", 10)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

func TestOpen_AppliesPragmasWithoutWarnings(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Output: &buf, Level: logger.LevelWarn})

	path := filepath.Join(t.TempDir(), "planner.db")
	db, err := Open(context.Background(), Config{Path: path, BusyTimeout: 2 * time.Second}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var mode string
	require.NoError(t, db.db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, db.db.QueryRowContext(context.Background(), "PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 2000, timeout)

	assert.NotContains(t, buf.String(), "sqlite pragma failed")
}
