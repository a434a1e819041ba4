package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/shared"
)

func date(s string) *shared.Date {
	d := shared.Date(s)
	return &d
}

func TestModuleStore_OrderingAndScoping(t *testing.T) {
	store := NewModuleStore()
	store.Seed("u1",
		course.Module{ID: "c", Title: "C", TaskDate: date("2026-02-19"), DayIndex: 1},
		course.Module{ID: "b", Title: "B", TaskDate: date("2026-02-18"), DayIndex: 2},
		course.Module{ID: "a", Title: "A", TaskDate: date("2026-02-18"), DayIndex: 1},
		course.Module{ID: "u", Title: "Unscheduled"},
	)
	store.Seed("u2", course.Module{ID: "x", Title: "X", TaskDate: date("2026-02-18")})
	ctx := context.Background()

	all, err := store.ListForUser(ctx, "u1", 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, m := range all {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "u"}, ids)

	limited, _ := store.ListForUser(ctx, "u1", 2)
	assert.Len(t, limited, 2)

	feb, _ := store.ListInRange(ctx, "u1", "2026-02-01", "2026-02-19")
	assert.Len(t, feb, 2)
}

func TestModuleStore_UpdateTaskDate(t *testing.T) {
	store := NewModuleStore()
	store.Seed("u1", course.Module{ID: "m1", Title: "Vectors", TaskDate: date("2026-02-18")})
	ctx := context.Background()

	moved, err := store.UpdateTaskDate(ctx, "u1", "m1", "2026-03-01")
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, shared.Date("2026-03-01"), *moved.TaskDate)

	foreign, err := store.UpdateTaskDate(ctx, "u2", "m1", "2026-04-01")
	require.NoError(t, err)
	assert.Nil(t, foreign)

	day, _ := store.ListOnDate(ctx, "u1", "2026-03-01")
	require.Len(t, day, 1)
}

func TestUserDirectory_IsolatesCallers(t *testing.T) {
	dir := NewUserDirectory()
	ctx := context.Background()

	meta, err := dir.GetMetadata(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, meta)

	ok, err := dir.UpdateMetadata(ctx, "u1", map[string]any{"theme": "dark"})
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := dir.GetMetadata(ctx, "u1")
	got["theme"] = "light"

	again, _ := dir.GetMetadata(ctx, "u1")
	assert.Equal(t, "dark", again["theme"])
}

func TestModuleStore_UpsertKeepsOwnership(t *testing.T) {
	store := NewModuleStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "u1", course.Module{ID: "m1", Title: "Vectors"}))
	require.NoError(t, store.Upsert(ctx, "u1", course.Module{ID: "m1", Title: "Vectors II"}))
	require.ErrorIs(t, store.Upsert(ctx, "u2", course.Module{ID: "m1", Title: "Hijacked"}), course.ErrForeignModule)

	mine, _ := store.ListForUser(ctx, "u1", 10)
	require.Len(t, mine, 1)
	assert.Equal(t, "Vectors II", mine[0].Title)

	theirs, _ := store.ListForUser(ctx, "u2", 10)
	assert.Empty(t, theirs)
}
