package query

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/shared"
	"github.com/brainamp/planner-engine/internal/infrastructure/persistence/memory"
	"github.com/brainamp/planner-engine/pkg/logger"
)

func datePtr(s string) *shared.Date {
	d := shared.Date(s)
	return &d
}

func strRef(s string) *string { return &s }

func seededModules() *memory.ModuleStore {
	store := memory.NewModuleStore()
	store.Seed("u1",
		course.Module{ID: "m1", CourseID: "c1", Title: "Linear Algebra: Vectors", TaskDate: datePtr("2026-02-18"), DayIndex: 1},
		course.Module{ID: "m2", CourseID: "c1", Title: "Matrices", DayIndex: 2},
	)
	store.Seed("u2", course.Module{ID: "foreign", Title: "Someone else's module", TaskDate: datePtr("2026-02-18")})
	return store
}

func TestModuleResolver_Match(t *testing.T) {
	var seen []course.Candidate
	var phrase string
	semantic := course.SemanticResolverFunc(func(_ context.Context, p string, c []course.Candidate) (*course.Classification, error) {
		phrase, seen = p, c
		return &course.Classification{ID: strRef("m1")}, nil
	})
	r := NewModuleResolver(seededModules(), semantic, time.Second, logger.Nop())

	ref, err := r.Resolve(context.Background(), "u1", `"the vectors module"`, false)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "m1", ref.ID)
	assert.Equal(t, "Linear Algebra: Vectors", ref.Title)
	assert.Equal(t, `"the vectors module"`, phrase)
	assert.Len(t, seen, 2)
}

func TestModuleResolver_NeedTaskDateFiltersCandidates(t *testing.T) {
	var seen []course.Candidate
	semantic := course.SemanticResolverFunc(func(_ context.Context, _ string, c []course.Candidate) (*course.Classification, error) {
		seen = c
		return &course.Classification{ID: strRef("m2")}, nil
	})
	r := NewModuleResolver(seededModules(), semantic, time.Second, logger.Nop())

	ref, err := r.Resolve(context.Background(), "u1", "matrices", true)
	require.NoError(t, err)
	assert.Nil(t, ref, "m2 is unscheduled and was never offered")
	require.Len(t, seen, 1)
	assert.Equal(t, "m1", seen[0].ID)
}

func TestModuleResolver_FailsClosed(t *testing.T) {
	tests := []struct {
		name     string
		classify course.SemanticResolverFunc
	}{
		{"null id", func(context.Context, string, []course.Candidate) (*course.Classification, error) {
			return &course.Classification{}, nil
		}},
		{"nil verdict", func(context.Context, string, []course.Candidate) (*course.Classification, error) {
			return nil, nil
		}},
		{"foreign id", func(context.Context, string, []course.Candidate) (*course.Classification, error) {
			return &course.Classification{ID: strRef("foreign")}, nil
		}},
		{"invented id", func(context.Context, string, []course.Candidate) (*course.Classification, error) {
			return &course.Classification{ID: strRef("m999")}, nil
		}},
		{"transport error", func(context.Context, string, []course.Candidate) (*course.Classification, error) {
			return nil, errors.New("connection refused")
		}},
		{"timeout", func(ctx context.Context, _ string, _ []course.Candidate) (*course.Classification, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewModuleResolver(seededModules(), tt.classify, 30*time.Millisecond, logger.Nop())

			start := time.Now()
			ref, err := r.Resolve(context.Background(), "u1", "vectors", false)
			require.NoError(t, err)
			assert.Nil(t, ref)
			assert.True(t, time.Since(start) < time.Second)
		})
	}
}

func TestModuleResolver_SkipsResolverWhenNothingToAsk(t *testing.T) {
	var calls int32
	semantic := course.SemanticResolverFunc(func(context.Context, string, []course.Candidate) (*course.Classification, error) {
		atomic.AddInt32(&calls, 1)
		return &course.Classification{ID: strRef("m1")}, nil
	})
	r := NewModuleResolver(seededModules(), semantic, time.Second, logger.Nop())
	ctx := context.Background()

	ref, err := r.Resolve(ctx, "u1", `  "" `, false)
	require.NoError(t, err)
	assert.Nil(t, ref)

	ref, err = r.Resolve(ctx, "nobody", "vectors", false)
	require.NoError(t, err)
	assert.Nil(t, ref)

	ref, err = r.Resolve(ctx, "u1", "   ", false)
	require.NoError(t, err)
	assert.Nil(t, ref)

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
