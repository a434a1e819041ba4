package course

import (
	"context"
	"errors"

	"github.com/brainamp/planner-engine/internal/domain/shared"
)

// ErrForeignModule is returned when seeding a module id that already belongs
// to another user.
var ErrForeignModule = errors.New("module id belongs to another user")

// Store is the relational store that owns course module rows.
// Every method is scoped to one user; rows of other users are invisible.
type Store interface {
	// ListForUser returns up to limit modules ordered by (task_date, day_index).
	ListForUser(ctx context.Context, userID string, limit int) ([]*Module, error)

	// ListInRange returns modules with from <= task_date < to ordered by
	// (task_date, day_index). Content fields are not loaded.
	ListInRange(ctx context.Context, userID string, from, to shared.Date) ([]*Module, error)

	// ListOnDate returns the modules scheduled on date ordered by day_index,
	// including lesson, practice and quiz content.
	ListOnDate(ctx context.Context, userID string, date shared.Date) ([]*Module, error)

	// UpdateTaskDate atomically moves one module. It returns nil, nil when
	// no row owned by the user has that id.
	UpdateTaskDate(ctx context.Context, userID, moduleID string, date shared.Date) (*Module, error)
}

// SemanticResolver maps a free-text phrase to at most one candidate id.
// Implementations may fail arbitrarily; callers treat any failure as "no match".
type SemanticResolver interface {
	Classify(ctx context.Context, phrase string, candidates []Candidate) (*Classification, error)
}

// SemanticResolverFunc adapts a function to SemanticResolver.
type SemanticResolverFunc func(ctx context.Context, phrase string, candidates []Candidate) (*Classification, error)

// Classify implements SemanticResolver.
func (f SemanticResolverFunc) Classify(ctx context.Context, phrase string, candidates []Candidate) (*Classification, error) {
	return f(ctx, phrase, candidates)
}
