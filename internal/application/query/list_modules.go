package query

import (
	"context"

	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/shared"
)

// ListModulesQuery asks for all of a user's course modules.
type ListModulesQuery struct {
	UserID string
}

// ListModulesHandler returns a user's modules ordered by (task_date, day_index).
type ListModulesHandler struct {
	store course.Store
}

// NewListModulesHandler creates a new ListModulesHandler.
func NewListModulesHandler(store course.Store) *ListModulesHandler {
	return &ListModulesHandler{store: store}
}

// Handle executes the query.
func (h *ListModulesHandler) Handle(ctx context.Context, q ListModulesQuery) ([]*course.Module, error) {
	if q.UserID == "" {
		return nil, shared.NewDomainError("query", "ListModules", shared.ErrUnauthorized, "user id is required")
	}
	modules, err := h.store.ListForUser(ctx, q.UserID, course.MaxLookupRows)
	if err != nil {
		return nil, err
	}
	if modules == nil {
		modules = []*course.Module{}
	}
	return modules, nil
}
