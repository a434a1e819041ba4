package command

import (
	"context"

	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/shared"
	"github.com/brainamp/planner-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE MODULE DATE COMMAND
// Moves one course module to another date through the module store's
// atomic per-row update.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateModuleDateCommand contains the data to move a module.
type UpdateModuleDateCommand struct {
	UserID   string
	ModuleID string
	TaskDate string
}

// UpdateModuleDateHandler handles UpdateModuleDateCommand.
type UpdateModuleDateHandler struct {
	store course.Store
	log   *logger.Logger
}

// NewUpdateModuleDateHandler creates a new UpdateModuleDateHandler.
func NewUpdateModuleDateHandler(store course.Store, log *logger.Logger) *UpdateModuleDateHandler {
	return &UpdateModuleDateHandler{
		store: store,
		log:   log.With(logger.Component("update_module_date")),
	}
}

// Handle validates the date and moves the module. A module the user does
// not own, or that does not exist, is a not-found error.
func (h *UpdateModuleDateHandler) Handle(ctx context.Context, cmd UpdateModuleDateCommand) (*course.Module, error) {
	if err := requireUser("UpdateModuleDate", cmd.UserID); err != nil {
		return nil, err
	}
	date, err := shared.ParseDate("task_date", cmd.TaskDate)
	if err != nil {
		return nil, err
	}
	return h.move(ctx, cmd.UserID, cmd.ModuleID, date)
}

func (h *UpdateModuleDateHandler) move(ctx context.Context, userID, moduleID string, date shared.Date) (*course.Module, error) {
	updated, err := h.store.UpdateTaskDate(ctx, userID, moduleID, date)
	if err != nil {
		h.log.Error("failed to update module date",
			logger.UserID(userID), logger.ModuleID(moduleID), logger.Err(err))
		return nil, shared.WrapError("course", "UpdateTaskDate", shared.ErrPersistence, "failed to update module", err)
	}
	if updated == nil {
		return nil, shared.NewNotFoundError("course", "UpdateTaskDate", "course module not found")
	}

	h.log.Info("module moved",
		logger.UserID(userID), logger.ModuleID(moduleID), logger.String("task_date", date.String()))
	return updated, nil
}
