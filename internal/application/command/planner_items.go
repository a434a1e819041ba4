// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/brainamp/planner-engine/internal/domain/planner"
	"github.com/brainamp/planner-engine/internal/domain/shared"
	"github.com/brainamp/planner-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLANNER ITEM COMMANDS
// Direct add/delete operations on the user's planner document. Every add
// validates fully before the document is read, so a rejected input never
// causes a write.
// ══════════════════════════════════════════════════════════════════════════════

// AddBusySlotCommand adds one busy slot.
type AddBusySlotCommand struct {
	UserID string
	Input  planner.BusySlotInput
}

// AddTaskCommand adds one custom task.
type AddTaskCommand struct {
	UserID string
	Input  planner.TaskInput
}

// AddReminderCommand adds one reminder.
type AddReminderCommand struct {
	UserID string
	Input  planner.ReminderInput
}

// DeleteItemCommand removes one item by id from the list named by ItemType.
type DeleteItemCommand struct {
	UserID   string
	ItemType planner.ItemType
	ItemID   string
}

// Validate validates the command.
func (c DeleteItemCommand) Validate() error {
	if err := requireUser("DeleteItem", c.UserID); err != nil {
		return err
	}
	switch c.ItemType {
	case planner.ItemTypeBusySlot, planner.ItemTypeCustomTask, planner.ItemTypeReminder:
	default:
		return shared.NewValidationError("command", "DeleteItem", shared.CodeInvalidInput, "item_type", "unsupported item type")
	}
	if strings.TrimSpace(c.ItemID) == "" {
		return shared.NewValidationError("command", "DeleteItem", shared.CodeInvalidInput, "id", "id is required")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// IDGenerator produces new item ids.
type IDGenerator func() string

// PlannerItemsHandler handles planner item commands.
type PlannerItemsHandler struct {
	store *planner.DocumentStore
	newID IDGenerator
	log   *logger.Logger
}

// NewPlannerItemsHandler creates a new PlannerItemsHandler.
func NewPlannerItemsHandler(store *planner.DocumentStore, log *logger.Logger) *PlannerItemsHandler {
	return &PlannerItemsHandler{
		store: store,
		newID: uuid.NewString,
		log:   log.With(logger.Component("planner_items")),
	}
}

// WithIDGenerator overrides id generation. Used by tests.
func (h *PlannerItemsHandler) WithIDGenerator(gen IDGenerator) *PlannerItemsHandler {
	h.newID = gen
	return h
}

// AddBusySlot validates and stores a busy slot.
func (h *PlannerItemsHandler) AddBusySlot(ctx context.Context, cmd AddBusySlotCommand) (*planner.BusySlot, error) {
	if err := requireUser("AddBusySlot", cmd.UserID); err != nil {
		return nil, err
	}
	slot, err := planner.NewBusySlot(h.newID(), cmd.Input)
	if err != nil {
		return nil, err
	}

	if err := h.store.Mutate(ctx, cmd.UserID, func(doc *planner.Document) error {
		doc.PrependBusySlot(slot)
		return nil
	}); err != nil {
		h.log.Error("failed to add busy slot", logger.UserID(cmd.UserID), logger.Err(err))
		return nil, err
	}

	h.log.Info("busy slot added", logger.UserID(cmd.UserID), logger.ItemID(slot.ID))
	return &slot, nil
}

// AddTask validates and stores a custom task.
func (h *PlannerItemsHandler) AddTask(ctx context.Context, cmd AddTaskCommand) (*planner.CustomTask, error) {
	if err := requireUser("AddTask", cmd.UserID); err != nil {
		return nil, err
	}
	task, err := planner.NewCustomTask(h.newID(), cmd.Input)
	if err != nil {
		return nil, err
	}

	if err := h.store.Mutate(ctx, cmd.UserID, func(doc *planner.Document) error {
		doc.PrependTask(task)
		return nil
	}); err != nil {
		h.log.Error("failed to add task", logger.UserID(cmd.UserID), logger.Err(err))
		return nil, err
	}

	h.log.Info("task added", logger.UserID(cmd.UserID), logger.ItemID(task.ID))
	return &task, nil
}

// AddReminder validates and stores a reminder.
func (h *PlannerItemsHandler) AddReminder(ctx context.Context, cmd AddReminderCommand) (*planner.Reminder, error) {
	if err := requireUser("AddReminder", cmd.UserID); err != nil {
		return nil, err
	}
	rem, err := planner.NewReminder(h.newID(), cmd.Input)
	if err != nil {
		return nil, err
	}

	if err := h.store.Mutate(ctx, cmd.UserID, func(doc *planner.Document) error {
		doc.PrependReminder(rem)
		return nil
	}); err != nil {
		h.log.Error("failed to add reminder", logger.UserID(cmd.UserID), logger.Err(err))
		return nil, err
	}

	h.log.Info("reminder added", logger.UserID(cmd.UserID), logger.ItemID(rem.ID))
	return &rem, nil
}

// Delete removes one item. A missing id is a not-found error and nothing is written.
func (h *PlannerItemsHandler) Delete(ctx context.Context, cmd DeleteItemCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	err := h.store.Mutate(ctx, cmd.UserID, func(doc *planner.Document) error {
		var removed bool
		switch cmd.ItemType {
		case planner.ItemTypeBusySlot:
			removed = doc.RemoveBusySlot(cmd.ItemID)
		case planner.ItemTypeCustomTask:
			removed = doc.RemoveTask(cmd.ItemID)
		case planner.ItemTypeReminder:
			removed = doc.RemoveReminder(cmd.ItemID)
		}
		if !removed {
			return shared.NewNotFoundError("planner", "Delete", notFoundMessage(cmd.ItemType))
		}
		return nil
	})
	if err != nil {
		if !shared.IsNotFound(err) {
			h.log.Error("failed to delete planner item",
				logger.UserID(cmd.UserID), logger.ItemType(string(cmd.ItemType)), logger.Err(err))
		}
		return err
	}

	h.log.Info("planner item deleted",
		logger.UserID(cmd.UserID), logger.ItemType(string(cmd.ItemType)), logger.ItemID(cmd.ItemID))
	return nil
}

func notFoundMessage(t planner.ItemType) string {
	switch t {
	case planner.ItemTypeBusySlot:
		return "busy slot not found"
	case planner.ItemTypeCustomTask:
		return "task not found"
	default:
		return "reminder not found"
	}
}

func requireUser(op, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return shared.NewDomainError("command", op, shared.ErrUnauthorized, "user id is required")
	}
	return nil
}
