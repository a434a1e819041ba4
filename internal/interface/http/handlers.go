package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/brainamp/planner-engine/internal/application/command"
	"github.com/brainamp/planner-engine/internal/application/query"
	"github.com/brainamp/planner-engine/internal/domain/planner"
	"github.com/brainamp/planner-engine/internal/domain/shared"
	"github.com/brainamp/planner-engine/internal/interface/http/handlers"
	"github.com/brainamp/planner-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "Planner Engine API",
		"version": s.deps.Version,
		"endpoints": map[string]string{
			"health":         "/health",
			"planner":        "/api/planner/{busy|task|reminder|command}",
			"calendar_month": "/api/calendar?month=YYYY-MM",
			"calendar_day":   "/api/calendar/day/{date}",
			"course_modules": "/api/course-modules",
		},
	}, nil)
}

// handleHealth reports every check; 503 when any fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"status": "healthy",
			"uptime": s.Uptime().String(),
		}, nil)
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status, nil)
}

// handleReady fails only when a critical check fails.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "message": status.Message}, nil)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"}, nil)
}

// handleLive handles the liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// PLANNER ITEM HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleAddBusySlot(w http.ResponseWriter, r *http.Request) {
	var in planner.BusySlotInput
	if !s.decodeBody(w, r, &in) {
		return
	}
	slot, err := s.deps.PlannerItems.AddBusySlot(r.Context(), command.AddBusySlotCommand{
		UserID: handlers.UserIDFrom(r.Context()),
		Input:  in,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, slot, nil)
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var in planner.TaskInput
	if !s.decodeBody(w, r, &in) {
		return
	}
	task, err := s.deps.PlannerItems.AddTask(r.Context(), command.AddTaskCommand{
		UserID: handlers.UserIDFrom(r.Context()),
		Input:  in,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, task, nil)
}

func (s *Server) handleAddReminder(w http.ResponseWriter, r *http.Request) {
	var in planner.ReminderInput
	if !s.decodeBody(w, r, &in) {
		return
	}
	reminder, err := s.deps.PlannerItems.AddReminder(r.Context(), command.AddReminderCommand{
		UserID: handlers.UserIDFrom(r.Context()),
		Input:  in,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, reminder, nil)
}

// handleDeleteItem removes one item from the list named by itemType.
func (s *Server) handleDeleteItem(itemType planner.ItemType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		err := s.deps.PlannerItems.Delete(r.Context(), command.DeleteItemCommand{
			UserID:   handlers.UserIDFrom(r.Context()),
			ItemType: itemType,
			ItemID:   id,
		})
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]string{"id": id, "item_type": string(itemType)}, nil)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND INTERPRETER HANDLER
// ══════════════════════════════════════════════════════════════════════════════

type commandRequest struct {
	Command string `json:"command"`
}

// handleRunCommand interprets one free-text command. A command that matches
// nothing, or names an unknown module, is still a 200 with success false in
// the result.
func (s *Server) handleRunCommand(w http.ResponseWriter, r *http.Request) {
	userID := handlers.UserIDFrom(r.Context())
	if s.deps.CommandAllowed != nil && !s.deps.CommandAllowed(userID) {
		writeJSONError(w, r, http.StatusForbidden, "feature_disabled", "Planner commands are not enabled for this account", "")
		return
	}

	var req commandRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	result, err := s.deps.Interpreter.Run(r.Context(), command.RunCommand{
		UserID: userID,
		Text:   req.Command,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetMonth(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Calendar.GetMonth(r.Context(), query.GetMonthQuery{
		UserID:    handlers.UserIDFrom(r.Context()),
		YearMonth: r.URL.Query().Get("month"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	total := 0
	for _, items := range view.Days {
		total += len(items)
	}
	writeJSON(w, r, http.StatusOK, view, &ResponseMeta{TotalCount: total})
}

func (s *Server) handleGetDay(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Calendar.GetDay(r.Context(), query.GetDayQuery{
		UserID: handlers.UserIDFrom(r.Context()),
		Date:   r.PathValue("date"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view, &ResponseMeta{TotalCount: len(view.Items)})
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE MODULE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	modules, err := s.deps.ListModules.Handle(r.Context(), query.ListModulesQuery{
		UserID: handlers.UserIDFrom(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, modules, &ResponseMeta{TotalCount: len(modules)})
}

type updateModuleDateRequest struct {
	TaskDate string `json:"task_date"`
}

func (s *Server) handleUpdateModuleDate(w http.ResponseWriter, r *http.Request) {
	var req updateModuleDateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	module, err := s.deps.UpdateModuleDate.Handle(r.Context(), command.UpdateModuleDateCommand{
		UserID:   handlers.UserIDFrom(r.Context()),
		ModuleID: r.PathValue("id"),
		TaskDate: req.TaskDate,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, module, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON body into dst. Unknown fields are rejected.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large", "")
		case errors.Is(err, io.EOF):
			writeJSONError(w, r, http.StatusBadRequest, shared.CodeInvalidInput, "Request body is required", "")
		default:
			writeJSONError(w, r, http.StatusBadRequest, shared.CodeInvalidInput, "Malformed JSON body", err.Error())
		}
		return false
	}
	return true
}

// writeDomainError maps a domain error to its HTTP status. The details field
// carries the offending input field when there is one.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case shared.IsValidation(err):
		status = http.StatusBadRequest
	case shared.IsNotFound(err):
		status = http.StatusNotFound
	case shared.IsUnauthorized(err):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		code := shared.CodeInternal
		if shared.IsPersistence(err) {
			code = shared.CodePersistenceFailed
		}
		writeJSONError(w, r, status, code, "The request could not be completed", "")
		return
	}

	writeJSONError(w, r, status, shared.CodeOf(err), shared.MessageOf(err), shared.FieldOf(err))
}
