package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zinses-rechner/calcsync/internal/api/shared"
	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/platform/logger"
	"github.com/zinses-rechner/calcsync/internal/redact"
	"github.com/zinses-rechner/calcsync/internal/store"
)

// SubmitTaskRequest is the request body for enqueueing a task.
// MaxRetries is optional; when omitted the queue default applies.
type SubmitTaskRequest struct {
	Type       string          `json:"type"        validate:"required"`
	Payload    json.RawMessage `json:"payload"     validate:"required"`
	MaxRetries *int            `json:"max_retries" validate:"omitempty,gte=0"`
}

// TaskListResponse wraps a task listing with its count.
type TaskListResponse struct {
	Tasks []*domain.Task `json:"tasks"`
	Count int            `json:"count"`
}

// TaskHandler handles task lifecycle HTTP requests on the device agent.
type TaskHandler struct {
	engine Engine
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(engine Engine, log *slog.Logger) *TaskHandler {
	if log == nil {
		log = slog.Default()
	}

	return &TaskHandler{
		engine: engine,
		logger: log.With(slog.String("component", "task_handler")),
	}
}

// SubmitTask handles POST /tasks requests. The task is persisted before the
// response is written, so an accepted submission survives a crash.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.Validate.Struct(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	maxRetries := -1
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	task, err := h.engine.Submit(r.Context(), req.Type, req.Payload, maxRetries)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("task submitted",
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", task.Type))
	shared.RespondWithJSON(w, r, http.StatusCreated, task)
}

// GetTask handles GET /tasks/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, ok := h.taskIDFromPath(w, r, log)
	if !ok {
		return
	}

	task, err := h.engine.GetTask(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// ListTasks handles GET /tasks requests. The status parameter may repeat or
// carry a comma-separated list; limit caps the number of returned tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var filter store.ListFilter
	for _, raw := range r.URL.Query()["status"] {
		for _, value := range strings.Split(raw, ",") {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			status := domain.TaskStatus(value)
			switch status {
			case domain.TaskStatusPending, domain.TaskStatusProcessing,
				domain.TaskStatusCompleted, domain.TaskStatusFailed:
				filter.Statuses = append(filter.Statuses, status)
			default:
				log.Warn("invalid status filter", slog.String("status", value))
				shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid status filter")
				return
			}
		}
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			log.Warn("invalid limit parameter", slog.String("limit", raw))
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		filter.Limit = limit
	}

	tasks, err := h.engine.ListTasks(r.Context(), filter)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	if tasks == nil {
		tasks = []*domain.Task{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Tasks: tasks,
		Count: len(tasks),
	})
}

// CancelTask handles DELETE /tasks/{id} requests. Pending tasks are removed,
// processing tasks get a cancellation request. Both answer 204.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, ok := h.taskIDFromPath(w, r, log)
	if !ok {
		return
	}

	if err := h.engine.Cancel(r.Context(), id); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("task cancelled", slog.String("task_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

// taskIDFromPath extracts and parses the {id} URL parameter. On failure it
// writes the error response and returns ok=false.
func (h *TaskHandler) taskIDFromPath(w http.ResponseWriter, r *http.Request, log *slog.Logger) (uuid.UUID, bool) {
	pathID := chi.URLParam(r, "id")
	if pathID == "" {
		log.Warn("task ID not found in URL path")
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID is required")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(pathID)
	if err != nil {
		log.Warn("invalid task ID format", slog.String("task_id", pathID))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID format")
		return uuid.Nil, false
	}

	return id, true
}
