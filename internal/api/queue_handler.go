package api

import (
	"log/slog"
	"net/http"

	"github.com/zinses-rechner/calcsync/internal/api/shared"
	"github.com/zinses-rechner/calcsync/internal/platform/logger"
)

// CleanupResponse reports how many expired tasks a cleanup pass removed.
type CleanupResponse struct {
	RemovedTasks int `json:"removed_tasks"`
}

// AgentHealthResponse is the body of the agent liveness endpoint.
type AgentHealthResponse struct {
	Status string `json:"status"`
	Online bool   `json:"online"`
}

// QueueHandler handles queue-level HTTP requests on the device agent:
// statistics, sync triggering, cleanup and liveness.
type QueueHandler struct {
	engine Engine
	logger *slog.Logger
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(engine Engine, log *slog.Logger) *QueueHandler {
	if log == nil {
		log = slog.Default()
	}

	return &QueueHandler{
		engine: engine,
		logger: log.With(slog.String("component", "queue_handler")),
	}
}

// Statistics handles GET /statistics requests.
func (h *QueueHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Statistics(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// TriggerSync handles POST /sync requests. The sync attempt runs in the
// background; the response reports the state right after the trigger.
func (h *QueueHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	status := h.engine.SyncNow()

	log.Debug("sync triggered", slog.String("sync_state", string(status.State)))
	shared.RespondWithJSON(w, r, http.StatusAccepted, status)
}

// Cleanup handles POST /cleanup requests, removing terminal tasks past
// their retention period.
func (h *QueueHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	removed, err := h.engine.CleanupExpired(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("cleanup completed", slog.Int("removed_tasks", removed))
	shared.RespondWithJSON(w, r, http.StatusOK, CleanupResponse{RemovedTasks: removed})
}

// Health handles GET /healthz requests.
func (h *QueueHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, AgentHealthResponse{
		Status: "ok",
		Online: h.engine.IsOnline(),
	})
}
