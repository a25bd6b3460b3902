package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/zinses-rechner/calcsync/internal/api/shared"
)

// SystemInfo is the runtime snapshot embedded in the health response.
type SystemInfo struct {
	Goroutines     int    `json:"goroutines"`
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	NumCPU         int    `json:"num_cpu"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string     `json:"status"`
	Timestamp     string     `json:"timestamp"`
	Version       string     `json:"version"`
	UptimeSeconds float64    `json:"uptime"`
	System        SystemInfo `json:"system"`
}

// HealthHandler serves the calculation service health endpoints.
type HealthHandler struct {
	startedAt time.Time
	now       func() time.Time
}

// NewHealthHandler creates a HealthHandler anchored at the current time.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Check handles GET /health requests with a full runtime snapshot.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	now := h.now()
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       apiVersion,
		UptimeSeconds: now.Sub(h.startedAt).Seconds(),
		System: SystemInfo{
			Goroutines:     runtime.NumGoroutine(),
			HeapAllocBytes: mem.HeapAlloc,
			NumCPU:         runtime.NumCPU(),
		},
	})
}

// Ready handles GET /health/ready requests. The service is stateless, so
// readiness follows from the process serving requests at all.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{
		"status":    "ready",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// Live handles GET /health/live requests.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
