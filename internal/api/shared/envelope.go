package shared

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/zinses-rechner/calcsync/internal/platform/logger"
)

// ErrorEnvelope is the error body returned by the public calculation
// endpoints. Messages are end-user facing and localized in German, while
// Error and Code stay machine-readable for API clients.
type ErrorEnvelope struct {
	Error      string       `json:"error"`
	Message    string       `json:"message"`
	Code       string       `json:"code,omitempty"`
	Details    []FieldError `json:"details,omitempty"`
	RetryAfter int          `json:"retry_after,omitempty"`
	Timestamp  string       `json:"timestamp,omitempty"`
}

// FieldError describes a single invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// RespondWithEnvelope writes an ErrorEnvelope with the given status code.
// Unlike RespondWithError it carries no trace ID in the body. The trace ID
// still reaches the logs through the request-scoped logger.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, status int, env ErrorEnvelope) {
	if env.Timestamp == "" {
		env.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	log := logger.FromContextOrDefault(r.Context(), slog.Default())
	attrs := []interface{}{
		"status_code", status,
		"error", env.Error,
		"error_code", env.Code,
		"path", r.URL.Path,
	}
	switch {
	case status >= http.StatusInternalServerError:
		log.Error("request failed", attrs...)
	case status == http.StatusTooManyRequests:
		log.Warn("request rejected", attrs...)
	default:
		log.Debug("request rejected", attrs...)
	}

	RespondWithJSON(w, r, status, env)
}
