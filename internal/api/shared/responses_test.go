package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs swaps the default logger for one writing into the returned
// builder, restoring the original when the test ends.
func captureLogs(t *testing.T, level slog.Level) *strings.Builder {
	t.Helper()

	var buf strings.Builder
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	return &buf
}

func TestRespondWithJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	RespondWithJSON(rec, req, http.StatusCreated, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestRespondWithError(t *testing.T) {
	captureLogs(t, slog.LevelDebug)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), TraceIDKey, "test-trace-id"))

	RespondWithError(rec, req, http.StatusNotFound, "Task not found")

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Task not found", resp.Error)
	assert.Equal(t, "test-trace-id", resp.TraceID)
}

func TestRespondWithErrorAndLog_LogLevels(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		opts      []ResponseOption
		wantLevel string
	}{
		{
			name:      "server error logs at ERROR",
			status:    http.StatusInternalServerError,
			wantLevel: "level=ERROR",
		},
		{
			name:      "rate limit logs at WARN",
			status:    http.StatusTooManyRequests,
			wantLevel: "level=WARN",
		},
		{
			name:      "client error logs at DEBUG",
			status:    http.StatusBadRequest,
			wantLevel: "level=DEBUG",
		},
		{
			name:      "elevated client error logs at WARN",
			status:    http.StatusUnauthorized,
			opts:      []ResponseOption{WithElevatedLogLevel()},
			wantLevel: "level=WARN",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := captureLogs(t, slog.LevelDebug)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/test", nil)
			req = req.WithContext(context.WithValue(req.Context(), TraceIDKey, "test-trace-id"))

			cause := errors.New("underlying storage failure")
			RespondWithErrorAndLog(rec, req, tc.status, "Something went wrong", cause, tc.opts...)

			logOutput := buf.String()
			assert.Contains(t, logOutput, tc.wantLevel)
			assert.Contains(t, logOutput, "API error response")
			assert.Contains(t, logOutput, "trace_id=test-trace-id")
			assert.Contains(t, logOutput, "error_type=")

			// The client body carries the safe message only.
			assert.Equal(t, tc.status, rec.Code)
			body := rec.Body.String()
			assert.Contains(t, body, "Something went wrong")
			assert.NotContains(t, body, "underlying storage failure")

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(body), &resp))
			assert.Equal(t, "test-trace-id", resp.TraceID)
		})
	}
}

func TestRespondWithErrorAndLog_NilError(t *testing.T) {
	buf := captureLogs(t, slog.LevelDebug)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	RespondWithErrorAndLog(rec, req, http.StatusBadRequest, "Invalid request", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, buf.String(), "error_type=")
}

func TestWithElevatedLogLevel(t *testing.T) {
	opts := responseOptions{}
	WithElevatedLogLevel()(&opts)
	assert.True(t, opts.elevateLogLevel)
}
