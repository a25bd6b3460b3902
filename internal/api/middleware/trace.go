package middleware

import (
	"log/slog"
	"net/http"

	"github.com/zinses-rechner/calcsync/internal/api/shared"
	"github.com/zinses-rechner/calcsync/internal/platform/logger"
)

// NewTraceMiddleware returns a middleware that assigns each request a trace
// ID and places a logger carrying that ID into the request context. It
// should run early in the chain so every later handler logs with the ID.
func NewTraceMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			traceID := shared.GetTraceID(ctx)

			log := base.With(slog.String("trace_id", traceID))
			ctx = logger.WithLogger(ctx, log)

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
