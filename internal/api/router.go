package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apiMiddleware "github.com/zinses-rechner/calcsync/internal/api/middleware"
	"github.com/zinses-rechner/calcsync/internal/config"
	"github.com/zinses-rechner/calcsync/internal/service/auth"
)

// NewAgentRouter assembles the device agent's local HTTP API. The agent
// binds to loopback, so the routes carry no authentication; the chi request
// logger is also omitted to keep agent output as pure JSON log lines.
func NewAgentRouter(eng Engine, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	taskHandler := NewTaskHandler(eng, log)
	queueHandler := NewQueueHandler(eng, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(log))
	r.Use(apiMiddleware.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks", taskHandler.SubmitTask)
		r.Get("/tasks", taskHandler.ListTasks)
		r.Get("/tasks/{id}", taskHandler.GetTask)
		r.Delete("/tasks/{id}", taskHandler.CancelTask)
		r.Get("/statistics", queueHandler.Statistics)
		r.Post("/sync", queueHandler.TriggerSync)
		r.Post("/cleanup", queueHandler.Cleanup)
	})

	r.Get("/healthz", queueHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// ServerRouterConfig carries the dependencies of the calculation service
// router.
type ServerRouterConfig struct {
	Server      config.ServerConfig
	Auth        config.AuthConfig
	JWTService  auth.JWTService
	KeyVerifier auth.KeyVerifier
	Logger      *slog.Logger
}

// NewServerRouter assembles the public calculation service API. The /api
// subtree sits behind the per-client rate limiter; health endpoints stay
// outside it so probes are never throttled. The metrics endpoint requires
// a bearer token.
func NewServerRouter(cfg ServerRouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	calculatorHandler := NewCalculatorHandler(log)
	authHandler := NewAuthHandler(cfg.JWTService, cfg.KeyVerifier, cfg.Auth, log)
	healthHandler := NewHealthHandler()
	authMiddleware := apiMiddleware.NewAuthMiddleware(cfg.JWTService)
	rateLimiter := apiMiddleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(log))
	r.Use(apiMiddleware.Metrics)
	r.Use(apiMiddleware.SecurityHeaders)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimiter.Limit)

		r.Post("/auth/token", authHandler.IssueToken)

		r.Route("/calculator", func(r chi.Router) {
			r.Post("/compound-interest", calculatorHandler.Calculate)
			r.Get("/limits", calculatorHandler.GetLimits)
			r.Get("/export/csv", calculatorHandler.ExportCSV)
		})
	})

	r.Get("/health", healthHandler.Check)
	r.Get("/health/ready", healthHandler.Ready)
	r.Get("/health/live", healthHandler.Live)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.Handle("/metrics", promhttp.Handler())
	})

	return r
}
