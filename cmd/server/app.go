package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zinses-rechner/calcsync/internal/api"
	"github.com/zinses-rechner/calcsync/internal/config"
	"github.com/zinses-rechner/calcsync/internal/service/auth"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// shutdown signal before the listener is torn down.
const shutdownTimeout = 10 * time.Second

// application holds the calculation service's shared dependencies.
type application struct {
	config *config.Config
	logger *slog.Logger
	router http.Handler
}

// newApplication validates the operator auth settings and builds the
// service router. The service keeps no state, so there is nothing to
// open or clean up beyond the listener itself.
func newApplication(cfg *config.Config, log *slog.Logger) (*application, error) {
	if cfg.Auth.AdminKeyHash == "" {
		return nil, errors.New(
			"auth.admin_key_hash is required; generate one with token-generator -hash-key and set CALCSYNC_AUTH_ADMIN_KEY_HASH")
	}
	if cfg.Auth.TokenSecret == "" {
		return nil, errors.New(
			"auth.token_secret is required; set CALCSYNC_AUTH_TOKEN_SECRET to a value of at least 32 characters")
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("initializing JWT service: %w", err)
	}
	log.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	router := api.NewServerRouter(api.ServerRouterConfig{
		Server:      cfg.Server,
		Auth:        cfg.Auth,
		JWTService:  jwtService,
		KeyVerifier: auth.NewBcryptVerifier(),
		Logger:      log,
	})

	return &application{
		config: cfg,
		logger: log,
		router: router,
	}, nil
}

// Run serves the calculation API until ctx is canceled, then drains
// in-flight requests and returns.
func (app *application) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.logger.Info("calculation service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("calculation service: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down calculation service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("calculation service shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	app.logger.Info("calculation service shutdown completed")
	return nil
}
