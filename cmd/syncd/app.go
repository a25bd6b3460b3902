package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/zinses-rechner/calcsync/internal/api"
	"github.com/zinses-rechner/calcsync/internal/config"
	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/engine"
	"github.com/zinses-rechner/calcsync/internal/eviction"
	"github.com/zinses-rechner/calcsync/internal/netmon"
	"github.com/zinses-rechner/calcsync/internal/platform/badgerstore"
	"github.com/zinses-rechner/calcsync/internal/remote"
	"github.com/zinses-rechner/calcsync/internal/stats"
	"github.com/zinses-rechner/calcsync/internal/task"
)

// shutdownTimeout bounds how long in-flight HTTP requests may run after
// a shutdown signal before the listener is torn down.
const shutdownTimeout = 10 * time.Second

// application holds the agent's shared dependencies so startup wiring
// and shutdown cleanup stay in one place.
type application struct {
	config *config.Config
	logger *slog.Logger
	store  *badgerstore.Store
	engine *engine.Engine
}

// newApplication opens the durable task store and wires the queue engine
// over it. The caller owns the returned application and must Run it (or
// call cleanup directly) so the store is closed again.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	storeCfg := badgerstore.DefaultConfig(filepath.Join(cfg.Agent.DataDir, "queue"))
	storeCfg.MaxStorageBytes = cfg.Storage.MaxBytes
	storeCfg.Logger = log

	st, err := badgerstore.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("opening task store: %w", err)
	}
	log.Info("task store opened",
		"path", storeCfg.Path,
		"max_storage_bytes", storeCfg.MaxStorageBytes)

	client := remote.NewClient(remote.Config{
		BaseURL:   cfg.Remote.BaseURL,
		Timeout:   cfg.Remote.Timeout,
		AuthToken: cfg.Remote.BearerToken,
	}, log)

	eng, err := engine.New(ctx, engine.Options{
		Store: st,
		Executors: map[string]task.Executor{
			domain.TaskTypeCompoundInterest: client,
		},
		// Probe timeout matches the interval so a hung probe can never
		// overlap the next check.
		Probe:             netmon.HTTPProbe(cfg.Network.ProbeURL, cfg.Network.ProbeInterval),
		Logger:            log,
		DefaultMaxRetries: cfg.Sync.MaxRetries,
		Processor: task.ProcessorConfig{
			Workers:        cfg.Sync.Workers,
			BaseDelay:      cfg.Sync.BaseDelay,
			MaxDelay:       cfg.Sync.MaxDelay,
			ExecuteTimeout: cfg.Sync.ExecuteTimeout,
		},
		Monitor: netmon.Config{
			ProbeInterval: cfg.Network.ProbeInterval,
			Debounce:      cfg.Network.Debounce,
		},
		Eviction: eviction.Policy{
			RetentionTTL: cfg.Storage.RetentionTTL,
			TargetRatio:  cfg.Storage.TargetRatio,
		},
		SweepInterval: cfg.Storage.SweepInterval,
	})
	if err != nil {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("closing task store after failed wiring", "error", closeErr)
		}
		return nil, fmt.Errorf("wiring queue engine: %w", err)
	}

	// The queue gauges come from a store scan on each scrape, so the
	// collector registers once per process, not per scrape handler.
	if err := prometheus.Register(stats.NewCollector(eng.Reporter())); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			eng.Stop()
			if closeErr := st.Close(); closeErr != nil {
				log.Error("closing task store after failed wiring", "error", closeErr)
			}
			return nil, fmt.Errorf("registering statistics collector: %w", err)
		}
	}

	return &application{
		config: cfg,
		logger: log,
		store:  st,
		engine: eng,
	}, nil
}

// Run starts the engine and serves the agent API until ctx is canceled,
// then shuts both down in order: listener first so no new work arrives,
// engine second so the in-flight attempt persists, store last.
func (app *application) Run(ctx context.Context) error {
	if err := app.engine.Start(ctx); err != nil {
		app.cleanup()
		return fmt.Errorf("starting engine: %w", err)
	}

	server := &http.Server{
		Addr:              app.config.Agent.ListenAddr,
		Handler:           api.NewAgentRouter(app.engine, app.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.logger.Info("agent API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("agent server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down agent")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("agent server shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	app.cleanup()
	if err != nil {
		return err
	}
	app.logger.Info("agent shutdown completed")
	return nil
}

// cleanup stops the engine and closes the store. Safe to call after a
// partial startup; the engine tolerates stopping before starting.
func (app *application) cleanup() {
	app.engine.Stop()
	if err := app.store.Close(); err != nil {
		app.logger.Error("closing task store", "error", err)
	}
}
