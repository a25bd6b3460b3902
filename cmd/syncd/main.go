// Package main implements the entry point for the calcsync device
// agent, which accepts compound-interest calculation tasks over a local
// HTTP API, queues them durably, and syncs them against the remote
// calculation service whenever connectivity allows.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zinses-rechner/calcsync/internal/config"
	"github.com/zinses-rechner/calcsync/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "syncd: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, sets up logging, wires the application, and
// serves until a shutdown signal arrives.
func run() error {
	configPath := flag.String("config", "",
		"path to a calcsync.yaml config file (default: search the working directory)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Agent.LogLevel)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}

	log.Info("agent configuration loaded",
		"listen_addr", cfg.Agent.ListenAddr,
		"data_dir", cfg.Agent.DataDir,
		"log_level", cfg.Agent.LogLevel,
		"remote_base_url", cfg.Remote.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	return app.Run(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
