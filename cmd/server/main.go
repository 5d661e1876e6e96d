package main

// Package main is the entry point for the insurelens-ai server.
//
// Responsibilities:
//   - Load and validate configuration from YAML and INSURELENS_ environment variables
//   - Initialize the process-wide structured logger
//   - Build the server with all components wired together: SQLite store, audit
//     trail, rate-table cache, premium engine, tool registry, session memory,
//     budget tracker, LLM adapter, router and reasoning engine
//   - Serve the REST API with WebSocket streaming on the configured port, plus
//     the gRPC health listener
//   - Shut down gracefully on SIGINT/SIGTERM
//
// Architecture Flow:
//   1. Rate-table workbooks → catalog + deterministic premium engine
//   2. Queries → intent router (route mode) or reasoning loop (react mode)
//   3. Both paths dispatch tools through one registry with a shared audit trail
//   4. REST + WebSocket expose answers, traces, sessions and operational stats
//
// Port Configuration:
//   - REST + WebSocket: 8081
//   - gRPC health: 9091

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/insurelens/insurelens-ai/internal/config"
	"github.com/insurelens/insurelens-ai/internal/logging"
	"github.com/insurelens/insurelens-ai/internal/server"
)

const defaultConfigPath = "/etc/insurelens/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the configuration file")
	flag.Parse()

	ctx := context.Background()

	manager, err := config.NewConfigManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create configuration manager: %v\n", err)
		os.Exit(1)
	}
	if err := manager.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := manager.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := manager.Get(ctx)

	// The operational log goes to stderr; the audit trail keeps its own
	// rotating files under the configured audit directory.
	if err := logging.Initialize(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	srv, err := server.NewServer(cfg, logging.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}

	// Wait for shutdown signal (Ctrl+C or SIGTERM)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logging.Logger.Info("shutdown signal received")

	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
		os.Exit(1)
	}
}
