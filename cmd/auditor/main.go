// Expense Auditor - Rule-driven expense transaction auditing.
// Copyright (c) 2025 NowenCR
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/NowenCR/expense-auditor/internal/ai"
	"github.com/NowenCR/expense-auditor/internal/api"
	"github.com/NowenCR/expense-auditor/internal/bus"
	"github.com/NowenCR/expense-auditor/internal/cache"
	"github.com/NowenCR/expense-auditor/internal/domain"
	"github.com/NowenCR/expense-auditor/internal/engine"
	"github.com/NowenCR/expense-auditor/internal/repository"
	"github.com/NowenCR/expense-auditor/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("AUDITOR_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting auditor",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("AUDITOR_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Rule Engine
	eng, err := engine.New(engine.WithChunkSize(cfg.Engine.ChunkSize))
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "chunk_size", cfg.Engine.ChunkSize)

	// Initialize the optional AI annotator
	var annotator *ai.Annotator
	if cfg.AI.Enabled || os.Getenv("AUDITOR_AI_ENABLED") == "true" {
		apiKey := os.Getenv("AUDITOR_AI_API_KEY")
		client, err := ai.NewOpenAIClient(cfg.AI, apiKey)
		if err != nil {
			slog.Warn("AI annotation disabled", "error", err)
		} else {
			annotator = ai.NewAnnotator(client, cacheImpl, cfg.AI, logger)
			slog.Info("AI annotator initialized", "model", cfg.AI.Model)
		}
	}

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("AUDITOR_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, eng, annotator)

		var tenantIDs []string
		if envTenants := os.Getenv("AUDITOR_TENANTS"); envTenants != "" {
			for _, id := range strings.Split(envTenants, ",") {
				if id = strings.TrimSpace(id); id != "" {
					tenantIDs = append(tenantIDs, id)
				}
			}
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, eng, annotator, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("auditor is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("auditor shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  expense-auditor")
	fmt.Println("  Rule-driven expense transaction auditing.")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /audit                   - Audit a batch of rows")
	fmt.Println("    POST   /audit/async             - Queue an audit run")
	fmt.Println("    GET    /catalogs                - List rule catalogs")
	fmt.Println("    POST   /catalogs                - Create a rule catalog")
	fmt.Println("    GET    /catalogs/{id}           - Get latest catalog version")
	fmt.Println("    PUT    /catalogs/{id}           - Store a new catalog version")
	fmt.Println("    DELETE /catalogs/{id}           - Disable a catalog")
	fmt.Println("    POST   /catalogs/{id}/validate  - Validate a stored catalog")
	fmt.Println("    GET    /runs                    - List audit runs")
	fmt.Println("    GET    /runs/{id}               - Get an audit run")
	fmt.Println("    GET    /health                  - Health check")
	fmt.Println()
}
