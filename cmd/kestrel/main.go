// Kestrel - Fraud detection decision support engine.
// Copyright (c) 2025 opensource.finance
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

	"github.com/opensource-finance/kestrel/internal/activity"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/classify"
	"github.com/opensource-finance/kestrel/internal/correlate"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/plan"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/risk"
	"github.com/opensource-finance/kestrel/internal/roi"
	"github.com/opensource-finance/kestrel/internal/worker"
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
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
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

	// Initialize Catalog engine
	cat := catalog.New()
	if err := loadCatalogFromDatabase(ctx, repo, cat); err != nil {
		slog.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("catalog initialized", "entries_count", cat.Count())

	// Initialize Activity service (cached per-subject entity counts)
	activitySvc := activity.NewService(repo, cacheImpl)
	slog.Info("activity service initialized")

	// Initialize Classifier with activity getter
	classifier, err := classify.New(cat, activitySvc.Getter(), classify.Options{
		DefaultSLAHours:    cfg.Engine.DefaultSLAHours,
		GenericSLAHours:    cfg.Engine.GenericSLAHours,
		ActivityWindowDays: cfg.Engine.ActivityWindowDays,
	})
	if err != nil {
		slog.Error("failed to initialize classifier", "error", err)
		os.Exit(1)
	}
	defer classifier.Close()
	if err := classifier.LoadConditions(cat.List()); err != nil {
		slog.Error("failed to compile rule conditions", "error", err)
		os.Exit(1)
	}
	slog.Info("classifier initialized", "conditions_count", classifier.ConditionCount())

	// Initialize Risk Scorer
	scorer := risk.NewScorer(repo)
	slog.Info("risk scorer initialized")

	// Initialize Correlation Detector
	detector := correlate.NewDetector(repo, cacheImpl,
		time.Duration(cfg.Engine.CorrelationCacheTTL)*time.Second)
	slog.Info("correlation detector initialized",
		"cache_ttl_secs", cfg.Engine.CorrelationCacheTTL,
	)

	// Initialize ROI Calculator and Plan Builder
	calculator := roi.NewCalculator()
	planner := plan.NewBuilder(cat)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, classifier)

		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			for _, id := range strings.Split(envTenants, ",") {
				if id = strings.TrimSpace(id); id != "" {
					tenantIDs = append(tenantIDs, id)
				}
			}
		}

		workerCfg := worker.Config{
			TenantIDs:   tenantIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:       repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Catalog:    cat,
		Classifier: classifier,
		Scorer:     scorer,
		Detector:   detector,
		Calculator: calculator,
		Planner:    planner,
		Version:    Version,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
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

	slog.Info("kestrel shutdown complete")
}

// loadCatalogFromDatabase loads catalog entries from the database into the
// engine. All entries must be configured via POST /catalog - no hardcoded
// defaults.
func loadCatalogFromDatabase(ctx context.Context, repo domain.Repository, cat *catalog.Catalog) error {
	entries, err := repo.ListCatalogEntries(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list catalog entries from database", "error", err)
		return nil // Start with an empty catalog - entries can be added via API
	}

	if len(entries) > 0 {
		slog.Info("loading catalog from database", "count", len(entries))
		return cat.Load(entries)
	}

	slog.Info("no catalog entries in database - configure via POST /catalog API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL - Fraud Decision Support Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /classify                        - Classify a detection signal")
	fmt.Println("    GET  /classifications/{id}            - Get classification by ID")
	fmt.Println("    GET  /detections/{id}                 - Get detection by ID")
	fmt.Println("    GET  /catalog                         - List catalog entries")
	fmt.Println("    POST /catalog                         - Create a catalog entry")
	fmt.Println("    PUT  /catalog/{id}                    - Update a catalog entry")
	fmt.Println("    DELETE /catalog/{id}                  - Delete a catalog entry")
	fmt.Println("    POST /catalog/reload                  - Hot-reload catalog from database")
	fmt.Println("    POST /risk-entities                   - Create a risk entity")
	fmt.Println("    GET  /risk-entities/{id}              - Get risk entity by ID")
	fmt.Println("    POST /risk-entities/{id}/score        - Recompute entity score")
	fmt.Println("    POST /risk-entities/{id}/approve      - Approve a high-severity entity")
	fmt.Println("    POST /risk-entities/{id}/transition   - Move entity through lifecycle")
	fmt.Println("    GET  /subjects/{id}/correlations      - Detect entity correlations")
	fmt.Println("    POST /roi                             - Compute investigation ROI")
	fmt.Println("    POST /plans                           - Build an investigation plan")
	fmt.Println("    GET  /health                          - Health check")
	fmt.Println()
}
