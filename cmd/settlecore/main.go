// Settlecore - settlement failure prediction and risk core.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/api"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/bus"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/cache"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/history"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/patterns"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/predict"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/repository"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/risk"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/timeline"
	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/worker"
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
	if os.Getenv("SETTLECORE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting settlecore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for distributed mode via environment
	if os.Getenv("SETTLECORE_MODE") == "distributed" {
		cfg = domain.DistributedConfig()
		slog.Info("running in distributed mode")
	}

	slog.Info("configuration loaded",
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

	// Initialize pattern library with the reference patterns
	library, err := patterns.NewLibrary(cfg.Prediction.PatternMatchThreshold, busImpl)
	if err != nil {
		slog.Error("failed to initialize pattern library", "error", err)
		os.Exit(1)
	}
	for _, p := range patterns.Builtin() {
		if err := library.Register(ctx, p); err != nil {
			slog.Warn("failed to register builtin pattern", "name", p.Name, "error", err)
		}
	}
	slog.Info("pattern library initialized", "patterns_count", library.Count())

	// Initialize prediction engine and outcome tracker
	predictor := predict.NewEngine(library, busImpl, cacheImpl, cfg.Prediction)
	predictor.SetActiveModel(domain.DefaultModelConfig())
	feedback := predict.NewTracker(predictor, busImpl)
	slog.Info("prediction engine initialized", "model_version", predictor.ActiveModel().Version)

	// Initialize risk scoring engine
	riskEngine := risk.NewEngine(cfg.Risk, busImpl, cacheImpl)
	slog.Info("risk engine initialized")

	// Initialize counterparty history store
	store := history.NewStore()

	// Initialize timeline tracker and overdue-milestone scanner
	tracker := timeline.NewTracker(busImpl, cacheImpl)
	scanner := timeline.NewScanner(tracker, cfg.Scan.Interval)
	scanner.Start(ctx)
	defer scanner.Stop()
	slog.Info("timeline tracker initialized", "scan_interval", cfg.Scan.Interval)

	// Initialize async audit persister
	persister := worker.NewPersister(busImpl, repo)
	if err := persister.Start(); err != nil {
		slog.Error("failed to start audit persister", "error", err)
		os.Exit(1)
	}
	slog.Info("audit persister started")

	// Initialize Server
	srv := api.NewServer(cfg.Server, tracker, predictor, feedback, riskEngine, library, store, repo, cacheImpl, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("settlecore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the persister first so in-flight events drain to the audit store
	if err := persister.Stop(); err != nil {
		slog.Error("failed to stop audit persister", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("settlecore shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  SETTLECORE - settlement failure prediction and risk core")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/v1/instructions                        - Register an instruction")
	fmt.Println("    GET  /api/v1/instructions/{id}                   - Get instruction")
	fmt.Println("    GET  /api/v1/instructions/{id}/milestones        - Milestone timeline")
	fmt.Println("    PUT  /api/v1/instructions/{id}/milestones/{type} - Update a milestone")
	fmt.Println("    POST /api/v1/instructions/{id}/predict           - Predict settlement failure")
	fmt.Println("    POST /api/v1/instructions/{id}/assess            - Assess settlement risk")
	fmt.Println("    POST /api/v1/instructions/{id}/outcome           - Record settlement outcome")
	fmt.Println("    GET  /api/v1/predictions/high-risk               - High-risk instructions")
	fmt.Println("    GET  /api/v1/alerts                              - List alerts")
	fmt.Println("    GET  /api/v1/reports/performance                 - SLA performance report")
	fmt.Println("    GET  /health                                     - Health check")
	fmt.Println()
}
