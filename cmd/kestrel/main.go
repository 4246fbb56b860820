// Kestrel - Credit scoring and loan underwriting for small businesses.
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

	"github.com/joho/godotenv"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fulfillment"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/prequal"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/snapshot"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load .env if present; real environment wins over file values
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
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
		"policy_checks", cfg.Underwriting.PolicyChecksEnabled,
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

	// Initialize Policy Engine
	policyEngine, err := policy.NewEngine()
	if err != nil {
		slog.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}

	// Load tenant policies from database (no hardcoded defaults -
	// configure via POST /policies)
	if err := loadPoliciesFromDatabase(ctx, repo, policyEngine); err != nil {
		slog.Error("failed to load policies", "error", err)
		os.Exit(1)
	}
	slog.Info("policy engine initialized", "policies_count", policyEngine.PoliciesCount())

	// Initialize Snapshot Service, Scoring Engine, and Pre-Qualification
	snapshotSvc := snapshot.NewService(repo, cfg.Underwriting.SalesLookbackMonths)
	scoringEngine := scoring.NewEngine()

	var checker prequal.PolicyChecker
	if cfg.Underwriting.PolicyChecksEnabled {
		checker = policyEngine
	}
	prequalEngine := prequal.NewEngine(repo, checker)
	slog.Info("underwriting engines initialized",
		"sales_lookback_months", cfg.Underwriting.SalesLookbackMonths,
	)

	// Initialize Fulfillment Worker: credits inventory stock when an
	// application is approved
	fulfillmentWorker := fulfillment.NewWorker(busImpl, repo)

	tenantIDs := []string{}
	if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
		tenantIDs = strings.Split(envTenants, ",")
	}

	if err := fulfillmentWorker.Start(fulfillment.Config{TenantIDs: tenantIDs}); err != nil {
		slog.Error("failed to start fulfillment worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, snapshotSvc, scoringEngine, prequalEngine, policyEngine, Version)

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

	// Stop fulfillment worker first
	if err := fulfillmentWorker.Stop(); err != nil {
		slog.Error("failed to stop fulfillment worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadPoliciesFromDatabase loads underwriting policies into the engine.
// Policies are tenant-scoped, so startup loading covers only the tenants
// named in KESTREL_TENANTS; everything else loads via POST /policies/reload.
func loadPoliciesFromDatabase(ctx context.Context, repo domain.Repository, engine *policy.Engine) error {
	envTenants := os.Getenv("KESTREL_TENANTS")
	if envTenants == "" {
		slog.Info("no tenants configured for startup policy load - use POST /policies/reload")
		return nil
	}

	total := 0
	for _, tenantID := range strings.Split(envTenants, ",") {
		dbPolicies, err := repo.ListPolicies(ctx, tenantID)
		if err != nil {
			slog.Warn("failed to list policies from database", "tenant_id", tenantID, "error", err)
			continue
		}
		if err := engine.LoadPolicies(dbPolicies); err != nil {
			return err
		}
		total += len(dbPolicies)
	}

	if total > 0 {
		slog.Info("loaded policies from database", "count", total)
	}
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                  ║")
	fmt.Println("  ║   Credit Scoring & Loan Underwriting      ║")
	fmt.Println("  ║    Fair credit from real ledgers.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /score                      - Compute the business credit score")
	fmt.Println("    POST /prequalify                 - Pre-qualify for a loan product")
	fmt.Println("    GET  /products                   - List the loan product catalog")
	fmt.Println("    POST /products                   - Create or update a loan product")
	fmt.Println("    POST /applications               - Submit a loan application")
	fmt.Println("    GET  /applications               - List loan applications")
	fmt.Println("    POST /applications/{id}/status   - Record an underwriting decision")
	fmt.Println("    POST /sales|/invoices|/inventory - Sync activity ledgers")
	fmt.Println("    POST /customers|/suppliers       - Sync activity ledgers")
	fmt.Println("    GET  /policies                   - List underwriting policies")
	fmt.Println("    POST /policies                   - Create an underwriting policy")
	fmt.Println("    POST /policies/reload            - Hot-reload policies from database")
	fmt.Println("    GET  /health                     - Health check")
	fmt.Println()
}
