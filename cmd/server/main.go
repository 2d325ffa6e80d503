package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reveworks/backend/internal/billing"
	"github.com/reveworks/backend/internal/config"
	"github.com/reveworks/backend/internal/gateway"
	"github.com/reveworks/backend/internal/generate"
	"github.com/reveworks/backend/internal/providers"
	"github.com/reveworks/backend/internal/usage"
	"github.com/reveworks/backend/pkg/cache"
	"github.com/reveworks/backend/pkg/database"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting reveworks backend")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Connect to Postgres if configured. The usage store degrades to the
	// local file when the database is absent or unreachable.
	var db *database.Database
	if cfg.Database.Enabled() {
		db, err = database.NewDatabase(cfg.Database)
		if err != nil {
			logger.Warn("database unavailable, usage store will run on local fallback", zap.Error(err))
			db = nil
		} else {
			defer db.Close()
			logger.Info("connected to database")
		}
	} else {
		logger.Info("no database configured, usage store runs on local file")
	}

	// Connect to Redis if configured. Only the webhook duplicate guard
	// uses it.
	var redisCache *cache.Cache
	if cfg.Redis.Enabled() {
		redisCache, err = cache.NewCache(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, webhook dedup disabled", zap.Error(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			logger.Info("connected to Redis")
		}
	}

	// Build the usage store: remote primary with silent local fallback.
	localStore := usage.NewLocalStore(cfg.Usage.LocalStorePath, logger)
	var primary usage.Store
	if db != nil {
		primary = usage.NewPostgresStore(db)
	}
	store := usage.NewFallbackStore(primary, localStore, logger)

	// External collaborators
	checkout := billing.NewCheckoutClient(cfg.Billing, logger)
	if !checkout.Configured() {
		logger.Warn("checkout is not configured, upgrade links will be unavailable")
	}
	optimizer := providers.NewOptimizer(cfg.Providers, logger)
	images := providers.NewReveClient(cfg.Providers, logger)

	// Orchestrator and webhook processor share the same store.
	service := generate.NewService(store, images, optimizer, checkout, cfg.Usage.FreeLimit, logger)
	webhookHandler := billing.NewWebhookHandler(cfg.Billing.WebhookSecret, store, redisCache, logger)
	if cfg.Billing.WebhookSecret == "" {
		logger.Warn("webhook signature verification disabled, local development only")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize API gateway
	gw := gateway.NewGateway(db, redisCache, logger, service, webhookHandler, checkout, cfg.Server)
	gw.StartHealthMetrics(ctx)
	logger.Info("initialized API gateway", zap.Int("free_limit", cfg.Usage.FreeLimit))

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gw,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
