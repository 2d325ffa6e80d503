package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/reveworks/backend/internal/billing"
	"github.com/reveworks/backend/internal/config"
	"github.com/reveworks/backend/internal/generate"
	"github.com/reveworks/backend/pkg/cache"
	"github.com/reveworks/backend/pkg/database"
	"go.uber.org/zap"
)

// Gateway handles API requests
type Gateway struct {
	db             *database.Database
	cache          *cache.Cache
	logger         *zap.Logger
	service        *generate.Service
	webhookHandler *billing.WebhookHandler
	checkout       *billing.CheckoutClient
	router         *chi.Mux
}

// NewGateway creates the API gateway. db and cache may be nil; they are only
// used for readiness reporting.
func NewGateway(db *database.Database, cacheClient *cache.Cache, logger *zap.Logger, service *generate.Service, webhookHandler *billing.WebhookHandler, checkout *billing.CheckoutClient, cfg config.ServerConfig) *Gateway {
	g := &Gateway{
		db:             db,
		cache:          cacheClient,
		logger:         logger,
		service:        service,
		webhookHandler: webhookHandler,
		checkout:       checkout,
		router:         chi.NewRouter(),
	}

	g.setupRoutes(cfg)
	return g
}

// setupRoutes configures the HTTP routes
func (g *Gateway) setupRoutes(cfg config.ServerConfig) {
	g.router.Use(middleware.RequestID)
	g.router.Use(middleware.RealIP)
	g.router.Use(g.loggerMiddleware)
	g.router.Use(g.metricsMiddleware)
	g.router.Use(middleware.Recoverer)
	g.router.Use(middleware.Timeout(2 * time.Minute))

	g.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Signature"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	g.registerMetrics()

	g.router.Get("/health", g.handleHealth)
	g.router.Get("/ready", g.handleReady)

	// Webhook verification needs the raw body; no parsing middleware sits
	// ahead of this route.
	g.router.Post("/api/billing/lemon/webhook", g.webhookHandler.HandleWebhook)

	g.router.Get("/api/billing/status", g.handleBillingStatus)
	g.router.Post("/api/billing/create-checkout", g.handleCreateCheckout)

	g.router.Post("/api/reve/create-remove-bg", g.handleCreateRemoveBackground)
	g.router.Post("/api/reve/enhance", g.handleEnhance)
}

// ServeHTTP implements http.Handler
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

func (g *Gateway) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		g.logger.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleReady reports dependency state. The service stays ready without its
// optional dependencies; the usage store degrades to the local file.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deps := map[string]string{}
	if g.db != nil {
		deps["postgres"] = healthString(g.db.Health(ctx))
	} else {
		deps["postgres"] = "disabled"
	}
	if g.cache != nil {
		deps["redis"] = healthString(g.cache.Health(ctx))
	} else {
		deps["redis"] = "disabled"
	}

	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ready",
		"dependencies": deps,
	})
}

func healthString(err error) string {
	if err != nil {
		return "down"
	}
	return "up"
}

// StartHealthMetrics starts a background goroutine updating dependency gauges
func (g *Gateway) StartHealthMetrics(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.updateHealthMetrics(ctx)
			}
		}
	}()
}

func (g *Gateway) updateHealthMetrics(ctx context.Context) {
	if g.db != nil {
		status := 0.0
		if err := g.db.Health(ctx); err == nil {
			status = 1.0
		}
		dependencyUp.WithLabelValues("postgres").Set(status)
	}
	if g.cache != nil {
		status := 0.0
		if err := g.cache.Health(ctx); err == nil {
			status = 1.0
		}
		dependencyUp.WithLabelValues("redis").Set(status)
	}
}

// Utility methods

func (g *Gateway) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (g *Gateway) writeError(w http.ResponseWriter, statusCode int, message string) {
	g.writeJSON(w, statusCode, map[string]string{"message": message})
}

// writeServiceError maps the generate error taxonomy onto HTTP statuses.
func (g *Gateway) writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *generate.ValidationError
	if errors.As(err, &validationErr) {
		g.writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	var quotaErr *generate.QuotaError
	if errors.As(err, &quotaErr) {
		resp := map[string]interface{}{
			"code":    "upgrade_required",
			"message": "Free generation limit reached. Upgrade to continue.",
			"usage":   quotaErr.View,
		}
		if quotaErr.CheckoutURL != "" {
			resp["checkoutUrl"] = quotaErr.CheckoutURL
		}
		if quotaErr.BillingMessage != "" {
			resp["billingMessage"] = quotaErr.BillingMessage
		}
		g.writeJSON(w, http.StatusPaymentRequired, resp)
		return
	}

	var providerErr *generate.ProviderError
	if errors.As(err, &providerErr) {
		g.logger.Error("generation provider failed", zap.Error(providerErr))
		g.writeError(w, http.StatusInternalServerError, "image generation failed")
		return
	}

	g.logger.Error("unexpected error", zap.Error(err))
	g.writeError(w, http.StatusInternalServerError, "internal error")
}
