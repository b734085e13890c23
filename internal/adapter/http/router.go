package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/erpledger/internal/adapter/http/handler"
	"github.com/iho/erpledger/internal/adapter/http/middleware"
	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/infrastructure/metrics"
	"github.com/iho/erpledger/internal/usecase"
)

// RouterConfig holds dependencies for the router. Authenticator,
// IdempotencyStore, Metrics and RateLimiter are optional.
type RouterConfig struct {
	EventHandler      *handler.EventHandler
	JournalHandler    *handler.JournalHandler
	AccountHandler    *handler.AccountHandler
	StockHandler      *handler.StockHandler
	ReceivableHandler *handler.OpenItemHandler
	PayableHandler    *handler.OpenItemHandler
	LedgerHandler     *handler.LedgerHandler
	HealthHandler     *handler.HealthHandler
	AuthHandler       *handler.AuthHandler

	// Authenticator turns on bearer tokens and role checks for /api/v1.
	Authenticator    *middleware.Authenticator
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	Metrics          *metrics.Metrics
	// MetricsHandler serves /metrics. Defaults to the default registry when
	// Metrics is set.
	MetricsHandler http.Handler
	RateLimiter    *middleware.RateLimiter
	Logger         zerolog.Logger
	Development    bool
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestMeta)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.AccessLog(cfg.Logger, "/health", "/ready", "/metrics"))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(middleware.SecureHeaders(cfg.Development))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil && cfg.Metrics != nil {
		metricsHandler = promhttp.Handler()
	}
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	requireRole := func(role domain.Role) func(http.Handler) http.Handler {
		if cfg.Authenticator == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.RequireRole(role)
	}
	canPost := requireRole(domain.RoleOperator)
	canReverse := requireRole(domain.RoleAdmin)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Authenticator != nil {
			r.Use(cfg.Authenticator.Require)
		}

		// After authentication so keys are scoped by caller.
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.Idempotency(cfg.IdempotencyStore, cfg.IdempotencyTTL, cfg.Logger))
		}

		r.Route("/events", func(r chi.Router) {
			r.With(canPost).Post("/", cfg.EventHandler.Post)
			r.Get("/", cfg.EventHandler.List)
			r.Get("/{id}", cfg.EventHandler.Get)
		})

		r.Route("/journals", func(r chi.Router) {
			r.Get("/", cfg.JournalHandler.List)
			r.Get("/by-source/{sourceType}/{sourceID}", cfg.JournalHandler.ListBySource)
			r.Get("/{id}", cfg.JournalHandler.Get)
			r.With(canReverse).Post("/{id}/reverse", cfg.JournalHandler.Reverse)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", cfg.AccountHandler.List)
			r.Get("/{code}", cfg.AccountHandler.Get)
			r.Get("/{code}/balance", cfg.LedgerHandler.AccountBalance)
		})

		r.Route("/stocks", func(r chi.Router) {
			r.Get("/", cfg.StockHandler.List)
			r.Group(func(r chi.Router) {
				r.Use(canPost)
				r.Post("/receive", cfg.StockHandler.Receive)
				r.Post("/issue", cfg.StockHandler.Issue)
				r.Post("/adjust", cfg.StockHandler.Adjust)
				r.Post("/bulk-adjust", cfg.StockHandler.BulkAdjust)
			})
			r.Get("/{materialID}", cfg.StockHandler.Get)
			r.Get("/{materialID}/movements", cfg.StockHandler.ListMovements)
		})
		r.Get("/projects/{projectID}/movements", cfg.StockHandler.ListProjectMovements)

		mountOpenItems(r, "/receivables", cfg.ReceivableHandler)
		mountOpenItems(r, "/payables", cfg.PayableHandler)

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/consistency", cfg.LedgerHandler.CheckConsistency)
			r.Get("/reconciliation", cfg.LedgerHandler.Reconcile)
		})

		if cfg.AuthHandler != nil {
			r.Get("/me", cfg.AuthHandler.GetCurrentUser)
		}
	})

	return r
}

func mountOpenItems(r chi.Router, prefix string, h *handler.OpenItemHandler) {
	r.Route(prefix, func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/outstanding", h.Outstanding)
		r.Get("/{sourceID}", h.Get)
	})
}
