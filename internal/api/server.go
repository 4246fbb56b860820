package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/prequal"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/snapshot"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, snapshotSvc *snapshot.Service, scoringEngine *scoring.Engine, prequalEngine *prequal.Engine, policyEngine *policy.Engine, version string) *Server {
	handler := NewHandler(repo, cache, bus, snapshotSvc, scoringEngine, prequalEngine, policyEngine, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Credit scoring
		r.Get("/score", handler.GetScore)

		// Pre-qualification
		r.Post("/prequalify", handler.PreQualify)

		// Loan product catalog
		r.Get("/products", handler.ListProducts)
		r.Get("/products/{id}", handler.GetProduct)
		r.Post("/products", handler.CreateProduct)

		// Loan applications
		r.Post("/applications", handler.CreateApplication)
		r.Get("/applications", handler.ListApplications)
		r.Get("/applications/{id}", handler.GetApplication)
		r.Post("/applications/{id}/status", handler.UpdateApplicationStatus)

		// Activity ledger sync
		r.Post("/sales", handler.SyncSales)
		r.Post("/invoices", handler.SyncInvoices)
		r.Post("/inventory", handler.SyncInventory)
		r.Get("/inventory/{id}", handler.GetInventoryItem)
		r.Post("/customers", handler.SyncCustomers)
		r.Post("/suppliers", handler.SyncSuppliers)

		// Underwriting policy management
		r.Get("/policies", handler.ListPolicies)
		r.Get("/policies/{id}", handler.GetPolicy)
		r.Post("/policies", handler.CreatePolicy)
		r.Delete("/policies/{id}", handler.DeletePolicy)
		r.Post("/policies/reload", handler.ReloadPolicies)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
