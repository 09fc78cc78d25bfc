package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/classify"
	"github.com/opensource-finance/kestrel/internal/correlate"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/plan"
	"github.com/opensource-finance/kestrel/internal/risk"
	"github.com/opensource-finance/kestrel/internal/roi"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// Deps bundles the engine components wired into the API.
type Deps struct {
	Repo       domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Catalog    *catalog.Catalog
	Classifier *classify.Classifier
	Scorer     *risk.Scorer
	Detector   *correlate.Detector
	Calculator *roi.Calculator
	Planner    *plan.Builder
	Version    string
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
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

		// Detection classification
		r.Post("/classify", handler.Classify)
		r.Get("/classifications/{id}", handler.GetClassification)
		r.Get("/detections/{id}", handler.GetDetection)

		// Catalog management
		r.Get("/catalog", handler.ListCatalog)
		r.Get("/catalog/{id}", handler.GetCatalogEntry)
		r.Post("/catalog", handler.CreateCatalogEntry)
		r.Put("/catalog/{id}", handler.UpdateCatalogEntry)
		r.Delete("/catalog/{id}", handler.DeleteCatalogEntry)
		r.Post("/catalog/reload", handler.ReloadCatalog)

		// Risk entities
		r.Post("/risk-entities", handler.CreateRiskEntity)
		r.Get("/risk-entities/{id}", handler.GetRiskEntity)
		r.Post("/risk-entities/{id}/score", handler.ScoreRiskEntity)
		r.Post("/risk-entities/{id}/approve", handler.ApproveRiskEntity)
		r.Post("/risk-entities/{id}/transition", handler.TransitionRiskEntity)

		// Correlations
		r.Get("/subjects/{id}/correlations", handler.GetCorrelations)

		// ROI valuation
		r.Post("/roi", handler.CalculateROI)

		// Investigation plans
		r.Post("/plans", handler.BuildPlan)
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
