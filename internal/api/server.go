// Package api provides the HTTP surface of the Kestrel service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/inboxkit/kestrel/internal/classify"
	"github.com/inboxkit/kestrel/internal/domain"
	"github.com/inboxkit/kestrel/internal/stats"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, registry *classify.Registry, statsSvc *stats.Service, version string, classificationTTL time.Duration) *Server {
	handler := NewHandler(repo, cache, bus, registry, statsSvc, version, classificationTTL)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no account required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (account required)
	router.Route("/", func(r chi.Router) {
		r.Use(AccountMiddleware)

		// Classification
		r.Post("/classify", handler.Classify)
		r.Post("/classify/raw", handler.ClassifyRaw)
		r.Post("/classify/batch", handler.ClassifyBatch)

		// Classification retrieval
		r.Get("/classifications/{id}", handler.GetClassification)

		// Category management
		r.Get("/categories", handler.ListCategories)
		r.Get("/categories/{id}", handler.GetCategory)
		r.Post("/categories", handler.CreateCategory)
		r.Put("/categories/{id}", handler.UpdateCategory)
		r.Delete("/categories/{id}", handler.DeleteCategory)
		r.Post("/categories/reorder", handler.ReorderCategories)
		r.Post("/categories/reload", handler.ReloadCategories)
		r.Get("/categories/{id}/query", handler.CategoryQuery)

		// Match statistics
		r.Get("/stats", handler.Stats)
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
