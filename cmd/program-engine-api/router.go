// Package main provides the API router setup.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/program-engine/cmd/program-engine-api/handlers"
	"github.com/spherical-ai/spherical/libs/program-engine/cmd/program-engine-api/middleware"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/observability"
)

// Store is what the API reads directly from the database.
type Store interface {
	handlers.JobReader
	handlers.SessionLister
	Ping(ctx context.Context) error
}

// AppConfig holds application configuration.
type AppConfig struct {
	RequestTimeout time.Duration
	MaxUploadBytes int64
	AllowedOrigins []string
	AuthConfig     middleware.AuthConfig
}

// DefaultAppConfig returns default configuration values.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		RequestTimeout: 60 * time.Second,
		MaxUploadBytes: 10 << 20,
		AllowedOrigins: []string{"*"},
		AuthConfig: middleware.AuthConfig{
			Enabled: false, // Disabled by default for development
		},
	}
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *AppConfig, pipeline handlers.Pipeline, store Store) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	// Health check (unauthenticated)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"program-engine"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if store == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","reason":"no store"}`))
			return
		}
		if err := store.Ping(r.Context()); err != nil {
			logger.WithContext(r.Context()).Warn().Err(err).Msg("Readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","reason":"database unreachable"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	var (
		jobs     handlers.JobReader
		sessions handlers.SessionLister
	)
	if store != nil {
		jobs, sessions = store, store
	}
	importHandler := handlers.NewImportHandler(logger, pipeline, jobs, cfg.MaxUploadBytes)
	sessionsHandler := handlers.NewSessionsHandler(logger, sessions)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.AuthConfig))

		r.Route("/events/{eventId}", func(r chi.Router) {
			r.Route("/program", func(r chi.Router) {
				r.Post("/imports", importHandler.Import)
				r.Get("/imports/{jobId}", importHandler.GetJob)
				r.Post("/analyze", importHandler.Analyze)
			})
			r.Get("/sessions", sessionsHandler.List)
		})
	})

	return r
}
