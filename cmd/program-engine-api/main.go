// Package main provides the Program Engine API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spherical-ai/spherical/libs/program-engine/cmd/program-engine-api/middleware"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/classify"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/monitoring"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/storage"
)

func main() {
	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Msg("Starting Program Engine API")

	store, err := storage.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer store.Close()

	status, err := store.Migrate(context.Background())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}
	logger.Info().Strs("applied", status.Applied).Int("total", status.Total).Msg("Database schema ready")

	backend, err := cache.New(cfg.Cache)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create cache")
	}
	defer backend.Close()

	audit := monitoring.NewAuditLogger(logger, backend, cfg.Import.AuditChannel)
	pipeline := ingest.NewPipeline(logger, ingest.OptionsFromConfig(cfg), store, backend, backend, audit)

	if adv := cfg.Classifier.Advisor; adv.Enabled {
		advisor := classify.NewOpenAIAdvisor(adv.APIKey, adv.Model, adv.BaseURL).WithTimeout(adv.Timeout)
		pipeline.WithAdvisor(advisor, adv.MaxConfidence)
		logger.Info().Str("model", adv.Model).Msg("Column advisor enabled")
	}

	appCfg := &AppConfig{
		RequestTimeout: cfg.Server.WriteTimeout,
		MaxUploadBytes: cfg.Import.MaxUploadBytes,
		AllowedOrigins: []string{"*"},
		AuthConfig: middleware.AuthConfig{
			Enabled: cfg.Auth.Enabled,
			APIKeys: cfg.Auth.APIKeys,
		},
	}

	router := NewRouter(logger, appCfg, pipeline, store)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	// Wait for interrupt or error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}
