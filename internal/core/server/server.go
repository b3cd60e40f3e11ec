// Package server runs the import HTTP server.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/catalog-importer/internal/core/config"
	"github.com/mohammed-shakir/catalog-importer/internal/core/health"
	middleware "github.com/mohammed-shakir/catalog-importer/internal/core/middleware"
	"github.com/mohammed-shakir/catalog-importer/internal/core/router"
)

type Deps struct {
	Importer router.BatchImporter
	Checks   map[string]health.Check
	// Metrics defaults to the default Prometheus registry.
	Metrics http.Handler
}

func NewHandler(cfg config.Config, logger *slog.Logger, deps Deps) http.Handler {
	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(deps.Checks, 2*time.Second))
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/import", func(r chi.Router) {
		r.Post("/products", router.HandleImportProducts(logger, deps.Importer, cfg.MaxBody))
		r.Post("/collections", router.HandleImportCollections())
	})
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, deps Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, logger, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// a batch may take a while against a slow catalog
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
