// Package server wires the HTTP routes and runs the listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/coverage-cache/internal/core/config"
	"github.com/mohammed-shakir/coverage-cache/internal/core/health"
	middleware "github.com/mohammed-shakir/coverage-cache/internal/core/middleware"
	"github.com/mohammed-shakir/coverage-cache/internal/core/router"
)

type Deps struct {
	Lookup router.LookupHandler
	// Metrics is mounted at cfg.MetricsPath when non-nil.
	Metrics http.Handler
	Ready   []health.Check
	// Demand serves GET /demand/uncovered when non-nil.
	Demand http.HandlerFunc
}

func NewRouter(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Ready...))
	if d.Metrics != nil {
		r.Method(http.MethodGet, cfg.MetricsPath, d.Metrics)
	}
	r.Post(router.RouteCheckCoverage, router.HandleCheckCoverage(logger, d.Lookup))
	if d.Demand != nil {
		r.Get("/demand/uncovered", d.Demand)
	}
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
