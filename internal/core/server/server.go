package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/placefinder/internal/auth"
	"github.com/mohammed-shakir/placefinder/internal/core/config"
	"github.com/mohammed-shakir/placefinder/internal/core/health"
	middleware "github.com/mohammed-shakir/placefinder/internal/core/middleware"
	"github.com/mohammed-shakir/placefinder/internal/core/router"
)

type Deps struct {
	Logger *slog.Logger
	Places router.PlaceService
	// nil leaves the admin routes unmounted
	Auth  auth.Authorizer
	Ready map[string]health.Check
}

// NewHandler builds the public, admin and probe routes.
func NewHandler(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, d.Ready, logger))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/places", func(r chi.Router) {
		r.Get("/", router.HandleList(logger, d.Places))
		r.Get("/nearby", router.HandleNearby(logger, d.Places))
		r.Get("/{id}", router.HandleGet(logger, d.Places))
	})

	if d.Auth != nil {
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireAuth(d.Auth, logger))
			r.Post("/places", router.HandleCreate(logger, d.Places))
			r.Put("/places/{id}", router.HandleUpdate(logger, d.Places))
			r.Delete("/places/{id}", router.HandleDelete(logger, d.Places))
			r.Get("/stats", router.HandleStats(logger, d.Places))
		})
	}
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
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
