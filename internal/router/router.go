package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/policywatch/policywatch/internal/handler"
	customMiddleware "github.com/policywatch/policywatch/internal/middleware"
)

func NewRouter(
	documents *handler.DocumentHandler,
	monitoring *handler.MonitoringHandler,
	health *handler.HealthHandler,
) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(customMiddleware.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", documents.Add)
		r.Get("/", documents.GetAll)
		r.Get("/{id}", documents.GetByID)
		r.Get("/{id}/changes", documents.GetChanges)
		r.Patch("/{id}/settings", documents.UpdateSettings)
	})

	r.Route("/monitoring", func(r chi.Router) {
		r.Post("/run", monitoring.Run)
		r.Get("/report", monitoring.Report)
	})

	// Health & Readiness Routes
	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
