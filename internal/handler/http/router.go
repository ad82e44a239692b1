package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prakyath/spree-commerse/pkg/health"
	"github.com/prakyath/spree-commerse/pkg/middleware"
)

// ServiceName labels this service's HTTP metrics and spans.
const ServiceName = "line-item"

// NewRouter creates a chi router with all line item routes registered.
// Mutating requests are limited per client according to rateLimit.
func NewRouter(lineItems LineItemService, healthHandler *health.Handler, rateLimit middleware.RateLimitConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	h := NewLineItemHandler(lineItems, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(rateLimit, logger))
		r.Use(ContentTypeJSON)

		r.Route("/orders/{orderId}/line_items", func(r chi.Router) {
			r.Post("/", h.Create)
			r.Get("/", h.ListByOrder)
		})

		r.Route("/line_items/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Destroy)
		})
	})

	return r
}
