package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ticketry/boxoffice/internal/idempotency"
	"github.com/ticketry/boxoffice/internal/observability"
	"github.com/ticketry/boxoffice/internal/ratelimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *ratelimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(RateLimitMiddleware(rl))

	r.Get("/v1/events/{id}/availability", h.GetAvailability)

	r.Group(func(r chi.Router) {
		r.Use(IdempotencyMiddleware(idemp))
		r.Post("/v1/checkout/acquire", h.Acquire)
		r.Post("/v1/checkout/billing", h.SubmitBilling)
		r.Post("/v1/checkout/payment", h.SubmitPayment)
		r.Post("/v1/checkout/process", h.Process)
		r.Post("/v1/checkout/releaseLocks", h.ReleaseLocks)
	})

	r.Get("/v1/orders/{id}", h.GetOrder)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
