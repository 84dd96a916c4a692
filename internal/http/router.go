package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/activity-bookings/internal/idempotency"
	"github.com/robertarktes/activity-bookings/internal/observability"
	"github.com/robertarktes/activity-bookings/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyMiddleware(idemp))

	r.Post("/v1/orders", h.CreateOrder)
	r.Get("/v1/orders/{number}", h.GetOrder)
	r.Post("/v1/orders/{number}/payment-proof", h.SubmitPaymentProof)
	r.Post("/v1/orders/{number}/confirm", h.ConfirmPayment)
	r.Post("/v1/orders/{number}/cancel", h.CancelOrder)
	r.Get("/v1/orders/{number}/proofs", h.ListPaymentProofs)
	r.Get("/v1/orders/{number}/audit", h.GetOrderAuditTrail)
	r.Get("/v1/sessions/{id}/availability", h.GetSessionAvailability)
	r.Get("/v1/sessions/{id}/roles/{roleID}/validate", h.ValidateRole)
	r.Get("/v1/sessions/{id}/waitlist/next", h.GetNextWaitlistCandidate)
	r.Post("/v1/waitlist", h.JoinWaitlist)
	r.Post("/v1/waitlist/{id}/promote", h.PromoteWaitlistEntry)
	r.Delete("/v1/waitlist/{id}", h.RemoveWaitlistEntry)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
