package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (h *Handler) Routes(contentRL, adminRL *RateLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Serving surface: called by the fronting application on behalf of
	// viewers, higher rate budget than the admin API.
	r.Group(func(r chi.Router) {
		r.Use(contentRL.Middleware)
		r.Post("/api/v1/content/{assetID}/request", h.APIContentRequest)
	})

	// Administrative API, bearer key auth.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(adminRL.Middleware)
		r.Use(h.requireAdmin)

		r.Post("/assets", h.APIAssetRegister)
		r.Get("/assets", h.APIAssetList)
		r.Get("/assets/{id}", h.APIAssetGet)
		r.Delete("/assets/{id}", h.APIAssetDelete)

		r.Put("/assets/{id}/protection", h.APIPolicyPut)
		r.Delete("/assets/{id}/protection", h.APIPolicyDelete)

		r.Get("/report", h.APISecurityReport)
		r.Get("/activity", h.APIActivity)
		r.Get("/activity/stream", h.ActivityStream)

		r.Post("/trace", h.APITraceSubmit)

		r.Post("/webhooks", h.APIWebhookCreate)
		r.Get("/webhooks", h.APIWebhookList)
		r.Delete("/webhooks/{id}", h.APIWebhookDelete)
	})

	return r
}
