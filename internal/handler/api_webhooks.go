package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ypk/contentguard/internal/db"
	"github.com/ypk/contentguard/internal/model"
)

// APIWebhookCreate - POST /api/v1/webhooks
func (h *Handler) APIWebhookCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL    string `json:"url"`
		Secret string `json:"secret"`
		Events string `json:"events"`
	}
	if err := readJSON(r, &body); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if !strings.HasPrefix(body.URL, "http://") && !strings.HasPrefix(body.URL, "https://") {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "url must be http or https")
		return
	}
	if body.Secret == "" {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "secret is required")
		return
	}
	if body.Events == "" {
		body.Events = "violation"
	}

	wh := &model.Webhook{
		ID:      uuid.New().String(),
		URL:     body.URL,
		Secret:  body.Secret,
		Events:  body.Events,
		Enabled: true,
	}
	if err := db.CreateWebhook(h.DB, wh); err != nil {
		slog.Error("api create webhook", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create webhook")
		return
	}
	renderJSON(w, http.StatusCreated, wh)
}

// APIWebhookList - GET /api/v1/webhooks
func (h *Handler) APIWebhookList(w http.ResponseWriter, r *http.Request) {
	hooks, err := db.ListWebhooks(h.DB)
	if err != nil {
		slog.Error("api list webhooks", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list webhooks")
		return
	}
	if hooks == nil {
		hooks = []model.Webhook{}
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"data":  hooks,
		"total": len(hooks),
	})
}

// APIWebhookDelete - DELETE /api/v1/webhooks/{id}
func (h *Handler) APIWebhookDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wh, err := db.GetWebhookByID(h.DB, id)
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to get webhook")
		return
	}
	if wh == nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "webhook not found")
		return
	}
	if err := db.DeleteWebhook(h.DB, id); err != nil {
		slog.Error("api delete webhook", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete webhook")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
