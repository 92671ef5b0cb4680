package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ypk/contentguard/internal/db"
	"github.com/ypk/contentguard/internal/model"
	"github.com/ypk/contentguard/internal/policy"
)

// APIPolicyPut - PUT /api/v1/assets/{id}/protection
//
// Creates or replaces the asset's protection policy in one step.
func (h *Handler) APIPolicyPut(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	asset, err := db.GetAsset(h.DB, id)
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to get asset")
		return
	}
	if asset == nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "asset not found")
		return
	}

	var body struct {
		Watermark          model.WatermarkConfig `json:"watermark"`
		DownloadProtection bool                  `json:"download_protection"`
		ViewTracking       bool                  `json:"view_tracking"`
		MaxViews           *uint                 `json:"max_views"`
		ExpiresAt          *time.Time            `json:"expires_at"`
		AllowedViewerIDs   []string              `json:"allowed_viewer_ids"`
	}
	if err := readJSON(r, &body); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	p := &model.ProtectionPolicy{
		AssetID:            id,
		Watermark:          body.Watermark,
		DownloadProtection: body.DownloadProtection,
		ViewTracking:       body.ViewTracking,
		MaxViews:           body.MaxViews,
		ExpiresAt:          body.ExpiresAt,
		AllowedViewerIDs:   body.AllowedViewerIDs,
	}
	policy.Normalize(p)
	if err := policy.Validate(p, time.Now()); err != nil {
		code := "VALIDATION_FAILED"
		if errors.Is(err, policy.ErrExpiryInPast) {
			code = "EXPIRY_IN_PAST"
		}
		renderJSONError(w, http.StatusUnprocessableEntity, code, err.Error())
		return
	}

	if err := db.UpsertPolicy(h.DB, p); err != nil {
		slog.Error("api upsert policy", "asset_id", id, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to save policy")
		return
	}
	h.Gateway.Invalidate(id)

	saved, err := db.GetPolicy(h.DB, id)
	if err != nil || saved == nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to reload policy")
		return
	}
	slog.Info("protection configured", "asset_id", id, "score", policy.Score(saved))
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"policy":         saved,
		"security_score": policy.Score(saved),
	})
}

// APIPolicyDelete - DELETE /api/v1/assets/{id}/protection
//
// Removing protection also clears the asset's view counters, so a
// future policy starts with a fresh budget.
func (h *Handler) APIPolicyDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := db.GetPolicy(h.DB, id)
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to get policy")
		return
	}
	if p == nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "asset has no protection policy")
		return
	}

	if err := db.DeletePolicy(h.DB, id); err != nil {
		slog.Error("api delete policy", "asset_id", id, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to remove policy")
		return
	}
	h.Gateway.Invalidate(id)
	slog.Info("protection removed", "asset_id", id)

	w.WriteHeader(http.StatusNoContent)
}
