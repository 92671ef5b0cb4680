package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ypk/contentguard/internal/db"
	"github.com/ypk/contentguard/internal/gateway"
	"github.com/ypk/contentguard/internal/model"
	"github.com/ypk/contentguard/internal/storage"
	"github.com/ypk/contentguard/internal/watermark"
)

func denyStatus(reason model.ReasonCode) int {
	switch reason {
	case model.ReasonViewLimitExceeded:
		return http.StatusTooManyRequests
	case model.ReasonCompositorOverloaded, model.ReasonPolicyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusForbidden
	}
}

func renderDeny(w http.ResponseWriter, reason model.ReasonCode) {
	status := denyStatus(reason)
	if reason.Retryable() {
		w.Header().Set("Retry-After", "5")
	}
	renderJSON(w, status, map[string]interface{}{
		"allowed":   false,
		"reason":    reason,
		"retryable": reason.Retryable(),
	})
}

// APIContentRequest - POST /api/v1/content/{assetID}/request
//
// The single serving entry point. Evaluates the asset's protection
// policy for the caller and, on allow, streams the (possibly stamped)
// bytes. Protected content is never served without its watermark unless
// the operator override is set.
func (h *Handler) APIContentRequest(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")

	viewer := viewerID(r)
	if viewer == "" {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "X-Viewer-ID header is required")
		return
	}

	var body struct {
		Action string `json:"action"`
	}
	if err := readJSON(r, &body); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	action := model.Action(body.Action)
	if action != model.ActionView && action != model.ActionDownload {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "action must be view or download")
		return
	}

	asset, err := db.GetAsset(h.DB, assetID)
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to get asset")
		return
	}
	if asset == nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "asset not found")
		return
	}

	req := gateway.Request{
		Asset:         asset,
		ViewerID:      viewer,
		Action:        action,
		ClientContext: clientContext(r),
	}
	decision := h.Gateway.Evaluate(req)
	if !decision.Allowed {
		renderDeny(w, decision.Reason)
		return
	}

	srcPath, err := h.Store.Fetch(r.Context(), asset.StorageRef)
	if err != nil {
		h.Gateway.RollbackView(req, decision.Policy)
		if errors.Is(err, storage.ErrNotFound) {
			renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "asset bytes missing from storage")
			return
		}
		slog.Error("content fetch", "asset_id", assetID, "error", err)
		renderJSONError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "storage backend unavailable")
		return
	}

	servePath := srcPath
	if decision.Policy != nil && decision.Policy.Watermark.Enabled {
		stamped, err := h.Compositor.Stamp(r.Context(), watermark.StampRequest{
			Asset:     asset,
			Config:    decision.Policy.Watermark,
			ViewerID:  viewer,
			GrantID:   decision.GrantID,
			InputPath: srcPath,
		})
		switch {
		case err == nil:
			servePath = stamped
		case errors.Is(err, watermark.ErrOverloaded) && h.Cfg.AllowUnwatermarkedOnOverload:
			slog.Warn("compositor saturated, serving unwatermarked per override",
				"asset_id", assetID, "viewer_id", viewer)
		case errors.Is(err, watermark.ErrOverloaded):
			h.Gateway.RollbackView(req, decision.Policy)
			h.Gateway.RecordDownstreamFailure(req, model.ReasonCompositorOverloaded)
			renderDeny(w, model.ReasonCompositorOverloaded)
			return
		default:
			// Any compositing failure denies: protected bytes never
			// leave unwatermarked without the operator override.
			slog.Error("content stamp", "asset_id", assetID, "error", err)
			h.Gateway.RollbackView(req, decision.Policy)
			h.Gateway.RecordDownstreamFailure(req, model.ReasonCompositorOverloaded)
			renderDeny(w, model.ReasonCompositorOverloaded)
			return
		}
	}

	if decision.Token != "" {
		w.Header().Set("X-Watermark-Token", decision.Token)
	}
	disposition := "inline"
	if action == model.ActionDownload {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", disposition+`; filename="`+asset.Filename+`"`)
	http.ServeFile(w, r, servePath)
}
