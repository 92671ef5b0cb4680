package handler

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ypk/contentguard/internal/db"
	"github.com/ypk/contentguard/internal/model"
	"github.com/ypk/contentguard/internal/policy"
)

var allowedFileTypes = map[string]bool{
	"image":    true,
	"video":    true,
	"document": true,
}

// APIAssetRegister - POST /api/v1/assets
//
// Registers content that the upload pipeline has already placed in the
// object store. No bytes travel through this endpoint.
func (h *Handler) APIAssetRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CampaignID string `json:"campaign_id"`
		Filename   string `json:"filename"`
		FileType   string `json:"file_type"`
		SizeBytes  int64  `json:"size_bytes"`
		StorageRef string `json:"storage_ref"`
	}
	if err := readJSON(r, &body); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if body.Filename == "" || body.StorageRef == "" {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "filename and storage_ref are required")
		return
	}
	if !allowedFileTypes[body.FileType] {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "file_type must be image, video or document")
		return
	}

	asset := &model.ContentAsset{
		ID:         uuid.New().String(),
		CampaignID: body.CampaignID,
		Filename:   body.Filename,
		FileType:   body.FileType,
		SizeBytes:  body.SizeBytes,
		StorageRef: body.StorageRef,
	}
	if err := db.CreateAsset(h.DB, asset); err != nil {
		slog.Error("api register asset", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to register asset")
		return
	}
	asset.CreatedAt = time.Now().UTC()

	renderJSON(w, http.StatusCreated, asset)
}

// APIAssetGet - GET /api/v1/assets/{id}
func (h *Handler) APIAssetGet(w http.ResponseWriter, r *http.Request) {
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

	p, err := h.Gateway.Policy(id)
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to get policy")
		return
	}
	renderJSON(w, http.StatusOK, model.AssetListing{
		ContentAsset: *asset,
		Policy:       p,
		Score:        policy.Score(p),
		Report:       h.Analytics.AssetReport(id),
	})
}

// APIAssetDelete - DELETE /api/v1/assets/{id}
func (h *Handler) APIAssetDelete(w http.ResponseWriter, r *http.Request) {
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

	if err := db.DeletePolicy(h.DB, id); err != nil {
		slog.Error("api delete asset policy", "asset_id", id, "error", err)
	}
	h.Gateway.Invalidate(id)
	db.DeleteAsset(h.DB, id)
	os.RemoveAll(filepath.Join(h.Cfg.DataDir, "stamped", id))

	w.WriteHeader(http.StatusNoContent)
}

// APIAssetList - GET /api/v1/assets?filter=&search=
//
// filter narrows to all, protected, unprotected or high-risk. high-risk
// means a protected asset with at least one recorded violation.
func (h *Handler) APIAssetList(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = "all"
	}
	switch filter {
	case "all", "protected", "unprotected", "high-risk":
	default:
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "filter must be all, protected, unprotected or high-risk")
		return
	}

	assets, err := db.ListAssets(h.DB, r.URL.Query().Get("search"))
	if err != nil {
		slog.Error("api list assets", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list assets")
		return
	}

	listings := make([]model.AssetListing, 0, len(assets))
	for i := range assets {
		a := &assets[i]
		p, err := h.Gateway.Policy(a.ID)
		if err != nil {
			slog.Error("api list assets: policy", "asset_id", a.ID, "error", err)
			renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load policies")
			return
		}
		report := h.Analytics.AssetReport(a.ID)
		score := policy.Score(p)

		switch filter {
		case "protected":
			if p == nil {
				continue
			}
		case "unprotected":
			if p != nil {
				continue
			}
		case "high-risk":
			if p == nil || report.SecurityViolations == 0 {
				continue
			}
		}
		listings = append(listings, model.AssetListing{
			ContentAsset: *a,
			Policy:       p,
			Score:        score,
			Report:       report,
		})
	}

	renderJSON(w, http.StatusOK, map[string]interface{}{
		"data":  listings,
		"total": len(listings),
	})
}
