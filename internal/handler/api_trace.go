package handler

import (
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/ypk/contentguard/internal/db"
	"github.com/ypk/contentguard/internal/metrics"
	"github.com/ypk/contentguard/internal/watermark"
)

// maxFuzzyHexDiff bounds how many hex characters of the grant hash may
// differ before a fuzzy match is rejected as noise.
const maxFuzzyHexDiff = 3

type traceResult struct {
	Found      bool   `json:"found"`
	Confidence string `json:"confidence,omitempty"`
	AssetID    string `json:"asset_id,omitempty"`
	ViewerID   string `json:"viewer_id,omitempty"`
	GrantID    string `json:"grant_id,omitempty"`
}

// APITraceSubmit - POST /api/v1/trace
//
// Accepts a suspect leaked image, extracts the invisible payload and
// resolves it to the viewer whose copy it was. Exact CRC-valid payloads
// report exact confidence; payloads damaged by re-compression fall back
// to fuzzy matching against the index.
func (h *Handler) APITraceSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(256 << 20); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "failed to parse multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "missing 'file' field in form")
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp(h.Cfg.DataDir, "trace-*")
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to buffer upload")
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to buffer upload")
		return
	}
	tmp.Close()

	payloadHex, err := watermark.DetectImageFile(r.Context(), tmp.Name(), watermark.PayloadLength)
	if err != nil {
		metrics.TraceRequests.WithLabelValues("unreadable").Inc()
		renderJSONError(w, http.StatusUnprocessableEntity, "UNREADABLE", "could not extract a payload from the file")
		return
	}
	payload, err := hex.DecodeString(payloadHex)
	if err != nil {
		metrics.TraceRequests.WithLabelValues("unreadable").Inc()
		renderJSONError(w, http.StatusUnprocessableEntity, "UNREADABLE", "could not extract a payload from the file")
		return
	}

	if grantHash, _, valid := watermark.ParsePayload(payload); valid {
		assetID, viewerID, grantID, err := db.LookupWatermarkIndex(h.DB, grantHash)
		if err != nil {
			slog.Error("trace index lookup", "error", err)
			renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "index lookup failed")
			return
		}
		if grantID != "" {
			metrics.TraceRequests.WithLabelValues("exact").Inc()
			renderJSON(w, http.StatusOK, traceResult{
				Found:      true,
				Confidence: "exact",
				AssetID:    assetID,
				ViewerID:   viewerID,
				GrantID:    grantID,
			})
			return
		}
	}

	if grantHash, _, plausible := watermark.ParsePayloadFuzzy(payload); plausible {
		assetID, viewerID, grantID, diff, err := db.LookupWatermarkIndexFuzzy(h.DB, grantHash, maxFuzzyHexDiff)
		if err != nil {
			slog.Error("trace fuzzy lookup", "error", err)
			renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "index lookup failed")
			return
		}
		if grantID != "" {
			slog.Info("trace fuzzy match", "asset_id", assetID, "hex_diff", diff)
			metrics.TraceRequests.WithLabelValues("fuzzy").Inc()
			renderJSON(w, http.StatusOK, traceResult{
				Found:      true,
				Confidence: "fuzzy",
				AssetID:    assetID,
				ViewerID:   viewerID,
				GrantID:    grantID,
			})
			return
		}
	}

	metrics.TraceRequests.WithLabelValues("not_found").Inc()
	renderJSON(w, http.StatusOK, traceResult{Found: false})
}
