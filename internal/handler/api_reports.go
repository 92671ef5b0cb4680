package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ypk/contentguard/internal/db"
	"github.com/ypk/contentguard/internal/model"
)

// APISecurityReport - GET /api/v1/report
//
// Counters come from the in-memory rollup; asset totals come from the
// database. The rollup trails the ledger by the append pipeline's
// latency, which is acceptable for a monitoring surface.
func (h *Handler) APISecurityReport(w http.ResponseWriter, r *http.Request) {
	total, protected, err := db.CountAssets(h.DB)
	if err != nil {
		slog.Error("api report: count assets", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to build report")
		return
	}

	views, violations, highRisk := h.Analytics.Totals()
	renderJSON(w, http.StatusOK, model.SecurityReport{
		TotalAssets:     total,
		ProtectedAssets: protected,
		TotalViews:      views,
		TotalViolations: violations,
		HighRiskAssets:  highRisk,
		RecentActivity:  h.Analytics.Recent(h.Cfg.RecentActivitySize),
		GeneratedAt:     time.Now().UTC(),
	})
}

// APIActivity - GET /api/v1/activity?limit=
//
// Reads from the persisted ledger, not the in-memory window, so it also
// serves events from before the last restart.
func (h *Handler) APIActivity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	events, err := db.ListRecentEvents(h.DB, limit)
	if err != nil {
		slog.Error("api activity", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list activity")
		return
	}
	if events == nil {
		events = []model.ViewEvent{}
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"data":  events,
		"total": len(events),
	})
}
