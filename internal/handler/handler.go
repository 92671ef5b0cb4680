package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/ypk/contentguard/internal/analytics"
	"github.com/ypk/contentguard/internal/config"
	"github.com/ypk/contentguard/internal/detect"
	"github.com/ypk/contentguard/internal/gateway"
	"github.com/ypk/contentguard/internal/ledger"
	"github.com/ypk/contentguard/internal/storage"
	"github.com/ypk/contentguard/internal/watermark"
	"github.com/ypk/contentguard/internal/webhook"
)

// Stamper prepares a watermarked rendition of an asset for delivery.
// *watermark.Compositor is the production implementation.
type Stamper interface {
	Stamp(ctx context.Context, req watermark.StampRequest) (string, error)
}

type Handler struct {
	DB         *sql.DB
	Cfg        *config.Config
	Gateway    *gateway.Gateway
	Compositor Stamper
	Store      storage.ObjectStore
	Events     *ledger.Appender
	Hub        *ledger.Hub
	Analytics  *analytics.Aggregator
	Detector   *detect.Detector
	Webhook    *webhook.Dispatcher
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func renderJSONError(w http.ResponseWriter, status int, code, message string) {
	var e apiError
	e.Error.Code = code
	e.Error.Message = message
	renderJSON(w, status, e)
}

func readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
