// Package gateway makes the allow/deny decision for every content
// request. Unprotected assets pass through untouched; protected assets
// run the full rule chain and, on allow, carry a signed watermark grant.
package gateway

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ypk/contentguard/internal/db"
	"github.com/ypk/contentguard/internal/ledger"
	"github.com/ypk/contentguard/internal/metrics"
	"github.com/ypk/contentguard/internal/model"
	"github.com/ypk/contentguard/internal/token"
)

// Decision is the outcome of evaluating one content request.
type Decision struct {
	Allowed   bool
	Reason    model.ReasonCode
	Policy    *model.ProtectionPolicy
	GrantID   string
	Token     string
	ViewsUsed int64
}

// Request is one content access attempt as seen by the gateway.
type Request struct {
	Asset         *model.ContentAsset
	ViewerID      string
	Action        model.Action
	ClientContext string
}

// Gateway evaluates protection policies. Policies are read through a
// small TTL cache so a policy edit propagates within the TTL without a
// database round trip per request.
type Gateway struct {
	db     *sql.DB
	signer *token.Signer
	events *ledger.Appender
	log    *slog.Logger
	cache  *expirable.LRU[string, *model.ProtectionPolicy]
	now    func() time.Time
}

func New(database *sql.DB, signer *token.Signer, events *ledger.Appender, log *slog.Logger, cacheSize int, cacheTTL time.Duration) *Gateway {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &Gateway{
		db:     database,
		signer: signer,
		events: events,
		log:    log,
		cache:  expirable.NewLRU[string, *model.ProtectionPolicy](cacheSize, nil, cacheTTL),
		now:    time.Now,
	}
}

// Policy returns the cached policy for an asset, loading it on miss. A
// nil policy with nil error means the asset is unprotected; that fact is
// cached too.
func (g *Gateway) Policy(assetID string) (*model.ProtectionPolicy, error) {
	if p, ok := g.cache.Get(assetID); ok {
		return p, nil
	}
	p, err := db.GetPolicy(g.db, assetID)
	if err != nil {
		return nil, err
	}
	g.cache.Add(assetID, p)
	return p, nil
}

// Invalidate drops the cached policy for an asset. Called after any
// policy write so edits take effect immediately on this node.
func (g *Gateway) Invalidate(assetID string) {
	g.cache.Remove(assetID)
}

// Evaluate runs the rule chain for one request. Rules run in a fixed
// order and the first failing rule decides: expiry, then viewer
// allowlist, then download protection, then the view budget. The view
// budget is consumed atomically, so concurrent requests for the last
// remaining view admit exactly one.
//
// A policy read failure denies with policy_unavailable unless the cache
// proves the asset unprotected, which stays fail-open.
func (g *Gateway) Evaluate(req Request) Decision {
	p, err := g.Policy(req.Asset.ID)
	if err != nil {
		g.log.Error("policy read failed, denying",
			"asset_id", req.Asset.ID, "error", err)
		return g.deny(req, nil, model.ReasonPolicyUnavailable)
	}
	if p == nil {
		// unprotected: pass through, no grant, no record
		metrics.DecisionsTotal.WithLabelValues("allow", "unprotected").Inc()
		return Decision{Allowed: true}
	}

	now := g.now()
	// An access at the expiry instant itself is still in time.
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		return g.deny(req, p, model.ReasonExpired)
	}
	if !p.AllowsViewer(req.ViewerID) {
		return g.deny(req, p, model.ReasonNotAuthorized)
	}
	if req.Action == model.ActionDownload && p.DownloadProtection {
		return g.deny(req, p, model.ReasonDownloadBlocked)
	}

	// The budget covers every admitted request, downloads included:
	// a download hands out full-quality bytes, so it must never be a
	// way around the view limit.
	var used int64
	if p.MaxViews != nil {
		admitted, count, err := db.TryIncrementViewCount(g.db, req.Asset.ID, req.ViewerID, *p.MaxViews)
		if err != nil {
			g.log.Error("view counter update failed, denying",
				"asset_id", req.Asset.ID, "error", err)
			return g.deny(req, p, model.ReasonPolicyUnavailable)
		}
		if !admitted {
			return g.deny(req, p, model.ReasonViewLimitExceeded)
		}
		used = count
	}

	grantID, signed, err := g.signer.Issue(req.Asset.ID, req.ViewerID, now)
	if err != nil {
		g.log.Error("grant issuance failed, denying",
			"asset_id", req.Asset.ID, "error", err)
		g.RollbackView(req, p)
		return g.deny(req, p, model.ReasonPolicyUnavailable)
	}

	if p.ViewTracking {
		typ := model.EventView
		if req.Action == model.ActionDownload {
			typ = model.EventDownloadAttempt
		}
		g.events.Record(model.ViewEvent{
			AssetID:       req.Asset.ID,
			ViewerID:      req.ViewerID,
			Type:          typ,
			ClientContext: req.ClientContext,
		})
	}
	metrics.DecisionsTotal.WithLabelValues("allow", string(req.Action)).Inc()
	return Decision{
		Allowed:   true,
		Policy:    p,
		GrantID:   grantID,
		Token:     signed,
		ViewsUsed: used,
	}
}

// RollbackView returns a consumed view to the budget after the request
// failed downstream of admission. Best effort; a lost decrement only
// under-serves, never over-serves.
func (g *Gateway) RollbackView(req Request, p *model.ProtectionPolicy) {
	if p == nil || p.MaxViews == nil {
		return
	}
	if err := db.RollbackViewCount(g.db, req.Asset.ID, req.ViewerID); err != nil {
		g.log.Error("view rollback failed",
			"asset_id", req.Asset.ID, "viewer_id", req.ViewerID, "error", err)
	}
}

// RecordDownstreamFailure logs the violation for a request that was
// admitted but could not be served, after the caller rolled back the
// view budget.
func (g *Gateway) RecordDownstreamFailure(req Request, reason model.ReasonCode) {
	metrics.DecisionsTotal.WithLabelValues("deny", string(reason)).Inc()
	g.events.Record(model.ViewEvent{
		AssetID:       req.Asset.ID,
		ViewerID:      req.ViewerID,
		Type:          model.EventViolation,
		Reason:        reason,
		ClientContext: req.ClientContext,
	})
}

func (g *Gateway) deny(req Request, p *model.ProtectionPolicy, reason model.ReasonCode) Decision {
	metrics.DecisionsTotal.WithLabelValues("deny", string(reason)).Inc()
	g.events.Record(model.ViewEvent{
		AssetID:       req.Asset.ID,
		ViewerID:      req.ViewerID,
		Type:          model.EventViolation,
		Reason:        reason,
		ClientContext: req.ClientContext,
	})
	return Decision{Allowed: false, Reason: reason, Policy: p}
}
