package detect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ypk/contentguard/internal/ledger"
	"github.com/ypk/contentguard/internal/model"
)

// PolicyLookup resolves the protection policy for an asset, nil when the
// asset is unprotected. The detector tolerates lookup errors by skipping
// the audit rule for that event.
type PolicyLookup func(assetID string) (*model.ProtectionPolicy, error)

// Alerter is notified when the detector synthesizes a violation.
type Alerter interface {
	ViolationDetected(e model.ViewEvent)
}

// Alerters fans a violation out to several alert channels.
type Alerters []Alerter

func (as Alerters) ViolationDetected(e model.ViewEvent) {
	for _, a := range as {
		a.ViolationDetected(e)
	}
}

// contextWindow tracks the distinct client contexts one viewer has used
// inside the sliding window, across all assets.
type contextWindow struct {
	seen    map[string]time.Time
	flagged time.Time
}

// Detector watches the event stream for credential sharing: a single
// viewer identity presenting from more than maxContexts distinct client
// contexts within the window. It also audits allowed download attempts
// against the current policy and flags ones that slipped past a
// protection enabled after grant issuance.
type Detector struct {
	appender *ledger.Appender
	policies PolicyLookup
	alert    Alerter
	log      *slog.Logger

	maxContexts int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	viewers map[string]*contextWindow // key: viewerID
}

func New(appender *ledger.Appender, policies PolicyLookup, alert Alerter, log *slog.Logger, maxContexts int, window time.Duration) *Detector {
	if maxContexts <= 0 {
		maxContexts = 3
	}
	if window <= 0 {
		window = time.Hour
	}
	return &Detector{
		appender:    appender,
		policies:    policies,
		alert:       alert,
		log:         log,
		maxContexts: maxContexts,
		window:      window,
		now:         time.Now,
		viewers:     make(map[string]*contextWindow),
	}
}

// Start subscribes to the hub and consumes it until ctx is cancelled.
// The subscription is taken before Start returns, so events published
// after the call are never missed.
func (d *Detector) Start(ctx context.Context, hub *ledger.Hub) {
	events, unsub := hub.Subscribe()
	go func() {
		defer unsub()
		for {
			select {
			case e, ok := <-events:
				if !ok {
					return
				}
				d.inspect(e)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// inspect applies the detection rules to one event. Violation events are
// never inputs to detection; feeding synthesized violations back in
// would loop.
func (d *Detector) inspect(e model.ViewEvent) {
	if e.Type == model.EventViolation {
		return
	}
	if d.checkBurst(e) {
		d.raise(e, model.ReasonCredentialSharing)
		return
	}
	d.auditDownload(e)
}

// checkBurst reports whether this event pushes the viewer past the
// distinct-context threshold. The window spans all assets the viewer
// touches; a viewer is flagged at most once per window.
func (d *Detector) checkBurst(e model.ViewEvent) bool {
	if e.ViewerID == "" || e.ClientContext == "" {
		return false
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	w := d.viewers[e.ViewerID]
	if w == nil {
		w = &contextWindow{seen: make(map[string]time.Time)}
		d.viewers[e.ViewerID] = w
	}
	cutoff := now.Add(-d.window)
	for cc, at := range w.seen {
		if at.Before(cutoff) {
			delete(w.seen, cc)
		}
	}
	w.seen[e.ClientContext] = now

	if len(w.seen) <= d.maxContexts {
		return false
	}
	if !w.flagged.IsZero() && w.flagged.After(cutoff) {
		return false
	}
	w.flagged = now
	return true
}

// auditDownload flags allowed download attempts against assets whose
// current policy blocks downloads. This catches grants issued before the
// policy was tightened.
func (d *Detector) auditDownload(e model.ViewEvent) {
	if e.Type != model.EventDownloadAttempt || d.policies == nil {
		return
	}
	p, err := d.policies(e.AssetID)
	if err != nil {
		d.log.Warn("detector policy lookup failed", "asset_id", e.AssetID, "error", err)
		return
	}
	if p != nil && p.DownloadProtection {
		d.raise(e, model.ReasonDownloadBlocked)
	}
}

func (d *Detector) raise(trigger model.ViewEvent, reason model.ReasonCode) {
	v := model.ViewEvent{
		AssetID:       trigger.AssetID,
		ViewerID:      trigger.ViewerID,
		Type:          model.EventViolation,
		Reason:        reason,
		ClientContext: trigger.ClientContext,
	}
	d.log.Warn("violation detected",
		"asset_id", v.AssetID, "viewer_id", v.ViewerID, "reason", v.Reason)
	d.appender.Record(v)
	if d.alert != nil {
		d.alert.ViolationDetected(v)
	}
}
