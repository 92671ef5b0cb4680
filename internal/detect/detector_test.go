package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/ypk/contentguard/internal/ledger"
	"github.com/ypk/contentguard/internal/model"
)

type captureAlerter struct {
	got []model.ViewEvent
}

func (c *captureAlerter) ViolationDetected(e model.ViewEvent) {
	c.got = append(c.got, e)
}

func newTestDetector(t *testing.T, policies PolicyLookup) (*Detector, *captureAlerter, *fakeClock) {
	t.Helper()
	alerter := &captureAlerter{}
	appender := ledger.NewAppender(nil, ledger.NewHub(), slog.Default(), 256)
	d := New(appender, policies, alerter, slog.Default(), 3, time.Hour)
	clock := &fakeClock{t: time.Now()}
	d.now = clock.Now
	return d, alerter, clock
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func viewFrom(viewer, asset, cc string) model.ViewEvent {
	return model.ViewEvent{
		AssetID:       asset,
		ViewerID:      viewer,
		Type:          model.EventView,
		ClientContext: cc,
	}
}

func TestBurstFlagsPastThreshold(t *testing.T) {
	d, alerter, _ := newTestDetector(t, nil)

	for i := 1; i <= 3; i++ {
		d.inspect(viewFrom("v1", "a1", fmt.Sprintf("cc-%d", i)))
	}
	if len(alerter.got) != 0 {
		t.Fatalf("flagged at %d contexts, threshold is 3", len(alerter.got))
	}

	d.inspect(viewFrom("v1", "a1", "cc-4"))
	if len(alerter.got) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerter.got))
	}
	v := alerter.got[0]
	if v.Type != model.EventViolation || v.Reason != model.ReasonCredentialSharing {
		t.Errorf("violation = %s/%s", v.Type, v.Reason)
	}
	if v.AssetID != "a1" || v.ViewerID != "v1" {
		t.Errorf("violation attribution = %s/%s", v.AssetID, v.ViewerID)
	}
}

func TestBurstFlagsOncePerWindow(t *testing.T) {
	d, alerter, clock := newTestDetector(t, nil)

	for i := 1; i <= 6; i++ {
		d.inspect(viewFrom("v1", "a1", fmt.Sprintf("cc-%d", i)))
	}
	if len(alerter.got) != 1 {
		t.Fatalf("alerts inside window = %d, want 1", len(alerter.got))
	}

	// Past the window the counter resets and a fresh burst flags again.
	clock.Advance(2 * time.Hour)
	for i := 1; i <= 4; i++ {
		d.inspect(viewFrom("v1", "a1", fmt.Sprintf("late-%d", i)))
	}
	if len(alerter.got) != 2 {
		t.Errorf("alerts after window reset = %d, want 2", len(alerter.got))
	}
}

func TestBurstCountsContextsAcrossAssets(t *testing.T) {
	d, alerter, _ := newTestDetector(t, nil)

	// One context per asset, but the same viewer identity: shared
	// credentials roaming the catalog must still trip the rule.
	for i := 1; i <= 8; i++ {
		d.inspect(viewFrom("v1", fmt.Sprintf("a%d", i), fmt.Sprintf("cc-%d", i)))
	}
	if len(alerter.got) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerter.got))
	}
	if alerter.got[0].Reason != model.ReasonCredentialSharing {
		t.Errorf("reason = %s", alerter.got[0].Reason)
	}
}

func TestBurstScopedPerViewer(t *testing.T) {
	d, alerter, _ := newTestDetector(t, nil)

	// Distinct viewers never pool their contexts.
	for i := 1; i <= 3; i++ {
		d.inspect(viewFrom("v1", "a1", fmt.Sprintf("v1-cc-%d", i)))
		d.inspect(viewFrom("v2", "a1", fmt.Sprintf("v2-cc-%d", i)))
	}
	if len(alerter.got) != 0 {
		t.Errorf("alerts = %d, want 0", len(alerter.got))
	}

	// The same context reused across assets counts once.
	for i := 1; i <= 5; i++ {
		d.inspect(viewFrom("v3", fmt.Sprintf("a%d", i), "cc-same"))
	}
	if len(alerter.got) != 0 {
		t.Errorf("alerts = %d, want 0 for one context over many assets", len(alerter.got))
	}
}

func TestStaleContextsExpire(t *testing.T) {
	d, alerter, clock := newTestDetector(t, nil)

	d.inspect(viewFrom("v1", "a1", "cc-1"))
	d.inspect(viewFrom("v1", "a1", "cc-2"))
	clock.Advance(90 * time.Minute)
	d.inspect(viewFrom("v1", "a1", "cc-3"))
	d.inspect(viewFrom("v1", "a1", "cc-4"))

	// cc-1 and cc-2 aged out, so only three contexts are live.
	if len(alerter.got) != 0 {
		t.Errorf("alerts = %d, want 0 after stale contexts expired", len(alerter.got))
	}
}

func TestViolationEventsAreNotInputs(t *testing.T) {
	d, alerter, _ := newTestDetector(t, nil)

	for i := 1; i <= 10; i++ {
		e := viewFrom("v1", "a1", fmt.Sprintf("cc-%d", i))
		e.Type = model.EventViolation
		e.Reason = model.ReasonViewLimitExceeded
		d.inspect(e)
	}
	if len(alerter.got) != 0 {
		t.Errorf("detector fed on violation events: %d alerts", len(alerter.got))
	}
}

func TestAuditDownloadAgainstCurrentPolicy(t *testing.T) {
	blocked := &model.ProtectionPolicy{AssetID: "a1", DownloadProtection: true}
	lookup := func(assetID string) (*model.ProtectionPolicy, error) {
		switch assetID {
		case "a1":
			return blocked, nil
		case "a2":
			return nil, nil
		default:
			return nil, errors.New("lookup failed")
		}
	}
	d, alerter, _ := newTestDetector(t, lookup)

	e := model.ViewEvent{AssetID: "a1", ViewerID: "v1", Type: model.EventDownloadAttempt}
	d.inspect(e)
	if len(alerter.got) != 1 || alerter.got[0].Reason != model.ReasonDownloadBlocked {
		t.Fatalf("alerts = %+v, want one download_blocked", alerter.got)
	}

	// Unprotected asset and lookup errors never flag.
	d.inspect(model.ViewEvent{AssetID: "a2", ViewerID: "v1", Type: model.EventDownloadAttempt})
	d.inspect(model.ViewEvent{AssetID: "a3", ViewerID: "v1", Type: model.EventDownloadAttempt})
	if len(alerter.got) != 1 {
		t.Errorf("alerts = %d, want 1", len(alerter.got))
	}
}

func TestStartConsumesHub(t *testing.T) {
	hub := ledger.NewHub()
	alertCh := make(chan model.ViewEvent, 8)
	chanAlerter := alertFunc(func(e model.ViewEvent) { alertCh <- e })

	appender := ledger.NewAppender(nil, ledger.NewHub(), slog.Default(), 256)
	d := New(appender, nil, chanAlerter, slog.Default(), 1, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start subscribes before it returns, so these publishes cannot be
	// missed.
	d.Start(ctx, hub)
	hub.Publish(viewFrom("v1", "a1", "cc-1"))
	hub.Publish(viewFrom("v1", "a1", "cc-2"))

	select {
	case v := <-alertCh:
		if v.Reason != model.ReasonCredentialSharing {
			t.Errorf("reason = %s", v.Reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert from hub-fed detector")
	}
}

type alertFunc func(model.ViewEvent)

func (f alertFunc) ViolationDetected(e model.ViewEvent) { f(e) }
