package gateway

import (
	"log/slog"
	"testing"
	"time"

	contentguard "github.com/ypk/contentguard"
	"github.com/ypk/contentguard/internal/db"
	"github.com/ypk/contentguard/internal/ledger"
	"github.com/ypk/contentguard/internal/model"
	"github.com/ypk/contentguard/internal/token"
)

// Pins down the boundary: a request at the expiry instant itself is
// still admitted, one nanosecond later is not.
func TestExpiryBoundaryIsInclusive(t *testing.T) {
	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database, contentguard.MigrationFS); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	appender := ledger.NewAppender(database, ledger.NewHub(), slog.Default(), 64)
	appender.Start()
	t.Cleanup(appender.Stop)

	signer := token.NewSigner("test-secret", 10*time.Minute)
	gw := New(database, signer, appender, slog.Default(), 64, time.Millisecond)

	a := &model.ContentAsset{
		ID:         "asset-exp",
		Filename:   "asset-exp.jpg",
		FileType:   "image",
		StorageRef: "objects/asset-exp.jpg",
	}
	if err := db.CreateAsset(database, a); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := db.UpsertPolicy(database, &model.ProtectionPolicy{
		AssetID:   a.ID,
		ExpiresAt: &expiry,
	}); err != nil {
		t.Fatalf("upsert policy: %v", err)
	}

	req := Request{Asset: a, ViewerID: "viewer-1", Action: model.ActionView, ClientContext: "ctx-1"}

	gw.now = func() time.Time { return expiry }
	if d := gw.Evaluate(req); !d.Allowed {
		t.Errorf("at expiry instant: denied with %s, want allow", d.Reason)
	}

	gw.Invalidate(a.ID)
	gw.now = func() time.Time { return expiry.Add(time.Nanosecond) }
	d := gw.Evaluate(req)
	if d.Allowed || d.Reason != model.ReasonExpired {
		t.Errorf("past expiry: decision = %+v, want expired deny", d)
	}
}
