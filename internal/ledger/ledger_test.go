package ledger_test

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	contentguard "github.com/ypk/contentguard"
	"github.com/ypk/contentguard/internal/db"
	"github.com/ypk/contentguard/internal/ledger"
	"github.com/ypk/contentguard/internal/model"
)

func TestHubFanOut(t *testing.T) {
	hub := ledger.NewHub()
	ch1, unsub1 := hub.Subscribe()
	ch2, unsub2 := hub.Subscribe()
	defer unsub1()
	defer unsub2()

	hub.Publish(model.ViewEvent{ID: "e1", AssetID: "a1", Type: model.EventView})

	for i, ch := range []<-chan model.ViewEvent{ch1, ch2} {
		select {
		case e := <-ch:
			if e.ID != "e1" {
				t.Errorf("subscriber %d got %q", i, e.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := ledger.NewHub()
	ch, unsub := hub.Subscribe()
	unsub()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("channel delivered after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed by unsubscribe")
	}

	// Publishing with no subscribers is a no-op.
	hub.Publish(model.ViewEvent{ID: "e1"})
	unsub() // idempotent
}

func TestHubSlowSubscriberMissesInsteadOfBlocking(t *testing.T) {
	hub := ledger.NewHub()
	ch, unsub := hub.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		// Overflow the subscriber buffer; Publish must never block.
		for i := 0; i < 500; i++ {
			hub.Publish(model.ViewEvent{ID: fmt.Sprintf("e%d", i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	if len(ch) == 0 {
		t.Error("subscriber buffer empty, expected some delivered events")
	}
}

func TestAppenderPersistsAndPublishes(t *testing.T) {
	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database, contentguard.MigrationFS); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	hub := ledger.NewHub()
	ch, unsub := hub.Subscribe()
	defer unsub()

	appender := ledger.NewAppender(database, hub, slog.Default(), 64)
	appender.Start()

	ok := appender.Record(model.ViewEvent{AssetID: "a1", ViewerID: "v1", Type: model.EventView})
	if !ok {
		t.Fatal("record rejected with empty buffer")
	}

	select {
	case e := <-ch:
		if e.ID == "" {
			t.Error("published event missing ID")
		}
		if e.Seq != 1 {
			t.Errorf("seq = %d, want 1", e.Seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not published")
	}

	appender.Stop()

	events, err := db.ListRecentEvents(database, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].AssetID != "a1" {
		t.Fatalf("persisted events = %+v", events)
	}
}

func TestAppenderStopDrainsBuffer(t *testing.T) {
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
	for i := 0; i < 10; i++ {
		appender.Record(model.ViewEvent{AssetID: "a1", ViewerID: "v1", Type: model.EventView})
	}
	appender.Stop()

	events, err := db.ListRecentEvents(database, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 10 {
		t.Errorf("persisted = %d, want all 10 after Stop", len(events))
	}
}

func TestRecordFullBufferDrops(t *testing.T) {
	// Never started, so the buffer only drains by capacity.
	appender := ledger.NewAppender(nil, ledger.NewHub(), slog.Default(), 2)

	if !appender.Record(model.ViewEvent{AssetID: "a1"}) {
		t.Fatal("first record rejected")
	}
	if !appender.Record(model.ViewEvent{AssetID: "a1"}) {
		t.Fatal("second record rejected")
	}
	if appender.Record(model.ViewEvent{AssetID: "a1"}) {
		t.Error("record accepted past buffer capacity")
	}
}
