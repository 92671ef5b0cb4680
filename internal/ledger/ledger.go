package ledger

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ypk/contentguard/internal/db"
	"github.com/ypk/contentguard/internal/metrics"
	"github.com/ypk/contentguard/internal/model"
)

// appendRetries is the backoff schedule for a failed ledger insert.
// sqlite in WAL mode with a single connection rarely fails, but a busy
// error on a slow disk is worth a couple of retries.
var appendRetries = []time.Duration{50 * time.Millisecond, 250 * time.Millisecond, time.Second}

// Appender persists view events asynchronously. Record never blocks the
// request path: events flow through a buffered channel to a single
// writer goroutine that assigns sequence numbers and publishes accepted
// events to the hub. A full buffer drops the event and counts it.
type Appender struct {
	db     *sql.DB
	hub    *Hub
	log    *slog.Logger
	events chan model.ViewEvent

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAppender(database *sql.DB, hub *Hub, log *slog.Logger, depth int) *Appender {
	if depth <= 0 {
		depth = 1024
	}
	return &Appender{
		db:     database,
		hub:    hub,
		log:    log,
		events: make(chan model.ViewEvent, depth),
	}
}

func (a *Appender) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go a.run(ctx)
}

// Stop drains buffered events before returning.
func (a *Appender) Stop() {
	a.cancel()
	a.wg.Wait()
}

// Record enqueues an event for persistence. It fills the event ID if
// unset and returns false when the buffer is full.
func (a *Appender) Record(e model.ViewEvent) bool {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	select {
	case a.events <- e:
		return true
	default:
		metrics.EventsDropped.Inc()
		a.log.Warn("ledger buffer full, event dropped",
			"asset_id", e.AssetID, "type", e.Type)
		return false
	}
}

func (a *Appender) run(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case e := <-a.events:
			a.append(e)
		case <-ctx.Done():
			// drain what is already buffered
			for {
				select {
				case e := <-a.events:
					a.append(e)
				default:
					return
				}
			}
		}
	}
}

func (a *Appender) append(e model.ViewEvent) {
	var err error
	for attempt := 0; ; attempt++ {
		err = db.AppendEvent(a.db, &e)
		if err == nil {
			break
		}
		if attempt >= len(appendRetries) {
			metrics.EventsDropped.Inc()
			a.log.Error("ledger append failed, event lost",
				"asset_id", e.AssetID, "type", e.Type, "error", err)
			return
		}
		time.Sleep(appendRetries[attempt])
	}
	metrics.EventsAppended.Inc()
	if e.Type == model.EventViolation {
		metrics.ViolationsTotal.WithLabelValues(string(e.Reason)).Inc()
	}
	a.hub.Publish(e)
}
