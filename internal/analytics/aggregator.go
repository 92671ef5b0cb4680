package analytics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/ypk/contentguard/internal/db"
	"github.com/ypk/contentguard/internal/ledger"
	"github.com/ypk/contentguard/internal/model"
)

const shardCount = 16

// assetStats is the mutable per-asset rollup. viewers holds distinct
// viewer IDs seen on view events; lastAccessed only advances.
type assetStats struct {
	totalViews       int64
	downloadAttempts int64
	violations       int64
	viewers          map[string]struct{}
	lastAccessed     model.ViewEvent
	hasAccess        bool
}

type shard struct {
	mu     sync.Mutex
	assets map[string]*assetStats
}

// Aggregator maintains derived per-asset counters and a bounded window of
// recent activity. It is a pure function of the ledger: state can always
// be discarded and rebuilt from the event stream.
type Aggregator struct {
	shards [shardCount]*shard
	log    *slog.Logger

	recentMu   sync.Mutex
	recent     []model.ViewEvent
	recentCap  int
	recentNext int
	recentLen  int
}

func NewAggregator(log *slog.Logger, recentCap int) *Aggregator {
	if recentCap <= 0 {
		recentCap = 100
	}
	a := &Aggregator{log: log, recentCap: recentCap}
	a.recent = make([]model.ViewEvent, recentCap)
	for i := range a.shards {
		a.shards[i] = &shard{assets: make(map[string]*assetStats)}
	}
	return a
}

func (a *Aggregator) shardFor(assetID string) *shard {
	var h uint32 = 2166136261
	for i := 0; i < len(assetID); i++ {
		h ^= uint32(assetID[i])
		h *= 16777619
	}
	return a.shards[h%shardCount]
}

// Apply folds one event into the rollup.
func (a *Aggregator) Apply(e model.ViewEvent) {
	s := a.shardFor(e.AssetID)
	s.mu.Lock()
	st := s.assets[e.AssetID]
	if st == nil {
		st = &assetStats{viewers: make(map[string]struct{})}
		s.assets[e.AssetID] = st
	}
	switch e.Type {
	case model.EventView:
		st.totalViews++
		if e.ViewerID != "" {
			st.viewers[e.ViewerID] = struct{}{}
		}
	case model.EventDownloadAttempt:
		st.downloadAttempts++
		if e.ViewerID != "" {
			st.viewers[e.ViewerID] = struct{}{}
		}
	case model.EventViolation:
		st.violations++
	}
	if !st.hasAccess || e.CreatedAt.After(st.lastAccessed.CreatedAt) {
		st.lastAccessed = e
		st.hasAccess = true
	}
	s.mu.Unlock()

	a.recentMu.Lock()
	a.recent[a.recentNext] = e
	a.recentNext = (a.recentNext + 1) % a.recentCap
	if a.recentLen < a.recentCap {
		a.recentLen++
	}
	a.recentMu.Unlock()
}

// AssetReport returns the rollup for one asset. Unknown assets yield a
// zero report.
func (a *Aggregator) AssetReport(assetID string) model.AssetReport {
	s := a.shardFor(assetID)
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.assets[assetID]
	if st == nil {
		return model.AssetReport{}
	}
	r := model.AssetReport{
		TotalViews:         st.totalViews,
		UniqueViewers:      int64(len(st.viewers)),
		DownloadAttempts:   st.downloadAttempts,
		SecurityViolations: st.violations,
	}
	if st.hasAccess {
		t := st.lastAccessed.CreatedAt
		r.LastAccessed = &t
	}
	return r
}

// Totals returns the system-wide view and violation counts plus the
// number of assets with at least one violation.
func (a *Aggregator) Totals() (views, violations, assetsWithViolations int64) {
	for _, s := range a.shards {
		s.mu.Lock()
		for _, st := range s.assets {
			views += st.totalViews
			violations += st.violations
			if st.violations > 0 {
				assetsWithViolations++
			}
		}
		s.mu.Unlock()
	}
	return views, violations, assetsWithViolations
}

// Recent returns up to limit of the newest applied events, newest first.
func (a *Aggregator) Recent(limit int) []model.ViewEvent {
	a.recentMu.Lock()
	defer a.recentMu.Unlock()

	if limit <= 0 || limit > a.recentLen {
		limit = a.recentLen
	}
	out := make([]model.ViewEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (a.recentNext - i + a.recentCap) % a.recentCap
		out = append(out, a.recent[idx])
	}
	return out
}

// RebuildFrom replays the persisted ledger into a fresh rollup. Called
// once at startup before the hub subscription begins.
func (a *Aggregator) RebuildFrom(database *sql.DB) error {
	n := 0
	err := db.StreamAllEvents(database, func(e model.ViewEvent) error {
		a.Apply(e)
		n++
		return nil
	})
	if err != nil {
		return err
	}
	a.log.Info("analytics rebuilt from ledger", "events", n)
	return nil
}

// Start subscribes to the hub and consumes it until ctx is cancelled.
// The subscription is taken before Start returns, so events published
// after the call are never missed.
func (a *Aggregator) Start(ctx context.Context, hub *ledger.Hub) {
	events, unsub := hub.Subscribe()
	go func() {
		defer unsub()
		for {
			select {
			case e, ok := <-events:
				if !ok {
					return
				}
				a.Apply(e)
			case <-ctx.Done():
				return
			}
		}
	}()
}
