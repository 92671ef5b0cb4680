// Package cleanup runs the periodic housekeeping pass: ledger archival,
// orphaned counter pruning and webhook delivery retention.
package cleanup

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ypk/contentguard/internal/db"
)

type Cleaner struct {
	DB            *sql.DB
	DataDir       string
	Interval      time.Duration
	RetentionDays int
	cancel        context.CancelFunc
	done          chan struct{}
}

func (c *Cleaner) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx)
	slog.Info("cleanup scheduler started",
		"interval", c.Interval, "retention_days", c.RetentionDays)
}

func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	slog.Info("cleanup scheduler stopped")
}

func (c *Cleaner) loop(ctx context.Context) {
	defer close(c.done)

	c.runOnce()

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runOnce()
		}
	}
}

func (c *Cleaner) runOnce() {
	cutoff := time.Now().AddDate(0, 0, -c.RetentionDays)

	if n, err := db.ArchiveEventsBefore(c.DB, cutoff); err != nil {
		slog.Error("cleanup: archive ledger events", "error", err)
	} else if n > 0 {
		slog.Info("cleanup: archived ledger events", "count", n, "cutoff", cutoff)
	}

	if n, err := db.PruneOrphanCounters(c.DB); err != nil {
		slog.Error("cleanup: prune orphan counters", "error", err)
	} else if n > 0 {
		slog.Info("cleanup: pruned orphan view counters", "count", n)
	}

	if n, err := db.PruneOldWebhookDeliveries(c.DB, cutoff); err != nil {
		slog.Error("cleanup: prune webhook deliveries", "error", err)
	} else if n > 0 {
		slog.Info("cleanup: pruned old webhook deliveries", "count", n)
	}

	c.pruneStaleStamps(cutoff)
}

// pruneStaleStamps removes stamped output files older than the retention
// cutoff. The compositor regenerates them on demand.
func (c *Cleaner) pruneStaleStamps(cutoff time.Time) {
	root := filepath.Join(c.DataDir, "stamped")
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(path); rmErr != nil {
				slog.Warn("cleanup: remove stale stamp", "path", path, "error", rmErr)
			}
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("cleanup: walk stamped dir", "error", err)
	}
}
