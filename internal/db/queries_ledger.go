package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ypk/contentguard/internal/model"
)

// AppendEvent inserts one ledger row, allocating the next per-asset
// sequence number from ledger_seq in the same transaction. The allocator
// table survives archival, so sequence numbers never repeat for an asset.
// The event's Seq and CreatedAt are filled in on success.
func AppendEvent(database *sql.DB, e *model.ViewEvent) error {
	tx, err := database.Begin()
	if err != nil {
		return err
	}

	var seq int64
	err = tx.QueryRow(`
		INSERT INTO ledger_seq (asset_id, next) VALUES (?, 2)
		ON CONFLICT(asset_id) DO UPDATE SET next = next + 1
		RETURNING next - 1`, e.AssetID,
	).Scan(&seq)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("allocate seq: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(`
		INSERT INTO view_events (id, asset_id, seq, viewer_id, event_type, reason, client_context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AssetID, seq, e.ViewerID, string(e.Type), string(e.Reason),
		e.ClientContext, now.Format("2006-01-02T15:04:05.000Z"),
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	e.Seq = seq
	e.CreatedAt = now
	return nil
}

func scanEvents(rows *sql.Rows) ([]model.ViewEvent, error) {
	var events []model.ViewEvent
	for rows.Next() {
		var e model.ViewEvent
		var typ, reason string
		var createdAt SQLiteTime
		if err := rows.Scan(&e.ID, &e.AssetID, &e.Seq, &e.ViewerID,
			&typ, &reason, &e.ClientContext, &createdAt); err != nil {
			return nil, err
		}
		e.Type = model.EventType(typ)
		e.Reason = model.ReasonCode(reason)
		e.CreatedAt = createdAt.Time
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListRecentEvents returns the newest events across all assets, newest
// first. Backs the activity log endpoint.
func ListRecentEvents(database *sql.DB, limit int) ([]model.ViewEvent, error) {
	rows, err := database.Query(`
		SELECT id, asset_id, seq, viewer_id, event_type, reason, client_context, created_at
		FROM view_events
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// StreamAllEvents walks the full ledger in insertion order, calling fn for
// each event. Only the aggregator's cold-start rebuild uses this; steady
// state never rescans the ledger.
func StreamAllEvents(database *sql.DB, fn func(model.ViewEvent) error) error {
	rows, err := database.Query(`
		SELECT id, asset_id, seq, viewer_id, event_type, reason, client_context, created_at
		FROM view_events
		ORDER BY created_at ASC, asset_id ASC, seq ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e model.ViewEvent
		var typ, reason string
		var createdAt SQLiteTime
		if err := rows.Scan(&e.ID, &e.AssetID, &e.Seq, &e.ViewerID,
			&typ, &reason, &e.ClientContext, &createdAt); err != nil {
			return err
		}
		e.Type = model.EventType(typ)
		e.Reason = model.ReasonCode(reason)
		e.CreatedAt = createdAt.Time
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ArchiveEventsBefore moves ledger rows older than cutoff into the archive
// table. Archival is the only operation that removes rows from view_events.
func ArchiveEventsBefore(database *sql.DB, cutoff time.Time) (int64, error) {
	cut := cutoff.UTC().Format("2006-01-02T15:04:05.000Z")

	tx, err := database.Begin()
	if err != nil {
		return 0, err
	}

	res, err := tx.Exec(`
		INSERT INTO view_events_archive (id, asset_id, seq, viewer_id, event_type, reason, client_context, created_at)
		SELECT id, asset_id, seq, viewer_id, event_type, reason, client_context, created_at
		FROM view_events WHERE created_at < ?`, cut)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	moved, _ := res.RowsAffected()

	if _, err := tx.Exec(`DELETE FROM view_events WHERE created_at < ?`, cut); err != nil {
		tx.Rollback()
		return 0, err
	}

	return moved, tx.Commit()
}
