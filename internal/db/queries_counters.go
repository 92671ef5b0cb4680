package db

import "database/sql"

// TryIncrementViewCount admits one view for (assetID, viewerID) if and only
// if fewer than maxViews have already been admitted. The check and the
// increment are a single conditional upsert, so two concurrent requests
// racing for the last remaining view cannot both be admitted.
func TryIncrementViewCount(database *sql.DB, assetID, viewerID string, maxViews uint) (admitted bool, count int64, err error) {
	err = database.QueryRow(`
		INSERT INTO view_counters (asset_id, viewer_id, count)
		VALUES (?, ?, 1)
		ON CONFLICT(asset_id, viewer_id) DO UPDATE
		SET count = count + 1
		WHERE view_counters.count < ?
		RETURNING count`,
		assetID, viewerID, maxViews,
	).Scan(&count)
	if err == sql.ErrNoRows {
		// The WHERE clause suppressed the update: limit already reached.
		return false, int64(maxViews), nil
	}
	if err != nil {
		return false, 0, err
	}
	return true, count, nil
}

// RollbackViewCount returns one admitted view. Used when a request was
// admitted by the counter but later failed before any bytes were served
// (compositor overload, storage failure), so the viewer's budget is not
// burned by a denial.
func RollbackViewCount(database *sql.DB, assetID, viewerID string) error {
	_, err := database.Exec(`
		UPDATE view_counters SET count = count - 1
		WHERE asset_id = ? AND viewer_id = ? AND count > 0`,
		assetID, viewerID,
	)
	return err
}

func GetViewCount(database *sql.DB, assetID, viewerID string) (int64, error) {
	var count int64
	err := database.QueryRow(
		`SELECT count FROM view_counters WHERE asset_id = ? AND viewer_id = ?`,
		assetID, viewerID,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

// PruneOrphanCounters removes counters for assets that no longer carry a
// policy. DeletePolicy already clears them transactionally; this is the
// cleanup scheduler's safety net.
func PruneOrphanCounters(database *sql.DB) (int64, error) {
	res, err := database.Exec(`
		DELETE FROM view_counters
		WHERE asset_id NOT IN (SELECT asset_id FROM protection_policies)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
