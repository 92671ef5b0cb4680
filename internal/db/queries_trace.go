package db

import "database/sql"

// InsertWatermarkIndex records which viewer's copy carries a given
// invisible payload.
func InsertWatermarkIndex(database *sql.DB, payloadHex, viewerHash, assetID, viewerID, grantID, algorithm string) error {
	_, err := database.Exec(`
		INSERT INTO watermark_index (payload_hex, viewer_hash, asset_id, viewer_id, grant_id, algorithm)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(payload_hex) DO NOTHING`,
		payloadHex, viewerHash, assetID, viewerID, grantID, algorithm,
	)
	return err
}

// LookupWatermarkIndex resolves an exact viewer-hash match from a payload
// that passed its CRC check.
func LookupWatermarkIndex(database *sql.DB, viewerHash string) (assetID, viewerID, grantID string, err error) {
	err = database.QueryRow(`
		SELECT asset_id, viewer_id, grant_id FROM watermark_index
		WHERE viewer_hash = ?
		ORDER BY created_at DESC LIMIT 1`, viewerHash,
	).Scan(&assetID, &viewerID, &grantID)
	if err == sql.ErrNoRows {
		return "", "", "", nil
	}
	return
}

// LookupWatermarkIndexFuzzy finds the closest viewer hash within maxDiff
// differing hex characters. Fallback for payloads damaged by JPEG
// re-compression, where a handful of bit errors is expected.
func LookupWatermarkIndexFuzzy(database *sql.DB, viewerHash string, maxDiff int) (assetID, viewerID, grantID string, diff int, err error) {
	rows, err := database.Query(`SELECT viewer_hash, asset_id, viewer_id, grant_id FROM watermark_index`)
	if err != nil {
		return "", "", "", 0, err
	}
	defer rows.Close()

	best := maxDiff + 1
	for rows.Next() {
		var hash, aID, vID, gID string
		if err := rows.Scan(&hash, &aID, &vID, &gID); err != nil {
			return "", "", "", 0, err
		}
		d := hexCharDiff(viewerHash, hash)
		if d < best {
			best = d
			assetID, viewerID, grantID = aID, vID, gID
		}
	}
	if err := rows.Err(); err != nil {
		return "", "", "", 0, err
	}
	if best > maxDiff {
		return "", "", "", 0, nil
	}
	return assetID, viewerID, grantID, best, nil
}

func hexCharDiff(a, b string) int {
	if len(a) != len(b) {
		return len(a) + len(b)
	}
	diff := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			diff++
		}
	}
	return diff
}
