package db

import (
	"database/sql"

	"github.com/ypk/contentguard/internal/model"
)

func CreateAsset(database *sql.DB, a *model.ContentAsset) error {
	_, err := database.Exec(
		`INSERT INTO content_assets (id, campaign_id, filename, file_type, size_bytes, storage_ref)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.CampaignID, a.Filename, a.FileType, a.SizeBytes, a.StorageRef,
	)
	return err
}

func GetAsset(database *sql.DB, id string) (*model.ContentAsset, error) {
	a := &model.ContentAsset{}
	var createdAt SQLiteTime
	err := database.QueryRow(
		`SELECT id, campaign_id, filename, file_type, size_bytes, storage_ref, created_at
		 FROM content_assets WHERE id = ?`, id,
	).Scan(&a.ID, &a.CampaignID, &a.Filename, &a.FileType, &a.SizeBytes, &a.StorageRef, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt = createdAt.Time
	return a, nil
}

func DeleteAsset(database *sql.DB, id string) error {
	_, err := database.Exec(`DELETE FROM content_assets WHERE id = ?`, id)
	return err
}

// ListAssets returns assets optionally narrowed by a filename/campaign
// search term. Protection filtering happens in the handler, which has the
// analytics needed for the high-risk filter.
func ListAssets(database *sql.DB, search string) ([]model.ContentAsset, error) {
	query := `SELECT id, campaign_id, filename, file_type, size_bytes, storage_ref, created_at
	          FROM content_assets`
	args := []interface{}{}
	if search != "" {
		query += ` WHERE filename LIKE ? OR campaign_id LIKE ?`
		like := "%" + search + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := database.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []model.ContentAsset
	for rows.Next() {
		var a model.ContentAsset
		var createdAt SQLiteTime
		if err := rows.Scan(&a.ID, &a.CampaignID, &a.Filename, &a.FileType,
			&a.SizeBytes, &a.StorageRef, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = createdAt.Time
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func CountAssets(database *sql.DB) (total, protected int64, err error) {
	err = database.QueryRow(`
		SELECT
		  (SELECT COUNT(*) FROM content_assets),
		  (SELECT COUNT(*) FROM protection_policies)`,
	).Scan(&total, &protected)
	return
}
