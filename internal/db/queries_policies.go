package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ypk/contentguard/internal/model"
)

// UpsertPolicy writes the policy for an asset, creating or replacing it in
// place. The caller validates the policy first.
func UpsertPolicy(database *sql.DB, p *model.ProtectionPolicy) error {
	var expiresAt *string
	if p.ExpiresAt != nil {
		s := p.ExpiresAt.UTC().Format(time.RFC3339)
		expiresAt = &s
	}
	var allowed *string
	if len(p.AllowedViewerIDs) > 0 {
		data, err := json.Marshal(p.AllowedViewerIDs)
		if err != nil {
			return fmt.Errorf("marshal allowed viewers: %w", err)
		}
		s := string(data)
		allowed = &s
	}

	_, err := database.Exec(`
		INSERT INTO protection_policies (
			asset_id, watermark_enabled, watermark_template, watermark_position,
			watermark_opacity, watermark_font_px, watermark_color, watermark_rotation,
			download_protection, view_tracking, max_views, expires_at, allowed_viewers
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
			watermark_enabled = excluded.watermark_enabled,
			watermark_template = excluded.watermark_template,
			watermark_position = excluded.watermark_position,
			watermark_opacity = excluded.watermark_opacity,
			watermark_font_px = excluded.watermark_font_px,
			watermark_color = excluded.watermark_color,
			watermark_rotation = excluded.watermark_rotation,
			download_protection = excluded.download_protection,
			view_tracking = excluded.view_tracking,
			max_views = excluded.max_views,
			expires_at = excluded.expires_at,
			allowed_viewers = excluded.allowed_viewers,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		p.AssetID, p.Watermark.Enabled, p.Watermark.TextTemplate, p.Watermark.Position,
		p.Watermark.Opacity, p.Watermark.FontSizePx, p.Watermark.ColorHex, p.Watermark.RotationDegrees,
		p.DownloadProtection, p.ViewTracking, p.MaxViews, expiresAt, allowed,
	)
	return err
}

func GetPolicy(database *sql.DB, assetID string) (*model.ProtectionPolicy, error) {
	p := &model.ProtectionPolicy{AssetID: assetID}
	var maxViews sql.NullInt64
	var expiresAt, allowed *string
	var createdAt, updatedAt SQLiteTime
	err := database.QueryRow(`
		SELECT watermark_enabled, watermark_template, watermark_position,
		  watermark_opacity, watermark_font_px, watermark_color, watermark_rotation,
		  download_protection, view_tracking, max_views, expires_at, allowed_viewers,
		  created_at, updated_at
		FROM protection_policies WHERE asset_id = ?`, assetID,
	).Scan(&p.Watermark.Enabled, &p.Watermark.TextTemplate, &p.Watermark.Position,
		&p.Watermark.Opacity, &p.Watermark.FontSizePx, &p.Watermark.ColorHex,
		&p.Watermark.RotationDegrees, &p.DownloadProtection, &p.ViewTracking,
		&maxViews, &expiresAt, &allowed, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if maxViews.Valid {
		v := uint(maxViews.Int64)
		p.MaxViews = &v
	}
	if expiresAt != nil {
		t, perr := time.Parse(time.RFC3339, *expiresAt)
		if perr != nil {
			return nil, fmt.Errorf("parse policy expiry: %w", perr)
		}
		p.ExpiresAt = &t
	}
	if allowed != nil {
		if uerr := json.Unmarshal([]byte(*allowed), &p.AllowedViewerIDs); uerr != nil {
			return nil, fmt.Errorf("unmarshal allowed viewers: %w", uerr)
		}
	}
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return p, nil
}

// DeletePolicy removes protection from an asset and clears its admission
// counters in the same transaction. Counters are scoped to the policy's
// lifetime: re-configuring protection starts from a fresh state.
func DeletePolicy(database *sql.DB, assetID string) error {
	tx, err := database.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM protection_policies WHERE asset_id = ?`, assetID); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM view_counters WHERE asset_id = ?`, assetID); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
