package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/ypk/contentguard/internal/model"
)

func CreateWebhook(database *sql.DB, w *model.Webhook) error {
	_, err := database.Exec(
		`INSERT INTO webhooks (id, url, secret, events, enabled) VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.URL, w.Secret, w.Events, w.Enabled,
	)
	return err
}

func DeleteWebhook(database *sql.DB, id string) error {
	_, err := database.Exec(`DELETE FROM webhooks WHERE id = ?`, id)
	return err
}

func GetWebhookByID(database *sql.DB, id string) (*model.Webhook, error) {
	w := &model.Webhook{}
	var createdAt SQLiteTime
	err := database.QueryRow(
		`SELECT id, url, secret, events, enabled, created_at FROM webhooks WHERE id = ?`, id,
	).Scan(&w.ID, &w.URL, &w.Secret, &w.Events, &w.Enabled, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.CreatedAt = createdAt.Time
	return w, nil
}

func ListWebhooks(database *sql.DB) ([]model.Webhook, error) {
	rows, err := database.Query(`SELECT id, url, secret, events, enabled, created_at FROM webhooks ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hooks []model.Webhook
	for rows.Next() {
		var w model.Webhook
		var createdAt SQLiteTime
		if err := rows.Scan(&w.ID, &w.URL, &w.Secret, &w.Events, &w.Enabled, &createdAt); err != nil {
			return nil, err
		}
		w.CreatedAt = createdAt.Time
		hooks = append(hooks, w)
	}
	return hooks, rows.Err()
}

// ListEnabledWebhooks returns enabled webhooks subscribed to eventType.
// Events is a comma-separated list; "*" subscribes to everything.
func ListEnabledWebhooks(database *sql.DB, eventType string) ([]model.Webhook, error) {
	hooks, err := ListWebhooks(database)
	if err != nil {
		return nil, err
	}
	var matched []model.Webhook
	for _, w := range hooks {
		if !w.Enabled {
			continue
		}
		for _, ev := range strings.Split(w.Events, ",") {
			ev = strings.TrimSpace(ev)
			if ev == "*" || ev == eventType {
				matched = append(matched, w)
				break
			}
		}
	}
	return matched, nil
}

func CreateWebhookDelivery(database *sql.DB, d *model.WebhookDelivery) error {
	var nextRetry *string
	if d.NextRetryAt != nil {
		s := d.NextRetryAt.UTC().Format(time.RFC3339)
		nextRetry = &s
	}
	_, err := database.Exec(`
		INSERT INTO webhook_deliveries (id, webhook_id, event_type, event_id, payload_json, attempt_number, state, next_retry_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.WebhookID, d.EventType, d.EventID, d.PayloadJSON, d.AttemptNumber, d.State, nextRetry,
	)
	return err
}

func UpdateWebhookDelivery(database *sql.DB, d *model.WebhookDelivery) error {
	var nextRetry, delivered *string
	if d.NextRetryAt != nil {
		s := d.NextRetryAt.UTC().Format(time.RFC3339)
		nextRetry = &s
	}
	if d.DeliveredAt != nil {
		s := d.DeliveredAt.UTC().Format(time.RFC3339)
		delivered = &s
	}
	_, err := database.Exec(`
		UPDATE webhook_deliveries
		SET attempt_number = ?, response_status = ?, error_message = ?, state = ?, next_retry_at = ?, delivered_at = ?
		WHERE id = ?`,
		d.AttemptNumber, d.ResponseStatus, d.ErrorMessage, d.State, nextRetry, delivered, d.ID,
	)
	return err
}

func ListDueWebhookDeliveries(database *sql.DB, now time.Time) ([]model.WebhookDelivery, error) {
	rows, err := database.Query(`
		SELECT id, webhook_id, event_type, event_id, payload_json, attempt_number,
		  response_status, error_message, state, next_retry_at, created_at
		FROM webhook_deliveries
		WHERE state IN ('pending', 'failed') AND next_retry_at IS NOT NULL AND next_retry_at <= ?
		ORDER BY next_retry_at ASC
		LIMIT 50`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []model.WebhookDelivery
	for rows.Next() {
		var d model.WebhookDelivery
		var nextRetry *string
		var createdAt SQLiteTime
		if err := rows.Scan(&d.ID, &d.WebhookID, &d.EventType, &d.EventID, &d.PayloadJSON,
			&d.AttemptNumber, &d.ResponseStatus, &d.ErrorMessage, &d.State, &nextRetry, &createdAt); err != nil {
			return nil, err
		}
		if nextRetry != nil {
			t, _ := time.Parse(time.RFC3339, *nextRetry)
			d.NextRetryAt = &t
		}
		d.CreatedAt = createdAt.Time
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func PruneOldWebhookDeliveries(database *sql.DB, cutoff time.Time) (int64, error) {
	res, err := database.Exec(
		`DELETE FROM webhook_deliveries WHERE created_at < ? AND state IN ('delivered', 'exhausted')`,
		cutoff.UTC().Format("2006-01-02T15:04:05.000Z"),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
