package registry

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

const defaultWebhookEventLimit = 100

// RecordWebhookEvent appends an entry to the webhook audit trail. The trail is
// observational; nothing reads it back to decide whether to apply an event.
func (r *SiteRegistry) RecordWebhookEvent(ctx context.Context, e *WebhookEvent) error {
	if e == nil {
		return fmt.Errorf("webhook event is nil")
	}
	now := time.Now().UTC()
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = now
	}
	if e.ID == "" {
		id, err := ulid.New(ulid.Timestamp(e.ReceivedAt), rand.Reader)
		if err != nil {
			return fmt.Errorf("generate webhook event id: %w", err)
		}
		e.ID = id.String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (
			id, event_id, event_type, customer_ref, site_key, outcome, event_created, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EventID, e.EventType, e.CustomerRef, e.SiteKey, e.Outcome,
		e.EventCreated.Unix(), e.ReceivedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}

// ListWebhookEvents returns the most recent audit entries, newest first.
// Entries received in the same second keep insertion order via rowid; ULIDs
// minted within one millisecond do not sort.
func (r *SiteRegistry) ListWebhookEvents(ctx context.Context, limit int) ([]*WebhookEvent, error) {
	if limit <= 0 {
		limit = defaultWebhookEventLimit
	}
	rows, err := r.db.QueryContext(ctx, `SELECT
		id, event_id, event_type, customer_ref, site_key, outcome, event_created, received_at
		FROM webhook_events ORDER BY received_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	defer rows.Close()

	var events []*WebhookEvent
	for rows.Next() {
		var e WebhookEvent
		var created, received int64
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.CustomerRef, &e.SiteKey, &e.Outcome, &created, &received); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		e.EventCreated = time.Unix(created, 0).UTC()
		e.ReceivedAt = time.Unix(received, 0).UTC()
		events = append(events, &e)
	}
	return events, rows.Err()
}
