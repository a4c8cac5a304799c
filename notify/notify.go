// Package notify delivers outbound operator notifications and keeps an
// audit trail of every delivery.
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/trendspark/errors"
)

// Sender delivers one message on a channel. Implementations absorb their
// own failures and report success as a bool; the caller treats false as
// degradation, never as an error.
type Sender interface {
	Send(ctx context.Context, message, category string, payload map[string]any) bool
}

// Notification is one audited delivery.
type Notification struct {
	ID        int64
	CreatedAt time.Time
	Channel   string
	Category  string
	Message   string
	Payload   map[string]any
}

const timeLayout = time.RFC3339

// Store persists the notifications audit trail
type Store struct {
	db *sql.DB
}

// NewStore creates a notification store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record appends one notification row.
func (s *Store) Record(channel, category, message string, payload map[string]any) error {
	var payloadJSON sql.NullString
	if len(payload) > 0 {
		b, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "failed to marshal notification payload")
		}
		payloadJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO notifications (created_at, channel, category, message, payload)
		VALUES (?, ?, ?, ?, ?)
	`,
		time.Now().UTC().Format(timeLayout),
		channel,
		sql.NullString{String: category, Valid: category != ""},
		message,
		payloadJSON,
	)
	return errors.Wrap(err, "failed to record notification")
}

// Recent returns the newest notifications, most recent first.
func (s *Store) Recent(limit int) ([]*Notification, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, channel, category, message, payload
		FROM notifications
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query notifications")
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		var createdAt string
		var category, payload sql.NullString
		if err := rows.Scan(&n.ID, &createdAt, &n.Channel, &category, &n.Message, &payload); err != nil {
			return nil, errors.Wrap(err, "failed to scan notification")
		}
		n.Category = category.String
		if n.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, errors.Wrap(err, "invalid created_at")
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &n.Payload); err != nil {
				return nil, errors.Wrap(err, "invalid payload JSON")
			}
		}
		out = append(out, &n)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate notifications")
}

// NopSender discards messages; used when no channel is configured.
type NopSender struct{}

// Send always reports success.
func (NopSender) Send(context.Context, string, string, map[string]any) bool {
	return true
}
