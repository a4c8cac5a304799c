package ingest

import (
	"database/sql"
	"time"

	"github.com/teranos/trendspark/errors"
	"github.com/teranos/trendspark/internal/util"
)

const timeLayout = time.RFC3339

// AuditStore persists per-item ingestion audit rows
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates an ingestion audit store
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Record appends one audit row for an ingested item.
func (s *AuditStore) Record(cycleID, source, platform, postID, author string, itemCreatedAt time.Time, summary string) error {
	_, err := s.db.Exec(`
		INSERT INTO ingest_audit (cycle_id, source, platform, post_id, author, fetched_at, item_created_at, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cycleID, source, platform,
		sql.NullString{String: postID, Valid: postID != ""},
		sql.NullString{String: author, Valid: author != ""},
		time.Now().UTC().Format(timeLayout),
		sql.NullString{String: itemCreatedAt.UTC().Format(timeLayout), Valid: !itemCreatedAt.IsZero()},
		sql.NullString{String: util.Truncate(summary, 200), Valid: summary != ""},
	)
	return errors.Wrap(err, "failed to record ingest audit row")
}

// CountForCycle returns the number of audit rows for one cycle.
func (s *AuditStore) CountForCycle(cycleID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM ingest_audit WHERE cycle_id = ?`, cycleID).Scan(&n)
	return n, errors.Wrap(err, "failed to count ingest audit rows")
}
