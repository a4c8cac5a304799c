package replies

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/trendspark/errors"
)

// IdeaStore persists daily content ideas, one row per calendar day.
type IdeaStore struct {
	db *sql.DB
}

// NewIdeaStore creates an idea store
func NewIdeaStore(db *sql.DB) *IdeaStore {
	return &IdeaStore{db: db}
}

// DayKey formats a time as the per-day uniqueness key.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Exists reports whether ideas were already generated for the day.
func (s *IdeaStore) Exists(day string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM ideas WHERE created_day = ?`, day).Scan(&n)
	return n > 0, errors.Wrap(err, "failed to check ideas for day")
}

// Save stores the day's ideas. A second save for the same day fails on the
// unique index, preserving idempotency under concurrent runs.
func (s *IdeaStore) Save(day string, ideas []string) error {
	b, err := json.Marshal(ideas)
	if err != nil {
		return errors.Wrap(err, "failed to marshal ideas")
	}
	_, err = s.db.Exec(`
		INSERT INTO ideas (created_day, ideas, generated_at) VALUES (?, ?, ?)
	`, day, string(b), time.Now().UTC().Format(time.RFC3339))
	return errors.Wrap(err, "failed to save ideas")
}

// Get returns the ideas generated for a day, or ErrNotFound.
func (s *IdeaStore) Get(day string) ([]string, error) {
	var raw string
	err := s.db.QueryRow(`SELECT ideas FROM ideas WHERE created_day = ?`, day).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "no ideas for %s", day)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get ideas")
	}

	var ideas []string
	if err := json.Unmarshal([]byte(raw), &ideas); err != nil {
		return nil, errors.Wrap(err, "invalid ideas JSON")
	}
	return ideas, nil
}
