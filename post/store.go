package post

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/trendspark/errors"
)

// timeLayout is the canonical timestamp encoding; RFC3339 in UTC sorts
// lexicographically, so SQL range comparisons on the TEXT columns are valid.
const timeLayout = time.RFC3339

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store handles persistence of posts
type Store struct {
	db *sql.DB
	q  querier
}

// NewStore creates a new post store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// WithTx returns a view of the store bound to the given transaction. The
// ranking cycle uses it so a full pass reads and writes atomically.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: s.db, q: tx}
}

// DB exposes the underlying handle for callers that open transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

const selectColumns = `
	id, platform, post_id, author, url, text, created_at, collected_at,
	like_count, reply_count, repost_count, quote_count, view_count,
	virality_score, velocity_score, trending, trending_since,
	trending_candidate_since, last_alerted_at, last_alerted_virality,
	tones, reply_suggestions`

// Upsert inserts a post or, when (platform, post_id) already exists,
// refreshes its counters, text, url and collected_at. Scores and trending
// state are never touched here; only the ranking cycle writes those.
// Returns true when a new row was created.
func (s *Store) Upsert(p *Post) (bool, error) {
	var existingID int64
	err := s.q.QueryRow(`SELECT id FROM posts WHERE platform = ? AND post_id = ?`,
		p.Platform, p.PostID).Scan(&existingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, errors.Wrap(err, "failed to look up post")
	}

	if err == nil {
		_, err = s.q.Exec(`
			UPDATE posts
			SET author = ?, url = ?, text = ?, collected_at = ?,
			    like_count = ?, reply_count = ?, repost_count = ?,
			    quote_count = ?, view_count = ?
			WHERE id = ?
		`,
			p.Author, p.URL, p.Text, formatTime(p.CollectedAt),
			p.LikeCount, p.ReplyCount, p.RepostCount, p.QuoteCount, p.ViewCount,
			existingID,
		)
		if err != nil {
			return false, errors.Wrap(err, "failed to update post")
		}
		p.ID = existingID
		return false, nil
	}

	res, err := s.q.Exec(`
		INSERT INTO posts (
			platform, post_id, author, url, text, created_at, collected_at,
			like_count, reply_count, repost_count, quote_count, view_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.Platform, p.PostID, p.Author, p.URL, p.Text,
		formatTime(p.CreatedAt), formatTime(p.CollectedAt),
		p.LikeCount, p.ReplyCount, p.RepostCount, p.QuoteCount, p.ViewCount,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to insert post")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, errors.Wrap(err, "failed to read inserted post id")
	}
	p.ID = id
	return true, nil
}

// Get retrieves a post by internal id
func (s *Store) Get(id int64) (*Post, error) {
	row := s.q.QueryRow(`SELECT `+selectColumns+` FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "post %d", id)
	}
	return p, err
}

// GetByExternalID retrieves a post by its (platform, external id) key
func (s *Store) GetByExternalID(platform, postID string) (*Post, error) {
	row := s.q.QueryRow(`SELECT `+selectColumns+` FROM posts WHERE platform = ? AND post_id = ?`,
		platform, postID)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "post %s/%s", platform, postID)
	}
	return p, err
}

// ListSince returns the active post set for a ranking pass. A nil cutoff
// returns every post.
func (s *Store) ListSince(minCreatedAt *time.Time) ([]*Post, error) {
	query := `SELECT ` + selectColumns + ` FROM posts`
	var args []any
	if minCreatedAt != nil {
		query += ` WHERE created_at >= ?`
		args = append(args, formatTime(*minCreatedAt))
	}
	query += ` ORDER BY created_at DESC`

	return s.queryPosts(query, args...)
}

// UpdateRanking writes scores and trending state together, preserving the
// invariant that they are never independently stale.
func (s *Store) UpdateRanking(p *Post) error {
	_, err := s.q.Exec(`
		UPDATE posts
		SET virality_score = ?,
		    velocity_score = ?,
		    trending = ?,
		    trending_since = ?,
		    trending_candidate_since = ?
		WHERE id = ?
	`,
		p.ViralityScore, p.VelocityScore, boolToInt(p.Trending),
		nullTime(p.TrendingSince), nullTime(p.TrendingCandidateSince),
		p.ID,
	)
	return errors.Wrap(err, "failed to update post ranking")
}

// TopConversations returns posts ordered trending-first then by virality.
func (s *Store) TopConversations(limit int, minCreatedAt *time.Time) ([]*Post, error) {
	query := `SELECT ` + selectColumns + ` FROM posts`
	var args []any
	if minCreatedAt != nil {
		query += ` WHERE created_at >= ?`
		args = append(args, formatTime(*minCreatedAt))
	}
	query += ` ORDER BY trending DESC, virality_score DESC LIMIT ?`
	args = append(args, limit)

	return s.queryPosts(query, args...)
}

// TopTrending returns the top trending posts by virality within the
// lookback window, for alert selection.
func (s *Store) TopTrending(limit int, minCreatedAt time.Time) ([]*Post, error) {
	return s.queryPosts(`
		SELECT `+selectColumns+` FROM posts
		WHERE trending = 1 AND created_at >= ?
		ORDER BY virality_score DESC
		LIMIT ?
	`, formatTime(minCreatedAt), limit)
}

// FallbackCandidate returns the recent, never-alerted post with the highest
// raw engagement mix, or ErrNotFound when none exists.
func (s *Store) FallbackCandidate(minCreatedAt time.Time) (*Post, error) {
	row := s.q.QueryRow(`
		SELECT `+selectColumns+` FROM posts
		WHERE last_alerted_at IS NULL AND created_at >= ?
		ORDER BY (like_count + repost_count + reply_count) DESC
		LIMIT 1
	`, formatTime(minCreatedAt))
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(errors.ErrNotFound, "no fallback candidate")
	}
	return p, err
}

// MarkAlerted records that an alert was emitted for the post at the given
// virality.
func (s *Store) MarkAlerted(id int64, at time.Time, virality float64) error {
	_, err := s.q.Exec(`
		UPDATE posts SET last_alerted_at = ?, last_alerted_virality = ? WHERE id = ?
	`, formatTime(at), virality, id)
	return errors.Wrap(err, "failed to mark post alerted")
}

// SetReplySuggestions attaches generated reply drafts and their tones.
func (s *Store) SetReplySuggestions(id int64, suggestions []ReplySuggestion, tones []string) error {
	suggJSON, err := marshalSuggestions(suggestions)
	if err != nil {
		return errors.Wrap(err, "failed to marshal reply suggestions")
	}
	tonesJSON, err := marshalTones(tones)
	if err != nil {
		return errors.Wrap(err, "failed to marshal tones")
	}

	_, err = s.q.Exec(`UPDATE posts SET reply_suggestions = ?, tones = ? WHERE id = ?`,
		sql.NullString{String: suggJSON, Valid: suggJSON != ""},
		sql.NullString{String: tonesJSON, Valid: tonesJSON != ""},
		id)
	return errors.Wrap(err, "failed to set reply suggestions")
}

// ListMissingReplies returns trending posts without reply drafts, by
// virality descending.
func (s *Store) ListMissingReplies(limit int) ([]*Post, error) {
	return s.queryPosts(`
		SELECT `+selectColumns+` FROM posts
		WHERE trending = 1 AND (reply_suggestions IS NULL OR reply_suggestions = '')
		ORDER BY virality_score DESC
		LIMIT ?
	`, limit)
}

// CountTrending returns the number of currently trending posts.
func (s *Store) CountTrending() (int, error) {
	var n int
	err := s.q.QueryRow(`SELECT COUNT(*) FROM posts WHERE trending = 1`).Scan(&n)
	return n, errors.Wrap(err, "failed to count trending posts")
}

// CountMissingReplies returns the number of trending posts lacking drafts.
func (s *Store) CountMissingReplies() (int, error) {
	var n int
	err := s.q.QueryRow(`
		SELECT COUNT(*) FROM posts
		WHERE trending = 1 AND (reply_suggestions IS NULL OR reply_suggestions = '')
	`).Scan(&n)
	return n, errors.Wrap(err, "failed to count posts missing replies")
}

func (s *Store) queryPosts(query string, args ...any) ([]*Post, error) {
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query posts")
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, errors.Wrap(rows.Err(), "failed to iterate posts")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (*Post, error) {
	var p Post
	var createdAt, collectedAt string
	var trending int
	var author, url, trendingSince, candidateSince, lastAlertedAt sql.NullString
	var lastAlertedVirality sql.NullFloat64
	var tones, suggestions sql.NullString

	err := row.Scan(
		&p.ID, &p.Platform, &p.PostID, &author, &url, &p.Text, &createdAt, &collectedAt,
		&p.LikeCount, &p.ReplyCount, &p.RepostCount, &p.QuoteCount, &p.ViewCount,
		&p.ViralityScore, &p.VelocityScore, &trending, &trendingSince,
		&candidateSince, &lastAlertedAt, &lastAlertedVirality,
		&tones, &suggestions,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan post")
	}

	p.Author = author.String
	p.URL = url.String
	p.Trending = trending != 0

	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, errors.Wrap(err, "invalid created_at")
	}
	if p.CollectedAt, err = parseTime(collectedAt); err != nil {
		return nil, errors.Wrap(err, "invalid collected_at")
	}
	if p.TrendingSince, err = scanNullTime(trendingSince); err != nil {
		return nil, errors.Wrap(err, "invalid trending_since")
	}
	if p.TrendingCandidateSince, err = scanNullTime(candidateSince); err != nil {
		return nil, errors.Wrap(err, "invalid trending_candidate_since")
	}
	if p.LastAlertedAt, err = scanNullTime(lastAlertedAt); err != nil {
		return nil, errors.Wrap(err, "invalid last_alerted_at")
	}
	if lastAlertedVirality.Valid {
		v := lastAlertedVirality.Float64
		p.LastAlertedVirality = &v
	}
	if tones.Valid && tones.String != "" {
		if err := json.Unmarshal([]byte(tones.String), &p.Tones); err != nil {
			return nil, errors.Wrap(err, "invalid tones JSON")
		}
	}
	if suggestions.Valid && suggestions.String != "" {
		if err := json.Unmarshal([]byte(suggestions.String), &p.ReplySuggestions); err != nil {
			return nil, errors.Wrap(err, "invalid reply_suggestions JSON")
		}
	}

	return &p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func scanNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
