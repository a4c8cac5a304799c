package growth

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/trendspark/errors"
)

const timeLayout = time.RFC3339

// Store handles persistence of targeting profiles
type Store struct {
	db *sql.DB
}

// NewStore creates a new profile store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectColumns = `
	id, name, niche, keywords, watchlist, is_default, is_active, created_at, updated_at`

// Create inserts a new profile
func (s *Store) Create(p *Profile) error {
	keywords, watchlist, err := marshalLists(p)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	res, err := s.db.Exec(`
		INSERT INTO growth_profiles (name, niche, keywords, watchlist, is_default, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.Name, nullString(p.Niche), keywords, watchlist,
		boolToInt(p.IsDefault), boolToInt(p.IsActive),
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create growth profile")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read profile id")
	}
	p.ID = id
	return nil
}

// Update rewrites a profile's mutable fields
func (s *Store) Update(p *Profile) error {
	keywords, watchlist, err := marshalLists(p)
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE growth_profiles
		SET name = ?, niche = ?, keywords = ?, watchlist = ?, is_default = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`,
		p.Name, nullString(p.Niche), keywords, watchlist,
		boolToInt(p.IsDefault), boolToInt(p.IsActive),
		p.UpdatedAt.Format(timeLayout), p.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update growth profile")
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "growth profile %d", p.ID)
	}
	return nil
}

// Get retrieves a profile by id
func (s *Store) Get(id int64) (*Profile, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM growth_profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "growth profile %d", id)
	}
	return p, err
}

// List returns all profiles, active first, default first within that.
func (s *Store) List() ([]*Profile, error) {
	rows, err := s.db.Query(`SELECT ` + selectColumns + ` FROM growth_profiles ORDER BY is_active DESC, is_default DESC, id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list growth profiles")
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, errors.Wrap(rows.Err(), "failed to iterate growth profiles")
}

// Delete removes a profile
func (s *Store) Delete(id int64) error {
	res, err := s.db.Exec(`DELETE FROM growth_profiles WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete growth profile")
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "growth profile %d", id)
	}
	return nil
}

// EnsureDefault returns the default active profile, creating an empty one
// lazily when none exists yet.
func (s *Store) EnsureDefault() (*Profile, error) {
	row := s.db.QueryRow(`SELECT ` + selectColumns + ` FROM growth_profiles WHERE is_default = 1 AND is_active = 1 ORDER BY id LIMIT 1`)
	p, err := scanProfile(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	created := &Profile{
		Name:      "Default profile",
		IsDefault: true,
		IsActive:  true,
	}
	if err := s.Create(created); err != nil {
		return nil, err
	}
	return created, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*Profile, error) {
	var p Profile
	var niche, keywords, watchlist sql.NullString
	var isDefault, isActive int
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Name, &niche, &keywords, &watchlist, &isDefault, &isActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan growth profile")
	}

	p.Niche = niche.String
	p.IsDefault = isDefault != 0
	p.IsActive = isActive != 0

	if keywords.Valid && keywords.String != "" {
		if err := json.Unmarshal([]byte(keywords.String), &p.Keywords); err != nil {
			return nil, errors.Wrap(err, "invalid keywords JSON")
		}
	}
	if watchlist.Valid && watchlist.String != "" {
		if err := json.Unmarshal([]byte(watchlist.String), &p.Watchlist); err != nil {
			return nil, errors.Wrap(err, "invalid watchlist JSON")
		}
	}
	if p.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, errors.Wrap(err, "invalid created_at")
	}
	if p.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, errors.Wrap(err, "invalid updated_at")
	}

	return &p, nil
}

func marshalLists(p *Profile) (keywords, watchlist sql.NullString, err error) {
	if len(p.Keywords) > 0 {
		b, err := json.Marshal(p.Keywords)
		if err != nil {
			return keywords, watchlist, errors.Wrap(err, "failed to marshal keywords")
		}
		keywords = sql.NullString{String: string(b), Valid: true}
	}
	if len(p.Watchlist) > 0 {
		b, err := json.Marshal(p.Watchlist)
		if err != nil {
			return keywords, watchlist, errors.Wrap(err, "failed to marshal watchlist")
		}
		watchlist = sql.NullString{String: string(b), Valid: true}
	}
	return keywords, watchlist, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
