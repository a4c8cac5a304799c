// Package scheduler runs TrendSpark's cron-driven jobs: it owns the job
// configuration store, the lease-based concurrency control, the run audit
// trail, and the consecutive-failure monitor.
package scheduler

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teranos/trendspark/errors"
)

// Job kinds form a fixed registry; configs referencing anything else are
// rejected at save time.
const (
	JobKindIngestRank = "ingest_rank"
	JobKindGenReplies = "gen_replies"
	JobKindDailyIdeas = "daily_ideas"
)

// KnownJobKinds is the fixed set of schedulable handler identifiers.
var KnownJobKinds = map[string]bool{
	JobKindIngestRank: true,
	JobKindGenReplies: true,
	JobKindDailyIdeas: true,
}

const timeLayout = time.RFC3339

// JobConfig is one schedulable job instance.
type JobConfig struct {
	ID                 int64
	JobKind            string
	Name               string
	Cron               string
	Enabled            bool
	Priority           int
	ConcurrencyLimit   int
	LockTimeoutSeconds int
	Parameters         map[string]any
	GrowthProfileID    *int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate checks kind and cron before the config may persist.
func (c *JobConfig) Validate() error {
	if !KnownJobKinds[c.JobKind] {
		return errors.NewInvalidConfigError("unknown job kind: " + c.JobKind)
	}
	if _, err := cron.ParseStandard(c.Cron); err != nil {
		return errors.Wrapf(errors.ErrInvalidConfig, "invalid cron expression %q: %v", c.Cron, err)
	}
	if c.ConcurrencyLimit < 1 {
		return errors.NewInvalidConfigError("concurrency_limit must be >= 1")
	}
	if c.LockTimeoutSeconds < 10 {
		return errors.NewInvalidConfigError("lock_timeout_seconds must be >= 10")
	}
	return nil
}

// ConfigStore handles persistence of scheduler configs
type ConfigStore struct {
	db *sql.DB
}

// NewConfigStore creates a scheduler config store
func NewConfigStore(db *sql.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

const configColumns = `
	id, job_kind, name, cron, enabled, priority, concurrency_limit,
	lock_timeout_seconds, parameters, growth_profile_id, created_at, updated_at`

// Create validates and inserts a new config.
func (s *ConfigStore) Create(c *JobConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}

	params, err := marshalParams(c.Parameters)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	res, err := s.db.Exec(`
		INSERT INTO scheduler_configs (
			job_kind, name, cron, enabled, priority, concurrency_limit,
			lock_timeout_seconds, parameters, growth_profile_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.JobKind, nullString(c.Name), c.Cron, boolToInt(c.Enabled), c.Priority,
		c.ConcurrencyLimit, c.LockTimeoutSeconds, params, nullInt64(c.GrowthProfileID),
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create scheduler config")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read config id")
	}
	c.ID = id
	return nil
}

// Update validates and rewrites a config.
func (s *ConfigStore) Update(c *JobConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}

	params, err := marshalParams(c.Parameters)
	if err != nil {
		return err
	}

	c.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE scheduler_configs
		SET job_kind = ?, name = ?, cron = ?, enabled = ?, priority = ?,
		    concurrency_limit = ?, lock_timeout_seconds = ?, parameters = ?,
		    growth_profile_id = ?, updated_at = ?
		WHERE id = ?
	`,
		c.JobKind, nullString(c.Name), c.Cron, boolToInt(c.Enabled), c.Priority,
		c.ConcurrencyLimit, c.LockTimeoutSeconds, params, nullInt64(c.GrowthProfileID),
		c.UpdatedAt.Format(timeLayout), c.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update scheduler config")
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "scheduler config %d", c.ID)
	}
	return nil
}

// Delete removes a config; its leases cascade.
func (s *ConfigStore) Delete(id int64) error {
	res, err := s.db.Exec(`DELETE FROM scheduler_configs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete scheduler config")
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "scheduler config %d", id)
	}
	return nil
}

// SetEnabled toggles a config.
func (s *ConfigStore) SetEnabled(id int64, enabled bool) error {
	res, err := s.db.Exec(`UPDATE scheduler_configs SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return errors.Wrap(err, "failed to toggle scheduler config")
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "scheduler config %d", id)
	}
	return nil
}

// Get retrieves a config by id.
func (s *ConfigStore) Get(id int64) (*JobConfig, error) {
	row := s.db.QueryRow(`SELECT `+configColumns+` FROM scheduler_configs WHERE id = ?`, id)
	c, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "scheduler config %d", id)
	}
	return c, err
}

// List returns all configs ordered by priority then id.
func (s *ConfigStore) List() ([]*JobConfig, error) {
	return s.queryConfigs(`SELECT ` + configColumns + ` FROM scheduler_configs ORDER BY priority DESC, id`)
}

// ListEnabled returns the configs that should have live triggers.
func (s *ConfigStore) ListEnabled() ([]*JobConfig, error) {
	return s.queryConfigs(`SELECT ` + configColumns + ` FROM scheduler_configs WHERE enabled = 1 ORDER BY priority DESC, id`)
}

// EnsureDefaults seeds the standard job set on first boot. Kinds that
// already have any config are left untouched.
func (s *ConfigStore) EnsureDefaults() error {
	defaults := []*JobConfig{
		{
			JobKind:            JobKindIngestRank,
			Name:               "Ingest and rank",
			Cron:               "*/30 * * * *",
			Enabled:            true,
			Priority:           10,
			ConcurrencyLimit:   1,
			LockTimeoutSeconds: 300,
			Parameters:         map[string]any{"max_x": 30},
		},
		{
			JobKind:            JobKindGenReplies,
			Name:               "Generate replies",
			Cron:               "*/15 * * * *",
			Enabled:            true,
			Priority:           5,
			ConcurrencyLimit:   1,
			LockTimeoutSeconds: 300,
			Parameters:         map[string]any{"limit": 10},
		},
		{
			JobKind:            JobKindDailyIdeas,
			Name:               "Daily content ideas",
			Cron:               "0 8 * * *",
			Enabled:            true,
			Priority:           1,
			ConcurrencyLimit:   1,
			LockTimeoutSeconds: 300,
			Parameters:         map[string]any{"announce": true},
		},
	}

	for _, c := range defaults {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM scheduler_configs WHERE job_kind = ?`, c.JobKind).Scan(&n); err != nil {
			return errors.Wrap(err, "failed to check existing configs")
		}
		if n > 0 {
			continue
		}
		if err := s.Create(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *ConfigStore) queryConfigs(query string, args ...any) ([]*JobConfig, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query scheduler configs")
	}
	defer rows.Close()

	var configs []*JobConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, errors.Wrap(rows.Err(), "failed to iterate scheduler configs")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (*JobConfig, error) {
	var c JobConfig
	var name, params sql.NullString
	var enabled int
	var profileID sql.NullInt64
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.JobKind, &name, &c.Cron, &enabled, &c.Priority,
		&c.ConcurrencyLimit, &c.LockTimeoutSeconds, &params, &profileID,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan scheduler config")
	}

	c.Name = name.String
	c.Enabled = enabled != 0
	if profileID.Valid {
		id := profileID.Int64
		c.GrowthProfileID = &id
	}
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &c.Parameters); err != nil {
			return nil, errors.Wrap(err, "invalid parameters JSON")
		}
	}
	if c.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, errors.Wrap(err, "invalid created_at")
	}
	if c.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, errors.Wrap(err, "invalid updated_at")
	}

	return &c, nil
}

func marshalParams(params map[string]any) (sql.NullString, error) {
	if len(params) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "failed to marshal parameters")
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
