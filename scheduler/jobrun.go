package scheduler

import (
	"database/sql"
	"time"

	"github.com/teranos/trendspark/errors"
	"github.com/teranos/trendspark/internal/util"
)

// JobRun statuses.
const (
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// detailLimit caps the persisted failure detail.
const detailLimit = 400

// JobRun is one append-only execution audit row.
type JobRun struct {
	ID            int64
	JobKind       string
	ConfigID      *int64
	Status        string
	RunAt         time.Time
	DurationMS    float64
	Detail        string
	CorrelationID string
}

// JobRunStore handles persistence of execution audit rows
type JobRunStore struct {
	db *sql.DB
}

// NewJobRunStore creates a job run store
func NewJobRunStore(db *sql.DB) *JobRunStore {
	return &JobRunStore{db: db}
}

// Record appends one run row. Rows are never mutated.
func (s *JobRunStore) Record(run *JobRun) error {
	_, err := s.db.Exec(`
		INSERT INTO job_runs (job_kind, config_id, status, run_at, duration_ms, detail, correlation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.JobKind, nullInt64(run.ConfigID), run.Status,
		run.RunAt.UTC().Format(timeLayout), run.DurationMS,
		nullString(util.Truncate(run.Detail, detailLimit)),
		nullString(run.CorrelationID),
	)
	return errors.Wrap(err, "failed to record job run")
}

// Recent returns the newest runs for a job kind, most recent first. An
// empty kind returns runs across all kinds.
func (s *JobRunStore) Recent(jobKind string, limit int) ([]*JobRun, error) {
	query := `
		SELECT id, job_kind, config_id, status, run_at, duration_ms, detail, correlation_id
		FROM job_runs`
	var args []any
	if jobKind != "" {
		query += ` WHERE job_kind = ?`
		args = append(args, jobKind)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query job runs")
	}
	defer rows.Close()

	var runs []*JobRun
	for rows.Next() {
		var run JobRun
		var configID sql.NullInt64
		var runAt string
		var durationMS sql.NullFloat64
		var detail, correlationID sql.NullString

		if err := rows.Scan(&run.ID, &run.JobKind, &configID, &run.Status,
			&runAt, &durationMS, &detail, &correlationID); err != nil {
			return nil, errors.Wrap(err, "failed to scan job run")
		}

		if configID.Valid {
			id := configID.Int64
			run.ConfigID = &id
		}
		run.DurationMS = durationMS.Float64
		run.Detail = detail.String
		run.CorrelationID = correlationID.String
		if run.RunAt, err = time.Parse(timeLayout, runAt); err != nil {
			return nil, errors.Wrap(err, "invalid run_at")
		}

		runs = append(runs, &run)
	}
	return runs, errors.Wrap(rows.Err(), "failed to iterate job runs")
}
