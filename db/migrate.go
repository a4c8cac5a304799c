package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/trendspark/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// Migrate applies pending migrations in filename order. Each migration runs
// in its own transaction together with its schema_migrations row, so a
// partially applied file never records as done.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	files, err := listMigrations()
	if err != nil {
		return err
	}

	applied := 0
	for _, filename := range files {
		// Version prefix before the first underscore, e.g. "001".
		version := strings.SplitN(filename, "_", 2)[0]

		done, err := alreadyApplied(db, version)
		if err != nil {
			// schema_migrations does not exist until 000 runs.
			if version != "000" {
				return errors.Wrapf(err, "cannot check migration state for %s", filename)
			}
		} else if done {
			continue
		}

		if err := apply(db, filename, version); err != nil {
			return err
		}
		applied++

		if logger != nil {
			logger.Infow("applied migration", "migration", filename)
		}
	}

	if logger != nil && applied > 0 {
		logger.Infow("migrations complete", "applied", applied, "total", len(files))
	}
	return nil
}

func listMigrations() ([]string, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read migrations")
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func alreadyApplied(db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
	return exists, err
}

func apply(db *sql.DB, filename, version string) error {
	sqlBytes, err := migrations.ReadFile(path.Join(migrationsDir, filename))
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", filename)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "failed to begin transaction for %s", filename)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(sqlBytes)); err != nil {
		return errors.Wrapf(err, "failed to execute %s", filename)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return errors.Wrapf(err, "failed to record %s", filename)
	}
	return errors.Wrapf(tx.Commit(), "failed to commit %s", filename)
}
