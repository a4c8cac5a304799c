package commands

import (
	"database/sql"

	"github.com/teranos/trendspark/config"
	"github.com/teranos/trendspark/db"
	"github.com/teranos/trendspark/errors"
	"github.com/teranos/trendspark/logger"
)

// openDatabase opens the configured SQLite database and applies pending
// migrations.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return database, nil
}
