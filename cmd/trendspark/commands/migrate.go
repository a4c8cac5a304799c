package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/trendspark/config"
)

// MigrateCmd applies pending migrations and exits.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		fmt.Printf("Database %s is up to date\n", cfg.Database.Path)
		return nil
	},
}
