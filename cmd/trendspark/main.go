package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/trendspark/cmd/trendspark/commands"
	"github.com/teranos/trendspark/logger"
)

var rootCmd = &cobra.Command{
	Use:   "trendspark",
	Short: "TrendSpark - social trend detection and alerting",
	Long: `TrendSpark watches social platforms for posts gaining traction,
scores them for virality and velocity, tracks trending state with
hysteresis, and pushes alerts with generated reply drafts.

Available commands:
  serve    - Run the full service (ingestion, ranking, scheduler, alerts)
  migrate  - Apply pending database migrations
  jobs     - Inspect scheduler configs and recent runs

Examples:
  trendspark serve                # Start the service
  trendspark migrate              # Apply migrations and exit
  trendspark jobs ls              # List scheduled jobs
  trendspark jobs runs ingest_rank # Show recent ingest_rank runs`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit JSON logs instead of console output")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.MigrateCmd)
	rootCmd.AddCommand(commands.JobsCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
