package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/trendspark/config"
	"github.com/teranos/trendspark/scheduler"
)

// JobsCmd groups scheduler inspection commands.
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect scheduled jobs",
	Long: `Inspect scheduler configs and their execution history.

Examples:
  trendspark jobs ls                 # List job configs
  trendspark jobs runs               # Show recent runs across all kinds
  trendspark jobs runs ingest_rank   # Show recent ingest_rank runs`,
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List scheduler configs",
	RunE:  runJobsLs,
}

var jobsRunsCmd = &cobra.Command{
	Use:   "runs [job-kind]",
	Short: "Show recent job runs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobsRuns,
}

var runsLimitFlag int

func init() {
	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsRunsCmd)
	jobsRunsCmd.Flags().IntVar(&runsLimitFlag, "limit", 20, "Number of runs to show")
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	configs, err := scheduler.NewConfigStore(database).List()
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		fmt.Println("No scheduler configs. Run 'trendspark serve' once to seed defaults.")
		return nil
	}

	fmt.Printf("%-4s %-14s %-22s %-14s %-8s %s\n", "ID", "KIND", "NAME", "CRON", "ENABLED", "CONCURRENCY")
	for _, c := range configs {
		enabled := "yes"
		if !c.Enabled {
			enabled = "no"
		}
		fmt.Printf("%-4d %-14s %-22s %-14s %-8s %d\n",
			c.ID, c.JobKind, c.Name, c.Cron, enabled, c.ConcurrencyLimit)
	}
	return nil
}

func runJobsRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	jobKind := ""
	if len(args) == 1 {
		jobKind = args[0]
	}

	runs, err := scheduler.NewJobRunStore(database).Recent(jobKind, runsLimitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No job runs recorded.")
		return nil
	}

	fmt.Printf("%-4s %-14s %-9s %-21s %-10s %s\n", "ID", "KIND", "STATUS", "RUN AT", "DURATION", "DETAIL")
	for _, r := range runs {
		detail := r.Detail
		if len(detail) > 60 {
			detail = detail[:60] + "..."
		}
		fmt.Printf("%-4d %-14s %-9s %-21s %8.0fms %s\n",
			r.ID, r.JobKind, r.Status, r.RunAt.Format("2006-01-02 15:04:05"), r.DurationMS, detail)
	}
	return nil
}
