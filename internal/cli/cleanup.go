package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete records past their retention window",
	Long: `Delete log entries and performance metrics older than the configured
retention windows (log_retention_days and summary_retention_days).

Cleanup also runs automatically on shutdown and, when cleanup_schedule
is configured, on a cron schedule.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureStarted(); err != nil {
			return err
		}

		before, err := Coord.Store().Stats()
		if err != nil {
			return fmt.Errorf("reading database stats: %w", err)
		}

		if err := Coord.Cleanup(); err != nil {
			return fmt.Errorf("running cleanup: %w", err)
		}

		after, err := Coord.Store().Stats()
		if err != nil {
			return fmt.Errorf("reading database stats: %w", err)
		}

		cfg := Coord.Config()
		fmt.Printf("Cleanup complete (retention: logs %dd, metrics %dd)\n",
			cfg.LogRetentionDays, cfg.SummaryRetentionDays)
		fmt.Printf("  %-24s %s\n", "Log entries deleted:",
			humanize.Comma(before.LogEntryCount-after.LogEntryCount))
		fmt.Printf("  %-24s %s\n", "Metrics deleted:",
			humanize.Comma(before.MetricsCount-after.MetricsCount))
		fmt.Printf("  %-24s %s\n", "Database size:", humanize.Bytes(uint64(after.DatabaseSize)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
