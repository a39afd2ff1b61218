package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/arakida/execmon/pkg/models"
)

var (
	logsSession  string
	logsFunction string
	logsKind     string
	logsSince    string
	logsLimit    int
	logsJSON     bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Display recorded log entries",
	Long: `Display log entries recorded by the instrumentation wrappers, newest
first.

Entries can be narrowed by session ID, function name, event kind
(start, complete, error), and time window.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureStarted(); err != nil {
			return err
		}

		filter := models.LogFilter{
			SessionID:    logsSession,
			FunctionName: logsFunction,
			Kind:         models.EventKind(logsKind),
			Limit:        logsLimit,
		}
		if logsSince != "" {
			since, err := parseSinceDuration(logsSince)
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
			filter.TimeRange = &models.TimeRange{Start: since, End: time.Now().UTC()}
		}

		entries, err := Coord.Store().QueryLogEntries(filter)
		if err != nil {
			return fmt.Errorf("querying log entries: %w", err)
		}

		if logsJSON {
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting entries as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		if len(entries) == 0 {
			fmt.Println("No log entries found.")
			return nil
		}

		fmt.Printf("%-19s %-8s %-10s %-28s %-10s %s\n", "TIMESTAMP", "SESSION", "KIND", "FUNCTION", "DURATION", "DETAIL")
		for _, entry := range entries {
			fmt.Printf("%-19s %-8s %-10s %-28s %-10s %s\n",
				entry.Timestamp.Format("2006-01-02 15:04:05"),
				entry.SessionID,
				entry.Kind,
				entry.FunctionName,
				formatDuration(entry.Duration),
				entryDetail(entry),
			)
		}
		fmt.Printf("\n%d entries, newest %s\n", len(entries), humanize.Time(entries[0].Timestamp))
		return nil
	},
}

func formatDuration(d *float64) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%.3fs", *d)
}

// entryDetail picks the most informative single-line detail for an entry.
func entryDetail(entry models.LogEntry) string {
	if entry.ErrorDetails != "" {
		return "error: " + entry.ErrorDetails
	}
	return entry.ResultSummary
}

// parseSinceDuration parses a human-friendly duration string like "7d",
// "30d", or "24h" and returns the corresponding time in the past.
func parseSinceDuration(s string) (time.Time, error) {
	now := time.Now().UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return now.AddDate(0, 0, -days), nil
	}

	if strings.HasSuffix(s, "h") {
		hours, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid hour duration %q", s)
		}
		return now.Add(-time.Duration(hours) * time.Hour), nil
	}

	if strings.HasSuffix(s, "m") {
		minutes, err := strconv.Atoi(strings.TrimSuffix(s, "m"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid minute duration %q", s)
		}
		return now.Add(-time.Duration(minutes) * time.Minute), nil
	}

	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 24h, 30m)", s)
}

func init() {
	logsCmd.Flags().StringVar(&logsSession, "session", "", "Filter by session ID")
	logsCmd.Flags().StringVar(&logsFunction, "function", "", "Filter by function name")
	logsCmd.Flags().StringVar(&logsKind, "kind", "", "Filter by event kind (start, complete, error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Time window (e.g. 7d, 24h, 30m)")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "Maximum number of entries")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Output entries as JSON")
	rootCmd.AddCommand(logsCmd)
}
