package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/arakida/execmon/pkg/models"
)

var (
	metricsFunction string
	metricsSince    string
	metricsLimit    int
	metricsJSON     bool
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display recorded performance metrics",
	Long: `Display performance metrics recorded by the tracking wrappers, newest
first, with an aggregate summary.

Metrics include wall-clock execution time, peak resident memory, CPU
usage, and the per-invocation success rate.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureStarted(); err != nil {
			return err
		}

		filter := models.MetricsFilter{
			FunctionName: metricsFunction,
			Limit:        metricsLimit,
		}
		if metricsSince != "" {
			since, err := parseSinceDuration(metricsSince)
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
			filter.TimeRange = &models.TimeRange{Start: since, End: time.Now().UTC()}
		}

		rows, err := Coord.Store().QueryPerformanceMetrics(filter)
		if err != nil {
			return fmt.Errorf("querying performance metrics: %w", err)
		}

		if metricsJSON {
			data, err := json.MarshalIndent(rows, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		if len(rows) == 0 {
			fmt.Println("No performance metrics found.")
			return nil
		}

		fmt.Printf("%-19s %-28s %-10s %-10s %-8s %s\n", "TIMESTAMP", "FUNCTION", "TIME", "MEMORY", "CPU", "OK")
		for _, row := range rows {
			fmt.Printf("%-19s %-28s %-10s %-10s %-8s %s\n",
				row.Timestamp.Format("2006-01-02 15:04:05"),
				row.FunctionName,
				fmt.Sprintf("%.3fs", row.ExecutionTime),
				humanize.IBytes(uint64(row.MemoryPeak)),
				fmt.Sprintf("%.1f%%", row.CPUUsage),
				successMark(row.SuccessRate),
			)
		}
		printMetricsSummary(rows)
		return nil
	},
}

func successMark(rate float64) string {
	if rate >= 1.0 {
		return "yes"
	}
	return "no"
}

func printMetricsSummary(rows []models.PerformanceMetrics) {
	var totalTime, successes float64
	for _, row := range rows {
		totalTime += row.ExecutionTime
		successes += row.SuccessRate
	}
	fmt.Printf("\n%d invocations, mean time %.3fs, success rate %.0f%%\n",
		len(rows),
		totalTime/float64(len(rows)),
		successes/float64(len(rows))*100,
	)
}

func init() {
	metricsCmd.Flags().StringVar(&metricsFunction, "function", "", "Filter by function name")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "", "Time window (e.g. 7d, 24h, 30m)")
	metricsCmd.Flags().IntVar(&metricsLimit, "limit", 20, "Maximum number of rows")
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	rootCmd.AddCommand(metricsCmd)
}
