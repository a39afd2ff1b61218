package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arakida/execmon/internal/monitor"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display monitoring system health",
	Long: `Display a snapshot of monitoring system health: database footprint,
selected configuration, and event bus subscriber tallies.

Output is a readable summary by default; use --output json or
--output yaml for machine-readable form.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureStarted(); err != nil {
			return err
		}

		status := Coord.Status()

		switch statusOutput {
		case "json":
			data, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting status as JSON: %w", err)
			}
			fmt.Println(string(data))
		case "yaml":
			data, err := yaml.Marshal(status)
			if err != nil {
				return fmt.Errorf("formatting status as YAML: %w", err)
			}
			fmt.Print(string(data))
		case "text", "":
			printStatus(status)
		default:
			return fmt.Errorf("unsupported output format %q (use text, json, yaml)", statusOutput)
		}
		return nil
	},
}

func printStatus(status monitor.Status) {
	fmt.Printf("State: %s\n", status.State)
	if status.Error != "" {
		fmt.Printf("Error: %s\n", status.Error)
		return
	}

	fmt.Println("\nDatabase:")
	fmt.Printf("  %-24s %s\n", "Path:", status.Database.DatabasePath)
	fmt.Printf("  %-24s %s\n", "Size:", humanize.Bytes(uint64(status.Database.DatabaseSize)))
	fmt.Printf("  %-24s %s\n", "Log entries:", humanize.Comma(status.Database.LogEntryCount))
	fmt.Printf("  %-24s %s\n", "Performance metrics:", humanize.Comma(status.Database.MetricsCount))

	fmt.Println("\nConfiguration:")
	fmt.Printf("  %-24s %s\n", "Log level:", status.Config.LogLevel)
	fmt.Printf("  %-24s %d\n", "Dashboard port:", status.Config.DashboardPort)
	fmt.Printf("  %-24s %ds\n", "Update interval:", status.Config.UpdateInterval)

	if len(status.Subscribers) > 0 {
		fmt.Println("\nEvent bus subscribers:")
		eventTypes := make([]string, 0, len(status.Subscribers))
		for eventType := range status.Subscribers {
			eventTypes = append(eventTypes, eventType)
		}
		sort.Strings(eventTypes)
		for _, eventType := range eventTypes {
			fmt.Printf("  %-28s %d\n", eventType, status.Subscribers[eventType])
		}
	}
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "Output format (text, json, yaml)")
	rootCmd.AddCommand(statusCmd)
}
