package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Evaluate alert rules and show triggered alerts",
	Long: `Evaluate the configured alert rules against recorded monitoring data
and display any triggered alerts.

Rules cover failure counts, error rate, and performance degradation
against a 24-hour baseline. Per-rule cooldowns are honored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureStarted(); err != nil {
			return err
		}

		engine := Monitor.Alerts()
		if engine == nil {
			return fmt.Errorf("alert engine not initialized")
		}

		alerts, err := engine.Evaluate(time.Now().UTC())
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}

		if len(alerts) == 0 {
			fmt.Println("No active alerts.")
			return nil
		}

		fmt.Printf("%d active alert(s):\n\n", len(alerts))
		for _, alert := range alerts {
			fmt.Printf("  [%s] %s\n", alert.Rule, alert.Message)
			fmt.Printf("         triggered at %s\n\n", alert.TriggeredAt.Format("2006-01-02 15:04 UTC"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(alertsCmd)
}
