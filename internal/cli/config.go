package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configOutput    string
	configSetString bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and update the monitoring configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the current effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureStarted(); err != nil {
			return err
		}

		cfg := ConfigMgr.Get()
		switch configOutput {
		case "yaml":
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("formatting config as YAML: %w", err)
			}
			fmt.Print(string(data))
		case "json", "":
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting config as JSON: %w", err)
			}
			fmt.Println(string(data))
		default:
			return fmt.Errorf("unsupported output format %q (use json, yaml)", configOutput)
		}
		fmt.Printf("\n# %s\n", ConfigMgr.Path())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Update one configuration field",
	Long: `Update a single configuration field, persist the change, and notify
running components (for example, log_level changes take effect
immediately).

Values are parsed as int, then float, then string; use --string to
force a numeric-looking value to be treated as a string. An update with
the wrong type for the field is rejected and nothing changes.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureStarted(); err != nil {
			return err
		}

		field, raw := args[0], args[1]
		if err := ConfigMgr.Update(map[string]any{field: parseConfigValue(raw, configSetString)}); err != nil {
			return fmt.Errorf("updating %s: %w", field, err)
		}

		fmt.Printf("Updated %s = %s\n", field, raw)
		return nil
	},
}

// parseConfigValue infers the typed value for an update from its string
// form.
func parseConfigValue(raw string, forceString bool) any {
	if forceString {
		return raw
	}
	if i, err := strconv.Atoi(raw); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func init() {
	configShowCmd.Flags().StringVarP(&configOutput, "output", "o", "json", "Output format (json, yaml)")
	configSetCmd.Flags().BoolVar(&configSetString, "string", false, "Treat the value as a string")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
