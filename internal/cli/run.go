package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
)

var runName string

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Execute a command under full instrumentation",
	Long: `Execute a command with full instrumentation: start and complete-or-error
log entries, one performance metrics row, and progress events.

The command's stdio is passed through; its exit status is preserved in
the recorded outcome. Monitoring failures never alter the command's
result.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureStarted(); err != nil {
			return err
		}

		name := runName
		if name == "" {
			name = filepath.Base(args[0])
		}

		work := func(callArgs ...any) (any, error) {
			c := exec.Command(args[0], args[1:]...)
			c.Stdin = os.Stdin
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			err := c.Run()
			if c.ProcessState == nil {
				return nil, err
			}
			return c.ProcessState.ExitCode(), err
		}

		outcome := Instr.Run(name, work)
		if outcome.InfraWarnings > 0 {
			fmt.Fprintf(os.Stderr, "execmon: %d monitoring operation(s) failed; see the monitoring log\n",
				outcome.InfraWarnings)
		}
		if outcome.WorkErr != nil {
			return fmt.Errorf("command failed: %w", outcome.WorkErr)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "Function name to record (default: command basename)")
	rootCmd.AddCommand(runCmd)
}
