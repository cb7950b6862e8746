package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/betterbytes/harvest/internal/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Check a config file without running anything",
		Long: `Check a config file against the schema and report the resolved values.

Example:
  harvest validate ./harvest.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(rootOpts.Verbose)
			cfg, err := config.Load(args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "invalid config", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok\n")
			fmt.Fprintf(out, "  source:    %s\n", cfg.Source.Path)
			fmt.Fprintf(out, "  run log:   %s\n", cfg.RunLog.Path)
			fmt.Fprintf(out, "  compiler:  %s\n", cfg.Build.Compiler)
			fmt.Fprintf(out, "  resources: cpu=%d gpu=%d\n", cfg.Resources.CPU, cfg.Resources.GPU)
			fmt.Fprintf(out, "  quota:     %d\n", cfg.Quota)
			return nil
		},
	}
	return cmd
}
