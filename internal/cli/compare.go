package cli

import (
	"github.com/spf13/cobra"

	"github.com/runlit/runlit/internal/ops"
)

// NewCompareCommand creates the compare command.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compare [RUN...]",
		Short: "Compare runs by their recorded scalars",
		Long: `Compare runs side by side.

Each row shows a run's operation, label, status, and the scalar values
parsed from its output, one column per scalar tag. With no arguments
every run is compared.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return compareRuns(rootOpts, args, cmd)
		},
	}
}

func compareRuns(opts *RootOptions, selectors []string, cmd *cobra.Command) error {
	table, err := ops.NewLocal(opts.Home).Compare(cmd.Context(), selectors)
	if err != nil {
		return WrapExitError(ExitCommandError, "compare runs", err)
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
		return f.Success(table)
	}

	writeTable(cmd.OutOrStdout(), table)
	return nil
}
