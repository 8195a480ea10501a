package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runlit/runlit/internal/ops"
	"github.com/runlit/runlit/internal/run"
)

// runInfo is the JSON projection of one run.
type runInfo struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
	Status    string `json:"status"`
	Label     string `json:"label,omitempty"`
	Marked    bool   `json:"marked,omitempty"`
}

// NewRunsCommand creates the runs command group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List and manage runs",
		Long: `List runs, newest first.

Subcommands delete, label, and mark runs. Runs are selected by ID
prefix; a prefix matching more than one run is an error.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(rootOpts, cmd)
		},
	}

	cmd.AddCommand(newRunsRmCommand(rootOpts))
	cmd.AddCommand(newRunsLabelCommand(rootOpts))
	cmd.AddCommand(newRunsMarkCommand(rootOpts))

	return cmd
}

func listRuns(opts *RootOptions, cmd *cobra.Command) error {
	runs, err := run.List(opts.Home)
	if err != nil {
		return WrapExitError(ExitCommandError, "list runs", err)
	}

	if opts.Format == "json" {
		infos := make([]runInfo, 0, len(runs))
		for _, r := range runs {
			infos = append(infos, runInfo{
				ID:        r.ID,
				Operation: r.OpSpec(),
				Status:    r.Status(),
				Label:     r.Label(),
				Marked:    r.Marked(),
			})
		}
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
		return f.Success(infos)
	}

	rows := [][]string{{"run", "operation", "status", "label"}}
	for _, r := range runs {
		id := r.ShortID()
		if r.Marked() {
			id += " [marked]"
		}
		rows = append(rows, []string{id, r.OpSpec(), r.Status(), r.Label()})
	}
	writeTable(cmd.OutOrStdout(), rows)
	return nil
}

func newRunsRmCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rm [RUN...]",
		Short:         "Delete runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ops.NewLocal(opts.Home).Delete(args); err != nil {
				return WrapExitError(ExitCommandError, "delete runs", err)
			}
			return nil
		},
	}
}

func newRunsLabelCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "label LABEL [RUN...]",
		Short:         "Label runs",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ops.NewLocal(opts.Home).Label(args[1:], args[0]); err != nil {
				return WrapExitError(ExitCommandError, "label runs", err)
			}
			return nil
		},
	}
}

func newRunsMarkCommand(opts *RootOptions) *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:           "mark [RUN...]",
		Short:         "Mark or unmark runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ops.NewLocal(opts.Home).Mark(args, clear); err != nil {
				return WrapExitError(ExitCommandError, "mark runs", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the mark instead of setting it")
	return cmd
}

// writeTable prints rows as left-aligned columns sized to their widest
// cell. The last column is not padded.
func writeTable(w io.Writer, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				break
			}
			fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
		}
		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}
}
