package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runlit/runlit/internal/harness"
	"github.com/runlit/runlit/internal/ops"
	"github.com/runlit/runlit/internal/run"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Flags   []string
	Label   string
	RunDir  string
	Rerun   string
	Restart string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [OPERATION]",
		Short: "Run an operation",
		Long: `Run an operation defined by the model file in the current directory.

Without an operation argument the default operation of the default
model runs. Output is captured to the run directory and echoed.

Examples:
  runlit run
  runlit run train --flag epochs=10 --label baseline
  runlit run train --rerun 3a7f`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opspec := ""
			if len(args) == 1 {
				opspec = args[0]
			}
			return runOp(opts, opspec, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Flags, "flag", nil, "operation flag as NAME=VALUE (repeatable)")
	cmd.Flags().StringVar(&opts.Label, "label", "", "run label")
	cmd.Flags().StringVar(&opts.RunDir, "run-dir", "", "explicit run directory")
	cmd.Flags().StringVar(&opts.Rerun, "rerun", "", "run in the directory of an existing run (by ID prefix)")
	cmd.Flags().StringVar(&opts.Restart, "restart", "", "restart an existing run (by ID prefix)")

	return cmd
}

func runOp(opts *RunOptions, opspec string, cmd *cobra.Command) error {
	flags, err := parseFlagArgs(opts.Flags)
	if err != nil {
		return WrapExitError(ExitCommandError, "bad --flag", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return WrapExitError(ExitCommandError, "working directory", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	p, err := harness.New(cwd, harness.WithHome(opts.Home), harness.WithLogger(log))
	if err != nil {
		return WrapExitError(ExitCommandError, "open storage root", err)
	}
	defer p.Close()
	p.Stdout = cmd.OutOrStdout()

	r, out, err := p.RunCapture(harness.RunSpec{
		Op:      opspec,
		Flags:   flags,
		Label:   opts.Label,
		RunDir:  opts.RunDir,
		Rerun:   opts.Rerun,
		Restart: opts.Restart,
	})
	if err != nil {
		var runErr *ops.RunError
		if errors.As(err, &runErr) {
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(runErr.Output))
			return NewExitError(ExitFailure, runErr.Error())
		}
		if errors.Is(err, harness.ErrConflictingSelectors) {
			return WrapExitError(ExitCommandError, "bad selectors", err)
		}
		var notFound *run.NotFoundError
		var ambiguous *run.AmbiguousError
		if errors.As(err, &notFound) || errors.As(err, &ambiguous) {
			return WrapExitError(ExitCommandError, "bad selector", err)
		}
		return WrapExitError(ExitCommandError, "run operation", err)
	}

	if out != "" {
		fmt.Fprintln(cmd.OutOrStdout(), out)
	}
	log.Debug("run completed", "id", r.ID, "dir", r.Dir)
	return nil
}

// parseFlagArgs decodes repeated NAME=VALUE flag assignments.
func parseFlagArgs(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	flags := make(map[string]string, len(args))
	for _, arg := range args {
		name, val, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected NAME=VALUE, got %q", arg)
		}
		flags[name] = val
	}
	return flags, nil
}
