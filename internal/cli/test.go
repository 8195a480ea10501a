package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/runlit/runlit/internal/runner"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Dir  string
	Skip []string
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test [TEST...]",
		Short: "Run transcript tests",
		Long: `Run transcript tests.

Named tests are run in the given order; with no arguments every
transcript found in the test directory runs, in name order.

Exit codes:
  0 - All transcripts passed
  1 - One or more transcripts failed
  2 - Command error (missing test directory, etc.)

Examples:
  runlit test
  runlit test runs project-config
  runlit test --dir docs --skip flaky-runs`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "transcript directory (default ./tests or .)")
	cmd.Flags().StringArrayVar(&opts.Skip, "skip", nil, "transcript name to skip (repeatable)")

	return cmd
}

func runTests(opts *TestOptions, tests []string, cmd *cobra.Command) error {
	dir := opts.Dir
	if dir == "" {
		var err error
		dir, err = runner.FindDir(".")
		if err != nil {
			return WrapExitError(ExitCommandError, "no test directory", err)
		}
	} else if _, err := os.Stat(dir); err != nil {
		return WrapExitError(ExitCommandError, "test directory", err)
	}

	logLevel := slog.LevelInfo
	logOut := io.Discard
	if opts.Verbose {
		logLevel = slog.LevelDebug
		logOut = cmd.ErrOrStderr()
	}
	log := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: logLevel}))

	sum, err := runner.Run(runner.Options{
		Dir:    dir,
		Tests:  tests,
		Skip:   opts.Skip,
		Stdout: cmd.OutOrStdout(),
		Log:    log,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "run transcripts", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	if !sum.OK() {
		fmt.Fprintf(w, "%d test(s) failed - see above for details\n", sum.Failed)
		return NewExitError(ExitFailure, fmt.Sprintf("%d test(s) failed", sum.Failed))
	}
	fmt.Fprintln(w, "All tests passed")
	return nil
}
