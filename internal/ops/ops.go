// Package ops executes and manages operations of the tracked system
// against a storage root. The simulation harness consumes it through a
// narrow interface; transcripts never invoke it directly.
package ops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/runlit/runlit/internal/project"
	"github.com/runlit/runlit/internal/run"
	"github.com/runlit/runlit/internal/scope"
)

// NoWarnRunDirEnv suppresses the warning printed when an operation
// targets a run directory that already exists.
const NoWarnRunDirEnv = "RUNLIT_NO_WARN_RUNDIR"

// RunOpts parameterize one operation invocation.
type RunOpts struct {
	// Cwd is the working directory the operation runs in. The model
	// file is resolved there first, then on the search path.
	Cwd string

	// RunDir is the resolved run directory. The caller resolves it
	// before invoking, so it is always set.
	RunDir string

	// Flags override the operation's default flag values.
	Flags map[string]string

	// Label is recorded on the run.
	Label string

	// Env is an extra environment overlay for the operation process.
	Env map[string]string
}

// Local executes operations in-process for a single storage root.
type Local struct {
	Home string

	// SearchPath holds extra directories probed for model files when
	// the working directory has none.
	SearchPath *scope.PathList

	Log *slog.Logger
}

// NewLocal creates an executor for the given storage root.
func NewLocal(home string) *Local {
	return &Local{
		Home:       home,
		SearchPath: scope.NewPathList(),
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// RunCapture executes an operation, recording it under opts.RunDir, and
// returns the captured output. An abnormal exit returns a *RunError
// carrying the output and exit code.
func (l *Local) RunCapture(ctx context.Context, opspec string, opts RunOpts) (string, error) {
	op, err := l.resolveOp(opspec, opts.Cwd)
	if err != nil {
		return "", err
	}

	var warn string
	if _, statErr := os.Stat(opts.RunDir); statErr == nil && os.Getenv(NoWarnRunDirEnv) == "" {
		warn = fmt.Sprintf("WARNING: run directory %s exists\n", opts.RunDir)
	}

	r := run.FromDir(opts.RunDir)
	if err := l.initRun(r, op, opts); err != nil {
		return "", err
	}

	l.Log.Info("running operation", "opspec", op.FullName(), "run", r.ShortID())

	out, code, runErr := l.execOp(ctx, op, opts)
	out = warn + out

	if writeErr := os.WriteFile(r.OutputPath(), []byte(out), 0o644); writeErr != nil {
		return "", fmt.Errorf("record output: %w", writeErr)
	}

	if runErr != nil {
		_ = r.WriteAttr("status", run.StatusError)
		_ = r.WriteAttr("exit_code", code)
		return "", &RunError{OpSpec: op.FullName(), Output: out, ExitCode: code}
	}
	if err := r.WriteAttr("status", run.StatusCompleted); err != nil {
		return "", err
	}
	return out, nil
}

// RunQuiet executes an operation, discarding its output.
func (l *Local) RunQuiet(ctx context.Context, opspec string, opts RunOpts) error {
	_, err := l.RunCapture(ctx, opspec, opts)
	return err
}

// resolveOp finds the operation for an opspec of the form
// "model:operation" or "operation" (default model), probing cwd then
// the search path for a model file.
func (l *Local) resolveOp(opspec, cwd string) (*project.Operation, error) {
	p, err := l.loadProject(cwd)
	if err != nil {
		return nil, err
	}

	modelName, opName := "", opspec
	if i := strings.IndexByte(opspec, ':'); i >= 0 {
		modelName, opName = opspec[:i], opspec[i+1:]
	}

	model := p.DefaultModel()
	if modelName != "" {
		model = p.Get(modelName)
	}
	if model == nil {
		return nil, fmt.Errorf("no model for opspec %q in %s", opspec, p.Src)
	}
	op := model.GetOp(opName)
	if op == nil {
		return nil, fmt.Errorf("no operation %q for model %s in %s", opName, model.Name, p.Src)
	}
	return op, nil
}

func (l *Local) loadProject(cwd string) (*project.Project, error) {
	p, err := project.FromDir(cwd)
	var noModels *project.NoModelsError
	if err == nil || !errors.As(err, &noModels) {
		return p, err
	}
	for _, dir := range l.SearchPath.Paths() {
		p, err = project.FromDir(dir)
		if err == nil {
			return p, nil
		}
		if !errors.As(err, &noModels) {
			return nil, err
		}
	}
	return nil, &project.NoModelsError{Path: cwd}
}

// initRun prepares the run directory and its attributes before the
// operation starts.
func (l *Local) initRun(r *run.Run, op *project.Operation, opts RunOpts) error {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("init run dir: %w", err)
	}
	attrs := map[string]any{
		"opspec":  op.FullName(),
		"started": fmt.Sprintf("%020d", time.Now().UnixNano()),
		"status":  run.StatusRunning,
		"flags":   flagAttr(op, opts.Flags),
	}
	if opts.Label != "" {
		attrs["label"] = opts.Label
	}
	for name, val := range attrs {
		if err := r.WriteAttr(name, val); err != nil {
			return err
		}
	}
	return nil
}

// flagAttr merges operation flag defaults with caller overrides.
func flagAttr(op *project.Operation, overrides map[string]string) map[string]any {
	flags := map[string]any{}
	for name, val := range op.Flags {
		flags[name] = val
	}
	for name, val := range overrides {
		flags[name] = val
	}
	return flags
}

// execOp runs the operation command, returning combined output and the
// exit code on abnormal exit.
func (l *Local) execOp(ctx context.Context, op *project.Operation, opts RunOpts) (string, int, error) {
	cmdline := op.Cmd
	flags := flagAttr(op, opts.Flags)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmdline += fmt.Sprintf(" --%s %v", name, flags[name])
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	cmd.Dir = opts.Cwd
	cmd.Env = append(os.Environ(), "RUN_DIR="+opts.RunDir)
	for name, val := range opts.Env {
		cmd.Env = append(cmd.Env, name+"="+val)
	}

	out, err := cmd.CombinedOutput()
	if err == nil {
		return string(out), 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(out), exitErr.ExitCode(), err
	}
	return string(out), -1, err
}
