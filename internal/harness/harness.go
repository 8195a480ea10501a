// Package harness simulates the tracked system's operation-run
// lifecycle for transcripts: resolve a run directory, execute the
// operation, capture its output, and hand back a queryable run record.
// Transcripts create one Project per scenario and drive everything
// through it.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/runlit/runlit/internal/index"
	"github.com/runlit/runlit/internal/ops"
	"github.com/runlit/runlit/internal/run"
	"github.com/runlit/runlit/internal/scope"
)

// Ops is the narrow interface to the operation-execution collaborator.
// Everything here is glue around the storage root; the harness adds run
// directory resolution and output capture on top.
type Ops interface {
	RunCapture(ctx context.Context, opspec string, opts ops.RunOpts) (string, error)
	RunQuiet(ctx context.Context, opspec string, opts ops.RunOpts) error
	List() ([]*run.Run, error)
	Delete(selectors []string) error
	Mark(selectors []string, clear bool) error
	Label(selectors []string, label string) error
	Compare(ctx context.Context, selectors []string) ([][]string, error)
	Publish(selectors []string, dest string) error
	Package(cwd, dest string) (string, error)
}

// RunSpec describes one requested operation run. At most one of RunDir,
// Rerun, and Restart may be set; with none set a fresh run directory is
// minted.
type RunSpec struct {
	Op    string
	Flags map[string]string
	Label string

	// Cwd is relative to the project working directory.
	Cwd string

	// RunDir is an explicit target run directory.
	RunDir string

	// Rerun and Restart select an existing run by ID prefix.
	Rerun   string
	Restart string

	// Env is an extra environment overlay for the operation.
	Env map[string]string
}

// Project is the per-scenario harness fixture: a working directory, a
// private storage root, and the collaborator that executes operations.
type Project struct {
	Home string
	Cwd  string

	// Stdout receives the textual output of Run, PrintRuns, and the
	// other printing conveniences. Injected so the runner can capture
	// it; defaults to the process stdout.
	Stdout io.Writer

	// Paths is the model-file search path consulted when a working
	// directory has no model file of its own.
	Paths *scope.PathList

	Log *slog.Logger

	ops Ops
	ix  *index.Index
}

// Option configures a Project.
type Option func(*Project)

// WithHome uses an existing storage root instead of a fresh temporary
// one.
func WithHome(home string) Option {
	return func(p *Project) { p.Home = home }
}

// WithOps substitutes the operation-execution collaborator.
func WithOps(o Ops) Option {
	return func(p *Project) { p.ops = o }
}

// WithLogger sets the harness logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Project) { p.Log = log }
}

// New creates a harness project rooted at cwd. Unless WithHome is
// given, a fresh temporary storage root is created, so scenarios are
// isolated from each other.
func New(cwd string, opts ...Option) (*Project, error) {
	p := &Project{
		Cwd:    cwd,
		Stdout: os.Stdout,
		Paths:  scope.NewPathList(),
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.Home == "" {
		home, err := os.MkdirTemp("", "runlit-test-")
		if err != nil {
			return nil, fmt.Errorf("create home: %w", err)
		}
		p.Home = home
	}
	if err := run.InitHome(p.Home); err != nil {
		return nil, err
	}
	if p.ops == nil {
		local := ops.NewLocal(p.Home)
		local.SearchPath = p.Paths
		local.Log = p.Log
		p.ops = local
	}
	return p, nil
}

// Close releases the project's index, if it was opened.
func (p *Project) Close() error {
	if p.ix == nil {
		return nil
	}
	err := p.ix.Close()
	p.ix = nil
	return err
}

// RunCapture runs an operation and returns the run record together
// with its captured output. The run directory is resolved before the
// operation executes, so the record is valid immediately even for a
// freshly minted run.
func (p *Project) RunCapture(spec RunSpec) (*run.Run, string, error) {
	dir, err := p.ResolveRunDir(spec)
	if err != nil {
		return nil, "", err
	}

	// Keep output deterministic: the directory-conflict warning would
	// otherwise fire on every rerun and restart.
	restore := scope.Env(map[string]string{ops.NoWarnRunDirEnv: "1"})
	defer restore()

	out, err := p.ops.RunCapture(context.Background(), spec.Op, ops.RunOpts{
		Cwd:    filepath.Join(p.Cwd, spec.Cwd),
		RunDir: dir,
		Flags:  spec.Flags,
		Label:  spec.Label,
		Env:    spec.Env,
	})
	if err != nil {
		return run.FromDir(dir), "", err
	}
	return run.FromDir(dir), strings.TrimSpace(out), nil
}

// Run runs an operation and prints its output. On abnormal exit the
// captured output is printed followed by the exit code, which is the
// textual contract transcripts assert against. Any other failure is a
// hard failure of the calling example.
func (p *Project) Run(spec RunSpec) {
	_, out, err := p.RunCapture(spec)
	if err != nil {
		var runErr *ops.RunError
		if errors.As(err, &runErr) {
			fmt.Fprintf(p.Stdout, "%s\n<exit %d>\n", strings.TrimSpace(runErr.Output), runErr.ExitCode)
			return
		}
		panic(err)
	}
	fmt.Fprintln(p.Stdout, out)
}

// RunQuiet runs an operation, discarding output.
func (p *Project) RunQuiet(spec RunSpec) error {
	dir, err := p.ResolveRunDir(spec)
	if err != nil {
		return err
	}
	restore := scope.Env(map[string]string{ops.NoWarnRunDirEnv: "1"})
	defer restore()
	return p.ops.RunQuiet(context.Background(), spec.Op, ops.RunOpts{
		Cwd:    filepath.Join(p.Cwd, spec.Cwd),
		RunDir: dir,
		Flags:  spec.Flags,
		Label:  spec.Label,
		Env:    spec.Env,
	})
}

// ListRuns returns the project's runs, newest first.
func (p *Project) ListRuns() []*run.Run {
	runs, err := p.ops.List()
	if err != nil {
		panic(err)
	}
	return runs
}

// PrintRunsOpts select the columns PrintRuns shows beyond the
// operation spec.
type PrintRunsOpts struct {
	Flags  bool
	Labels bool
	Status bool
}

// PrintRuns prints a table of runs to the project's stdout.
func (p *Project) PrintRuns(runs []*run.Run, opts PrintRunsOpts) {
	if runs == nil {
		runs = p.ListRuns()
	}
	header := []string{"operation"}
	if opts.Flags {
		header = append(header, "flags")
	}
	if opts.Labels {
		header = append(header, "label")
	}
	if opts.Status {
		header = append(header, "status")
	}
	rows := [][]string{header}
	for _, r := range runs {
		row := []string{r.OpSpec()}
		if opts.Flags {
			row = append(row, flagsDesc(r.Flags()))
		}
		if opts.Labels {
			row = append(row, r.Label())
		}
		if opts.Status {
			row = append(row, r.Status())
		}
		rows = append(rows, row)
	}
	printTable(p.Stdout, rows)
}

// flagsDesc renders flag assignments as "a=1 b=2", sorted by name.
func flagsDesc(flags map[string]any) string {
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, flags[name]))
	}
	return strings.Join(parts, " ")
}

// DeleteRuns removes the selected runs (all, when no selectors).
func (p *Project) DeleteRuns(selectors ...string) {
	if err := p.ops.Delete(selectors); err != nil {
		panic(err)
	}
}

// Mark marks the selected runs.
func (p *Project) Mark(selectors ...string) {
	if err := p.ops.Mark(selectors, false); err != nil {
		panic(err)
	}
}

// Unmark clears the mark on the selected runs.
func (p *Project) Unmark(selectors ...string) {
	if err := p.ops.Mark(selectors, true); err != nil {
		panic(err)
	}
}

// Label labels the selected runs.
func (p *Project) Label(label string, selectors ...string) {
	if err := p.ops.Label(selectors, label); err != nil {
		panic(err)
	}
}

// Compare returns the comparison table for the selected runs.
func (p *Project) Compare(selectors ...string) [][]string {
	table, err := p.ops.Compare(context.Background(), selectors)
	if err != nil {
		panic(err)
	}
	return table
}

// PrintCompare prints the comparison table to the project's stdout.
func (p *Project) PrintCompare(selectors ...string) {
	printTable(p.Stdout, p.Compare(selectors...))
}

// Publish copies the selected runs to dest.
func (p *Project) Publish(dest string, selectors ...string) {
	if err := p.ops.Publish(selectors, dest); err != nil {
		panic(err)
	}
}

// Package archives the project directory into dest and returns the
// archive path.
func (p *Project) Package(dest string) string {
	out, err := p.ops.Package(p.Cwd, dest)
	if err != nil {
		panic(err)
	}
	return out
}

func (p *Project) openIndex() *index.Index {
	if p.ix == nil {
		ix, err := index.Open(filepath.Join(p.Home, "index.db"))
		if err != nil {
			panic(err)
		}
		p.ix = ix
	}
	return p.ix
}

// RunScalars refreshes the index for r and returns its scalars.
func (p *Project) RunScalars(r *run.Run) map[string]float64 {
	ix := p.openIndex()
	ctx := context.Background()
	if err := ix.Refresh(ctx, []*run.Run{r}); err != nil {
		panic(err)
	}
	scalars, err := ix.RunScalars(ctx, r)
	if err != nil {
		panic(err)
	}
	return scalars
}

// RunScalar refreshes the index for r and returns one scalar value.
// The second return is false when the tag was not found.
func (p *Project) RunScalar(r *run.Run, tag string) (float64, bool) {
	ix := p.openIndex()
	ctx := context.Background()
	if err := ix.Refresh(ctx, []*run.Run{r}); err != nil {
		panic(err)
	}
	v, ok, err := ix.RunScalar(ctx, r, tag)
	if err != nil {
		panic(err)
	}
	return v, ok
}

// Ls lists a run directory's files, sorted, relative to the run dir.
// Metadata under the hidden run directory is filtered unless all is
// set.
func (p *Project) Ls(r *run.Run, all bool) []string {
	var paths []string
	err := filepath.Walk(r.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.Dir, path)
		if err != nil {
			return err
		}
		if !all && strings.HasPrefix(rel, run.MetaDir+string(filepath.Separator)) {
			return nil
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		panic(err)
	}
	sort.Strings(paths)
	return paths
}

// Cat prints a file from a run directory to the project's stdout.
func (p *Project) Cat(r *run.Run, path string) {
	data, err := os.ReadFile(filepath.Join(r.Dir, path))
	if err != nil {
		panic(err)
	}
	fmt.Fprint(p.Stdout, string(data))
}
