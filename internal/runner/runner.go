package runner

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/runlit/runlit/internal/match"
	"github.com/runlit/runlit/internal/transcript"
)

// BaseFlags are in effect for every example unless a directive turns
// them off.
const BaseFlags = match.Ellipsis | match.CollapseWhitespace

// FirstFailureEnv, when set to 1, suppresses all but the first failure
// report per transcript. Examples still execute and count.
const FirstFailureEnv = "RUNLIT_FIRST_FAILURE_ONLY"

// nameWidth aligns the per-transcript status column.
const nameWidth = 27

// Options configure a runner pass.
type Options struct {
	// Dir is the directory searched for transcripts.
	Dir string

	// Tests selects transcripts by name. Empty runs everything
	// discovered, in name order.
	Tests []string

	// Skip lists transcript names to report as skipped.
	Skip []string

	// Flags are the base matching flags. Zero means BaseFlags.
	Flags match.Flags

	Stdout io.Writer
	Log    *slog.Logger
}

// Summary is the outcome of a runner pass, counted per transcript.
type Summary struct {
	Tests  int
	Failed int
}

// OK reports whether every selected transcript passed.
func (s Summary) OK() bool { return s.Failed == 0 }

// Run executes the selected transcripts and writes a status line per
// transcript plus a report for each failed example.
func Run(opts Options) (Summary, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Flags == 0 {
		opts.Flags = BaseFlags
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if os.Getenv(FirstFailureEnv) == "1" {
		opts.Flags |= match.ReportFirstOnly
	}

	files, err := transcript.Discover(opts.Dir)
	if err != nil {
		return Summary{}, err
	}
	byName := make(map[string]transcript.File, len(files))
	for _, f := range files {
		byName[f.Name] = f
	}
	selected := opts.Tests
	if len(selected) == 0 {
		for _, f := range files {
			selected = append(selected, f.Name)
		}
	}
	skip := make(map[string]bool, len(opts.Skip))
	for _, name := range opts.Skip {
		skip[name] = true
	}

	r := &reporter{w: opts.Stdout}
	fmt.Fprintln(opts.Stdout, "transcript tests:")

	var sum Summary
	for _, name := range selected {
		sum.Tests++
		r.name(name)

		if skip[name] {
			r.status("skipped")
			continue
		}
		f, ok := byName[name]
		if !ok {
			r.status("ERROR test not found")
			sum.Failed++
			continue
		}
		if f.SkipOnWindows && runtime.GOOS == "windows" {
			r.status("ok (skipped)")
			continue
		}

		failed, err := runFile(f, opts, r)
		if err != nil {
			return sum, err
		}
		if failed == 0 {
			r.status("ok")
		} else {
			opts.Log.Info("transcript failed", "name", name, "examples", failed)
			sum.Failed++
		}
	}
	return sum, nil
}

// runFile evaluates one transcript in a fresh namespace and returns
// the number of failed examples.
func runFile(f transcript.File, opts Options, r *reporter) (int, error) {
	examples, err := transcript.Parse(f.Path)
	if err != nil {
		return 0, err
	}
	ns, err := NewNamespace()
	if err != nil {
		return 0, err
	}
	defer ns.Close()

	binds := match.NewBindings(match.BindScopeFile)
	failed := 0
	for _, ex := range examples {
		flags := (opts.Flags | ex.Set) &^ ex.Clear
		if flags.Has(match.GateWindows) && runtime.GOOS != "windows" {
			continue
		}
		got, err := ns.Eval(ex.Source)
		if err != nil {
			return failed, err
		}
		res, merr := match.Match(ex.Want, got, flags, binds)
		binds.EndExample()
		if merr == nil && res.OK {
			continue
		}
		failed++
		if failed > 1 && flags.Has(match.ReportFirstOnly) {
			continue
		}
		if merr != nil {
			r.failure(patternReport(f.Path, ex, merr))
		} else {
			r.failure(failureReport(f.Path, ex, res))
		}
	}
	return failed, nil
}

const sepLine = "**********************************************************************"

// failureReport renders one failed example in the familiar
// file/example/expected/got layout, with a line diff of the normalized
// forms when both sides are non-empty.
func failureReport(path string, ex transcript.Example, res match.Result) string {
	var b strings.Builder
	fmt.Fprintln(&b, sepLine)
	fmt.Fprintf(&b, "File %q, line %d\n", path, ex.Line)
	fmt.Fprintln(&b, "Failed example:")
	writeIndented(&b, ex.Source)
	if ex.Want != "" {
		fmt.Fprintln(&b, "Expected:")
		writeIndented(&b, ex.Want)
	} else {
		fmt.Fprintln(&b, "Expected nothing")
	}
	if res.Actual != "" {
		fmt.Fprintln(&b, "Got:")
		writeIndented(&b, res.Actual)
	} else {
		fmt.Fprintln(&b, "Got nothing")
	}
	if d := res.Diff(); d != "" {
		fmt.Fprintln(&b, "Differences:")
		writeIndented(&b, d)
	}
	return b.String()
}

// patternReport renders an expected-output pattern that failed to
// compile.
func patternReport(path string, ex transcript.Example, err error) string {
	var b strings.Builder
	fmt.Fprintln(&b, sepLine)
	fmt.Fprintf(&b, "File %q, line %d\n", path, ex.Line)
	fmt.Fprintln(&b, "Failed example:")
	writeIndented(&b, ex.Source)
	fmt.Fprintf(&b, "Bad expected-output pattern: %v\n", err)
	return b.String()
}

func writeIndented(b *strings.Builder, s string) {
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		fmt.Fprintf(b, "    %s\n", line)
	}
}

// reporter writes the per-transcript status column. The name line is
// left open until either a status or the first failure report closes
// it.
type reporter struct {
	w       io.Writer
	pending bool
}

func (r *reporter) name(name string) {
	pad := nameWidth - len(name)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(r.w, "  %s:%s ", name, strings.Repeat(" ", pad))
	r.pending = true
}

func (r *reporter) status(s string) {
	fmt.Fprintln(r.w, s)
	r.pending = false
}

func (r *reporter) failure(text string) {
	if r.pending {
		fmt.Fprintln(r.w)
		r.pending = false
	}
	fmt.Fprint(r.w, text)
}

// FindDir returns the default transcript directory for a project tree:
// the first of dir/tests, dir itself, that contains transcript files.
func FindDir(dir string) (string, error) {
	for _, cand := range []string{filepath.Join(dir, "tests"), dir} {
		matches, err := fs.Glob(os.DirFS(cand), "*"+transcript.Ext)
		if err == nil && len(matches) > 0 {
			return cand, nil
		}
	}
	return "", fmt.Errorf("no transcripts under %s", dir)
}
