package harness

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runlit/runlit/internal/run"
)

const testModels = `
name: m
operations:
  hello:
    cmd: echo hello
  fail:
    cmd: "echo oops; exit 7"
  scalars:
    cmd: "echo loss: 0.25; echo acc: 0.75"
  touch:
    cmd: echo made > artifact.txt
`

func newProject(t *testing.T) *Project {
	t.Helper()
	cwd := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "models.yml"), []byte(testModels), 0o644))
	p, err := New(cwd)
	require.NoError(t, err)
	t.Cleanup(func() {
		p.Close()
		os.RemoveAll(p.Home)
	})
	return p
}

func TestRunCapture(t *testing.T) {
	p := newProject(t)

	r, out, err := p.RunCapture(RunSpec{Op: "m:hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, run.StatusCompleted, r.Status())
	assert.True(t, strings.HasPrefix(r.Dir, run.RunsDir(p.Home)))
}

func TestFreshRunsGetDistinctDirs(t *testing.T) {
	p := newProject(t)

	a, _, err := p.RunCapture(RunSpec{Op: "m:hello"})
	require.NoError(t, err)
	b, _, err := p.RunCapture(RunSpec{Op: "m:hello"})
	require.NoError(t, err)
	assert.NotEqual(t, a.Dir, b.Dir)

	runs := p.ListRuns()
	assert.Len(t, runs, 2)
}

func TestResolveRunDirExplicit(t *testing.T) {
	p := newProject(t)
	want := filepath.Join(t.TempDir(), "target")

	dir, err := p.ResolveRunDir(RunSpec{RunDir: want})
	require.NoError(t, err)
	assert.Equal(t, want, dir)

	// The resolver never creates the directory.
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestResolveRunDirRerun(t *testing.T) {
	p := newProject(t)
	orig, _, err := p.RunCapture(RunSpec{Op: "m:hello"})
	require.NoError(t, err)

	dir, err := p.ResolveRunDir(RunSpec{Op: "m:hello", Rerun: orig.ID[:8]})
	require.NoError(t, err)
	assert.Equal(t, orig.Dir, dir)

	dir, err = p.ResolveRunDir(RunSpec{Op: "m:hello", Restart: orig.ID[:8]})
	require.NoError(t, err)
	assert.Equal(t, orig.Dir, dir)
}

func TestResolveRunDirConflict(t *testing.T) {
	p := newProject(t)
	_, err := p.ResolveRunDir(RunSpec{Op: "m:hello", Rerun: "aa", Restart: "bb"})
	assert.ErrorIs(t, err, ErrConflictingSelectors)
}

func TestResolveRunDirBadSelector(t *testing.T) {
	p := newProject(t)
	_, err := p.ResolveRunDir(RunSpec{Op: "m:hello", Rerun: "zzzz"})
	var notFound *run.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRerunReusesDir(t *testing.T) {
	p := newProject(t)
	orig, _, err := p.RunCapture(RunSpec{Op: "m:hello"})
	require.NoError(t, err)

	// Rerunning must not warn about the existing directory and must
	// not mint a second run.
	again, out, err := p.RunCapture(RunSpec{Op: "m:hello", Rerun: orig.ID[:8]})
	require.NoError(t, err)
	assert.Equal(t, orig.Dir, again.Dir)
	assert.NotContains(t, out, "WARNING")
	assert.Len(t, p.ListRuns(), 1)
}

func TestRunPrintsOutput(t *testing.T) {
	p := newProject(t)
	var buf bytes.Buffer
	p.Stdout = &buf

	p.Run(RunSpec{Op: "m:hello"})
	assert.Equal(t, "hello\n", buf.String())
}

func TestRunPrintsExitTrailer(t *testing.T) {
	p := newProject(t)
	var buf bytes.Buffer
	p.Stdout = &buf

	p.Run(RunSpec{Op: "m:fail"})
	assert.Equal(t, "oops\n<exit 7>\n", buf.String())
}

func TestPrintRuns(t *testing.T) {
	p := newProject(t)
	_, _, err := p.RunCapture(RunSpec{Op: "m:hello", Label: "first"})
	require.NoError(t, err)

	var buf bytes.Buffer
	p.Stdout = &buf
	p.PrintRuns(nil, PrintRunsOpts{Labels: true, Status: true})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "operation")
	assert.Contains(t, lines[1], "m:hello")
	assert.Contains(t, lines[1], "first")
	assert.Contains(t, lines[1], "completed")
}

func TestRunScalars(t *testing.T) {
	p := newProject(t)
	r, _, err := p.RunCapture(RunSpec{Op: "m:scalars"})
	require.NoError(t, err)

	scalars := p.RunScalars(r)
	assert.Equal(t, map[string]float64{"loss": 0.25, "acc": 0.75}, scalars)

	v, ok := p.RunScalar(r, "loss")
	assert.True(t, ok)
	assert.Equal(t, 0.25, v)

	_, ok = p.RunScalar(r, "missing")
	assert.False(t, ok)
}

func TestLsAndCat(t *testing.T) {
	p := newProject(t)
	r, _, err := p.RunCapture(RunSpec{Op: "m:touch", RunDir: filepath.Join(run.RunsDir(p.Home), run.MkID())})
	require.NoError(t, err)

	// The operation ran in the project cwd; copy its artifact into the
	// run dir to exercise listing.
	require.NoError(t, os.Rename(filepath.Join(p.Cwd, "artifact.txt"), filepath.Join(r.Dir, "artifact.txt")))

	assert.Equal(t, []string{"artifact.txt"}, p.Ls(r, false))
	assert.Contains(t, p.Ls(r, true), ".runlit/attrs/opspec")

	var buf bytes.Buffer
	p.Stdout = &buf
	p.Cat(r, "artifact.txt")
	assert.Equal(t, "made\n", buf.String())
}

func TestDeleteRuns(t *testing.T) {
	p := newProject(t)
	r, _, err := p.RunCapture(RunSpec{Op: "m:hello"})
	require.NoError(t, err)

	p.DeleteRuns(r.ID[:8])
	assert.Empty(t, p.ListRuns())
}

func TestCompare(t *testing.T) {
	p := newProject(t)
	_, _, err := p.RunCapture(RunSpec{Op: "m:scalars"})
	require.NoError(t, err)

	table := p.Compare()
	require.Len(t, table, 2)
	assert.Equal(t, []string{"run", "operation", "label", "status", "acc", "loss"}, table[0])

	var buf bytes.Buffer
	p.Stdout = &buf
	p.PrintCompare()
	assert.Contains(t, buf.String(), "m:scalars")
}

func TestCwdRelativeRuns(t *testing.T) {
	p := newProject(t)
	sub := filepath.Join(p.Cwd, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "models.yml"), []byte(`
name: nested
operations:
  hi: echo nested
`), 0o644))

	_, out, err := p.RunCapture(RunSpec{Op: "nested:hi", Cwd: "sub"})
	require.NoError(t, err)
	assert.Equal(t, "nested", out)
}
