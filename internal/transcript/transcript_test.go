package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runlit/runlit/internal/match"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b-runs.md", "# Runs\n")
	writeFile(t, dir, "a-ops.md", "# Ops\n")
	writeFile(t, dir, "notes.txt", "ignored\n")
	writeFile(t, dir, "win.md", "skip-windows: yes\n\n# Windows-hostile\n")

	files, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, "a-ops", files[0].Name)
	assert.Equal(t, "b-runs", files[1].Name)
	assert.Equal(t, "win", files[2].Name)
	assert.False(t, files[0].SkipOnWindows)
	assert.True(t, files[2].SkipOnWindows)
}

func TestSkipDirectiveOnlyNearTop(t *testing.T) {
	dir := t.TempDir()
	pad := make([]byte, 300)
	for i := range pad {
		pad[i] = '#'
	}
	path := writeFile(t, dir, "late.md", string(pad)+"\nskip-windows: yes\n")

	f, err := Load(path)
	require.NoError(t, err)
	assert.False(t, f.SkipOnWindows)
}

func TestParseSingleExample(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "t.md", `# Title

Some prose.

    >>> fmt.Println("hi")
    hi

Trailing prose.
`)
	examples, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, examples, 1)

	assert.Equal(t, 5, examples[0].Line)
	assert.Equal(t, `fmt.Println("hi")`, examples[0].Source)
	assert.Equal(t, "hi\n", examples[0].Want)
}

func TestParseContinuationLines(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "t.md", `
    >>> for _, s := range []string{"a", "b"} {
    ...     fmt.Println(s)
    ... }
    a
    b
`)
	examples, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, examples, 1)

	assert.Equal(t, "for _, s := range []string{\"a\", \"b\"} {\n    fmt.Println(s)\n}", examples[0].Source)
	assert.Equal(t, "a\nb\n", examples[0].Want)
}

func TestParseNoOutput(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "t.md", `
    >>> x := 1

    >>> x
    1
`)
	examples, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, examples, 2)

	assert.Equal(t, "x := 1", examples[0].Source)
	assert.Empty(t, examples[0].Want)
	assert.Equal(t, "x", examples[1].Source)
	assert.Equal(t, "1\n", examples[1].Want)
}

func TestParseAdjacentPrompts(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "t.md", `
    >>> fmt.Println("one")
    one
    >>> fmt.Println("two")
    two
`)
	examples, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, examples, 2)

	assert.Equal(t, "one\n", examples[0].Want)
	assert.Equal(t, "two\n", examples[1].Want)
}

func TestParseWantEndsAtDedent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "t.md", `
    >>> fmt.Println("deep")
    deep
back to prose
`)
	examples, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, "deep\n", examples[0].Want)
}

func TestParseDirectives(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "t.md", `
    >>> fmt.Println(home) // lit: +normalize-paths -ellipsis
    /tmp/...
`)
	examples, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, examples, 1)

	assert.Equal(t, "fmt.Println(home)", examples[0].Source)
	assert.Equal(t, match.NormalizePaths, examples[0].Set)
	assert.Equal(t, match.Ellipsis, examples[0].Clear)
}

func TestParseUnknownDirective(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "t.md", "    >>> x // lit: +bogus\n")
	_, err := Parse(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown option "bogus"`)
}

func TestParseBareContinuationMarker(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "t.md", `
    >>> if true {
    ...
    ... }
`)
	examples, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, "if true {\n\n}", examples[0].Source)
}
