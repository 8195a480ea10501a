package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMatch(t *testing.T, expected, actual string, flags Flags, binds *Bindings) Result {
	t.Helper()
	res, err := Match(expected, actual, flags, binds)
	require.NoError(t, err)
	return res
}

func TestMatch_LiteralEqual(t *testing.T) {
	res := mustMatch(t, "hello\nworld\n", "hello\nworld\n", 0, nil)
	assert.True(t, res.OK)
}

func TestMatch_LiteralUnequal(t *testing.T) {
	res := mustMatch(t, "hello\n", "goodbye\n", 0, nil)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Diff())
}

func TestMatch_CaseSensitive(t *testing.T) {
	res := mustMatch(t, "Hello\n", "hello\n", 0, nil)
	assert.False(t, res.OK)
}

func TestMatch_EmptyPattern(t *testing.T) {
	t.Run("matches empty actual", func(t *testing.T) {
		res := mustMatch(t, "", "", Ellipsis, nil)
		assert.True(t, res.OK)
	})
	t.Run("rejects non-empty actual", func(t *testing.T) {
		res := mustMatch(t, "", "2\n", Ellipsis, nil)
		assert.False(t, res.OK)
	})
}

func TestMatch_TrailingNewlineInsensitive(t *testing.T) {
	res := mustMatch(t, "2", "2\n", 0, nil)
	assert.True(t, res.OK)
}

func TestMatch_InlineWildcard(t *testing.T) {
	t.Run("binds rest of line", func(t *testing.T) {
		res := mustMatch(t, "error: ...\n", "error: disk full\n", Ellipsis, nil)
		assert.True(t, res.OK)
	})
	t.Run("never crosses a line break", func(t *testing.T) {
		res := mustMatch(t, "error: ...\n", "error: disk\nfull\n", Ellipsis, nil)
		assert.False(t, res.OK)
	})
	t.Run("mid line", func(t *testing.T) {
		res := mustMatch(t, "run ... completed\n", "run abc123 completed\n", Ellipsis, nil)
		assert.True(t, res.OK)
	})
	t.Run("literal dots without flag", func(t *testing.T) {
		res := mustMatch(t, "error: ...\n", "error: disk full\n", 0, nil)
		assert.False(t, res.OK)

		res = mustMatch(t, "error: ...\n", "error: ...\n", 0, nil)
		assert.True(t, res.OK)
	})
}

func TestMatch_LineWildcard(t *testing.T) {
	expected := "start\n...\nend\n"

	t.Run("consumes middle lines", func(t *testing.T) {
		res := mustMatch(t, expected, "start\nmiddle1\nmiddle2\nend\n", Ellipsis, nil)
		assert.True(t, res.OK)
	})
	t.Run("consumes zero lines", func(t *testing.T) {
		res := mustMatch(t, expected, "start\nend\n", Ellipsis, nil)
		assert.True(t, res.OK)
	})
	t.Run("still requires alignment", func(t *testing.T) {
		res := mustMatch(t, expected, "start\nmiddle\n", Ellipsis, nil)
		assert.False(t, res.OK)
	})
	t.Run("trailing wildcard consumes rest", func(t *testing.T) {
		res := mustMatch(t, "start\n...\n", "start\na\nb\nc\n", Ellipsis, nil)
		assert.True(t, res.OK)
	})
}

func TestMatch_QuestionMarkAlias(t *testing.T) {
	// "???" at the start of a line stands in for "..." so patterns can
	// begin with a wildcard without colliding with the continuation
	// marker.
	res := mustMatch(t, "???\nend\n", "anything\nat all\nend\n", Ellipsis, nil)
	assert.True(t, res.OK)
}

func TestMatch_Capture(t *testing.T) {
	t.Run("first occurrence binds", func(t *testing.T) {
		binds := NewBindings(BindScopeFile)
		res := mustMatch(t, "id: {{x}}\n", "id: 42\n", Ellipsis, binds)
		require.True(t, res.OK)
		v, ok := binds.Lookup("x")
		require.True(t, ok)
		assert.Equal(t, "42", v)
	})

	t.Run("later occurrence verifies", func(t *testing.T) {
		binds := NewBindings(BindScopeFile)
		res := mustMatch(t, "id: {{x}}\n", "id: 42\n", Ellipsis, binds)
		require.True(t, res.OK)

		res = mustMatch(t, "again: {{x}}\n", "again: 42\n", Ellipsis, binds)
		assert.True(t, res.OK)

		res = mustMatch(t, "again: {{x}}\n", "again: 43\n", Ellipsis, binds)
		assert.False(t, res.OK, "bound capture must reject a different value")
	})

	t.Run("repeated in one pattern must agree", func(t *testing.T) {
		binds := NewBindings(BindScopeFile)
		res := mustMatch(t, "{{a}} = {{a}}\n", "7 = 7\n", Ellipsis, binds)
		assert.True(t, res.OK)

		binds = NewBindings(BindScopeFile)
		res = mustMatch(t, "{{a}} = {{a}}\n", "7 = 8\n", Ellipsis, binds)
		assert.False(t, res.OK)
	})

	t.Run("example scope forgets across examples", func(t *testing.T) {
		binds := NewBindings(BindScopeExample)
		res := mustMatch(t, "id: {{x}}\n", "id: 42\n", Ellipsis, binds)
		require.True(t, res.OK)
		binds.EndExample()

		res = mustMatch(t, "id: {{x}}\n", "id: 99\n", Ellipsis, binds)
		assert.True(t, res.OK, "example-scoped binding must not persist")
	})

	t.Run("file scope persists across examples", func(t *testing.T) {
		binds := NewBindings(BindScopeFile)
		res := mustMatch(t, "id: {{x}}\n", "id: 42\n", Ellipsis, binds)
		require.True(t, res.OK)
		binds.EndExample()

		res = mustMatch(t, "id: {{x}}\n", "id: 99\n", Ellipsis, binds)
		assert.False(t, res.OK)
	})

	t.Run("whole line capture", func(t *testing.T) {
		binds := NewBindings(BindScopeFile)
		res := mustMatch(t, "{{out}}\n", "some output\n", Ellipsis, binds)
		require.True(t, res.OK)
		v, _ := binds.Lookup("out")
		assert.Equal(t, "some output", v)
	})
}

func TestMatch_CollapseWhitespace(t *testing.T) {
	t.Run("runs collapse", func(t *testing.T) {
		res := mustMatch(t, "a   b\n", "a b\n", CollapseWhitespace, nil)
		assert.True(t, res.OK)
	})
	t.Run("line breaks collapse", func(t *testing.T) {
		res := mustMatch(t, "a b\n", "a\nb\n", CollapseWhitespace, nil)
		assert.True(t, res.OK)
	})
	t.Run("content still compared", func(t *testing.T) {
		res := mustMatch(t, "a b\n", "a c\n", CollapseWhitespace, nil)
		assert.False(t, res.OK)
	})
	t.Run("off by default", func(t *testing.T) {
		res := mustMatch(t, "a   b\n", "a b\n", 0, nil)
		assert.False(t, res.OK)
	})
	t.Run("composes with wildcards", func(t *testing.T) {
		res := mustMatch(t, "total:   ...\n", "total: 17 items\n", Ellipsis|CollapseWhitespace, nil)
		assert.True(t, res.OK)
	})
}

func TestMatch_NormalizePaths(t *testing.T) {
	t.Run("drive and separators rewritten", func(t *testing.T) {
		res := mustMatch(t, "/a/b\n", `C:\a\b`+"\n", NormalizePaths, nil)
		assert.True(t, res.OK)
	})
	t.Run("doubled separators rewritten", func(t *testing.T) {
		res := mustMatch(t, "/a/b\n", `C:\\a\\b`+"\n", NormalizePaths, nil)
		assert.True(t, res.OK)
	})
	t.Run("without flag no match", func(t *testing.T) {
		res := mustMatch(t, "/a/b\n", `C:\a\b`+"\n", 0, nil)
		assert.False(t, res.OK)
	})
}

func TestMatch_LegacyNormalization(t *testing.T) {
	t.Run("string prefix stripped", func(t *testing.T) {
		res := mustMatch(t, "['a', 'b']\n", "[u'a', u'b']\n", StripStringPrefix, nil)
		assert.True(t, res.OK)
	})
	t.Run("string prefix at line start", func(t *testing.T) {
		res := mustMatch(t, "'a'\n", "u'a'\n", StripStringPrefix, nil)
		assert.True(t, res.OK)
	})
	t.Run("long suffix stripped", func(t *testing.T) {
		res := mustMatch(t, "42\n", "42L\n", StripLongSuffix, nil)
		assert.True(t, res.OK)
	})
	t.Run("flags independent", func(t *testing.T) {
		res := mustMatch(t, "42\n", "42L\n", StripStringPrefix, nil)
		assert.False(t, res.OK)

		res = mustMatch(t, "'a'\n", "u'a'\n", StripLongSuffix, nil)
		assert.False(t, res.OK)
	})
}

func TestMatch_NormalizedFormsReported(t *testing.T) {
	res := mustMatch(t, "/a/b\n", `C:\a\c`+"\n", NormalizePaths, nil)
	require.False(t, res.OK)
	assert.Equal(t, `C:\a\c`+"\n", res.Actual)
	assert.Equal(t, "/a/c\n", res.ActualNorm)
}

func TestParseFlag(t *testing.T) {
	for name, want := range map[string]Flags{
		"ellipsis":            Ellipsis,
		"collapse-whitespace": CollapseWhitespace,
		"normalize-paths":     NormalizePaths,
		"strip-string-prefix": StripStringPrefix,
		"strip-long-suffix":   StripLongSuffix,
		"windows":             GateWindows,
		"report-first-only":   ReportFirstOnly,
	} {
		got, ok := ParseFlag(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got)
	}

	_, ok := ParseFlag("bogus")
	assert.False(t, ok)
}
