// Package match compares expected transcript output against captured
// output using an extended wildcard grammar.
//
// The grammar recognized inside an expected pattern:
//
//   - "..." embedded within a line matches the minimal span of characters
//     that lets the rest of the line align. It never crosses a line break.
//   - "..." alone on a line matches zero or more whole lines.
//   - "{{name}}" binds to the literal text at that position on first
//     occurrence; later occurrences must match the bound value exactly.
//   - "???" at the start of a line is rewritten to "..." (workaround for
//     "..." doubling as the source continuation marker).
//
// Matching is a pure function of (expected, actual, flags, bindings);
// there is no hidden state.
package match

import (
	"fmt"
	"regexp"
	"strings"
)

// Flags control optional normalization and gating behavior.
// Flags are independent and may be toggled per example.
type Flags uint16

const (
	// Ellipsis enables the "..." wildcard grammar. Without it, "..." is
	// literal text.
	Ellipsis Flags = 1 << iota

	// CollapseWhitespace treats any run of whitespace (including line
	// breaks) in the expected pattern as matching any run of whitespace
	// in the actual output.
	CollapseWhitespace

	// NormalizePaths rewrites platform-specific absolute paths in the
	// actual output to a canonical forward-slash form before comparing.
	NormalizePaths

	// StripStringPrefix strips the legacy unicode string prefix from
	// quoted strings in the actual output (u'x' compares equal to 'x').
	StripStringPrefix

	// StripLongSuffix strips the legacy long-integer suffix from numbers
	// in the actual output (42L compares equal to 42).
	StripLongSuffix

	// GateWindows marks an example as Windows-only. On other platforms
	// the example is skipped and counted as passing. The gate is applied
	// by the runner, not by Match.
	GateWindows

	// ReportFirstOnly suppresses reporting (not execution) of further
	// mismatches in a file once the first is found. File-scoped.
	ReportFirstOnly
)

// Has reports whether all bits of o are set in f.
func (f Flags) Has(o Flags) bool { return f&o == o }

// flagNames maps directive names to flags.
var flagNames = map[string]Flags{
	"ellipsis":            Ellipsis,
	"collapse-whitespace": CollapseWhitespace,
	"normalize-paths":     NormalizePaths,
	"strip-string-prefix": StripStringPrefix,
	"strip-long-suffix":   StripLongSuffix,
	"windows":             GateWindows,
	"report-first-only":   ReportFirstOnly,
}

// ParseFlag resolves a directive name like "normalize-paths" to its flag.
func ParseFlag(name string) (Flags, bool) {
	f, ok := flagNames[name]
	return f, ok
}

// Result is the verdict for one comparison. On failure it carries both
// the raw and the normalized forms so diagnostics are reproducible.
type Result struct {
	OK bool

	// Expected and Actual are the inputs as given.
	Expected string
	Actual   string

	// ExpectedNorm and ActualNorm are the forms that were compared,
	// after flag-driven normalization.
	ExpectedNorm string
	ActualNorm   string
}

var (
	capTokenRE = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)
	blankERE   = regexp.MustCompile(`(?m)^\?\?\?`)
	lineWildRE = regexp.MustCompile(`^\s*\.\.\.\s*$`)
)

// Match compares expected pattern text against actual captured text.
// binds may be nil, in which case capture tokens bind into a throwaway
// set. On a successful match, first-occurrence captures are recorded in
// binds.
func Match(expected, actual string, flags Flags, binds *Bindings) (Result, error) {
	res := Result{Expected: expected, Actual: actual}

	want := normalizeExpected(expected, flags)
	got := normalizeActual(actual, flags)
	res.ExpectedNorm = want
	res.ActualNorm = got

	// An empty pattern means "no output expected" and matches only
	// exactly-empty actual output.
	if want == "" {
		res.OK = got == ""
		return res, nil
	}

	if binds == nil {
		binds = NewBindings(BindScopeExample)
	}

	re, names, err := compilePattern(want, flags, binds)
	if err != nil {
		return res, err
	}

	m := re.FindStringSubmatch(ensureTrailingNewline(got))
	if m == nil {
		return res, nil
	}

	// Verify capture groups: repeated names within one pattern must have
	// captured identical text, and must agree with prior bindings.
	seen := map[string]string{}
	for i, name := range names {
		val := m[i+1]
		if prev, ok := seen[name]; ok && prev != val {
			return res, nil
		}
		seen[name] = val
		if prev, ok := binds.Lookup(name); ok && prev != val {
			return res, nil
		}
	}
	for name, val := range seen {
		binds.Bind(name, val)
	}

	res.OK = true
	return res, nil
}

// compilePattern translates an expected pattern into a regular
// expression over the whole actual text. It returns the capture names in
// group order.
func compilePattern(want string, flags Flags, binds *Bindings) (*regexp.Regexp, []string, error) {
	var b strings.Builder
	var names []string

	b.WriteString(`\A`)

	lines := strings.Split(ensureTrailingNewline(want), "\n")
	// Split on a trailing newline yields a final empty element.
	lines = lines[:len(lines)-1]

	sep := `\n`
	if flags.Has(CollapseWhitespace) {
		sep = `\s+`
		b.WriteString(`\s*`)
	}

	for _, line := range lines {
		if flags.Has(Ellipsis) && lineWildRE.MatchString(line) {
			// A wildcard occupying a whole line consumes zero or more
			// complete lines, including their line breaks.
			b.WriteString(`(?:[^\n]*\n)*`)
			continue
		}
		translateLine(&b, line, flags, binds, &names)
		b.WriteString(sep)
	}

	if flags.Has(CollapseWhitespace) {
		// The final separator already permits trailing whitespace.
		body := strings.TrimSuffix(b.String(), sep) + `\s*`
		return compileBody(body, names)
	}
	return compileBody(b.String(), names)
}

func compileBody(body string, names []string) (*regexp.Regexp, []string, error) {
	re, err := regexp.Compile(body + `\z`)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid expected pattern: %w", err)
	}
	return re, names, nil
}

// translateLine converts one pattern line to regexp source, honoring
// inline wildcards and capture tokens.
func translateLine(b *strings.Builder, line string, flags Flags, binds *Bindings, names *[]string) {
	for line != "" {
		wildIdx := -1
		if flags.Has(Ellipsis) {
			wildIdx = strings.Index(line, "...")
		}
		capLoc := capTokenRE.FindStringSubmatchIndex(line)

		switch {
		case wildIdx >= 0 && (capLoc == nil || wildIdx < capLoc[0]):
			writeLiteral(b, line[:wildIdx], flags)
			// Inline wildcard: minimal span, never crosses a line break.
			b.WriteString(`[^\n]*?`)
			line = line[wildIdx+3:]

		case capLoc != nil:
			writeLiteral(b, line[:capLoc[0]], flags)
			name := line[capLoc[2]:capLoc[3]]
			if val, ok := binds.Lookup(name); ok {
				// Already bound: later occurrences verify, not re-bind.
				writeLiteral(b, val, 0)
			} else {
				fmt.Fprintf(b, `(?P<c%d>[^\n]*?)`, len(*names))
				*names = append(*names, name)
			}
			line = line[capLoc[1]:]

		default:
			writeLiteral(b, line, flags)
			line = ""
		}
	}
}

var wsRunRE = regexp.MustCompile(`\s+`)

// writeLiteral appends quoted literal text, substituting whitespace runs
// when CollapseWhitespace is active.
func writeLiteral(b *strings.Builder, lit string, flags Flags) {
	if lit == "" {
		return
	}
	if !flags.Has(CollapseWhitespace) {
		b.WriteString(regexp.QuoteMeta(lit))
		return
	}
	parts := wsRunRE.Split(lit, -1)
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`\s+`)
		}
		b.WriteString(regexp.QuoteMeta(p))
	}
}

func ensureTrailingNewline(s string) string {
	if s != "" && !strings.HasSuffix(s, "\n") {
		return s + "\n"
	}
	return s
}
