package match

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Legacy output quirks normalized on the actual side so older and newer
// runtime output compare equal.
var (
	stringPrefixREs = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`(\W)u'(.*?)'`), `$1'$2'`},
		{regexp.MustCompile(`(\W)u"(.*?)"`), `$1"$2"`},
		{regexp.MustCompile(`^u'(.*?)'`), `'$1'`},
		{regexp.MustCompile(`^u"(.*?)"`), `"$1"`},
	}

	longSuffixRE = regexp.MustCompile(`([0-9]+)L`)

	// Drive prefixes and backslash separators (single or doubled) become
	// forward slashes.
	windowsPathRE = regexp.MustCompile(`[c-zC-Z]:\\\\?|\\\\?`)
)

// normalizeActual applies the active got-side normalization flags.
func normalizeActual(got string, flags Flags) string {
	got = norm.NFC.String(got)
	if flags.Has(StripStringPrefix) {
		for _, s := range stringPrefixREs {
			got = s.re.ReplaceAllString(got, s.repl)
		}
	}
	if flags.Has(StripLongSuffix) {
		got = longSuffixRE.ReplaceAllString(got, `$1`)
	}
	if flags.Has(NormalizePaths) {
		got = windowsPathRE.ReplaceAllString(got, "/")
	}
	return got
}

// normalizeExpected rewrites the want-side pattern: NFC normalization,
// the "???" alias for a leading wildcard, and whitespace collapsing when
// active.
func normalizeExpected(want string, flags Flags) string {
	want = norm.NFC.String(want)
	want = blankERE.ReplaceAllString(want, "...")
	if !flags.Has(CollapseWhitespace) {
		return want
	}
	// Under whitespace collapsing, line edges and blank lines carry no
	// information. Trim them out of the pattern; the compiled separators
	// absorb whatever whitespace the actual output has.
	var kept []string
	for _, line := range strings.Split(want, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, "\n") + "\n"
}
