package match

import (
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Diff renders a line-oriented diff of the normalized expected and
// actual text for failure reports. Returns "" when the result passed.
func (r Result) Diff() string {
	if r.OK {
		return ""
	}
	want := strings.Split(strings.TrimSuffix(r.ExpectedNorm, "\n"), "\n")
	got := strings.Split(strings.TrimSuffix(r.ActualNorm, "\n"), "\n")
	return cmp.Diff(want, got)
}
