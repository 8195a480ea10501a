// Package transcript finds and parses literate test files: markdown
// documents containing prompt-marked code fragments followed by their
// expected output. Parsing is purely structural; nothing here executes
// code.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/runlit/runlit/internal/match"
)

// Ext is the on-disk transcript extension. Transcripts are addressed by
// bare name everywhere else.
const Ext = ".md"

// headProbe bounds how far into a file the file-level skip directive is
// recognized.
const headProbe = 256

var skipWindowsRE = regexp.MustCompile(`(?m)^skip-windows: *yes$`)

// File identifies one discovered transcript.
type File struct {
	Name string
	Path string

	// SkipOnWindows is set when the file carries the platform skip
	// directive near its top.
	SkipOnWindows bool
}

// Example is one prompt/code/expected-output triple, in file order.
type Example struct {
	// Line is the 1-based line of the prompt marker, for diagnostics.
	Line int

	// Source is the executable code fragment, with option directives
	// stripped.
	Source string

	// Want is the expected output pattern. Empty means no output is
	// expected.
	Want string

	// Set and Clear adjust the runner's base matching flags for this
	// example.
	Set   match.Flags
	Clear match.Flags
}

// Discover returns the transcript files under dir, sorted by name for
// deterministic execution order.
func Discover(dir string) ([]File, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+Ext))
	if err != nil {
		return nil, fmt.Errorf("discover transcripts: %w", err)
	}
	sort.Strings(paths)
	files := make([]File, 0, len(paths))
	for _, path := range paths {
		f, err := Load(path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// Load identifies a single transcript file without parsing its
// examples.
func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer f.Close()

	head := make([]byte, headProbe)
	n, _ := f.Read(head)

	name := strings.TrimSuffix(filepath.Base(path), Ext)
	return File{
		Name:          name,
		Path:          path,
		SkipOnWindows: skipWindowsRE.Match(head[:n]),
	}, nil
}

const (
	promptMarker = ">>>"
	contMarker   = "..."
)

var directiveRE = regexp.MustCompile(`\s*// lit:((?: [+-][a-z-]+)+)\s*$`)

// Parse splits a transcript into its ordered examples.
func Parse(path string) ([]Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")

	var examples []Example
	for i := 0; i < len(lines); {
		indent, ok := promptIndent(lines[i])
		if !ok {
			i++
			continue
		}
		ex, next, err := parseExample(lines, i, indent)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, i+1, err)
		}
		examples = append(examples, ex)
		i = next
	}
	return examples, nil
}

// promptIndent returns the indentation of a prompt line, or false when
// the line is not a prompt.
func promptIndent(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed != promptMarker && !strings.HasPrefix(trimmed, promptMarker+" ") {
		return "", false
	}
	return line[:len(line)-len(trimmed)], true
}

// parseExample consumes one example starting at the prompt on
// lines[start] and returns it along with the next scan position.
func parseExample(lines []string, start int, indent string) (Example, int, error) {
	ex := Example{Line: start + 1}

	var source []string
	i := start
	for ; i < len(lines); i++ {
		content, ok := sourceLine(lines[i], indent, i == start)
		if !ok {
			break
		}
		source = append(source, content)
	}

	var want []string
	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			break
		}
		if _, isPrompt := promptIndent(line); isPrompt {
			break
		}
		if !strings.HasPrefix(line, indent) {
			break
		}
		want = append(want, line[len(indent):])
	}

	for j, s := range source {
		if m := directiveRE.FindStringSubmatch(s); m != nil {
			set, clear, err := parseDirectives(m[1])
			if err != nil {
				return Example{}, 0, err
			}
			ex.Set |= set
			ex.Clear |= clear
			source[j] = strings.TrimRight(s[:len(s)-len(m[0])], " \t")
		}
	}

	ex.Source = strings.Join(source, "\n")
	if len(want) > 0 {
		ex.Want = strings.Join(want, "\n") + "\n"
	}
	return ex, i, nil
}

// sourceLine extracts the code content of a prompt or continuation
// line, minus its marker.
func sourceLine(line, indent string, first bool) (string, bool) {
	if !strings.HasPrefix(line, indent) {
		return "", false
	}
	rest := line[len(indent):]
	marker := contMarker
	if first {
		marker = promptMarker
	}
	switch {
	case rest == marker:
		return "", true
	case strings.HasPrefix(rest, marker+" "):
		return rest[len(marker)+1:], true
	}
	return "", false
}

// parseDirectives decodes "+flag" and "-flag" terms of one directive
// comment.
func parseDirectives(s string) (set, clear match.Flags, err error) {
	for _, term := range strings.Fields(s) {
		name := term[1:]
		flag, ok := match.ParseFlag(name)
		if !ok {
			return 0, 0, fmt.Errorf("unknown option %q", name)
		}
		switch term[0] {
		case '+':
			set |= flag
		case '-':
			clear |= flag
		}
	}
	return set, clear, nil
}
