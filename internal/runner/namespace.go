// Package runner executes transcripts: each file gets one interpreter
// namespace, each example is evaluated with its output captured, and
// the captured output is checked against the expected pattern.
package runner

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"io"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/runlit/runlit/internal/harness"
	"github.com/runlit/runlit/internal/scope"
)

// stdout forwards to the process stdout at write time. Eval swaps
// os.Stdout for a pipe around each evaluation, so anything holding
// this writer is captured along with direct prints.
type stdout struct{}

func (stdout) Write(b []byte) (int, error) { return os.Stdout.Write(b) }

// Namespace is the shared evaluation environment for one transcript
// file. Definitions persist across examples; resources acquired
// through the guard helpers are released on Close, newest first.
type Namespace struct {
	interp   *interp.Interpreter
	restores []scope.Restore
	projects []*harness.Project
}

// preamble makes the usual packages and the transcript helpers
// available without per-file import boilerplate.
const preamble = `
import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	. "runlit"
)
`

// NewNamespace builds a fresh interpreter with the standard library
// and the transcript helpers loaded.
func NewNamespace() (*Namespace, error) {
	n := &Namespace{}
	i := interp.New(interp.Options{Stdout: stdout{}, Stderr: stdout{}})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(n.exports()); err != nil {
		return nil, fmt.Errorf("load helper symbols: %w", err)
	}
	if _, err := i.Eval(preamble); err != nil {
		return nil, fmt.Errorf("namespace preamble: %w", err)
	}
	n.interp = i
	return n, nil
}

// Close releases guarded resources in reverse acquisition order and
// tears down any projects created in this namespace.
func (n *Namespace) Close() error {
	for i := len(n.restores) - 1; i >= 0; i-- {
		n.restores[i]()
	}
	n.restores = nil
	var err error
	for _, p := range n.projects {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	n.projects = nil
	return err
}

// Eval evaluates one example fragment and returns everything it wrote
// to the process output streams. Evaluation failures are not errors: their message becomes
// part of the captured output, which is what transcripts assert
// against. A lone expression with a printable result is echoed, the
// way an interactive session would show it.
func (n *Namespace) Eval(src string) (string, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return "", fmt.Errorf("capture output: %w", err)
	}
	savedOut, savedErr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = w, w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		io.Copy(&buf, r)
		close(done)
	}()

	v, evalErr := n.interp.Eval(src)

	os.Stdout, os.Stderr = savedOut, savedErr
	w.Close()
	<-done
	r.Close()

	out := buf.String()
	if evalErr != nil {
		return out + errorText(evalErr) + "\n", nil
	}
	if echo, ok := echoValue(src, v); ok {
		out += echo + "\n"
	}
	return out, nil
}

// echoValue decides whether a fragment's result is echoed. Only bare
// expressions qualify; calls are excluded so print-style helpers do
// not echo their return values.
func echoValue(src string, v reflect.Value) (string, bool) {
	expr, err := parser.ParseExpr(strings.TrimSpace(src))
	if err != nil {
		return "", false
	}
	if _, isCall := expr.(*ast.CallExpr); isCall {
		return "", false
	}
	if !v.IsValid() || !v.CanInterface() {
		return "", false
	}
	return fmt.Sprintf("%v", v.Interface()), true
}

var (
	posPrefixRE = regexp.MustCompile(`^(?:\d+:\d+: )+`)
	qualifierRE = regexp.MustCompile(`\*?[\w./-]+\.(\w*Error)\b`)
)

// errorText renders an evaluation failure the way transcripts expect
// to see it: panics reduce to their value, source positions and type
// qualifiers are stripped so patterns stay stable across refactors.
func errorText(err error) string {
	var msg string
	var p interp.Panic
	if errors.As(err, &p) {
		msg = fmt.Sprint(p.Value)
	} else {
		msg = err.Error()
	}
	msg = strings.TrimRight(msg, "\n")
	msg = posPrefixRE.ReplaceAllString(msg, "")
	return qualifierRE.ReplaceAllString(msg, "$1")
}
