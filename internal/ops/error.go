package ops

import "fmt"

// RunError reports an operation that exited abnormally. It carries the
// captured output and exit code so transcripts can assert on failure
// text instead of crashing the runner.
type RunError struct {
	OpSpec   string
	Output   string
	ExitCode int
}

func (e *RunError) Error() string {
	return fmt.Sprintf("operation %s failed with exit status %d", e.OpSpec, e.ExitCode)
}
