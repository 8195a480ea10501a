// Package run models recorded units of work. Each run lives in its own
// directory under a storage root's runs directory, with metadata kept
// as YAML attribute files under a hidden subdirectory.
package run

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// MetaDir is the metadata directory inside a run directory.
const MetaDir = ".runlit"

// Statuses recorded in the "status" attribute.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Run is a handle to one unit-of-work directory. Callers read it; the
// operation executor writes it.
type Run struct {
	ID  string
	Dir string
}

// FromDir returns a handle for an existing or prospective run
// directory. The ID is the directory's base name.
func FromDir(dir string) *Run {
	return &Run{ID: filepath.Base(dir), Dir: dir}
}

// MkID mints a new unique run identifier.
func MkID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// RunsDir returns the directory holding all runs under a storage root.
func RunsDir(home string) string {
	return filepath.Join(home, "runs")
}

// InitHome initializes a storage root.
func InitHome(home string) error {
	if err := os.MkdirAll(RunsDir(home), 0o755); err != nil {
		return fmt.Errorf("init home %s: %w", home, err)
	}
	return nil
}

// List returns the runs under home, newest first (by the "started"
// attribute, then ID for determinism).
func List(home string) ([]*Run, error) {
	entries, err := os.ReadDir(RunsDir(home))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list runs in %s: %w", home, err)
	}
	var runs []*Run
	for _, e := range entries {
		if e.IsDir() {
			runs = append(runs, FromDir(filepath.Join(RunsDir(home), e.Name())))
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		si, sj := runs[i].started(), runs[j].started()
		if si != sj {
			return si > sj
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

func (r *Run) started() string {
	v := r.Get("started")
	s, _ := v.(string)
	return s
}

// Exists reports whether the run directory is present on disk.
func (r *Run) Exists() bool {
	info, err := os.Stat(r.Dir)
	return err == nil && info.IsDir()
}

func (r *Run) attrPath(name string) string {
	return filepath.Join(r.Dir, MetaDir, "attrs", name)
}

// WriteAttr records a run attribute as a YAML file.
func (r *Run) WriteAttr(name string, val any) error {
	dir := filepath.Join(r.Dir, MetaDir, "attrs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write attr %s: %w", name, err)
	}
	data, err := yaml.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode attr %s: %w", name, err)
	}
	return os.WriteFile(r.attrPath(name), data, 0o644)
}

// ReadAttr decodes a run attribute.
func (r *Run) ReadAttr(name string) (any, error) {
	data, err := os.ReadFile(r.attrPath(name))
	if err != nil {
		return nil, err
	}
	var val any
	if err := yaml.Unmarshal(data, &val); err != nil {
		return nil, fmt.Errorf("decode attr %s: %w", name, err)
	}
	return val, nil
}

// Get returns an attribute value, or nil if it is absent or unreadable.
func (r *Run) Get(name string) any {
	val, err := r.ReadAttr(name)
	if err != nil {
		return nil
	}
	return val
}

// Status returns the run's recorded status, defaulting to pending.
func (r *Run) Status() string {
	if s, ok := r.Get("status").(string); ok {
		return s
	}
	return StatusPending
}

// OpSpec returns the recorded operation spec, if any.
func (r *Run) OpSpec() string {
	s, _ := r.Get("opspec").(string)
	return s
}

// Label returns the run's label attribute, if any.
func (r *Run) Label() string {
	s, _ := r.Get("label").(string)
	return s
}

// Marked reports whether the run carries the marked attribute.
func (r *Run) Marked() bool {
	m, _ := r.Get("marked").(bool)
	return m
}

// Flags returns the recorded flag assignments.
func (r *Run) Flags() map[string]any {
	f, _ := r.Get("flags").(map[string]any)
	return f
}

// OutputPath returns the location of the captured operation output.
func (r *Run) OutputPath() string {
	return filepath.Join(r.Dir, MetaDir, "output")
}

// Output returns the captured operation output, or "" if none was
// recorded.
func (r *Run) Output() string {
	data, err := os.ReadFile(r.OutputPath())
	if err != nil {
		return ""
	}
	return string(data)
}

// ShortID returns the conventional abbreviated run ID for display.
func (r *Run) ShortID() string {
	if len(r.ID) > 8 {
		return r.ID[:8]
	}
	return r.ID
}
