package ops

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/runlit/runlit/internal/index"
	"github.com/runlit/runlit/internal/run"
)

// List returns the runs under the storage root, newest first.
func (l *Local) List() ([]*run.Run, error) {
	return run.List(l.Home)
}

// Delete removes the runs matched by the selectors. An empty selector
// list deletes all runs.
func (l *Local) Delete(selectors []string) error {
	runs, err := run.FindAll(l.Home, selectors)
	if err != nil {
		return err
	}
	for _, r := range runs {
		if err := os.RemoveAll(r.Dir); err != nil {
			return fmt.Errorf("delete run %s: %w", r.ShortID(), err)
		}
		l.Log.Info("deleted run", "run", r.ShortID())
	}
	return nil
}

// Mark sets or clears the marked attribute on the selected runs.
func (l *Local) Mark(selectors []string, clear bool) error {
	runs, err := run.FindAll(l.Home, selectors)
	if err != nil {
		return err
	}
	for _, r := range runs {
		if err := r.WriteAttr("marked", !clear); err != nil {
			return err
		}
	}
	return nil
}

// Label sets the label attribute on the selected runs.
func (l *Local) Label(selectors []string, label string) error {
	runs, err := run.FindAll(l.Home, selectors)
	if err != nil {
		return err
	}
	for _, r := range runs {
		if err := r.WriteAttr("label", label); err != nil {
			return err
		}
	}
	return nil
}

// Compare returns a table of the selected runs: a header row followed
// by one row per run with its operation, label, status, and any
// indexed scalars.
func (l *Local) Compare(ctx context.Context, selectors []string) ([][]string, error) {
	runs, err := run.FindAll(l.Home, selectors)
	if err != nil {
		return nil, err
	}

	ix, err := index.Open(filepath.Join(l.Home, "index.db"))
	if err != nil {
		return nil, err
	}
	defer ix.Close()
	if err := ix.Refresh(ctx, runs); err != nil {
		return nil, err
	}

	scalars := make([]map[string]float64, len(runs))
	tagSet := map[string]bool{}
	for i, r := range runs {
		scalars[i], err = ix.RunScalars(ctx, r)
		if err != nil {
			return nil, err
		}
		for tag := range scalars[i] {
			tagSet[tag] = true
		}
	}
	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	header := append([]string{"run", "operation", "label", "status"}, tags...)
	table := [][]string{header}
	for i, r := range runs {
		row := []string{r.ShortID(), r.OpSpec(), r.Label(), r.Status()}
		for _, tag := range tags {
			if v, ok := scalars[i][tag]; ok {
				row = append(row, fmt.Sprintf("%g", v))
			} else {
				row = append(row, "")
			}
		}
		table = append(table, row)
	}
	return table, nil
}

// Publish copies the selected run directories under dest.
func (l *Local) Publish(selectors []string, dest string) error {
	runs, err := run.FindAll(l.Home, selectors)
	if err != nil {
		return err
	}
	for _, r := range runs {
		if err := copyTree(r.Dir, filepath.Join(dest, r.ID)); err != nil {
			return fmt.Errorf("publish run %s: %w", r.ShortID(), err)
		}
		l.Log.Info("published run", "run", r.ShortID(), "dest", dest)
	}
	return nil
}

// Package archives the project directory at cwd into a zip under dest,
// returning the archive path. Run metadata and hidden files are left
// out.
func (l *Local) Package(cwd, dest string) (string, error) {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return "", err
	}
	name := filepath.Base(abs) + ".zip"
	out := filepath.Join(dest, name)

	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("package %s: %w", cwd, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	err = filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if strings.HasPrefix(filepath.Base(rel), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		zw.Close()
		return "", fmt.Errorf("package %s: %w", cwd, err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("package %s: %w", cwd, err)
	}
	return out, nil
}

// copyTree recursively copies a directory.
func copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}
