package harness

import (
	"errors"
	"path/filepath"

	"github.com/runlit/runlit/internal/run"
)

// ErrConflictingSelectors is returned when a request names both a rerun
// and a restart selector. The two are mutually exclusive; neither is
// silently preferred.
var ErrConflictingSelectors = errors.New("rerun and restart are mutually exclusive")

// ResolveRunDir determines the run directory for a request, applying a
// fixed-priority fallback chain:
//
//  1. an explicitly supplied directory,
//  2. the directory of the single existing run matched by a rerun or
//     restart selector,
//  3. a freshly minted run ID under the storage root.
//
// Resolution happens before the operation executes, so the caller
// knows the target directory up front and can hand back a queryable
// run record without a second lookup. The resolver never creates the
// directory.
func (p *Project) ResolveRunDir(spec RunSpec) (string, error) {
	if spec.RunDir != "" {
		return spec.RunDir, nil
	}

	if spec.Rerun != "" && spec.Restart != "" {
		return "", ErrConflictingSelectors
	}
	selector := spec.Rerun
	if selector == "" {
		selector = spec.Restart
	}
	if selector != "" {
		r, err := run.FindOne(p.Home, selector)
		if err != nil {
			return "", err
		}
		return r.Dir, nil
	}

	return filepath.Join(run.RunsDir(p.Home), run.MkID()), nil
}
