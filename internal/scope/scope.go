// Package scope provides nestable scoped-acquisition guards for
// process-wide mutable state. Every guard records the prior state on
// entry and returns a Restore that reinstates it; callers defer the
// Restore so state is reverted on every exit path, in LIFO order.
package scope

import (
	"fmt"
	"os"

	"github.com/runlit/runlit/internal/config"
)

// Restore undoes one scoped state change. It must be called exactly
// once, typically via defer.
type Restore func()

// Chdir changes the working directory to dir and returns a Restore that
// changes back to the directory that was current on entry.
func Chdir(dir string) (Restore, error) {
	prev, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("chdir %s: %w", dir, err)
	}
	return func() {
		// The prior directory existed on entry; restoring it is not a
		// designed failure path.
		_ = os.Chdir(prev)
	}, nil
}

// Env applies the given environment variables and returns a Restore
// that reinstates the exact prior state per name: variables that did
// not exist before are deleted again, not left empty.
func Env(vars map[string]string) Restore {
	type revert struct {
		name    string
		existed bool
		value   string
	}
	reverts := make([]revert, 0, len(vars))
	for name, val := range vars {
		prev, existed := os.LookupEnv(name)
		reverts = append(reverts, revert{name: name, existed: existed, value: prev})
		os.Setenv(name, val)
	}
	return func() {
		for i := len(reverts) - 1; i >= 0; i-- {
			r := reverts[i]
			if r.existed {
				os.Setenv(r.name, r.value)
			} else {
				os.Unsetenv(r.name)
			}
		}
	}
}

// UserConfig installs an in-memory configuration payload on the
// provider for the scope's duration. The Restore clears the override
// and the provider's cache, so the next read comes fresh from the real
// source.
func UserConfig(p *config.Provider, data config.Config) Restore {
	p.SetOverride(data)
	return func() {
		p.ClearOverride()
	}
}
