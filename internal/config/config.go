// Package config supplies the user configuration for a harness
// instance. The configuration handle is an explicit provider object
// passed by reference, not process-global state: tests override it
// through a scope guard and the restore path clears the cache so the
// next read comes fresh from the real source.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the decoded user configuration payload.
type Config map[string]any

// Source supplies configuration from somewhere durable.
type Source interface {
	// Path identifies the source location for diagnostics.
	Path() string
	// Read returns the current payload.
	Read() (Config, error)
}

// FileSource reads YAML configuration from disk.
type FileSource struct {
	path string
}

// NewFileSource creates a source for the YAML file at path.
func NewFileSource(path string) FileSource {
	return FileSource{path: path}
}

func (s FileSource) Path() string { return s.path }

// Read parses the file. A missing file is an empty configuration, not
// an error.
func (s FileSource) Read() (Config, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", s.path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", s.path, err)
	}
	if cfg == nil {
		cfg = Config{}
	}
	return cfg, nil
}

// DefaultPath returns the conventional user config location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".runlit", "config.yml")
	}
	return filepath.Join(home, ".runlit", "config.yml")
}

// memSource holds an in-memory payload installed by a scoped override.
type memSource struct {
	path string
	data Config
}

func (s memSource) Path() string          { return s.path }
func (s memSource) Read() (Config, error) { return s.data, nil }

// Provider caches reads from a Source and supports a scoped in-memory
// override.
type Provider struct {
	src      Source
	cached   Config
	haveRead bool
	override Source
}

// NewProvider creates a provider over src.
func NewProvider(src Source) *Provider {
	return &Provider{src: src}
}

// Config returns the active configuration: the override if one is
// installed, else the cached payload, else a fresh read from the
// source.
func (p *Provider) Config() (Config, error) {
	if p.override != nil {
		return p.override.Read()
	}
	if p.haveRead {
		return p.cached, nil
	}
	cfg, err := p.src.Read()
	if err != nil {
		return nil, err
	}
	p.cached = cfg
	p.haveRead = true
	return cfg, nil
}

// Path returns the location of the active source.
func (p *Provider) Path() string {
	if p.override != nil {
		return p.override.Path()
	}
	return p.src.Path()
}

// SetOverride installs an in-memory payload in place of the normal
// source. It reports the real source's path so transcripts that print
// the config location stay stable.
func (p *Provider) SetOverride(data Config) {
	p.override = memSource{path: p.src.Path(), data: data}
}

// ClearOverride removes any override and drops the cache, forcing the
// next read to come fresh from the real source rather than a stale
// cached value.
func (p *Provider) ClearOverride() {
	p.override = nil
	p.cached = nil
	p.haveRead = false
}
