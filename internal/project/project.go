// Package project loads model definition files for the tracked system.
// Files are YAML validated against an embedded CUE schema before
// decoding.
package project

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// DefaultFilenames are probed, in order, when loading from a directory.
var DefaultFilenames = []string{"models.yml", "MODELS"}

// NoModelsError reports a directory with no model file.
type NoModelsError struct {
	Path string
}

func (e *NoModelsError) Error() string {
	return fmt.Sprintf("no models found in %s", e.Path)
}

// FormatError reports a model file that does not satisfy the schema.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid model file %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Project is a loaded model file.
type Project struct {
	Src    string
	Models []*Model
}

// Model describes one model and its operations.
type Model struct {
	Name        string
	Description string
	Version     string
	Operations  []*Operation
	Flags       map[string]any
}

// Operation describes one runnable operation of a model.
type Operation struct {
	Model       *Model
	Name        string
	Description string
	Cmd         string
	Flags       map[string]any
}

// FullName returns the model-qualified operation name.
func (o *Operation) FullName() string {
	return o.Model.Name + ":" + o.Name
}

// Get returns the named model, or nil.
func (p *Project) Get(name string) *Model {
	for _, m := range p.Models {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// DefaultModel returns the first model, or nil for an empty project.
func (p *Project) DefaultModel() *Model {
	if len(p.Models) == 0 {
		return nil
	}
	return p.Models[0]
}

// GetOp returns the named operation, or nil.
func (m *Model) GetOp(name string) *Operation {
	for _, op := range m.Operations {
		if op.Name == name {
			return op
		}
	}
	return nil
}

// FromDir loads a project by probing the default model filenames under
// path. Returns NoModelsError if none is present.
func FromDir(path string) (*Project, error) {
	for _, name := range DefaultFilenames {
		src := filepath.Join(path, name)
		if info, err := os.Stat(src); err == nil && !info.IsDir() {
			return FromFile(src)
		}
	}
	return nil, &NoModelsError{Path: path}
}

// FromFile loads and validates a single model file.
func FromFile(src string) (*Project, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	if err := validate(src, data); err != nil {
		return nil, &FormatError{Path: src, Err: err}
	}
	models, err := decodeModels(data)
	if err != nil {
		return nil, &FormatError{Path: src, Err: err}
	}
	return &Project{Src: src, Models: models}, nil
}

// FromFileOrDir loads src as a file, falling back to directory probing
// when src is a directory.
func FromFileOrDir(src string) (*Project, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", src, err)
	}
	if info.IsDir() {
		return FromDir(src)
	}
	return FromFile(src)
}

// validate checks the YAML source against the embedded CUE schema.
func validate(filename string, data []byte) error {
	cuectx := cuecontext.New()

	schema := cuectx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	fileDef := schema.LookupPath(cue.ParsePath("#File"))
	if err := fileDef.Err(); err != nil {
		return fmt.Errorf("lookup schema: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return err
	}
	val := cuectx.BuildFile(file)
	if err := val.Err(); err != nil {
		return err
	}

	return fileDef.Unify(val).Validate(cue.Concrete(true))
}

type modelData struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Version     string               `yaml:"version"`
	Operations  map[string]yaml.Node `yaml:"operations"`
	Flags       map[string]any       `yaml:"flags"`
}

type opData struct {
	Cmd         string         `yaml:"cmd"`
	Description string         `yaml:"description"`
	Flags       map[string]any `yaml:"flags"`
}

func decodeModels(data []byte) ([]*Model, error) {
	// A file holds either one model map or a list of them.
	var list []modelData
	if err := yaml.Unmarshal(data, &list); err != nil {
		var single modelData
		if err2 := yaml.Unmarshal(data, &single); err2 != nil {
			return nil, err
		}
		list = []modelData{single}
	}

	models := make([]*Model, 0, len(list))
	for _, md := range list {
		m := &Model{
			Name:        md.Name,
			Description: md.Description,
			Version:     md.Version,
			Flags:       md.Flags,
		}
		names := make([]string, 0, len(md.Operations))
		for name := range md.Operations {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			op, err := decodeOp(m, name, md.Operations[name])
			if err != nil {
				return nil, err
			}
			m.Operations = append(m.Operations, op)
		}
		models = append(models, m)
	}
	return models, nil
}

// decodeOp accepts the string shorthand, where the value is the
// operation's cmd, as well as the full map form.
func decodeOp(m *Model, name string, node yaml.Node) (*Operation, error) {
	op := &Operation{Model: m, Name: name}
	if node.Kind == yaml.ScalarNode {
		if err := node.Decode(&op.Cmd); err != nil {
			return nil, fmt.Errorf("operation %s: %w", name, err)
		}
		return op, nil
	}
	var od opData
	if err := node.Decode(&od); err != nil {
		return nil, fmt.Errorf("operation %s: %w", name, err)
	}
	op.Cmd = od.Cmd
	op.Description = od.Description
	op.Flags = od.Flags
	return op, nil
}
