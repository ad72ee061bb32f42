package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TypeDef holds static data for one instantiable source type loaded from YAML.
// Extent is the bounding size at scale 1 (0 = not spatial, always resident).
// Properties is the default-constructed baseline the persistence layer diffs
// live values against.
type TypeDef struct {
	Source     string         `yaml:"source"`
	Extent     float64        `yaml:"extent"`
	Properties map[string]any `yaml:"properties"`
}

type typeListFile struct {
	Types []TypeDef `yaml:"types"`
}

// Registry holds all type definitions indexed by source string.
type Registry struct {
	defs map[string]*TypeDef
}

// NewRegistry creates an empty registry. Unknown sources resolve to extent 0
// and an empty baseline.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*TypeDef)}
}

// LoadRegistry loads type definitions from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read type registry: %w", err)
	}
	var f typeListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse type registry %s: %w", path, err)
	}
	r := NewRegistry()
	for i := range f.Types {
		def := f.Types[i]
		if def.Source == "" {
			return nil, fmt.Errorf("type registry %s: entry %d has no source", path, i)
		}
		r.defs[def.Source] = &def
	}
	return r, nil
}

// Register adds or replaces a definition. Used by tests and embedding hosts.
func (r *Registry) Register(def TypeDef) {
	r.defs[def.Source] = &def
}

// Get returns the definition for a source, or nil if unknown.
func (r *Registry) Get(source string) *TypeDef {
	return r.defs[source]
}

// Known reports whether a source can be instantiated.
func (r *Registry) Known(source string) bool {
	_, ok := r.defs[source]
	return ok
}

// Extent returns the base bounding extent for a source, 0 when unknown.
func (r *Registry) Extent(source string) float64 {
	if def := r.defs[source]; def != nil {
		return def.Extent
	}
	return 0
}

// Baseline returns the default property map for a source. Never nil.
func (r *Registry) Baseline(source string) map[string]any {
	if def := r.defs[source]; def != nil && def.Properties != nil {
		return def.Properties
	}
	return map[string]any{}
}

// Count returns the number of registered types.
func (r *Registry) Count() int {
	return len(r.defs)
}
