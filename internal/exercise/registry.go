package exercise

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownExercise is returned when an exercise id is not registered.
var ErrUnknownExercise = errors.New("unknown exercise")

//go:embed exercises.yaml
var builtin []byte

type document struct {
	Exercises []*Exercise `yaml:"exercises"`
}

// Registry is a read-only lookup of exercises by id. It is safe for concurrent use
// once loaded.
type Registry struct {
	byID map[string]*Exercise
}

// Load parses the built-in tables and, when overridePath is non-empty, merges the
// exercises in that file on top. An override with the same id replaces the
// built-in entry.
func Load(overridePath string) (*Registry, error) {
	r, err := Parse(builtin)
	if err != nil {
		return nil, fmt.Errorf("builtin exercises: %w", err)
	}
	if overridePath == "" {
		return r, nil
	}

	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("read exercises file: %w", err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("exercises file %s: %w", overridePath, err)
	}
	for id, ex := range extra.byID {
		r.byID[id] = ex
	}
	return r, nil
}

// Default returns the built-in registry. It panics if the embedded tables are invalid.
func Default() *Registry {
	r, err := Parse(builtin)
	if err != nil {
		panic(err)
	}
	return r
}

// Parse decodes a YAML exercise document and validates it.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse exercises: %w", err)
	}

	r := &Registry{byID: make(map[string]*Exercise, len(doc.Exercises))}
	for i, ex := range doc.Exercises {
		if ex == nil {
			return nil, fmt.Errorf("exercise %d is empty", i)
		}
		if err := ex.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[ex.ID]; dup {
			return nil, fmt.Errorf("duplicate exercise id %q", ex.ID)
		}
		r.byID[ex.ID] = ex
	}
	return r, nil
}

// Get returns the exercise with the given id.
func (r *Registry) Get(id string) (*Exercise, error) {
	ex, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExercise, id)
	}
	return ex, nil
}

// List returns all exercises sorted by id.
func (r *Registry) List() []*Exercise {
	out := make([]*Exercise, 0, len(r.byID))
	for _, ex := range r.byID {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}
