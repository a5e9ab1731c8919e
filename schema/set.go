package schema

import (
	"fmt"
	"slices"

	"github.com/karupanerura/recordloader"
)

// Set is an immutable collection of models.
type Set struct {
	models map[string]recordloader.Model
	names  []string
}

var _ recordloader.Schema = (*Set)(nil)

// NewSet creates a set of the models.
// It returns an error if two models share a name, or an association targets a model outside the set.
func NewSet(models ...recordloader.Model) (*Set, error) {
	s := &Set{models: make(map[string]recordloader.Model, len(models))}
	for _, m := range models {
		if _, ok := s.models[m.Name()]; ok {
			return nil, fmt.Errorf("schema: duplicate model %s", m.Name())
		}
		s.models[m.Name()] = m
		s.names = append(s.names, m.Name())
	}

	for _, m := range models {
		for _, a := range m.Associations() {
			target, ok := s.models[a.Target]
			if !ok {
				return nil, fmt.Errorf("schema: %w: %s (target of %s.%s)", recordloader.ErrUnknownModel, a.Target, m.Name(), a.Name)
			}
			owner := m
			if a.Kind == recordloader.HasMany {
				owner = target
			}
			if _, ok := owner.AttributeType(a.ForeignKey); !ok {
				return nil, fmt.Errorf("schema: %w: %s.%s (foreign key of %s.%s)", recordloader.ErrUnknownAttribute, owner.Name(), a.ForeignKey, m.Name(), a.Name)
			}
		}
	}
	return s, nil
}

// MustNewSet is like NewSet but panics on error.
func MustNewSet(models ...recordloader.Model) *Set {
	s, err := NewSet(models...)
	if err != nil {
		panic(err)
	}
	return s
}

// Model returns the model with the given name.
func (s *Set) Model(name string) (recordloader.Model, bool) {
	m, ok := s.models[name]
	return m, ok
}

// Names returns the model names in the order given to NewSet.
func (s *Set) Names() []string {
	return slices.Clone(s.names)
}
