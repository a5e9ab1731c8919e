package memsource

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/karupanerura/recordloader"
	"github.com/karupanerura/recordloader/schema"
)

var (
	// ErrDuplicateKey is returned when a row is inserted with a primary key already present in the table.
	ErrDuplicateKey = errors.New("memsource: duplicate primary key")

	// ErrMissingPrimaryKey is returned when a row is inserted without a primary key and auto increment cannot number it.
	ErrMissingPrimaryKey = errors.New("memsource: missing primary key")
)

// Source is an in-memory data source. It is safe for concurrent use.
type Source struct {
	schema        recordloader.Schema
	autoIncrement bool

	mu     sync.RWMutex
	tables map[string]*table
}

type table struct {
	rows   []*Record
	byKey  map[any]*Record
	serial int64
}

var _ recordloader.DataSource = (*Source)(nil)

// New creates an empty source of the models of the schema.
func New(s recordloader.Schema, opts ...Option) *Source {
	src := &Source{
		schema:        s,
		autoIncrement: true,
		tables:        map[string]*table{},
	}
	for _, opt := range opts {
		opt.apply(src)
	}
	return src
}

// Model returns the model with the given name.
func (s *Source) Model(name string) (recordloader.Model, bool) {
	return s.schema.Model(name)
}

// Insert appends a row to the table of the model.
// Values are cast with the attribute types; attributes left out are NULL.
// If the primary key is absent, an integer primary key is numbered automatically.
func (s *Source) Insert(model string, values map[string]any) (*Record, error) {
	m, ok := s.schema.Model(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", recordloader.ErrUnknownModel, model)
	}

	casted := make(map[string]any, len(m.Attributes()))
	for _, name := range m.Attributes() {
		casted[name] = nil
	}
	for name, raw := range values {
		typ, ok := m.AttributeType(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", recordloader.ErrUnknownAttribute, model, name)
		}
		if raw == nil {
			continue
		}
		v, err := typ.Cast(raw)
		if err != nil {
			return nil, &recordloader.KeyCastError{Model: model, Column: name, Type: typ.Name(), Key: raw, Err: err}
		}
		casted[name] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[model]
	if !ok {
		t = &table{byKey: map[any]*Record{}}
		s.tables[model] = t
	}

	pk := m.PrimaryKey()
	key := casted[pk]
	if key == nil {
		typ, _ := m.AttributeType(pk)
		if !s.autoIncrement || typ != recordloader.Integer {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingPrimaryKey, model, pk)
		}
		t.serial++
		key = t.serial
		casted[pk] = key
	}
	if _, ok := t.byKey[key]; ok {
		return nil, fmt.Errorf("%w: %s.%s = %v", ErrDuplicateKey, model, pk, key)
	}
	if n, ok := key.(int64); ok && n > t.serial {
		t.serial = n
	}

	r := &Record{source: s, model: m, values: casted}
	t.rows = append(t.rows, r)
	t.byKey[key] = r
	return r, nil
}

// InsertStruct inserts the attribute values of a struct tagged as described in schema.Reflect.
func (s *Source) InsertStruct(model string, v any) (*Record, error) {
	values, err := schema.Values(v)
	if err != nil {
		return nil, err
	}
	return s.Insert(model, values)
}

// Len returns the number of rows of the model.
func (s *Source) Len(model string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tables[model]; ok {
		return len(t.rows)
	}
	return 0
}

// FindRowsWhere returns the rows of q.Model in insertion order whose column value is one of q.Keys
// and that satisfy q.Where.
func (s *Source) FindRowsWhere(ctx context.Context, q recordloader.Query) ([]recordloader.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, ok := s.schema.Model(q.Model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", recordloader.ErrUnknownModel, q.Model)
	}

	var association *recordloader.Association
	if q.Column.Association != "" {
		i := slices.IndexFunc(m.Associations(), func(a recordloader.Association) bool {
			return a.Name == q.Column.Association
		})
		if i == -1 {
			return nil, &recordloader.AssociationResolutionError{Model: q.Model, Path: q.Column.String(), Segment: q.Column.Association}
		}
		association = &m.Associations()[i]
	}

	keys := make(map[any]struct{}, len(q.Keys))
	for _, key := range q.Keys {
		keys[key] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[q.Model]
	if !ok {
		return []recordloader.Row{}, nil
	}

	rows := []recordloader.Row{}
	for _, r := range t.rows {
		if !q.Where.Matches(m, r) {
			continue
		}

		candidates := []*Record{r}
		if association != nil {
			candidates = s.related(r, *association)
		}
		if slices.ContainsFunc(candidates, func(c *Record) bool {
			_, ok := keys[c.values[q.Column.Attribute]]
			return ok
		}) {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// related returns the rows reached from r through a. The caller must hold s.mu.
func (s *Source) related(r *Record, a recordloader.Association) []*Record {
	t, ok := s.tables[a.Target]
	if !ok {
		return nil
	}

	switch a.Kind {
	case recordloader.BelongsTo:
		fk := r.values[a.ForeignKey]
		if fk == nil {
			return nil
		}
		if target, ok := t.byKey[fk]; ok {
			return []*Record{target}
		}
		return nil
	case recordloader.HasMany:
		pk := r.values[r.model.PrimaryKey()]
		var related []*Record
		for _, target := range t.rows {
			if target.values[a.ForeignKey] == pk {
				related = append(related, target)
			}
		}
		return related
	}
	return nil
}

// Record is a row of a Source. Its values are immutable.
type Record struct {
	source *Source
	model  recordloader.Model
	values map[string]any
}

var _ recordloader.Row = (*Record)(nil)

// Attribute returns the value of the named attribute.
func (r *Record) Attribute(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Association returns the rows reached through the named association, resolved against the source.
func (r *Record) Association(name string) ([]recordloader.Row, bool) {
	i := slices.IndexFunc(r.model.Associations(), func(a recordloader.Association) bool {
		return a.Name == name
	})
	if i == -1 {
		return nil, false
	}

	r.source.mu.RLock()
	related := r.source.related(r, r.model.Associations()[i])
	r.source.mu.RUnlock()

	rows := make([]recordloader.Row, len(related))
	for i, target := range related {
		rows[i] = target
	}
	return rows, true
}

// Values returns a copy of the attribute values.
func (r *Record) Values() map[string]any {
	return maps.Clone(r.values)
}
