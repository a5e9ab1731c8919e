package source

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/karupanerura/recordloader"
)

// MapRow is a row backed by maps.
type MapRow struct {
	// Values are the attribute values.
	Values map[string]any

	// Associations are the rows reached through each association.
	Associations map[string][]recordloader.Row
}

var _ recordloader.Row = (*MapRow)(nil)

// Attribute returns the value of the named attribute.
func (r *MapRow) Attribute(name string) (any, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Association returns the rows reached through the named association.
func (r *MapRow) Association(name string) ([]recordloader.Row, bool) {
	rows, ok := r.Associations[name]
	return rows, ok
}

// FunctionsSource is a data source that uses a function to find rows.
type FunctionsSource struct {
	recordloader.Schema

	// FindRowsWhereFunc finds the rows matching the query.
	// Rows must be returned in the natural order of the source.
	FindRowsWhereFunc func(context.Context, recordloader.Query) ([]recordloader.Row, error)
}

var _ recordloader.DataSource = (*FunctionsSource)(nil)

// FindRowsWhere calls the FindRowsWhereFunc function.
func (s *FunctionsSource) FindRowsWhere(ctx context.Context, q recordloader.Query) ([]recordloader.Row, error) {
	return s.FindRowsWhereFunc(ctx, q)
}

// LintSource is a data source that is used for linting purposes.
// It panics if the wrapped source returns a row that does not match the query.
type LintSource struct {
	Source recordloader.DataSource
}

var _ recordloader.DataSource = (*LintSource)(nil)

// Model returns the model of the wrapped source.
func (s *LintSource) Model(name string) (recordloader.Model, bool) {
	return s.Source.Model(name)
}

// FindRowsWhere finds rows with the wrapped source.
// It validates the behavior of the source implementation, ensuring every returned row
// has a column value in the query keys and satisfies the query predicate.
func (s *LintSource) FindRowsWhere(ctx context.Context, q recordloader.Query) ([]recordloader.Row, error) {
	if len(q.Keys) == 0 {
		panic("query must have at least one key")
	}

	rows, err := s.Source.FindRowsWhere(ctx, q)
	if err != nil {
		return nil, err
	}

	model, ok := s.Source.Model(q.Model)
	if !ok {
		panic(fmt.Sprintf("unknown model: %s", q.Model))
	}
	columnModel := model
	if q.Column.Association != "" {
		i := slices.IndexFunc(model.Associations(), func(a recordloader.Association) bool {
			return a.Name == q.Column.Association
		})
		if i == -1 {
			panic(fmt.Sprintf("unknown association: %s.%s", q.Model, q.Column.Association))
		}
		columnModel, ok = s.Source.Model(model.Associations()[i].Target)
		if !ok {
			panic(fmt.Sprintf("unknown model: %s", model.Associations()[i].Target))
		}
	}
	typ, ok := columnModel.AttributeType(q.Column.Attribute)
	if !ok {
		panic(fmt.Sprintf("unknown attribute: %s.%s", columnModel.Name(), q.Column.Attribute))
	}

	for _, row := range rows {
		if !q.Where.Matches(model, row) {
			panic("row does not satisfy the predicate")
		}
		if !rowMatchesKeys(row, q.Column, typ, q.Keys) {
			panic("row does not match any key")
		}
	}
	return rows, nil
}

func rowMatchesKeys(row recordloader.Row, column recordloader.ColumnPath, typ recordloader.ValueType, keys []any) bool {
	candidates := []recordloader.Row{row}
	if column.Association != "" {
		related, ok := row.Association(column.Association)
		if !ok {
			return false
		}
		candidates = related
	}
	for _, r := range candidates {
		raw, ok := r.Attribute(column.Attribute)
		if !ok || raw == nil {
			continue
		}
		v, err := typ.Cast(raw)
		if err != nil {
			continue
		}
		if slices.Contains(keys, v) {
			return true
		}
	}
	return false
}

// RecordingSource is a data source that records the queries issued to the wrapped source.
// It is safe for concurrent use.
type RecordingSource struct {
	Source recordloader.DataSource

	mu      sync.Mutex
	queries []recordloader.Query
}

var _ recordloader.DataSource = (*RecordingSource)(nil)

// Model returns the model of the wrapped source.
func (s *RecordingSource) Model(name string) (recordloader.Model, bool) {
	return s.Source.Model(name)
}

// FindRowsWhere records the query and finds rows with the wrapped source.
func (s *RecordingSource) FindRowsWhere(ctx context.Context, q recordloader.Query) ([]recordloader.Row, error) {
	s.mu.Lock()
	recorded := q
	recorded.Keys = slices.Clone(q.Keys)
	s.queries = append(s.queries, recorded)
	s.mu.Unlock()

	return s.Source.FindRowsWhere(ctx, q)
}

// Queries returns the recorded queries in order.
func (s *RecordingSource) Queries() []recordloader.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.queries)
}

// Reset forgets the recorded queries.
func (s *RecordingSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = nil
}
