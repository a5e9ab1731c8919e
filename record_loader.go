package recordloader

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/karupanerura/recordloader/internal/iterutil"
	"github.com/karupanerura/recordloader/internal/panicutil"
)

// RecordLoader batches lookups of one model by one column.
// Each distinct key is queried at most once and its future is resolved at most once.
// RecordLoader is not safe for concurrent use; it belongs to one Coordinator.
type RecordLoader struct {
	source       DataSource
	model        Model
	column       ColumnPath
	columnType   ValueType
	where        Where
	maxBatchSize int

	pending []any
	slots   map[any]*Future[[]Row]
}

var _ BatchLoader = (*RecordLoader)(nil)

// NewRecordLoader creates a loader of model rows keyed by column.
// The column is an attribute of the model (e.g. "post_id"), or an association path (e.g. "post.id")
// whose first segment is the name or plural name of an association of the model.
// An empty column means the primary key of the model.
func NewRecordLoader(source DataSource, model, column string, opts ...LoaderOption) (*RecordLoader, error) {
	m, ok := source.Model(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	if column == "" {
		column = m.PrimaryKey()
	}

	path, typ, err := resolveColumn(source, m, column)
	if err != nil {
		return nil, err
	}

	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt.apply(&options)
	}

	where, err := options.where.Normalize(m)
	if err != nil {
		return nil, err
	}

	return &RecordLoader{
		source:       source,
		model:        m,
		column:       path,
		columnType:   typ,
		where:        where,
		maxBatchSize: options.maxBatchSize,
		slots:        map[any]*Future[[]Row]{},
	}, nil
}

func resolveColumn(s Schema, m Model, column string) (ColumnPath, ValueType, error) {
	if typ, ok := m.AttributeType(column); ok {
		return ColumnPath{Attribute: column}, typ, nil
	}

	segment, attribute, _ := strings.Cut(column, ".")
	i := slices.IndexFunc(m.Associations(), func(a Association) bool {
		return a.Name == segment || a.PluralName == segment
	})
	if i == -1 || attribute == "" {
		return ColumnPath{}, nil, &AssociationResolutionError{Model: m.Name(), Path: column, Segment: segment}
	}

	association := m.Associations()[i]
	target, ok := s.Model(association.Target)
	if !ok {
		return ColumnPath{}, nil, fmt.Errorf("%w: %s (target of %s.%s)", ErrUnknownModel, association.Target, m.Name(), association.Name)
	}
	typ, ok := target.AttributeType(attribute)
	if !ok {
		return ColumnPath{}, nil, fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, target.Name(), attribute)
	}
	return ColumnPath{Association: association.Name, Attribute: attribute}, typ, nil
}

// Model returns the name of the loaded model.
func (l *RecordLoader) Model() string {
	return l.model.Name()
}

// Column returns the resolved column path.
func (l *RecordLoader) Column() ColumnPath {
	return l.column
}

// Load returns a future of the rows whose column value equals the key.
// The key is cast to the column type first; a failed cast returns *KeyCastError.
// Loading a key that is pending or resolved already returns the same future without querying again.
func (l *RecordLoader) Load(raw any) (*Future[[]Row], error) {
	key, err := l.cast(raw)
	if err != nil {
		return nil, err
	}
	return l.register(key), nil
}

// LoadMany loads every key and returns a future of the rows for each key in order.
// Every key is cast before any of them is registered, so a failed cast loads nothing.
func (l *RecordLoader) LoadMany(raws ...any) (*Future[[][]Row], error) {
	keys := make([]any, len(raws))
	for i, raw := range raws {
		key, err := l.cast(raw)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}

	futures := make([]*Future[[]Row], len(keys))
	for i, key := range keys {
		futures[i] = l.register(key)
	}
	return All(futures...), nil
}

func (l *RecordLoader) register(key any) *Future[[]Row] {
	if f, ok := l.slots[key]; ok {
		return f
	}
	f := &Future[[]Row]{}
	l.slots[key] = f
	l.pending = append(l.pending, key)
	return f
}

// Prime resolves the key with the given rows without querying.
// It returns false if the key is resolved already; the existing result is kept.
// Nil rows are stored as an empty slice, as a batch without matches would deliver.
// A panic in a callback of the key's future is returned as *panics.ErrRecovered after the key is resolved.
func (l *RecordLoader) Prime(raw any, rows []Row) (bool, error) {
	key, err := l.cast(raw)
	if err != nil {
		return false, err
	}
	if rows == nil {
		rows = []Row{}
	}
	if f, ok := l.slots[key]; ok {
		return f.fulfill(rows)
	}
	l.slots[key] = Resolved(rows)
	return true, nil
}

func (l *RecordLoader) cast(raw any) (any, error) {
	key, err := l.columnType.Cast(raw)
	if err != nil {
		return nil, &KeyCastError{
			Model:  l.model.Name(),
			Column: l.column.String(),
			Type:   l.columnType.Name(),
			Key:    raw,
			Err:    err,
		}
	}
	return key, nil
}

// PendingCount returns the number of keys waiting for the next batch.
func (l *RecordLoader) PendingCount() int {
	n := 0
	for _, key := range l.pending {
		if !l.slots[key].Done() {
			n++
		}
	}
	return n
}

// takePending removes the unresolved keys from the pending list.
// With a max batch size, keys beyond it stay pending for a later batch.
func (l *RecordLoader) takePending() []any {
	keys := make([]any, 0, len(l.pending))
	rest := 0
	for i, key := range l.pending {
		if l.slots[key].Done() {
			continue
		}
		if l.maxBatchSize > 0 && len(keys) == l.maxBatchSize {
			rest = i
			break
		}
		keys = append(keys, key)
	}
	if rest == 0 {
		l.pending = nil
	} else {
		l.pending = slices.Clone(l.pending[rest:])
	}
	return keys
}

// PerformBatch issues one query for the pending keys and resolves their futures.
// Keys resolved in the meantime, for example by Prime from a continuation, keep their first result.
// Keys loaded by continuations while the batch is being fulfilled are left for the next batch.
// If the query fails, every future of the batch is rejected with *DataSourceError.
// Callbacks that panic do not stop the batch: every key is resolved first,
// then the recovered panics are returned.
func (l *RecordLoader) PerformBatch(ctx context.Context) error {
	keys := l.takePending()
	if len(keys) == 0 {
		return nil
	}

	q := Query{
		Model:  l.model.Name(),
		Column: l.column,
		Keys:   keys,
		Where:  l.where,
	}

	var groups map[any][]Row
	if err := panicutil.Catch(func() error {
		rows, err := l.source.FindRowsWhere(ctx, q)
		if err != nil {
			return err
		}
		groups, err = l.groupRows(rows)
		return err
	}); err != nil {
		dsErr := &DataSourceError{
			Model:  l.model.Name(),
			Column: l.column.String(),
			Keys:   keys,
			Err:    err,
		}
		var panicked *multierror.Error
		for _, key := range keys {
			if _, err := l.slots[key].reject(dsErr); err != nil {
				panicked = multierror.Append(panicked, err)
			}
		}
		if panicked != nil {
			return multierror.Append(dsErr, panicked)
		}
		return dsErr
	}

	var panicked *multierror.Error
	for _, key := range keys {
		rows, ok := groups[key]
		if !ok {
			rows = []Row{}
		}
		if _, err := l.slots[key].fulfill(rows); err != nil {
			panicked = multierror.Append(panicked, err)
		}
	}
	return panicked.ErrorOrNil()
}

// RejectPending rejects every pending key with the error.
// It returns the panics recovered from the callbacks of the rejected futures.
func (l *RecordLoader) RejectPending(err error) error {
	keys := l.pending
	l.pending = nil
	var panicked *multierror.Error
	for _, key := range keys {
		if _, p := l.slots[key].reject(err); p != nil {
			panicked = multierror.Append(panicked, p)
		}
	}
	return panicked.ErrorOrNil()
}

// groupRows groups rows by their join values, keeping the source order within each group.
func (l *RecordLoader) groupRows(rows []Row) (map[any][]Row, error) {
	groups := map[any][]Row{}
	for _, row := range rows {
		values, err := l.joinValues(row)
		if err != nil {
			return nil, err
		}
		for v := range iterutil.Uniq(slices.Values(values)) {
			groups[v] = append(groups[v], row)
		}
	}
	return groups, nil
}

// joinValues returns the normalized column values of the row.
// A row reached through a has-many association may have several values.
func (l *RecordLoader) joinValues(row Row) ([]any, error) {
	if l.column.Association == "" {
		return l.attributeValues(row, nil)
	}

	related, ok := row.Association(l.column.Association)
	if !ok {
		return nil, fmt.Errorf("%w: row of %s has no association %q", ErrAssociationResolution, l.model.Name(), l.column.Association)
	}
	values := make([]any, 0, len(related))
	for _, r := range related {
		var err error
		values, err = l.attributeValues(r, values)
		if err != nil {
			return nil, err
		}
	}
	return values, nil
}

func (l *RecordLoader) attributeValues(row Row, values []any) ([]any, error) {
	raw, ok := row.Attribute(l.column.Attribute)
	if !ok {
		return nil, fmt.Errorf("%w: row of %s has no attribute %q", ErrUnknownAttribute, l.model.Name(), l.column.Attribute)
	}
	if raw == nil {
		// NULL never equals a key
		return values, nil
	}
	v, err := l.columnType.Cast(raw)
	if err != nil {
		return nil, fmt.Errorf("join value of %s: %w", l.column, err)
	}
	return append(values, v), nil
}
