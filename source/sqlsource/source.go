package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/karupanerura/recordloader"
	"github.com/karupanerura/recordloader/internal/iterutil"
	"github.com/karupanerura/recordloader/schema"
	"github.com/karupanerura/recordloader/source"
)

// Querier is the database access method used by this package.
// The *sql.DB, *sql.Tx and *sql.Conn types implement it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
	_ Querier = (*sql.Conn)(nil)
)

// Source is a data source backed by a SQL database.
// It is safe for concurrent use if the querier is.
type Source struct {
	db      Querier
	schema  recordloader.Schema
	dialect Dialect
	tables  map[string]string
	logger  *zap.Logger
	tracer  trace.Tracer
}

var _ recordloader.DataSource = (*Source)(nil)

// New creates a data source of the models of the schema stored in db.
func New(db Querier, s recordloader.Schema, opts ...Option) *Source {
	src := &Source{
		db:      db,
		schema:  s,
		dialect: MySQL,
		tables:  map[string]string{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt.apply(src)
	}
	if src.tracer == nil {
		src.tracer = defaultTracer()
	}
	return src
}

// Model returns the model with the given name.
func (s *Source) Model(name string) (recordloader.Model, bool) {
	return s.schema.Model(name)
}

// TableName returns the table of the model.
func (s *Source) TableName(model string) string {
	if table, ok := s.tables[model]; ok {
		return table
	}
	return schema.Pluralize(snakeCase(model))
}

// FindRowsWhere selects the rows of q.Model whose column value is one of q.Keys and that satisfy q.Where,
// ordered by primary key.
func (s *Source) FindRowsWhere(ctx context.Context, q recordloader.Query) ([]recordloader.Row, error) {
	if len(q.Keys) == 0 || matchesNothing(q.Where) {
		return []recordloader.Row{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.plan(q)
	if err != nil {
		return nil, err
	}
	query, args := p.build(s.dialect, q)

	ctx, span := s.tracer.Start(ctx, "sqlsource.FindRowsWhere", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("db.system", s.dialect.Name()),
		attribute.String("db.statement", query),
	))
	defer span.End()

	s.logger.Debug("query", zap.String("sql", query), zap.Int("args", len(args)))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("sqlsource: %s: %w", q.Model, err)
	}
	defer rows.Close()

	result, err := p.scan(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return nil, fmt.Errorf("sqlsource: %s: %w", q.Model, err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(result)))
	return result, nil
}

// matchesNothing reports whether a condition of the predicate accepts no value.
func matchesNothing(w recordloader.Where) bool {
	for _, name := range w.Attributes() {
		if len(w.Values(name)) == 0 {
			return true
		}
	}
	return false
}

// plan is the resolved shape of one query.
type plan struct {
	model       recordloader.Model
	table       string
	association *recordloader.Association
	target      recordloader.Model
	targetTable string
}

const (
	ownerAlias  = "t0"
	targetAlias = "t1"
)

func (s *Source) plan(q recordloader.Query) (*plan, error) {
	m, ok := s.schema.Model(q.Model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", recordloader.ErrUnknownModel, q.Model)
	}
	p := &plan{model: m, table: s.TableName(q.Model)}
	if q.Column.Association == "" {
		return p, nil
	}

	i := slices.IndexFunc(m.Associations(), func(a recordloader.Association) bool {
		return a.Name == q.Column.Association
	})
	if i == -1 {
		return nil, &recordloader.AssociationResolutionError{Model: q.Model, Path: q.Column.String(), Segment: q.Column.Association}
	}
	a := m.Associations()[i]
	target, ok := s.schema.Model(a.Target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", recordloader.ErrUnknownModel, a.Target)
	}
	p.association = &a
	p.target = target
	p.targetTable = s.TableName(a.Target)
	return p, nil
}

func (p *plan) build(d Dialect, q recordloader.Query) (string, []any) {
	var args []any
	condition := func(column string, values []any) string {
		placeholders := slices.Collect(iterutil.Map(slices.Values(values), func(v any) string {
			args = append(args, v)
			return d.Placeholder(len(args))
		}))
		if len(placeholders) == 1 {
			return d.Quote(column) + " = " + placeholders[0]
		}
		return d.Quote(column) + " IN (" + strings.Join(placeholders, ", ") + ")"
	}

	columns := qualify(d, ownerAlias, p.model.Attributes())
	if p.association != nil {
		columns = append(columns, qualify(d, targetAlias, p.target.Attributes())...)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s AS %s", strings.Join(columns, ", "), d.Quote(p.table), d.Quote(ownerAlias))

	keyAlias := ownerAlias
	if p.association != nil {
		keyAlias = targetAlias
		var left, right string
		switch p.association.Kind {
		case recordloader.BelongsTo:
			left, right = targetAlias+"."+p.target.PrimaryKey(), ownerAlias+"."+p.association.ForeignKey
		case recordloader.HasMany:
			left, right = targetAlias+"."+p.association.ForeignKey, ownerAlias+"."+p.model.PrimaryKey()
		}
		fmt.Fprintf(&b, " INNER JOIN %s AS %s ON %s = %s", d.Quote(p.targetTable), d.Quote(targetAlias), d.Quote(left), d.Quote(right))
	}

	b.WriteString(" WHERE ")
	b.WriteString(condition(keyAlias+"."+q.Column.Attribute, q.Keys))
	for _, name := range q.Where.Attributes() {
		b.WriteString(" AND ")
		b.WriteString(condition(ownerAlias+"."+name, q.Where.Values(name)))
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(d.Quote(ownerAlias + "." + p.model.PrimaryKey()))
	if p.association != nil {
		b.WriteString(", ")
		b.WriteString(d.Quote(targetAlias + "." + p.target.PrimaryKey()))
	}
	return b.String(), args
}

func qualify(d Dialect, alias string, names []string) []string {
	return slices.Collect(iterutil.Map(slices.Values(names), func(name string) string {
		return d.Quote(alias + "." + name)
	}))
}

// scan reads the result set. Owner rows repeated by a has-many join are collapsed into one row
// accumulating the associated rows.
func (p *plan) scan(rows *sql.Rows) ([]recordloader.Row, error) {
	ownerColumns := p.model.Attributes()
	var targetColumns []string
	if p.association != nil {
		targetColumns = p.target.Attributes()
	}

	result := []recordloader.Row{}
	byKey := map[any]*source.MapRow{}
	for rows.Next() {
		raws := make([]any, len(ownerColumns)+len(targetColumns))
		dest := make([]any, len(raws))
		for i := range raws {
			dest[i] = &raws[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		owner, err := castRow(p.model, ownerColumns, raws[:len(ownerColumns)])
		if err != nil {
			return nil, err
		}
		if p.association == nil {
			result = append(result, &source.MapRow{Values: owner})
			continue
		}

		target, err := castRow(p.target, targetColumns, raws[len(ownerColumns):])
		if err != nil {
			return nil, err
		}
		pk := owner[p.model.PrimaryKey()]
		row, ok := byKey[pk]
		if !ok {
			row = &source.MapRow{Values: owner, Associations: map[string][]recordloader.Row{p.association.Name: {}}}
			byKey[pk] = row
			result = append(result, row)
		}
		row.Associations[p.association.Name] = append(row.Associations[p.association.Name], &source.MapRow{Values: target})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func castRow(m recordloader.Model, columns []string, raws []any) (map[string]any, error) {
	values := make(map[string]any, len(columns))
	for i, name := range columns {
		raw := raws[i]
		if raw == nil {
			values[name] = nil
			continue
		}
		if b, ok := raw.([]byte); ok {
			raw = string(b)
		}
		typ, _ := m.AttributeType(name)
		v, err := typ.Cast(raw)
		if err != nil {
			return nil, fmt.Errorf("column %s.%s: %w", m.Name(), name, err)
		}
		values[name] = v
	}
	return values, nil
}

// snakeCase converts a model name to snake case. (e.g. "BlogPost" => "blog_post")
func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
