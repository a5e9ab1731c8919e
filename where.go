package recordloader

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/goccy/go-reflect"
)

// Where is a conjunction of equality conditions keyed by attribute name.
// A slice value matches any of its elements. (e.g. Where{"state": []string{"open", "draft"}})
type Where map[string]any

// Attributes returns the attribute names in sorted order.
func (w Where) Attributes() []string {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Values returns the accepted values for the attribute.
// A scalar condition yields one value.
func (w Where) Values(name string) []any {
	v, ok := w[name]
	if !ok {
		return nil
	}
	if vs, ok := v.([]any); ok {
		return vs
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		vs := make([]any, rv.Len())
		for i := range vs {
			vs[i] = rv.Index(i).Interface()
		}
		return vs
	}
	return []any{v}
}

// String renders the predicate canonically. Equal predicates render equally.
func (w Where) String() string {
	if len(w) == 0 {
		return ""
	}
	var b strings.Builder
	for i, name := range w.Attributes() {
		if i != 0 {
			b.WriteString(" AND ")
		}
		values := w.Values(name)
		if len(values) == 1 {
			fmt.Fprintf(&b, "%s = %#v", name, values[0])
			continue
		}
		fmt.Fprintf(&b, "%s IN %#v", name, values)
	}
	return b.String()
}

// Normalize casts every value with the model's attribute types.
// Lists are sorted and deduplicated after the cast so that equal predicates normalize equally.
func (w Where) Normalize(m Model) (Where, error) {
	if len(w) == 0 {
		return nil, nil
	}
	normalized := make(Where, len(w))
	for _, name := range w.Attributes() {
		typ, ok := m.AttributeType(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, m.Name(), name)
		}
		values := w.Values(name)
		casted := make([]any, len(values))
		for i, v := range values {
			c, err := typ.Cast(v)
			if err != nil {
				return nil, &KeyCastError{Model: m.Name(), Column: name, Type: typ.Name(), Key: v, Err: err}
			}
			casted[i] = c
		}
		slices.SortFunc(casted, compareValues)
		casted = slices.CompactFunc(casted, func(a, b any) bool { return a == b })
		if len(casted) == 1 {
			normalized[name] = casted[0]
		} else {
			normalized[name] = casted
		}
	}
	return normalized, nil
}

// compareValues orders values cast by one ValueType.
func compareValues(a, b any) int {
	switch a := a.(type) {
	case int64:
		if b, ok := b.(int64); ok {
			return cmp.Compare(a, b)
		}
	case float64:
		if b, ok := b.(float64); ok {
			return cmp.Compare(a, b)
		}
	case string:
		if b, ok := b.(string); ok {
			return cmp.Compare(a, b)
		}
	case bool:
		if b, ok := b.(bool); ok {
			switch {
			case a == b:
				return 0
			case !a:
				return -1
			default:
				return 1
			}
		}
	}
	return cmp.Compare(fmt.Sprintf("%#v", a), fmt.Sprintf("%#v", b))
}

// Matches reports whether the row satisfies every condition.
// Row values are cast with the model's attribute types before comparison.
func (w Where) Matches(m Model, row Row) bool {
	for name := range w {
		typ, ok := m.AttributeType(name)
		if !ok {
			return false
		}
		raw, ok := row.Attribute(name)
		if !ok {
			return false
		}
		got, err := typ.Cast(raw)
		if err != nil {
			return false
		}
		matched := false
		for _, v := range w.Values(name) {
			if want, err := typ.Cast(v); err == nil && want == got {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
