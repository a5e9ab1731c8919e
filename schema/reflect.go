package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-reflect"

	"github.com/karupanerura/recordloader"
)

// ErrNotStruct is returned when a reflected type or value is not a struct.
var ErrNotStruct = errors.New("schema: not a struct")

// Reflect derives a model from the fields of the struct type T.
//
// Fields tagged `db:"name"` are attributes; `db:"name,pk"` marks the primary key and `db:"-"` skips the field.
// The value type is derived from the field kind (integers, strings, floats and booleans, or pointers to them).
// Fields tagged `assoc:"name,kind,Target,foreign_key"` declare associations, where kind is belongs_to or has_many.
func Reflect[T any](name string) (*Model, error) {
	typ := reflect.ValueOf(new(T)).Elem().Type()
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrNotStruct, typ.String())
	}

	m := New(name)
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.PkgPath != "" {
			continue
		}

		if tag, ok := f.Tag.Lookup("assoc"); ok {
			if err := reflectAssociation(m, tag); err != nil {
				return nil, fmt.Errorf("schema: field %s.%s: %w", typ.Name(), f.Name, err)
			}
			continue
		}

		tag, ok := f.Tag.Lookup("db")
		if !ok || tag == "-" {
			continue
		}
		attr, opt, _ := strings.Cut(tag, ",")

		kind := f.Type.Kind()
		if kind == reflect.Ptr {
			kind = f.Type.Elem().Kind()
		}
		valueType, ok := valueTypeOfKind(kind)
		if !ok {
			return nil, fmt.Errorf("schema: field %s.%s: unsupported type %s", typ.Name(), f.Name, f.Type)
		}
		m.Attribute(attr, valueType)
		if opt == "pk" {
			m.WithPrimaryKey(attr)
		}
	}
	return m, nil
}

// MustReflect is like Reflect but panics on error.
func MustReflect[T any](name string) *Model {
	m, err := Reflect[T](name)
	if err != nil {
		panic(err)
	}
	return m
}

func valueTypeOfKind(kind reflect.Kind) (recordloader.ValueType, bool) {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return recordloader.Integer, true
	case reflect.String:
		return recordloader.String, true
	case reflect.Float32, reflect.Float64:
		return recordloader.Float, true
	case reflect.Bool:
		return recordloader.Boolean, true
	}
	return nil, false
}

func reflectAssociation(m *Model, tag string) error {
	parts := strings.Split(tag, ",")
	if len(parts) != 4 {
		return fmt.Errorf("assoc tag must be \"name,kind,Target,foreign_key\": %q", tag)
	}
	name, kind, target, foreignKey := parts[0], parts[1], parts[2], parts[3]
	switch kind {
	case "belongs_to":
		m.BelongsTo(name, target, foreignKey)
	case "has_many":
		m.HasMany(name, target, foreignKey)
	default:
		return fmt.Errorf("unknown association kind %q", kind)
	}
	return nil
}

// Values returns the attribute values of a struct tagged as described in Reflect.
// Nil pointer fields yield nil values.
func Values(v any) (map[string]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T", ErrNotStruct, v)
	}

	typ := rv.Type()
	values := map[string]any{}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.PkgPath != "" {
			continue
		}
		tag, ok := f.Tag.Lookup("db")
		if !ok || tag == "-" {
			continue
		}
		attr, _, _ := strings.Cut(tag, ",")

		fv := rv.Field(i)
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				values[attr] = nil
				continue
			}
			fv = fv.Elem()
		}
		values[attr] = fv.Interface()
	}
	return values, nil
}
