package schema

import (
	"slices"
	"strings"

	"github.com/karupanerura/recordloader"
)

// DefaultPrimaryKey is the primary key of models created by New.
const DefaultPrimaryKey = "id"

// Model is a declared record type.
// A Model must not be modified after it is shared with a loader or a data source.
type Model struct {
	name         string
	primaryKey   string
	attributes   []string
	types        map[string]recordloader.ValueType
	associations []recordloader.Association
}

var _ recordloader.Model = (*Model)(nil)

// New creates a model without attributes whose primary key is DefaultPrimaryKey.
func New(name string) *Model {
	return &Model{
		name:       name,
		primaryKey: DefaultPrimaryKey,
		types:      map[string]recordloader.ValueType{},
	}
}

// WithPrimaryKey sets the primary key attribute.
func (m *Model) WithPrimaryKey(name string) *Model {
	m.primaryKey = name
	return m
}

// Attribute declares an attribute. Declaring the same name again replaces its type.
func (m *Model) Attribute(name string, typ recordloader.ValueType) *Model {
	if _, ok := m.types[name]; !ok {
		m.attributes = append(m.attributes, name)
	}
	m.types[name] = typ
	return m
}

// BelongsTo declares that foreignKey of this model references the primary key of target.
func (m *Model) BelongsTo(name, target, foreignKey string) *Model {
	m.associations = append(m.associations, recordloader.Association{
		Name:       name,
		PluralName: Pluralize(name),
		Kind:       recordloader.BelongsTo,
		Target:     target,
		ForeignKey: foreignKey,
	})
	return m
}

// HasMany declares that foreignKey of target references the primary key of this model.
func (m *Model) HasMany(name, target, foreignKey string) *Model {
	m.associations = append(m.associations, recordloader.Association{
		Name:       name,
		PluralName: name,
		Kind:       recordloader.HasMany,
		Target:     target,
		ForeignKey: foreignKey,
	})
	return m
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.name
}

// PrimaryKey returns the name of the primary key attribute.
func (m *Model) PrimaryKey() string {
	return m.primaryKey
}

// Attributes returns the attribute names in declaration order.
func (m *Model) Attributes() []string {
	return slices.Clone(m.attributes)
}

// AttributeType returns the type of the attribute, or false if the model has no such attribute.
func (m *Model) AttributeType(name string) (recordloader.ValueType, bool) {
	typ, ok := m.types[name]
	return typ, ok
}

// Associations returns the declared associations in declaration order.
func (m *Model) Associations() []recordloader.Association {
	return slices.Clone(m.associations)
}

// Pluralize returns a naive English plural of a lower-case name. (e.g. "post" => "posts", "category" => "categories")
func Pluralize(name string) string {
	switch {
	case name == "":
		return name
	case strings.HasSuffix(name, "s"), strings.HasSuffix(name, "x"), strings.HasSuffix(name, "ch"), strings.HasSuffix(name, "sh"):
		return name + "es"
	case strings.HasSuffix(name, "y") && len(name) > 1 && !strings.ContainsRune("aeiou", rune(name[len(name)-2])):
		return name[:len(name)-1] + "ies"
	default:
		return name + "s"
	}
}
