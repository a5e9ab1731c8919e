package recordloader

import (
	"context"
)

// Row is a record returned by a DataSource.
type Row interface {
	// Attribute returns the value of the named attribute.
	// The second result is false if the row has no such attribute.
	Attribute(name string) (any, bool)

	// Association returns the rows reached through the named association.
	// A belongs-to association yields zero or one row, a has-many association yields any number of rows.
	// The second result is false if the row has no such association.
	Association(name string) ([]Row, bool)
}

// AssociationKind is the cardinality of an association.
type AssociationKind int

const (
	// BelongsTo means the owner row holds the foreign key of the target row.
	BelongsTo AssociationKind = iota + 1

	// HasMany means the target rows hold the foreign key of the owner row.
	HasMany
)

// String returns the name of the kind.
func (k AssociationKind) String() string {
	switch k {
	case BelongsTo:
		return "belongs_to"
	case HasMany:
		return "has_many"
	default:
		return "unknown"
	}
}

// Association describes a relation from one model to another.
type Association struct {
	// Name is the name used to traverse the association from a row. (e.g. "post", "comments")
	Name string

	// PluralName is the plural form of the target model name. (e.g. "posts", "comments")
	// Column paths may address the association by either Name or PluralName.
	PluralName string

	// Kind is the cardinality of the association.
	Kind AssociationKind

	// Target is the name of the associated model.
	Target string

	// ForeignKey is the attribute holding the reference.
	// For BelongsTo it is an attribute of the owner model, for HasMany an attribute of the target model.
	ForeignKey string
}

// Model describes the attributes and associations of one record type.
type Model interface {
	// Name returns the model name. (e.g. "Comment")
	Name() string

	// PrimaryKey returns the name of the primary key attribute.
	PrimaryKey() string

	// Attributes returns the attribute names in declaration order.
	Attributes() []string

	// AttributeType returns the declared value type of the named attribute.
	AttributeType(name string) (ValueType, bool)

	// Associations returns the associations declared on the model.
	Associations() []Association
}

// Schema resolves model descriptions by name.
// Implementations must be thread-safe.
type Schema interface {
	// Model returns the model with the given name.
	Model(name string) (Model, bool)
}

// ColumnPath addresses the column a loader is keyed by.
// If Association is empty, Attribute is an attribute of the queried model itself.
// Otherwise Attribute is an attribute of the model reached through Association.
type ColumnPath struct {
	Association string
	Attribute   string
}

// String returns the dotted form of the path. (e.g. "post_id", "post.id")
func (p ColumnPath) String() string {
	if p.Association == "" {
		return p.Attribute
	}
	return p.Association + "." + p.Attribute
}

// Query is one batched lookup issued to a DataSource.
type Query struct {
	// Model is the name of the model to fetch rows of.
	Model string

	// Column is the column the keys are matched against.
	Column ColumnPath

	// Keys are the distinct normalized keys, in the order they were first requested.
	Keys []any

	// Where narrows the candidate rows. It may be nil.
	Where Where
}

// DataSource is the storage collaborator of a RecordLoader.
// Implementations must be thread-safe.
type DataSource interface {
	Schema

	// FindRowsWhere returns all rows of q.Model whose q.Column value is one of q.Keys and that satisfy q.Where.
	// Rows must be returned in the natural order of the source.
	FindRowsWhere(ctx context.Context, q Query) ([]Row, error)
}

// BatchLoader is a loader that can be registered with a Coordinator.
type BatchLoader interface {
	// PendingCount returns the number of keys waiting for the next batch.
	PendingCount() int

	// PerformBatch issues one query for all pending keys and fulfills them.
	// It is called by the Coordinator only.
	PerformBatch(ctx context.Context) error

	// RejectPending rejects every pending key with the given error.
	// It returns the panics recovered from callbacks of the rejected keys, if any.
	RejectPending(err error) error
}
