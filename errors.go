package recordloader

import (
	"errors"
	"fmt"
)

var (
	ErrKeyCast               = errors.New("unable to cast key to the column type")
	ErrAssociationResolution = errors.New("unable to resolve association path")
	ErrUnknownAttribute      = errors.New("unknown attribute")
	ErrUnknownModel          = errors.New("unknown model")
	ErrDataSource            = errors.New("data source query failed")
	ErrPending               = errors.New("future is not resolved yet")
)

// KeyCastError is returned from Load when the raw key cannot be normalized to the column type.
type KeyCastError struct {
	Model  string
	Column string
	Type   string
	Key    any
	Err    error
}

func (e *KeyCastError) Error() string {
	return fmt.Sprintf("recordloader: cannot cast key %#v to %s for %s.%s: %v", e.Key, e.Type, e.Model, e.Column, e.Err)
}

func (e *KeyCastError) Is(target error) bool {
	return target == ErrKeyCast
}

func (e *KeyCastError) Unwrap() error {
	return e.Err
}

// AssociationResolutionError is returned when a column path names an association the model does not have.
type AssociationResolutionError struct {
	Model   string
	Path    string
	Segment string
}

func (e *AssociationResolutionError) Error() string {
	return fmt.Sprintf("recordloader: no association %q from %s (column %q)", e.Segment, e.Model, e.Path)
}

func (e *AssociationResolutionError) Is(target error) bool {
	return target == ErrAssociationResolution
}

// DataSourceError wraps a failure of a batched query.
// Every future pending in the failed batch is rejected with the same error.
type DataSourceError struct {
	Model  string
	Column string
	Keys   []any
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("recordloader: query %s by %s for %d keys: %v", e.Model, e.Column, len(e.Keys), e.Err)
}

func (e *DataSourceError) Is(target error) bool {
	return target == ErrDataSource
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}
