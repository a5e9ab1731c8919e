// Package memsource provides an in-memory implementation of the recordloader.DataSource interface.
//
// Rows are kept per model in insertion order, which is the natural order of the source.
// Attribute values are cast with the declared attribute types on insert, and associations
// of returned rows are resolved against the other tables of the same source.
package memsource
