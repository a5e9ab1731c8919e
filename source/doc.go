// Package source provides adapters and utilities for implementing recordloader.DataSource.
//
// FunctionsSource builds a data source from a schema and a query function, MapRow is a
// plain map-backed row, LintSource validates that a data source honors the query contract,
// and RecordingSource records every query issued to a data source.
package source
