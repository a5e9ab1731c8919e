// Package sqlsource provides an implementation of the recordloader.DataSource interface
// backed by a SQL database accessed through database/sql.
//
// Each query is a single SELECT statement. Association paths are joined with INNER JOIN,
// and rows are returned in primary key order, which is the natural order of the source.
//
// Rows returned for an association path carry that association only, holding the associated
// rows that matched the keys. Other associations of the returned rows are not loaded.
package sqlsource
