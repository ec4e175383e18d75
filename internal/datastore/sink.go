// Package datastore persists inventory records (SQLStore) and exports them to
// local SQLite files or remote Datasette instances (Sink, Exporter).
package datastore

import "context"

// Sink receives exported rows.
type Sink interface {
	// Connect establishes a connection to the sink
	Connect() error

	// CreateTable creates a new table with the given schema if it doesn't exist
	CreateTable(schema string) error

	// BatchInsert upserts records into database.table
	BatchInsert(ctx context.Context, database, table string, records []map[string]any) error

	// Close closes the connection to the sink
	Close() error
}
