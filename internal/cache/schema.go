package cache

import "fmt"

// SQL schemas for cache tables
// All cache tables use "cache_key" as the primary key column for consistency.
// cached_at is stored as unix nanoseconds and ttl_seconds carries the TTL the
// entry was written with.

// Cache table names
const (
	OpenLibraryTable = "openlibrary_cache"
	GoogleBooksTable = "googlebooks_cache"
	ISBNdbTable      = "isbndb_cache"
	QuoteTable       = "quote_cache"
)

// CacheSchema returns the CREATE statements for a cache table.
func CacheSchema(tableName string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_cached_at ON %[1]s(cached_at);
`, tableName)
}

// cacheTables lists every table created by NewCacheDB
var cacheTables = []string{
	OpenLibraryTable,
	GoogleBooksTable,
	ISBNdbTable,
	QuoteTable,
}

// AllCacheSchemas returns all cache table schemas for easy initialization
func AllCacheSchemas() []string {
	schemas := make([]string, 0, len(cacheTables))
	for _, table := range cacheTables {
		schemas = append(schemas, CacheSchema(table))
	}
	return schemas
}

// ValidCacheTableNames is the whitelist of allowed cache table names
// Used to prevent SQL injection when interpolating table names
var ValidCacheTableNames = map[string]bool{
	OpenLibraryTable: true,
	GoogleBooksTable: true,
	ISBNdbTable:      true,
	QuoteTable:       true,
}

// SourceTables maps the user-facing source names to their cache tables.
var SourceTables = map[string]string{
	"openlibrary": OpenLibraryTable,
	"googlebooks": GoogleBooksTable,
	"isbndb":      ISBNdbTable,
	"quote":       QuoteTable,
}
