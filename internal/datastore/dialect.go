package datastore

import (
	"fmt"
	"strconv"
	"strings"

	// Registers the "mysql" driver.
	_ "github.com/go-sql-driver/mysql"
	// Registers the "pgx" driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// Dialect holds the per-database differences of the inventory schema.
type Dialect struct {
	Name   string
	Driver string

	keyType   string
	shortType string
	textType  string
	intType   string
	moneyType string

	numbered bool
}

var dialects = map[string]Dialect{
	"sqlite": {
		Name: "sqlite", Driver: "sqlite",
		keyType: "TEXT", shortType: "TEXT", textType: "TEXT",
		intType: "INTEGER", moneyType: "TEXT",
	},
	"mysql": {
		Name: "mysql", Driver: "mysql",
		keyType: "VARCHAR(64)", shortType: "VARCHAR(32)", textType: "TEXT",
		intType: "BIGINT", moneyType: "DECIMAL(12,2)",
	},
	"postgres": {
		Name: "postgres", Driver: "pgx",
		keyType: "TEXT", shortType: "TEXT", textType: "TEXT",
		intType: "BIGINT", moneyType: "NUMERIC(12,2)",
		numbered: true,
	},
}

// LookupDialect returns the dialect by name. "postgresql" and "pgx" are
// accepted for postgres and "sqlite3" for sqlite.
func LookupDialect(name string) (Dialect, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "postgresql", "pgx":
		return dialects["postgres"], nil
	case "sqlite3", "":
		return dialects["sqlite"], nil
	default:
		d, ok := dialects[n]
		if !ok {
			return Dialect{}, fmt.Errorf("unsupported database driver %q", name)
		}
		return d, nil
	}
}

// Rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// InventorySchema returns the CREATE TABLE statement for inventory_items.
// Timestamps are unix nanoseconds; authors and categories are JSON arrays.
func (d Dialect) InventorySchema() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS inventory_items (
	id %[1]s PRIMARY KEY,
	owner_id %[1]s NOT NULL,
	canonical_code %[1]s,
	barcode %[1]s,
	type %[2]s NOT NULL,
	title %[3]s NOT NULL,
	authors %[3]s,
	publisher %[3]s,
	year %[4]s,
	description %[3]s,
	categories %[3]s,
	cover_url %[3]s,
	quantity %[4]s NOT NULL DEFAULT 1 CHECK (quantity >= 1),
	status %[2]s NOT NULL,
	source %[2]s,
	suggested_price %[5]s,
	last_scanned_at %[4]s NOT NULL,
	created_at %[4]s NOT NULL,
	updated_at %[4]s NOT NULL,
	UNIQUE (owner_id, canonical_code),
	UNIQUE (owner_id, barcode)
)`, d.keyType, d.shortType, d.textType, d.intType, d.moneyType)
}
