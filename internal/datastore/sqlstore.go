package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/lepinkainen/shelfscan/internal/inventory"
	"github.com/shopspring/decimal"
)

const inventoryColumns = `id, owner_id, canonical_code, barcode, type, title, authors, publisher,
	year, description, categories, cover_url, quantity, status, source, suggested_price,
	last_scanned_at, created_at, updated_at`

// SQLStore implements inventory.Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ inventory.Store = (*SQLStore)(nil)

// OpenSQLStore opens dsn with the named driver ("sqlite", "mysql" or
// "postgres") and creates the inventory table.
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	dialect, err := LookupDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Name, err)
	}
	if dialect.Name == "sqlite" {
		// Single writer avoids SQLITE_BUSY under concurrent merges.
		db.SetMaxOpenConns(1)
	}

	s, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return s, nil
}

// NewSQLStore wraps an open database and migrates it.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect.Name, err)
	}
	if _, err := db.ExecContext(ctx, dialect.InventorySchema()); err != nil {
		return nil, fmt.Errorf("failed to create inventory table: %w", err)
	}
	slog.Debug("Inventory store ready", "dialect", dialect.Name)
	return &SQLStore{db: db, dialect: dialect}, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) FindByKey(ctx context.Context, ownerID string, column inventory.KeyColumn, key string) (*inventory.Record, error) {
	if column != inventory.KeyCanonicalCode && column != inventory.KeyBarcode {
		return nil, fmt.Errorf("unknown key column %q", column)
	}

	query := s.dialect.Rebind(fmt.Sprintf(
		"SELECT %s FROM inventory_items WHERE owner_id = ? AND %s = ?", inventoryColumns, column))
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, ownerID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by %s: %w", column, err)
	}
	return rec, nil
}

func (s *SQLStore) Insert(ctx context.Context, rec *inventory.Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	query := s.dialect.Rebind(fmt.Sprintf(
		"INSERT INTO inventory_items (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		inventoryColumns))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, rec *inventory.Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	// suggested_price is written only by SetSuggestedPrice.
	query := s.dialect.Rebind(`UPDATE inventory_items SET
		canonical_code = ?, barcode = ?, type = ?, title = ?, authors = ?, publisher = ?,
		year = ?, description = ?, categories = ?, cover_url = ?, quantity = ?, status = ?,
		source = ?, last_scanned_at = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`)
	updateArgs := append(append([]any{}, args[2:15]...), args[16], args[18], rec.ID, rec.OwnerID)
	res, err := s.db.ExecContext(ctx, query, updateArgs...)
	if err != nil {
		return fmt.Errorf("update %s: %w", rec.ID, err)
	}
	return s.ensureAffected(ctx, res, rec.ID)
}

func (s *SQLStore) SetSuggestedPrice(ctx context.Context, id string, price decimal.Decimal) error {
	query := s.dialect.Rebind("UPDATE inventory_items SET suggested_price = ?, updated_at = ? WHERE id = ?")
	res, err := s.db.ExecContext(ctx, query, price.StringFixed(2), time.Now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("set suggested price %s: %w", id, err)
	}
	return s.ensureAffected(ctx, res, id)
}

func (s *SQLStore) Get(ctx context.Context, id string) (*inventory.Record, error) {
	query := s.dialect.Rebind(fmt.Sprintf("SELECT %s FROM inventory_items WHERE id = ?", inventoryColumns))
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inventory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

// List returns the owner's records, most recently scanned first.
func (s *SQLStore) List(ctx context.Context, ownerID string) ([]inventory.Record, error) {
	query := s.dialect.Rebind(fmt.Sprintf(
		"SELECT %s FROM inventory_items WHERE owner_id = ? ORDER BY last_scanned_at DESC, id", inventoryColumns))
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []inventory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ensureAffected maps a zero-row update to ErrNotFound. MySQL reports zero
// affected rows for no-op updates, so existence is checked separately.
func (s *SQLStore) ensureAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, s.dialect.Rebind("SELECT 1 FROM inventory_items WHERE id = ?"), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", id, inventory.ErrNotFound)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*inventory.Record, error) {
	var (
		rec                          inventory.Record
		canonical, barcode           sql.NullString
		authors, categories          sql.NullString
		publisher, description       sql.NullString
		coverURL, source             sql.NullString
		year                         sql.NullInt64
		itemType, status             string
		price                        decimal.NullDecimal
		lastScanned, created, update int64
	)
	err := row.Scan(&rec.ID, &rec.OwnerID, &canonical, &barcode, &itemType, &rec.Title,
		&authors, &publisher, &year, &description, &categories, &coverURL,
		&rec.Quantity, &status, &source, &price, &lastScanned, &created, &update)
	if err != nil {
		return nil, err
	}

	rec.CanonicalCode = canonical.String
	rec.Barcode = barcode.String
	rec.Type = product.ItemType(itemType)
	rec.Status = inventory.Status(status)
	rec.Publisher = publisher.String
	rec.Description = description.String
	rec.CoverURL = coverURL.String
	rec.Source = source.String
	rec.Year = int(year.Int64)
	if price.Valid {
		p := price.Decimal
		rec.SuggestedPrice = &p
	}
	rec.LastScannedAt = time.Unix(0, lastScanned).UTC()
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, update).UTC()

	if rec.Authors, err = decodeList(authors); err != nil {
		return nil, fmt.Errorf("authors: %w", err)
	}
	if rec.Categories, err = decodeList(categories); err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}
	return &rec, nil
}

func recordArgs(rec *inventory.Record) ([]any, error) {
	authors, err := encodeList(rec.Authors)
	if err != nil {
		return nil, err
	}
	categories, err := encodeList(rec.Categories)
	if err != nil {
		return nil, err
	}

	var price any
	if rec.SuggestedPrice != nil {
		price = rec.SuggestedPrice.StringFixed(2)
	}

	return []any{
		rec.ID, rec.OwnerID, nullable(rec.CanonicalCode), nullable(rec.Barcode),
		string(rec.Type), rec.Title, authors, nullable(rec.Publisher),
		rec.Year, nullable(rec.Description), categories, nullable(rec.CoverURL),
		rec.Quantity, string(rec.Status), nullable(rec.Source), price,
		rec.LastScannedAt.UTC().UnixNano(), rec.CreatedAt.UTC().UnixNano(), rec.UpdatedAt.UTC().UnixNano(),
	}, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func encodeList(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeList(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}
