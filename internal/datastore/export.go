package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lepinkainen/shelfscan/internal/inventory"
)

// ExportTable is the table exported inventory rows are written to.
const ExportTable = "inventory"

// ExportSchema is the SQLite schema of ExportTable.
const ExportSchema = `CREATE TABLE IF NOT EXISTS inventory (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	code TEXT,
	type TEXT,
	title TEXT,
	authors TEXT,
	publisher TEXT,
	year INTEGER,
	categories TEXT,
	quantity INTEGER,
	status TEXT,
	suggested_price TEXT,
	last_scanned_at TEXT
)`

// ExportBatchSize bounds rows per BatchInsert call.
const ExportBatchSize = 500

// Exporter copies inventory records into a Sink.
type Exporter struct {
	sink     Sink
	database string
}

// NewExporter creates an exporter writing to database on sink.
func NewExporter(sink Sink, database string) *Exporter {
	if database == "" {
		database = "shelfscan"
	}
	return &Exporter{sink: sink, database: database}
}

// Export writes records in batches and returns how many were written.
func (e *Exporter) Export(ctx context.Context, records []inventory.Record) (int, error) {
	if err := e.sink.CreateTable(ExportSchema); err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(records); start += ExportBatchSize {
		end := min(start+ExportBatchSize, len(records))

		rows := make([]map[string]any, 0, end-start)
		for _, rec := range records[start:end] {
			rows = append(rows, ExportRow(rec))
		}
		if err := e.sink.BatchInsert(ctx, e.database, ExportTable, rows); err != nil {
			return written, fmt.Errorf("export batch at %d: %w", start, err)
		}
		written += len(rows)
		slog.Debug("Exported inventory batch", "rows", len(rows), "total", written)
	}
	return written, nil
}

// ExportRow flattens a record into export columns.
func ExportRow(rec inventory.Record) map[string]any {
	code := rec.CanonicalCode
	if code == "" {
		code = rec.Barcode
	}
	var price any
	if rec.SuggestedPrice != nil {
		price = rec.SuggestedPrice.StringFixed(2)
	}
	return map[string]any{
		"id":              rec.ID,
		"owner_id":        rec.OwnerID,
		"code":            code,
		"type":            string(rec.Type),
		"title":           rec.Title,
		"authors":         strings.Join(rec.Authors, ", "),
		"publisher":       rec.Publisher,
		"year":            rec.Year,
		"categories":      strings.Join(rec.Categories, ", "),
		"quantity":        rec.Quantity,
		"status":          string(rec.Status),
		"suggested_price": price,
		"last_scanned_at": rec.LastScannedAt.UTC().Format(time.RFC3339),
	}
}
