// Package csvutil reads CSV files of scanned codes.
package csvutil

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ProcessorOptions configures CSV processing behavior.
type ProcessorOptions struct {
	// FieldsPerRecord sets the expected number of fields per record.
	// If 0, it's set to the number of fields in the first record; a negative
	// value allows variable length records.
	FieldsPerRecord int

	// SkipInvalid controls whether to skip invalid records or return an error.
	SkipInvalid bool

	// OnHeader, when set, receives the header row before any record is parsed.
	OnHeader func(header []string) error
}

// ProcessCSV reads a CSV file and parses each record into type T.
// The parser function converts a CSV record ([]string) into the target type.
// Returns a slice of parsed items or an error.
func ProcessCSV[T any](filename string, parser func([]string) (T, error), opts ProcessorOptions) ([]T, error) {
	csvFile, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %v", err)
	}
	defer func() { _ = csvFile.Close() }()

	// File existence check
	if fi, err := csvFile.Stat(); err != nil || fi.Size() == 0 {
		return nil, fmt.Errorf("CSV file is empty or cannot be read")
	}

	return ProcessReader(csvFile, parser, opts)
}

// ProcessReader is ProcessCSV over an already open reader.
func ProcessReader[T any](r io.Reader, parser func([]string) (T, error), opts ProcessorOptions) ([]T, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	if opts.FieldsPerRecord != 0 {
		reader.FieldsPerRecord = opts.FieldsPerRecord
	}

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %v", err)
	}
	if opts.OnHeader != nil {
		if err := opts.OnHeader(header); err != nil {
			return nil, err
		}
	}

	var items []T

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("Error reading record", "error", err)
			continue
		}

		item, err := parser(record)
		if err != nil {
			if opts.SkipInvalid {
				slog.Warn("Skipping invalid record", "error", err)
				continue
			}
			return nil, fmt.Errorf("invalid record: %v", err)
		}

		items = append(items, item)
	}

	return items, nil
}

// ScanRow is one entry of a scan list.
type ScanRow struct {
	Code string
	Type string
}

// codeColumns are accepted header names for the code column, in preference order.
var codeColumns = []string{"code", "barcode", "isbn", "isbn13", "ean", "upc"}

// ReadScanList reads codes from a CSV whose header names a code column
// (code, barcode, isbn, isbn13, ean or upc) and optionally a type column.
// Rows with a blank code are skipped.
func ReadScanList(filename string) ([]ScanRow, error) {
	codeIdx, typeIdx := -1, -1

	onHeader := func(header []string) error {
		index := make(map[string]int, len(header))
		for i, h := range header {
			index[strings.ToLower(strings.TrimSpace(h))] = i
		}
		for _, name := range codeColumns {
			if i, ok := index[name]; ok {
				codeIdx = i
				break
			}
		}
		if codeIdx < 0 {
			return fmt.Errorf("no code column in header %v", header)
		}
		if i, ok := index["type"]; ok {
			typeIdx = i
		}
		return nil
	}

	parser := func(record []string) (ScanRow, error) {
		if codeIdx >= len(record) {
			return ScanRow{}, fmt.Errorf("record has %d fields, code column is %d", len(record), codeIdx+1)
		}
		row := ScanRow{Code: strings.TrimSpace(record[codeIdx])}
		if row.Code == "" {
			return ScanRow{}, fmt.Errorf("blank code")
		}
		if typeIdx >= 0 && typeIdx < len(record) {
			row.Type = strings.ToLower(strings.TrimSpace(record[typeIdx]))
		}
		return row, nil
	}

	return ProcessCSV(filename, parser, ProcessorOptions{
		FieldsPerRecord: -1,
		SkipInvalid:     true,
		OnHeader:        onHeader,
	})
}
