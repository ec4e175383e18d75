// Package product provides interfaces and utilities for resolving product codes
// to catalog metadata from multiple external sources.
package product

import (
	"context"

	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/shopspring/decimal"
)

// ItemType is the inventory category of a catalog item.
type ItemType string

const (
	TypeBook     ItemType = "book"
	TypeMagazine ItemType = "magazine"
	TypeProduct  ItemType = "product"
)

// ParseItemType maps user input to an ItemType. Unknown values yield "".
func ParseItemType(s string) ItemType {
	switch ItemType(s) {
	case TypeBook, TypeMagazine, TypeProduct:
		return ItemType(s)
	}
	return ""
}

// Enricher defines the interface for fetching item information from external sources.
// Each implementation should handle its own authentication, rate limiting, and data
// transformation to the common ItemMetadata format.
type Enricher interface {
	// Name returns the human-readable name of the source (e.g., "OpenLibrary").
	Name() string

	// Priority returns the priority when merging data. Lower values indicate
	// higher priority. This helps determine which source's data to prefer
	// when merging conflicting information.
	Priority() int

	// Supports reports whether the source can resolve codes of the given kind.
	Supports(kind barcode.Kind) bool

	// Ping tests the connection to the source and returns an error if it
	// cannot be reached for whatever reason.
	Ping(ctx context.Context) error

	// Enrich retrieves item information for the canonical code.
	// Returns nil, nil if the item is not found (allows other enrichers to try).
	// Returns nil, error for actual errors (network issues, rate limits, etc.)
	Enrich(ctx context.Context, code barcode.Code) (*ItemMetadata, error)
}

// ItemMetadata is the catalog description of a scanned item. It is owned by the
// caller and has no backing store of its own.
type ItemMetadata struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	Year        int      `json:"year,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`
	Description string   `json:"description,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Type        ItemType `json:"type,omitempty"`

	// Magazine specific fields.
	ISSN          string `json:"issn,omitempty"`
	IssueNumber   string `json:"issue_number,omitempty"`
	IssueTitle    string `json:"issue_title,omitempty"`
	IssueDate     string `json:"issue_date,omitempty"`
	InferredMonth int    `json:"inferred_month,omitempty"`
	InferredYear  int    `json:"inferred_year,omitempty"`

	// ListPrice is the printed cover/list price when the source knows it.
	ListPrice *decimal.Decimal `json:"list_price,omitempty"`

	// Source names the enricher(s) the data came from.
	Source string `json:"source,omitempty"`
}
