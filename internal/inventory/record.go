// Package inventory merges scanned items into a per-owner inventory with
// quantity accounting.
package inventory

import (
	"context"
	"time"

	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a record. Only StatusDraft is set here;
// later states belong to listing workflows.
type Status string

const (
	StatusDraft Status = "draft"
)

// SourceScan tags records created from a scan.
const SourceScan = "scan"

// KeyColumn names the column a record is matched on.
type KeyColumn string

const (
	// KeyCanonicalCode matches books and products on their canonical code.
	KeyCanonicalCode KeyColumn = "canonical_code"
	// KeyBarcode matches magazines on the full scanned barcode.
	KeyBarcode KeyColumn = "barcode"
)

// Record is one inventory row. Empty CanonicalCode or Barcode values are
// stored as NULL.
type Record struct {
	ID            string           `json:"id"`
	OwnerID       string           `json:"owner_id"`
	CanonicalCode string           `json:"canonical_code,omitempty"`
	Barcode       string           `json:"barcode,omitempty"`
	Type          product.ItemType `json:"type"`
	Title         string           `json:"title"`
	Authors       []string         `json:"authors,omitempty"`
	Publisher     string           `json:"publisher,omitempty"`
	Year          int              `json:"year,omitempty"`
	Description   string           `json:"description,omitempty"`
	Categories    []string         `json:"categories,omitempty"`
	CoverURL      string           `json:"cover_url,omitempty"`
	Quantity      int              `json:"quantity"`
	Status        Status           `json:"status"`
	Source        string           `json:"source,omitempty"`

	SuggestedPrice *decimal.Decimal `json:"suggested_price,omitempty"`

	LastScannedAt time.Time `json:"last_scanned_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MatchKey returns the column and value the record is matched on.
func (r *Record) MatchKey() (KeyColumn, string) {
	if r.Type == product.TypeMagazine {
		return KeyBarcode, r.Barcode
	}
	return KeyCanonicalCode, r.CanonicalCode
}

// Store is keyed CRUD over inventory records.
type Store interface {
	// FindByKey returns the owner's record whose column equals key, or nil
	// when there is none.
	FindByKey(ctx context.Context, ownerID string, column KeyColumn, key string) (*Record, error)
	Insert(ctx context.Context, rec *Record) error
	// Update writes every field except SuggestedPrice and CreatedAt.
	Update(ctx context.Context, rec *Record) error
	SetSuggestedPrice(ctx context.Context, id string, price decimal.Decimal) error
	// Get returns ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, ownerID string) ([]Record, error)
}
