package lookup

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const catalogPriority = -1

// catalogEntry is one hand-maintained item in a catalog file.
type catalogEntry struct {
	Code        string   `yaml:"code"`
	Title       string   `yaml:"title"`
	Authors     []string `yaml:"authors"`
	Publisher   string   `yaml:"publisher"`
	Year        int      `yaml:"year"`
	Type        string   `yaml:"type"`
	Categories  []string `yaml:"categories"`
	Description string   `yaml:"description"`
	CoverURL    string   `yaml:"cover_url"`
	ISSN        string   `yaml:"issn"`
	IssueNumber string   `yaml:"issue_number"`
	IssueTitle  string   `yaml:"issue_title"`
	IssueDate   string   `yaml:"issue_date"`
	Month       int      `yaml:"month"`
	ListPrice   string   `yaml:"list_price"`
}

type catalogFile struct {
	Items []catalogEntry `yaml:"items"`
}

// CatalogEnricher serves metadata from a local YAML catalog. It covers codes
// the public book APIs cannot resolve (periodicals, generic products) and
// overrides them when both know a code.
type CatalogEnricher struct {
	items map[string]*product.ItemMetadata
}

// Compile-time check that CatalogEnricher implements product.Enricher.
var _ product.Enricher = (*CatalogEnricher)(nil)

// LoadCatalog reads a catalog file from path.
func LoadCatalog(path string) (*CatalogEnricher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseCatalog(f)
}

// ParseCatalog decodes a catalog. Codes are canonicalized on load; an entry
// with an unrecognized code is an error.
func ParseCatalog(r io.Reader) (*CatalogEnricher, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	items := make(map[string]*product.ItemMetadata, len(file.Items))
	for i, entry := range file.Items {
		code := barcode.Normalize(entry.Code)
		if !code.Valid() {
			return nil, fmt.Errorf("catalog item %d: unrecognized code %q", i, entry.Code)
		}

		meta := &product.ItemMetadata{
			Title:         entry.Title,
			Authors:       entry.Authors,
			Publisher:     entry.Publisher,
			Year:          entry.Year,
			Type:          product.ParseItemType(entry.Type),
			Categories:    entry.Categories,
			Description:   entry.Description,
			CoverURL:      entry.CoverURL,
			ISSN:          entry.ISSN,
			IssueNumber:   entry.IssueNumber,
			IssueTitle:    entry.IssueTitle,
			IssueDate:     entry.IssueDate,
			InferredMonth: entry.Month,
		}
		if meta.Type == product.TypeMagazine && entry.Year > 0 {
			meta.InferredYear = entry.Year
		}
		if entry.ListPrice != "" {
			price, err := decimal.NewFromString(entry.ListPrice)
			if err != nil {
				return nil, fmt.Errorf("catalog item %d: list_price: %w", i, err)
			}
			meta.ListPrice = &price
		}
		items[code.Digits] = meta
	}

	return &CatalogEnricher{items: items}, nil
}

// Len returns the number of catalog items.
func (c *CatalogEnricher) Len() int {
	return len(c.items)
}

func (c *CatalogEnricher) Name() string {
	return "Catalog"
}

func (c *CatalogEnricher) Priority() int {
	return catalogPriority
}

func (c *CatalogEnricher) Supports(kind barcode.Kind) bool {
	return kind != barcode.KindUnrecognized
}

func (c *CatalogEnricher) Ping(context.Context) error {
	return nil
}

// Enrich returns a copy of the catalog entry for code, or nil.
func (c *CatalogEnricher) Enrich(_ context.Context, code barcode.Code) (*product.ItemMetadata, error) {
	meta, ok := c.items[code.Digits]
	if !ok {
		return nil, nil
	}
	out := *meta
	return &out, nil
}
