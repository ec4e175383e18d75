package pricing

import (
	"strings"

	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/shopspring/decimal"
)

// Item carries the signals a price is computed from.
type Item struct {
	ISBN       string
	ISSN       string
	Title      string
	Type       product.ItemType
	Categories []string
	ListPrice  *decimal.Decimal
}

// SearchText returns the market query: ISBN, then ISSN, then title.
func (i Item) SearchText() string {
	for _, s := range []string{i.ISBN, i.ISSN, i.Title} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// ItemFromMetadata builds pricing inputs for a scanned code. meta may be nil.
func ItemFromMetadata(code barcode.Code, meta *product.ItemMetadata) Item {
	item := Item{}
	if code.Kind == barcode.KindISBN13 {
		item.ISBN = code.Digits
	}
	if meta == nil {
		if code.IsMagazine() {
			item.Type = product.TypeMagazine
		}
		return item
	}

	item.Title = meta.Title
	item.Type = meta.Type
	item.Categories = meta.Categories
	item.ListPrice = meta.ListPrice
	item.ISSN = meta.ISSN
	return item
}
