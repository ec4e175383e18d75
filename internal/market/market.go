// Package market fetches active marketplace listings used as pricing evidence.
//
// Two sources ship with the module:
//   - an HTTP source that targets a generic JSON search API
//   - a mock source that returns synthetic, deterministic data for offline use
//     and tests
package market

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Listing is one active marketplace offer.
type Listing struct {
	ID           string           `json:"id,omitempty"`
	Title        string           `json:"title,omitempty"`
	Price        decimal.Decimal  `json:"price"`
	ShippingCost *decimal.Decimal `json:"shipping_cost,omitempty"`
	Condition    string           `json:"condition,omitempty"`
	URL          string           `json:"url,omitempty"`
}

// EffectivePrice returns the listing price, plus shipping when requested and
// known.
func (l Listing) EffectivePrice(includeShipping bool) decimal.Decimal {
	if includeShipping && l.ShippingCost != nil {
		return l.Price.Add(*l.ShippingCost)
	}
	return l.Price
}

// Query describes an active listing search.
type Query struct {
	// Text is an ISBN/ISSN or a title.
	Text      string
	Condition string
	Limit     int
}

// Source searches a marketplace for active listings.
//
// Implementations return *errors.MarketAuthError when credentials are rejected
// and *errors.RateLimitError when throttled. An empty result is not an error.
type Source interface {
	SearchActive(ctx context.Context, q Query) ([]Listing, error)
}

// ErrUnknownSourceKind is returned by NewSource for an unsupported kind.
var ErrUnknownSourceKind = errors.New("unknown market source kind")

// NewSource builds a Source by kind: "mock" or "http". "none" and the empty
// string return a nil Source, which selects heuristic pricing.
func NewSource(kind string, cfg HTTPConfig) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "none":
		return nil, nil
	case "mock":
		return NewMockSource(), nil
	case "http":
		src, err := NewHTTPJSONSource(cfg)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, ErrUnknownSourceKind
	}
}
