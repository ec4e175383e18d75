package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/lepinkainen/shelfscan/internal/cache"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/lepinkainen/shelfscan/internal/errors"
	"github.com/shopspring/decimal"
)

const (
	isbndbBaseURL  = "https://api2.isbndb.com"
	isbndbPriority = 0 // Highest priority - most comprehensive data
)

// ISBNdbEnricher implements the product.Enricher interface for ISBNdb API.
type ISBNdbEnricher struct {
	opts   Options
	apiKey string
}

// Compile-time check that ISBNdbEnricher implements product.Enricher.
var _ product.Enricher = (*ISBNdbEnricher)(nil)

// NewISBNdbEnricher creates a new ISBNdb enricher. Without an API key the
// enricher skips every lookup.
func NewISBNdbEnricher(apiKey string, opts Options) *ISBNdbEnricher {
	return &ISBNdbEnricher{
		opts:   opts.withDefaults("ISBNdb", isbndbBaseURL),
		apiKey: apiKey,
	}
}

// Name returns the human-readable name of this enricher.
func (e *ISBNdbEnricher) Name() string {
	return "ISBNdb"
}

// Priority returns the priority for merging data (lower = higher precedence).
func (e *ISBNdbEnricher) Priority() int {
	return isbndbPriority
}

// Supports reports whether ISBNdb can resolve codes of the given kind.
func (e *ISBNdbEnricher) Supports(kind barcode.Kind) bool {
	return kind == barcode.KindISBN13
}

// Ping tests the connection to ISBNdb API.
func (e *ISBNdbEnricher) Ping(ctx context.Context) error {
	if e.apiKey == "" {
		return fmt.Errorf("ISBNdb API key not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.opts.BaseURL+"/book/9780140447934", nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}
	req.Header.Set("Authorization", e.apiKey)

	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ISBNdb ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("ISBNdb API key invalid")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("ISBNdb returned status %d", resp.StatusCode)
	}

	return nil
}

// Enrich fetches book data from ISBNdb API by ISBN-13.
func (e *ISBNdbEnricher) Enrich(ctx context.Context, code barcode.Code) (*product.ItemMetadata, error) {
	if !e.Supports(code.Kind) || code.Digits == "" {
		return nil, product.ErrInvalidCode
	}
	if e.apiKey == "" {
		// No API key - skip this enricher silently
		return nil, nil
	}
	isbn := code.Digits

	cached, _, err := cache.GetOrFetchWithTTL(e.opts.Cache, cache.ISBNdbTable, isbn, func() (*cachedResult, error) {
		return e.fetchFromAPI(ctx, isbn)
	}, cache.SelectNegativeCacheTTL(func(r *cachedResult) bool {
		return r.NotFound
	}))
	if err != nil {
		return nil, err
	}

	if cached.NotFound {
		return nil, nil // Not found allows other enrichers to try
	}

	return cached.Data, nil
}

// isbndbBookResponse matches the ISBNdb API response structure.
type isbndbBookResponse struct {
	Book struct {
		Title         string          `json:"title"`
		TitleLong     string          `json:"title_long"`
		ISBN          string          `json:"isbn"`
		ISBN13        string          `json:"isbn13"`
		Publisher     string          `json:"publisher"`
		DatePublished string          `json:"date_published"`
		Overview      string          `json:"overview"`
		Synopsis      string          `json:"synopsis"`
		Image         string          `json:"image"`
		ImageOriginal string          `json:"image_original"`
		MSRP          json.RawMessage `json:"msrp"`
		Authors       []string        `json:"authors"`
		Subjects      []string        `json:"subjects"`
	} `json:"book"`
}

func (e *ISBNdbEnricher) fetchFromAPI(ctx context.Context, isbn string) (*cachedResult, error) {
	if err := e.opts.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/book/%s", e.opts.BaseURL, isbn), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", e.apiKey)

	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return &cachedResult{NotFound: true}, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("ISBNdb API key invalid or expired")
	case http.StatusTooManyRequests:
		return nil, errors.RateLimitFromResponse("ISBNdb", resp)
	default:
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result isbndbBookResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	b := result.Book
	if b.Title == "" && b.ISBN == "" && b.ISBN13 == "" {
		return &cachedResult{NotFound: true}, nil
	}

	data := &product.ItemMetadata{
		Title:     b.Title,
		Authors:   b.Authors,
		Publisher: b.Publisher,
		Year:      product.ParseYear(b.DatePublished),
		CoverURL:  b.ImageOriginal,
		Type:      product.TypeBook,
		ListPrice: parseMSRP(b.MSRP),
	}
	if data.Title == "" {
		data.Title = b.TitleLong
	}
	if data.CoverURL == "" {
		data.CoverURL = b.Image
	}

	// Use synopsis for description if available, otherwise use overview
	if b.Synopsis != "" {
		data.Description = b.Synopsis
	} else {
		data.Description = b.Overview
	}

	// Filter out generic "Subjects" entry
	for _, s := range b.Subjects {
		if s != "" && s != "Subjects" {
			data.Categories = append(data.Categories, s)
		}
	}

	return &cachedResult{Data: data}, nil
}

// parseMSRP accepts the price as a JSON number or string. Zero, empty and
// malformed values yield nil.
func parseMSRP(raw json.RawMessage) *decimal.Decimal {
	s := strings.TrimSpace(string(bytes.Trim(raw, `"`)))
	if s == "" || s == "null" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return nil
	}
	return &d
}
