package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/lepinkainen/shelfscan/internal/cache"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/lepinkainen/shelfscan/internal/errors"
	"github.com/shopspring/decimal"
)

const (
	googleBooksBaseURL  = "https://www.googleapis.com/books/v1"
	googleBooksPriority = 2
)

// GoogleBooksEnricher implements the product.Enricher interface for Google Books API.
type GoogleBooksEnricher struct {
	opts   Options
	apiKey string
}

// Compile-time check that GoogleBooksEnricher implements product.Enricher.
var _ product.Enricher = (*GoogleBooksEnricher)(nil)

// NewGoogleBooksEnricher creates a new Google Books enricher. The API key is
// optional.
func NewGoogleBooksEnricher(apiKey string, opts Options) *GoogleBooksEnricher {
	return &GoogleBooksEnricher{
		opts:   opts.withDefaults("GoogleBooks", googleBooksBaseURL),
		apiKey: apiKey,
	}
}

// Name returns the human-readable name of this enricher.
func (e *GoogleBooksEnricher) Name() string {
	return "Google Books"
}

// Priority returns the priority for merging data (lower = higher precedence).
func (e *GoogleBooksEnricher) Priority() int {
	return googleBooksPriority
}

// Supports reports whether Google Books can resolve codes of the given kind.
func (e *GoogleBooksEnricher) Supports(kind barcode.Kind) bool {
	return kind == barcode.KindISBN13
}

// Ping tests the connection to Google Books API.
func (e *GoogleBooksEnricher) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.volumesURL("9780140447934")+"&maxResults=1", nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}

	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("google books ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google books returned status %d", resp.StatusCode)
	}

	return nil
}

// Enrich fetches book data from Google Books API by ISBN-13.
func (e *GoogleBooksEnricher) Enrich(ctx context.Context, code barcode.Code) (*product.ItemMetadata, error) {
	if !e.Supports(code.Kind) || code.Digits == "" {
		return nil, product.ErrInvalidCode
	}
	isbn := code.Digits

	cached, _, err := cache.GetOrFetchWithTTL(e.opts.Cache, cache.GoogleBooksTable, isbn, func() (*cachedResult, error) {
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

// googleBooksResponse matches the Google Books API response structure.
type googleBooksResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title         string   `json:"title"`
			Subtitle      string   `json:"subtitle"`
			Authors       []string `json:"authors"`
			Publisher     string   `json:"publisher"`
			PublishedDate string   `json:"publishedDate"`
			Description   string   `json:"description"`
			Categories    []string `json:"categories"`
			ImageLinks    struct {
				Thumbnail      string `json:"thumbnail"`
				SmallThumbnail string `json:"smallThumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
		SaleInfo struct {
			ListPrice *struct {
				Amount       decimal.Decimal `json:"amount"`
				CurrencyCode string          `json:"currencyCode"`
			} `json:"listPrice"`
		} `json:"saleInfo"`
	} `json:"items"`
}

func (e *GoogleBooksEnricher) volumesURL(isbn string) string {
	u := fmt.Sprintf("%s/volumes?q=isbn:%s", e.opts.BaseURL, url.QueryEscape(isbn))
	if e.apiKey != "" {
		u += "&key=" + url.QueryEscape(e.apiKey)
	}
	return u
}

func (e *GoogleBooksEnricher) fetchFromAPI(ctx context.Context, isbn string) (*cachedResult, error) {
	if err := e.opts.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.volumesURL(isbn), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.RateLimitFromResponse("Google Books", resp)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result googleBooksResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if result.TotalItems == 0 || len(result.Items) == 0 {
		// Book not found
		return &cachedResult{NotFound: true}, nil
	}

	// Use first item (best match)
	item := result.Items[0]
	vol := item.VolumeInfo

	data := &product.ItemMetadata{
		Title:       joinTitle(vol.Title, vol.Subtitle),
		Authors:     vol.Authors,
		Publisher:   vol.Publisher,
		Year:        product.ParseYear(vol.PublishedDate),
		Description: vol.Description,
		Categories:  vol.Categories,
		Type:        product.TypeBook,
	}

	// Prefer larger thumbnail
	coverURL := vol.ImageLinks.Thumbnail
	if coverURL == "" {
		coverURL = vol.ImageLinks.SmallThumbnail
	}
	if coverURL != "" {
		// Remove zoom parameter for higher quality
		data.CoverURL = strings.Replace(coverURL, "zoom=1", "zoom=0", 1)
	}

	if lp := item.SaleInfo.ListPrice; lp != nil && lp.Amount.IsPositive() {
		price := lp.Amount
		data.ListPrice = &price
	}

	return &cachedResult{Data: data}, nil
}
