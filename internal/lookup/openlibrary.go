package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/lepinkainen/shelfscan/internal/cache"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/lepinkainen/shelfscan/internal/errors"
)

const (
	openLibraryBaseURL  = "https://openlibrary.org"
	openLibraryPriority = 1
)

// OpenLibraryEnricher implements the product.Enricher interface for OpenLibrary.
type OpenLibraryEnricher struct {
	opts Options
}

// Compile-time check that OpenLibraryEnricher implements product.Enricher.
var _ product.Enricher = (*OpenLibraryEnricher)(nil)

// NewOpenLibraryEnricher creates a new OpenLibrary enricher.
func NewOpenLibraryEnricher(opts Options) *OpenLibraryEnricher {
	return &OpenLibraryEnricher{opts: opts.withDefaults("OpenLibrary", openLibraryBaseURL)}
}

// Name returns the human-readable name of this enricher.
func (e *OpenLibraryEnricher) Name() string {
	return "OpenLibrary"
}

// Priority returns the priority for merging data (lower = higher precedence).
func (e *OpenLibraryEnricher) Priority() int {
	return openLibraryPriority
}

// Supports reports whether OpenLibrary can resolve codes of the given kind.
func (e *OpenLibraryEnricher) Supports(kind barcode.Kind) bool {
	return kind == barcode.KindISBN13
}

// Ping tests the connection to OpenLibrary.
func (e *OpenLibraryEnricher) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.opts.BaseURL, nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}

	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("OpenLibrary ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OpenLibrary returned status %d", resp.StatusCode)
	}

	return nil
}

// Enrich fetches book data from OpenLibrary by ISBN-13.
func (e *OpenLibraryEnricher) Enrich(ctx context.Context, code barcode.Code) (*product.ItemMetadata, error) {
	if !e.Supports(code.Kind) || code.Digits == "" {
		return nil, product.ErrInvalidCode
	}
	isbn := code.Digits

	cached, _, err := cache.GetOrFetchWithTTL(e.opts.Cache, cache.OpenLibraryTable, isbn, func() (*cachedResult, error) {
		return e.fetchFromAPI(ctx, isbn)
	}, cache.SelectNegativeCacheTTL(func(r *cachedResult) bool {
		return r.NotFound
	}))
	if err != nil {
		return nil, err
	}

	if cached.NotFound {
		return nil, nil // Not found is not an error, allows other enrichers to try
	}

	return cached.Data, nil
}

// cachedResult wraps ItemMetadata with metadata for caching.
type cachedResult struct {
	Data     *product.ItemMetadata `json:"data"`
	NotFound bool                  `json:"not_found"`
}

// openLibraryBookResponse matches the API response structure.
type openLibraryBookResponse struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description any    `json:"description"`
	Publishers  []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Cover struct {
		Large  string `json:"large"`
		Medium string `json:"medium"`
	} `json:"cover"`
	Subjects    []any  `json:"subjects"`
	PublishDate string `json:"publish_date"`
}

// openLibraryEditionResponse matches the edition API response.
type openLibraryEditionResponse struct {
	Publishers  []string `json:"publishers"`
	Subjects    []string `json:"subjects"`
	PublishDate string   `json:"publish_date"`
}

func (e *OpenLibraryEnricher) fetchFromAPI(ctx context.Context, isbn string) (*cachedResult, error) {
	if err := e.opts.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/books?bibkeys=ISBN:%s&format=json&jscmd=data", e.opts.BaseURL, isbn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.RateLimitFromResponse("OpenLibrary", resp)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result map[string]openLibraryBookResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	olBook, ok := result["ISBN:"+isbn]
	if !ok || olBook.Title == "" {
		// Book not found - cache this result with shorter TTL
		return &cachedResult{NotFound: true}, nil
	}

	data := &product.ItemMetadata{
		Title:       joinTitle(olBook.Title, olBook.Subtitle),
		Description: extractDescription(olBook.Description),
		Type:        product.TypeBook,
		CoverURL:    olBook.Cover.Large,
		Categories:  extractStringSlice(olBook.Subjects),
		Year:        product.ParseYear(olBook.PublishDate),
	}
	if data.CoverURL == "" {
		data.CoverURL = olBook.Cover.Medium
	}
	if len(olBook.Publishers) > 0 {
		data.Publisher = olBook.Publishers[0].Name
	}
	for _, author := range olBook.Authors {
		if author.Name != "" {
			data.Authors = append(data.Authors, author.Name)
		}
	}

	// Fill gaps from the edition record
	if data.Publisher == "" || data.Year == 0 || len(data.Categories) == 0 {
		edition, err := e.fetchEditionData(ctx, isbn)
		if err == nil && edition != nil {
			if data.Publisher == "" && len(edition.Publishers) > 0 {
				data.Publisher = edition.Publishers[0]
			}
			if data.Year == 0 {
				data.Year = product.ParseYear(edition.PublishDate)
			}
			if len(data.Categories) == 0 && len(edition.Subjects) > 0 {
				data.Categories = edition.Subjects
			}
		}
	}

	return &cachedResult{Data: data}, nil
}

func (e *OpenLibraryEnricher) fetchEditionData(ctx context.Context, isbn string) (*openLibraryEditionResponse, error) {
	if err := e.opts.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/isbn/%s.json", e.opts.BaseURL, isbn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("edition request returned status %d", resp.StatusCode)
	}

	var edition openLibraryEditionResponse
	if err := json.NewDecoder(resp.Body).Decode(&edition); err != nil {
		return nil, err
	}

	return &edition, nil
}

func joinTitle(title, subtitle string) string {
	title = strings.TrimSpace(title)
	subtitle = strings.TrimSpace(subtitle)
	if subtitle == "" {
		return title
	}
	return title + ": " + subtitle
}

// extractDescription handles the various forms description can take.
func extractDescription(desc any) string {
	switch v := desc.(type) {
	case string:
		return v
	case map[string]any:
		if val, ok := v["value"].(string); ok {
			return val
		}
	}
	return ""
}

// extractStringSlice converts []any to []string, handling various element types.
func extractStringSlice(items []any) []string {
	if len(items) == 0 {
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			result = append(result, v)
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				result = append(result, name)
			}
		}
	}
	return result
}
