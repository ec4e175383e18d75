// Package lookup resolves canonical product codes to catalog metadata by
// querying external catalog sources and merging what they return.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/lepinkainen/shelfscan/internal/cache"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/lepinkainen/shelfscan/internal/ratelimit"
)

// Client resolves a canonical code to metadata.
// A nil result with a nil error means the code is unknown to every source.
type Client interface {
	Lookup(ctx context.Context, code barcode.Code) (*product.ItemMetadata, error)
}

// Options configure an HTTP backed enricher. Zero values select the
// production defaults.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// Cache stores responses, including negative ones. Nil disables caching.
	Cache *cache.CacheDB
	// Limiter paces outgoing requests. Nil selects 1 request per second.
	Limiter *ratelimit.Limiter
}

func (o Options) withDefaults(name, baseURL string) Options {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if o.Limiter == nil {
		o.Limiter = ratelimit.New(name, 1)
	}
	return o
}

// Chain queries every enricher that supports a code and merges the results by
// priority.
type Chain struct {
	enrichers []product.Enricher
	merger    product.Merger
}

// Compile-time check that Chain implements Client.
var _ Client = (*Chain)(nil)

// NewChain creates a Chain over the given enrichers.
func NewChain(enrichers ...product.Enricher) *Chain {
	return &Chain{
		enrichers: enrichers,
		merger:    product.NewPriorityMerger(),
	}
}

// Enrichers returns the configured enrichers.
func (c *Chain) Enrichers() []product.Enricher {
	return c.enrichers
}

// Lookup resolves code against every supporting enricher. Individual source
// failures are logged and skipped; an error is returned only when every
// attempted source failed.
func (c *Chain) Lookup(ctx context.Context, code barcode.Code) (*product.ItemMetadata, error) {
	if !code.Valid() {
		return nil, product.ErrInvalidCode
	}

	var (
		results   []product.EnricherResult
		errs      []error
		attempted int
	)

	for _, e := range c.enrichers {
		if !e.Supports(code.Kind) {
			continue
		}
		attempted++

		data, err := e.Enrich(ctx, code)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("Lookup source failed", "source", e.Name(), "code", code.Digits, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		if data == nil {
			slog.Debug("Lookup source has no match", "source", e.Name(), "code", code.Digits)
			continue
		}
		results = append(results, product.EnricherResult{
			Data:     data,
			Source:   e.Name(),
			Priority: e.Priority(),
		})
	}

	if len(results) == 0 {
		if attempted > 0 && len(errs) == attempted {
			return nil, errors.Join(errs...)
		}
		return nil, nil
	}

	merged := c.merger.Merge(results)
	if merged == nil {
		return nil, nil
	}
	if merged.Type == "" {
		merged.Type = defaultType(code.Kind)
	}
	if merged.Year == 0 && merged.InferredYear > 0 && merged.Type != product.TypeMagazine {
		merged.Year = merged.InferredYear
	}

	slog.Debug("Lookup resolved", "code", code.Digits, "title", merged.Title, "sources", merged.Source)
	return merged, nil
}

func defaultType(kind barcode.Kind) product.ItemType {
	switch kind {
	case barcode.KindISBN13:
		return product.TypeBook
	case barcode.KindMagazine:
		return product.TypeMagazine
	default:
		return product.TypeProduct
	}
}
