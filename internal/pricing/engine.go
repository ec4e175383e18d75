// Package pricing computes suggested sale prices from market listings, list
// prices and configured values.
package pricing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/shelfscan/internal/errors"
	"github.com/lepinkainen/shelfscan/internal/market"
	"github.com/lepinkainen/shelfscan/internal/pricing/stats"
	"github.com/lepinkainen/shelfscan/internal/quotecache"
	"github.com/lepinkainen/shelfscan/internal/ratelimit"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

// Quote sources that are not strategy tags.
const (
	SourceDefault   = "default"
	SourceHeuristic = "heuristic"
)

// Quote is a computed price. It is produced per request and never stored as a
// whole; only Price is written back to an inventory record.
type Quote struct {
	Index     int             `json:"index"`
	Price     decimal.Decimal `json:"price"`
	Source    string          `json:"source"`
	Analytics *stats.Summary  `json:"analytics,omitempty"`
	Notes     []string        `json:"notes,omitempty"`

	// Err holds the market failure behind an "unavailable" note, if any. A
	// *errors.MarketAuthError here means credentials need refreshing.
	Err error `json:"-"`
}

func (q *Quote) note(format string, args ...any) {
	q.Notes = append(q.Notes, fmt.Sprintf(format, args...))
}

// Engine prices items. The zero value is not usable; call NewEngine.
type Engine struct {
	source  market.Source
	cache   *quotecache.Cache
	limiter *ratelimit.Limiter
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithQuoteCache memoizes market searches.
func WithQuoteCache(c *quotecache.Cache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithLimiter throttles market searches.
func WithLimiter(l *ratelimit.Limiter) EngineOption {
	return func(e *Engine) { e.limiter = l }
}

// NewEngine creates an Engine. A nil source selects heuristic pricing for
// ActiveListings.
func NewEngine(source market.Source, opts ...EngineOption) *Engine {
	e := &Engine{source: source}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type candidate struct {
	strategy Strategy
	price    decimal.Decimal
	source   string
}

// Price computes a quote. It never fails: when no strategy yields a
// candidate the configured default price is used and the reason is noted.
func (e *Engine) Price(ctx context.Context, item Item, strategy Strategy, cfg Config) Quote {
	var q Quote

	var candidates []candidate
	if strategy == MinOf {
		for _, s := range Strategies {
			if c, ok := e.evaluate(ctx, s, item, cfg, &q, false); ok {
				candidates = append(candidates, c)
			}
		}
	} else if c, ok := e.evaluate(ctx, strategy, item, cfg, &q, true); ok {
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		fallback := cfg.fallbackPrice()
		q.note("%v: using default price %s", ErrPricingUnavailable, fallback.StringFixed(2))
		q.Price = PostProcess(fallback, cfg)
		q.Source = SourceDefault
		slog.Debug("No pricing candidate, using default", "query", item.SearchText(), "strategy", strategy, "price", q.Price)
		return q
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.price.LessThan(best.price) {
			best = c
		}
	}
	if strategy == MinOf && len(candidates) > 1 {
		q.note("min_of selected %s", best.strategy)
	}

	q.Price = PostProcess(best.price, cfg)
	q.Source = best.source
	slog.Debug("Priced item", "query", item.SearchText(), "source", q.Source, "raw", best.price, "price", q.Price)
	return q
}

// evaluate runs one strategy. Failures become notes; when composing, strategies
// that simply lack inputs are skipped silently.
func (e *Engine) evaluate(ctx context.Context, s Strategy, item Item, cfg Config, q *Quote, explicit bool) (candidate, bool) {
	var (
		c   candidate
		err error
	)
	switch s {
	case ActiveListings:
		c, err = e.activeListings(ctx, item, cfg, q)
	case CoverMultiplier:
		c, err = coverMultiplier(item, cfg)
	case Flat:
		c, err = flat(cfg)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownStrategy, s)
	}
	if err == nil {
		c.strategy = s
		return c, true
	}

	switch {
	case isInsufficientInputs(err):
		if explicit {
			q.note("%s: %v", s, err)
		}
	case isNoResults(err):
		q.note("%s: no results for %q", s, item.SearchText())
	case errors.IsMarketAuthError(err):
		q.note("%s: unavailable (market authorization failed)", s)
		q.Err = err
		slog.Warn("Market authorization failed", "query", item.SearchText(), "error", err)
	case errors.IsRateLimitError(err):
		q.note("%s: unavailable (rate limited)", s)
		q.Err = err
		slog.Warn("Market rate limited", "query", item.SearchText(), "error", err)
	case isCanceled(err):
		q.note("%s: unavailable (%v)", s, err)
		q.Err = err
	default:
		q.note("%s: unavailable: %v", s, err)
		q.Err = err
		slog.Warn("Market search failed", "query", item.SearchText(), "error", err)
	}
	return candidate{}, false
}

func (e *Engine) activeListings(ctx context.Context, item Item, cfg Config, q *Quote) (candidate, error) {
	if e.source == nil {
		return candidate{price: Heuristic(item), source: SourceHeuristic}, nil
	}

	text := item.SearchText()
	if text == "" {
		return candidate{}, fmt.Errorf("%w: no ISBN, ISSN or title to search", ErrInsufficientInputs)
	}

	limit := cfg.EffectiveLimit()
	key := quotecache.Key(text,
		"condition="+cfg.Condition,
		fmt.Sprintf("limit=%d", limit),
		fmt.Sprintf("shipping=%t", cfg.IncludeShipping),
	)

	payload, cached, err := e.cache.GetOrFetch(ctx, key, func(ctx context.Context) (quotecache.Payload, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return quotecache.Payload{}, err
		}
		listings, err := e.source.SearchActive(ctx, market.Query{
			Text:      text,
			Condition: cfg.Condition,
			Limit:     limit,
		})
		if err != nil {
			return quotecache.Payload{}, err
		}
		return SummarizeListings(listings, cfg.IncludeShipping)
	})
	if err != nil {
		return candidate{}, err
	}
	if cached {
		q.note("%s: cached quote", ActiveListings)
	}

	summary := payload.Summary
	q.Analytics = &summary
	return candidate{price: payload.Price, source: ActiveListings.String()}, nil
}

// SummarizeListings computes the market payload for listings: the summary over
// effective prices and the 40th percentile as the price. Listings without a
// positive price are ignored; if none remain ErrNoResults is returned.
func SummarizeListings(listings []market.Listing, includeShipping bool) (quotecache.Payload, error) {
	prices := make([]decimal.Decimal, 0, len(listings))
	for _, l := range listings {
		if p := l.EffectivePrice(includeShipping); p.IsPositive() {
			prices = append(prices, p)
		}
	}
	if len(prices) == 0 {
		return quotecache.Payload{}, ErrNoResults
	}

	sorted := stats.Sorted(prices)
	return quotecache.Payload{
		Price:        stats.Quantile(sorted, Percentile),
		Summary:      stats.Summarize(sorted),
		ListingCount: len(sorted),
	}, nil
}

func coverMultiplier(item Item, cfg Config) (candidate, error) {
	if item.ListPrice == nil || !item.ListPrice.IsPositive() {
		return candidate{}, fmt.Errorf("%w: list price not known", ErrInsufficientInputs)
	}
	if cfg.Multiplier == nil || !cfg.Multiplier.IsPositive() {
		return candidate{}, fmt.Errorf("%w: multiplier not set", ErrInsufficientInputs)
	}
	return candidate{price: item.ListPrice.Mul(*cfg.Multiplier), source: CoverMultiplier.String()}, nil
}

func flat(cfg Config) (candidate, error) {
	if cfg.FlatPrice == nil {
		return candidate{}, fmt.Errorf("%w: flat price not set", ErrInsufficientInputs)
	}
	return candidate{price: *cfg.FlatPrice, source: Flat.String()}, nil
}

// PriceAll prices items with at most cfg.Concurrency in flight, starting one
// item per cfg.Delay when set. Quote i belongs to items[i] and carries Index i.
// A failing item never affects its siblings.
func (e *Engine) PriceAll(ctx context.Context, items []Item, strategy Strategy, cfg Config) []Quote {
	quotes := make([]Quote, len(items))
	pacer := ratelimit.NewEvery("pricing", cfg.Delay)

	p := pool.New().WithMaxGoroutines(cfg.concurrency())
	for i, item := range items {
		p.Go(func() {
			if err := pacer.Wait(ctx); err != nil {
				slog.Debug("Pricing pacer interrupted", "index", i, "error", err)
			}
			quote := e.Price(ctx, item, strategy, cfg)
			quote.Index = i
			quotes[i] = quote
		})
	}
	p.Wait()

	return quotes
}
