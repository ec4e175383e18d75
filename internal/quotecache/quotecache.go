// Package quotecache memoizes market pricing results per normalized query so
// repeated scans of the same title do not hit the marketplace again.
package quotecache

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lepinkainen/shelfscan/internal/pricing/stats"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a quote stays valid.
const DefaultTTL = 6 * time.Hour

// Payload is the cached result of a market search.
type Payload struct {
	Price        decimal.Decimal `json:"price"`
	Summary      stats.Summary   `json:"summary"`
	ListingCount int             `json:"listing_count"`
}

// Entry is a stored payload with its creation time.
type Entry struct {
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Backend stores entries. Writes to the same key are last-write-wins. The ttl
// passed to Set is a retention hint; validity is decided by Cache.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
}

// FetchFunc produces a fresh payload on a cache miss.
type FetchFunc func(ctx context.Context) (Payload, error)

// Cache is a TTL cache in front of a Backend. Concurrent misses for the same
// key share one fetch. A nil *Cache fetches directly.
type Cache struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the entry lifetime. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Cache over backend. A nil backend selects a fresh in-memory
// backend.
func New(backend Backend, opts ...Option) *Cache {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	c := &Cache{
		backend: backend,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// GetOrFetch returns the live entry for key, or calls fetch and stores its
// result. The boolean reports whether the payload came from the cache. Fetch
// errors are returned and nothing is stored. Backend failures are logged and
// degrade to a direct fetch.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (Payload, bool, error) {
	if c == nil {
		p, err := fetch(ctx)
		return p, false, err
	}

	if p, ok := c.lookup(ctx, key); ok {
		return p, true, nil
	}

	// The shared fetch must not depend on whichever caller started it; each
	// caller still stops waiting when its own ctx is done.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// Another caller may have stored the key while we waited.
		if p, ok := c.lookup(fetchCtx, key); ok {
			return p, nil
		}

		p, err := fetch(fetchCtx)
		if err != nil {
			return Payload{}, err
		}

		entry := Entry{Payload: p, CreatedAt: c.now().UTC()}
		if err := c.backend.Set(fetchCtx, key, entry, c.ttl); err != nil {
			slog.Warn("Quote cache write failed", "key", key, "error", err)
		}
		return p, nil
	})

	select {
	case <-ctx.Done():
		return Payload{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Payload{}, false, res.Err
		}
		if res.Shared {
			slog.Debug("Quote fetch shared", "key", key)
		}
		return res.Val.(Payload), false, nil
	}
}

func (c *Cache) lookup(ctx context.Context, key string) (Payload, bool) {
	entry, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		slog.Warn("Quote cache read failed, fetching directly", "key", key, "error", err)
		return Payload{}, false
	}
	if !ok {
		return Payload{}, false
	}
	if c.now().Sub(entry.CreatedAt) >= c.ttl {
		slog.Debug("Quote cache entry expired", "key", key, "created_at", entry.CreatedAt)
		return Payload{}, false
	}
	slog.Debug("Quote cache hit", "key", key)
	return entry.Payload, true
}

var (
	nonAlphanumericRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	multipleSpacesRegex  = regexp.MustCompile(`\s+`)
)

// normalizeForKey lower-cases s, strips punctuation and collapses whitespace.
func normalizeForKey(s string) string {
	result := strings.ToLower(s)
	result = nonAlphanumericRegex.ReplaceAllString(result, "")
	result = multipleSpacesRegex.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// Key builds the cache key for a query and its filters. Filters are
// lower-cased, de-duplicated and sorted, so their order does not matter.
//
//	Key("The Hobbit!", "Used", "limit=50") == "quote:the hobbit|limit=50,used"
func Key(query string, filters ...string) string {
	seen := make(map[string]bool, len(filters))
	normalized := make([]string, 0, len(filters))
	for _, f := range filters {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		normalized = append(normalized, f)
	}
	sort.Strings(normalized)

	return fmt.Sprintf("quote:%s|%s", normalizeForKey(query), strings.Join(normalized, ","))
}
