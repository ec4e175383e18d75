package quotecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lepinkainen/shelfscan/internal/cache"
)

// SQLiteBackend stores entries in the quote_cache table of the shared cache
// database.
type SQLiteBackend struct {
	db *cache.CacheDB
}

// NewSQLiteBackend wraps an open cache database.
func NewSQLiteBackend(db *cache.CacheDB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

func (s *SQLiteBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	raw, ok, err := s.db.Lookup(cache.QuoteTable, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}

	var p Payload
	if err := json.Unmarshal([]byte(raw.Data), &p); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached quote: %w", err)
	}
	return Entry{Payload: p, CreatedAt: raw.CachedAt}, true, nil
}

func (s *SQLiteBackend) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	return s.db.SetAt(cache.QuoteTable, key, string(data), entry.CreatedAt, ttl)
}
