package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// DefaultCacheTTL is the default time-to-live for cached lookups (30 days)
	DefaultCacheTTL = 720 * time.Hour
	// NegativeCacheTTL is the TTL for "not found" responses (7 days)
	NegativeCacheTTL = 168 * time.Hour
)

// FetchFunc represents a function that fetches data from an external source
type FetchFunc[T any] func() (T, error)

// Entry is a raw cache row.
type Entry struct {
	Data     string
	CachedAt time.Time
	TTL      time.Duration
}

// Expired reports whether the entry is older than its TTL at the given time.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.CachedAt) >= e.TTL
}

// CacheDB manages the SQLite database connection for caching
type CacheDB struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	defaultTTL time.Duration
	now        func() time.Time
}

// NewCacheDB opens the cache database at dbPath and creates every cache table.
func NewCacheDB(dbPath string) (*CacheDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}

	c := &CacheDB{
		db:         db,
		path:       dbPath,
		defaultTTL: DefaultCacheTTL,
		now:        time.Now,
	}

	for _, schema := range AllCacheSchemas() {
		if err := c.CreateTable(schema); err != nil {
			closeErr := db.Close()
			return nil, errors.Join(fmt.Errorf("failed to create cache table: %w", err), closeErr)
		}
	}

	return c, nil
}

// SetDefaultTTL changes the TTL used when Set is called with a zero TTL.
func (c *CacheDB) SetDefaultTTL(ttl time.Duration) {
	if ttl > 0 {
		c.defaultTTL = ttl
	}
}

// SetClock replaces the time source. Intended for tests.
func (c *CacheDB) SetClock(now func() time.Time) {
	c.now = now
}

// Path returns the database file path.
func (c *CacheDB) Path() string {
	return c.path
}

// CreateTable creates a table using the provided schema
func (c *CacheDB) CreateTable(schema string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Close closes the database connection
func (c *CacheDB) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// InvalidateSource deletes all entries from the specified cache table
// tableName must be one of the valid cache table names (e.g., "isbndb_cache", "quote_cache")
// Returns the number of rows deleted
func (c *CacheDB) InvalidateSource(tableName string) (int64, error) {
	// Validate table name to prevent SQL injection
	if err := validateTableName(tableName); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.Exec(fmt.Sprintf("DELETE FROM %s", tableName))
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	slog.Debug("Cache table cleared", "table", tableName, "rows_deleted", rowsAffected)
	return rowsAffected, nil
}

// validateTableName checks if the table name is in the whitelist
// to prevent SQL injection attacks
func validateTableName(tableName string) error {
	if !ValidCacheTableNames[tableName] {
		return fmt.Errorf("invalid cache table name: %s", tableName)
	}
	return nil
}

// GetOrFetch retrieves data from cache or fetches it using the provided function.
// T is the type of data being cached, stored as JSON with the default TTL.
// A nil cache fetches directly.
func GetOrFetch[T any](c *CacheDB, tableName, cacheKey string, fetchFunc FetchFunc[T]) (T, bool, error) {
	return GetOrFetchWithTTL(c, tableName, cacheKey, fetchFunc, nil)
}

// GetOrFetchWithTTL retrieves data from cache or fetches it using the provided function, with a custom TTL.
// This is useful for negative caching where you want to cache "not found" responses with a shorter TTL.
// The ttlSelector function is called after fetching to determine which TTL to use for caching;
// the TTL is stored with the entry so later lookups honour it.
func GetOrFetchWithTTL[T any](c *CacheDB, tableName, cacheKey string, fetchFunc FetchFunc[T], ttlSelector func(T) time.Duration) (T, bool, error) {
	var zero T

	if c == nil {
		data, err := fetchFunc()
		return data, false, err
	}

	// Check cache first
	cached, fromCache, err := c.Get(tableName, cacheKey)
	if err != nil {
		slog.Warn("Cache lookup failed, fetching directly", "table", tableName, "key", cacheKey, "error", err)
	}
	if err == nil && fromCache {
		var result T
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			slog.Debug("Cache hit", "table", tableName, "key", cacheKey)
			return result, true, nil
		}
		slog.Warn("Failed to unmarshal cached data, will refetch", "table", tableName, "key", cacheKey, "error", err)
	}

	// Fetch from external source if not in cache
	slog.Debug("Cache miss, fetching data", "table", tableName, "key", cacheKey)
	data, err := fetchFunc()
	if err != nil {
		return zero, false, fmt.Errorf("failed to fetch data: %w", err)
	}

	selectedTTL := c.defaultTTL
	if ttlSelector != nil {
		selectedTTL = ttlSelector(data)
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Failed to marshal data for caching", "table", tableName, "key", cacheKey, "error", err)
		return data, false, nil
	}
	if err := c.Set(tableName, cacheKey, string(jsonData), selectedTTL); err != nil {
		// Log error but don't fail - caching failure shouldn't stop the process
		slog.Warn("Failed to cache data", "table", tableName, "key", cacheKey, "error", err)
	} else {
		slog.Debug("Data cached successfully", "table", tableName, "key", cacheKey, "ttl", selectedTTL)
	}

	return data, false, nil
}

// SelectNegativeCacheTTL returns a standard TTL selector for negative caching.
// Use this when you want to cache "not found" responses with a shorter TTL (7 days) than
// successful responses (30 days).
//
// The isNotFound function should return true if the result represents a "not found" response.
//
// Example:
//
//	cache.GetOrFetchWithTTL(db, "openlibrary_cache", isbn,
//	    func() (*cachedResult, error) { return fetchFromAPI(isbn) },
//	    cache.SelectNegativeCacheTTL(func(r *cachedResult) bool {
//	        return r.NotFound
//	    }))
func SelectNegativeCacheTTL[T any](isNotFound func(T) bool) func(T) time.Duration {
	return func(result T) time.Duration {
		if isNotFound(result) {
			return NegativeCacheTTL
		}
		return DefaultCacheTTL
	}
}

// Lookup returns the raw entry for key, expired or not.
func (c *CacheDB) Lookup(tableName, key string) (Entry, bool, error) {
	if err := validateTableName(tableName); err != nil {
		return Entry{}, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	query := fmt.Sprintf(`
		SELECT data, cached_at, ttl_seconds
		FROM %s
		WHERE cache_key = ?
	`, tableName)

	var (
		data       string
		cachedAtNs int64
		ttlSeconds int64
	)
	err := c.db.QueryRow(query, key).Scan(&data, &cachedAtNs, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to query cache: %w", err)
	}

	return Entry{
		Data:     data,
		CachedAt: time.Unix(0, cachedAtNs).UTC(),
		TTL:      time.Duration(ttlSeconds) * time.Second,
	}, true, nil
}

// Get retrieves a cached value from the specified table
// Returns the cached data, whether a live entry was found, and any error
func (c *CacheDB) Get(tableName, key string) (string, bool, error) {
	entry, ok, err := c.Lookup(tableName, key)
	if err != nil || !ok {
		return "", false, err
	}

	if entry.Expired(c.now().UTC()) {
		slog.Debug("Cache expired", "table", tableName, "key", key, "cached_at", entry.CachedAt)
		return "", false, nil
	}

	return entry.Data, true, nil
}

// Set stores a value in the cache. A zero ttl uses the default TTL.
// Concurrent writers to the same key are resolved last-write-wins.
func (c *CacheDB) Set(tableName, key, data string, ttl time.Duration) error {
	return c.SetAt(tableName, key, data, c.now(), ttl)
}

// SetAt stores a value with an explicit creation time.
func (c *CacheDB) SetAt(tableName, key, data string, cachedAt time.Time, ttl time.Duration) error {
	if err := validateTableName(tableName); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (cache_key, data, cached_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
	`, tableName)

	_, err := c.db.Exec(query, key, data, cachedAt.UTC().UnixNano(), int64(ttl/time.Second))
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

// ClearExpired removes expired cache entries from the specified table
func (c *CacheDB) ClearExpired(tableName string) (int64, error) {
	if err := validateTableName(tableName); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE cached_at + ttl_seconds * 1000000000 <= ?
	`, tableName)

	result, err := c.db.Exec(query, c.now().UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired cache: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		slog.Info("Cleared expired cache entries", "table", tableName, "count", rows)
	}

	return rows, nil
}

// CacheExists checks if a cache entry exists for the given key
func (c *CacheDB) CacheExists(tableName, key string) bool {
	if err := validateTableName(tableName); err != nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	query := fmt.Sprintf(`
		SELECT 1 FROM %s WHERE cache_key = ? LIMIT 1
	`, tableName)

	var exists int
	err := c.db.QueryRow(query, key).Scan(&exists)
	return err == nil
}
