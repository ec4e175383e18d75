package cache

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lepinkainen/shelfscan/internal/testutil"
)

type TestData struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func setupTestCache(t *testing.T) (*CacheDB, *fakeClock) {
	t.Helper()

	// Register test_cache as a valid table name for tests
	ValidCacheTableNames["test_cache"] = true
	t.Cleanup(func() {
		delete(ValidCacheTableNames, "test_cache")
	})

	env := testutil.NewTestEnv(t)
	dbPath := filepath.Join(env.RootDir(), "test_cache.db")

	cache, err := NewCacheDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create cache database: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	if err := cache.CreateTable(CacheSchema("test_cache")); err != nil {
		t.Fatalf("Failed to create test table: %v", err)
	}

	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache.SetClock(clock.Now)
	cache.SetDefaultTTL(time.Hour)

	return cache, clock
}

func TestNewCacheDB_CreatesAllTables(t *testing.T) {
	cache, _ := setupTestCache(t)

	for _, table := range []string{OpenLibraryTable, GoogleBooksTable, ISBNdbTable, QuoteTable} {
		if err := cache.Set(table, "k", `{}`, 0); err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

func TestGetOrFetch_CacheHit(t *testing.T) {
	cache, _ := setupTestCache(t)

	testKey := "test-key"
	testData := TestData{ID: 1, Name: "Test"}

	if err := cache.Set("test_cache", testKey, `{"id":1,"name":"Test"}`, 0); err != nil {
		t.Fatalf("Failed to pre-populate cache: %v", err)
	}

	fetchCalled := false
	fetchFunc := func() (TestData, error) {
		fetchCalled = true
		return TestData{}, nil
	}

	result, fromCache, err := GetOrFetch(cache, "test_cache", testKey, fetchFunc)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !fromCache {
		t.Error("Expected fromCache to be true")
	}
	if fetchCalled {
		t.Error("Expected fetch function not to be called")
	}
	if result != testData {
		t.Errorf("Expected %+v, got %+v", testData, result)
	}
}

func TestGetOrFetch_CacheMiss(t *testing.T) {
	cache, _ := setupTestCache(t)

	testKey := "test-key"
	expectedData := TestData{ID: 2, Name: "Fetched"}

	fetchCalled := 0
	fetchFunc := func() (TestData, error) {
		fetchCalled++
		return expectedData, nil
	}

	result, fromCache, err := GetOrFetch(cache, "test_cache", testKey, fetchFunc)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if fromCache {
		t.Error("Expected fromCache to be false")
	}
	if fetchCalled != 1 {
		t.Errorf("Expected fetch function to be called once, got %d", fetchCalled)
	}
	if result != expectedData {
		t.Errorf("Expected %+v, got %+v", expectedData, result)
	}

	if !cache.CacheExists("test_cache", testKey) {
		t.Error("Expected cache entry to be created")
	}

	// Second call should hit cache and avoid fetch
	result, fromCache, err = GetOrFetch(cache, "test_cache", testKey, fetchFunc)
	if err != nil {
		t.Fatalf("Expected no error on second call, got %v", err)
	}
	if !fromCache {
		t.Error("Expected second call to return from cache")
	}
	if fetchCalled != 1 {
		t.Errorf("Expected fetch not to be called again, got %d calls", fetchCalled)
	}
	if result != expectedData {
		t.Errorf("Expected %+v from cache, got %+v", expectedData, result)
	}
}

func TestGetOrFetch_NilCacheFetchesDirectly(t *testing.T) {
	calls := 0
	result, fromCache, err := GetOrFetch(nil, "test_cache", "k", func() (TestData, error) {
		calls++
		return TestData{ID: 9}, nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if fromCache || calls != 1 || result.ID != 9 {
		t.Fatalf("Unexpected result: fromCache=%v calls=%d result=%+v", fromCache, calls, result)
	}
}

func TestGetOrFetch_RespectsTTLExpiration(t *testing.T) {
	cache, clock := setupTestCache(t)

	testKey := "test-key"
	freshData := TestData{ID: 2, Name: "Fresh"}

	if err := cache.Set("test_cache", testKey, `{"id":1,"name":"stale"}`, 0); err != nil {
		t.Fatalf("Failed to seed stale cache: %v", err)
	}
	clock.Advance(2 * time.Hour)

	fetchCalled := 0
	fetchFunc := func() (TestData, error) {
		fetchCalled++
		return freshData, nil
	}

	result, fromCache, err := GetOrFetch(cache, "test_cache", testKey, fetchFunc)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if fromCache {
		t.Fatal("Expected cache miss due to TTL expiration")
	}
	if fetchCalled != 1 {
		t.Fatalf("Expected fetch to be called once, got %d", fetchCalled)
	}
	if result != freshData {
		t.Fatalf("Expected fresh data, got %+v", result)
	}

	cached, cachedHit, err := cache.Get("test_cache", testKey)
	if err != nil {
		t.Fatalf("Expected cached data to be stored, got error %v", err)
	}
	if !cachedHit {
		t.Fatal("Expected cached entry after refresh")
	}

	var cachedData TestData
	if err := json.Unmarshal([]byte(cached), &cachedData); err != nil {
		t.Fatalf("Failed to unmarshal cached data: %v", err)
	}
	if cachedData != freshData {
		t.Fatalf("Expected cached data %+v, got %+v", freshData, cachedData)
	}
}

func TestGetOrFetchWithTTL_NegativeEntriesExpireSooner(t *testing.T) {
	cache, clock := setupTestCache(t)

	type result struct {
		NotFound bool `json:"not_found"`
	}
	selector := SelectNegativeCacheTTL(func(r result) bool { return r.NotFound })

	_, _, err := GetOrFetchWithTTL(cache, "test_cache", "missing", func() (result, error) {
		return result{NotFound: true}, nil
	}, selector)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	_, _, err = GetOrFetchWithTTL(cache, "test_cache", "found", func() (result, error) {
		return result{}, nil
	}, selector)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	entry, ok, err := cache.Lookup("test_cache", "missing")
	if err != nil || !ok {
		t.Fatalf("Expected negative entry, ok=%v err=%v", ok, err)
	}
	if entry.TTL != NegativeCacheTTL {
		t.Errorf("Expected TTL %v, got %v", NegativeCacheTTL, entry.TTL)
	}

	clock.Advance(NegativeCacheTTL + time.Minute)

	if _, hit, _ := cache.Get("test_cache", "missing"); hit {
		t.Error("Expected negative entry to have expired")
	}
	if _, hit, _ := cache.Get("test_cache", "found"); !hit {
		t.Error("Expected positive entry to still be live")
	}
}

func TestGetOrFetch_FetchError(t *testing.T) {
	cache, _ := setupTestCache(t)

	fetchErr := errors.New("fetch failed")
	result, fromCache, err := GetOrFetch(cache, "test_cache", "test-key", func() (TestData, error) {
		return TestData{}, fetchErr
	})

	if !errors.Is(err, fetchErr) {
		t.Fatalf("Expected wrapped fetch error, got %v", err)
	}
	if fromCache {
		t.Error("Expected fromCache to be false")
	}
	if result != (TestData{}) {
		t.Errorf("Expected zero value, got %+v", result)
	}
	if cache.CacheExists("test_cache", "test-key") {
		t.Error("Expected failed fetch not to be cached")
	}
}

func TestGetOrFetch_CorruptEntryRefetches(t *testing.T) {
	cache, _ := setupTestCache(t)

	if err := cache.Set("test_cache", "k", `not json`, 0); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}

	result, fromCache, err := GetOrFetch(cache, "test_cache", "k", func() (TestData, error) {
		return TestData{ID: 3}, nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if fromCache || result.ID != 3 {
		t.Fatalf("Expected refetch, got fromCache=%v result=%+v", fromCache, result)
	}
}

func TestCacheDB_GetSet(t *testing.T) {
	cache, _ := setupTestCache(t)

	testData := `{"id":1,"name":"Test"}`
	if err := cache.Set("test_cache", "test-key", testData, 0); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}

	data, fromCache, err := cache.Get("test_cache", "test-key")
	if err != nil {
		t.Fatalf("Failed to get cache: %v", err)
	}
	if !fromCache {
		t.Error("Expected fromCache to be true")
	}
	if data != testData {
		t.Errorf("Expected %s, got %s", testData, data)
	}
}

func TestCacheDB_SetOverwrites(t *testing.T) {
	cache, _ := setupTestCache(t)

	_ = cache.Set("test_cache", "k", `"first"`, 0)
	_ = cache.Set("test_cache", "k", `"second"`, 0)

	data, _, err := cache.Get("test_cache", "k")
	if err != nil {
		t.Fatalf("Failed to get cache: %v", err)
	}
	if data != `"second"` {
		t.Errorf("Expected last write to win, got %s", data)
	}
}

func TestCacheDB_GetExpired(t *testing.T) {
	cache, clock := setupTestCache(t)

	if err := cache.Set("test_cache", "test-key", `{"id":1}`, 0); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}

	clock.Advance(time.Hour)

	data, fromCache, err := cache.Get("test_cache", "test-key")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if fromCache {
		t.Error("Expected entry to be expired exactly at its TTL")
	}
	if data != "" {
		t.Errorf("Expected empty string for expired cache, got %s", data)
	}

	// Lookup still returns the stale row
	entry, ok, err := cache.Lookup("test_cache", "test-key")
	if err != nil || !ok {
		t.Fatalf("Expected raw entry, ok=%v err=%v", ok, err)
	}
	if !entry.Expired(clock.Now()) {
		t.Error("Expected entry to report expired")
	}
}

func TestCacheDB_ClearExpired(t *testing.T) {
	cache, clock := setupTestCache(t)

	_ = cache.Set("test_cache", "key1", `{"id":1}`, 30*time.Minute)
	_ = cache.Set("test_cache", "key2", `{"id":2}`, 2*time.Hour)
	_ = cache.Set("test_cache", "key3", `{"id":3}`, 0)

	clock.Advance(45 * time.Minute)

	rows, err := cache.ClearExpired("test_cache")
	if err != nil {
		t.Fatalf("Failed to clear expired cache: %v", err)
	}
	if rows != 1 {
		t.Errorf("Expected 1 row cleared, got %d", rows)
	}

	if cache.CacheExists("test_cache", "key1") {
		t.Error("Expected key1 to be cleared")
	}
	if !cache.CacheExists("test_cache", "key2") {
		t.Error("Expected key2 to remain")
	}
	if !cache.CacheExists("test_cache", "key3") {
		t.Error("Expected key3 to remain")
	}
}

func TestCacheDB_InvalidateSource(t *testing.T) {
	cache, _ := setupTestCache(t)

	_ = cache.Set(QuoteTable, "key1", `{}`, 0)
	_ = cache.Set(QuoteTable, "key2", `{}`, 0)
	_ = cache.Set(ISBNdbTable, "key1", `{}`, 0)

	rows, err := cache.InvalidateSource(QuoteTable)
	if err != nil {
		t.Fatalf("Failed to invalidate: %v", err)
	}
	if rows != 2 {
		t.Errorf("Expected 2 rows deleted, got %d", rows)
	}
	if cache.CacheExists(QuoteTable, "key1") {
		t.Error("Expected quote entries to be cleared")
	}
	if !cache.CacheExists(ISBNdbTable, "key1") {
		t.Error("Expected other tables to be untouched")
	}
}

func TestCacheDB_RejectsUnknownTable(t *testing.T) {
	cache, _ := setupTestCache(t)

	if err := cache.Set("users; DROP TABLE quote_cache", "k", "v", 0); err == nil {
		t.Error("Expected Set to reject unknown table")
	}
	if _, _, err := cache.Get("nope", "k"); err == nil {
		t.Error("Expected Get to reject unknown table")
	}
	if _, err := cache.InvalidateSource("nope"); err == nil {
		t.Error("Expected InvalidateSource to reject unknown table")
	}
	if cache.CacheExists("nope", "k") {
		t.Error("Expected CacheExists to be false for unknown table")
	}
}

func TestSelectNegativeCacheTTL(t *testing.T) {
	selector := SelectNegativeCacheTTL(func(v *TestData) bool { return v == nil })

	if got := selector(nil); got != NegativeCacheTTL {
		t.Errorf("Expected %v, got %v", NegativeCacheTTL, got)
	}
	if got := selector(&TestData{ID: 1}); got != DefaultCacheTTL {
		t.Errorf("Expected %v, got %v", DefaultCacheTTL, got)
	}
}
