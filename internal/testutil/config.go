package testutil

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

// ResetConfig resets viper and schedules another reset when the test
// completes.
func ResetConfig(t *testing.T) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)
}

// SetTestConfigOption is a functional option for configuring test config.
type SetTestConfigOption func(*testConfigOptions)

type testConfigOptions struct {
	storeDriver  string
	storeDSN     string
	marketSource string
	owner        string
}

// WithStore selects the inventory store driver and DSN.
func WithStore(driver, dsn string) SetTestConfigOption {
	return func(o *testConfigOptions) {
		o.storeDriver = driver
		o.storeDSN = dsn
	}
}

// WithMarketSource selects the market data source.
func WithMarketSource(source string) SetTestConfigOption {
	return func(o *testConfigOptions) {
		o.marketSource = source
	}
}

// WithOwner sets the default owner identity.
func WithOwner(owner string) SetTestConfigOption {
	return func(o *testConfigOptions) {
		o.owner = owner
	}
}

// SetTestConfigWithOptions resets viper and sets values that keep a test
// offline: by default an in-memory inventory store, the mock market and the
// in-memory quote cache, with no API keys.
func SetTestConfigWithOptions(t *testing.T, opts ...SetTestConfigOption) {
	t.Helper()

	options := testConfigOptions{
		storeDriver:  "memory",
		marketSource: "mock",
		owner:        "test-owner",
	}
	for _, opt := range opts {
		opt(&options)
	}

	ResetConfig(t)

	viper.Set("owner", options.owner)
	viper.Set("store.driver", options.storeDriver)
	viper.Set("store.dsn", options.storeDSN)
	viper.Set("market.source", options.marketSource)
	viper.Set("quote.backend", "memory")
	viper.Set("lookup.isbndb_api_key", "")
	viper.Set("lookup.googlebooks_api_key", "")
}

// SetupTestCache points the lookup cache at a database inside env and returns
// the cache directory.
func SetupTestCache(t *testing.T, env *TestEnv) string {
	t.Helper()

	cacheDir := env.Path("cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		t.Fatalf("failed to create cache directory: %v", err)
	}

	viper.Set("cache.dbfile", env.Path("cache", "test-cache.db"))
	viper.Set("cache.ttl", "24h")

	return cacheDir
}

// SetupExportDB points the SQLite export target at a file inside env and
// returns its path.
func SetupExportDB(t *testing.T, env *TestEnv) string {
	t.Helper()

	dbPath := env.Path("export.db")
	viper.Set("export.dbfile", dbPath)
	viper.Set("export.datasette_url", "")

	return dbPath
}
