package lookup

import (
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/lepinkainen/shelfscan/internal/cache"
	"github.com/lepinkainen/shelfscan/internal/ratelimit"
	"github.com/lepinkainen/shelfscan/internal/testutil"
	"github.com/stretchr/testify/require"
)

// newIPv4TestServer starts a test server bound to IPv4 loopback to avoid IPv6 listener issues.
func newIPv4TestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()

	t.Cleanup(server.Close)
	return server
}

func newTestCache(t *testing.T) *cache.CacheDB {
	t.Helper()

	env := testutil.NewTestEnv(t)
	db, err := cache.NewCacheDB(filepath.Join(env.RootDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testOptions(server *httptest.Server, db *cache.CacheDB) Options {
	return Options{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Cache:      db,
		Limiter:    ratelimit.NewEvery("test", 0),
	}
}
