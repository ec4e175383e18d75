package cmdutil

import (
	"context"
	"sync"
	"testing"

	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/lepinkainen/shelfscan/internal/config"
	"github.com/lepinkainen/shelfscan/internal/pricing"
	"github.com/lepinkainen/shelfscan/internal/scan"
	"github.com/lepinkainen/shelfscan/internal/testutil"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `items:
  - code: "012345678905"
    title: Board Game
    type: product
    list_price: "24.99"
`

func loadConfig(t *testing.T, env *testutil.TestEnv, overrides map[string]any) *config.Config {
	t.Helper()
	env.WriteFileString("catalog.yaml", catalogYAML)

	v := viper.New()
	config.SetDefaults(v)
	v.Set("store.driver", "sqlite")
	v.Set("store.dsn", env.Path("inventory.db"))
	v.Set("cache.dbfile", env.Path("cache.db"))
	v.Set("lookup.catalog_file", env.Path("catalog.yaml"))
	v.Set("market.source", "mock")
	for k, val := range overrides {
		v.Set(k, val)
	}

	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}

func TestNewApp_ScanFlow(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewTestEnv(t)
	cfg := loadConfig(t, env, map[string]any{"quote.backend": "sqlite"})

	app, err := NewApp(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	code := barcode.Normalize("012345678905")
	first, err := app.Pipeline.Process(ctx, "owner-1", code, "")
	require.NoError(t, err)
	assert.True(t, first.Merge.Created)
	assert.Equal(t, "Board Game", first.Merge.Record.Title)

	second, err := app.Pipeline.Process(ctx, "owner-1", code, "")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Merge.Quantity)

	app.Pool.Wait()

	rec, err := app.Store.Get(ctx, first.Merge.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Quantity)
	assert.NotNil(t, rec.SuggestedPrice)
}

const shelfCatalogYAML = `items:
  - code: "012345678905"
    title: Board Game
    type: product
    list_price: "24.99"
  - code: "036000291452"
    title: Tissue Box
    type: product
    list_price: "3.49"
`

func TestNewApp_BatchScanDrainsOnClose(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewTestEnv(t)
	env.WriteFileString("shelf.yaml", shelfCatalogYAML)
	cfg := loadConfig(t, env, map[string]any{
		"store.driver":        "memory",
		"market.source":       "none",
		"scan.workers":        2,
		"lookup.catalog_file": env.Path("shelf.yaml"),
	})

	app, err := NewApp(ctx, cfg, nil)
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		events []scan.Event
	)
	session := scan.NewSession(app.Pipeline,
		scan.WithTasks(app.Pool),
		scan.WithDuplicateWindow(0),
		scan.WithEventSink(scan.EventSinkFunc(func(e scan.Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
		})),
	)
	require.NoError(t, session.Start(scan.StartOptions{Owner: "owner-1", Mode: scan.Batch}))

	for _, raw := range []string{"012345678905", "036000291452", "012345678905", "012345678905"} {
		out, err := session.Submit(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, scan.StatusDispatched, out.Status)
	}
	session.Stop()

	require.NoError(t, app.Close())

	mu.Lock()
	require.Len(t, events, 4)
	for _, e := range events {
		assert.NoError(t, e.Err)
	}
	mu.Unlock()

	records, err := app.Store.List(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	quantities := map[string]int{}
	for _, rec := range records {
		quantities[rec.Title] = rec.Quantity
		assert.NotNil(t, rec.SuggestedPrice, "no suggested price for %s", rec.Title)
	}
	assert.Equal(t, map[string]int{"Board Game": 3, "Tissue Box": 1}, quantities)

	stats := app.Pool.Stats()
	assert.Equal(t, int64(6), stats.Submitted)
	assert.Zero(t, stats.Failed)
}

func TestNewApp_MemoryStoreAndProfile(t *testing.T) {
	env := testutil.NewTestEnv(t)
	cfg := loadConfig(t, env, map[string]any{
		"store.driver":     "memory",
		"pricing.strategy": "flat",
		"pricing.flat":     "5.25",
	})

	app, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close()) }()

	assert.Equal(t, pricing.Flat, app.Profile.Strategy)
	require.NotNil(t, app.Profile.Config.FlatPrice)
	assert.Equal(t, "5.25", app.Profile.Config.FlatPrice.StringFixed(2))
	assert.Len(t, app.Lookup.Enrichers(), 3)
}

func TestNewApp_BadCatalog(t *testing.T) {
	env := testutil.NewTestEnv(t)
	cfg := loadConfig(t, env, nil)
	cfg.Lookup.CatalogFile = env.Path("missing.yaml")

	_, err := NewApp(context.Background(), cfg, nil)
	assert.Error(t, err)
}
