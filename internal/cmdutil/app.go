// Package cmdutil assembles the application's components from configuration
// for the CLI commands and the HTTP server.
package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lepinkainen/shelfscan/internal/cache"
	"github.com/lepinkainen/shelfscan/internal/config"
	"github.com/lepinkainen/shelfscan/internal/datastore"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/lepinkainen/shelfscan/internal/inventory"
	"github.com/lepinkainen/shelfscan/internal/lookup"
	"github.com/lepinkainen/shelfscan/internal/market"
	"github.com/lepinkainen/shelfscan/internal/pipeline"
	"github.com/lepinkainen/shelfscan/internal/pricing"
	"github.com/lepinkainen/shelfscan/internal/quotecache"
	"github.com/lepinkainen/shelfscan/internal/ratelimit"
	"github.com/lepinkainen/shelfscan/internal/worker"
	"github.com/redis/go-redis/v9"
)

// Store is an inventory store that owns resources.
type Store interface {
	inventory.Store
	Close() error
}

type memoryStore struct {
	*inventory.MemoryStore
}

func (memoryStore) Close() error { return nil }

// App holds the wired components. Close releases them.
type App struct {
	Config   *config.Config
	Profile  pricing.Profile
	Store    Store
	Lookup   *lookup.Chain
	Market   market.Source
	Engine   *pricing.Engine
	Pool     *worker.Pool
	Merger   *inventory.Merger
	Pipeline *pipeline.Pipeline

	cacheDB *cache.CacheDB
	redis   *redis.Client
}

// NewApp builds every component described by cfg. Background tasks run with
// ctx; onError receives task failures in addition to the log.
func NewApp(ctx context.Context, cfg *config.Config, onError worker.ErrorHandler) (*App, error) {
	app := &App{Config: cfg}

	profile, err := cfg.Pricing.Resolve()
	if err != nil {
		return nil, err
	}
	app.Profile = profile

	if err := app.openStore(ctx); err != nil {
		return nil, err
	}

	if cfg.Cache.DBFile != "" {
		cacheDB, err := cache.NewCacheDB(cfg.Cache.DBFile)
		if err != nil {
			return nil, errors.Join(err, app.Close())
		}
		cacheDB.SetDefaultTTL(cfg.Cache.TTL)
		app.cacheDB = cacheDB
	}

	chain, err := app.buildLookup()
	if err != nil {
		return nil, errors.Join(err, app.Close())
	}
	app.Lookup = chain

	engine, err := app.buildEngine()
	if err != nil {
		return nil, errors.Join(err, app.Close())
	}
	app.Engine = engine

	poolOpts := []worker.Option{worker.WithQueueSize(cfg.Scan.QueueSize)}
	if onError != nil {
		poolOpts = append(poolOpts, worker.WithErrorHandler(onError))
	}
	app.Pool = worker.New(ctx, "shelfscan", cfg.Scan.Workers, poolOpts...)

	app.Merger = inventory.NewMerger(app.Store,
		inventory.WithPricing(app.Engine, profile.Strategy, profile.Config),
		inventory.WithTasks(app.Pool),
	)
	app.Pipeline = pipeline.New(app.Lookup, app.Merger)

	slog.Debug("Application wired",
		"store", cfg.Store.Driver,
		"market", cfg.Market.Source,
		"quote_cache", cfg.Quote.Backend,
		"strategy", profile.Strategy,
		"enrichers", len(chain.Enrichers()),
	)
	return app, nil
}

func (a *App) openStore(ctx context.Context) error {
	if a.Config.Store.Driver == "memory" {
		a.Store = memoryStore{inventory.NewMemoryStore()}
		return nil
	}
	store, err := datastore.OpenSQLStore(ctx, a.Config.Store.Driver, a.Config.Store.DSN)
	if err != nil {
		return fmt.Errorf("open inventory store: %w", err)
	}
	a.Store = store
	return nil
}

func (a *App) buildLookup() (*lookup.Chain, error) {
	cfg := a.Config.Lookup
	opts := lookup.Options{
		Cache:      a.cacheDB,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}

	var enrichers []product.Enricher
	if cfg.CatalogFile != "" {
		catalog, err := lookup.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		enrichers = append(enrichers, catalog)
	}
	if cfg.ISBNdbAPIKey != "" {
		enrichers = append(enrichers, lookup.NewISBNdbEnricher(cfg.ISBNdbAPIKey, opts))
	}
	enrichers = append(enrichers,
		lookup.NewOpenLibraryEnricher(opts),
		lookup.NewGoogleBooksEnricher(cfg.GoogleBooksAPIKey, opts),
	)
	return lookup.NewChain(enrichers...), nil
}

func (a *App) buildEngine() (*pricing.Engine, error) {
	cfg := a.Config
	rps := cfg.Market.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	limiter := ratelimit.New("market", rps)

	source, err := market.NewSource(cfg.Market.Source, market.HTTPConfig{
		BaseURL:        cfg.Market.BaseURL,
		AuthHeader:     cfg.Market.AuthHeader,
		UserAgent:      "shelfscan/1.0",
		RequestTimeout: cfg.Market.Timeout,
		RetryMax:       cfg.Market.RetryMax,
		Limiter:        limiter,
	})
	if err != nil {
		return nil, fmt.Errorf("market source %q: %w", cfg.Market.Source, err)
	}
	a.Market = source

	qc, err := a.buildQuoteCache()
	if err != nil {
		return nil, err
	}

	opts := []pricing.EngineOption{pricing.WithQuoteCache(qc)}
	if _, ok := source.(*market.HTTPJSONSource); !ok {
		// The HTTP source paces itself with the same limiter.
		opts = append(opts, pricing.WithLimiter(limiter))
	}
	return pricing.NewEngine(source, opts...), nil
}

func (a *App) buildQuoteCache() (*quotecache.Cache, error) {
	cfg := a.Config.Quote

	var backend quotecache.Backend
	switch cfg.Backend {
	case "sqlite":
		if a.cacheDB == nil {
			return nil, fmt.Errorf("quote backend 'sqlite' requires cache.dbfile")
		}
		backend = quotecache.NewSQLiteBackend(a.cacheDB)
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
		backend = quotecache.NewRedisBackend(a.redis)
	default:
		backend = quotecache.NewMemoryBackend()
	}

	return quotecache.New(backend, quotecache.WithTTL(cfg.TTL)), nil
}

// Close drains background tasks and releases every resource.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Wait()
	}

	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.cacheDB != nil {
		errs = append(errs, a.cacheDB.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
