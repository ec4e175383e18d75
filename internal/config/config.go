// Package config holds the typed application configuration read through viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/lepinkainen/shelfscan/internal/pricing"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SHELFSCAN_STORE_DSN.
const EnvPrefix = "SHELFSCAN"

// Config holds all configuration for the application
type Config struct {
	Owner   string        `mapstructure:"owner"`
	Store   StoreConfig   `mapstructure:"store"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Quote   QuoteConfig   `mapstructure:"quote"`
	Lookup  LookupConfig  `mapstructure:"lookup"`
	Market  MarketConfig  `mapstructure:"market"`
	Pricing PricingConfig `mapstructure:"pricing"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Server  ServerConfig  `mapstructure:"server"`
	Export  ExportConfig  `mapstructure:"export"`
}

// StoreConfig selects the inventory database
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, mysql, postgres or memory
	DSN    string `mapstructure:"dsn"`
}

// CacheConfig configures the SQLite lookup cache
type CacheConfig struct {
	DBFile string        `mapstructure:"dbfile"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// QuoteConfig configures the market quote cache
type QuoteConfig struct {
	Backend  string        `mapstructure:"backend"` // memory, sqlite or redis
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LookupConfig holds catalog source settings
type LookupConfig struct {
	ISBNdbAPIKey      string        `mapstructure:"isbndb_api_key"`
	GoogleBooksAPIKey string        `mapstructure:"googlebooks_api_key"`
	CatalogFile       string        `mapstructure:"catalog_file"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// MarketConfig selects the marketplace data source
type MarketConfig struct {
	Source            string        `mapstructure:"source"` // none, mock or http
	BaseURL           string        `mapstructure:"base_url"`
	AuthHeader        string        `mapstructure:"auth_header"`
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	RetryMax          int           `mapstructure:"retry_max"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// PricingConfig holds pricing defaults. Decimal values are strings; empty
// means unset. A named Profile from ProfilesFile replaces them entirely.
type PricingConfig struct {
	Strategy        string        `mapstructure:"strategy"`
	Profile         string        `mapstructure:"profile"`
	ProfilesFile    string        `mapstructure:"profiles_file"`
	Condition       string        `mapstructure:"condition"`
	Limit           int           `mapstructure:"limit"`
	IncludeShipping bool          `mapstructure:"include_shipping"`
	Multiplier      string        `mapstructure:"multiplier"`
	Flat            string        `mapstructure:"flat"`
	Floor           string        `mapstructure:"floor"`
	Ceiling         string        `mapstructure:"ceiling"`
	Rounding        string        `mapstructure:"rounding"`
	DefaultPrice    string        `mapstructure:"default_price"`
	Concurrency     int           `mapstructure:"concurrency"`
	Delay           time.Duration `mapstructure:"delay"`
}

// ScanConfig configures scan sessions and the background pool
type ScanConfig struct {
	DuplicateWindow time.Duration `mapstructure:"duplicate_window"`
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"` // 0 leaves the task queue unbounded
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release or test
}

// ExportConfig configures inventory export
type ExportConfig struct {
	DatasetteURL   string `mapstructure:"datasette_url"`
	DatasetteToken string `mapstructure:"datasette_token"`
	Database       string `mapstructure:"database"`
	DBFile         string `mapstructure:"dbfile"`
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	v.SetDefault("owner", "")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "./shelfscan.db")

	v.SetDefault("cache.dbfile", "./cache.db")
	v.SetDefault("cache.ttl", "720h") // 30 days

	v.SetDefault("quote.backend", "memory")
	v.SetDefault("quote.redis_url", "")
	v.SetDefault("quote.ttl", "6h")

	v.SetDefault("lookup.isbndb_api_key", "")
	v.SetDefault("lookup.googlebooks_api_key", "")
	v.SetDefault("lookup.catalog_file", "")
	v.SetDefault("lookup.timeout", "10s")

	v.SetDefault("market.source", "none")
	v.SetDefault("market.base_url", "")
	v.SetDefault("market.auth_header", "")
	v.SetDefault("market.requests_per_second", 2)
	v.SetDefault("market.retry_max", 3)
	v.SetDefault("market.timeout", "15s")

	v.SetDefault("pricing.strategy", "active_listings")
	v.SetDefault("pricing.profile", "")
	v.SetDefault("pricing.profiles_file", "")
	v.SetDefault("pricing.condition", "")
	v.SetDefault("pricing.limit", pricing.DefaultLimit)
	v.SetDefault("pricing.include_shipping", false)
	v.SetDefault("pricing.multiplier", "")
	v.SetDefault("pricing.flat", "")
	v.SetDefault("pricing.floor", "")
	v.SetDefault("pricing.ceiling", "")
	v.SetDefault("pricing.rounding", string(pricing.RoundNearestCent))
	v.SetDefault("pricing.default_price", "")
	v.SetDefault("pricing.concurrency", pricing.DefaultConcurrency)
	v.SetDefault("pricing.delay", "0s")

	v.SetDefault("scan.duplicate_window", "2s")
	v.SetDefault("scan.workers", 4)
	v.SetDefault("scan.queue_size", 0)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("export.datasette_url", "")
	v.SetDefault("export.datasette_token", "")
	v.SetDefault("export.database", "shelfscan")
	v.SetDefault("export.dbfile", "./shelfscan-export.db")
}

// BindEnv enables SHELFSCAN_ prefixed environment variables and the
// conventional unprefixed names for API keys.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string][]string{
		"lookup.isbndb_api_key":      {"SHELFSCAN_LOOKUP_ISBNDB_API_KEY", "ISBNDB_API_KEY"},
		"lookup.googlebooks_api_key": {"SHELFSCAN_LOOKUP_GOOGLEBOOKS_API_KEY", "GOOGLE_BOOKS_API_KEY"},
		"quote.redis_url":            {"SHELFSCAN_QUOTE_REDIS_URL", "REDIS_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "sqlite", "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("store driver must be sqlite, mysql, postgres or memory, got: %s", cfg.Store.Driver)
	}
	if cfg.Store.Driver != "memory" && cfg.Store.DSN == "" {
		return fmt.Errorf("store dsn is required for driver %s", cfg.Store.Driver)
	}

	switch cfg.Quote.Backend {
	case "memory", "sqlite":
	case "redis":
		if cfg.Quote.RedisURL == "" {
			return fmt.Errorf("redis URL is required when quote backend is 'redis'")
		}
	default:
		return fmt.Errorf("quote backend must be memory, sqlite or redis, got: %s", cfg.Quote.Backend)
	}

	switch cfg.Market.Source {
	case "", "none", "mock":
	case "http":
		if cfg.Market.BaseURL == "" {
			return fmt.Errorf("market base_url is required when market source is 'http'")
		}
	default:
		return fmt.Errorf("market source must be none, mock or http, got: %s", cfg.Market.Source)
	}

	if _, err := cfg.Pricing.Resolve(); err != nil {
		return err
	}

	if cfg.Scan.DuplicateWindow < 0 {
		return fmt.Errorf("scan duplicate_window must not be negative")
	}
	if cfg.Scan.Workers <= 0 {
		return fmt.Errorf("scan workers must be positive, got: %d", cfg.Scan.Workers)
	}
	return nil
}

// Resolve returns the pricing profile in effect: the named profile when one
// is configured, otherwise one built from the inline settings.
func (p PricingConfig) Resolve() (pricing.Profile, error) {
	if p.Profile != "" {
		if p.ProfilesFile == "" {
			return pricing.Profile{}, fmt.Errorf("pricing profile %q set without profiles_file", p.Profile)
		}
		profiles, err := pricing.LoadProfiles(p.ProfilesFile)
		if err != nil {
			return pricing.Profile{}, err
		}
		return profiles.Get(p.Profile)
	}

	spec := pricing.ProfileSpec{
		Strategy:        p.Strategy,
		Condition:       p.Condition,
		Limit:           p.Limit,
		IncludeShipping: p.IncludeShipping,
		Multiplier:      p.Multiplier,
		Flat:            p.Flat,
		Floor:           p.Floor,
		Ceiling:         p.Ceiling,
		Rounding:        p.Rounding,
		DefaultPrice:    p.DefaultPrice,
		Concurrency:     p.Concurrency,
	}
	if p.Delay > 0 {
		spec.Delay = p.Delay.String()
	}
	profile, err := spec.Build("config")
	if err != nil {
		return pricing.Profile{}, fmt.Errorf("pricing: %w", err)
	}
	return profile, nil
}
