package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lepinkainen/shelfscan/internal/pricing"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	require.NoError(t, BindEnv(v))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "memory", cfg.Quote.Backend)
	assert.Equal(t, 6*time.Hour, cfg.Quote.TTL)
	assert.Equal(t, 720*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 2*time.Second, cfg.Scan.DuplicateWindow)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, 0, cfg.Scan.QueueSize)
	assert.Equal(t, "none", cfg.Market.Source)
	assert.Equal(t, pricing.DefaultLimit, cfg.Pricing.Limit)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SHELFSCAN_STORE_DRIVER", "memory")
	t.Setenv("SHELFSCAN_SCAN_DUPLICATE_WINDOW", "500ms")
	t.Setenv("ISBNDB_API_KEY", "isbndb-key")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 500*time.Millisecond, cfg.Scan.DuplicateWindow)
	assert.Equal(t, "isbndb-key", cfg.Lookup.ISBNdbAPIKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{name: "unknown store driver", key: "store.driver", val: "oracle"},
		{name: "redis without url", key: "quote.backend", val: "redis"},
		{name: "unknown quote backend", key: "quote.backend", val: "memcached"},
		{name: "http market without base url", key: "market.source", val: "http"},
		{name: "unknown market source", key: "market.source", val: "ebay"},
		{name: "unknown strategy", key: "pricing.strategy", val: "auction"},
		{name: "unknown rounding", key: "pricing.rounding", val: "up"},
		{name: "bad floor", key: "pricing.floor", val: "cheap"},
		{name: "no workers", key: "scan.workers", val: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestLoad_FloorAboveCeiling(t *testing.T) {
	v := newViper(t)
	v.Set("pricing.floor", "20")
	v.Set("pricing.ceiling", "8")
	_, err := Load(v)
	assert.Error(t, err)
}

func TestPricingResolve_Inline(t *testing.T) {
	v := newViper(t)
	v.Set("pricing.strategy", "min_of")
	v.Set("pricing.floor", "8")
	v.Set("pricing.ceiling", "20")
	v.Set("pricing.rounding", ".99")
	v.Set("pricing.include_shipping", true)

	cfg, err := Load(v)
	require.NoError(t, err)

	profile, err := cfg.Pricing.Resolve()
	require.NoError(t, err)
	assert.Equal(t, pricing.MinOf, profile.Strategy)
	assert.Equal(t, pricing.RoundNinetyNine, profile.Config.Rounding)
	assert.True(t, profile.Config.IncludeShipping)
	require.NotNil(t, profile.Config.Floor)
	assert.Equal(t, "8", profile.Config.Floor.String())
	require.NotNil(t, profile.Config.Ceiling)
	assert.Equal(t, "20", profile.Config.Ceiling.String())
	assert.Nil(t, profile.Config.FlatPrice)
}

func TestPricingResolve_ProfileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `profiles:
  bargain:
    strategy: flat
    flat: "3.50"
    rounding: none
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := newViper(t)
	v.Set("pricing.profiles_file", path)
	v.Set("pricing.profile", "bargain")

	cfg, err := Load(v)
	require.NoError(t, err)

	profile, err := cfg.Pricing.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "bargain", profile.Name)
	assert.Equal(t, pricing.Flat, profile.Strategy)
	require.NotNil(t, profile.Config.FlatPrice)
	assert.Equal(t, "3.5", profile.Config.FlatPrice.String())
}

func TestPricingResolve_ProfileWithoutFile(t *testing.T) {
	v := newViper(t)
	v.Set("pricing.profile", "bargain")
	_, err := Load(v)
	assert.Error(t, err)
}
