package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/lepinkainen/shelfscan/internal/cache"
	"github.com/lepinkainen/shelfscan/internal/cmdutil"
	"github.com/lepinkainen/shelfscan/internal/config"
	"github.com/lepinkainen/shelfscan/internal/worker"
	"github.com/spf13/viper"
)

var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
)

// newApp loads the configuration held by viper and wires the application.
var newApp = func(ctx context.Context, onError worker.ErrorHandler) (*cmdutil.App, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return cmdutil.NewApp(ctx, cfg, onError)
}

// CLI represents the complete command structure for the shelfscan application
type CLI struct {
	// Global flags
	Verbose bool   `short:"v" help:"Enable debug logging"`
	Owner   string `help:"Owner identity for inventory operations"`

	// Store flags
	StoreDriver string `help:"Inventory store driver: sqlite, mysql, postgres or memory"`
	StoreDSN    string `name:"store-dsn" help:"Inventory store data source name"`

	// Market flags
	Market string `help:"Market data source: none, mock or http"`

	// Cache flags
	CacheDBFile string `help:"Path to cache SQLite database file" default:"./cache.db"`
	CacheTTL    string `help:"Cache time-to-live duration (e.g., 720h for 30 days)" default:"720h"`

	Scan   ScanCmd   `cmd:"" help:"Scan codes into the inventory"`
	Price  PriceCmd  `cmd:"" help:"Compute a suggested price for an item"`
	Items  ItemsCmd  `cmd:"" help:"List inventory items"`
	Serve  ServeCmd  `cmd:"" help:"Serve the HTTP API"`
	Export ExportCmd `cmd:"" help:"Export inventory to SQLite or Datasette"`
	Cache  CacheCmd  `cmd:"" help:"Manage lookup and quote caches"`
}

// CacheCmd groups cache maintenance commands
type CacheCmd struct {
	Invalidate cache.InvalidateCacheCmd `cmd:"" help:"Clear a cache table"`
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging(slog.LevelInfo)
	initConfig()

	// Create CLI instance
	var cli CLI

	// Parse command line with Kong
	ctx := kong.Parse(&cli,
		kong.Name("shelfscan"),
		kong.Description("Scan books, magazines and products into a priced inventory."),
		kong.UsageOnError(),
	)

	// Update global config based on parsed flags
	updateGlobalConfig(&cli)

	// Execute the selected command
	err := ctx.Run()
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	// Enable environment variable support
	if err := config.BindEnv(viper.GetViper()); err != nil {
		slog.Error("Failed to bind environment variable", "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("Config file not found, writing default config file...")
			if err := viper.SafeWriteConfig(); err != nil {
				slog.Error("Error writing config file", "error", err)
			}
		} else {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
	}
}

func updateGlobalConfig(cli *CLI) {
	if cli.Verbose {
		initLogging(slog.LevelDebug)
	}

	// Flags override config only when given
	overrides := map[string]string{
		"owner":         cli.Owner,
		"store.driver":  cli.StoreDriver,
		"store.dsn":     cli.StoreDSN,
		"market.source": cli.Market,
	}
	for key, value := range overrides {
		if value != "" {
			viper.Set(key, value)
		}
	}

	// Update cache config
	viper.Set("cache.dbfile", cli.CacheDBFile)
	viper.Set("cache.ttl", cli.CacheTTL)
}

func initLogging(level slog.Level) {
	// Create a human-readable handler for logging
	handler := humanlog.NewHandler(os.Stderr, &humanlog.Options{
		Level: level,
	})

	// Set the default logger
	slog.SetDefault(slog.New(handler))
}
