package cache

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// InvalidateCacheCmd represents the cache invalidate subcommand
type InvalidateCacheCmd struct {
	Source string `arg:"" help:"Cache source to invalidate: openlibrary, googlebooks, isbndb, quote" required:""`
}

func (i *InvalidateCacheCmd) Run() error {
	dbPath := viper.GetString("cache.dbfile")

	slog.Info("Invalidating cache", "source", i.Source, "database", dbPath)

	tableName, ok := SourceTables[i.Source]
	if !ok {
		return fmt.Errorf("invalid cache source '%s'; valid sources are: %s", i.Source, validSources())
	}

	cacheDB, err := NewCacheDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	defer func() {
		if err := cacheDB.Close(); err != nil {
			slog.Warn("Failed to close cache database", "error", err)
		}
	}()

	rowsDeleted, err := cacheDB.InvalidateSource(tableName)
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	slog.Info("Cache invalidated", "source", i.Source, "rows_deleted", rowsDeleted)
	return nil
}

func validSources() string {
	names := make([]string, 0, len(SourceTables))
	for name := range SourceTables {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
