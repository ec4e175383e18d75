package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/shelfscan/internal/datastore"
)

// ExportCmd represents the export command
type ExportCmd struct {
	DatasetteURL   string `help:"Datasette base URL; exports to a local SQLite file when empty"`
	DatasetteToken string `help:"Datasette API token"`
	DBFile         string `name:"db" help:"SQLite file to export to (defaults to export.dbfile from config)"`
}

func (e *ExportCmd) Run() error {
	ctx := context.Background()
	app, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("Failed to close application", "error", err)
		}
	}()

	cfg := app.Config
	if cfg.Owner == "" {
		return fmt.Errorf("owner is required (provide via --owner flag or owner in config)")
	}

	url := firstNonEmpty(e.DatasetteURL, cfg.Export.DatasetteURL)
	var sink datastore.Sink
	if url != "" {
		sink = datastore.NewDatasetteClient(url, firstNonEmpty(e.DatasetteToken, cfg.Export.DatasetteToken))
	} else {
		sink = datastore.NewSQLiteSink(firstNonEmpty(e.DBFile, cfg.Export.DBFile))
	}

	if err := sink.Connect(); err != nil {
		return fmt.Errorf("connect export target: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Warn("Failed to close export target", "error", err)
		}
	}()

	records, err := app.Store.List(ctx, cfg.Owner)
	if err != nil {
		return fmt.Errorf("list inventory: %w", err)
	}

	n, err := datastore.NewExporter(sink, cfg.Export.Database).Export(ctx, records)
	if err != nil {
		return err
	}
	slog.Info("Inventory exported", "rows", n, "owner", cfg.Owner)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
