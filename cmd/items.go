package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// ItemsCmd represents the items command
type ItemsCmd struct {
	JSON bool `help:"Print items as JSON"`
}

func (i *ItemsCmd) Run() error {
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

	owner := app.Config.Owner
	if owner == "" {
		return fmt.Errorf("owner is required (provide via --owner flag or owner in config)")
	}

	records, err := app.Store.List(ctx, owner)
	if err != nil {
		return fmt.Errorf("list inventory: %w", err)
	}

	if i.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	_, err = fmt.Fprintln(stdout, renderItems(records))
	return err
}
