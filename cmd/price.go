package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/lepinkainen/shelfscan/internal/pricing"
	"github.com/spf13/viper"
)

// PriceCmd represents the price command
type PriceCmd struct {
	Query      string   `arg:"" optional:"" help:"Title or search text"`
	ISBN       string   `help:"ISBN-10 or ISBN-13 of the item"`
	ISSN       string   `help:"ISSN of a periodical"`
	Type       string   `help:"Item type: book, magazine or product"`
	ListPrice  string   `help:"Cover or list price, used by cover_multiplier"`
	Categories []string `help:"Item categories, used by the heuristic fallback"`
	Strategy   string   `short:"s" help:"Pricing strategy: active_listings, cover_multiplier, flat or min_of"`
	Profile    string   `short:"p" help:"Named pricing profile"`
	Profiles   string   `help:"Pricing profiles YAML file" type:"path"`
	JSON       bool     `help:"Print the quote as JSON"`
}

func (p *PriceCmd) item() (pricing.Item, error) {
	item := pricing.Item{
		ISSN:       strings.TrimSpace(p.ISSN),
		Title:      strings.TrimSpace(p.Query),
		Type:       product.ParseItemType(p.Type),
		Categories: p.Categories,
	}

	if p.Type != "" && item.Type == "" {
		return pricing.Item{}, fmt.Errorf("unknown item type %q", p.Type)
	}

	if p.ISBN != "" {
		code := barcode.Normalize(p.ISBN)
		if code.Kind != barcode.KindISBN13 {
			return pricing.Item{}, fmt.Errorf("invalid ISBN %q", p.ISBN)
		}
		item.ISBN = code.Digits
	}

	listPrice, err := pricing.ParseOptionalDecimal(p.ListPrice)
	if err != nil {
		return pricing.Item{}, fmt.Errorf("invalid list price %q: %w", p.ListPrice, err)
	}
	item.ListPrice = listPrice

	if item.SearchText() == "" && item.ListPrice == nil {
		return pricing.Item{}, fmt.Errorf("nothing to price: give a query, --isbn, --issn or --list-price")
	}
	return item, nil
}

func (p *PriceCmd) Run() error {
	item, err := p.item()
	if err != nil {
		return err
	}

	if p.Profiles != "" {
		viper.Set("pricing.profiles_file", p.Profiles)
	}
	if p.Profile != "" {
		viper.Set("pricing.profile", p.Profile)
	}

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

	strategy := app.Profile.Strategy
	if p.Strategy != "" {
		if strategy, err = pricing.ParseStrategy(p.Strategy); err != nil {
			return err
		}
	}

	quote := app.Engine.Price(ctx, item, strategy, app.Profile.Config)
	if quote.Err != nil {
		slog.Warn("Market data unavailable", "error", quote.Err)
	}

	if p.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(quote)
	}

	label := item.SearchText()
	if label == "" {
		label = "list price " + item.ListPrice.StringFixed(2)
	}
	_, err = fmt.Fprintln(stdout, renderQuote(label, quote))
	return err
}
