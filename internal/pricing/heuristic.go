package pricing

import (
	"strings"

	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/shopspring/decimal"
)

// Reference values for offline pricing.
var (
	heuristicBook     = decimal.RequireFromString("8.00")
	heuristicMagazine = decimal.RequireFromString("4.00")
	heuristicProduct  = decimal.RequireFromString("10.00")
	heuristicFloor    = decimal.RequireFromString("5.00")
)

type keywordGroup struct {
	words      []string
	multiplier decimal.Decimal
}

// Each group applies at most once however many of its words match.
var keywordGroups = []keywordGroup{
	{words: []string{"vintage", "rare", "first edition"}, multiplier: decimal.RequireFromString("1.5")},
	{words: []string{"collectible", "limited", "signed"}, multiplier: decimal.RequireFromString("1.3")},
	{words: []string{"set", "series", "collection"}, multiplier: decimal.RequireFromString("1.2")},
}

var magazineWords = []string{"magazine", "issue", "vol"}

// Heuristic returns a deterministic price estimate from the item's category and
// title keywords. It is used when no market source is configured.
func Heuristic(item Item) decimal.Decimal {
	text := strings.ToLower(item.Title + " " + strings.Join(item.Categories, " "))
	words := tokenize(text)

	price := heuristicProduct
	switch {
	case item.Type == product.TypeMagazine || item.ISSN != "" || containsAny(text, words, magazineWords):
		price = heuristicMagazine
	case item.Type == product.TypeBook || item.ISBN != "":
		price = heuristicBook
	}

	for _, group := range keywordGroups {
		if containsAny(text, words, group.words) {
			price = price.Mul(group.multiplier)
		}
	}

	return decimal.Max(heuristicFloor, price).Round(2)
}

// containsAny matches single words against whole tokens so "set" does not
// match "sunset", and phrases against the full text.
func containsAny(text string, words map[string]bool, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(n, " ") {
			if strings.Contains(text, n) {
				return true
			}
			continue
		}
		if words[n] {
			return true
		}
	}
	return false
}

func tokenize(text string) map[string]bool {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
	words := make(map[string]bool, len(fields))
	for _, f := range fields {
		words[f] = true
	}
	return words
}
