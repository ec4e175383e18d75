package pricing

import (
	"strings"
	"testing"

	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound(t *testing.T) {
	tests := []struct {
		in   string
		mode RoundingMode
		want string
	}{
		{"13", RoundNinetyNine, "13.99"},
		{"12.01", RoundNinetyNine, "12.99"},
		{"12.99", RoundNinetyNine, "12.99"},
		{"0.10", RoundNinetyNine, "0.99"},
		{"0", RoundNinetyNine, "0.99"},
		{"1.005", RoundNearestCent, "1.01"},
		{"8.104", RoundNearestCent, "8.1"},
		{"8.104", "", "8.1"},
		{"8.104", RoundNone, "8.104"},
	}
	for _, tt := range tests {
		requireDecimal(t, tt.want, Round(dec(tt.in), tt.mode))
	}
}

func TestPostProcess_ClampsBeforeRounding(t *testing.T) {
	cfg := Config{Floor: decp("8"), Ceiling: decp("20"), Rounding: RoundNinetyNine}
	requireDecimal(t, "8.99", PostProcess(dec("2"), cfg))
	requireDecimal(t, "20.99", PostProcess(dec("45"), cfg))

	requireDecimal(t, "45", PostProcess(dec("45"), Config{Rounding: RoundNone}))
}

func TestHeuristic(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want string
	}{
		{"plain book", Item{ISBN: hobbit, Title: "The Hobbit"}, "8"},
		{"rare signed book", Item{Type: product.TypeBook, Title: "Rare First Edition, signed"}, "15.6"},
		{"all groups", Item{Type: product.TypeBook, Title: "Vintage limited box set"}, "18.72"},
		{"magazine floors at minimum", Item{Type: product.TypeMagazine, Title: "Wired"}, "5"},
		{"magazine keyword", Item{Title: "Model Railroader Vol. 12 collectible"}, "5.2"},
		{"product", Item{Title: "Desk lamp"}, "10"},
		{"product series", Item{Title: "Figure series 2"}, "12"},
		{"substring does not match", Item{Title: "Sunset poster"}, "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireDecimal(t, tt.want, Heuristic(tt.item))
		})
	}
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"active_listings":  ActiveListings,
		"ACTIVE-LISTINGS":  ActiveListings,
		"cover_multiplier": CoverMultiplier,
		"flat":             Flat,
		"MinOf":            MinOf,
	} {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStrategy("auction")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Equal(t, "min_of", MinOf.String())
}

func TestParseProfiles(t *testing.T) {
	profiles, err := ParseProfiles(strings.NewReader(`
profiles:
  quick-sale:
    strategy: min_of
    condition: used
    limit: 30
    include_shipping: true
    multiplier: "0.4"
    flat: "6.00"
    floor: 4
    ceiling: "40"
    rounding: ".99"
    concurrency: 2
    delay: 250ms
  shelf:
    flat: "3"
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"quick-sale", "shelf"}, profiles.Names())

	quick, err := profiles.Get("quick-sale")
	require.NoError(t, err)
	assert.Equal(t, MinOf, quick.Strategy)
	assert.Equal(t, "used", quick.Config.Condition)
	assert.Equal(t, 30, quick.Config.Limit)
	assert.True(t, quick.Config.IncludeShipping)
	requireDecimal(t, "0.4", *quick.Config.Multiplier)
	requireDecimal(t, "4", *quick.Config.Floor)
	assert.Equal(t, RoundNinetyNine, quick.Config.Rounding)
	assert.Equal(t, 2, quick.Config.Concurrency)
	assert.Equal(t, "250ms", quick.Config.Delay.String())

	shelf, err := profiles.Get("shelf")
	require.NoError(t, err)
	assert.Equal(t, ActiveListings, shelf.Strategy)
	assert.Nil(t, shelf.Config.Floor)
	assert.Equal(t, RoundNearestCent, shelf.Config.Rounding)

	_, err = profiles.Get("missing")
	assert.Error(t, err)
}

func TestParseProfiles_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad strategy":    "profiles:\n  a:\n    strategy: auction\n",
		"bad decimal":     "profiles:\n  a:\n    floor: cheap\n",
		"floor > ceiling": "profiles:\n  a:\n    floor: \"30\"\n    ceiling: \"20\"\n",
		"bad rounding":    "profiles:\n  a:\n    rounding: up\n",
		"negative flat":   "profiles:\n  a:\n    flat: \"-1\"\n",
	}
	for name, doc := range tests {
		_, err := ParseProfiles(strings.NewReader(doc))
		assert.Error(t, err, name)
	}
}

func TestItemFromMetadata(t *testing.T) {
	code := barcode.Normalize("0143127792")
	item := ItemFromMetadata(code, &product.ItemMetadata{
		Title:     "Ready Player One",
		Type:      product.TypeBook,
		ListPrice: decp("16.00"),
	})
	assert.Equal(t, "9780143127796", item.ISBN)
	assert.Equal(t, "9780143127796", item.SearchText())
	requireDecimal(t, "16", *item.ListPrice)

	mag := ItemFromMetadata(barcode.Normalize("977123456700307"), nil)
	assert.Equal(t, product.TypeMagazine, mag.Type)
	assert.Equal(t, "", mag.SearchText())
}
