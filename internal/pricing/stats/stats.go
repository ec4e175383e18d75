// Package stats computes order statistics over market prices.
package stats

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Summary describes a price distribution. A zero Count means there was no data
// and every other field is nil.
type Summary struct {
	Count   int              `json:"count"`
	Min     *decimal.Decimal `json:"min,omitempty"`
	Max     *decimal.Decimal `json:"max,omitempty"`
	Average *decimal.Decimal `json:"average,omitempty"`
	Median  *decimal.Decimal `json:"median,omitempty"`
	P10     *decimal.Decimal `json:"p10,omitempty"`
	P25     *decimal.Decimal `json:"p25,omitempty"`
	P50     *decimal.Decimal `json:"p50,omitempty"`
	P75     *decimal.Decimal `json:"p75,omitempty"`
	P90     *decimal.Decimal `json:"p90,omitempty"`
}

// Empty reports whether the summary was computed from no values.
func (s *Summary) Empty() bool {
	return s == nil || s.Count == 0
}

// Quantile returns the p-quantile of sorted values using linear interpolation
// between the two bracketing order statistics (index = (n-1)*p). p is clamped
// to [0, 1]. An empty input yields zero.
func Quantile(sorted []decimal.Decimal, p float64) decimal.Decimal {
	n := len(sorted)
	if n == 0 {
		return decimal.Zero
	}
	if math.IsNaN(p) || p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	index := float64(n-1) * p
	lo := int(math.Floor(index))
	hi := int(math.Ceil(index))
	if lo == hi {
		return sorted[lo]
	}

	// Rounding drops float noise such as 0.6000000000000001.
	frac := decimal.NewFromFloat(index - float64(lo)).Round(9)
	return sorted[lo].Add(sorted[hi].Sub(sorted[lo]).Mul(frac))
}

// Sorted returns an ascending copy of values.
func Sorted(values []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	copy(out, values)
	sort.Slice(out, func(i, j int) bool {
		return out[i].LessThan(out[j])
	})
	return out
}

// Summarize computes a Summary over values, which need not be sorted. All
// figures are rounded to 2 decimal places.
func Summarize(values []decimal.Decimal) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	sorted := Sorted(values)
	total := decimal.Zero
	for _, v := range sorted {
		total = total.Add(v)
	}

	at := func(p float64) *decimal.Decimal {
		v := Quantile(sorted, p).Round(2)
		return &v
	}
	round := func(v decimal.Decimal) *decimal.Decimal {
		r := v.Round(2)
		return &r
	}

	median := at(0.5)
	return Summary{
		Count:   len(sorted),
		Min:     round(sorted[0]),
		Max:     round(sorted[len(sorted)-1]),
		Average: round(total.Div(decimal.NewFromInt(int64(len(sorted))))),
		Median:  median,
		P10:     at(0.10),
		P25:     at(0.25),
		P50:     median,
		P75:     at(0.75),
		P90:     at(0.90),
	}
}
