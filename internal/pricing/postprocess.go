package pricing

import "github.com/shopspring/decimal"

var ninetyNine = decimal.RequireFromString("0.99")

// PostProcess clamps v to [cfg.Floor, cfg.Ceiling] (bounds that are set) and
// then applies the rounding mode. Rounding runs after clamping, so a .99 price
// may sit up to 0.99 above the ceiling.
func PostProcess(v decimal.Decimal, cfg Config) decimal.Decimal {
	if cfg.Floor != nil && v.LessThan(*cfg.Floor) {
		v = *cfg.Floor
	}
	if cfg.Ceiling != nil && v.GreaterThan(*cfg.Ceiling) {
		v = *cfg.Ceiling
	}
	return Round(v, cfg.Rounding)
}

// Round applies mode to v. An empty mode rounds to the nearest cent.
func Round(v decimal.Decimal, mode RoundingMode) decimal.Decimal {
	switch mode {
	case RoundNone:
		return v
	case RoundNinetyNine:
		return decimal.Max(ninetyNine, v.Floor().Add(ninetyNine))
	default:
		return v.Round(2)
	}
}
