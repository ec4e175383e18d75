package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy selects how a suggested price is computed.
type Strategy int

const (
	// ActiveListings prices from the 40th percentile of current market offers.
	ActiveListings Strategy = iota + 1
	// CoverMultiplier scales the printed list price.
	CoverMultiplier
	// Flat returns a configured price.
	Flat
	// MinOf runs every strategy with sufficient inputs and keeps the lowest.
	MinOf
)

// Strategies lists the single strategies MinOf composes, in evaluation order.
var Strategies = []Strategy{ActiveListings, CoverMultiplier, Flat}

// ErrUnknownStrategy is returned by ParseStrategy.
var ErrUnknownStrategy = errors.New("unknown pricing strategy")

// String returns the tag recorded as a quote source.
func (s Strategy) String() string {
	switch s {
	case ActiveListings:
		return "active_listings"
	case CoverMultiplier:
		return "cover_multiplier"
	case Flat:
		return "flat"
	case MinOf:
		return "min_of"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy accepts tags such as "active_listings", "ACTIVE-LISTINGS" or
// "minof".
func ParseStrategy(s string) (Strategy, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "activelistings", "active", "market":
		return ActiveListings, nil
	case "covermultiplier", "cover":
		return CoverMultiplier, nil
	case "flat":
		return Flat, nil
	case "minof", "min":
		return MinOf, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
