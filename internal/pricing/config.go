package pricing

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RoundingMode controls the final rounding step.
type RoundingMode string

const (
	// RoundNearestCent rounds half away from zero to 2 decimals. It is the
	// default when no mode is set.
	RoundNearestCent RoundingMode = "nearest-cent"
	// RoundNinetyNine sets the price to max(0.99, floor(v) + 0.99).
	RoundNinetyNine RoundingMode = ".99"
	// RoundNone leaves the value untouched.
	RoundNone RoundingMode = "none"
)

// ParseRoundingMode maps user input to a RoundingMode. Empty input selects
// RoundNearestCent.
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nearest-cent", "nearest_cent", "cent":
		return RoundNearestCent, nil
	case ".99", "99", "charm":
		return RoundNinetyNine, nil
	case "none", "off":
		return RoundNone, nil
	}
	return "", fmt.Errorf("unknown rounding mode %q", s)
}

const (
	// DefaultLimit is the listing limit used when none is configured.
	DefaultLimit = 50
	// MinLimit and MaxLimit bound the listing limit.
	MinLimit = 10
	MaxLimit = 100
	// DefaultConcurrency bounds PriceAll when Concurrency is unset.
	DefaultConcurrency = 4
	// Percentile is the quantile of active listing prices used as the price.
	Percentile = 0.40
)

// DefaultFallbackPrice is used when no strategy yields a candidate.
var DefaultFallbackPrice = decimal.RequireFromString("7.99")

// Config holds per-call pricing inputs. Nil decimals mean "not configured".
type Config struct {
	Condition       string
	Limit           int
	IncludeShipping bool

	Multiplier *decimal.Decimal
	FlatPrice  *decimal.Decimal

	Floor    *decimal.Decimal
	Ceiling  *decimal.Decimal
	Rounding RoundingMode

	// DefaultPrice overrides DefaultFallbackPrice.
	DefaultPrice *decimal.Decimal

	// Concurrency bounds PriceAll. Delay spaces out PriceAll items.
	Concurrency int
	Delay       time.Duration
}

// EffectiveLimit clamps Limit into [MinLimit, MaxLimit], defaulting to
// DefaultLimit.
func (c Config) EffectiveLimit() int {
	switch {
	case c.Limit <= 0:
		return DefaultLimit
	case c.Limit < MinLimit:
		return MinLimit
	case c.Limit > MaxLimit:
		return MaxLimit
	}
	return c.Limit
}

func (c Config) fallbackPrice() decimal.Decimal {
	if c.DefaultPrice != nil {
		return *c.DefaultPrice
	}
	return DefaultFallbackPrice
}

func (c Config) concurrency() int {
	if c.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return c.Concurrency
}

// Validate reports inconsistent settings.
func (c Config) Validate() error {
	if c.Floor != nil && c.Ceiling != nil && c.Floor.GreaterThan(*c.Ceiling) {
		return fmt.Errorf("floor %s is above ceiling %s", c.Floor, c.Ceiling)
	}
	for name, v := range map[string]*decimal.Decimal{
		"multiplier": c.Multiplier, "flat": c.FlatPrice, "floor": c.Floor,
		"ceiling": c.Ceiling, "default_price": c.DefaultPrice,
	} {
		if v != nil && v.IsNegative() {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if _, err := ParseRoundingMode(string(c.Rounding)); err != nil {
		return err
	}
	return nil
}

// Profile is a named strategy and configuration.
type Profile struct {
	Name     string
	Strategy Strategy
	Config   Config
}

// Profiles maps profile names to profiles.
type Profiles map[string]Profile

// Names returns the profile names in sorted order.
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named profile.
func (p Profiles) Get(name string) (Profile, error) {
	profile, ok := p[name]
	if !ok {
		return Profile{}, fmt.Errorf("pricing profile %q not found (available: %s)", name, strings.Join(p.Names(), ", "))
	}
	return profile, nil
}

// ProfileSpec is the textual form of a Profile as written in YAML or config.
type ProfileSpec struct {
	Strategy        string `yaml:"strategy"`
	Condition       string `yaml:"condition"`
	Limit           int    `yaml:"limit"`
	IncludeShipping bool   `yaml:"include_shipping"`
	Multiplier      string `yaml:"multiplier"`
	Flat            string `yaml:"flat"`
	Floor           string `yaml:"floor"`
	Ceiling         string `yaml:"ceiling"`
	Rounding        string `yaml:"rounding"`
	DefaultPrice    string `yaml:"default_price"`
	Concurrency     int    `yaml:"concurrency"`
	Delay           string `yaml:"delay"`
}

type profilesFile struct {
	Profiles map[string]ProfileSpec `yaml:"profiles"`
}

// LoadProfiles reads pricing profiles from a YAML file.
func LoadProfiles(path string) (Profiles, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pricing profiles: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseProfiles(f)
}

// ParseProfiles decodes pricing profiles:
//
//	profiles:
//	  quick-sale:
//	    strategy: min_of
//	    condition: used
//	    floor: "4.00"
//	    rounding: ".99"
func ParseProfiles(r io.Reader) (Profiles, error) {
	var file profilesFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode pricing profiles: %w", err)
	}

	profiles := make(Profiles, len(file.Profiles))
	for name, raw := range file.Profiles {
		profile, err := raw.Build(name)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		profiles[name] = profile
	}
	return profiles, nil
}

// Build parses the profile definition into a validated Profile.
func (p ProfileSpec) Build(name string) (Profile, error) {
	strategy := ActiveListings
	if p.Strategy != "" {
		s, err := ParseStrategy(p.Strategy)
		if err != nil {
			return Profile{}, err
		}
		strategy = s
	}

	rounding, err := ParseRoundingMode(p.Rounding)
	if err != nil {
		return Profile{}, err
	}

	cfg := Config{
		Condition:       p.Condition,
		Limit:           p.Limit,
		IncludeShipping: p.IncludeShipping,
		Rounding:        rounding,
		Concurrency:     p.Concurrency,
	}

	fields := []struct {
		name string
		raw  string
		dst  **decimal.Decimal
	}{
		{"multiplier", p.Multiplier, &cfg.Multiplier},
		{"flat", p.Flat, &cfg.FlatPrice},
		{"floor", p.Floor, &cfg.Floor},
		{"ceiling", p.Ceiling, &cfg.Ceiling},
		{"default_price", p.DefaultPrice, &cfg.DefaultPrice},
	}
	for _, f := range fields {
		d, err := ParseOptionalDecimal(f.raw)
		if err != nil {
			return Profile{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}

	if p.Delay != "" {
		delay, err := time.ParseDuration(p.Delay)
		if err != nil {
			return Profile{}, fmt.Errorf("delay: %w", err)
		}
		cfg.Delay = delay
	}

	if err := cfg.Validate(); err != nil {
		return Profile{}, err
	}

	return Profile{Name: name, Strategy: strategy, Config: cfg}, nil
}

// ParseOptionalDecimal parses s, returning nil for blank input.
func ParseOptionalDecimal(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
