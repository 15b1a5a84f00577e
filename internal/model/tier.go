// Package model defines shared data structures.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Tier is a discrete difficulty level. Tiers are totally ordered.
type Tier int

// Difficulty tiers, in ascending order.
const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

// Tiers lists every tier from lowest to highest.
var Tiers = []Tier{TierLow, TierMedium, TierHigh}

// TierFromWire maps the backend integer encoding to a Tier.
// Unrecognized values map to TierMedium.
func TierFromWire(v int) Tier {
	switch v {
	case 0:
		return TierLow
	case 1:
		return TierMedium
	case 2:
		return TierHigh
	default:
		return TierMedium
	}
}

// Wire returns the backend integer encoding of the tier.
func (t Tier) Wire() int {
	return int(t)
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t >= TierLow && t <= TierHigh
}

func (t Tier) String() string {
	switch t {
	case TierLow:
		return "Low"
	case TierMedium:
		return "Medium"
	case TierHigh:
		return "High"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// ParseTier parses a tier name (low, medium, high) or its wire digit.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "baja", "0":
		return TierLow, nil
	case "medium", "media", "1":
		return TierMedium, nil
	case "high", "alta", "2":
		return TierHigh, nil
	default:
		return TierLow, fmt.Errorf("unknown tier %q", s)
	}
}

// TierConfig holds the round parameters for one tier.
type TierConfig struct {
	SignCount          int     `validate:"gt=0"`
	TimeLimit          float64 `validate:"gt=0"`
	ShowVisualAid      bool
	IncludeDistractors bool
	AllowRepetition    bool
}

// TimeLimitDuration returns the challenge time limit as a duration.
func (c TierConfig) TimeLimitDuration() time.Duration {
	return time.Duration(c.TimeLimit * float64(time.Second))
}

// TierConfigs holds one TierConfig per tier, indexed by Tier.
type TierConfigs [3]TierConfig

// DefaultTierConfigs returns the built-in per-tier configuration.
func DefaultTierConfigs() TierConfigs {
	return TierConfigs{
		TierLow:    {SignCount: 3, TimeLimit: 12, ShowVisualAid: true},
		TierMedium: {SignCount: 5, TimeLimit: 8, IncludeDistractors: true},
		TierHigh:   {SignCount: 7, TimeLimit: 5, IncludeDistractors: true, AllowRepetition: true},
	}
}

// For returns the config of the given tier. Unknown tiers fall back to Medium.
func (c TierConfigs) For(t Tier) TierConfig {
	if !t.Valid() {
		return c[TierMedium]
	}
	return c[t]
}

// Validate checks every tier config.
func (c TierConfigs) Validate() error {
	for _, t := range Tiers {
		if err := ValidateStruct(c[t]); err != nil {
			return fmt.Errorf("invalid %s tier config: %w", t, err)
		}
	}
	return nil
}

// ZoneBounds restricts the tier range allowed inside a zone.
type ZoneBounds struct {
	Min Tier
	Max Tier
}

// DefaultZoneBounds is used for zones that declare no bounds.
var DefaultZoneBounds = ZoneBounds{Min: TierLow, Max: TierMedium}

// Valid reports whether both ends are known tiers and Min <= Max.
func (b ZoneBounds) Valid() bool {
	return b.Min.Valid() && b.Max.Valid() && b.Min <= b.Max
}

// Clamp returns t forced into [Min, Max] with a single step.
func (b ZoneBounds) Clamp(t Tier) Tier {
	if t < b.Min {
		return b.Min
	}
	if t > b.Max {
		return b.Max
	}
	return t
}

// Tunables are the global game parameters the server may override.
type Tunables struct {
	RoundsPerZone       int     `validate:"gt=0"`
	MinRoundsToComplete int     `validate:"gte=0"`
	PassThreshold       float64 `validate:"gte=0,lte=1"`
}

// DefaultTunables returns the built-in game parameters.
func DefaultTunables() Tunables {
	return Tunables{
		RoundsPerZone:       6,
		MinRoundsToComplete: 4,
		PassThreshold:       0.70,
	}
}
