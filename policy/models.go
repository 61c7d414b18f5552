package policy

import (
	"strconv"

	"github.com/xraph/tally/tier"
)

// Limit is a monthly cap for a feature. Unlimited is the only negative value
// a Limit may hold.
type Limit int64

// Unlimited marks a feature that has no cap for a tier.
const Unlimited Limit = -1

// IsUnlimited reports whether l is the unlimited sentinel.
func (l Limit) IsUnlimited() bool { return l == Unlimited }

// Valid reports whether l is a non-negative cap or Unlimited.
func (l Limit) Valid() bool { return l >= 0 || l == Unlimited }

func (l Limit) String() string {
	if l.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(l), 10)
}

// Table maps each tier to its feature limits.
type Table map[tier.Tier]map[string]Limit

// Well-known feature keys of the reading app.
const (
	FeatureReadings              = "readings"
	FeatureManualInterpretations = "manual_interpretations"
)

// DefaultTable returns the built-in limits of the reading app.
func DefaultTable() Table {
	return Table{
		tier.Seeker: {
			FeatureReadings:              10,
			FeatureManualInterpretations: 5,
		},
		tier.Mystic: {
			FeatureReadings:              Unlimited,
			FeatureManualInterpretations: 15,
		},
		tier.Oracle: {
			FeatureReadings:              Unlimited,
			FeatureManualInterpretations: Unlimited,
		},
	}
}
