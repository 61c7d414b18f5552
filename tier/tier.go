// Package tier defines the ordered subscription levels that govern feature limits.
package tier

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTier is returned when a tier name cannot be parsed.
var ErrUnknownTier = errors.New("tally: unknown tier")

// Tier is a subscription level. Tiers are ordered: a higher value grants at
// least everything a lower value grants.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type Tier int

const (
	// Seeker is the free tier.
	Seeker Tier = iota
	// Mystic is the mid tier.
	Mystic
	// Oracle is the premium tier.
	Oracle
)

// Generic aliases for the tarot-flavoured names.
const (
	Free    = Seeker
	Mid     = Mystic
	Premium = Oracle
)

var names = [...]string{
	Seeker: "seeker",
	Mystic: "mystic",
	Oracle: "oracle",
}

var aliases = map[string]Tier{
	"seeker":  Seeker,
	"free":    Seeker,
	"mystic":  Mystic,
	"mid":     Mystic,
	"oracle":  Oracle,
	"premium": Oracle,
}

// All returns every tier in ascending order.
func All() []Tier {
	return []Tier{Seeker, Mystic, Oracle}
}

// Parse converts a tier name or alias (case-insensitive) into a Tier.
func Parse(s string) (Tier, error) {
	if t, ok := aliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return Seeker, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// MustParse is like Parse but panics on error. Use for hardcoded tier names.
func MustParse(s string) Tier {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Valid reports whether t is one of the declared tiers.
func (t Tier) Valid() bool {
	return t >= Seeker && t <= Oracle
}

// AtLeast reports whether t grants at least what other grants.
func (t Tier) AtLeast(other Tier) bool {
	return t >= other
}

// String returns the canonical tier name.
func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return names[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, int(t))
	}
	return []byte(names[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
