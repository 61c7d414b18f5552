package policy

import (
	"errors"
	"fmt"

	"github.com/xraph/tally/tier"
)

var (
	// ErrUnknownFeature is matched by every UnknownFeatureError.
	ErrUnknownFeature = errors.New("tally: unknown feature")

	// ErrUnknownTier is returned when the policy has no entry for a tier.
	ErrUnknownTier = tier.ErrUnknownTier

	// ErrInvalidPolicy is matched by every ValidationError.
	ErrInvalidPolicy = errors.New("tally: invalid policy")
)

// UnknownFeatureError reports a lookup for a feature key that was never
// registered. It is a programming error, not a user-facing condition.
type UnknownFeatureError struct {
	Feature string
	Tier    tier.Tier
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("tally: unknown feature %q for tier %s", e.Feature, e.Tier)
}

// Is makes errors.Is(err, ErrUnknownFeature) succeed.
func (e *UnknownFeatureError) Is(target error) bool {
	return target == ErrUnknownFeature
}

// ValidationError describes one problem found while building a policy.
type ValidationError struct {
	Tier    tier.Tier
	Feature string
	Message string
}

func (e ValidationError) Error() string {
	if e.Feature == "" {
		return fmt.Sprintf("tally: invalid policy for tier %s: %s", e.Tier, e.Message)
	}
	return fmt.Sprintf("tally: invalid policy for %s/%s: %s", e.Tier, e.Feature, e.Message)
}

// Is makes errors.Is(err, ErrInvalidPolicy) succeed.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidPolicy
}
