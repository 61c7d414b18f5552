package subscription

import (
	"context"
	"time"

	"github.com/xraph/tally/tier"
)

// Resolver returns the tier of the current user.
type Resolver interface {
	Resolve(ctx context.Context) (tier.Tier, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context) (tier.Tier, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context) (tier.Tier, error) { return f(ctx) }

// Static always resolves to the same tier.
type Static tier.Tier

// Resolve returns the fixed tier.
func (s Static) Resolve(context.Context) (tier.Tier, error) { return tier.Tier(s), nil }

// Source reports the current purchase state. A nil Entitlement means the user
// has never purchased.
type Source interface {
	Current(ctx context.Context) (*Entitlement, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Entitlement, error)

// Current calls f.
func (f SourceFunc) Current(ctx context.Context) (*Entitlement, error) { return f(ctx) }

// FromSource builds a Resolver that evaluates src at the clock's now.
// A nil clock uses time.Now.
func FromSource(src Source, clock func() time.Time) Resolver {
	if clock == nil {
		clock = time.Now
	}
	return ResolverFunc(func(ctx context.Context) (tier.Tier, error) {
		ent, err := src.Current(ctx)
		if err != nil {
			return tier.Seeker, err
		}
		return ent.Effective(clock()), nil
	})
}

var (
	_ Resolver = Static(tier.Seeker)
	_ Resolver = ResolverFunc(nil)
	_ Source   = SourceFunc(nil)
)
