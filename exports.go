package tally

import (
	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/policy"
	"github.com/xraph/tally/tier"
)

// Re-export common types so callers rarely need the leaf packages.

// Tier is re-exported from the tier package.
type Tier = tier.Tier

// Tiers of the reading app.
const (
	Seeker = tier.Seeker
	Mystic = tier.Mystic
	Oracle = tier.Oracle
)

// Limit is re-exported from the policy package.
type Limit = policy.Limit

// Unlimited marks a feature without a cap.
const Unlimited = policy.Unlimited

// Snapshot is re-exported from the entitlement package.
type Snapshot = entitlement.Snapshot

// Summary is re-exported from the entitlement package.
type Summary = entitlement.Summary

// Event is re-exported from the event package.
type Event = event.Event

// Handler is re-exported from the event package.
type Handler = event.Handler

// HandlerFunc is re-exported from the event package.
type HandlerFunc = event.HandlerFunc

// Subscription is re-exported from the event package.
type Subscription = event.Subscription
