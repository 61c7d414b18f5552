// Package subscription adapts the app's purchase state into a tier.
//
// Tier determination (store receipts, restore, trial handling) lives outside
// tally; this package only consumes its output.
package subscription

import (
	"time"

	"github.com/xraph/tally/tier"
)

// Status is the lifecycle state reported by the purchase provider.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusGrace    Status = "grace_period"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
	StatusPaused   Status = "paused"
)

// Grants reports whether a subscription in status s unlocks its tier.
func (s Status) Grants() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusGrace:
		return true
	default:
		return false
	}
}

// Entitlement is the purchase state of the current user.
type Entitlement struct {
	Tier      tier.Tier  `json:"tier"`
	Status    Status     `json:"status"`
	ProductID string     `json:"product_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Effective returns the tier granted at now. Entitlements that are not in a
// granting status, or that have expired, fall back to tier.Seeker.
func (e *Entitlement) Effective(now time.Time) tier.Tier {
	if e == nil || !e.Status.Grants() || !e.Tier.Valid() {
		return tier.Seeker
	}
	if e.ExpiresAt != nil && !now.Before(*e.ExpiresAt) {
		return tier.Seeker
	}
	return e.Tier
}
