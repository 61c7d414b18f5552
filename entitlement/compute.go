package entitlement

import (
	"time"

	"github.com/xraph/tally/policy"
	"github.com/xraph/tally/tier"
)

// Input carries everything Compute needs.
type Input struct {
	Feature     string
	Tier        tier.Tier
	Current     int64
	Limit       policy.Limit
	Threshold   float64
	PeriodStart time.Time
}

// Compute derives a Snapshot from a counter and its limit.
//
// An unlimited feature is never approaching or reached, has Remaining -1 and
// Percentage 0. A zero limit is reached at zero usage with Percentage 100.
// Percentage is capped at 100. A reached limit also counts as approaching.
func Compute(in Input) Snapshot {
	s := Snapshot{
		Feature:     in.Feature,
		Tier:        in.Tier,
		Current:     in.Current,
		Limit:       in.Limit,
		Threshold:   in.Threshold,
		PeriodStart: in.PeriodStart,
	}

	if in.Limit.IsUnlimited() {
		s.Unlimited = true
		s.Remaining = -1
		return s
	}

	limit := int64(in.Limit)
	s.Remaining = max(limit-in.Current, 0)
	s.ReachedLimit = in.Current >= limit
	s.Percentage = Percentage(in.Current, in.Limit)
	s.ApproachingLimit = Approaching(in.Current, in.Limit, in.Threshold)
	return s
}

// Percentage returns current as a share of limit in [0, 100].
func Percentage(current int64, limit policy.Limit) float64 {
	switch {
	case limit.IsUnlimited():
		return 0
	case limit == 0:
		return 100
	}
	return min(float64(current)/float64(limit)*100, 100)
}

// Approaching reports whether current/limit has reached threshold.
func Approaching(current int64, limit policy.Limit, threshold float64) bool {
	switch {
	case limit.IsUnlimited():
		return false
	case limit == 0:
		return true
	}
	return float64(current)/float64(limit) >= threshold
}
