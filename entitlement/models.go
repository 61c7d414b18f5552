// Package entitlement computes point-in-time views of a feature's usage
// against its tier limit. Views are recomputed on every query and never stored.
package entitlement

import (
	"sort"
	"time"

	"github.com/xraph/tally/policy"
	"github.com/xraph/tally/tier"
)

// Snapshot is the entitlement state of one feature for one tier.
type Snapshot struct {
	Feature          string       `json:"feature"`
	Tier             tier.Tier    `json:"tier"`
	Current          int64        `json:"current"`
	Limit            policy.Limit `json:"limit"`
	Remaining        int64        `json:"remaining"`
	Percentage       float64      `json:"percentage"`
	Unlimited        bool         `json:"unlimited"`
	ApproachingLimit bool         `json:"approaching_limit"`
	ReachedLimit     bool         `json:"reached_limit"`
	Threshold        float64      `json:"threshold"`
	PeriodStart      time.Time    `json:"period_start"`
}

// Allowed reports whether one more use of the feature is within the limit.
func (s Snapshot) Allowed() bool {
	return s.Unlimited || s.Current < int64(s.Limit)
}

// Summary holds a snapshot of every feature for one tier.
type Summary struct {
	Tier        tier.Tier           `json:"tier"`
	PeriodStart time.Time           `json:"period_start"`
	Features    map[string]Snapshot `json:"features"`
}

// Get returns the snapshot of feature.
func (s *Summary) Get(feature string) (Snapshot, bool) {
	snap, ok := s.Features[feature]
	return snap, ok
}

// Keys returns the feature keys in sorted order.
func (s *Summary) Keys() []string {
	keys := make([]string, 0, len(s.Features))
	for k := range s.Features {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
