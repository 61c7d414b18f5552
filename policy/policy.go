// Package policy maps (tier, feature) pairs to monthly limits.
//
// A Policy is static configuration: it is built once at process start,
// validated, and never mutated afterwards. Lookups are pure.
package policy

import (
	"errors"
	"sort"
	"strings"

	"github.com/xraph/tally/tier"
)

// Policy is an immutable, validated limit table.
type Policy struct {
	limits   map[tier.Tier]map[string]Limit
	features []string
	tiers    []tier.Tier
}

// New validates table and returns an immutable Policy built from a copy of it.
// Every feature declared for one tier must be declared for every tier in the
// table, so LimitFor is total over the declared domain.
func New(table Table) (*Policy, error) {
	if len(table) == 0 {
		return nil, ValidationError{Message: "no tiers declared"}
	}

	featureSet := make(map[string]struct{})
	var errs []error

	for t, features := range table {
		if !t.Valid() {
			errs = append(errs, ValidationError{Tier: t, Message: "unknown tier"})
			continue
		}
		for key, limit := range features {
			if key == "" {
				errs = append(errs, ValidationError{Tier: t, Feature: key, Message: "empty feature key"})
				continue
			}
			if strings.HasPrefix(key, "_") {
				errs = append(errs, ValidationError{Tier: t, Feature: key, Message: "feature keys starting with '_' are reserved"})
				continue
			}
			if !limit.Valid() {
				errs = append(errs, ValidationError{Tier: t, Feature: key, Message: "limit must be >= 0 or unlimited"})
				continue
			}
			featureSet[key] = struct{}{}
		}
	}

	p := &Policy{limits: make(map[tier.Tier]map[string]Limit, len(table))}
	for key := range featureSet {
		p.features = append(p.features, key)
	}
	sort.Strings(p.features)

	for t, features := range table {
		if !t.Valid() {
			continue
		}
		p.tiers = append(p.tiers, t)
		row := make(map[string]Limit, len(features))
		for _, key := range p.features {
			limit, ok := features[key]
			if !ok {
				errs = append(errs, ValidationError{Tier: t, Feature: key, Message: "feature not declared for tier"})
				continue
			}
			row[key] = limit
		}
		p.limits[t] = row
	}
	sort.Slice(p.tiers, func(i, j int) bool { return p.tiers[i] < p.tiers[j] })

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return p, nil
}

// MustNew is like New but panics on error. Use for hardcoded tables.
func MustNew(table Table) *Policy {
	p, err := New(table)
	if err != nil {
		panic(err)
	}
	return p
}

// Default returns the policy built from DefaultTable.
func Default() *Policy {
	return MustNew(DefaultTable())
}

// LimitFor returns the limit of feature under t.
func (p *Policy) LimitFor(t tier.Tier, feature string) (Limit, error) {
	row, ok := p.limits[t]
	if !ok {
		if !p.Has(feature) {
			return 0, &UnknownFeatureError{Feature: feature, Tier: t}
		}
		return 0, ErrUnknownTier
	}
	limit, ok := row[feature]
	if !ok {
		return 0, &UnknownFeatureError{Feature: feature, Tier: t}
	}
	return limit, nil
}

// Has reports whether feature is registered.
func (p *Policy) Has(feature string) bool {
	i := sort.SearchStrings(p.features, feature)
	return i < len(p.features) && p.features[i] == feature
}

// Features returns the registered feature keys in sorted order.
func (p *Policy) Features() []string {
	out := make([]string, len(p.features))
	copy(out, p.features)
	return out
}

// Tiers returns the tiers the policy covers in ascending order.
func (p *Policy) Tiers() []tier.Tier {
	out := make([]tier.Tier, len(p.tiers))
	copy(out, p.tiers)
	return out
}

// Table returns a copy of the underlying limit table.
func (p *Policy) Table() Table {
	out := make(Table, len(p.limits))
	for t, row := range p.limits {
		cp := make(map[string]Limit, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out[t] = cp
	}
	return out
}
