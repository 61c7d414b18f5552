package policy

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/xraph/tally/tier"
)

// LimitsKey is the configuration key holding the limit table in policy files.
const LimitsKey = "limits"

// LoadFile reads a limit table from a YAML, JSON or TOML file. The file holds
// a "limits" map of tier name to feature limits, with -1 meaning unlimited:
//
//	limits:
//	  seeker:
//	    readings: 10
//	    manual_interpretations: 5
//	  mystic:
//	    readings: -1
func LoadFile(path string) (*Policy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("tally: read policy file %s: %w", path, err)
	}
	return FromViper(v)
}

// FromViper builds a policy from the "limits" key of an already loaded viper instance.
func FromViper(v *viper.Viper) (*Policy, error) {
	raw := make(map[string]map[string]int64)
	if err := v.UnmarshalKey(LimitsKey, &raw); err != nil {
		return nil, fmt.Errorf("tally: decode policy limits: %w", err)
	}
	return FromMap(raw)
}

// FromMap builds a policy from a tier-name keyed map, as found in config files.
func FromMap(raw map[string]map[string]int64) (*Policy, error) {
	table := make(Table, len(raw))
	for name, features := range raw {
		t, err := tier.Parse(name)
		if err != nil {
			return nil, err
		}
		row := make(map[string]Limit, len(features))
		for key, limit := range features {
			row[key] = Limit(limit)
		}
		table[t] = row
	}
	return New(table)
}
