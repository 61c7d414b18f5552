package tally

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/tally/period"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/subscription"
)

// DefaultApproachingThreshold is the share of a limit at which a feature
// counts as approaching it.
const DefaultApproachingThreshold = 0.8

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
		t.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(t *Tracker) {
		if err := t.plugins.Register(p); err != nil {
			t.optErrs.Add(err)
		}
	}
}

// WithClock sets the wall clock used for period computation.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithPeriod sets the counting window (default monthly).
func WithPeriod(p period.Period) Option {
	return func(t *Tracker) {
		if !p.Valid() {
			t.optErrs.Add(ValidationError{Field: "period", Message: fmt.Sprintf("unknown period %q", p)})
			return
		}
		t.period = p
	}
}

// WithApproachingThreshold sets the share of a limit, in (0, 1], at which
// IsApproachingLimit turns true (default 0.8).
func WithApproachingThreshold(threshold float64) Option {
	return func(t *Tracker) {
		if !validThreshold(threshold) {
			t.optErrs.Add(fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold))
			return
		}
		t.threshold = threshold
	}
}

// WithPersistTimeout bounds each write-behind flush (default 5s).
func WithPersistTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.persistTimeout = d
		}
	}
}

// WithResolver sets the source of the current user's tier used by
// CurrentTier and Can.
func WithResolver(r subscription.Resolver) Option {
	return func(t *Tracker) { t.resolver = r }
}

// WithLenientFeatures makes checks on unknown features log and report the
// feature as denied instead of returning an error. Record drops them.
func WithLenientFeatures() Option {
	return func(t *Tracker) { t.lenient = true }
}

// WithDisableMigrate stops Start from running the store's migrations.
func WithDisableMigrate() Option {
	return func(t *Tracker) { t.skipMigrate = true }
}

func validThreshold(v float64) bool {
	return v > 0 && v <= 1
}
