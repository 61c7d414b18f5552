// Package plugin lets callers hook into the tracker's lifecycle and usage
// events. A plugin implements Plugin plus any subset of the hook interfaces.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/tally/entitlement"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the tracker starts. t is the *tally.Tracker.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, t any) error
}

// OnShutdown is called when the tracker stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded is called after a feature counter was incremented.
type OnUsageRecorded interface {
	Plugin
	OnUsageRecorded(ctx context.Context, feature string, count int64) error
}

// OnPeriodRolledOver is called after the counters were reset for a new period.
type OnPeriodRolledOver interface {
	Plugin
	OnPeriodRolledOver(ctx context.Context, from, to time.Time) error
}

// OnUsageFlushed is called after dirty counters were written to the store.
type OnUsageFlushed interface {
	Plugin
	OnUsageFlushed(ctx context.Context, keys int, elapsed time.Duration) error
}

// OnPersistFailed is called when a durable write failed. The in-memory
// counter is unaffected and the write is retried.
type OnPersistFailed interface {
	Plugin
	OnPersistFailed(ctx context.Context, key string, err error) error
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked is called for every limit query.
type OnEntitlementChecked interface {
	Plugin
	OnEntitlementChecked(ctx context.Context, snap entitlement.Snapshot) error
}

// OnLimitReached is called when a recorded use brings a feature to its limit
// for the tier being checked.
type OnLimitReached interface {
	Plugin
	OnLimitReached(ctx context.Context, snap entitlement.Snapshot) error
}
