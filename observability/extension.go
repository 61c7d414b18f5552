// Package observability provides a metrics plugin for the tracker that
// records usage, entitlement and persistence counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnUsageRecorded      = (*MetricsExtension)(nil)
	_ plugin.OnPeriodRolledOver   = (*MetricsExtension)(nil)
	_ plugin.OnUsageFlushed       = (*MetricsExtension)(nil)
	_ plugin.OnPersistFailed      = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementChecked = (*MetricsExtension)(nil)
	_ plugin.OnLimitReached       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records tracker metrics. Register it as a plugin.
type MetricsExtension struct {
	// Usage metrics
	UsageRecorded     Counter
	PeriodRollovers   Counter
	UsageFlushed      Counter
	UsageFlushLatency Histogram

	// Entitlement metrics
	EntitlementChecks      Counter
	EntitlementDenied      Counter
	EntitlementApproaching Counter
	LimitReached           Counter

	// Error metrics
	StoreErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		UsageRecorded:     factory.Counter("tally.usage.recorded"),
		PeriodRollovers:   factory.Counter("tally.period.rollovers"),
		UsageFlushed:      factory.Counter("tally.usage.flushed.keys"),
		UsageFlushLatency: factory.Histogram("tally.usage.flush.latency_ms"),

		EntitlementChecks:      factory.Counter("tally.entitlement.checks"),
		EntitlementDenied:      factory.Counter("tally.entitlement.denied"),
		EntitlementApproaching: factory.Counter("tally.entitlement.approaching"),
		LimitReached:           factory.Counter("tally.limit.reached"),

		StoreErrors: factory.Counter("tally.store.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(context.Context, any) error { return nil }

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (m *MetricsExtension) OnUsageRecorded(context.Context, string, int64) error {
	m.UsageRecorded.Inc()
	return nil
}

// OnPeriodRolledOver implements plugin.OnPeriodRolledOver.
func (m *MetricsExtension) OnPeriodRolledOver(context.Context, time.Time, time.Time) error {
	m.PeriodRollovers.Inc()
	return nil
}

// OnUsageFlushed implements plugin.OnUsageFlushed.
func (m *MetricsExtension) OnUsageFlushed(_ context.Context, keys int, elapsed time.Duration) error {
	m.UsageFlushed.Add(float64(keys))
	m.UsageFlushLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnPersistFailed implements plugin.OnPersistFailed.
func (m *MetricsExtension) OnPersistFailed(context.Context, string, error) error {
	m.StoreErrors.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked implements plugin.OnEntitlementChecked.
func (m *MetricsExtension) OnEntitlementChecked(_ context.Context, snap entitlement.Snapshot) error {
	m.EntitlementChecks.Inc()
	if !snap.Allowed() {
		m.EntitlementDenied.Inc()
	}
	if snap.ApproachingLimit && !snap.ReachedLimit {
		m.EntitlementApproaching.Inc()
	}
	return nil
}

// OnLimitReached implements plugin.OnLimitReached.
func (m *MetricsExtension) OnLimitReached(context.Context, entitlement.Snapshot) error {
	m.LimitReached.Inc()
	return nil
}
