// Package audithook bridges tracker events to an audit trail backend.
//
// It defines a local Recorder interface so callers can plug in any audit
// sink with a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnInit               = (*Extension)(nil)
	_ plugin.OnShutdown           = (*Extension)(nil)
	_ plugin.OnUsageRecorded      = (*Extension)(nil)
	_ plugin.OnPeriodRolledOver   = (*Extension)(nil)
	_ plugin.OnUsageFlushed       = (*Extension)(nil)
	_ plugin.OnPersistFailed      = (*Extension)(nil)
	_ plugin.OnEntitlementChecked = (*Extension)(nil)
	_ plugin.OnLimitReached       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	ID         id.ID          `json:"id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension records tracker events through a Recorder.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		enabled:  defaultActions(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit implements plugin.OnInit.
func (e *Extension) OnInit(ctx context.Context, _ any) error {
	return e.record(ctx, ActionTrackerStarted, SeverityInfo, OutcomeSuccess,
		ResourceTracker, "", CategoryLifecycle, nil)
}

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionTrackerStopped, SeverityInfo, OutcomeSuccess,
		ResourceTracker, "", CategoryLifecycle, nil)
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (e *Extension) OnUsageRecorded(ctx context.Context, feature string, count int64) error {
	return e.record(ctx, ActionUsageRecorded, SeverityInfo, OutcomeSuccess,
		ResourceUsage, feature, CategoryUsage, nil,
		"feature", feature,
		"count", count,
	)
}

// OnPeriodRolledOver implements plugin.OnPeriodRolledOver.
func (e *Extension) OnPeriodRolledOver(ctx context.Context, from, to time.Time) error {
	return e.record(ctx, ActionPeriodReset, SeverityInfo, OutcomeSuccess,
		ResourcePeriod, to.Format(time.DateOnly), CategoryUsage, nil,
		"from", from,
		"to", to,
	)
}

// OnUsageFlushed implements plugin.OnUsageFlushed.
func (e *Extension) OnUsageFlushed(ctx context.Context, keys int, elapsed time.Duration) error {
	return e.record(ctx, ActionUsageFlushed, SeverityInfo, OutcomeSuccess,
		ResourceUsage, "", CategoryStorage, nil,
		"keys", keys,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnPersistFailed implements plugin.OnPersistFailed.
func (e *Extension) OnPersistFailed(ctx context.Context, key string, err error) error {
	return e.record(ctx, ActionPersistFailed, SeverityError, OutcomeFailure,
		ResourceUsage, key, CategoryStorage, err,
		"key", key,
	)
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked implements plugin.OnEntitlementChecked. Denied checks
// are recorded as ActionEntitlementDenied.
func (e *Extension) OnEntitlementChecked(ctx context.Context, snap entitlement.Snapshot) error {
	action, severity, outcome := ActionEntitlementChecked, SeverityInfo, OutcomeSuccess
	if !snap.Allowed() {
		action, severity, outcome = ActionEntitlementDenied, SeverityWarning, OutcomeFailure
	}
	return e.record(ctx, action, severity, outcome,
		ResourceEntitlement, snap.Feature, CategoryAccess, nil,
		"feature", snap.Feature,
		"tier", snap.Tier.String(),
		"current", snap.Current,
		"limit", int64(snap.Limit),
	)
}

// OnLimitReached implements plugin.OnLimitReached.
func (e *Extension) OnLimitReached(ctx context.Context, snap entitlement.Snapshot) error {
	return e.record(ctx, ActionLimitReached, SeverityWarning, OutcomeSuccess,
		ResourceEntitlement, snap.Feature, CategoryAccess, nil,
		"feature", snap.Feature,
		"tier", snap.Tier.String(),
		"current", snap.Current,
		"limit", int64(snap.Limit),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled. Recorder
// failures are logged, never returned.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		ID:         id.NewAuditID(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
