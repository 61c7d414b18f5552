package audithook

// Action constants for audit events.
const (
	// Usage actions
	ActionUsageRecorded = "usage.recorded"
	ActionUsageFlushed  = "usage.flushed"
	ActionPeriodReset   = "period.reset"
	ActionPersistFailed = "usage.persist_failed"

	// Entitlement actions
	ActionEntitlementChecked = "entitlement.checked"
	ActionEntitlementDenied  = "entitlement.denied"
	ActionLimitReached       = "limit.reached"

	// Lifecycle actions
	ActionTrackerStarted = "tracker.started"
	ActionTrackerStopped = "tracker.stopped"
)

// Resource constants for audit events.
const (
	ResourceUsage       = "usage"
	ResourcePeriod      = "period"
	ResourceEntitlement = "entitlement"
	ResourceTracker     = "tracker"
)

// Category constants for audit events.
const (
	CategoryUsage     = "usage"
	CategoryAccess    = "access"
	CategoryLifecycle = "lifecycle"
	CategoryStorage   = "storage"
)

// Severity levels for audit events.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
