package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithEnabledActions restricts auditing to the given actions.
// If not called, every action except ActionUsageRecorded and
// ActionEntitlementChecked is audited.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool)
		for _, action := range actions {
			e.enabled[action] = true
		}
	}
}

// WithDisabledActions removes actions from the audited set.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		for _, action := range actions {
			delete(e.enabled, action)
		}
	}
}

// defaultActions leaves out the per-call actions, which are high volume.
func defaultActions() map[string]bool {
	return map[string]bool{
		ActionUsageFlushed:      true,
		ActionPeriodReset:       true,
		ActionPersistFailed:     true,
		ActionEntitlementDenied: true,
		ActionLimitReached:      true,
		ActionTrackerStarted:    true,
		ActionTrackerStopped:    true,
	}
}
