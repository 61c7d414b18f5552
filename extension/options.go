package extension

import (
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/policy"
	"github.com/xraph/tally/store"
)

// Option configures the tally Forge extension.
type Option func(*Extension)

// WithStore sets the store for the tracker. It takes precedence over
// Config.Backend.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPolicy sets the limit table. It takes precedence over Config.PolicyFile.
func WithPolicy(p *policy.Policy) Option {
	return func(e *Extension) {
		e.policy = p
	}
}

// WithTrackerOption passes a tally.Option through to the underlying tracker.
func WithTrackerOption(opt tally.Option) Option {
	return func(e *Extension) {
		e.trackerOpts = append(e.trackerOpts, opt)
	}
}

// WithPlugin registers a tracker plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.trackerOpts = append(e.trackerOpts, tally.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithPolicyFile loads the limit table from path.
func WithPolicyFile(path string) Option {
	return func(e *Extension) { e.config.PolicyFile = path }
}

// WithNamespace sets the store namespace.
func WithNamespace(ns string) Option {
	return func(e *Extension) { e.config.Namespace = ns }
}

// WithApproachingThreshold sets the approaching-limit threshold.
func WithApproachingThreshold(v float64) Option {
	return func(e *Extension) { e.config.ApproachingThreshold = v }
}

// WithPersistTimeout bounds each write to the store.
func WithPersistTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PersistTimeout = d }
}

// WithRedis selects the redis backend at addr.
func WithRedis(addr string) Option {
	return func(e *Extension) {
		e.config.Backend = BackendRedis
		e.config.RedisAddr = addr
	}
}
