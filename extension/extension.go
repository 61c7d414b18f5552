// Package extension provides the Forge extension adapter for tally.
//
// It implements the forge.Extension interface to integrate the usage
// tracker into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tally" or "tally" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/tally"
	"github.com/xraph/tally/period"
	"github.com/xraph/tally/policy"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/store/redis"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tally"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Usage tracking and tier-based feature gating"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the tally tracker as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	tracker     *tally.Tracker
	store       store.Store
	policy      *policy.Policy
	trackerOpts []tally.Option
}

// New creates a new tally Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tracker returns the underlying tracker.
// This is nil until Register is called.
func (e *Extension) Tracker() *tally.Tracker { return e.tracker }

// Register implements [forge.Extension]. It loads configuration, builds the
// tracker and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*tally.Tracker, error) {
		return e.tracker, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.tracker == nil {
		return errors.New("tally: extension not initialized")
	}

	if err := e.tracker.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.tracker != nil {
		if err := e.tracker.Stop(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tally: store not initialized")
	}
	return e.store.Ping(ctx)
}

// build validates the resolved config and constructs the store, policy and
// tracker.
func (e *Extension) build() error {
	if err := e.config.Validate(); err != nil {
		return err
	}

	if e.policy == nil {
		p, err := e.loadPolicy()
		if err != nil {
			return err
		}
		e.policy = p
	}

	if e.store == nil {
		e.store = e.buildStore()
	}

	e.tracker = tally.New(e.policy, e.store, e.buildTrackerOpts()...)
	return nil
}

func (e *Extension) loadPolicy() (*policy.Policy, error) {
	if e.config.PolicyFile == "" {
		return policy.Default(), nil
	}
	p, err := policy.LoadFile(e.config.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("tally: load policy: %w", err)
	}
	return p, nil
}

// buildStore constructs the configured backend.
func (e *Extension) buildStore() store.Store {
	ns := store.WithNamespace(e.config.Namespace)
	switch e.config.Backend {
	case BackendRedis:
		return redis.New(goredis.NewClient(&goredis.Options{Addr: e.config.RedisAddr}), ns)
	default:
		return memory.New(ns)
	}
}

// buildTrackerOpts constructs tally.Option values from the resolved config.
func (e *Extension) buildTrackerOpts() []tally.Option {
	opts := make([]tally.Option, 0, len(e.trackerOpts)+5)

	if e.config.Period != "" {
		opts = append(opts, tally.WithPeriod(period.Period(e.config.Period)))
	}
	if e.config.ApproachingThreshold > 0 {
		opts = append(opts, tally.WithApproachingThreshold(e.config.ApproachingThreshold))
	}
	if e.config.PersistTimeout > 0 {
		opts = append(opts, tally.WithPersistTimeout(e.config.PersistTimeout))
	}
	if e.config.LenientFeatures {
		opts = append(opts, tally.WithLenientFeatures())
	}
	if e.config.DisableMigrate {
		opts = append(opts, tally.WithDisableMigrate())
	}

	// Append any pass-through tracker options.
	opts = append(opts, e.trackerOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tally: configuration is required but not found in config files; " +
				"ensure 'extensions.tally' or 'tally' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tally: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("period", e.config.Period),
		forge.F("approaching_threshold", e.config.ApproachingThreshold),
		forge.F("persist_timeout", e.config.PersistTimeout),
		forge.F("policy_file", e.config.PolicyFile),
		forge.F("namespace", e.config.Namespace),
		forge.F("backend", e.config.Backend),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.tally", "tally"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("tally: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("tally: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Period == "" {
		cfg.Period = defaults.Period
	}
	if cfg.ApproachingThreshold == 0 {
		cfg.ApproachingThreshold = defaults.ApproachingThreshold
	}
	if cfg.PersistTimeout == 0 {
		cfg.PersistTimeout = defaults.PersistTimeout
	}
	if cfg.Namespace == "" {
		cfg.Namespace = defaults.Namespace
	}
	if cfg.Backend == "" {
		cfg.Backend = defaults.Backend
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.LenientFeatures {
		yamlConfig.LenientFeatures = true
	}

	if yamlConfig.Period == "" {
		yamlConfig.Period = programmaticConfig.Period
	}
	if yamlConfig.ApproachingThreshold == 0 {
		yamlConfig.ApproachingThreshold = programmaticConfig.ApproachingThreshold
	}
	if yamlConfig.PersistTimeout == 0 {
		yamlConfig.PersistTimeout = programmaticConfig.PersistTimeout
	}
	if yamlConfig.PolicyFile == "" {
		yamlConfig.PolicyFile = programmaticConfig.PolicyFile
	}
	if yamlConfig.Namespace == "" {
		yamlConfig.Namespace = programmaticConfig.Namespace
	}
	if yamlConfig.Backend == "" {
		yamlConfig.Backend = programmaticConfig.Backend
		yamlConfig.RedisAddr = programmaticConfig.RedisAddr
	}

	return mergeWithDefaults(yamlConfig)
}
