package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tally/entitlement"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry holds registered plugins and dispatches hooks to them.
// Hook implementations are cached per interface at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit               []OnInit
	onShutdown           []OnShutdown
	onUsageRecorded      []OnUsageRecorded
	onPeriodRolledOver   []OnPeriodRolledOver
	onUsageFlushed       []OnUsageFlushed
	onPersistFailed      []OnPersistFailed
	onEntitlementChecked []OnEntitlementChecked
	onLimitReached       []OnLimitReached
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin and caches the hooks it implements. Names must be
// unique.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnUsageRecorded); ok {
		r.onUsageRecorded = append(r.onUsageRecorded, v)
		hooks = append(hooks, "OnUsageRecorded")
	}
	if v, ok := p.(OnPeriodRolledOver); ok {
		r.onPeriodRolledOver = append(r.onPeriodRolledOver, v)
		hooks = append(hooks, "OnPeriodRolledOver")
	}
	if v, ok := p.(OnUsageFlushed); ok {
		r.onUsageFlushed = append(r.onUsageFlushed, v)
		hooks = append(hooks, "OnUsageFlushed")
	}
	if v, ok := p.(OnPersistFailed); ok {
		r.onPersistFailed = append(r.onPersistFailed, v)
		hooks = append(hooks, "OnPersistFailed")
	}
	if v, ok := p.(OnEntitlementChecked); ok {
		r.onEntitlementChecked = append(r.onEntitlementChecked, v)
		hooks = append(hooks, "OnEntitlementChecked")
	}
	if v, ok := p.(OnLimitReached); ok {
		r.onLimitReached = append(r.onLimitReached, v)
		hooks = append(hooks, "OnLimitReached")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)

	return nil
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins in registration order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// HasEntitlementChecked reports whether any plugin observes checks, so callers
// can skip building snapshots nobody reads.
func (r *Registry) HasEntitlementChecked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.onEntitlementChecked) > 0
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, t any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnInit", func() error { return p.OnInit(ctx, t) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnShutdown", func() error { return p.OnShutdown(ctx) })
	}
}

// EmitUsageRecorded emits a usage recorded event.
func (r *Registry) EmitUsageRecorded(ctx context.Context, feature string, count int64) {
	r.mu.RLock()
	plugins := r.onUsageRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnUsageRecorded", func() error {
			return p.OnUsageRecorded(ctx, feature, count)
		})
	}
}

// EmitPeriodRolledOver emits a period rollover event.
func (r *Registry) EmitPeriodRolledOver(ctx context.Context, from, to time.Time) {
	r.mu.RLock()
	plugins := r.onPeriodRolledOver
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnPeriodRolledOver", func() error {
			return p.OnPeriodRolledOver(ctx, from, to)
		})
	}
}

// EmitUsageFlushed emits a usage flushed event.
func (r *Registry) EmitUsageFlushed(ctx context.Context, keys int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onUsageFlushed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnUsageFlushed", func() error {
			return p.OnUsageFlushed(ctx, keys, elapsed)
		})
	}
}

// EmitPersistFailed emits a persistence failure event.
func (r *Registry) EmitPersistFailed(ctx context.Context, key string, err error) {
	r.mu.RLock()
	plugins := r.onPersistFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnPersistFailed", func() error {
			return p.OnPersistFailed(ctx, key, err)
		})
	}
}

// EmitEntitlementChecked emits an entitlement checked event.
func (r *Registry) EmitEntitlementChecked(ctx context.Context, snap entitlement.Snapshot) {
	r.mu.RLock()
	plugins := r.onEntitlementChecked
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnEntitlementChecked", func() error {
			return p.OnEntitlementChecked(ctx, snap)
		})
	}
}

// EmitLimitReached emits a limit reached event.
func (r *Registry) EmitLimitReached(ctx context.Context, snap entitlement.Snapshot) {
	r.mu.RLock()
	plugins := r.onLimitReached
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnLimitReached", func() error {
			return p.OnLimitReached(ctx, snap)
		})
	}
}

func (r *Registry) call(ctx context.Context, name, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, name, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", name,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout so a slow plugin
// cannot stall usage recording.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
