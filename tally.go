package tally

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/period"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/policy"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/tier"
	"github.com/xraph/tally/usage"
)

// Tracker is the usage tracking and feature gating engine.
type Tracker struct {
	policy  *policy.Policy
	ledger  *usage.Ledger
	store   usage.Store
	plugins *plugin.Registry
	bus     *event.Bus
	logger  *slog.Logger

	clock          func() time.Time
	period         period.Period
	threshold      float64
	persistTimeout time.Duration
	resolver       subscription.Resolver
	lenient        bool
	skipMigrate    bool
	optErrs        MultiError

	// One gate per policy feature; the set is fixed at construction.
	gates    map[string]*featureGate
	features []string

	// With a store, rollover checks wait until persisted state has loaded,
	// so a reset never stamps a new period over unread counts.
	ready       atomic.Bool
	loadMu      sync.Mutex
	lastAttempt time.Time
	loadErr     error
	startOnce   sync.Once
	stopOnce    sync.Once
}

// loadRetryInterval spaces the load retries made by lazy access. Resume
// always retries.
const loadRetryInterval = 30 * time.Second

// New creates a Tracker. A nil policy uses policy.Default(); a nil store
// keeps usage in memory only. Option errors are reported by Start.
func New(p *policy.Policy, store usage.Store, opts ...Option) *Tracker {
	if p == nil {
		p = policy.Default()
	}

	t := &Tracker{
		policy:         p,
		store:          store,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		clock:          time.Now,
		period:         period.Monthly,
		threshold:      DefaultApproachingThreshold,
		persistTimeout: 5 * time.Second,
		features:       p.Features(),
	}

	for _, opt := range opts {
		opt(t)
	}

	t.bus = event.NewBus(t.logger)
	t.gates = make(map[string]*featureGate, len(t.features))
	for _, f := range t.features {
		t.gates[f] = &featureGate{}
	}

	t.ledger = usage.New(store,
		usage.WithLogger(t.logger),
		usage.WithClock(t.clock),
		usage.WithPeriod(t.period),
		usage.WithKeys(t.features...),
		usage.WithWriteTimeout(t.persistTimeout),
		usage.WithErrorHandler(func(err *usage.PersistenceError) {
			t.plugins.EmitPersistFailed(context.Background(), err.Key, err)
		}),
		usage.WithFlushHandler(func(keys int, elapsed time.Duration) {
			t.plugins.EmitUsageFlushed(context.Background(), keys, elapsed)
		}),
	)

	if store == nil {
		t.ready.Store(true)
	}

	return t
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

type migrator interface {
	Migrate(ctx context.Context) error
}

type closer interface {
	Close() error
}

// Start loads persisted usage, starts the background writer and runs the
// rollover check. Store failures are logged and the tracker continues with
// in-memory counters; only invalid options make Start fail.
func (t *Tracker) Start(ctx context.Context) error {
	if t.optErrs.HasErrors() {
		return t.optErrs
	}

	t.startOnce.Do(func() {
		if m, ok := t.store.(migrator); ok && !t.skipMigrate {
			if err := m.Migrate(ctx); err != nil {
				t.logger.Error("tally: store migration failed", "error", err)
			}
		}

		t.ledger.Start()
		_ = t.load(ctx, true) //nolint:errcheck // logged by load
		t.rollover(ctx)

		t.plugins.EmitInit(ctx, t)

		t.logger.Info("tally tracker started",
			"features", len(t.features),
			"period", string(t.period),
			"threshold", t.threshold,
			"persistent", t.store != nil,
			"loaded", t.ready.Load(),
		)
	})

	return nil
}

// Resume retries a failed load and runs the rollover check. Call it when the
// app returns to the foreground.
func (t *Tracker) Resume(ctx context.Context) period.Rollover {
	_ = t.load(ctx, true) //nolint:errcheck // logged by load
	return t.rollover(ctx)
}

// Loaded reports whether persisted usage has been read. It is always true
// without a store.
func (t *Tracker) Loaded() bool { return t.ready.Load() }

// Stop flushes pending writes, stops the writer and closes the store when it
// is closable.
func (t *Tracker) Stop(ctx context.Context) error {
	var errs []error
	t.stopOnce.Do(func() {
		// Counts recorded while the store was unreadable are written only
		// once the stored values are known.
		_ = t.load(ctx, true) //nolint:errcheck // logged by load
		if err := t.ledger.Close(ctx); err != nil {
			errs = append(errs, err)
		}

		t.plugins.EmitShutdown(ctx)

		if c, ok := t.store.(closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}

		t.logger.Info("tally tracker stopped")
	})
	return errors.Join(errs...)
}

// Flush synchronously writes pending counter changes. It first retries a
// failed load; until one succeeds nothing is written.
func (t *Tracker) Flush(ctx context.Context) error {
	if err := t.load(ctx, true); err != nil {
		return err
	}
	t.rollover(ctx)
	return t.ledger.Flush(ctx)
}

// ──────────────────────────────────────────────────
// Checks
// ──────────────────────────────────────────────────

// IsWithinLimit reports whether one more use of feature is allowed for tr.
func (t *Tracker) IsWithinLimit(ctx context.Context, tr tier.Tier, feature string) (bool, error) {
	snap, err := t.check(ctx, tr, feature, t.threshold)
	if err != nil {
		return false, err
	}
	return snap.Allowed(), nil
}

// Remaining returns how many uses of feature are left for tr, or -1 when the
// feature is unlimited.
func (t *Tracker) Remaining(ctx context.Context, tr tier.Tier, feature string) (int64, error) {
	snap, err := t.check(ctx, tr, feature, t.threshold)
	if err != nil {
		return 0, err
	}
	return snap.Remaining, nil
}

// IsApproachingLimit reports whether usage of feature has reached the
// configured share of its limit. A reached limit also counts as approaching.
func (t *Tracker) IsApproachingLimit(ctx context.Context, tr tier.Tier, feature string) (bool, error) {
	snap, err := t.check(ctx, tr, feature, t.threshold)
	if err != nil {
		return false, err
	}
	return snap.ApproachingLimit, nil
}

// IsApproachingLimitAt is IsApproachingLimit with an explicit threshold.
func (t *Tracker) IsApproachingLimitAt(ctx context.Context, tr tier.Tier, feature string, threshold float64) (bool, error) {
	if !validThreshold(threshold) {
		return false, ErrInvalidThreshold
	}
	snap, err := t.check(ctx, tr, feature, threshold)
	if err != nil {
		return false, err
	}
	return snap.ApproachingLimit, nil
}

// ReachedLimit reports whether usage of feature is at or above its limit.
func (t *Tracker) ReachedLimit(ctx context.Context, tr tier.Tier, feature string) (bool, error) {
	snap, err := t.check(ctx, tr, feature, t.threshold)
	if err != nil {
		return false, err
	}
	return snap.ReachedLimit, nil
}

// Snapshot returns the full entitlement state of feature for tr.
func (t *Tracker) Snapshot(ctx context.Context, tr tier.Tier, feature string) (entitlement.Snapshot, error) {
	return t.check(ctx, tr, feature, t.threshold)
}

// Summary returns a snapshot of every policy feature for tr.
func (t *Tracker) Summary(ctx context.Context, tr tier.Tier) (*entitlement.Summary, error) {
	t.rollover(ctx)

	s := &entitlement.Summary{
		Tier:        tr,
		PeriodStart: t.ledger.LastResetPeriodStart(),
		Features:    make(map[string]entitlement.Snapshot, len(t.features)),
	}
	for _, f := range t.features {
		snap, err := t.compute(tr, f, t.threshold)
		if err != nil {
			return nil, err
		}
		s.Features[f] = snap
	}
	return s, nil
}

// CurrentTier resolves the current user's tier. Without a resolver, or when
// the resolver fails, it returns tier.Seeker.
func (t *Tracker) CurrentTier(ctx context.Context) tier.Tier {
	if t.resolver == nil {
		return tier.Seeker
	}
	tr, err := t.resolver.Resolve(ctx)
	if err != nil {
		t.logger.Warn("tally: resolving tier failed, using seeker", "error", err)
		return tier.Seeker
	}
	if !tr.Valid() {
		t.logger.Warn("tally: resolver returned an invalid tier, using seeker", "tier", int(tr))
		return tier.Seeker
	}
	return tr
}

// Can reports whether the current user may use feature once more.
func (t *Tracker) Can(ctx context.Context, feature string) (bool, error) {
	return t.IsWithinLimit(ctx, t.CurrentTier(ctx), feature)
}

func (t *Tracker) check(ctx context.Context, tr tier.Tier, feature string, threshold float64) (entitlement.Snapshot, error) {
	t.rollover(ctx)

	snap, err := t.compute(tr, feature, threshold)
	if err != nil {
		if !t.lenient || !IsUnknownFeature(err) {
			return entitlement.Snapshot{}, err
		}
		t.logger.Warn("tally: unknown feature treated as denied",
			"feature", feature,
			"tier", tr.String(),
		)
		snap = entitlement.Compute(entitlement.Input{
			Feature:     feature,
			Tier:        tr,
			Limit:       0,
			Threshold:   threshold,
			PeriodStart: t.ledger.LastResetPeriodStart(),
		})
	}

	t.plugins.EmitEntitlementChecked(ctx, snap)
	return snap, nil
}

func (t *Tracker) compute(tr tier.Tier, feature string, threshold float64) (entitlement.Snapshot, error) {
	limit, err := t.policy.LimitFor(tr, feature)
	if err != nil {
		return entitlement.Snapshot{}, err
	}
	return entitlement.Compute(entitlement.Input{
		Feature:     feature,
		Tier:        tr,
		Current:     t.ledger.Get(feature),
		Limit:       limit,
		Threshold:   threshold,
		PeriodStart: t.ledger.LastResetPeriodStart(),
	}), nil
}

// ──────────────────────────────────────────────────
// Recording
// ──────────────────────────────────────────────────

// Record counts one use of feature and returns the new count. It reports
// usage and never enforces a limit; it fails only for unknown features.
func (t *Tracker) Record(ctx context.Context, feature string) (int64, error) {
	g, ok := t.gates[feature]
	if !ok {
		err := &policy.UnknownFeatureError{Feature: feature}
		if t.lenient {
			t.logger.Warn("tally: dropping usage of unknown feature", "feature", feature)
			return 0, nil
		}
		return 0, err
	}

	t.rollover(ctx)

	g.mu.Lock()
	n := t.ledger.Increment(feature)
	g.enqueue(event.New(event.KindRecorded, feature, n, t.ledger.LastResetPeriodStart(), t.clock()))
	g.mu.Unlock()
	g.deliver(ctx, t.bus)

	t.plugins.EmitUsageRecorded(ctx, feature, n)

	if t.resolver != nil {
		tr := t.CurrentTier(ctx)
		if limit, err := t.policy.LimitFor(tr, feature); err == nil && !limit.IsUnlimited() && n == int64(limit) {
			t.plugins.EmitLimitReached(ctx, entitlement.Compute(entitlement.Input{
				Feature:     feature,
				Tier:        tr,
				Current:     n,
				Limit:       limit,
				Threshold:   t.threshold,
				PeriodStart: t.ledger.LastResetPeriodStart(),
			}))
		}
	}

	return n, nil
}

// Reset clears every counter and stamps the current period.
func (t *Tracker) Reset(ctx context.Context) {
	t.lockAll()
	from := t.ledger.LastResetPeriodStart()
	t.ledger.ResetAll()
	t.enqueueLocked(event.KindReset)
	t.unlockAll()
	t.deliverAll(ctx)

	t.plugins.EmitPeriodRolledOver(ctx, from, t.ledger.LastResetPeriodStart())
}

// ──────────────────────────────────────────────────
// Observers
// ──────────────────────────────────────────────────

// Subscribe registers h for change notifications.
func (t *Tracker) Subscribe(h event.Handler) event.Subscription {
	return t.bus.Subscribe(h)
}

// Unsubscribe removes a subscription and reports whether it existed.
func (t *Tracker) Unsubscribe(sid id.ID) bool {
	return t.bus.Unsubscribe(sid)
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Policy returns the entitlement policy.
func (t *Tracker) Policy() *policy.Policy { return t.policy }

// Plugins returns the plugin registry.
func (t *Tracker) Plugins() *plugin.Registry { return t.plugins }

// Threshold returns the configured approaching threshold.
func (t *Tracker) Threshold() float64 { return t.threshold }

// PeriodStart returns the start of the period the counters belong to.
func (t *Tracker) PeriodStart() time.Time { return t.ledger.LastResetPeriodStart() }

// ──────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────

// rollover resets the counters when the clock has moved into a new period.
// Concurrent callers perform at most one reset.
func (t *Tracker) rollover(ctx context.Context) period.Rollover {
	if t.load(ctx, false) != nil {
		return period.Rollover{}
	}

	current, last := t.ledger.CurrentPeriodStart(), t.ledger.LastResetPeriodStart()
	if current.Equal(last) {
		return period.Rollover{From: last, To: current}
	}

	t.lockAll()
	r := period.Check(t.ledger)
	if r.Reset {
		t.enqueueLocked(event.KindReset)
	}
	t.unlockAll()
	t.deliverAll(ctx)

	if r.Reset {
		t.logger.Info("tally: usage period rolled over",
			"from", r.From,
			"to", r.To,
		)
		t.plugins.EmitPeriodRolledOver(ctx, r.From, r.To)
	}
	return r
}

// load reads persisted usage once. It returns nil when the tracker is ready
// and the last load error otherwise. Failed attempts are retried by later
// calls; lazy callers (force false) retry at most every loadRetryInterval.
func (t *Tracker) load(ctx context.Context, force bool) error {
	if t.ready.Load() {
		return nil
	}

	t.loadMu.Lock()
	defer t.loadMu.Unlock()

	if t.ready.Load() {
		return nil
	}
	now := time.Now()
	if !force && now.Sub(t.lastAttempt) < loadRetryInterval {
		return t.loadErr
	}
	t.lastAttempt = now

	if err := t.ledger.Load(ctx); err != nil {
		t.loadErr = err
		t.logger.Warn("tally: loading usage failed, continuing in memory", "error", err)
		t.plugins.EmitPersistFailed(ctx, "", err)
		return err
	}

	t.loadErr = nil
	t.ready.Store(true)
	t.lockAll()
	t.enqueueLocked(event.KindLoaded)
	t.unlockAll()
	t.deliverAll(ctx)

	t.logger.Info("tally: persisted usage loaded")
	return nil
}

// enqueueLocked queues one event per feature. Callers hold every lock.
func (t *Tracker) enqueueLocked(kind event.Kind) {
	start, now := t.ledger.LastResetPeriodStart(), t.clock()
	for _, f := range t.features {
		t.gates[f].enqueue(event.New(kind, f, t.ledger.Get(f), start, now))
	}
}

func (t *Tracker) deliverAll(ctx context.Context) {
	for _, f := range t.features {
		t.gates[f].deliver(ctx, t.bus)
	}
}

// lockAll takes every feature lock in sorted key order.
func (t *Tracker) lockAll() {
	for _, f := range t.features {
		t.gates[f].mu.Lock()
	}
}

func (t *Tracker) unlockAll() {
	for i := len(t.features) - 1; i >= 0; i-- {
		t.gates[t.features[i]].mu.Unlock()
	}
}
