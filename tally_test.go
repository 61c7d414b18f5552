package tally_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/period"
	"github.com/xraph/tally/policy"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/tier"
	"github.com/xraph/tally/usage"
)

const (
	readings = policy.FeatureReadings
	manual   = policy.FeatureManualInterpretations
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func jan15() time.Time { return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) }

func startTracker(t *testing.T, s usage.Store, opts ...tally.Option) *tally.Tracker {
	t.Helper()
	tr := tally.New(nil, s, opts...)
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { _ = tr.Stop(context.Background()) })
	return tr
}

// recorder is a plugin that counts the hooks it receives.
type recorder struct {
	recorded     atomic.Int64
	rolledOver   atomic.Int64
	persistFails atomic.Int64
	checks       atomic.Int64
	limits       atomic.Int64
	inits        atomic.Int64
	shutdowns    atomic.Int64

	mu      sync.Mutex
	reached []entitlement.Snapshot
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnInit(context.Context, any) error {
	r.inits.Add(1)
	return nil
}

func (r *recorder) OnShutdown(context.Context) error {
	r.shutdowns.Add(1)
	return nil
}

func (r *recorder) OnUsageRecorded(context.Context, string, int64) error {
	r.recorded.Add(1)
	return nil
}

func (r *recorder) OnPeriodRolledOver(context.Context, time.Time, time.Time) error {
	r.rolledOver.Add(1)
	return nil
}

func (r *recorder) OnPersistFailed(context.Context, string, error) error {
	r.persistFails.Add(1)
	return nil
}

func (r *recorder) OnEntitlementChecked(context.Context, entitlement.Snapshot) error {
	r.checks.Add(1)
	return nil
}

func (r *recorder) OnLimitReached(_ context.Context, snap entitlement.Snapshot) error {
	r.limits.Add(1)
	r.mu.Lock()
	r.reached = append(r.reached, snap)
	r.mu.Unlock()
	return nil
}

// ──────────────────────────────────────────────────
// Checks
// ──────────────────────────────────────────────────

func TestSeekerReachesManualInterpretationLimit(t *testing.T) {
	ctx := context.Background()
	c := newClock(jan15())
	tr := startTracker(t, nil, tally.WithClock(c.Now))

	for i := 0; i < 4; i++ {
		_, err := tr.Record(ctx, manual)
		require.NoError(t, err)
	}

	ok, err := tr.IsWithinLimit(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, err := tr.Remaining(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)

	approaching, err := tr.IsApproachingLimit(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.True(t, approaching)

	reached, err := tr.ReachedLimit(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.False(t, reached)

	n, err := tr.Record(ctx, manual)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	ok, err = tr.IsWithinLimit(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err = tr.Remaining(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)

	reached, err = tr.ReachedLimit(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.True(t, reached)

	// Mystic allows 15 on the same counter.
	ok, err = tr.IsWithinLimit(ctx, tier.Mystic, manual)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEveryLimitIsReachedAtItsValue(t *testing.T) {
	ctx := context.Background()
	p := policy.Default()

	for _, tr := range p.Tiers() {
		for _, feature := range p.Features() {
			limit, err := p.LimitFor(tr, feature)
			require.NoError(t, err)
			if limit.IsUnlimited() {
				continue
			}

			t.Run(tr.String()+"/"+feature, func(t *testing.T) {
				trk := startTracker(t, nil, tally.WithClock(newClock(jan15()).Now))

				for i := int64(0); i < int64(limit); i++ {
					ok, err := trk.IsWithinLimit(ctx, tr, feature)
					require.NoError(t, err)
					require.True(t, ok, "use %d", i+1)

					_, err = trk.Record(ctx, feature)
					require.NoError(t, err)
				}

				snap, err := trk.Snapshot(ctx, tr, feature)
				require.NoError(t, err)
				assert.True(t, snap.ReachedLimit)
				assert.False(t, snap.Allowed())
				assert.Zero(t, snap.Remaining)

				// Recording past the limit is counted and stays reached.
				n, err := trk.Record(ctx, feature)
				require.NoError(t, err)
				assert.Equal(t, int64(limit)+1, n)

				reached, err := trk.ReachedLimit(ctx, tr, feature)
				require.NoError(t, err)
				assert.True(t, reached)
			})
		}
	}
}

func TestManualInterpretationScenario(t *testing.T) {
	ctx := context.Background()
	tr := startTracker(t, nil, tally.WithClock(newClock(jan15()).Now))

	for i := 0; i < 3; i++ {
		_, err := tr.Record(ctx, manual)
		require.NoError(t, err)
	}

	remaining, err := tr.Remaining(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.Equal(t, int64(2), remaining)

	approaching, err := tr.IsApproachingLimitAt(ctx, tier.Seeker, manual, 0.8)
	require.NoError(t, err)
	assert.False(t, approaching)

	for i := 0; i < 2; i++ {
		_, err := tr.Record(ctx, manual)
		require.NoError(t, err)
	}

	snap, err := tr.Snapshot(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.True(t, snap.ApproachingLimit)
	assert.True(t, snap.ReachedLimit)
	assert.Equal(t, int64(0), snap.Remaining)
	assert.Equal(t, float64(100), snap.Percentage)

	_, err = tr.Record(ctx, manual)
	require.NoError(t, err)
	reached, err := tr.ReachedLimit(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.True(t, reached)
}

func TestRecordDoesNotEnforce(t *testing.T) {
	ctx := context.Background()
	tr := startTracker(t, nil, tally.WithClock(newClock(jan15()).Now))

	var n int64
	var err error
	for i := 0; i < 12; i++ {
		n, err = tr.Record(ctx, readings)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(12), n)

	remaining, err := tr.Remaining(ctx, tier.Seeker, readings)
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
}

func TestUnlimitedFeature(t *testing.T) {
	ctx := context.Background()
	tr := startTracker(t, nil, tally.WithClock(newClock(jan15()).Now))

	for i := 0; i < 1000; i++ {
		_, err := tr.Record(ctx, readings)
		require.NoError(t, err)
	}

	snap, err := tr.Snapshot(ctx, tier.Mystic, readings)
	require.NoError(t, err)
	assert.True(t, snap.Unlimited)
	assert.True(t, snap.Allowed())
	assert.Equal(t, int64(-1), snap.Remaining)
	assert.Equal(t, int64(1000), snap.Current)
	assert.False(t, snap.ApproachingLimit)
	assert.False(t, snap.ReachedLimit)
	assert.Zero(t, snap.Percentage)
}

func TestUnknownFeature(t *testing.T) {
	ctx := context.Background()
	tr := startTracker(t, nil)

	_, err := tr.Record(ctx, "tarot_decks")
	require.Error(t, err)
	assert.True(t, tally.IsUnknownFeature(err))

	_, err = tr.IsWithinLimit(ctx, tier.Seeker, "tarot_decks")
	assert.ErrorIs(t, err, tally.ErrUnknownFeature)
}

func TestLenientFeatures(t *testing.T) {
	ctx := context.Background()
	tr := startTracker(t, nil, tally.WithLenientFeatures())

	n, err := tr.Record(ctx, "tarot_decks")
	require.NoError(t, err)
	assert.Zero(t, n)

	ok, err := tr.IsWithinLimit(ctx, tier.Oracle, "tarot_decks")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApproachingThreshold(t *testing.T) {
	ctx := context.Background()
	tr := startTracker(t, nil, tally.WithApproachingThreshold(0.5))
	assert.Equal(t, 0.5, tr.Threshold())

	for i := 0; i < 2; i++ {
		_, err := tr.Record(ctx, manual)
		require.NoError(t, err)
	}

	approaching, err := tr.IsApproachingLimit(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.False(t, approaching)

	approaching, err = tr.IsApproachingLimitAt(ctx, tier.Seeker, manual, 0.4)
	require.NoError(t, err)
	assert.True(t, approaching)

	_, err = tr.IsApproachingLimitAt(ctx, tier.Seeker, manual, 1.5)
	assert.ErrorIs(t, err, tally.ErrInvalidThreshold)
}

func TestInvalidOptionsFailStart(t *testing.T) {
	tr := tally.New(nil, nil,
		tally.WithApproachingThreshold(0),
		tally.WithPeriod(period.Period("weekly")),
	)

	err := tr.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, tally.ErrInvalidThreshold)
	assert.ErrorIs(t, err, tally.ErrInvalidInput)
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	tr := startTracker(t, nil, tally.WithClock(newClock(jan15()).Now))

	_, err := tr.Record(ctx, readings)
	require.NoError(t, err)

	sum, err := tr.Summary(ctx, tier.Seeker)
	require.NoError(t, err)
	assert.Equal(t, []string{manual, readings}, sum.Keys())

	snap, ok := sum.Get(readings)
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.Current)
	assert.Equal(t, int64(9), snap.Remaining)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), sum.PeriodStart)
}

// ──────────────────────────────────────────────────
// Current tier
// ──────────────────────────────────────────────────

func TestCurrentTierWithoutResolver(t *testing.T) {
	tr := startTracker(t, nil)
	assert.Equal(t, tier.Seeker, tr.CurrentTier(context.Background()))
}

func TestCanUsesResolvedTier(t *testing.T) {
	ctx := context.Background()
	tr := startTracker(t, nil, tally.WithResolver(subscription.Static(tier.Oracle)))

	for i := 0; i < 20; i++ {
		_, err := tr.Record(ctx, manual)
		require.NoError(t, err)
	}

	ok, err := tr.Can(ctx, manual)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFailingResolverFallsBackToSeeker(t *testing.T) {
	tr := startTracker(t, nil, tally.WithResolver(subscription.ResolverFunc(
		func(context.Context) (tier.Tier, error) {
			return tier.Oracle, errors.New("store offline")
		},
	)))
	assert.Equal(t, tier.Seeker, tr.CurrentTier(context.Background()))
}

// ──────────────────────────────────────────────────
// Rollover
// ──────────────────────────────────────────────────

func TestRolloverAcrossMonthBoundary(t *testing.T) {
	ctx := context.Background()
	c := newClock(jan15())
	rec := &recorder{}
	tr := startTracker(t, nil, tally.WithClock(c.Now), tally.WithPlugin(rec))

	for i := 0; i < 5; i++ {
		_, err := tr.Record(ctx, manual)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	var resets []event.Event
	tr.Subscribe(event.HandlerFunc(func(_ context.Context, e event.Event) error {
		if e.Kind == event.KindReset {
			mu.Lock()
			resets = append(resets, e)
			mu.Unlock()
		}
		return nil
	}))

	c.Set(time.Date(2026, 2, 1, 0, 0, 1, 0, time.UTC))

	remaining, err := tr.Remaining(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.Equal(t, int64(5), remaining)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), tr.PeriodStart())

	// A second check in the same period does not reset again.
	_, err = tr.Record(ctx, manual)
	require.NoError(t, err)
	r := tr.Resume(ctx)
	assert.False(t, r.Reset)

	remaining, err = tr.Remaining(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.Equal(t, int64(4), remaining)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, resets, 2)
	for _, e := range resets {
		assert.Zero(t, e.Count)
	}
	// One rollover at Start, one at the month boundary.
	assert.Equal(t, int64(2), rec.rolledOver.Load())
}

func TestExplicitReset(t *testing.T) {
	ctx := context.Background()
	tr := startTracker(t, nil)

	_, err := tr.Record(ctx, readings)
	require.NoError(t, err)

	tr.Reset(ctx)

	snap, err := tr.Snapshot(ctx, tier.Seeker, readings)
	require.NoError(t, err)
	assert.Zero(t, snap.Current)
}

// ──────────────────────────────────────────────────
// Persistence
// ──────────────────────────────────────────────────

func TestUsageSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	c := newClock(jan15())
	s := memory.New()

	first := tally.New(nil, s, tally.WithClock(c.Now))
	require.NoError(t, first.Start(ctx))
	for i := 0; i < 3; i++ {
		_, err := first.Record(ctx, manual)
		require.NoError(t, err)
	}
	require.NoError(t, first.Stop(ctx))

	v, ok := s.Get(manual)
	require.True(t, ok)
	assert.Equal(t, int64(3), v)

	s.Reopen()
	second := startTracker(t, s, tally.WithClock(c.Now))

	remaining, err := second.Remaining(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.Equal(t, int64(2), remaining)
}

func TestStaleUsageIsResetAfterRestart(t *testing.T) {
	ctx := context.Background()
	c := newClock(jan15())
	s := memory.New()

	first := tally.New(nil, s, tally.WithClock(c.Now))
	require.NoError(t, first.Start(ctx))
	_, err := first.Record(ctx, manual)
	require.NoError(t, err)
	require.NoError(t, first.Stop(ctx))

	s.Reopen()
	c.Set(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	second := startTracker(t, s, tally.WithClock(c.Now))

	snap, err := second.Snapshot(ctx, tier.Seeker, manual)
	require.NoError(t, err)
	assert.Zero(t, snap.Current)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), snap.PeriodStart)
}

func TestPersistenceFailureKeepsCounting(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	rec := &recorder{}
	tr := startTracker(t, s, tally.WithPlugin(rec))

	s.FailWith(errors.New("disk full"))

	n, err := tr.Record(ctx, readings)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	err = tr.Flush(ctx)
	require.Error(t, err)
	assert.True(t, tally.IsPersistence(err))
	assert.True(t, tally.IsRetryable(err))
	assert.GreaterOrEqual(t, rec.persistFails.Load(), int64(1))

	snap, err := tr.Snapshot(ctx, tier.Seeker, readings)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Current)

	s.FailWith(nil)
	require.NoError(t, tr.Flush(ctx))
	v, ok := s.Get(readings)
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
}

func TestLoadFailureStartsInMemory(t *testing.T) {
	ctx := context.Background()
	c := newClock(jan15())
	s := memory.New()
	require.NoError(t, s.Write(ctx, usage.LastResetKey, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix()))
	require.NoError(t, s.Write(ctx, readings, 4))
	s.FailWith(errors.New("unreachable"))

	tr := tally.New(nil, s, tally.WithClock(c.Now))
	require.NoError(t, tr.Start(ctx))
	assert.False(t, tr.Loaded())

	n, err := tr.Record(ctx, readings)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Nothing is written over the unread values.
	err = tr.Flush(ctx)
	require.Error(t, err)
	assert.True(t, tally.IsPersistence(err))
	s.FailWith(nil)
	v, _ := s.Get(readings)
	assert.Equal(t, int64(4), v)

	// Once the store is back the stored count and the local one are merged.
	require.NoError(t, tr.Flush(ctx))
	assert.True(t, tr.Loaded())
	v, _ = s.Get(readings)
	assert.Equal(t, int64(5), v)

	require.NoError(t, tr.Stop(ctx))
	s.Reopen()

	again := startTracker(t, s, tally.WithClock(c.Now))
	snap, err := again.Snapshot(ctx, tier.Oracle, readings)
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.Current)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), snap.PeriodStart)
}

func TestFailedLoadDoesNotResetStoredPeriod(t *testing.T) {
	ctx := context.Background()
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		resume bool
	}{
		{name: "flushed after recovery"},
		{name: "resumed after recovery", resume: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClock(jan15())
			s := memory.New()

			first := tally.New(nil, s, tally.WithClock(c.Now))
			require.NoError(t, first.Start(ctx))
			for i := 0; i < 4; i++ {
				_, err := first.Record(ctx, manual)
				require.NoError(t, err)
			}
			require.NoError(t, first.Stop(ctx))
			s.Reopen()

			c.Set(time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC))
			s.FailWith(errors.New("unreachable"))
			second := tally.New(nil, s, tally.WithClock(c.Now))
			require.NoError(t, second.Start(ctx))
			assert.False(t, second.Loaded())

			s.FailWith(nil)
			if tt.resume {
				second.Resume(ctx)
				assert.True(t, second.Loaded())
				assert.Equal(t, feb, second.PeriodStart())
			}
			require.NoError(t, second.Flush(ctx))
			require.NoError(t, second.Stop(ctx))
			s.Reopen()

			v, ok := s.Get(manual)
			require.True(t, ok)
			assert.Zero(t, v)

			third := startTracker(t, s, tally.WithClock(c.Now))
			snap, err := third.Snapshot(ctx, tier.Seeker, manual)
			require.NoError(t, err)
			assert.Zero(t, snap.Current)
			assert.Equal(t, feb, snap.PeriodStart)
		})
	}
}

// ──────────────────────────────────────────────────
// Concurrency and observers
// ──────────────────────────────────────────────────

func TestConcurrentRecordsAreNeverLost(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	tr := startTracker(t, s)

	const workers, perWorker = 16, 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := tr.Record(ctx, readings)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	snap, err := tr.Snapshot(ctx, tier.Oracle, readings)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), snap.Current)

	require.NoError(t, tr.Flush(ctx))
	v, _ := s.Get(readings)
	assert.Equal(t, int64(workers*perWorker), v)
}

func TestObserversSeeIncrementsInOrder(t *testing.T) {
	ctx := context.Background()
	tr := startTracker(t, nil)

	var mu sync.Mutex
	var seen []int64
	sub := tr.Subscribe(event.HandlerFunc(func(_ context.Context, e event.Event) error {
		if e.Kind == event.KindRecorded && e.Feature == readings {
			mu.Lock()
			seen = append(seen, e.Count)
			mu.Unlock()
		}
		return nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, _ = tr.Record(ctx, readings)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	require.Len(t, seen, 200)
	for i, v := range seen {
		assert.Equal(t, int64(i+1), v)
	}
	mu.Unlock()

	assert.True(t, tr.Unsubscribe(sub.ID))
	assert.False(t, tr.Unsubscribe(sub.ID))

	_, err := tr.Record(ctx, readings)
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, seen, 200)
	mu.Unlock()
}

func TestLoadedEventsArePublished(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Write(ctx, usage.LastResetKey, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix()))
	require.NoError(t, s.Write(ctx, manual, 2))

	tr := tally.New(nil, s, tally.WithClock(newClock(jan15()).Now))

	var mu sync.Mutex
	loaded := map[string]int64{}
	tr.Subscribe(event.HandlerFunc(func(_ context.Context, e event.Event) error {
		if e.Kind == event.KindLoaded {
			mu.Lock()
			loaded[e.Feature] = e.Count
			mu.Unlock()
		}
		return nil
	}))

	require.NoError(t, tr.Start(ctx))
	t.Cleanup(func() { _ = tr.Stop(ctx) })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int64{manual: 2, readings: 0}, loaded)
}

func TestObserversMayCallBackAcrossPeriodBoundary(t *testing.T) {
	ctx := context.Background()
	c := newClock(time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC))
	tr := startTracker(t, nil, tally.WithClock(c.Now))

	var mu sync.Mutex
	var summaries []*entitlement.Summary
	var counts []int64
	var nested atomic.Bool
	tr.Subscribe(event.HandlerFunc(func(ctx context.Context, e event.Event) error {
		if e.Kind != event.KindRecorded || e.Feature != manual {
			return nil
		}
		c.Set(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
		s, err := tr.Summary(ctx, tier.Seeker)
		if err != nil {
			return err
		}
		var n int64
		if nested.CompareAndSwap(false, true) {
			n, err = tr.Record(ctx, manual)
			if err != nil {
				return err
			}
		}
		mu.Lock()
		summaries = append(summaries, s)
		counts = append(counts, e.Count, n)
		mu.Unlock()
		return nil
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := tr.Record(ctx, manual)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Record did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, summaries, 2)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), summaries[0].PeriodStart)
	assert.Zero(t, summaries[0].Features[manual].Current)
	// The nested record is delivered after the outer one.
	assert.Equal(t, []int64{1, 1, 1, 0}, counts)
	assert.Equal(t, int64(1), summaries[1].Features[manual].Current)
}

// ──────────────────────────────────────────────────
// Plugins
// ──────────────────────────────────────────────────

func TestPluginHooks(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	tr := tally.New(nil, nil,
		tally.WithPlugin(rec),
		tally.WithResolver(subscription.Static(tier.Seeker)),
	)
	require.NoError(t, tr.Start(ctx))
	assert.Equal(t, 1, tr.Plugins().Count())

	for i := 0; i < 6; i++ {
		_, err := tr.Record(ctx, manual)
		require.NoError(t, err)
	}
	_, err := tr.Can(ctx, manual)
	require.NoError(t, err)

	require.NoError(t, tr.Stop(ctx))

	assert.Equal(t, int64(1), rec.inits.Load())
	assert.Equal(t, int64(1), rec.shutdowns.Load())
	assert.Equal(t, int64(6), rec.recorded.Load())
	assert.Equal(t, int64(1), rec.checks.Load())
	assert.Equal(t, int64(1), rec.limits.Load())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.reached, 1)
	assert.Equal(t, int64(5), rec.reached[0].Current)
	assert.True(t, rec.reached[0].ReachedLimit)
}

func TestDuplicatePluginFailsStart(t *testing.T) {
	tr := tally.New(nil, nil, tally.WithPlugin(&recorder{}), tally.WithPlugin(&recorder{}))
	assert.Error(t, tr.Start(context.Background()))
}

func TestStopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	tr := tally.New(nil, s)
	require.NoError(t, tr.Start(ctx))
	require.NoError(t, tr.Stop(ctx))
	require.NoError(t, tr.Stop(ctx))
}
