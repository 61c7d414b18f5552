// Package usage holds the per-feature counters of the current counting period.
//
// The Ledger keeps counts in memory and persists them write-behind: every
// mutation marks the touched keys dirty and wakes a single writer goroutine,
// which writes the latest absolute value of each dirty key to the Store.
// Absolute values make writes idempotent, so a crash between a mutation and
// its write can lose the most recent increment but never double count.
package usage

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xraph/tally/period"
)

// Ledger is a concurrency-safe set of usage counters backed by a Store.
type Ledger struct {
	mu        sync.RWMutex
	counts    map[string]int64
	keys      []string
	lastReset time.Time
	loaded    bool

	// Write-behind state, guarded by mu.
	dirty      map[string]struct{}
	resetDirty bool

	// Serializes flushes so writes reach the store in mutation order.
	flushMu sync.Mutex

	store        Store
	logger       *slog.Logger
	clock        func() time.Time
	period       period.Period
	writeTimeout time.Duration
	onError      func(*PersistenceError)
	onFlush      func(keys int, elapsed time.Duration)

	signal    chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a Ledger. A nil store keeps counts in memory only.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		counts:       make(map[string]int64),
		dirty:        make(map[string]struct{}),
		store:        store,
		logger:       slog.Default(),
		clock:        time.Now,
		period:       period.Monthly,
		writeTimeout: 5 * time.Second,
		signal:       make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// ──────────────────────────────────────────────────
// Counters
// ──────────────────────────────────────────────────

// Get returns the count of feature, or 0 if it was never recorded.
func (l *Ledger) Get(feature string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[feature]
}

// Counts returns a copy of every non-zero counter.
func (l *Ledger) Counts() map[string]int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]int64, len(l.counts))
	for k, v := range l.counts {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

// Increment adds one to feature and returns the new count. Concurrent calls
// never collapse into a single increment.
func (l *Ledger) Increment(feature string) int64 {
	l.mu.Lock()
	l.counts[feature]++
	n := l.counts[feature]
	l.dirty[feature] = struct{}{}
	l.mu.Unlock()

	l.wake()
	return n
}

// ResetAll clears every counter and stamps the current period as last reset.
func (l *Ledger) ResetAll() {
	l.mu.Lock()
	l.resetLocked()
	l.mu.Unlock()

	l.wake()
}

// CompareAndReset resets only if the last-reset stamp still equals expected.
// It reports whether a reset was performed.
func (l *Ledger) CompareAndReset(expected time.Time) bool {
	l.mu.Lock()
	if !l.lastReset.Equal(expected) {
		l.mu.Unlock()
		return false
	}
	l.resetLocked()
	l.mu.Unlock()

	l.wake()
	return true
}

func (l *Ledger) resetLocked() {
	// Persisted keys are zeroed explicitly; the store has no delete.
	for _, k := range l.keys {
		l.dirty[k] = struct{}{}
	}
	for k := range l.counts {
		l.dirty[k] = struct{}{}
	}
	l.counts = make(map[string]int64)
	l.lastReset = l.CurrentPeriodStart()
	l.resetDirty = true
}

// CurrentPeriodStart returns the start of the period containing the clock's now.
func (l *Ledger) CurrentPeriodStart() time.Time {
	return period.Start(l.clock(), l.period)
}

// LastResetPeriodStart returns the period start stamped by the last reset.
// It is the zero time before the first reset or load.
func (l *Ledger) LastResetPeriodStart() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastReset
}

// Loaded reports whether persisted state has been read.
func (l *Ledger) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// ──────────────────────────────────────────────────
// Persistence
// ──────────────────────────────────────────────────

// Load reads the persisted counters. The ledger starts empty; increments made
// before Load completes are added on top of the persisted values.
//
// Persisted counts are discarded when they belong to another period: either a
// local reset happened before the load, or the stored stamp is not the
// current period. In both cases every stored key is rewritten with the local
// value, so stale counts never survive under a newer stamp. Load is a no-op
// once it has succeeded.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		l.mu.Lock()
		l.loaded = true
		l.mu.Unlock()
		return nil
	}

	if l.Loaded() {
		return nil
	}

	values, err := l.store.ReadAll(ctx)
	if err != nil {
		return &PersistenceError{Op: "read", Err: err}
	}

	l.mu.Lock()
	if l.loaded {
		l.mu.Unlock()
		return nil
	}

	var stored time.Time
	if v, ok := values[LastResetKey]; ok {
		stored = time.Unix(v, 0).In(l.clock().Location())
	}

	current := l.CurrentPeriodStart()
	var discard bool
	switch {
	case !l.lastReset.IsZero():
		discard = !stored.Equal(l.lastReset)
	case !stored.Equal(current):
		discard = true
		l.lastReset = current
		l.resetDirty = true
	default:
		l.lastReset = stored
	}

	merged := 0
	for k, v := range values {
		if k == LastResetKey {
			continue
		}
		if discard {
			l.dirty[k] = struct{}{}
			continue
		}
		if v <= 0 {
			continue
		}
		if local := l.counts[k]; local > 0 {
			l.dirty[k] = struct{}{}
			merged++
		}
		l.counts[k] += v
	}
	l.loaded = true
	pending := len(l.dirty) > 0 || l.resetDirty
	l.mu.Unlock()

	l.logger.Debug("usage ledger loaded",
		"keys", len(values),
		"merged", merged,
		"discarded", discard,
	)

	if pending {
		l.wake()
	}
	return nil
}

// Start launches the background writer. It is safe to call more than once.
func (l *Ledger) Start() {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.writer()
	})
}

// Close stops the writer and performs a final flush.
func (l *Ledger) Close(ctx context.Context) error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stopCh)
		l.wg.Wait()
		err = l.Flush(ctx)
	})
	return err
}

// Flush synchronously writes every dirty key. Failed keys stay dirty and are
// retried by the next flush. Nothing is written until Load has succeeded.
func (l *Ledger) Flush(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	if !l.loaded {
		// Writing before the stored values were read would overwrite them.
		pending := len(l.dirty)
		l.mu.Unlock()
		if pending > 0 {
			l.logger.Debug("usage ledger flush deferred until load", "keys", pending)
		}
		return nil
	}
	batch := make(map[string]int64, len(l.dirty))
	for k := range l.dirty {
		batch[k] = l.counts[k]
	}
	stamp, writeStamp := l.lastReset, l.resetDirty
	l.dirty = make(map[string]struct{})
	l.resetDirty = false
	l.mu.Unlock()

	if len(batch) == 0 && !writeStamp {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.writeTimeout)
	defer cancel()

	start := time.Now()
	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	written := 0
	for _, k := range keys {
		if err := l.store.Write(ctx, k, batch[k]); err != nil {
			errs = append(errs, l.failed("write", k, err))
			continue
		}
		written++
	}

	// The stamp is written last: if counts were not zeroed durably, the old
	// stamp survives and the reset is redone after a restart.
	if writeStamp {
		switch {
		case len(errs) > 0:
			l.requeueStamp()
		default:
			if err := l.store.Write(ctx, LastResetKey, stamp.Unix()); err != nil {
				l.requeueStamp()
				errs = append(errs, l.failed("write", LastResetKey, err))
			} else {
				written++
			}
		}
	}

	elapsed := time.Since(start)
	if written > 0 && l.onFlush != nil {
		l.onFlush(written, elapsed)
	}

	l.logger.Debug("flushed usage ledger",
		"keys", written,
		"failed", len(errs),
		"elapsed_ms", elapsed.Milliseconds(),
	)

	return errors.Join(errs...)
}

func (l *Ledger) writer() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.signal:
			_ = l.Flush(context.Background()) //nolint:errcheck // failures are logged and requeued
		}
	}
}

// wake signals the writer without blocking; one pending signal is enough
// because a flush always takes every dirty key.
func (l *Ledger) wake() {
	if l.store == nil {
		return
	}
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *Ledger) failed(op, key string, err error) *PersistenceError {
	if key != LastResetKey {
		l.mu.Lock()
		l.dirty[key] = struct{}{}
		l.mu.Unlock()
	}

	pe := &PersistenceError{Op: op, Key: key, Err: err}
	l.logger.Error("usage ledger write failed",
		"key", key,
		"error", err,
	)
	if l.onError != nil {
		l.onError(pe)
	}
	return pe
}

func (l *Ledger) requeueStamp() {
	l.mu.Lock()
	l.resetDirty = true
	l.mu.Unlock()
}
