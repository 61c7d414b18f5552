package usage

import (
	"log/slog"
	"time"

	"github.com/xraph/tally/period"
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock sets the wall clock used to compute the current period.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithPeriod sets the counting window (default monthly).
func WithPeriod(p period.Period) Option {
	return func(l *Ledger) { l.period = p }
}

// WithWriteTimeout bounds each flush to the store (default 5s).
func WithWriteTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.writeTimeout = d }
}

// WithErrorHandler is called for every failed durable write, after logging.
func WithErrorHandler(fn func(err *PersistenceError)) Option {
	return func(l *Ledger) { l.onError = fn }
}

// WithFlushHandler is called after every flush that wrote at least one key.
func WithFlushHandler(fn func(keys int, elapsed time.Duration)) Option {
	return func(l *Ledger) { l.onFlush = fn }
}

// WithKeys declares the feature keys a reset must zero in the store even when
// they have no in-memory count.
func WithKeys(keys ...string) Option {
	return func(l *Ledger) { l.keys = append(l.keys, keys...) }
}
