package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/xraph/tally/id"
)

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscriber
	logger *slog.Logger
}

type subscriber struct {
	id      id.ID
	handler Handler
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ID  id.ID
	bus *Bus
}

// Cancel removes the subscription. It is safe to call more than once.
func (s Subscription) Cancel() {
	if s.bus != nil {
		s.bus.Unsubscribe(s.ID)
	}
}

// NewBus creates an empty bus. A nil logger uses slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers h and returns its handle.
func (b *Bus) Subscribe(h Handler) Subscription {
	sid := id.NewObserverID()

	b.mu.Lock()
	// Copy on write so Publish can iterate without holding the lock.
	next := make([]subscriber, len(b.subs), len(b.subs)+1)
	copy(next, b.subs)
	b.subs = append(next, subscriber{id: sid, handler: h})
	b.mu.Unlock()

	b.logger.Debug("event subscriber added", "subscription_id", sid.String())
	return Subscription{ID: sid, bus: b}
}

// Unsubscribe removes the subscription with the given ID and reports whether
// it existed.
func (b *Bus) Unsubscribe(sid id.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id.String() == sid.String() {
			next := make([]subscriber, 0, len(b.subs)-1)
			next = append(next, b.subs[:i]...)
			next = append(next, b.subs[i+1:]...)
			b.subs = next
			return true
		}
	}
	return false
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers e to every subscriber. A failing or panicking handler is
// logged and does not stop delivery to the others.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		if err := b.dispatch(ctx, s, e); err != nil {
			b.logger.Error("event handler failed",
				"subscription_id", s.id.String(),
				"event_id", e.ID.String(),
				"kind", string(e.Kind),
				"feature", e.Feature,
				"error", err,
			)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, s subscriber, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"subscription_id", s.id.String(),
				"kind", string(e.Kind),
				"panic", r,
			)
		}
	}()

	return s.handler.Handle(ctx, e)
}
