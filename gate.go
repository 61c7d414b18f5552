package tally

import (
	"context"
	"sync"

	"github.com/xraph/tally/event"
)

// featureGate serializes the changes of one feature and delivers their
// events in change order. Events are queued under mu and delivered after it
// is released, so observers may call back into the tracker.
type featureGate struct {
	mu sync.Mutex

	outMu    sync.Mutex
	pending  []event.Event
	draining bool
}

// enqueue queues e for delivery. Callers hold mu.
func (g *featureGate) enqueue(e event.Event) {
	g.outMu.Lock()
	g.pending = append(g.pending, e)
	g.outMu.Unlock()
}

// deliver publishes queued events. When another caller is already
// delivering, including a re-entrant call from an observer, it returns at
// once and the active caller drains the queue before returning.
func (g *featureGate) deliver(ctx context.Context, bus *event.Bus) {
	g.outMu.Lock()
	if g.draining {
		g.outMu.Unlock()
		return
	}
	g.draining = true
	for len(g.pending) > 0 {
		batch := g.pending
		g.pending = nil
		g.outMu.Unlock()

		for _, e := range batch {
			bus.Publish(ctx, e)
		}

		g.outMu.Lock()
	}
	g.draining = false
	g.outMu.Unlock()
}
