// Package event carries usage change notifications to observers.
package event

import (
	"context"
	"time"

	"github.com/xraph/tally/id"
)

// Kind classifies a change notification.
type Kind string

const (
	// KindRecorded is published after a feature counter was incremented.
	KindRecorded Kind = "recorded"
	// KindReset is published once per feature after a period rollover or
	// explicit reset cleared its counter.
	KindReset Kind = "reset"
	// KindLoaded is published once per feature after persisted usage was read.
	KindLoaded Kind = "loaded"
)

// Event reports the new value of one feature counter.
type Event struct {
	ID          id.ID     `json:"id"`
	Kind        Kind      `json:"kind"`
	Feature     string    `json:"feature"`
	Count       int64     `json:"count"`
	PeriodStart time.Time `json:"period_start"`
	At          time.Time `json:"at"`
}

// New builds an event with a fresh ID.
func New(kind Kind, feature string, count int64, periodStart, at time.Time) Event {
	return Event{
		ID:          id.NewUsageEventID(),
		Kind:        kind,
		Feature:     feature,
		Count:       count,
		PeriodStart: periodStart,
		At:          at,
	}
}

// Handler observes events. Handlers run synchronously on the publishing
// goroutine and must not block for long.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }
