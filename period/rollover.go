package period

import "time"

// Ledger is the part of a usage ledger the rollover check needs.
type Ledger interface {
	// CurrentPeriodStart is computed from the wall clock.
	CurrentPeriodStart() time.Time
	// LastResetPeriodStart is the period start stamped by the last reset.
	LastResetPeriodStart() time.Time
	// CompareAndReset clears all counters and stamps the current period only
	// if the last-reset stamp still equals expected.
	CompareAndReset(expected time.Time) bool
}

// Rollover describes the outcome of a Check.
type Rollover struct {
	From  time.Time
	To    time.Time
	Reset bool
}

// Check resets l when its last-reset period differs from the current one.
// Calling it again within the same period performs no further reset.
func Check(l Ledger) Rollover {
	current := l.CurrentPeriodStart()
	last := l.LastResetPeriodStart()

	r := Rollover{From: last, To: current}
	if current.Equal(last) {
		return r
	}
	r.Reset = l.CompareAndReset(last)
	return r
}
