// Package period computes counting windows and detects rollover between them.
package period

import "time"

// Period is the length of a counting window.
type Period string

const (
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	return p == Monthly || p == Yearly
}

// Start returns the start of the window containing t, in t's location.
// Unknown periods fall back to Monthly.
func Start(t time.Time, p Period) time.Time {
	switch p {
	case Yearly:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	}
}

// Next returns the start of the window following the one starting at start.
func Next(start time.Time, p Period) time.Time {
	switch p {
	case Yearly:
		return Start(start, p).AddDate(1, 0, 0)
	default:
		return Start(start, p).AddDate(0, 1, 0)
	}
}
