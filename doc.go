// Package tally tracks per-feature usage against subscription tier limits.
//
// Tally is a library, not a service. A Tracker answers whether a user of a
// given tier may perform a gated action, records the action when it happens,
// and keeps observers consistent as counters change. Counters are kept per
// counting period (monthly by default) and reset lazily the first time the
// tracker is touched in a new period.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/tally"
//	    "github.com/xraph/tally/policy"
//	    "github.com/xraph/tally/store/sqlite"
//	)
//
//	st := sqlite.New(db)
//	t := tally.New(policy.Default(), st)
//	if err := t.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Stop(ctx)
//
//	ok, err := t.IsWithinLimit(ctx, tally.Seeker, policy.FeatureReadings)
//	if ok {
//	    // perform the reading
//	    t.Record(ctx, policy.FeatureReadings)
//	}
//
// # Limits
//
// A policy maps every tier to a limit per feature. A limit is either a
// non-negative monthly cap or policy.Unlimited. Checks are pure functions of
// the policy and the current counter; Record reports usage and never
// enforces a limit, so callers check first and record after.
//
// # Persistence
//
// Counters live in memory and are written behind to a usage.Store by a single
// background writer. Writes carry absolute values, so a crash can lose the
// latest increment but never double count. A failing store is logged and
// retried; the in-memory counters stay authoritative. Until the stored values
// have been read nothing is written and the period is not rolled over; the
// read is retried by Resume, Flush and Stop.
//
// # Observers
//
// Subscribe registers an event.Handler that is called after every change, in
// the order the changes happened for each feature. Handlers run outside the
// tracker's locks and may call back into it; a change made from inside a
// handler is delivered after the current event.
package tally
