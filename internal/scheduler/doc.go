// Package scheduler starts the daily pipeline run and relays manual triggers.
//
// The [Scheduler] checks its clock every CheckInterval and fires when the
// daily trigger time has passed since the previous check, at most once per
// calendar day. A fire that finds a run already active is skipped, not
// queued.
package scheduler
