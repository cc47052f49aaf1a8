// Package engine owns the recurring notification triggers: exactly one
// durable job per registered player, kept consistent with that player's
// cadence and time-of-day preference.
//
// # Lifecycle
//
// Schedule installs or atomically replaces the player's trigger; Cancel
// removes it; ReconcileAll re-derives the whole job set from the preference
// source and is safe to re-run at any time (startup recovery, periodic
// resync, post-mutation resync).
//
// # Fires
//
// A cron timer evaluates triggers at minute granularity in a fixed IANA
// timezone. Fires are executed on a bounded worker pool; an occurrence whose
// previous fire is still running is skipped, never queued. The fire pipeline
// re-fetches the current player record, pulls a fresh availability snapshot,
// matches, renders, and delivers. No failure inside a fire cancels the job or
// reaches the timer.
package engine
