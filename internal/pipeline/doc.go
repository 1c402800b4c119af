// Package pipeline provides the orchestrator that drives one content
// production run at a time through the ordered stage list.
//
// # State Machine
//
// The [Orchestrator] owns a single [State]. Transitions go through one
// table ([CanTransition]) and are published on the event bus:
//
//	Idle → Running → {Succeeded, Failed} → Idle
//	Running ⇄ Paused
//	Running/Paused → Aborted → Idle
//
// At most one run is active. [Orchestrator.Trigger] returns
// [errors.ErrRunActive] while a run is Running or Paused, or while a
// restart is pending.
//
// # Attempts and Retry
//
// A run executes attempts. Each attempt walks every stage from ordinal 1
// with a fresh production bundle. A Required stage ending in Error or
// Timeout abandons the attempt; if attempts remain the orchestrator sleeps
// the backoff delay and starts over, otherwise the run is Failed. Optional
// stage failures are logged and the stage's output stays empty.
//
// # Signals
//
// Pause, Resume and RequestRestart enqueue signals that only the control
// loop started by [Orchestrator.Start] consumes. A pause defers the stages
// that have not started yet; the stage in flight completes. Under the
// default [ResumeRestart] policy a resume abandons the paused run (Aborted)
// and starts a fresh run with the Restart trigger. A restart request aborts
// the active run, discards its stage results and starts a fresh run after
// the restart grace delay.
package pipeline
