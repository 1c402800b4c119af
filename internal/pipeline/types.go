package pipeline

import (
	"time"

	"github.com/Iron-Ham/autoproducer/internal/production"
	"github.com/Iron-Ham/autoproducer/internal/stage"
)

// State is the orchestrator's state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateAborted   State = "aborted"
)

// String returns the state name.
func (s State) String() string { return string(s) }

// IsTerminal reports whether s is a final run status.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateAborted
}

// IsActive reports whether a run is in progress in state s.
func (s State) IsActive() bool {
	return s == StateRunning || s == StatePaused
}

// Trigger records why a run started.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerRestart   Trigger = "restart"
)

// ResumePolicy decides what a resume does to a paused run.
type ResumePolicy string

const (
	// ResumeRestart abandons the paused run and starts a fresh one.
	ResumeRestart ResumePolicy = "restart"
	// ResumeContinue continues the paused run with its next stage.
	ResumeContinue ResumePolicy = "continue"
)

// RetryPolicy bounds whole-run retries.
type RetryPolicy struct {
	MaxAttempts  int
	BackoffDelay time.Duration
}

// DefaultRetryPolicy returns three attempts thirty seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BackoffDelay: 30 * time.Second}
}

// Run is a snapshot of one pipeline run.
type Run struct {
	ID            string           `json:"run_id" yaml:"run_id"`
	Trigger       Trigger          `json:"trigger" yaml:"trigger"`
	Reason        string           `json:"reason,omitempty" yaml:"reason,omitempty"`
	Brief         production.Brief `json:"brief" yaml:"brief"`
	AttemptNumber int              `json:"attempt_number" yaml:"attempt_number"`
	StageResults  []stage.Result   `json:"stage_results" yaml:"stage_results"`
	FinalStatus   State            `json:"final_status,omitempty" yaml:"final_status,omitempty"`
	Outcome       string           `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	StartedAt     time.Time        `json:"started_at" yaml:"started_at"`
	EndedAt       time.Time        `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	Err           error            `json:"-" yaml:"-"`
}

// Duration returns how long the run took, or has taken so far.
func (r Run) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Attempts groups StageResults by attempt number, in order.
func (r Run) Attempts() [][]stage.Result {
	var out [][]stage.Result
	for _, res := range r.StageResults {
		if res.Attempt < 1 {
			continue
		}
		if len(out) < res.Attempt {
			out = append(out, make([][]stage.Result, res.Attempt-len(out))...)
		}
		out[res.Attempt-1] = append(out[res.Attempt-1], res)
	}
	return out
}

func (r *Run) clone() *Run {
	if r == nil {
		return nil
	}
	c := *r
	c.StageResults = append([]stage.Result(nil), r.StageResults...)
	return &c
}

// Snapshot is the orchestrator status reported to operators.
type Snapshot struct {
	State          State `json:"state"`
	Active         *Run  `json:"active,omitempty"`
	Last           *Run  `json:"last,omitempty"`
	PendingRestart bool  `json:"pending_restart"`
	Abandoned      int   `json:"abandoned_workers"`
}
