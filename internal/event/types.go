package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns the "category.action" identifier of the event.
	EventType() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// Event type identifiers.
const (
	TypeRunStarted           = "run.started"
	TypeRunStateChanged      = "run.state_changed"
	TypeAttemptStarted       = "run.attempt_started"
	TypeAttemptAbandoned     = "run.attempt_abandoned"
	TypeRunFinished          = "run.finished"
	TypeStageCompleted       = "stage.completed"
	TypeCollaboratorResolved = "collaborator.resolved"
	TypeResourceSampled      = "resource.sampled"
	TypeChangeDetected       = "watcher.change_detected"
	TypeScheduleFired        = "scheduler.fired"
)

// -----------------------------------------------------------------------------
// Run lifecycle
// -----------------------------------------------------------------------------

// RunStartedEvent is emitted when the orchestrator accepts a trigger.
type RunStartedEvent struct {
	baseEvent
	RunID   string
	Trigger string
	Reason  string
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(runID, trigger, reason string) RunStartedEvent {
	return RunStartedEvent{
		baseEvent: newBaseEvent(TypeRunStarted),
		RunID:     runID,
		Trigger:   trigger,
		Reason:    reason,
	}
}

// RunStateChangedEvent is emitted on every orchestrator state transition.
type RunStateChangedEvent struct {
	baseEvent
	RunID string // empty when no run is active
	From  string
	To    string
}

// NewRunStateChangedEvent creates a RunStateChangedEvent.
func NewRunStateChangedEvent(runID, from, to string) RunStateChangedEvent {
	return RunStateChangedEvent{
		baseEvent: newBaseEvent(TypeRunStateChanged),
		RunID:     runID,
		From:      from,
		To:        to,
	}
}

// AttemptStartedEvent is emitted when a full pass over the stage list begins.
type AttemptStartedEvent struct {
	baseEvent
	RunID   string
	Attempt int
}

// NewAttemptStartedEvent creates an AttemptStartedEvent.
func NewAttemptStartedEvent(runID string, attempt int) AttemptStartedEvent {
	return AttemptStartedEvent{
		baseEvent: newBaseEvent(TypeAttemptStarted),
		RunID:     runID,
		Attempt:   attempt,
	}
}

// AttemptAbandonedEvent is emitted when a required stage fails an attempt.
type AttemptAbandonedEvent struct {
	baseEvent
	RunID     string
	Attempt   int
	Stage     string
	Reason    string
	WillRetry bool
}

// NewAttemptAbandonedEvent creates an AttemptAbandonedEvent.
func NewAttemptAbandonedEvent(runID string, attempt int, stage, reason string, willRetry bool) AttemptAbandonedEvent {
	return AttemptAbandonedEvent{
		baseEvent: newBaseEvent(TypeAttemptAbandoned),
		RunID:     runID,
		Attempt:   attempt,
		Stage:     stage,
		Reason:    reason,
		WillRetry: willRetry,
	}
}

// RunFinishedEvent is emitted once per run when it reaches a terminal status.
type RunFinishedEvent struct {
	baseEvent
	RunID    string
	Trigger  string
	Status   string
	Attempts int
	Duration time.Duration
	Reason   string
}

// NewRunFinishedEvent creates a RunFinishedEvent.
func NewRunFinishedEvent(runID, trigger, status string, attempts int, d time.Duration, reason string) RunFinishedEvent {
	return RunFinishedEvent{
		baseEvent: newBaseEvent(TypeRunFinished),
		RunID:     runID,
		Trigger:   trigger,
		Status:    status,
		Attempts:  attempts,
		Duration:  d,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Stage events
// -----------------------------------------------------------------------------

// StageCompletedEvent is emitted after every stage result is recorded.
type StageCompletedEvent struct {
	baseEvent
	RunID   string
	Attempt int
	Stage   string
	Status  string
	Elapsed time.Duration
}

// NewStageCompletedEvent creates a StageCompletedEvent.
func NewStageCompletedEvent(runID string, attempt int, stage, status string, elapsed time.Duration) StageCompletedEvent {
	return StageCompletedEvent{
		baseEvent: newBaseEvent(TypeStageCompleted),
		RunID:     runID,
		Attempt:   attempt,
		Stage:     stage,
		Status:    status,
		Elapsed:   elapsed,
	}
}

// CollaboratorResolvedEvent is emitted once per stage per run.
type CollaboratorResolvedEvent struct {
	baseEvent
	RunID  string
	Stage  string
	Live   bool
	Reason string
}

// NewCollaboratorResolvedEvent creates a CollaboratorResolvedEvent.
func NewCollaboratorResolvedEvent(runID, stage string, live bool, reason string) CollaboratorResolvedEvent {
	return CollaboratorResolvedEvent{
		baseEvent: newBaseEvent(TypeCollaboratorResolved),
		RunID:     runID,
		Stage:     stage,
		Live:      live,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Background components
// -----------------------------------------------------------------------------

// ResourceSampledEvent is emitted for every resource sample.
type ResourceSampledEvent struct {
	baseEvent
	CPUPct float64
	RAMPct float64
	Action string
}

// NewResourceSampledEvent creates a ResourceSampledEvent.
func NewResourceSampledEvent(cpu, ram float64, action string) ResourceSampledEvent {
	return ResourceSampledEvent{
		baseEvent: newBaseEvent(TypeResourceSampled),
		CPUPct:    cpu,
		RAMPct:    ram,
		Action:    action,
	}
}

// ChangeDetectedEvent is emitted when the watcher sees qualifying changes.
type ChangeDetectedEvent struct {
	baseEvent
	Paths []string
}

// NewChangeDetectedEvent creates a ChangeDetectedEvent.
func NewChangeDetectedEvent(paths []string) ChangeDetectedEvent {
	return ChangeDetectedEvent{
		baseEvent: newBaseEvent(TypeChangeDetected),
		Paths:     paths,
	}
}

// ScheduleFiredEvent is emitted when the scheduler requests a run.
type ScheduleFiredEvent struct {
	baseEvent
	Reason   string
	Accepted bool
}

// NewScheduleFiredEvent creates a ScheduleFiredEvent.
func NewScheduleFiredEvent(reason string, accepted bool) ScheduleFiredEvent {
	return ScheduleFiredEvent{
		baseEvent: newBaseEvent(TypeScheduleFired),
		Reason:    reason,
		Accepted:  accepted,
	}
}
