package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/autoproducer/internal/collaborator"
	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/event"
	"github.com/Iron-Ham/autoproducer/internal/executor"
	"github.com/Iron-Ham/autoproducer/internal/logging"
	"github.com/Iron-Ham/autoproducer/internal/production"
	"github.com/Iron-Ham/autoproducer/internal/stage"
)

const tracerName = "github.com/Iron-Ham/autoproducer/internal/pipeline"

// Config holds the orchestrator's required dependencies.
type Config struct {
	Bus      *event.Bus
	Resolver *collaborator.Resolver
	Stages   []stage.Descriptor
	Retry    RetryPolicy
	// Brief is handed to the first stage of runs started without their own.
	Brief production.Brief
	// RestartGrace delays the fresh run that follows an abort.
	RestartGrace time.Duration
}

type signalKind int

const (
	sigPause signalKind = iota
	sigResume
	sigRestart
)

func (k signalKind) String() string {
	switch k {
	case sigPause:
		return "pause"
	case sigResume:
		return "resume"
	default:
		return "restart"
	}
}

type signal struct {
	kind   signalKind
	reason string
}

// Orchestrator runs the stage list for one run at a time.
type Orchestrator struct {
	cfg    Config
	oc     orchestratorConfig
	stages []stage.Descriptor
	exec   *executor.Executor
	logger *logging.Logger
	tracer trace.Tracer

	mu             sync.RWMutex
	state          State
	active         *Run
	runCancel      context.CancelCauseFunc
	pendingRestart bool
	restartReason  string
	restartBrief   production.Brief
	last           *Run
	history        []Run
	changed        chan struct{}

	gate    gate
	signals chan signal

	started bool
	loopCtx context.Context
	cancel  context.CancelCauseFunc
	wg      sync.WaitGroup
}

// NewOrchestrator validates cfg and creates an idle Orchestrator.
func NewOrchestrator(cfg Config, opts ...Option) (*Orchestrator, error) {
	if cfg.Bus == nil {
		return nil, errors.New("pipeline: Bus is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("pipeline: Resolver is required")
	}
	if len(cfg.Stages) == 0 {
		return nil, errors.New("pipeline: at least one stage is required")
	}
	if err := stage.Validate(cfg.Stages); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	for _, d := range cfg.Stages {
		if _, ok := production.Lookup(d.Name); !ok {
			return nil, fmt.Errorf("pipeline: unknown stage %q", d.Name)
		}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Retry.MaxAttempts < 0 || cfg.Retry.BackoffDelay < 0 {
		return nil, errors.New("pipeline: retry policy must not be negative")
	}
	if cfg.RestartGrace < 0 {
		return nil, errors.New("pipeline: restart grace must not be negative")
	}

	oc := orchestratorConfig{
		historyLimit: defaultHistoryLimit,
		resumePolicy: ResumeRestart,
	}
	for _, opt := range opts {
		opt(&oc)
	}
	if oc.logger == nil {
		oc.logger = logging.NopLogger()
	}
	if oc.executor == nil {
		oc.executor = executor.New(executor.WithLogger(oc.logger))
	}
	if oc.resumePolicy != ResumeRestart && oc.resumePolicy != ResumeContinue {
		return nil, fmt.Errorf("pipeline: unknown resume policy %q", oc.resumePolicy)
	}

	return &Orchestrator{
		cfg:     cfg,
		oc:      oc,
		stages:  stage.Sorted(cfg.Stages),
		exec:    oc.executor,
		logger:  oc.logger.WithComponent("pipeline"),
		tracer:  otel.Tracer(tracerName),
		state:   StateIdle,
		changed: make(chan struct{}),
		signals: make(chan signal, signalBuffer),
	}, nil
}

// Start launches the control loop that consumes pause, resume and restart
// signals. Runs started later inherit ctx.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return errors.New("pipeline: already started")
	}
	o.loopCtx, o.cancel = context.WithCancelCause(ctx)
	o.started = true

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.loop()
	}()
	return nil
}

// Stop aborts the active run, cancels any pending restart and waits for
// every goroutine to exit. It is idempotent.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = false
	o.cancel(errors.ErrStopped)
	o.gate.release()
	o.mu.Unlock()

	o.wg.Wait()
	return nil
}

func (o *Orchestrator) loop() {
	for {
		select {
		case <-o.loopCtx.Done():
			return
		case sig := <-o.signals:
			o.handle(sig)
		}
	}
}

// Trigger starts a run if the orchestrator is idle. It returns the new run's
// ID, or errors.ErrRunActive when a run is already active or about to restart.
func (o *Orchestrator) Trigger(trigger Trigger, reason string) (string, error) {
	return o.TriggerBrief(trigger, reason, o.cfg.Brief)
}

// TriggerBrief is Trigger with a brief other than the configured one, such
// as a channel preset. Restarts of the run keep its brief.
func (o *Orchestrator) TriggerBrief(trigger Trigger, reason string, brief production.Brief) (string, error) {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return "", errors.ErrNotStarted
	}
	if o.state != StateIdle || o.pendingRestart {
		activeID := ""
		if o.active != nil {
			activeID = o.active.ID
		}
		o.mu.Unlock()
		o.logger.Info("trigger rejected, a run is already active",
			"trigger", trigger, "reason", reason, "active_run", activeID)
		return "", errors.ErrRunActive
	}
	id := o.beginLocked(trigger, reason, brief)
	o.mu.Unlock()
	return id, nil
}

// RunOnce triggers a run and waits until the orchestrator is idle again,
// returning the last finished run.
func (o *Orchestrator) RunOnce(ctx context.Context, trigger Trigger, reason string) (*Run, error) {
	if _, err := o.Trigger(trigger, reason); err != nil {
		return nil, err
	}
	return o.Wait(ctx)
}

// Wait blocks until no run is active and no restart is pending, then
// returns the most recent finished run (nil if none).
func (o *Orchestrator) Wait(ctx context.Context) (*Run, error) {
	for {
		o.mu.RLock()
		if o.state == StateIdle && !o.pendingRestart {
			last := o.last.clone()
			o.mu.RUnlock()
			return last, nil
		}
		ch := o.changed
		o.mu.RUnlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Pause asks the control loop to defer the active run's remaining stages.
func (o *Orchestrator) Pause(reason string) error {
	return o.send(signal{kind: sigPause, reason: reason})
}

// Resume asks the control loop to resume a paused run according to the
// resume policy.
func (o *Orchestrator) Resume(reason string) error {
	return o.send(signal{kind: sigResume, reason: reason})
}

// RequestRestart asks the control loop to abort the active run and start a
// fresh one after the restart grace delay. Ignored when no run is active.
func (o *Orchestrator) RequestRestart(reason string) error {
	return o.send(signal{kind: sigRestart, reason: reason})
}

func (o *Orchestrator) send(s signal) error {
	o.mu.RLock()
	started := o.started
	o.mu.RUnlock()
	if !started {
		return errors.ErrNotStarted
	}
	select {
	case o.signals <- s:
		return nil
	default:
		o.logger.Warn("signal dropped, queue full", "signal", s.kind.String(), "reason", s.reason)
		return fmt.Errorf("pipeline: %s signal dropped, queue full", s.kind)
	}
}

// Active reports whether a run is Running or Paused.
func (o *Orchestrator) Active() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.IsActive()
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Status returns a snapshot of the orchestrator.
func (o *Orchestrator) Status() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Snapshot{
		State:          o.state,
		Active:         o.active.clone(),
		Last:           o.last.clone(),
		PendingRestart: o.pendingRestart,
		Abandoned:      o.exec.Abandoned(),
	}
}

// History returns finished runs, newest first.
func (o *Orchestrator) History() []Run {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Run, 0, len(o.history))
	for i := len(o.history) - 1; i >= 0; i-- {
		out = append(out, *o.history[i].clone())
	}
	return out
}

// Stages returns the ordered stage list.
func (o *Orchestrator) Stages() []stage.Descriptor {
	return append([]stage.Descriptor(nil), o.stages...)
}

func (o *Orchestrator) handle(sig signal) {
	o.mu.Lock()
	runID := ""
	if o.active != nil {
		runID = o.active.ID
	}
	log := o.logger.WithRun(runID).With("signal", sig.kind.String(), "reason", sig.reason)

	switch sig.kind {
	case sigPause:
		if o.state != StateRunning {
			o.mu.Unlock()
			log.Debug("pause ignored", "state", o.State())
			return
		}
		ev := o.transitionLocked(StatePaused)
		o.gate.hold()
		o.mu.Unlock()
		log.Info("run paused, remaining stages deferred")
		o.publish(ev)

	case sigResume:
		if o.state != StatePaused {
			o.mu.Unlock()
			log.Debug("resume ignored", "state", o.State())
			return
		}
		if o.oc.resumePolicy == ResumeContinue {
			ev := o.transitionLocked(StateRunning)
			o.gate.release()
			o.mu.Unlock()
			log.Info("run resumed")
			o.publish(ev)
			return
		}
		o.abortLocked(errors.NewRunError(runID, errors.ErrResourceExhaustion, nil),
			"resumed after pause")
		o.mu.Unlock()
		log.Info("paused run abandoned, a fresh run will start")

	case sigRestart:
		if !o.state.IsActive() {
			o.mu.Unlock()
			log.Info("restart ignored, no active run")
			return
		}
		o.abortLocked(errors.NewRunError(runID, errors.ErrRestartRequested, nil), sig.reason)
		o.mu.Unlock()
		log.Info("restart requested, aborting active run")
	}
}

// abortLocked cancels the active run with cause and schedules a fresh run
// once it has finished.
func (o *Orchestrator) abortLocked(cause error, reason string) {
	o.pendingRestart = true
	o.restartReason = reason
	o.restartBrief = o.cfg.Brief
	if o.active != nil {
		o.restartBrief = o.active.Brief
	}
	if o.runCancel != nil {
		o.runCancel(cause)
	}
	o.gate.release()
	o.notifyLocked()
}

// beginLocked creates a run, moves to Running and starts its goroutine.
func (o *Orchestrator) beginLocked(trigger Trigger, reason string, brief production.Brief) string {
	run := &Run{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Reason:    reason,
		Brief:     brief,
		StartedAt: time.Now(),
	}
	ctx, cancel := context.WithCancelCause(o.loopCtx)

	o.active = run
	o.runCancel = cancel
	o.gate.release()
	stateEv := o.transitionLocked(StateRunning)
	o.notifyLocked()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel(nil)
		o.publish(event.NewRunStartedEvent(run.ID, string(trigger), reason), stateEv)
		o.execute(ctx, run)
	}()
	return run.ID
}

// transitionLocked moves to the given state if the table allows it and
// returns the event to publish once the lock is released.
func (o *Orchestrator) transitionLocked(to State) event.Event {
	from := o.state
	if !CanTransition(from, to) {
		o.logger.Error("state transition rejected", "error", &IllegalTransitionError{From: from, To: to})
		return nil
	}
	o.state = to
	runID := ""
	if o.active != nil {
		runID = o.active.ID
	}
	o.notifyLocked()
	return event.NewRunStateChangedEvent(runID, from.String(), to.String())
}

func (o *Orchestrator) notifyLocked() {
	close(o.changed)
	o.changed = make(chan struct{})
}

func (o *Orchestrator) publish(evs ...event.Event) {
	for _, ev := range evs {
		if ev != nil {
			o.cfg.Bus.Publish(ev)
		}
	}
}

// finish records the terminal status, returns to Idle and, when requested,
// schedules the follow-up run.
func (o *Orchestrator) finish(run *Run, status State, err error) {
	o.mu.Lock()
	run.EndedAt = time.Now()
	run.FinalStatus = status
	run.Err = err
	switch status {
	case StateSucceeded:
		run.Outcome = fmt.Sprintf("succeeded on attempt %d", run.AttemptNumber)
	case StateAborted:
		// partial results of an aborted run are not reported
		run.StageResults = nil
		run.Outcome = errors.UserMessage(err)
	default:
		run.Outcome = errors.UserMessage(err)
	}

	evs := []event.Event{o.transitionLocked(status)}
	o.active = nil
	o.runCancel = nil
	evs = append(evs, o.transitionLocked(StateIdle))

	final := run.clone()
	o.last = final
	o.history = append(o.history, *final)
	if over := len(o.history) - o.oc.historyLimit; over > 0 {
		o.history = append([]Run(nil), o.history[over:]...)
	}

	restart := o.pendingRestart && o.loopCtx.Err() == nil
	if !restart {
		o.pendingRestart = false
	}
	reason, brief := o.restartReason, o.restartBrief
	o.gate.release()
	o.notifyLocked()
	o.mu.Unlock()

	o.cfg.Resolver.Forget(run.ID)

	log := o.logger.WithRun(run.ID)
	switch status {
	case StateSucceeded:
		log.Info("run succeeded", "attempts", run.AttemptNumber, "duration", run.Duration())
	case StateFailed:
		log.Error("run failed", "attempts", run.AttemptNumber, "error", err)
	default:
		log.Warn("run aborted", "cause", err)
	}

	evs = append(evs, event.NewRunFinishedEvent(run.ID, string(run.Trigger), status.String(),
		run.AttemptNumber, run.Duration(), run.Outcome))
	o.publish(evs...)
	o.record(*final)

	if restart {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.restartAfterGrace(reason, brief)
		}()
	}
}

func (o *Orchestrator) restartAfterGrace(reason string, brief production.Brief) {
	timer := time.NewTimer(o.cfg.RestartGrace)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-o.loopCtx.Done():
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.pendingRestart = false
	if o.loopCtx.Err() != nil || o.state != StateIdle {
		o.notifyLocked()
		return
	}
	o.beginLocked(TriggerRestart, reason, brief)
}

func (o *Orchestrator) record(run Run) {
	if o.oc.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.oc.sink.WriteRun(ctx, run); err != nil {
		o.logger.WithRun(run.ID).Error("failed to record run summary", "error", err)
	}
}
