package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/event"
	"github.com/Iron-Ham/autoproducer/internal/logging"
	"github.com/Iron-Ham/autoproducer/internal/production"
	"github.com/Iron-Ham/autoproducer/internal/stage"
)

// execute drives run to a terminal status.
func (o *Orchestrator) execute(ctx context.Context, run *Run) {
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("run.trigger", string(run.Trigger)),
	))
	defer span.End()

	log := o.logger.WithRun(run.ID)
	log.Info("run started", "trigger", run.Trigger, "reason", run.Reason, "stages", len(o.stages))

	if o.oc.preflight != nil {
		if err := o.oc.preflight(ctx); err != nil {
			log.Warn("preflight check failed, unavailable collaborators will be stubbed", "error", err)
		}
	}

	status, err := o.attempts(ctx, run, log)
	span.SetAttributes(attribute.String("run.status", status.String()), attribute.Int("run.attempts", run.AttemptNumber))
	if status != StateSucceeded {
		span.SetStatus(codes.Error, errors.UserMessage(err))
	}
	o.finish(run, status, err)
}

// attempts runs full passes over the stage list until one succeeds, the
// retry budget is spent or the run is aborted.
func (o *Orchestrator) attempts(ctx context.Context, run *Run, log *logging.Logger) (State, error) {
	policy := o.cfg.Retry
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		o.mu.Lock()
		run.AttemptNumber = attempt
		o.mu.Unlock()
		o.publish(event.NewAttemptStartedEvent(run.ID, attempt))

		alog := log.WithAttempt(attempt)
		failed := o.runAttempt(ctx, run, attempt, alog)
		if ctx.Err() != nil {
			return StateAborted, context.Cause(ctx)
		}
		if failed == nil {
			return StateSucceeded, nil
		}

		lastErr = failed.Err
		willRetry := attempt < policy.MaxAttempts
		o.publish(event.NewAttemptAbandonedEvent(run.ID, attempt, failed.StageName,
			failed.ErrorDetail, willRetry))
		if !willRetry {
			break
		}

		alog.Warn("attempt abandoned, retrying from the first stage",
			"stage", failed.StageName,
			"status", failed.Status,
			"backoff", policy.BackoffDelay,
			"error", failed.Err,
		)
		if err := sleep(ctx, policy.BackoffDelay); err != nil {
			return StateAborted, context.Cause(ctx)
		}
	}

	return StateFailed, errors.NewRunError(run.ID, errors.ErrRetryBudgetExhausted, lastErr).
		WithAttempts(policy.MaxAttempts)
}

// runAttempt walks the stage list once. It returns the failed Required
// stage's result, or nil when the attempt completed or ctx was cancelled.
func (o *Orchestrator) runAttempt(ctx context.Context, run *Run, attempt int, log *logging.Logger) *stage.Result {
	bundle := production.NewBundle(run.Brief)

	for _, d := range o.stages {
		if err := o.gate.wait(ctx); err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		res := o.runStage(ctx, run.ID, attempt, d, bundle, log.WithStage(d.Name))
		if ctx.Err() != nil {
			// abandoned by abort; the result is discarded
			return nil
		}

		o.mu.Lock()
		run.StageResults = append(run.StageResults, res)
		o.mu.Unlock()
		o.publish(event.NewStageCompletedEvent(run.ID, attempt, res.StageName, string(res.Status), res.Elapsed))

		if res.Status.Failed() && d.IsRequired() {
			return &res
		}
	}
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, runID string, attempt int, d stage.Descriptor, bundle *production.Bundle, log *logging.Logger) stage.Result {
	ctx, span := o.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("stage.name", d.Name),
		attribute.Int("stage.attempt", attempt),
		attribute.String("stage.criticality", string(d.Criticality)),
	))
	defer span.End()

	var res stage.Result
	resolution, err := o.cfg.Resolver.Resolve(ctx, runID, d.Name)
	if err != nil {
		res = stage.Result{
			StageName:   d.Name,
			Ordinal:     d.Ordinal,
			Status:      stage.StatusError,
			Err:         errors.NewStageError(d.Name, errors.ErrStageException, err),
			ErrorDetail: errors.UserMessage(err),
		}
	} else {
		res = o.exec.Execute(ctx, d, resolution.Fn, *bundle)
		if res.Status == stage.StatusSuccess && !resolution.Live {
			res.Status = stage.StatusStubbed
		}
	}
	res.Attempt = attempt
	var se *errors.StageError
	if errors.As(res.Err, &se) {
		se.WithAttempt(attempt)
	}

	span.SetAttributes(attribute.String("stage.status", string(res.Status)))
	switch {
	case res.Status.Failed() && d.IsRequired():
		span.SetStatus(codes.Error, res.ErrorDetail)
		log.Error("required stage failed", "status", res.Status, "elapsed", res.Elapsed, "error", res.Err)
	case res.Status.Failed():
		span.SetStatus(codes.Error, res.ErrorDetail)
		log.Warn("optional stage failed, continuing with empty output",
			"status", res.Status, "elapsed", res.Elapsed, "error", res.Err)
	default:
		resolution.Capability.Apply(bundle, res.Payload)
		log.Info("stage completed", "status", res.Status, "elapsed", res.Elapsed)
	}
	return res
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
