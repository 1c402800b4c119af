// Package executor runs a single stage invocation under a wall-clock bound.
//
// Every invocation runs on its own goroutine so a hung collaborator cannot
// stall the caller. When the bound elapses the caller gets a Timeout result
// immediately; the stage's context is cancelled with a StageTimeout cause,
// but Go offers no way to preempt a goroutine that ignores its context, so
// such a worker keeps running until it returns and its result is dropped.
// The number of such abandoned workers is capped: once the cap is reached the
// executor refuses new work until some of them finish.
package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/logging"
	"github.com/Iron-Ham/autoproducer/internal/stage"
)

// DefaultMaxAbandoned is the default cap on timed-out workers still running.
const DefaultMaxAbandoned = 8

// ErrTooManyAbandoned is the cause recorded when the abandoned-worker cap is hit.
var ErrTooManyAbandoned = errors.New("too many abandoned stage workers still running")

// Executor runs stage functions with a deadline. It is safe for concurrent use.
type Executor struct {
	maxAbandoned int64
	abandoned    atomic.Int64
	inflight     sync.WaitGroup
	logger       *logging.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxAbandoned sets the abandoned-worker cap. Values below 1 are ignored.
func WithMaxAbandoned(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxAbandoned = int64(n)
		}
	}
}

// WithLogger sets the executor's logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		maxAbandoned: DefaultMaxAbandoned,
		logger:       logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type outcome struct {
	payload any
	err     error
	elapsed time.Duration
}

// Execute runs fn(input) bounded by desc.Timeout and returns its result.
// Elapsed is measured on the monotonic clock from just before the call to
// the moment the result (or the timeout) is observed.
func (e *Executor) Execute(ctx context.Context, desc stage.Descriptor, fn stage.Func, input any) stage.Result {
	result := stage.Result{StageName: desc.Name, Ordinal: desc.Ordinal}

	if n := e.abandoned.Load(); n >= e.maxAbandoned {
		e.logger.Warn("refusing stage, abandoned worker cap reached",
			"stage", desc.Name, "abandoned", n, "max", e.maxAbandoned)
		return fail(result, stage.StatusError,
			errors.NewStageError(desc.Name, errors.ErrStageException, ErrTooManyAbandoned))
	}

	stageCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan outcome, 1)

	start := time.Now()
	go func() {
		var pc panics.Catcher
		var o outcome
		pc.Try(func() { o.payload, o.err = fn(stageCtx, input) })
		if r := pc.Recovered(); r != nil {
			o.err = r.AsError()
		}
		o.elapsed = time.Since(start)
		done <- o
	}()

	timer := time.NewTimer(desc.Timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		cancel(nil)
		result.Elapsed = o.elapsed
		if o.err != nil && ctx.Err() != nil {
			return fail(result, stage.StatusError,
				errors.NewStageError(desc.Name, errors.ErrStageException, errors.Join(errors.ErrCanceled, context.Cause(ctx))))
		}
		if o.err != nil {
			return fail(result, stage.StatusError,
				errors.NewStageError(desc.Name, errors.ErrStageException, o.err))
		}
		result.Status = stage.StatusSuccess
		result.Payload = o.payload
		return result

	case <-timer.C:
		result.Elapsed = time.Since(start)
		err := errors.NewStageError(desc.Name, errors.ErrStageTimeout,
			errors.NewTimeoutError("stage "+desc.Name, desc.Timeout))
		cancel(err)
		e.abandon(desc, done)
		return fail(result, stage.StatusTimeout, err)

	case <-ctx.Done():
		result.Elapsed = time.Since(start)
		cause := context.Cause(ctx)
		cancel(cause)
		e.abandon(desc, done)
		return fail(result, stage.StatusError,
			errors.NewStageError(desc.Name, errors.ErrStageException, errors.Join(errors.ErrCanceled, cause)))
	}
}

func fail(r stage.Result, status stage.Status, err error) stage.Result {
	r.Status = status
	r.Err = err
	r.ErrorDetail = errors.UserMessage(err)
	return r
}

// abandon tracks a worker whose result the caller no longer waits for.
func (e *Executor) abandon(desc stage.Descriptor, done <-chan outcome) {
	n := e.abandoned.Add(1)
	e.inflight.Add(1)
	e.logger.Debug("stage worker abandoned", "stage", desc.Name, "abandoned", n)

	go func() {
		defer e.inflight.Done()
		o := <-done
		left := e.abandoned.Add(-1)
		e.logger.Debug("abandoned stage worker finished",
			"stage", desc.Name, "elapsed", o.elapsed, "abandoned", left)
	}()
}

// Abandoned returns how many timed-out or cancelled workers are still running.
func (e *Executor) Abandoned() int {
	return int(e.abandoned.Load())
}

// Drain waits until every abandoned worker has returned or ctx is done.
func (e *Executor) Drain(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
