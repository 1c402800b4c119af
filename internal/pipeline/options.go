package pipeline

import (
	"context"

	"github.com/Iron-Ham/autoproducer/internal/executor"
	"github.com/Iron-Ham/autoproducer/internal/logging"
)

const (
	defaultHistoryLimit = 20
	signalBuffer        = 32
)

// Sink receives every terminal run exactly once.
type Sink interface {
	WriteRun(ctx context.Context, run Run) error
}

// Preflight runs once before a run's first attempt. A failure is logged and
// the run proceeds.
type Preflight func(ctx context.Context) error

type orchestratorConfig struct {
	logger       *logging.Logger
	executor     *executor.Executor
	sink         Sink
	preflight    Preflight
	historyLimit int
	resumePolicy ResumePolicy
}

// Option configures an Orchestrator.
type Option func(*orchestratorConfig)

// WithLogger sets the orchestrator's logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *orchestratorConfig) { c.logger = l }
}

// WithExecutor sets the stage executor. By default a new one is created.
func WithExecutor(e *executor.Executor) Option {
	return func(c *orchestratorConfig) { c.executor = e }
}

// WithSink sets where terminal runs are recorded.
func WithSink(s Sink) Option {
	return func(c *orchestratorConfig) { c.sink = s }
}

// WithPreflight sets a check run before each run's first attempt.
func WithPreflight(p Preflight) Option {
	return func(c *orchestratorConfig) { c.preflight = p }
}

// WithHistoryLimit bounds how many terminal runs History keeps.
func WithHistoryLimit(n int) Option {
	return func(c *orchestratorConfig) {
		if n > 0 {
			c.historyLimit = n
		}
	}
}

// WithResumePolicy sets what a resume does to a paused run.
func WithResumePolicy(p ResumePolicy) Option {
	return func(c *orchestratorConfig) {
		if p != "" {
			c.resumePolicy = p
		}
	}
}
