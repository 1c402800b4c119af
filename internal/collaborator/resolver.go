// Package collaborator resolves the implementation backing each pipeline
// stage. A stage whose live collaborator is not registered, fails to build
// or does not implement the stage capability gets the capability's no-op
// stub instead, so a missing collaborator never fails a run.
package collaborator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/event"
	"github.com/Iron-Ham/autoproducer/internal/logging"
	"github.com/Iron-Ham/autoproducer/internal/production"
	"github.com/Iron-Ham/autoproducer/internal/stage"
)

// Factory builds a live collaborator. It is called at most once per stage
// per run.
type Factory func(ctx context.Context) (any, error)

type registration struct {
	name    string
	factory Factory
}

// Registry maps stage names to collaborator factories. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]registration)}
}

// Register installs the factory for a stage, replacing any previous one.
// name labels the collaborator in logs (e.g. "ollama", "command").
func (r *Registry) Register(stageName, name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[stageName] = registration{name: name, factory: f}
}

// Stages returns the stages with a registered factory, sorted.
func (r *Registry) Stages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(stageName string) (registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.factories[stageName]
	return reg, ok
}

// Resolution is the outcome of resolving one stage.
type Resolution struct {
	Stage        string
	Collaborator string
	Live         bool
	// Reason explains a stub substitution; empty when Live.
	Reason string
	// Err is the CollaboratorError behind a stub substitution, if any.
	Err        error
	Impl       any
	Fn         stage.Func
	Capability production.Capability
}

// Resolver resolves stages to collaborators and remembers the outcome for
// the lifetime of a run.
type Resolver struct {
	registry *Registry
	logger   *logging.Logger
	bus      *event.Bus

	mu   sync.Mutex
	runs map[string]map[string]*entry
}

type entry struct {
	once sync.Once
	res  Resolution
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger. Stubs log through it too.
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithBus publishes a CollaboratorResolvedEvent per resolution.
func WithBus(b *event.Bus) Option {
	return func(r *Resolver) { r.bus = b }
}

// NewResolver creates a Resolver over reg. A nil registry resolves every
// stage to its stub.
func NewResolver(reg *Registry, opts ...Option) *Resolver {
	if reg == nil {
		reg = NewRegistry()
	}
	r := &Resolver{
		registry: reg,
		logger:   logging.NopLogger(),
		runs:     make(map[string]map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the collaborator for stageName within runID. The first
// call per (run, stage) builds and logs; later calls return the cached
// resolution. The only error is an unknown stage name.
func (r *Resolver) Resolve(ctx context.Context, runID, stageName string) (Resolution, error) {
	capability, ok := production.Lookup(stageName)
	if !ok {
		return Resolution{}, fmt.Errorf("unknown stage %q: %w", stageName, errors.ErrInvalidInput)
	}

	r.mu.Lock()
	stages := r.runs[runID]
	if stages == nil {
		stages = make(map[string]*entry)
		r.runs[runID] = stages
	}
	e := stages[stageName]
	if e == nil {
		e = &entry{}
		stages[stageName] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.res = r.build(ctx, capability)
		r.report(runID, e.res)
	})
	return e.res, nil
}

func (r *Resolver) build(ctx context.Context, c production.Capability) Resolution {
	res := Resolution{Stage: c.Stage(), Capability: c}

	reg, ok := r.registry.lookup(c.Stage())
	if !ok {
		return r.stubbed(res, "no collaborator registered", nil)
	}
	res.Collaborator = reg.name

	var impl any
	var err error
	var pc panics.Catcher
	pc.Try(func() { impl, err = reg.factory(ctx) })
	if rec := pc.Recovered(); rec != nil {
		err = rec.AsError()
	}
	if err != nil {
		return r.stubbed(res, "collaborator failed to build", err)
	}

	fn, err := c.Bind(impl)
	if err != nil {
		return r.stubbed(res, "collaborator lacks the stage capability", err)
	}
	res.Live = true
	res.Impl = impl
	res.Fn = fn
	return res
}

func (r *Resolver) stubbed(res Resolution, reason string, cause error) Resolution {
	impl := res.Capability.Stub(r.logger.WithStage(res.Stage))
	fn, _ := res.Capability.Bind(impl)
	res.Live = false
	res.Reason = reason
	res.Impl = impl
	res.Fn = fn
	if cause == nil {
		cause = errors.New(reason)
	}
	res.Err = errors.NewCollaboratorError(res.Stage, res.Collaborator, cause)
	return res
}

func (r *Resolver) report(runID string, res Resolution) {
	log := r.logger.WithRun(runID).WithStage(res.Stage)
	if res.Live {
		log.Info("collaborator resolved", "collaborator", res.Collaborator)
	} else {
		log.Warn("collaborator unavailable, using stub",
			"collaborator", res.Collaborator,
			"reason", res.Reason,
			"error", res.Err,
		)
	}
	if r.bus != nil {
		r.bus.Publish(event.NewCollaboratorResolvedEvent(runID, res.Stage, res.Live, res.Reason))
	}
}

// Forget drops the cached resolutions of a finished run.
func (r *Resolver) Forget(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
}

// ActiveRuns returns how many runs have cached resolutions.
func (r *Resolver) ActiveRuns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}
