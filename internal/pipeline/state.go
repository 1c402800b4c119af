package pipeline

import (
	"context"
	"fmt"
	"sync"
)

var transitions = map[State][]State{
	StateIdle:      {StateRunning},
	StateRunning:   {StatePaused, StateSucceeded, StateFailed, StateAborted},
	StatePaused:    {StateRunning, StateSucceeded, StateFailed, StateAborted},
	StateSucceeded: {StateIdle},
	StateFailed:    {StateIdle},
	StateAborted:   {StateIdle},
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IllegalTransitionError is returned for a transition outside the table.
type IllegalTransitionError struct {
	From, To State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal state transition %s → %s", e.From, e.To)
}

// gate blocks stage dispatch while the orchestrator is paused.
type gate struct {
	mu     sync.Mutex
	closed chan struct{}
}

// hold makes subsequent waits block until release.
func (g *gate) hold() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed == nil {
		g.closed = make(chan struct{})
	}
}

// release unblocks every waiter.
func (g *gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed != nil {
		close(g.closed)
		g.closed = nil
	}
}

// wait returns nil once the gate is open, or the context's cause.
func (g *gate) wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.closed
	g.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
