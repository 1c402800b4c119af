package event

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/autoproducer/internal/logging"
)

// Handler is a function that handles an event.
type Handler func(Event)

// wildcard is the pattern matching every event type.
const wildcard = "*"

type subscription struct {
	id      string
	pattern string
	handler Handler
}

// matches reports whether the subscription receives eventType. Patterns are
// an exact type, "*" or a category prefix ending in ".*" such as "run.*".
func (s subscription) matches(eventType string) bool {
	switch {
	case s.pattern == wildcard:
		return true
	case strings.HasSuffix(s.pattern, ".*"):
		return strings.HasPrefix(eventType, strings.TrimSuffix(s.pattern, "*"))
	default:
		return s.pattern == eventType
	}
}

// Bus is a synchronous pub-sub event bus. Handlers run on the publisher's
// goroutine in registration order.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID atomic.Uint64
	logger *logging.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger that receives handler panics.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates a new event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for an event type or pattern and returns
// an ID for Unsubscribe.
func (b *Bus) Subscribe(pattern string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := "sub-" + strconv.FormatUint(b.nextID.Add(1), 10)
	b.subs = append(b.subs, subscription{id: id, pattern: pattern, handler: handler})
	return id
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(wildcard, handler)
}

// Unsubscribe removes a subscription. It reports whether the ID was found.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish dispatches event to every matching handler. A panicking handler
// is logged and does not stop delivery to the rest.
func (b *Bus) Publish(event Event) {
	eventType := event.EventType()

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.matches(eventType) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		b.safeCall(s, event)
	}
}

func (b *Bus) safeCall(s subscription, event Event) {
	var pc panics.Catcher
	pc.Try(func() { s.handler(event) })
	if r := pc.Recovered(); r != nil {
		b.logger.Error("event handler panicked",
			"event", event.EventType(),
			"subscription", s.id,
			"panic", r.Value,
			"stack", string(r.Stack),
		)
	}
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}
