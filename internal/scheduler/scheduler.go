package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/event"
	"github.com/Iron-Ham/autoproducer/internal/logging"
	"github.com/Iron-Ham/autoproducer/internal/pipeline"
	"github.com/Iron-Ham/autoproducer/internal/production"
)

// Defaults.
const (
	DefaultDailyAt       = "00:00"
	DefaultCheckInterval = 60 * time.Second
)

// Runner starts pipeline runs. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Trigger(trigger pipeline.Trigger, reason string) (string, error)
	TriggerBrief(trigger pipeline.Trigger, reason string, brief production.Brief) (string, error)
}

// Config holds the scheduler settings.
type Config struct {
	// DailyAt is the local wall-clock time of the daily run, "HH:MM".
	DailyAt       string
	CheckInterval time.Duration
	// Debug fires a run as soon as the scheduler starts.
	Debug bool
	// Channels are the production presets TriggerChannel selects by name.
	Channels map[string]production.Brief
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBus publishes a ScheduleFiredEvent for every fire.
func WithBus(b *event.Bus) Option {
	return func(s *Scheduler) { s.bus = b }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// Scheduler fires the daily run.
type Scheduler struct {
	cfg    Config
	hour   int
	minute int
	runner Runner
	bus    *event.Bus
	logger *logging.Logger
	now    func() time.Time

	mu        sync.Mutex
	lastCheck time.Time
	lastFired time.Time
	lastDue   time.Time // daily occurrence most recently fired
	cancel    context.CancelFunc
}

// ParseDailyAt parses an "HH:MM" time of day.
func ParseDailyAt(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid daily trigger time %q, want HH:MM: %w", s, errors.ErrInvalidInput)
	}
	return t.Hour(), t.Minute(), nil
}

// New creates a Scheduler.
func New(cfg Config, runner Runner, opts ...Option) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("scheduler: runner is required")
	}
	if cfg.DailyAt == "" {
		cfg.DailyAt = DefaultDailyAt
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	hour, minute, err := ParseDailyAt(cfg.DailyAt)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	s := &Scheduler{
		cfg:    cfg,
		hour:   hour,
		minute: minute,
		runner: runner,
		logger: logging.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("scheduler")
	return s, nil
}

// Start runs the check loop. It blocks until the context is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	if s.lastCheck.IsZero() {
		s.lastCheck = s.now()
	}
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		"daily_at", s.cfg.DailyAt, "check_interval", s.cfg.CheckInterval, "next_fire", s.NextFire())

	if s.cfg.Debug {
		s.logger.Info("debug mode, starting a run immediately")
		s.fire(s.now(), "debug mode", false)
	}

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Check()
		}
	}
}

// Stop ends the check loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Check fires the daily run if an occurrence of the daily time passed since
// the previous check and that occurrence has not fired yet. A window that
// spans several occurrences, such as after a host suspend, fires once. It
// reports whether it fired.
func (s *Scheduler) Check() bool {
	now := s.now()

	s.mu.Lock()
	prev := s.lastCheck
	s.lastCheck = now
	if prev.IsZero() {
		prev = now
	}
	due := s.latestOccurrence(now)
	fire := due.After(prev) && !sameDay(s.lastDue, due)
	if fire {
		s.lastDue = due
	}
	s.mu.Unlock()

	if !fire {
		return false
	}
	s.fire(now, "daily schedule "+s.cfg.DailyAt, true)
	return true
}

// latestOccurrence returns the last daily time at or before now.
func (s *Scheduler) latestOccurrence(now time.Time) time.Time {
	due := s.occurrence(now)
	if due.After(now) {
		due = s.occurrence(now.AddDate(0, 0, -1))
	}
	return due
}

// fire triggers a scheduled run. Only daily fires count against the
// once-per-day limit.
func (s *Scheduler) fire(now time.Time, reason string, daily bool) {
	if daily {
		s.mu.Lock()
		s.lastFired = now
		s.mu.Unlock()
	}

	runID, err := s.runner.Trigger(pipeline.TriggerScheduled, reason)
	switch {
	case errors.Is(err, errors.ErrRunActive):
		s.logger.Info("scheduled run skipped, a run is already active", "reason", reason)
	case err != nil:
		s.logger.Error("scheduled run failed to start", "reason", reason, "error", err)
	default:
		s.logger.Info("scheduled run started", "reason", reason, "run_id", runID)
	}
	if s.bus != nil {
		s.bus.Publish(event.NewScheduleFiredEvent(reason, err == nil))
	}
}

// Trigger requests a manual run. It returns errors.ErrRunActive, after
// logging it, when a run is already active.
func (s *Scheduler) Trigger(reason string) (string, error) {
	if reason == "" {
		reason = "manual trigger"
	}
	runID, err := s.runner.Trigger(pipeline.TriggerManual, reason)
	if errors.Is(err, errors.ErrRunActive) {
		s.logger.Info("manual trigger ignored, a run is already active", "reason", reason)
	}
	return runID, err
}

// TriggerChannel requests a manual run with the named channel preset. An
// empty channel behaves like Trigger.
func (s *Scheduler) TriggerChannel(channel, reason string) (string, error) {
	if channel == "" {
		return s.Trigger(reason)
	}
	brief, ok := s.cfg.Channels[channel]
	if !ok {
		return "", fmt.Errorf("unknown channel %q: %w", channel, errors.ErrInvalidInput)
	}
	if brief.Channel == "" {
		brief.Channel = channel
	}
	if reason == "" {
		reason = "manual trigger for " + channel
	}
	runID, err := s.runner.TriggerBrief(pipeline.TriggerManual, reason, brief)
	if errors.Is(err, errors.ErrRunActive) {
		s.logger.Info("manual trigger ignored, a run is already active", "reason", reason, "channel", channel)
	}
	return runID, err
}

// Channels returns the configured preset names, sorted.
func (s *Scheduler) Channels() []string {
	names := make([]string, 0, len(s.cfg.Channels))
	for name := range s.cfg.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextFire returns the next time the daily run is due.
func (s *Scheduler) NextFire() time.Time {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.occurrence(now)
	if !next.After(now) || sameDay(s.lastDue, next) {
		next = s.occurrence(now.AddDate(0, 0, 1))
	}
	return next
}

// LastFired returns when the scheduler last fired, zero if never.
func (s *Scheduler) LastFired() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFired
}

// occurrence returns the trigger time on day's calendar date.
func (s *Scheduler) occurrence(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, s.hour, s.minute, 0, 0, day.Location())
}

func sameDay(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
