package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/event"
	"github.com/Iron-Ham/autoproducer/internal/pipeline"
	"github.com/Iron-Ham/autoproducer/internal/production"
)

type fakeRunner struct {
	mu       sync.Mutex
	active   bool
	triggers []pipeline.Trigger
	reasons  []string
	briefs   []production.Brief
}

func (f *fakeRunner) Trigger(trigger pipeline.Trigger, reason string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		return "", errors.ErrRunActive
	}
	f.triggers = append(f.triggers, trigger)
	f.reasons = append(f.reasons, reason)
	return "run-1", nil
}

func (f *fakeRunner) TriggerBrief(trigger pipeline.Trigger, reason string, brief production.Brief) (string, error) {
	id, err := f.Trigger(trigger, reason)
	if err == nil {
		f.mu.Lock()
		f.briefs = append(f.briefs, brief)
		f.mu.Unlock()
	}
	return id, err
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.triggers)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.March, day, hour, minute, 0, 0, time.UTC)
}

func newScheduler(t *testing.T, cfg Config, r Runner, clock *fakeClock, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(cfg, r, append(opts, WithClock(clock.Now))...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestParseDailyAt(t *testing.T) {
	tests := []struct {
		in           string
		hour, minute int
		wantErr      bool
	}{
		{"00:00", 0, 0, false},
		{"06:30", 6, 30, false},
		{"23:59", 23, 59, false},
		{"24:00", 0, 0, true},
		{"6pm", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			h, m, err := ParseDailyAt(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, errors.ErrInvalidInput) {
					t.Errorf("err = %v, want ErrInvalidInput", err)
				}
				return
			}
			if h != tt.hour || m != tt.minute {
				t.Errorf("got %02d:%02d, want %02d:%02d", h, m, tt.hour, tt.minute)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("New succeeded without a runner")
	}
	if _, err := New(Config{DailyAt: "noon"}, &fakeRunner{}); err == nil {
		t.Error("New accepted an invalid trigger time")
	}
}

func TestCheck_FiresOncePerDay(t *testing.T) {
	r := &fakeRunner{}
	clock := &fakeClock{now: at(1, 23, 58)}
	s := newScheduler(t, Config{}, r, clock)

	steps := []struct {
		now  time.Time
		want bool
	}{
		{at(1, 23, 58), false},
		{at(1, 23, 59), false},
		{at(2, 0, 0), true},
		{at(2, 0, 1), false},
		{at(2, 12, 0), false},
		{at(2, 23, 59), false},
		{at(3, 0, 1), true},
	}
	for _, step := range steps {
		clock.Set(step.now)
		if got := s.Check(); got != step.want {
			t.Errorf("Check at %s = %v, want %v", step.now.Format(time.Stamp), got, step.want)
		}
	}
	if r.count() != 2 {
		t.Errorf("triggers = %d, want 2", r.count())
	}
	if r.triggers[0] != pipeline.TriggerScheduled {
		t.Errorf("trigger = %s, want scheduled", r.triggers[0])
	}
}

func TestCheck_DoesNotFireForTimeBeforeStart(t *testing.T) {
	r := &fakeRunner{}
	clock := &fakeClock{now: at(1, 15, 0)}
	s := newScheduler(t, Config{DailyAt: "09:00"}, r, clock)

	s.Check()
	clock.Set(at(1, 15, 1))
	if s.Check() {
		t.Error("fired for a trigger time that passed before the scheduler started")
	}
}

func TestCheck_SkipsWhenRunActive(t *testing.T) {
	r := &fakeRunner{active: true}
	bus := event.NewBus()
	var fired []event.ScheduleFiredEvent
	bus.Subscribe(event.TypeScheduleFired, func(e event.Event) {
		fired = append(fired, e.(event.ScheduleFiredEvent))
	})
	clock := &fakeClock{now: at(1, 5, 59)}
	s := newScheduler(t, Config{DailyAt: "06:00"}, r, clock, WithBus(bus))

	s.Check()
	clock.Set(at(1, 6, 0))
	if !s.Check() {
		t.Fatal("Check did not fire")
	}
	if len(fired) != 1 || fired[0].Accepted {
		t.Errorf("events = %+v, want one rejected fire", fired)
	}

	// a skipped fire is not retried the same day
	r.active = false
	clock.Set(at(1, 6, 1))
	if s.Check() {
		t.Error("fired twice on the same day")
	}
}

func TestCheck_WindowCrossingMidnight(t *testing.T) {
	r := &fakeRunner{}
	clock := &fakeClock{now: at(10, 23, 57)}
	s := newScheduler(t, Config{DailyAt: "23:58", CheckInterval: 5 * time.Minute}, r, clock)

	s.Check()
	clock.Set(at(11, 0, 2))
	if !s.Check() {
		t.Fatal("occurrence before midnight was skipped")
	}
	if r.count() != 1 {
		t.Errorf("triggers = %d, want 1", r.count())
	}

	// the late fire belongs to day 10; day 11 still fires
	if got := s.NextFire(); !got.Equal(at(11, 23, 58)) {
		t.Errorf("NextFire = %v, want day 11 23:58", got)
	}
	clock.Set(at(11, 23, 59))
	if !s.Check() {
		t.Error("day 11 occurrence did not fire")
	}
}

func TestCheck_LongGapFiresOnce(t *testing.T) {
	r := &fakeRunner{}
	clock := &fakeClock{now: at(1, 5, 0)}
	s := newScheduler(t, Config{DailyAt: "06:00"}, r, clock)

	s.Check()
	clock.Set(at(4, 5, 0))
	if !s.Check() {
		t.Fatal("no fire after a three day gap")
	}
	clock.Set(at(4, 5, 30))
	if s.Check() {
		t.Error("fired again for an occurrence already covered")
	}
	if r.count() != 1 {
		t.Errorf("triggers = %d, want 1", r.count())
	}
}

func TestNextFire(t *testing.T) {
	r := &fakeRunner{}
	clock := &fakeClock{now: at(1, 5, 0)}
	s := newScheduler(t, Config{DailyAt: "06:00"}, r, clock)

	if got := s.NextFire(); !got.Equal(at(1, 6, 0)) {
		t.Errorf("NextFire = %v, want today 06:00", got)
	}

	s.Check()
	clock.Set(at(1, 6, 0))
	s.Check()
	if got := s.NextFire(); !got.Equal(at(2, 6, 0)) {
		t.Errorf("NextFire after firing = %v, want tomorrow 06:00", got)
	}

	clock.Set(at(1, 7, 0))
	if got := s.NextFire(); !got.Equal(at(2, 6, 0)) {
		t.Errorf("NextFire = %v, want tomorrow 06:00", got)
	}
}

func TestTrigger_Manual(t *testing.T) {
	r := &fakeRunner{}
	s := newScheduler(t, Config{}, r, &fakeClock{now: at(1, 12, 0)})

	id, err := s.Trigger("")
	if err != nil || id != "run-1" {
		t.Fatalf("Trigger = %q, %v", id, err)
	}
	if r.triggers[0] != pipeline.TriggerManual || r.reasons[0] != "manual trigger" {
		t.Errorf("trigger = %s %q", r.triggers[0], r.reasons[0])
	}

	r.active = true
	if _, err := s.Trigger("again"); !errors.Is(err, errors.ErrRunActive) {
		t.Errorf("err = %v, want ErrRunActive", err)
	}
}

func TestTriggerChannel(t *testing.T) {
	r := &fakeRunner{}
	cfg := Config{Channels: map[string]production.Brief{
		"gaming": {Topic: "Gaming", Description: "Gameplay and commentary", Count: 2},
		"drama":  {Topic: "Drama"},
	}}
	s := newScheduler(t, cfg, r, &fakeClock{now: at(1, 12, 0)})

	if got := s.Channels(); len(got) != 2 || got[0] != "drama" || got[1] != "gaming" {
		t.Errorf("Channels() = %v", got)
	}

	if _, err := s.TriggerChannel("gaming", ""); err != nil {
		t.Fatalf("TriggerChannel(gaming): %v", err)
	}
	if len(r.briefs) != 1 {
		t.Fatalf("briefs = %d, want 1", len(r.briefs))
	}
	b := r.briefs[0]
	if b.Topic != "Gaming" || b.Channel != "gaming" || b.Description != "Gameplay and commentary" || b.Count != 2 {
		t.Errorf("brief = %+v", b)
	}
	if r.triggers[0] != pipeline.TriggerManual || r.reasons[0] != "manual trigger for gaming" {
		t.Errorf("trigger = %s %q", r.triggers[0], r.reasons[0])
	}

	if _, err := s.TriggerChannel("cooking", ""); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("unknown channel err = %v, want ErrInvalidInput", err)
	}
	if r.count() != 1 {
		t.Errorf("triggers = %d after unknown channel, want 1", r.count())
	}

	// No channel is a plain manual trigger with the default brief.
	if _, err := s.TriggerChannel("", "by hand"); err != nil {
		t.Fatalf("TriggerChannel(\"\"): %v", err)
	}
	if r.count() != 2 || len(r.briefs) != 1 || r.reasons[1] != "by hand" {
		t.Errorf("triggers = %d briefs = %d reasons = %v", r.count(), len(r.briefs), r.reasons)
	}

	r.active = true
	if _, err := s.TriggerChannel("drama", ""); !errors.Is(err, errors.ErrRunActive) {
		t.Errorf("err = %v, want ErrRunActive", err)
	}
}

func TestStart_DebugFiresImmediately(t *testing.T) {
	r := &fakeRunner{}
	s := newScheduler(t, Config{Debug: true, CheckInterval: time.Hour}, r, &fakeClock{now: at(1, 12, 0)})

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for r.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.count() != 1 {
		t.Fatalf("triggers = %d, want 1", r.count())
	}
	if !s.LastFired().IsZero() {
		t.Error("debug fire counted against the daily limit")
	}

	s.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
