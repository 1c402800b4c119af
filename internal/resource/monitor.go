package resource

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/event"
	"github.com/Iron-Ham/autoproducer/internal/logging"
)

// Monitor defaults.
const (
	DefaultSampleInterval = 10 * time.Second
	DefaultHistoryLimit   = 64
)

// Pauser is the part of the orchestrator the monitor drives.
type Pauser interface {
	Pause(reason string) error
	Resume(reason string) error
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithBus publishes a ResourceSampledEvent for every sample.
func WithBus(b *event.Bus) MonitorOption {
	return func(m *Monitor) { m.bus = b }
}

// WithLogger sets the monitor's logger.
func WithLogger(l *logging.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSampleInterval sets the time between samples.
func WithSampleInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithHistoryLimit sets how many samples History keeps.
func WithHistoryLimit(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.historyLimit = n
		}
	}
}

// Monitor samples the host on a fixed interval and pauses the pipeline
// while it is under pressure.
type Monitor struct {
	sampler Sampler
	pauser  Pauser
	policy  *Policy
	bus     *event.Bus
	logger  *logging.Logger

	interval     time.Duration
	historyLimit int

	mu      sync.Mutex
	history []Sample
	cancel  context.CancelFunc
	paused  bool
}

// NewMonitor creates a Monitor. A nil policy uses the defaults.
func NewMonitor(sampler Sampler, pauser Pauser, policy *Policy, opts ...MonitorOption) *Monitor {
	if policy == nil {
		policy = NewPolicy()
	}
	m := &Monitor{
		sampler:      sampler,
		pauser:       pauser,
		policy:       policy,
		logger:       logging.NopLogger(),
		interval:     DefaultSampleInterval,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("resource")
	return m
}

// Sample takes one reading and evaluates the policy against it. The sample is
// recorded in the history; acting on it is left to the caller.
func (m *Monitor) Sample(ctx context.Context) (Sample, Decision, error) {
	cpuPct, ramPct, err := m.sampler.Sample(ctx)
	if err != nil {
		return Sample{}, Decision{}, err
	}
	d := m.policy.Evaluate(cpuPct, ramPct)
	s := Sample{
		Timestamp: time.Now(),
		CPUPct:    cpuPct,
		RAMPct:    ramPct,
		Action:    d.Action,
	}
	m.record(s)
	return s, d, nil
}

// Start runs the sampling loop. It blocks until the context is cancelled or
// Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	defer cancel()

	m.logger.Info("resource monitor started",
		"interval", m.interval,
		"ram_threshold", m.policy.ramThreshold,
		"cpu_threshold", m.policy.cpuThreshold,
		"cooldown", m.policy.Cooldown(),
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		s, d, err := m.Sample(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("resource sample failed, skipping", "error", err)
		case d.Action == ActionPause:
			if !m.pauseFor(ctx, s, d.Reason) {
				return
			}
		default:
			m.logger.Debug("resource sample", "cpu_pct", s.CPUPct, "ram_pct", s.RAMPct)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pauseFor pauses the pipeline for the cooldown period and resumes it. It
// returns false if ctx ended during the cooldown.
func (m *Monitor) pauseFor(ctx context.Context, s Sample, reason string) bool {
	m.logger.Warn("resource pressure, pausing pipeline",
		"cpu_pct", s.CPUPct, "ram_pct", s.RAMPct, "reason", reason, "cooldown", m.policy.Cooldown())
	if err := m.pauser.Pause(reason); err != nil {
		m.logger.Error("failed to pause pipeline", "error", err)
	}
	m.setPaused(true)

	timer := time.NewTimer(m.policy.Cooldown())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	if err := m.pauser.Resume("resource cooldown elapsed"); err != nil {
		m.logger.Error("failed to resume pipeline", "error", err)
	}
	m.setPaused(false)
	m.record(Sample{Timestamp: time.Now(), CPUPct: s.CPUPct, RAMPct: s.RAMPct, Action: ActionResume})
	m.logger.Info("resource cooldown elapsed, pipeline resumed")
	return true
}

// Stop cancels the sampling loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Paused reports whether the monitor is currently holding the pipeline.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// History returns the retained samples, oldest first.
func (m *Monitor) History() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sample(nil), m.history...)
}

func (m *Monitor) setPaused(v bool) {
	m.mu.Lock()
	m.paused = v
	m.mu.Unlock()
}

func (m *Monitor) record(s Sample) {
	m.mu.Lock()
	m.history = append(m.history, s)
	if over := len(m.history) - m.historyLimit; over > 0 {
		m.history = append([]Sample(nil), m.history[over:]...)
	}
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(event.NewResourceSampledEvent(s.CPUPct, s.RAMPct, s.Action.String()))
	}
}
