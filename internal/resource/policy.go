package resource

import (
	"fmt"
	"time"
)

// Default policy values.
const (
	DefaultRAMThreshold   = 80.0
	DefaultCPUThreshold   = 90.0
	DefaultCooldownPeriod = 30 * time.Second
)

// Option configures a Policy.
type Option func(*Policy)

// WithRAMThreshold sets the memory usage percentage above which the pipeline
// is paused.
func WithRAMThreshold(pct float64) Option {
	return func(p *Policy) { p.ramThreshold = pct }
}

// WithCPUThreshold sets the CPU usage percentage above which the pipeline is
// paused.
func WithCPUThreshold(pct float64) Option {
	return func(p *Policy) { p.cpuThreshold = pct }
}

// WithCooldownPeriod sets how long the pipeline stays paused after a breach.
func WithCooldownPeriod(d time.Duration) Option {
	return func(p *Policy) { p.cooldownPeriod = d }
}

// Policy holds the pressure thresholds. It is immutable after construction.
type Policy struct {
	ramThreshold   float64
	cpuThreshold   float64
	cooldownPeriod time.Duration
}

// NewPolicy creates a Policy with the given options.
// Unset options use defaults.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		ramThreshold:   DefaultRAMThreshold,
		cpuThreshold:   DefaultCPUThreshold,
		cooldownPeriod: DefaultCooldownPeriod,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cooldown returns how long a pause lasts.
func (p *Policy) Cooldown() time.Duration {
	return p.cooldownPeriod
}

// Evaluate returns ActionPause when either reading exceeds its threshold.
// A reading equal to the threshold is not a breach.
func (p *Policy) Evaluate(cpuPct, ramPct float64) Decision {
	switch {
	case ramPct > p.ramThreshold:
		return Decision{
			Action: ActionPause,
			Reason: fmt.Sprintf("RAM %.1f%% exceeds %.1f%%", ramPct, p.ramThreshold),
		}
	case cpuPct > p.cpuThreshold:
		return Decision{
			Action: ActionPause,
			Reason: fmt.Sprintf("CPU %.1f%% exceeds %.1f%%", cpuPct, p.cpuThreshold),
		}
	}
	return Decision{Action: ActionNone}
}
