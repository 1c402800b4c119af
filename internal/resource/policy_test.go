package resource

import (
	"testing"
	"time"
)

func TestNewPolicy_Defaults(t *testing.T) {
	p := NewPolicy()
	if p.ramThreshold != DefaultRAMThreshold {
		t.Errorf("ramThreshold = %v, want %v", p.ramThreshold, DefaultRAMThreshold)
	}
	if p.cpuThreshold != DefaultCPUThreshold {
		t.Errorf("cpuThreshold = %v, want %v", p.cpuThreshold, DefaultCPUThreshold)
	}
	if p.Cooldown() != DefaultCooldownPeriod {
		t.Errorf("cooldown = %v, want %v", p.Cooldown(), DefaultCooldownPeriod)
	}
}

func TestNewPolicy_Options(t *testing.T) {
	p := NewPolicy(
		WithRAMThreshold(70),
		WithCPUThreshold(50),
		WithCooldownPeriod(time.Minute),
	)
	if p.ramThreshold != 70 || p.cpuThreshold != 50 || p.Cooldown() != time.Minute {
		t.Errorf("policy = %+v", p)
	}
}

func TestPolicy_Evaluate(t *testing.T) {
	tests := []struct {
		name       string
		cpu, ram   float64
		wantAction Action
		wantReason string
	}{
		{"idle host", 10, 40, ActionNone, ""},
		{"ram at threshold", 10, 80, ActionNone, ""},
		{"cpu at threshold", 90, 40, ActionNone, ""},
		{"ram breach", 10, 85, ActionPause, "RAM 85.0% exceeds 80.0%"},
		{"cpu breach", 95.5, 40, ActionPause, "CPU 95.5% exceeds 90.0%"},
		{"both breach reports ram", 99, 99, ActionPause, "RAM 99.0% exceeds 80.0%"},
	}
	p := NewPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Evaluate(tt.cpu, tt.ram)
			if d.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", d.Action, tt.wantAction)
			}
			if d.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", d.Reason, tt.wantReason)
			}
		})
	}
}
