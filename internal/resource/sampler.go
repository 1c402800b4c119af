package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sampler reads host CPU and memory usage as percentages.
type Sampler interface {
	Sample(ctx context.Context) (cpuPct, ramPct float64, err error)
}

// SystemSampler reads the local host through gopsutil.
type SystemSampler struct {
	// Window is the CPU measurement interval.
	Window time.Duration
}

// NewSystemSampler creates a SystemSampler measuring CPU over one second.
func NewSystemSampler() *SystemSampler {
	return &SystemSampler{Window: time.Second}
}

// Sample blocks for Window while measuring CPU usage.
func (s *SystemSampler) Sample(ctx context.Context) (float64, float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, s.Window, false)
	if err != nil {
		return 0, 0, fmt.Errorf("read cpu usage: %w", err)
	}
	if len(pcts) == 0 {
		return 0, 0, fmt.Errorf("read cpu usage: no data")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read memory usage: %w", err)
	}
	return pcts[0], vm.UsedPercent, nil
}
