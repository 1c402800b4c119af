// Package resource pauses the pipeline while the host is under CPU or memory
// pressure.
//
// A [Monitor] samples the host through a [Sampler] every interval and hands
// each reading to a [Policy]. When a reading breaches a threshold the monitor
// pauses the pipeline, waits out the policy's cooldown without sampling, then
// resumes it unconditionally.
//
//	policy := resource.NewPolicy(
//	    resource.WithRAMThreshold(80),
//	    resource.WithCPUThreshold(90),
//	    resource.WithCooldownPeriod(30 * time.Second),
//	)
//	monitor := resource.NewMonitor(resource.NewSystemSampler(), orch, policy,
//	    resource.WithBus(bus), resource.WithLogger(logger))
//	go monitor.Start(ctx)
//	defer monitor.Stop()
//
// All types in this package are safe for concurrent use.
package resource
