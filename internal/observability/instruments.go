package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Iron-Ham/autoproducer/internal/event"
)

// MeterName is the instrumentation scope of the pipeline metrics.
const MeterName = "github.com/Iron-Ham/autoproducer"

// Instruments translates bus events into OpenTelemetry metrics.
type Instruments struct {
	bus    *event.Bus
	subIDs []string

	runs       metric.Int64Counter
	runSeconds metric.Float64Histogram
	abandoned  metric.Int64Counter
	stages     metric.Float64Histogram
	stubs      metric.Int64Counter
	changes    metric.Int64Counter
	fires      metric.Int64Counter

	mu      sync.Mutex
	cpuPct  float64
	ramPct  float64
	pauses  int64
	sampled bool
}

// Register creates the pipeline instruments on meter and subscribes them to
// bus. Call Close to unsubscribe.
func Register(bus *event.Bus, meter metric.Meter) (*Instruments, error) {
	in := &Instruments{bus: bus}
	var err error

	if in.runs, err = meter.Int64Counter("autoproducer.runs",
		metric.WithDescription("Finished pipeline runs by final status and trigger")); err != nil {
		return nil, err
	}
	if in.runSeconds, err = meter.Float64Histogram("autoproducer.run.duration",
		metric.WithDescription("Wall time of finished pipeline runs"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if in.abandoned, err = meter.Int64Counter("autoproducer.attempts.abandoned",
		metric.WithDescription("Attempts abandoned after a required stage failed")); err != nil {
		return nil, err
	}
	if in.stages, err = meter.Float64Histogram("autoproducer.stage.duration",
		metric.WithDescription("Stage execution time by stage and status"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if in.stubs, err = meter.Int64Counter("autoproducer.collaborator.stubs",
		metric.WithDescription("Stages that ran with a stub collaborator")); err != nil {
		return nil, err
	}
	if in.changes, err = meter.Int64Counter("autoproducer.watcher.changes",
		metric.WithDescription("Debounced source change batches")); err != nil {
		return nil, err
	}
	if in.fires, err = meter.Int64Counter("autoproducer.scheduler.fires",
		metric.WithDescription("Scheduled run requests by acceptance")); err != nil {
		return nil, err
	}

	_, err = meter.Float64ObservableGauge("autoproducer.host.cpu",
		metric.WithDescription("Most recent CPU usage sample"),
		metric.WithUnit("%"),
		metric.WithFloat64Callback(func(_ context.Context, obs metric.Float64Observer) error {
			if cpu, _, ok := in.lastSample(); ok {
				obs.Observe(cpu)
			}
			return nil
		}))
	if err != nil {
		return nil, err
	}
	_, err = meter.Float64ObservableGauge("autoproducer.host.ram",
		metric.WithDescription("Most recent memory usage sample"),
		metric.WithUnit("%"),
		metric.WithFloat64Callback(func(_ context.Context, obs metric.Float64Observer) error {
			if _, ram, ok := in.lastSample(); ok {
				obs.Observe(ram)
			}
			return nil
		}))
	if err != nil {
		return nil, err
	}
	_, err = meter.Int64ObservableCounter("autoproducer.resource.pauses",
		metric.WithDescription("Pauses caused by resource pressure"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			in.mu.Lock()
			n := in.pauses
			in.mu.Unlock()
			obs.Observe(n)
			return nil
		}))
	if err != nil {
		return nil, err
	}

	in.subIDs = []string{
		bus.Subscribe(event.TypeRunFinished, in.onRunFinished),
		bus.Subscribe(event.TypeAttemptAbandoned, in.onAttemptAbandoned),
		bus.Subscribe(event.TypeStageCompleted, in.onStageCompleted),
		bus.Subscribe(event.TypeCollaboratorResolved, in.onCollaboratorResolved),
		bus.Subscribe(event.TypeResourceSampled, in.onResourceSampled),
		bus.Subscribe(event.TypeChangeDetected, in.onChangeDetected),
		bus.Subscribe(event.TypeScheduleFired, in.onScheduleFired),
	}
	return in, nil
}

// Close unsubscribes from the bus.
func (in *Instruments) Close() {
	for _, id := range in.subIDs {
		in.bus.Unsubscribe(id)
	}
	in.subIDs = nil
}

func (in *Instruments) lastSample() (cpu, ram float64, ok bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cpuPct, in.ramPct, in.sampled
}

func (in *Instruments) onRunFinished(e event.Event) {
	ev, ok := e.(event.RunFinishedEvent)
	if !ok {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("status", ev.Status),
		attribute.String("trigger", ev.Trigger),
	)
	in.runs.Add(context.Background(), 1, attrs)
	in.runSeconds.Record(context.Background(), ev.Duration.Seconds(), attrs)
}

func (in *Instruments) onAttemptAbandoned(e event.Event) {
	ev, ok := e.(event.AttemptAbandonedEvent)
	if !ok {
		return
	}
	in.abandoned.Add(context.Background(), 1, metric.WithAttributes(attribute.String("stage", ev.Stage)))
}

func (in *Instruments) onStageCompleted(e event.Event) {
	ev, ok := e.(event.StageCompletedEvent)
	if !ok {
		return
	}
	in.stages.Record(context.Background(), ev.Elapsed.Seconds(), metric.WithAttributes(
		attribute.String("stage", ev.Stage),
		attribute.String("status", ev.Status),
	))
}

func (in *Instruments) onCollaboratorResolved(e event.Event) {
	ev, ok := e.(event.CollaboratorResolvedEvent)
	if !ok || ev.Live {
		return
	}
	in.stubs.Add(context.Background(), 1, metric.WithAttributes(attribute.String("stage", ev.Stage)))
}

func (in *Instruments) onResourceSampled(e event.Event) {
	ev, ok := e.(event.ResourceSampledEvent)
	if !ok {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.cpuPct, in.ramPct, in.sampled = ev.CPUPct, ev.RAMPct, true
	if ev.Action == "pause" {
		in.pauses++
	}
}

func (in *Instruments) onChangeDetected(e event.Event) {
	if _, ok := e.(event.ChangeDetectedEvent); ok {
		in.changes.Add(context.Background(), 1)
	}
}

func (in *Instruments) onScheduleFired(e event.Event) {
	ev, ok := e.(event.ScheduleFiredEvent)
	if !ok {
		return
	}
	in.fires.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("accepted", ev.Accepted)))
}
