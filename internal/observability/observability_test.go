package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Iron-Ham/autoproducer/internal/event"
)

func TestInitMetrics(t *testing.T) {
	handler, shutdown, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	bus := event.NewBus()
	in, err := Register(bus, otel.Meter(MeterName))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer in.Close()
	bus.Publish(event.NewRunFinishedEvent("run-1", "manual", "succeeded", 1, time.Second, ""))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "autoproducer_runs") {
		t.Errorf("metrics output missing autoproducer_runs:\n%s", rr.Body.String())
	}
}

func TestInitTracer_NoCollector(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "autoproducer", "")
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("aggregation = %T, want Sum[int64]", data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestInstruments_RecordEvents(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	bus := event.NewBus()
	in, err := Register(bus, provider.Meter(MeterName))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	bus.Publish(event.NewRunFinishedEvent("run-1", "scheduled", "failed", 3, time.Minute, "run failed after 3 attempts"))
	bus.Publish(event.NewRunFinishedEvent("run-2", "restart", "succeeded", 1, time.Second, ""))
	bus.Publish(event.NewAttemptAbandonedEvent("run-1", 1, "ideas", "stage ideas timed out", true))
	bus.Publish(event.NewStageCompletedEvent("run-2", 1, "ideas", "success", 2*time.Second))
	bus.Publish(event.NewCollaboratorResolvedEvent("run-2", "music", false, "no collaborator registered"))
	bus.Publish(event.NewCollaboratorResolvedEvent("run-2", "ideas", true, ""))
	bus.Publish(event.NewResourceSampledEvent(95, 40, "pause"))
	bus.Publish(event.NewResourceSampledEvent(20, 45, "none"))
	bus.Publish(event.NewChangeDetectedEvent([]string{"main.go"}))
	bus.Publish(event.NewScheduleFiredEvent("daily schedule 00:00", false))

	got := collect(t, reader)
	checks := []struct {
		name string
		want int64
	}{
		{"autoproducer.runs", 2},
		{"autoproducer.attempts.abandoned", 1},
		{"autoproducer.collaborator.stubs", 1},
		{"autoproducer.resource.pauses", 1},
		{"autoproducer.watcher.changes", 1},
		{"autoproducer.scheduler.fires", 1},
	}
	for _, c := range checks {
		data, ok := got[c.name]
		if !ok {
			t.Errorf("metric %s not collected", c.name)
			continue
		}
		if total := sumOf(t, data); total != c.want {
			t.Errorf("%s = %d, want %d", c.name, total, c.want)
		}
	}

	ram, ok := got["autoproducer.host.ram"].(metricdata.Gauge[float64])
	if !ok || len(ram.DataPoints) != 1 || ram.DataPoints[0].Value != 45 {
		t.Errorf("host.ram = %+v, want the latest sample 45", got["autoproducer.host.ram"])
	}
	stages, ok := got["autoproducer.stage.duration"].(metricdata.Histogram[float64])
	if !ok || len(stages.DataPoints) != 1 || stages.DataPoints[0].Count != 1 {
		t.Errorf("stage.duration = %+v", got["autoproducer.stage.duration"])
	}

	in.Close()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("subscriptions after Close = %d, want 0", bus.SubscriptionCount())
	}
}
