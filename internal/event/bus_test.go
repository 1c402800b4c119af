package event

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewBus()

	var got []string
	bus.Subscribe(TypeRunStarted, func(e Event) {
		got = append(got, e.(RunStartedEvent).RunID)
	})

	bus.Publish(NewRunStartedEvent("r1", "manual", "cli"))
	bus.Publish(NewRunFinishedEvent("r1", "manual", "succeeded", 1, 0, ""))

	if len(got) != 1 || got[0] != "r1" {
		t.Errorf("got %v, want [r1]", got)
	}
}

func TestBus_CategoryPattern(t *testing.T) {
	bus := NewBus()

	var types []string
	bus.Subscribe("run.*", func(e Event) { types = append(types, e.EventType()) })

	bus.Publish(NewRunStartedEvent("r", "manual", ""))
	bus.Publish(NewAttemptStartedEvent("r", 1))
	bus.Publish(NewStageCompletedEvent("r", 1, "ideas", "success", 0))
	bus.Publish(newBaseEvent("runner.other"))

	if len(types) != 2 {
		t.Fatalf("got %v, want run.started and run.attempt_started", types)
	}
}

func TestBus_SubscribeAllOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(Event) { order = append(order, "all") })
	bus.Subscribe(TypeScheduleFired, func(Event) { order = append(order, "specific") })

	bus.Publish(NewScheduleFiredEvent("daily", true))

	if len(order) != 2 || order[0] != "all" || order[1] != "specific" {
		t.Errorf("handlers should run in registration order, got %v", order)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	id := bus.Subscribe(TypeChangeDetected, func(Event) { calls++ })
	bus.Subscribe(TypeChangeDetected, func(Event) { calls += 10 })

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false for known ID")
	}
	if bus.Unsubscribe(id) {
		t.Error("second Unsubscribe should return false")
	}

	bus.Publish(NewChangeDetectedEvent([]string{"main.go"}))
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe("test.event", func(Event) {
		calls++
		panic("handler panic")
	})
	bus.Subscribe("test.event", func(Event) { calls++ })

	bus.Publish(newBaseEvent("test.event"))

	if calls != 2 {
		t.Errorf("expected both handlers to run despite panic, got %d calls", calls)
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()
	bus.SubscribeAll(func(Event) {})
	bus.Subscribe("a.b", func(Event) {})
	bus.Clear()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Clear", bus.SubscriptionCount())
	}
}

func TestBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus()

	var count atomic.Int64
	bus.SubscribeAll(func(Event) { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Publish(NewResourceSampledEvent(10, 20, "none"))
		}()
		go func() {
			defer wg.Done()
			id := bus.Subscribe("x.y", func(Event) {})
			bus.Unsubscribe(id)
		}()
	}
	wg.Wait()

	if count.Load() != 20 {
		t.Errorf("count = %d, want 20", count.Load())
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := bus.Subscribe("t", func(Event) {})
		if seen[id] {
			t.Fatalf("duplicate subscription ID %s", id)
		}
		seen[id] = true
	}
}
