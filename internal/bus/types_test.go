package bus

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestMessageBus_BroadcastReachesSubscriber(t *testing.T) {
	b := NewMessageBus()

	var got atomic.Int32
	b.Subscribe("feed", func(e Event) {
		if e.Name == "feed" {
			got.Add(1)
		}
	})

	b.Broadcast(Event{Name: "feed", Payload: "hello"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got.Load() == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected 1 delivery, got %d", got.Load())
}

func TestMessageBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewMessageBus()

	var got atomic.Int32
	b.Subscribe("status", func(Event) { got.Add(1) })
	b.Unsubscribe("status")
	b.Broadcast(Event{Name: "status"})

	time.Sleep(50 * time.Millisecond)
	if got.Load() != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", got.Load())
	}
}

func TestMessageBus_MultipleSubscribersAllReceive(t *testing.T) {
	b := NewMessageBus()

	var a, c atomic.Int32
	b.Subscribe("a", func(Event) { a.Add(1) })
	b.Subscribe("c", func(Event) { c.Add(1) })

	b.Broadcast(Event{Name: "spawn_task"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a.Load() == 1 && c.Load() == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected both subscribers to receive, got a=%d c=%d", a.Load(), c.Load())
}
