package notify

import (
	"testing"
)

// TestPublishDelivers verifies every subscriber of an event receives each
// published payload exactly once.
func TestPublishDelivers(t *testing.T) {
	n := New()

	var got []string
	n.Subscribe(EventFrameReady, func(p Payload) {
		got = append(got, p.Device)
	})

	n.Publish(EventFrameReady, Payload{Device: "cam1"})
	n.Publish(EventFrameReady, Payload{Device: "cam2"})

	if len(got) != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", len(got))
	}
	if got[0] != "cam1" || got[1] != "cam2" {
		t.Errorf("Unexpected delivery order: %v", got)
	}
}

// TestEventsAreIndependent verifies a subscriber only sees the event it
// registered for.
func TestEventsAreIndependent(t *testing.T) {
	n := New()

	ready := 0
	available := 0
	n.Subscribe(EventFrameReady, func(Payload) { ready++ })
	n.Subscribe(EventFrameAvailable, func(Payload) { available++ })

	n.Publish(EventFrameReady, Payload{Device: "cam1"})

	if ready != 1 {
		t.Errorf("Expected 1 frame-ready delivery, got %d", ready)
	}
	if available != 0 {
		t.Errorf("Expected 0 frame-available deliveries, got %d", available)
	}
}

// TestUnsubscribe verifies a removed callback receives no further payloads
// and that unsubscribing twice is harmless.
func TestUnsubscribe(t *testing.T) {
	n := New()

	calls := 0
	unsubscribe := n.Subscribe(EventFrameReady, func(Payload) { calls++ })

	n.Publish(EventFrameReady, Payload{Device: "cam1"})
	unsubscribe()
	n.Publish(EventFrameReady, Payload{Device: "cam1"})
	unsubscribe()

	if calls != 1 {
		t.Errorf("Expected 1 delivery, got %d", calls)
	}
	if n.Subscribers(EventFrameReady) != 0 {
		t.Errorf("Expected 0 subscribers, got %d", n.Subscribers(EventFrameReady))
	}
}

// TestPanickingSubscriberIsolated verifies a panic in one callback neither
// propagates to the publisher nor starves the remaining subscribers.
func TestPanickingSubscriberIsolated(t *testing.T) {
	n := New()

	n.Subscribe(EventFrameReady, func(Payload) {
		panic("subscriber failure")
	})
	survived := 0
	n.Subscribe(EventFrameReady, func(Payload) { survived++ })

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Publish let a subscriber panic escape: %v", r)
		}
	}()

	n.Publish(EventFrameReady, Payload{Device: "cam1"})
	n.Publish(EventFrameReady, Payload{Device: "cam1"})

	if survived != 2 {
		t.Errorf("Expected healthy subscriber to receive 2 payloads, got %d", survived)
	}
}

// TestSubscribers reports counts per event.
func TestSubscribers(t *testing.T) {
	n := New()

	if n.Subscribers(EventFrameReady) != 0 {
		t.Error("Expected empty notifier to report 0 subscribers")
	}

	n.Subscribe(EventFrameReady, func(Payload) {})
	n.Subscribe(EventFrameReady, func(Payload) {})
	n.Subscribe(EventFrameAvailable, func(Payload) {})

	if got := n.Subscribers(EventFrameReady); got != 2 {
		t.Errorf("Expected 2 frame-ready subscribers, got %d", got)
	}
	if got := n.Subscribers(EventFrameAvailable); got != 1 {
		t.Errorf("Expected 1 frame-available subscriber, got %d", got)
	}
}
