// Package notify implements the synchronous observer channel used to push new
// frames to interested subscribers. Delivery is at-most-once per published
// frame per subscriber; a panicking subscriber is isolated and logged, never
// unwinding into the acquisition loop.
package notify

import (
	"sync"

	"github.com/bryanchriswhite/CamStreamer/internal/device"
	"github.com/bryanchriswhite/CamStreamer/internal/logger"
)

// Event is a subscription key.
type Event string

const (
	// EventFrameReady carries the produced frame and the device name
	EventFrameReady Event = "frame-ready"

	// EventFrameAvailable carries only the device name
	EventFrameAvailable Event = "frame-available"
)

// Payload is delivered to subscribers. Frame is zero-valued for
// EventFrameAvailable.
type Payload struct {
	Device string
	Frame  device.Frame
}

// Callback receives published payloads on the publishing goroutine.
type Callback func(Payload)

// Notifier maintains subscribers keyed by event name.
type Notifier struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Event]map[int]Callback
}

// New creates an empty notifier.
func New() *Notifier {
	return &Notifier{
		subs: make(map[Event]map[int]Callback),
	}
}

// Subscribe registers cb for event and returns its unsubscribe function.
func (n *Notifier) Subscribe(event Event, cb Callback) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++

	if n.subs[event] == nil {
		n.subs[event] = make(map[int]Callback)
	}
	n.subs[event][id] = cb

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs[event], id)
	}
}

// Publish delivers the payload to every subscriber of event, in sequence, on
// the caller's goroutine. Subscriber panics are caught and logged.
func (n *Notifier) Publish(event Event, payload Payload) {
	n.mu.RLock()
	callbacks := make([]Callback, 0, len(n.subs[event]))
	for _, cb := range n.subs[event] {
		callbacks = append(callbacks, cb)
	}
	n.mu.RUnlock()

	for _, cb := range callbacks {
		deliver(event, payload, cb)
	}
}

// Subscribers reports the current subscriber count for event.
func (n *Notifier) Subscribers(event Event) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[event])
}

// deliver invokes one callback, containing any panic.
func deliver(event Event, payload Payload, cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("notify").Error().
				Str("event", string(event)).
				Str("device", payload.Device).
				Interface("panic", r).
				Msg("Subscriber callback panicked")
		}
	}()
	cb(payload)
}
