// Package buffer retains frames produced by an acquisition loop for its
// consumers. Two modes exist: a latest-value slot overwritten by every write,
// and a bounded FIFO queue. The queue's overflow policy is drop-oldest: a
// write to a full queue evicts the head, keeping end-to-end latency bounded
// rather than blocking the producer.
package buffer

import (
	"sync"
	"time"

	"github.com/bryanchriswhite/CamStreamer/internal/device"
)

// Buffer is the single point of synchronization between the acquisition
// worker and external readers.
type Buffer interface {
	// Put stores a frame; never blocks
	Put(frame device.Frame)

	// Peek returns the most recently stored frame without consuming it
	Peek() (device.Frame, bool)

	// Next returns a frame per the buffer's mode, waiting up to timeout
	// when none is available. Latest mode does not consume: repeated calls
	// with no intervening write see the same frame. Queue mode pops in
	// production order.
	Next(timeout time.Duration) (device.Frame, bool)

	// Len reports the number of retained frames
	Len() int
}

// Latest is a single-slot buffer; writes overwrite unconditionally and reads
// are repeatable until the next write.
type Latest struct {
	mu     sync.RWMutex
	frame  device.Frame
	has    bool
	change chan struct{} // closed and replaced on every Put
}

// NewLatest creates an empty latest-value buffer.
func NewLatest() *Latest {
	return &Latest{
		change: make(chan struct{}),
	}
}

// Put overwrites the slot and wakes any waiting reader.
func (l *Latest) Put(frame device.Frame) {
	l.mu.Lock()
	l.frame = frame
	l.has = true
	close(l.change)
	l.change = make(chan struct{})
	l.mu.Unlock()
}

// Peek returns the slot value.
func (l *Latest) Peek() (device.Frame, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frame, l.has
}

// Next returns the slot value, waiting up to timeout for the first write.
func (l *Latest) Next(timeout time.Duration) (device.Frame, bool) {
	l.mu.RLock()
	if l.has {
		frame := l.frame
		l.mu.RUnlock()
		return frame, true
	}
	change := l.change
	l.mu.RUnlock()

	if timeout <= 0 {
		return device.Frame{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-change:
		return l.Peek()
	case <-timer.C:
		return device.Frame{}, false
	}
}

// Len reports 0 or 1.
func (l *Latest) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.has {
		return 1
	}
	return 0
}

// Queue is a bounded FIFO with drop-oldest overflow.
type Queue struct {
	ch chan device.Frame

	mu   sync.RWMutex
	last device.Frame
	has  bool
}

// NewQueue creates a queue holding at most capacity frames.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan device.Frame, capacity),
	}
}

// Put appends the frame, evicting the oldest entry when full.
func (q *Queue) Put(frame device.Frame) {
	q.mu.Lock()
	q.last = frame
	q.has = true
	q.mu.Unlock()

	for {
		select {
		case q.ch <- frame:
			return
		default:
		}
		// full: evict the head and retry
		select {
		case <-q.ch:
		default:
		}
	}
}

// Peek returns the most recently written frame without consuming.
func (q *Queue) Peek() (device.Frame, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.last, q.has
}

// Next pops the oldest frame, waiting up to timeout.
func (q *Queue) Next(timeout time.Duration) (device.Frame, bool) {
	select {
	case frame := <-q.ch:
		return frame, true
	default:
	}

	if timeout <= 0 {
		return device.Frame{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-q.ch:
		return frame, true
	case <-timer.C:
		return device.Frame{}, false
	}
}

// Len reports the number of queued frames.
func (q *Queue) Len() int {
	return len(q.ch)
}
