package buffer

import (
	"image"
	"testing"
	"time"

	"github.com/bryanchriswhite/CamStreamer/internal/device"
)

func frame(seq uint64) device.Frame {
	return device.Frame{
		Image:     image.NewRGBA(image.Rect(0, 0, 4, 4)),
		Timestamp: time.Now(),
		Seq:       seq,
	}
}

// TestLatestOverwrite verifies a write replaces the slot unconditionally.
func TestLatestOverwrite(t *testing.T) {
	l := NewLatest()

	l.Put(frame(1))
	l.Put(frame(2))

	got, ok := l.Peek()
	if !ok {
		t.Fatal("Peek returned no frame")
	}
	if got.Seq != 2 {
		t.Errorf("Expected seq 2, got %d", got.Seq)
	}
	if l.Len() != 1 {
		t.Errorf("Expected len 1, got %d", l.Len())
	}
}

// TestLatestRepeatableRead verifies reads do not consume: repeated reads with
// no intervening write return the same sequence number.
func TestLatestRepeatableRead(t *testing.T) {
	l := NewLatest()
	l.Put(frame(7))

	first, ok := l.Next(0)
	if !ok {
		t.Fatal("Next returned no frame")
	}
	second, ok := l.Next(0)
	if !ok {
		t.Fatal("second Next returned no frame")
	}
	if first.Seq != second.Seq {
		t.Errorf("Repeated reads differ: %d vs %d", first.Seq, second.Seq)
	}
}

// TestLatestNextTimeout verifies Next honors the timeout on an empty buffer.
func TestLatestNextTimeout(t *testing.T) {
	l := NewLatest()

	start := time.Now()
	_, ok := l.Next(50 * time.Millisecond)
	elapsed := time.Since(start)

	if ok {
		t.Error("Expected no frame from empty buffer")
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("Next returned too early: %v", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Next blocked too long: %v", elapsed)
	}
}

// TestLatestNextWakesOnPut verifies a waiting reader is woken by the first
// write instead of running into its timeout.
func TestLatestNextWakesOnPut(t *testing.T) {
	l := NewLatest()

	go func() {
		time.Sleep(30 * time.Millisecond)
		l.Put(frame(9))
	}()

	start := time.Now()
	got, ok := l.Next(2 * time.Second)
	if !ok {
		t.Fatal("Next returned no frame")
	}
	if got.Seq != 9 {
		t.Errorf("Expected seq 9, got %d", got.Seq)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Next did not wake on Put, took %v", elapsed)
	}
}

// TestQueueFIFOOrder verifies the consumer observes records in production
// order.
func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue(4)

	for seq := uint64(1); seq <= 3; seq++ {
		q.Put(frame(seq))
	}

	for want := uint64(1); want <= 3; want++ {
		got, ok := q.Next(time.Second)
		if !ok {
			t.Fatalf("Next returned no frame at seq %d", want)
		}
		if got.Seq != want {
			t.Errorf("Expected seq %d, got %d", want, got.Seq)
		}
	}
}

// TestQueueDropOldest verifies the overflow policy: the queue never exceeds
// its capacity and keeps the newest entries.
func TestQueueDropOldest(t *testing.T) {
	q := NewQueue(4)

	for seq := uint64(1); seq <= 10; seq++ {
		q.Put(frame(seq))
		if q.Len() > 4 {
			t.Fatalf("Queue length %d exceeds capacity after seq %d", q.Len(), seq)
		}
	}

	if q.Len() != 4 {
		t.Fatalf("Expected 4 queued frames, got %d", q.Len())
	}

	// oldest six were evicted; 7..10 remain in order
	for want := uint64(7); want <= 10; want++ {
		got, ok := q.Next(time.Second)
		if !ok {
			t.Fatalf("Next returned no frame at seq %d", want)
		}
		if got.Seq != want {
			t.Errorf("Expected seq %d, got %d", want, got.Seq)
		}
	}
}

// TestQueueNextTimeout verifies a read on an empty queue returns nothing
// after the timeout.
func TestQueueNextTimeout(t *testing.T) {
	q := NewQueue(2)

	start := time.Now()
	_, ok := q.Next(50 * time.Millisecond)
	if ok {
		t.Error("Expected no frame from empty queue")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Next blocked too long: %v", elapsed)
	}
}

// TestQueuePeek verifies Peek reflects the most recent write without
// consuming queued entries.
func TestQueuePeek(t *testing.T) {
	q := NewQueue(4)
	q.Put(frame(1))
	q.Put(frame(2))

	got, ok := q.Peek()
	if !ok || got.Seq != 2 {
		t.Errorf("Expected peek seq 2, got %v %d", ok, got.Seq)
	}
	if q.Len() != 2 {
		t.Errorf("Peek consumed entries, len %d", q.Len())
	}
}
