// Package acquire owns the per-device acquisition engine: one background
// goroutine per device running the connect/read/reconnect/pause cycle,
// publishing produced frames to a buffer and a notifier. Open and read
// failures are non-fatal and retried indefinitely; only Stop ends the worker.
package acquire

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/CamStreamer/internal/buffer"
	"github.com/bryanchriswhite/CamStreamer/internal/config"
	"github.com/bryanchriswhite/CamStreamer/internal/device"
	"github.com/bryanchriswhite/CamStreamer/internal/logger"
	"github.com/bryanchriswhite/CamStreamer/internal/notify"
	"github.com/bryanchriswhite/CamStreamer/internal/placeholder"
	"github.com/rs/zerolog"
)

// Stats is a snapshot of a loop's counters.
type Stats struct {
	State      State     `json:"state"`
	Frames     uint64    `json:"frames"`
	ReadErrors uint64    `json:"read_errors"`
	Reconnects uint64    `json:"reconnects"`
	LastFrame  time.Time `json:"last_frame"`
	FPSReal    float64   `json:"fps_real"`
}

// Loop acquires frames from one device in a dedicated worker goroutine.
type Loop struct {
	cfg      config.Camera
	opener   device.Opener
	buf      buffer.Buffer
	notifier *notify.Notifier
	gen      *placeholder.Generator
	log      *zerolog.Logger

	delay atomic.Int64 // inter-iteration delay in nanoseconds; 0 = unthrottled

	connState atomic.Int32
	gate      *gate

	mu      sync.Mutex // guards lifecycle fields
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	handleMu sync.Mutex
	handle   device.Handle

	seq        atomic.Uint64
	frames     atomic.Uint64
	readErrs   atomic.Uint64
	reconnects atomic.Uint64
	lastFrame  atomic.Int64 // unix nanos
	startedAt  time.Time
}

// New validates cfg and builds a loop. A nil opener uses the default backend
// factory; a nil notifier gets a private one.
func New(cfg config.Camera, opener device.Opener, notifier *notify.Notifier) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if opener == nil {
		opener = device.NewFactory()
	}
	if notifier == nil {
		notifier = notify.New()
	}

	var buf buffer.Buffer
	switch cfg.Buffer {
	case config.BufferQueue:
		buf = buffer.NewQueue(cfg.Capacity)
	default:
		buf = buffer.NewLatest()
	}

	l := &Loop{
		cfg:      cfg,
		opener:   opener,
		buf:      buf,
		notifier: notifier,
		gen:      placeholder.NewGenerator(),
		gate:     newGate(),
		log:      logger.WithDevice("acquire", cfg.Name),
	}
	l.delay.Store(int64(cfg.Delay()))

	return l, nil
}

// Name returns the device name.
func (l *Loop) Name() string { return l.cfg.Name }

// Config returns the immutable device configuration.
func (l *Loop) Config() config.Camera { return l.cfg }

// Notifier returns the notifier this loop publishes to.
func (l *Loop) Notifier() *notify.Notifier { return l.notifier }

// Start launches the worker goroutine. No-op when already running or after
// Stop.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started || l.stopped {
		return
	}

	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.started = true
	l.startedAt = time.Now()

	l.wg.Add(1)
	go l.run()
}

// Stop requests cooperative cancellation and blocks until the worker has
// exited and the device handle is released. Idempotent. Cancellation is
// observed at every blocking wait (rate delay, reconnect delay, pause gate,
// in-flight read), so Stop returns in bounded time regardless of device
// reachability or pause state.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.started {
		l.stopped = true
		l.mu.Unlock()
		return
	}
	alreadyStopped := l.stopped
	l.stopped = true
	cancel := l.cancel
	l.mu.Unlock()

	if !alreadyStopped {
		cancel()
		// unblock an in-flight read
		l.closeHandle()
	}
	l.wg.Wait()
}

// Pause closes the pause gate; the worker halts at the next iteration top
// without affecting device connectivity.
func (l *Loop) Pause() {
	l.gate.pause()
	l.log.Debug().Msg("Paused")
}

// Resume reopens the pause gate.
func (l *Loop) Resume() {
	l.gate.resume()
	l.log.Debug().Msg("Resumed")
}

// SetRate updates the inter-iteration delay. Zero or negative fps means the
// loop reads as fast as the device allows.
func (l *Loop) SetRate(fps float64) {
	if fps <= 0 {
		l.delay.Store(0)
		return
	}
	l.delay.Store(int64(float64(time.Second) / fps))
}

// State reports the current device state. While paused and running the state
// is StatePaused; the underlying connection state is preserved and becomes
// visible again on resume.
func (l *Loop) State() State {
	s := State(l.connState.Load())
	if s != StateStopped && l.gate.isPaused() {
		return StatePaused
	}
	return s
}

// Running reports whether the worker has been started and not yet stopped.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started && !l.stopped
}

// Read returns the freshest available frame, the placeholder when the device
// is unavailable (and placeholders are enabled), or nothing when no frame
// arrives within timeout. It never fails for connectivity reasons.
func (l *Loop) Read(timeout time.Duration) (device.Frame, bool) {
	if !l.hasHandle() && l.cfg.Placeholder.Enabled {
		return l.placeholderFrame(), true
	}
	return l.buf.Next(timeout)
}

// Frame is the non-blocking accessor for the last stored record.
func (l *Loop) Frame() (device.Frame, bool) {
	return l.buf.Peek()
}

// BufferLen reports the number of frames currently retained.
func (l *Loop) BufferLen() int { return l.buf.Len() }

// Stats returns a snapshot of the loop's counters.
func (l *Loop) Stats() Stats {
	s := Stats{
		State:      l.State(),
		Frames:     l.frames.Load(),
		ReadErrors: l.readErrs.Load(),
		Reconnects: l.reconnects.Load(),
	}
	if nanos := l.lastFrame.Load(); nanos != 0 {
		s.LastFrame = time.Unix(0, nanos)
	}
	l.mu.Lock()
	startedAt := l.startedAt
	l.mu.Unlock()
	if !startedAt.IsZero() {
		if uptime := time.Since(startedAt).Seconds(); uptime > 0 {
			s.FPSReal = float64(s.Frames) / uptime
		}
	}
	return s
}

// run is the worker. Per iteration: read one frame from an open handle or
// attempt a (re)open, apply the rate delay, then block on the pause gate.
// Every wait observes cancellation.
func (l *Loop) run() {
	defer l.wg.Done()
	defer l.connState.Store(int32(StateStopped))
	defer l.closeHandle()

	l.connState.Store(int32(StateConnecting))
	l.log.Info().Str("source", l.cfg.Source).Msg("Acquisition started")

	for {
		if l.ctx.Err() != nil {
			l.log.Info().Msg("Acquisition stopped")
			return
		}

		if l.hasHandle() {
			if l.readFrame() {
				if !l.sleep(time.Duration(l.delay.Load())) {
					return
				}
			} else if l.ctx.Err() == nil {
				l.demote()
			}
		} else {
			if l.openDevice() {
				l.connState.Store(int32(StateStreaming))
			} else {
				if State(l.connState.Load()) != StateReconnecting {
					l.reconnects.Add(1)
					l.connState.Store(int32(StateReconnecting))
				}
				l.publishPlaceholder()
				if !l.sleep(l.cfg.ReconnectWait()) {
					return
				}
			}
		}

		if !l.gate.wait(l.ctx) {
			return
		}
	}
}

// openDevice attempts one open; the handle is only retained while the loop is
// still live.
func (l *Loop) openDevice() bool {
	handle, err := l.opener.Open(l.cfg.Source)
	if err != nil {
		l.log.Debug().Err(err).Msg("Open failed")
		return false
	}

	l.handleMu.Lock()
	if l.ctx.Err() != nil {
		l.handleMu.Unlock()
		handle.Release()
		return false
	}
	l.handle = handle
	l.handleMu.Unlock()

	l.log.Info().Msg("Device opened")
	return true
}

// readFrame performs one read, preprocesses, stores and publishes the result.
func (l *Loop) readFrame() bool {
	handle := l.currentHandle()
	if handle == nil {
		return false
	}

	img, err := handle.Read()
	if err != nil {
		if l.ctx.Err() == nil {
			l.readErrs.Add(1)
			l.log.Warn().Err(err).Msg("Read failed")
		}
		return false
	}

	img = device.Resize(img, l.cfg.Width, l.cfg.Height)

	frame := device.Frame{
		Image:     img,
		Timestamp: time.Now(),
		Seq:       l.seq.Add(1),
	}

	l.buf.Put(frame)
	l.frames.Add(1)
	l.lastFrame.Store(frame.Timestamp.UnixNano())

	l.notifier.Publish(notify.EventFrameReady, notify.Payload{Device: l.cfg.Name, Frame: frame})
	l.notifier.Publish(notify.EventFrameAvailable, notify.Payload{Device: l.cfg.Name})

	return true
}

// demote releases the failed handle and enters the reconnect cycle.
func (l *Loop) demote() {
	l.closeHandle()
	l.reconnects.Add(1)
	l.connState.Store(int32(StateReconnecting))
	l.log.Warn().Msg("Device lost, reconnecting")
}

// publishPlaceholder emits the placeholder through the notifier while the
// device is down, when configured to do so.
func (l *Loop) publishPlaceholder() {
	if !l.cfg.Placeholder.Enabled || !l.cfg.Placeholder.Publish {
		return
	}
	l.notifier.Publish(notify.EventFrameReady, notify.Payload{Device: l.cfg.Name, Frame: l.placeholderFrame()})
	l.notifier.Publish(notify.EventFrameAvailable, notify.Payload{Device: l.cfg.Name})
}

func (l *Loop) placeholderFrame() device.Frame {
	return device.Frame{
		Image:     l.gen.Frame(l.cfg.Placeholder, l.cfg.Width, l.cfg.Height),
		Timestamp: time.Now(),
		Seq:       l.seq.Load(),
	}
}

// sleep waits d unless cancelled first; reports false on cancellation.
func (l *Loop) sleep(d time.Duration) bool {
	if d <= 0 {
		return l.ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-l.ctx.Done():
		return false
	}
}

func (l *Loop) hasHandle() bool {
	l.handleMu.Lock()
	defer l.handleMu.Unlock()
	return l.handle != nil
}

func (l *Loop) currentHandle() device.Handle {
	l.handleMu.Lock()
	defer l.handleMu.Unlock()
	return l.handle
}

// closeHandle releases the handle at most once per open.
func (l *Loop) closeHandle() {
	l.handleMu.Lock()
	handle := l.handle
	l.handle = nil
	l.handleMu.Unlock()

	if handle != nil {
		handle.Release()
	}
}
