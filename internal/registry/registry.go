// Package registry composes many acquisition loops under uniform control:
// bulk and single-target start/stop/pause/resume, aggregated reads, and
// subscription fan-out. Single-target operations no-op silently for unknown
// names. Each registry owns its devices independently; multiple registries
// can coexist in one process.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/bryanchriswhite/CamStreamer/internal/acquire"
	"github.com/bryanchriswhite/CamStreamer/internal/config"
	"github.com/bryanchriswhite/CamStreamer/internal/device"
	"github.com/bryanchriswhite/CamStreamer/internal/logger"
	"github.com/bryanchriswhite/CamStreamer/internal/notify"
)

// Registry holds one acquisition loop per device name.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*acquire.Loop
	opener  device.Opener
}

// New builds a registry from named camera configs. Every entry gets its own
// loop and notifier; invalid configs fail the whole construction. A nil
// opener uses the default backend factory.
func New(cameras map[string]config.Camera, opener device.Opener) (*Registry, error) {
	r := &Registry{
		devices: make(map[string]*acquire.Loop, len(cameras)),
		opener:  opener,
	}

	for name, cam := range cameras {
		if cam.Name == "" {
			cam.Name = name
		}
		if err := r.Add(cam); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Add registers a loop for cam. Duplicate names are a ConfigError; a name
// maps to exactly one live loop while registered.
func (r *Registry) Add(cam config.Camera) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[cam.Name]; exists {
		return &config.ConfigError{Device: cam.Name, Field: "name", Reason: "duplicate device name"}
	}

	loop, err := acquire.New(cam, r.opener, notify.New())
	if err != nil {
		return err
	}

	r.devices[cam.Name] = loop
	logger.WithComponent("registry").Info().
		Str("device", cam.Name).
		Str("source", cam.Source).
		Msg("Device registered")
	return nil
}

// Remove stops and unregisters the named loop; no-op for unknown names.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	loop, ok := r.devices[name]
	delete(r.devices, name)
	r.mu.Unlock()

	if ok {
		loop.Stop()
	}
}

// Len reports the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Names returns the registered device names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Device returns the named loop, or nil when unknown.
func (r *Registry) Device(name string) *acquire.Loop {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices[name]
}

// snapshot copies the loop set so control operations run without the lock.
func (r *Registry) snapshot() []*acquire.Loop {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loops := make([]*acquire.Loop, 0, len(r.devices))
	for _, loop := range r.devices {
		loops = append(loops, loop)
	}
	return loops
}

// StartAll launches every worker.
func (r *Registry) StartAll() {
	for _, loop := range r.snapshot() {
		loop.Start()
	}
}

// StopAll shuts every worker down, returning after all have exited.
func (r *Registry) StopAll() {
	for _, loop := range r.snapshot() {
		loop.Stop()
	}
}

// PauseAll closes every pause gate.
func (r *Registry) PauseAll() {
	for _, loop := range r.snapshot() {
		loop.Pause()
	}
}

// ResumeAll reopens every pause gate.
func (r *Registry) ResumeAll() {
	for _, loop := range r.snapshot() {
		loop.Resume()
	}
}

// StartOnly starts the named device; silent no-op when unknown.
func (r *Registry) StartOnly(name string) {
	if loop := r.Device(name); loop != nil {
		loop.Start()
	}
}

// StopOnly stops the named device; silent no-op when unknown.
func (r *Registry) StopOnly(name string) {
	if loop := r.Device(name); loop != nil {
		loop.Stop()
	}
}

// PauseOnly pauses the named device; silent no-op when unknown.
func (r *Registry) PauseOnly(name string) {
	if loop := r.Device(name); loop != nil {
		loop.Pause()
	}
}

// ResumeOnly resumes the named device; silent no-op when unknown.
func (r *Registry) ResumeOnly(name string) {
	if loop := r.Device(name); loop != nil {
		loop.Resume()
	}
}

// SetSpeedOnly updates one device's rate without affecting the others;
// silent no-op when unknown.
func (r *Registry) SetSpeedOnly(name string, fps float64) {
	if loop := r.Device(name); loop != nil {
		loop.SetRate(fps)
	}
}

// Read gathers each device's Read result independently; there is no
// cross-device synchronization. The map holds exactly one entry per device
// that produced a frame (or placeholder) within timeout.
func (r *Registry) Read(timeout time.Duration) map[string]device.Frame {
	loops := r.snapshot()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		frames = make(map[string]device.Frame, len(loops))
	)

	for _, loop := range loops {
		wg.Add(1)
		go func(loop *acquire.Loop) {
			defer wg.Done()
			if frame, ok := loop.Read(timeout); ok {
				mu.Lock()
				frames[loop.Name()] = frame
				mu.Unlock()
			}
		}(loop)
	}

	wg.Wait()
	return frames
}

// Frames returns each device's last stored record without blocking.
func (r *Registry) Frames() map[string]device.Frame {
	frames := make(map[string]device.Frame)
	for _, loop := range r.snapshot() {
		if frame, ok := loop.Frame(); ok {
			frames[loop.Name()] = frame
		}
	}
	return frames
}

// FrameOf returns the named device's last stored record.
func (r *Registry) FrameOf(name string) (device.Frame, bool) {
	if loop := r.Device(name); loop != nil {
		return loop.Frame()
	}
	return device.Frame{}, false
}

// States reports every device's current state.
func (r *Registry) States() map[string]acquire.State {
	states := make(map[string]acquire.State)
	for _, loop := range r.snapshot() {
		states[loop.Name()] = loop.State()
	}
	return states
}

// Subscribe forwards the subscription to every current device and returns a
// single unsubscribe function covering all of them.
func (r *Registry) Subscribe(event notify.Event, cb notify.Callback) func() {
	unsubs := make([]func(), 0)
	for _, loop := range r.snapshot() {
		unsubs = append(unsubs, loop.Notifier().Subscribe(event, cb))
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
