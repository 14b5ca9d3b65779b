package config

import (
	"fmt"
	"time"
)

// BufferMode selects how produced frames are retained for consumers.
type BufferMode string

const (
	// BufferLatest keeps a single slot overwritten by every new frame
	BufferLatest BufferMode = "latest"
	// BufferQueue keeps a bounded FIFO; when full the oldest frame is dropped
	BufferQueue BufferMode = "queue"
)

// PlaceholderConfig styles the synthetic frame served while a device is
// unavailable.
type PlaceholderConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Text       string `json:"text" yaml:"text"`
	Foreground string `json:"foreground" yaml:"foreground"` // hex, e.g. "#ffffff"
	Background string `json:"background" yaml:"background"` // hex, e.g. "#202020"
	Padding    int    `json:"padding" yaml:"padding"`

	// Publish also emits the placeholder through the notifier while the
	// device is down; off by default so observers see only real frames
	Publish bool `json:"publish" yaml:"publish"`
}

// Camera describes one capture device. Treated as immutable once validated;
// the acquisition loop never mutates it.
type Camera struct {
	// Name is the registry key; filled from the map key when omitted
	Name string `json:"name" yaml:"name"`

	// Source is a local index ("0"), a device path, an http(s) MJPEG URL,
	// or a "screen:" region
	Source string `json:"source" yaml:"source"`

	// FPS throttles the acquisition loop; zero reads as fast as the
	// device allows
	FPS float64 `json:"fps" yaml:"fps"`

	// ReconnectDelay is the wait between reopen attempts, in seconds
	ReconnectDelay float64 `json:"reconnect_delay" yaml:"reconnect_delay"`

	// Width and Height resize every frame; zero keeps the native size
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`

	Buffer   BufferMode `json:"buffer" yaml:"buffer"`
	Capacity int        `json:"capacity" yaml:"capacity"`

	Placeholder PlaceholderConfig `json:"placeholder" yaml:"placeholder"`
}

// ConfigError reports invalid configuration. It is the only error surfaced
// synchronously to callers; connectivity failures are retried internally.
type ConfigError struct {
	Device string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("config: device %q: %s: %s", e.Device, e.Field, e.Reason)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate checks the camera configuration eagerly, before any worker starts.
func (c Camera) Validate() error {
	if c.Name == "" {
		return &ConfigError{Field: "name", Reason: "must not be empty"}
	}
	if c.Source == "" {
		return &ConfigError{Device: c.Name, Field: "source", Reason: "must not be empty"}
	}
	if c.FPS < 0 {
		return &ConfigError{Device: c.Name, Field: "fps", Reason: "must not be negative"}
	}
	if c.ReconnectDelay < 0 {
		return &ConfigError{Device: c.Name, Field: "reconnect_delay", Reason: "must not be negative"}
	}
	if c.Width < 0 || c.Height < 0 {
		return &ConfigError{Device: c.Name, Field: "size", Reason: "must not be negative"}
	}
	if (c.Width == 0) != (c.Height == 0) {
		return &ConfigError{Device: c.Name, Field: "size", Reason: "width and height must be set together"}
	}
	switch c.Buffer {
	case BufferLatest:
	case BufferQueue:
		if c.Capacity <= 0 {
			return &ConfigError{Device: c.Name, Field: "capacity", Reason: "queue mode requires capacity > 0"}
		}
	default:
		return &ConfigError{Device: c.Name, Field: "buffer", Reason: fmt.Sprintf("unknown mode %q", c.Buffer)}
	}
	return nil
}

// Delay converts the target FPS into an inter-iteration delay; zero FPS means
// no throttling.
func (c Camera) Delay() time.Duration {
	if c.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.FPS)
}

// ReconnectWait returns the reopen backoff as a duration.
func (c Camera) ReconnectWait() time.Duration {
	return time.Duration(c.ReconnectDelay * float64(time.Second))
}

// Config represents the application configuration.
type Config struct {
	ServerPort int    `json:"server_port" yaml:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level"`

	// Defaults are merged into every camera entry where the entry leaves a
	// field at its zero value
	Defaults Camera `json:"defaults" yaml:"defaults"`

	Cameras map[string]Camera `json:"cameras" yaml:"cameras"`
}
