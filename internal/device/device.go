// Package device defines the capture collaborator contract: opening a video
// source, reading frames from it, and releasing it. Concrete backends (ffmpeg
// subprocess, HTTP MJPEG, X11 screen) live in this package too; everything
// above it treats a Handle as a black box.
package device

import (
	"fmt"
	"image"
	"time"
)

// Frame is one decoded image sample from a capture device.
type Frame struct {
	// Image holds the decoded pixels
	Image image.Image

	// Timestamp is when the frame was captured
	Timestamp time.Time

	// Seq is a per-device monotonically increasing sequence number,
	// assigned by the acquisition loop after preprocessing
	Seq uint64
}

// Handle is an open video source. Read and Release are called from the
// acquisition worker goroutine; Release may additionally be called once from
// the stop path to unblock an in-flight Read. Implementations must tolerate
// Read returning an error after Release.
type Handle interface {
	// Read blocks until the next frame is decoded or the source fails
	Read() (image.Image, error)

	// Release frees the underlying resources; safe to call more than once
	Release()
}

// Opener opens a source identifier into a live Handle.
type Opener interface {
	Open(source string) (Handle, error)
}

// OpenError indicates a source could not be opened. The acquisition loop
// treats it as transient and retries after the reconnect delay.
type OpenError struct {
	Source string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Source, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// ReadError indicates a mid-stream read failure. The acquisition loop demotes
// the device to reconnecting and retries.
type ReadError struct {
	Source string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Source, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
