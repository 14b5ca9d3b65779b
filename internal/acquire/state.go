package acquire

// State describes a device's connection lifecycle. Transitions are driven
// solely by the acquisition worker; external callers only read it.
type State int32

const (
	// StateStopped means the worker is not running and the handle is released
	StateStopped State = iota
	// StateConnecting is the initial open attempt after start
	StateConnecting
	// StateStreaming means frames are being read from an open handle
	StateStreaming
	// StateReconnecting means the device is unavailable and reopen attempts
	// are spaced by the reconnect delay
	StateReconnecting
	// StatePaused is reported while the pause gate is closed; the underlying
	// connection state is preserved and restored on resume
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
