package device

import "strings"

// Factory routes a source identifier to the backend able to open it:
// http(s) URLs go to the MJPEG opener, "screen:" sources to the X11 screen
// opener, everything else (numeric index or device path) to the ffmpeg pipe.
type Factory struct {
	Local  Opener
	MJPEG  Opener
	Screen Opener
}

// NewFactory builds a factory with the default backends.
func NewFactory() *Factory {
	return &Factory{
		Local:  &FFmpegOpener{},
		MJPEG:  &MJPEGOpener{},
		Screen: &ScreenOpener{},
	}
}

// Open routes to the matching backend.
func (f *Factory) Open(source string) (Handle, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return f.MJPEG.Open(source)
	case strings.HasPrefix(source, "screen:"):
		return f.Screen.Open(source)
	default:
		return f.Local.Open(source)
	}
}
