package device

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// ScreenOpener captures a region of the X11 root window, exposing the desktop
// as a capture device. Sources look like "screen:" for the whole root window
// or "screen:WxH+X+Y" for a region.
type ScreenOpener struct{}

// Open connects to the X server and resolves the capture region.
func (o *ScreenOpener) Open(source string) (Handle, error) {
	spec := strings.TrimPrefix(source, "screen:")

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, &OpenError{Source: source, Err: fmt.Errorf("connect to X server: %w", err)}
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	region := image.Rect(0, 0, int(screen.WidthInPixels), int(screen.HeightInPixels))
	if spec != "" {
		var w, h, x, y int
		if _, err := fmt.Sscanf(spec, "%dx%d+%d+%d", &w, &h, &x, &y); err != nil {
			conn.Close()
			return nil, &OpenError{Source: source, Err: fmt.Errorf("bad region %q", spec)}
		}
		region = image.Rect(x, y, x+w, y+h)
	}

	return &screenHandle{
		source: source,
		conn:   conn,
		root:   screen.Root,
		depth:  int(screen.RootDepth),
		region: region,
	}, nil
}

type screenHandle struct {
	source  string
	conn    *xgb.Conn
	root    xproto.Window
	depth   int
	region  image.Rectangle
	mu      sync.Mutex
	release sync.Once
}

// Read grabs the configured region of the root window.
func (h *screenHandle) Read() (image.Image, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	reply, err := xproto.GetImage(
		h.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(h.root),
		int16(h.region.Min.X), int16(h.region.Min.Y),
		uint16(h.region.Dx()), uint16(h.region.Dy()),
		0xffffffff,
	).Reply()

	if err != nil {
		return nil, &ReadError{Source: h.source, Err: err}
	}

	return h.convertImageData(reply.Data, h.region.Dx(), h.region.Dy()), nil
}

// Release closes the X connection. Safe to call more than once.
func (h *screenHandle) Release() {
	h.release.Do(func() {
		h.conn.Close()
	})
}

// convertImageData converts X11 ZPixmap data to RGBA.
func (h *screenHandle) convertImageData(data []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	if h.depth == 24 || h.depth == 32 {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := (y*width + x) * 4
				if i+3 < len(data) {
					// BGRA to RGBA
					img.Set(x, y, color.RGBA{
						R: data[i+2],
						G: data[i+1],
						B: data[i],
						A: 255,
					})
				}
			}
		}
	}

	return img
}
