// Package placeholder renders the synthetic status frame served while a
// device is unavailable. Frames are rendered once per style and cached;
// regenerated only when the configuration changes.
package placeholder

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/CamStreamer/internal/config"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	defaultWidth  = 640
	defaultHeight = 480
)

type cacheKey struct {
	text       string
	foreground string
	background string
	padding    int
	width      int
	height     int
}

// Generator renders and caches status frames.
type Generator struct {
	mu    sync.Mutex
	cache map[cacheKey]*image.RGBA
}

// NewGenerator creates an empty generator.
func NewGenerator() *Generator {
	return &Generator{
		cache: make(map[cacheKey]*image.RGBA),
	}
}

// Frame returns the placeholder for the given style at width x height,
// rendering it on first use. Zero dimensions fall back to 640x480.
func (g *Generator) Frame(cfg config.PlaceholderConfig, width, height int) *image.RGBA {
	if width <= 0 || height <= 0 {
		width, height = defaultWidth, defaultHeight
	}

	key := cacheKey{
		text:       cfg.Text,
		foreground: cfg.Foreground,
		background: cfg.Background,
		padding:    cfg.Padding,
		width:      width,
		height:     height,
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if img, ok := g.cache[key]; ok {
		return img
	}

	img := render(cfg, width, height)
	g.cache[key] = img
	return img
}

// render draws the background and the centered status text.
func render(cfg config.PlaceholderConfig, width, height int) *image.RGBA {
	fg := parseHexColor(cfg.Foreground, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	bg := parseHexColor(cfg.Background, color.RGBA{R: 32, G: 32, B: 32, A: 255})

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

	if cfg.Text == "" {
		return img
	}

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
	}

	textWidth := int(d.MeasureString(cfg.Text) >> 6)
	textX := (width - textWidth) / 2
	if textX < cfg.Padding {
		textX = cfg.Padding
	}
	textY := height/2 + face.Height/2

	d.Dot = fixed.Point26_6{X: fixed.I(textX), Y: fixed.I(textY)}
	d.DrawString(cfg.Text)

	return img
}

// parseHexColor parses "#rrggbb" (or "rrggbb"), falling back to def.
func parseHexColor(s string, def color.RGBA) color.RGBA {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return def
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return def
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}
}
