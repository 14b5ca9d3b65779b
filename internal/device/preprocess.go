package device

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Resize scales img to width x height. A non-positive dimension or an
// already-matching size returns img unchanged.
func Resize(img image.Image, width, height int) image.Image {
	if img == nil || width <= 0 || height <= 0 {
		return img
	}

	bounds := img.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)
	return dst
}
