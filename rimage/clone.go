package rimage

import (
	"image"
	"image/draw"
)

// CloneToRGBA returns a fresh RGBA copy of `img`, rebased so its bounds start at (0, 0). The
// result never shares pixel memory with the input.
func CloneToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
