// Package colorutil provides shared color utilities for the stitcher's
// diagnostic overlays.
package colorutil

import (
	"image/color"
	"math/rand"

	"github.com/lucasb-eyer/go-colorful"
)

// Common overlay colors.
var (
	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Green = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Red   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// Palette returns n saturated colors with pseudo-random hues. The same seed
// always produces the same palette.
func Palette(n int, seed int64) []color.RGBA {
	rng := rand.New(rand.NewSource(seed))
	out := make([]color.RGBA, n)
	for i := range out {
		c := colorful.Hsv(rng.Float64()*360, 0.65+0.35*rng.Float64(), 0.75+0.25*rng.Float64())
		r, g, b := c.Clamped().RGB255()
		out[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return out
}
