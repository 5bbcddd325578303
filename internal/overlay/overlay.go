// Package overlay renders diagnostic views of the correspondence stage.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"image-stitcher/internal/correspond"
	"image-stitcher/pkg/colorutil"
	"image-stitcher/pkg/geometry"

	"github.com/fogleman/gg"
)

// Options configures how overlays are rendered.
type Options struct {
	Radius    float64    // dot radius in pixels
	LineWidth float64    // match line width
	Keypoint  color.RGBA // keypoint dot color
	Seed      int64      // match color palette seed
}

// DefaultOptions returns green 3 pixel dots and 1 pixel match lines.
func DefaultOptions() Options {
	return Options{
		Radius:    3,
		LineWidth: 1,
		Keypoint:  colorutil.Green,
		Seed:      1,
	}
}

// Keypoints draws a filled dot at every point on a copy of img.
func Keypoints(img image.Image, pts []geometry.Point2D, opts Options) *image.RGBA {
	dc := gg.NewContextForRGBA(cloneRGBA(img))
	dc.SetColor(opts.Keypoint)
	for _, p := range pts {
		x, y := pixel(p)
		dc.DrawCircle(x, y, opts.Radius)
		dc.Fill()
	}
	return dc.Image().(*image.RGBA)
}

// Matches places a and b side by side on a black background of size
// max(h1, h2) x (w1 + w2) and joins every correspondence with a line,
// one color per match.
func Matches(a, b image.Image, set correspond.Set, opts Options) *image.RGBA {
	ab, bb := a.Bounds(), b.Bounds()
	w1 := ab.Dx()
	width := w1 + bb.Dx()
	height := max(ab.Dy(), bb.Dy())

	dc := gg.NewContext(width, height)
	dc.SetColor(colorutil.Black)
	dc.Clear()
	dc.DrawImage(a, 0, 0)
	dc.DrawImage(b, w1, 0)

	palette := colorutil.Palette(set.Len(), opts.Seed)
	dc.SetLineWidth(opts.LineWidth)
	for i, c := range set {
		ax, ay := pixel(c.A)
		bx, by := pixel(c.B)
		bx += float64(w1)

		dc.SetColor(palette[i])
		dc.DrawLine(ax, ay, bx, by)
		dc.Stroke()
		dc.DrawCircle(ax, ay, opts.Radius)
		dc.DrawCircle(bx, by, opts.Radius)
		dc.Fill()
	}
	return dc.Image().(*image.RGBA)
}

// pixel truncates a subpixel location onto the integer grid.
func pixel(p geometry.Point2D) (float64, float64) {
	return math.Trunc(p.X), math.Trunc(p.Y)
}

func cloneRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
