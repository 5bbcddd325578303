// Package composite sizes the output canvas for a two-image stitch and
// places both images on it.
package composite

import (
	"fmt"
	"image"
	"math"
	"strings"

	apperrors "image-stitcher/internal/errors"
	"image-stitcher/pkg/geometry"
)

const stage = "composite"

// epsilonW bounds the homogeneous coordinate of a projected corner. Corners
// at or below it lie on or behind the line at infinity.
const epsilonW = 1e-9

// Interpolation selects the resampling kernel used when warping.
type Interpolation int

const (
	Bilinear Interpolation = iota
	Nearest
)

func (i Interpolation) String() string {
	switch i {
	case Bilinear:
		return "bilinear"
	case Nearest:
		return "nearest"
	default:
		return "unknown"
	}
}

// ParseInterpolation maps a configuration name to an Interpolation.
func ParseInterpolation(name string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bilinear", "linear":
		return Bilinear, nil
	case "nearest":
		return Nearest, nil
	default:
		return Bilinear, fmt.Errorf("unknown interpolation %q", name)
	}
}

// Options configures canvas sizing and warping.
type Options struct {
	Interpolation Interpolation
	MaxPixels     int64
}

// DefaultOptions returns bilinear warping with a 100 megapixel limit.
func DefaultOptions() Options {
	return Options{
		Interpolation: Bilinear,
		MaxPixels:     100_000_000,
	}
}

// Canvas is the output frame. OriginX, OriginY are the primary-image
// coordinates of the canvas's top-left pixel.
type Canvas struct {
	OriginX int `json:"origin_x"`
	OriginY int `json:"origin_y"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

// Bounds returns the canvas rectangle in canvas coordinates.
func (c Canvas) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.Width, c.Height)
}

// Offset is where the primary image's origin lands on the canvas.
func (c Canvas) Offset() image.Point {
	return image.Point{X: -c.OriginX, Y: -c.OriginY}
}

// Shift returns the translation from primary-image to canvas coordinates.
func (c Canvas) Shift() geometry.Homography {
	return geometry.Translation(float64(-c.OriginX), float64(-c.OriginY))
}

// ComputeCanvas returns the smallest integer-aligned canvas holding the
// primary image and the secondary image mapped through h.
func ComputeCanvas(primary, secondary image.Rectangle, h geometry.Homography, opts Options) (Canvas, error) {
	if primary.Empty() || secondary.Empty() {
		return Canvas{}, apperrors.NewCompositingError(stage, "empty image bounds", nil)
	}
	if !h.IsFinite() {
		return Canvas{}, apperrors.NewCompositingError(stage, "homography is not finite", nil)
	}

	w1, h1 := float64(primary.Dx()), float64(primary.Dy())
	w2, h2 := float64(secondary.Dx()), float64(secondary.Dy())

	pts := []geometry.Point2D{{X: 0, Y: 0}, {X: w1, Y: h1}}
	for _, c := range (geometry.Rect{Width: w2, Height: h2}).Corners() {
		p, w := h.ApplyW(c)
		if w <= epsilonW {
			return Canvas{}, apperrors.NewCompositingError(stage,
				fmt.Sprintf("secondary corner (%g, %g) maps to or behind infinity (w=%g)", c.X, c.Y, w), nil)
		}
		pts = append(pts, p)
	}

	box := geometry.BoundingBox(pts)
	ox := math.Floor(box.X)
	oy := math.Floor(box.Y)
	fw := math.Ceil(box.MaxX() - ox)
	fh := math.Ceil(box.MaxY() - oy)

	if math.IsNaN(fw) || math.IsNaN(fh) || math.IsInf(fw, 0) || math.IsInf(fh, 0) ||
		math.IsInf(ox, 0) || math.IsInf(oy, 0) {
		return Canvas{}, apperrors.NewCompositingError(stage, "canvas size is not finite", nil)
	}
	if fw < 1 || fh < 1 {
		return Canvas{}, apperrors.NewCompositingError(stage,
			fmt.Sprintf("canvas size %gx%g is not positive", fw, fh), nil)
	}
	if opts.MaxPixels > 0 && fw*fh > float64(opts.MaxPixels) {
		return Canvas{}, apperrors.NewCompositingError(stage,
			fmt.Sprintf("canvas %.0fx%.0f exceeds %d pixels", fw, fh, opts.MaxPixels), nil)
	}

	return Canvas{
		OriginX: int(ox),
		OriginY: int(oy),
		Width:   int(fw),
		Height:  int(fh),
	}, nil
}

// Footprint describes where the secondary image lands in primary-image
// coordinates.
type Footprint struct {
	Quad    [4]geometry.Point2D `json:"quad"`
	Overlap float64             `json:"overlap"` // share of the primary covered by the secondary
	Convex  bool                `json:"convex"`
}

// MapFootprint projects the secondary corners through h. A non-convex quad
// means h folds the image and the composite will be distorted.
func MapFootprint(primary, secondary image.Rectangle, h geometry.Homography) Footprint {
	var fp Footprint
	src := (geometry.Rect{Width: float64(secondary.Dx()), Height: float64(secondary.Dy())}).Corners()
	for i, c := range src {
		fp.Quad[i] = h.Apply(c)
	}
	fp.Convex = geometry.IsConvex(fp.Quad[:])

	pr := geometry.Rect{Width: float64(primary.Dx()), Height: float64(primary.Dy())}
	if area := pr.Width * pr.Height; area > 0 && fp.Convex {
		fp.Overlap = geometry.PolygonArea(geometry.ClipToRect(fp.Quad[:], pr)) / area
	}
	return fp
}
