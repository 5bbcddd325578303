// Package geometry provides basic geometric types used throughout the application.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Add returns the sum of two points.
func (p Point2D) Add(other Point2D) Point2D {
	return Point2D{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Rect represents a rectangle with floating-point coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Corners returns the four corners in clockwise image order
// (top-left, top-right, bottom-right, bottom-left).
func (r Rect) Corners() [4]Point2D {
	return [4]Point2D{
		{X: r.X, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y + r.Height},
		{X: r.X, Y: r.Y + r.Height},
	}
}

// MaxX returns the right edge.
func (r Rect) MaxX() float64 { return r.X + r.Width }

// MaxY returns the bottom edge.
func (r Rect) MaxY() float64 { return r.Y + r.Height }

// Centroid computes the centroid (average position) of a set of points.
func Centroid(points []Point2D) Point2D {
	if len(points) == 0 {
		return Point2D{}
	}
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(points))
	return Point2D{X: sumX / n, Y: sumY / n}
}

// BoundingBox computes the axis-aligned bounding box of a set of points.
func BoundingBox(points []Point2D) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Homography represents a 3x3 projective transform acting on homogeneous
// coordinates. Indices are [row][column].
//
//	[h00 h01 h02]
//	[h10 h11 h12]
//	[h20 h21 h22]
type Homography [3][3]float64

// Identity returns the identity transform.
func Identity() Homography {
	return Homography{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Translation returns a translation transform.
func Translation(tx, ty float64) Homography {
	return Homography{{1, 0, tx}, {0, 1, ty}, {0, 0, 1}}
}

// ApplyW maps p and returns the de-homogenized point together with the
// homogeneous w coordinate before division.
func (h Homography) ApplyW(p Point2D) (Point2D, float64) {
	x := h[0][0]*p.X + h[0][1]*p.Y + h[0][2]
	y := h[1][0]*p.X + h[1][1]*p.Y + h[1][2]
	w := h[2][0]*p.X + h[2][1]*p.Y + h[2][2]
	return Point2D{X: x / w, Y: y / w}, w
}

// Apply maps p through the transform, dividing by the homogeneous coordinate.
func (h Homography) Apply(p Point2D) Point2D {
	q, _ := h.ApplyW(p)
	return q
}

// Compose returns this transform composed with another (h * other), so that
// the result applies other first.
func (h Homography) Compose(other Homography) Homography {
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = h[r][0]*other[0][c] + h[r][1]*other[1][c] + h[r][2]*other[2][c]
		}
	}
	return out
}

// Determinant returns the determinant of the 3x3 matrix.
func (h Homography) Determinant() float64 {
	return h[0][0]*(h[1][1]*h[2][2]-h[1][2]*h[2][1]) -
		h[0][1]*(h[1][0]*h[2][2]-h[1][2]*h[2][0]) +
		h[0][2]*(h[1][0]*h[2][1]-h[1][1]*h[2][0])
}

// Inverse returns the inverse transform, if it exists.
func (h Homography) Inverse() (Homography, bool) {
	det := h.Determinant()
	if math.Abs(det) < 1e-12 || !h.IsFinite() {
		return Homography{}, false
	}
	inv := 1.0 / det
	return Homography{
		{
			(h[1][1]*h[2][2] - h[1][2]*h[2][1]) * inv,
			(h[0][2]*h[2][1] - h[0][1]*h[2][2]) * inv,
			(h[0][1]*h[1][2] - h[0][2]*h[1][1]) * inv,
		},
		{
			(h[1][2]*h[2][0] - h[1][0]*h[2][2]) * inv,
			(h[0][0]*h[2][2] - h[0][2]*h[2][0]) * inv,
			(h[0][2]*h[1][0] - h[0][0]*h[1][2]) * inv,
		},
		{
			(h[1][0]*h[2][1] - h[1][1]*h[2][0]) * inv,
			(h[0][1]*h[2][0] - h[0][0]*h[2][1]) * inv,
			(h[0][0]*h[1][1] - h[0][1]*h[1][0]) * inv,
		},
	}, true
}

// Normalize scales the matrix so that h22 == 1. Returns false when h22 is
// too close to zero to divide by.
func (h Homography) Normalize() (Homography, bool) {
	s := h[2][2]
	if math.Abs(s) < 1e-12 {
		return h, false
	}
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = h[r][c] / s
		}
	}
	return out, true
}

// IsFinite reports whether every entry is a finite number.
func (h Homography) IsFinite() bool {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if math.IsNaN(h[r][c]) || math.IsInf(h[r][c], 0) {
				return false
			}
		}
	}
	return true
}

// FromMatrix creates a Homography from a 3x3 gonum matrix.
func FromMatrix(m mat.Matrix) Homography {
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r][c] = m.At(r, c)
		}
	}
	return h
}

// MaxAbsDiff returns the largest element-wise absolute difference between
// two transforms.
func (h Homography) MaxAbsDiff(other Homography) float64 {
	var d float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			d = math.Max(d, math.Abs(h[r][c]-other[r][c]))
		}
	}
	return d
}
