// Package correspond turns raw detector or matcher output into a filtered,
// ordered set of point correspondences between two images.
package correspond

import (
	"fmt"

	"image-stitcher/pkg/geometry"
)

// Encoding identifies the descriptor representation produced by a detector.
type Encoding int

const (
	// EncodingFloat descriptors are compared by Euclidean distance (SIFT).
	EncodingFloat Encoding = iota
	// EncodingBinary descriptors are compared by Hamming distance (ORB).
	EncodingBinary
)

func (e Encoding) String() string {
	switch e {
	case EncodingFloat:
		return "float"
	case EncodingBinary:
		return "binary"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// Features is the output of a local feature detector on one image.
// Keypoints[i] is described by Float[i] or Bits[i] depending on Encoding.
type Features struct {
	Keypoints []geometry.Point2D
	Encoding  Encoding
	Float     [][]float32
	Bits      [][]byte
}

// Len returns the number of keypoints.
func (f Features) Len() int {
	return len(f.Keypoints)
}

// descriptorLen returns the common descriptor width, or an error when the
// descriptors are missing or ragged.
func (f Features) descriptorLen() (int, error) {
	var n, width int
	switch f.Encoding {
	case EncodingFloat:
		n = len(f.Float)
		if n > 0 {
			width = len(f.Float[0])
		}
		for _, d := range f.Float {
			if len(d) != width {
				return 0, fmt.Errorf("ragged float descriptors")
			}
		}
	case EncodingBinary:
		n = len(f.Bits)
		if n > 0 {
			width = len(f.Bits[0])
		}
		for _, d := range f.Bits {
			if len(d) != width {
				return 0, fmt.Errorf("ragged binary descriptors")
			}
		}
	default:
		return 0, fmt.Errorf("unknown encoding %s", f.Encoding)
	}
	if n != len(f.Keypoints) {
		return 0, fmt.Errorf("%d keypoints but %d descriptors", len(f.Keypoints), n)
	}
	return width, nil
}

// Correspondence pairs a point in the primary image (A) with a point in the
// secondary image (B). Distance is the descriptor distance, or the
// matcher's score for dense back ends.
type Correspondence struct {
	A        geometry.Point2D `json:"a"`
	B        geometry.Point2D `json:"b"`
	Distance float64          `json:"distance"`
}

// Set is an ordered list of correspondences. Duplicates are tolerated.
type Set []Correspondence

// Len returns the number of correspondences.
func (s Set) Len() int {
	return len(s)
}

// PointsA returns the primary-image points in set order.
func (s Set) PointsA() []geometry.Point2D {
	out := make([]geometry.Point2D, len(s))
	for i, c := range s {
		out[i] = c.A
	}
	return out
}

// PointsB returns the secondary-image points in set order.
func (s Set) PointsB() []geometry.Point2D {
	out := make([]geometry.Point2D, len(s))
	for i, c := range s {
		out[i] = c.B
	}
	return out
}

// FilterOptions configures the ratio test and the output cap.
type FilterOptions struct {
	Ratio      float64
	MaxMatches int
}

// DefaultFilterOptions returns the reference filter settings.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		Ratio:      0.75,
		MaxMatches: 600,
	}
}
