// Package cvmat converts between Go images, geometry types and gocv Mats.
package cvmat

import (
	"fmt"
	"image"
	"image/draw"

	"image-stitcher/pkg/geometry"

	"gocv.io/x/gocv"
)

// FromRGBA copies img into a new 4-channel 8-bit Mat in RGBA order.
// The caller owns the returned Mat.
func FromRGBA(img *image.RGBA) (gocv.Mat, error) {
	b := img.Bounds()
	pix := img.Pix
	if img.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		pix = packed(img).Pix
	}

	// NewMatFromBytes wraps Go memory; clone so the Mat owns its data.
	view, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, pix)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("image to mat: %w", err)
	}
	defer view.Close()
	return view.Clone(), nil
}

// ToRGBA copies a 4-channel 8-bit Mat into a new *image.RGBA.
func ToRGBA(m gocv.Mat) (*image.RGBA, error) {
	if m.Type() != gocv.MatTypeCV8UC4 {
		return nil, fmt.Errorf("mat to image: want CV_8UC4, got %v", m.Type())
	}
	w, h := m.Cols(), m.Rows()
	data := m.ToBytes()
	if len(data) != w*h*4 {
		return nil, fmt.Errorf("mat to image: %d bytes for %dx%d", len(data), w, h)
	}
	return &image.RGBA{Pix: data, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}, nil
}

// Gray converts any image to a single-channel 8-bit Mat.
func Gray(img image.Image) (gocv.Mat, error) {
	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = packed(img)
	}
	m, err := FromRGBA(rgba)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer m.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(m, &gray, gocv.ColorRGBAToGray)
	return gray, nil
}

// FromHomography returns h as a 3x3 CV_64F Mat.
func FromHomography(h geometry.Homography) gocv.Mat {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, h[r][c])
		}
	}
	return m
}

func packed(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
