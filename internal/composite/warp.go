package composite

import (
	"image"
	"image/color"
	"image/draw"

	"image-stitcher/internal/cvmat"
	apperrors "image-stitcher/internal/errors"
	"image-stitcher/pkg/geometry"

	"gocv.io/x/gocv"
)

// Layers holds both images placed on a shared canvas.
type Layers struct {
	Canvas Canvas
	// Transform maps secondary-image coordinates to canvas coordinates.
	Transform geometry.Homography
	Primary   *image.RGBA
	Warped    *image.RGBA
}

// Compose sizes the canvas, warps the secondary image through
// translate(-origin)*h with OpenCV and copies the primary image at
// the canvas offset. Pixels of either buffer not covered by its source are
// zero.
func Compose(primary, secondary image.Image, h geometry.Homography, opts Options) (*Layers, error) {
	canvas, err := ComputeCanvas(primary.Bounds(), secondary.Bounds(), h, opts)
	if err != nil {
		return nil, err
	}

	t := canvas.Shift().Compose(h)
	if _, ok := t.Inverse(); !ok {
		return nil, apperrors.NewCompositingError(stage, "canvas transform is not invertible", nil)
	}

	base := image.NewRGBA(canvas.Bounds())
	dst := image.Rectangle{Min: canvas.Offset(), Max: canvas.Offset().Add(primary.Bounds().Size())}
	draw.Draw(base, dst, primary, primary.Bounds().Min, draw.Src)

	warped, err := warpPerspective(ToRGBA(secondary), t, canvas.Bounds().Size(), opts.Interpolation)
	if err != nil {
		return nil, err
	}

	return &Layers{
		Canvas:    canvas,
		Transform: t,
		Primary:   base,
		Warped:    warped,
	}, nil
}

// ToRGBA returns img as a zero-origin *image.RGBA, converting if needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// warpPerspective resamples src onto a canvas of the given size through
// the forward transform t. Pixels mapping outside src stay zero.
func warpPerspective(src *image.RGBA, t geometry.Homography, size image.Point, interp Interpolation) (*image.RGBA, error) {
	in, err := cvmat.FromRGBA(src)
	if err != nil {
		return nil, apperrors.NewCompositingError(stage, "cannot convert secondary image", err)
	}
	defer in.Close()

	m := cvmat.FromHomography(t)
	defer m.Close()

	flags := gocv.InterpolationLinear
	if interp == Nearest {
		flags = gocv.InterpolationNearestNeighbor
	}

	out := gocv.NewMat()
	defer out.Close()
	gocv.WarpPerspectiveWithParams(in, &out, m, size, flags, gocv.BorderConstant, color.RGBA{})

	warped, err := cvmat.ToRGBA(out)
	if err != nil {
		return nil, apperrors.NewCompositingError(stage, "cannot convert warped image", err)
	}
	return warped, nil
}
