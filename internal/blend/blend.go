// Package blend feathers the seam between the primary canvas layer and the
// warped secondary layer.
package blend

import (
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ErrDimensionMismatch is returned when the two layers differ in size.
var ErrDimensionMismatch = errors.New("blend: layer dimensions differ")

// Options configures mask construction.
type Options struct {
	KernelSize      int  // odd Gaussian window width
	PreserveBorders bool // keep the weight at zero outside the warped footprint
}

// DefaultOptions returns a 21 pixel kernel with border preservation.
func DefaultOptions() Options {
	return Options{
		KernelSize:      21,
		PreserveBorders: true,
	}
}

// Sigma derives the Gaussian standard deviation from an odd window width
// with the rule OpenCV applies when sigma is left at zero.
func Sigma(kernelSize int) float64 {
	return 0.3*(float64(kernelSize-1)*0.5-1) + 0.8
}

// Mask holds one blend weight in [0, 1] per canvas pixel, row-major.
type Mask struct {
	Width, Height int
	W             []float32
}

// At returns the weight at (x, y).
func (m *Mask) At(x, y int) float32 {
	return m.W[y*m.Width+x]
}

// Footprint returns a gray image that is 255 wherever any color channel of
// warped is non-zero and 0 elsewhere.
func Footprint(warped *image.RGBA) *image.Gray {
	b := warped.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := warped.Pix[y*warped.Stride : y*warped.Stride+b.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range dst {
			if src[x*4] != 0 || src[x*4+1] != 0 || src[x*4+2] != 0 {
				dst[x] = 255
			}
		}
	}
	return out
}

// BuildMask smooths the warped layer's footprint into a soft weight map.
func BuildMask(warped *image.RGBA, opts Options) *Mask {
	ind := Footprint(warped)
	w, h := ind.Rect.Dx(), ind.Rect.Dy()
	m := &Mask{Width: w, Height: h, W: make([]float32, w*h)}
	if w == 0 || h == 0 {
		return m
	}

	k := opts.KernelSize
	if k < 1 {
		k = DefaultOptions().KernelSize
	}
	blurred := imaging.Blur(ind, Sigma(k))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if opts.PreserveBorders && ind.Pix[y*ind.Stride+x] == 0 {
				continue
			}
			// gray input, so R == G == B after blurring
			v := blurred.Pix[y*blurred.Stride+x*4]
			m.W[y*w+x] = float32(v) / 255
		}
	}
	return m
}

// Blend computes primary*(1-w) + warped*w per pixel and channel, with the
// weight from BuildMask. The result is opaque.
func Blend(primary, warped *image.RGBA, opts Options) (*image.RGBA, error) {
	if primary.Bounds().Size() != warped.Bounds().Size() {
		return nil, ErrDimensionMismatch
	}
	return Apply(primary, warped, BuildMask(warped, opts))
}

// Apply blends two layers with an existing mask.
func Apply(primary, warped *image.RGBA, m *Mask) (*image.RGBA, error) {
	size := primary.Bounds().Size()
	if size != warped.Bounds().Size() || size.X != m.Width || size.Y != m.Height {
		return nil, ErrDimensionMismatch
	}

	out := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		p := primary.Pix[y*primary.Stride:]
		s := warped.Pix[y*warped.Stride:]
		o := out.Pix[y*out.Stride:]
		for x := 0; x < size.X; x++ {
			wt := float64(m.W[y*m.Width+x])
			i := x * 4
			for c := 0; c < 3; c++ {
				v := float64(p[i+c])*(1-wt) + float64(s[i+c])*wt
				o[i+c] = uint8(math.Min(255, math.Max(0, math.Round(v))))
			}
			o[i+3] = 255
		}
	}
	return out, nil
}
