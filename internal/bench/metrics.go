package bench

import (
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"image-stitcher/internal/imageio"

	"github.com/disintegration/imaging"
	"github.com/montanaflynn/stats"
)

// Metrics are similarity scores of a blended result against a reference.
type Metrics struct {
	SSIM float64
	MSE  float64
	PSNR float64
}

// Evaluator scores a blended result. A nil Metrics with a nil error means
// the pair has nothing to compare against.
type Evaluator interface {
	Evaluate(p Pair, blended image.Image) (*Metrics, error)
}

// ReferenceEvaluator compares against a ground-truth image stored in the
// pair folder under Prefix (default "ref.").
type ReferenceEvaluator struct {
	Prefix string
}

func (e ReferenceEvaluator) Evaluate(p Pair, blended image.Image) (*Metrics, error) {
	prefix := e.Prefix
	if prefix == "" {
		prefix = "ref."
	}
	files, err := os.ReadDir(p.Folder)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasPrefix(f.Name(), prefix) {
			continue
		}
		ref, err := imageio.Load(filepath.Join(p.Folder, f.Name()))
		if err != nil {
			return nil, err
		}
		m := Compare(ref, blended)
		return &m, nil
	}
	return nil, nil
}

// Compare resizes test to the reference size and scores it.
func Compare(ref, test image.Image) Metrics {
	rb := ref.Bounds()
	r := imaging.Clone(ref)
	t := imaging.Resize(test, rb.Dx(), rb.Dy(), imaging.Box)

	mse := MSE(r, t)
	return Metrics{SSIM: SSIM(r, t), MSE: mse, PSNR: PSNR(mse)}
}

// MSE is the mean squared error over the RGB channels of two equally
// sized images.
func MSE(a, b *image.NRGBA) float64 {
	var sum float64
	var n int
	for i := 0; i+3 < len(a.Pix) && i+3 < len(b.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			d := float64(a.Pix[i+c]) - float64(b.Pix[i+c])
			sum += d * d
		}
		n += 3
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// PSNR in dB for 8-bit data; +Inf for identical images.
func PSNR(mse float64) float64 {
	if mse == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(255*255/mse)
}

const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
)

// SSIM is the mean structural similarity of the grayscale images over a
// 7x7 uniform window with sample covariance, excluding the border strip.
func SSIM(a, b *image.NRGBA) float64 {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	if w < ssimWindow || h < ssimWindow {
		return 0
	}
	ga, gb := luma(a), luma(b)

	c1 := math.Pow(ssimK1*255, 2)
	c2 := math.Pow(ssimK2*255, 2)
	np := float64(ssimWindow * ssimWindow)
	cov := np / (np - 1)
	pad := ssimWindow / 2

	var scores stats.Float64Data
	for y := pad; y < h-pad; y++ {
		for x := pad; x < w-pad; x++ {
			var sa, sb, saa, sbb, sab float64
			for dy := -pad; dy <= pad; dy++ {
				row := (y + dy) * w
				for dx := -pad; dx <= pad; dx++ {
					va, vb := ga[row+x+dx], gb[row+x+dx]
					sa += va
					sb += vb
					saa += va * va
					sbb += vb * vb
					sab += va * vb
				}
			}
			ux, uy := sa/np, sb/np
			vx := cov * (saa/np - ux*ux)
			vy := cov * (sbb/np - uy*uy)
			vxy := cov * (sab/np - ux*uy)

			num := (2*ux*uy + c1) * (2*vxy + c2)
			den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
			scores = append(scores, num/den)
		}
	}
	mean, err := scores.Mean()
	if err != nil {
		return 0
	}
	return mean
}

// luma uses the ITU-R BT.601 weights.
func luma(img *image.NRGBA) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*img.Stride + x*4
			out[y*w+x] = 0.299*float64(img.Pix[i]) + 0.587*float64(img.Pix[i+1]) + 0.114*float64(img.Pix[i+2])
		}
	}
	return out
}
