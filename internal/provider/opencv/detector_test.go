package opencv

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"image-stitcher/internal/correspond"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// texture returns a blocky random pattern with plenty of corners.
func texture(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	const block = 8
	for by := 0; by < h; by += block {
		for bx := 0; bx < w; bx += block {
			v := uint8(rng.Intn(256))
			for y := by; y < min(by+block, h); y++ {
				for x := bx; x < min(bx+block, w); x++ {
					img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
				}
			}
		}
	}
	return img
}

func TestDetectORB(t *testing.T) {
	f, err := NewDetector(ORB, 500).Detect(texture(256, 192, 1))
	require.NoError(t, err)
	assert.Equal(t, correspond.EncodingBinary, f.Encoding)
	require.NotZero(t, f.Len())
	assert.LessOrEqual(t, f.Len(), 500)
	assert.Len(t, f.Bits, f.Len())
	assert.Len(t, f.Bits[0], 32)
}

func TestDetectSIFT(t *testing.T) {
	f, err := NewDetector(SIFT, 100).Detect(texture(256, 192, 2))
	require.NoError(t, err)
	assert.Equal(t, correspond.EncodingFloat, f.Encoding)
	require.NotZero(t, f.Len())
	assert.LessOrEqual(t, f.Len(), 100)
	assert.Len(t, f.Float[0], 128)
}

func TestStrongest(t *testing.T) {
	kps := []gocv.KeyPoint{{Response: 0.1}, {Response: 0.9}, {Response: 0.5}}
	assert.Equal(t, []int{1, 2}, strongest(kps, 2))
	assert.Equal(t, []int{0, 1, 2}, strongest(kps, 0))
}
