package stitch

import (
	"context"
	"image"
	"image/color"
	"math/rand"
	"path/filepath"
	"testing"

	"image-stitcher/internal/config"
	"image-stitcher/internal/correspond"
	apperrors "image-stitcher/internal/errors"
	"image-stitcher/internal/imageio"
	"image-stitcher/internal/provider"
	"image-stitcher/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shiftMethod reports exact correspondences A = B + (dx, dy) on a grid.
type shiftMethod struct {
	dx, dy float64
	count  int
}

func (m shiftMethod) Name() string { return "SHIFT" }

func (m shiftMethod) Correspond(_ context.Context, _, b image.Image) (correspond.Set, error) {
	var set correspond.Set
	bb := b.Bounds()
	for i := 0; i < m.count; i++ {
		p := geometry.Point2D{
			X: float64((i*37)%(bb.Dx()-2) + 1),
			Y: float64((i*53)%(bb.Dy()-2) + 1),
		}
		set = append(set, correspond.Correspondence{A: p.Add(geometry.Point2D{X: m.dx, Y: m.dy}), B: p})
	}
	return set, nil
}

// scene is a blocky texture with no black pixels.
func scene(w, h int) *image.RGBA {
	rng := rand.New(rand.NewSource(3))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	const block = 5
	for by := 0; by < h; by += block {
		for bx := 0; bx < w; bx += block {
			c := color.RGBA{R: uint8(rng.Intn(255) + 1), G: uint8(rng.Intn(255) + 1), B: uint8(rng.Intn(255) + 1), A: 255}
			for y := by; y < min(by+block, h); y++ {
				for x := bx; x < min(bx+block, w); x++ {
					img.SetRGBA(x, y, c)
				}
			}
		}
	}
	return img
}

func crop(img *image.RGBA, r image.Rectangle) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			out.SetRGBA(x, y, img.RGBAAt(r.Min.X+x, r.Min.Y+y))
		}
	}
	return out
}

func newStitcher(methods ...provider.Method) *Stitcher {
	reg := provider.NewRegistry()
	for _, m := range methods {
		reg.RegisterMethod(m)
	}
	return New(DefaultOptions(), reg)
}

func TestStitchTranslatedCrops(t *testing.T) {
	full := scene(200, 120)
	a := crop(full, image.Rect(0, 0, 120, 90))
	b := crop(full, image.Rect(40, 10, 160, 100))

	s := newStitcher(shiftMethod{dx: 40, dy: 10, count: 60})
	res, err := s.Stitch(context.Background(), a, b, "shift")
	require.NoError(t, err)

	assert.Equal(t, "SHIFT", res.Method)
	assert.Less(t, res.Homography.H.MaxAbsDiff(geometry.Translation(40, 10)), 1e-6)
	assert.Equal(t, 160, res.Canvas.Width)
	assert.Equal(t, 100, res.Canvas.Height)
	assert.True(t, res.Footprint.Convex)
	assert.InDelta(t, 80.0*80.0/(120*90), res.Footprint.Overlap, 1e-4)
	require.Equal(t, image.Rect(0, 0, 160, 100), res.Composite.Bounds())

	// primary-only region is copied unchanged
	assert.Equal(t, full.RGBAAt(10, 50), res.Composite.RGBAAt(10, 50))

	// deep in the secondary-only region the secondary wins
	want := full.RGBAAt(150, 50)
	got := res.Composite.RGBAAt(150, 50)
	assert.InDelta(t, want.R, got.R, 1)
	assert.InDelta(t, want.G, got.G, 1)
	assert.InDelta(t, want.B, got.B, 1)

	// the overlap agrees since both layers show the same scene
	assert.Equal(t, full.RGBAAt(80, 50), res.Composite.RGBAAt(80, 50))

	assert.Equal(t, a.Bounds(), res.KeypointsA.Bounds())
	assert.Equal(t, b.Bounds(), res.KeypointsB.Bounds())
	assert.Equal(t, image.Rect(0, 0, 240, 90), res.Matches.Bounds())
	assert.Positive(t, res.Timings.Total)
}

func TestStitchIdentity(t *testing.T) {
	a := scene(64, 48)
	s := newStitcher(shiftMethod{count: 30})

	res, err := s.Stitch(context.Background(), a, a, "SHIFT")
	require.NoError(t, err)
	assert.Less(t, res.Homography.H.MaxAbsDiff(geometry.Identity()), 1e-6)
	assert.Equal(t, a.Bounds(), res.Composite.Bounds())
	assert.Equal(t, a.Pix, res.Composite.Pix)
}

func TestStitchTooFewCorrespondences(t *testing.T) {
	a := scene(64, 48)
	s := newStitcher(shiftMethod{count: 3})

	_, err := s.Stitch(context.Background(), a, a, "SHIFT")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindMatch))
}

func TestStitchInputErrors(t *testing.T) {
	s := newStitcher(shiftMethod{count: 10})
	a := scene(10, 10)

	_, err := s.Stitch(context.Background(), nil, a, "SHIFT")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInput))

	_, err = s.Stitch(context.Background(), a, image.NewRGBA(image.Rect(0, 0, 0, 0)), "SHIFT")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInput))

	_, err = s.Stitch(context.Background(), a, a, "SURF")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInput))
}

func TestStitchFiles(t *testing.T) {
	dir := t.TempDir()
	full := scene(100, 60)
	pa := filepath.Join(dir, "01.png")
	pb := filepath.Join(dir, "02.png")
	require.NoError(t, imageio.Save(pa, crop(full, image.Rect(0, 0, 70, 60)), 0))
	require.NoError(t, imageio.Save(pb, crop(full, image.Rect(30, 0, 100, 60)), 0))

	s := newStitcher(shiftMethod{dx: 30, count: 40})
	res, err := s.StitchFiles(context.Background(), pa, pb, "SHIFT")
	require.NoError(t, err)
	assert.Equal(t, 100, res.Canvas.Width)

	_, err = s.StitchFiles(context.Background(), filepath.Join(dir, "missing.png"), pb, "SHIFT")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInput))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Canvas.Interpolation = "nearest"
	cfg.Blend.KernelSize = 51
	cfg.Estimation.Seed = 9

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 51, opts.Blend.KernelSize)
	assert.Equal(t, int64(9), opts.Estimate.Seed)
	assert.Equal(t, "nearest", opts.Canvas.Interpolation.String())

	f := FilterFromConfig(cfg)
	assert.Equal(t, 0.75, f.Ratio)
	assert.Equal(t, 600, f.MaxMatches)

	cfg.Canvas.Interpolation = "cubic"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}
