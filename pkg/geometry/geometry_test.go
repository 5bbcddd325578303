package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestHomographyApplyTranslation(t *testing.T) {
	h := Translation(20, -10)
	p := h.Apply(Point2D{X: 5, Y: 5})
	assert.InDelta(t, 25, p.X, 1e-12)
	assert.InDelta(t, -5, p.Y, 1e-12)
}

func TestHomographyApplyProjective(t *testing.T) {
	h := Homography{{2, 0, 0}, {0, 2, 0}, {0, 0, 2}}
	p, w := h.ApplyW(Point2D{X: 3, Y: 4})
	assert.InDelta(t, 2, w, 1e-12)
	assert.InDelta(t, 3, p.X, 1e-12)
	assert.InDelta(t, 4, p.Y, 1e-12)
}

func TestHomographyComposeAppliesRightFirst(t *testing.T) {
	scale := Homography{{2, 0, 0}, {0, 2, 0}, {0, 0, 1}}
	shift := Translation(1, 1)

	// shift after scale
	h := shift.Compose(scale)
	p := h.Apply(Point2D{X: 1, Y: 2})
	assert.InDelta(t, 3, p.X, 1e-12)
	assert.InDelta(t, 5, p.Y, 1e-12)
}

func TestHomographyInverse(t *testing.T) {
	h := Homography{
		{1.1, 0.05, 12},
		{-0.02, 0.95, -7},
		{1e-4, -2e-4, 1},
	}
	inv, ok := h.Inverse()
	require.True(t, ok)

	id := h.Compose(inv)
	n, ok := id.Normalize()
	require.True(t, ok)
	assert.Less(t, n.MaxAbsDiff(Identity()), 1e-9)

	p := Point2D{X: 40, Y: 80}
	back := inv.Apply(h.Apply(p))
	assert.InDelta(t, p.X, back.X, 1e-9)
	assert.InDelta(t, p.Y, back.Y, 1e-9)
}

func TestHomographyInverseSingular(t *testing.T) {
	h := Homography{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}
	_, ok := h.Inverse()
	assert.False(t, ok)
}

func TestHomographyIsFinite(t *testing.T) {
	h := Identity()
	assert.True(t, h.IsFinite())
	h[1][2] = math.NaN()
	assert.False(t, h.IsFinite())
	h[1][2] = math.Inf(1)
	assert.False(t, h.IsFinite())
}

func TestFromMatrix(t *testing.T) {
	h := Homography{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	m := mat.NewDense(3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	assert.Equal(t, h, FromMatrix(m))
}

func TestBoundingBox(t *testing.T) {
	r := BoundingBox([]Point2D{{X: 3, Y: -1}, {X: -2, Y: 4}, {X: 0, Y: 0}})
	assert.Equal(t, Rect{X: -2, Y: -1, Width: 5, Height: 5}, r)
	assert.Equal(t, Rect{}, BoundingBox(nil))
}

func TestCollinear(t *testing.T) {
	assert.True(t, Collinear(Point2D{0, 0}, Point2D{1, 1}, Point2D{5, 5}, 1e-9))
	assert.False(t, Collinear(Point2D{0, 0}, Point2D{1, 0}, Point2D{0, 1}, 1e-9))
}

func TestClipToRectOverlap(t *testing.T) {
	r := Rect{X: 0, Y: 0, Width: 100, Height: 100}
	shifted := Rect{X: 20, Y: 10, Width: 100, Height: 100}.Corners()

	clipped := ClipToRect(shifted[:], r)
	require.NotNil(t, clipped)
	assert.InDelta(t, 80*90, PolygonArea(clipped), 1e-6)
}

func TestClipToRectDisjoint(t *testing.T) {
	r := Rect{X: 0, Y: 0, Width: 10, Height: 10}
	far := Rect{X: 50, Y: 50, Width: 10, Height: 10}.Corners()
	assert.Nil(t, ClipToRect(far[:], r))
}

func TestIsConvex(t *testing.T) {
	square := Rect{Width: 4, Height: 4}.Corners()
	assert.True(t, IsConvex(square[:]))

	bowtie := []Point2D{{0, 0}, {4, 4}, {4, 0}, {0, 4}}
	assert.False(t, IsConvex(bowtie))
}
