package provider

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"image-stitcher/internal/correspond"
	apperrors "image-stitcher/internal/errors"
	"image-stitcher/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// widthDetector emits one float descriptor per column index, so two
// images of equal width match column-for-column.
type widthDetector struct{ err error }

func (d widthDetector) Detect(img image.Image) (correspond.Features, error) {
	if d.err != nil {
		return correspond.Features{}, d.err
	}
	f := correspond.Features{Encoding: correspond.EncodingFloat}
	for x := 0; x < img.Bounds().Dx(); x++ {
		f.Keypoints = append(f.Keypoints, geometry.Point2D{X: float64(x), Y: 1})
		f.Float = append(f.Float, []float32{float32(x * 10)})
	}
	return f, nil
}

type fixedMatcher struct {
	pairs  []correspond.Correspondence
	active atomic.Int32
	peak   atomic.Int32
}

func (m *fixedMatcher) Match(_ context.Context, _, _ image.Image) ([]correspond.Correspondence, error) {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return m.pairs, nil
}

func TestLocalMethod(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	m := NewLocalMethod("fake", widthDetector{}, correspond.DefaultFilterOptions())

	set, err := m.Correspond(context.Background(), img, img)
	require.NoError(t, err)
	assert.Len(t, set, 8)
	for _, c := range set {
		assert.Equal(t, c.A, c.B)
	}
}

func TestLocalMethodDetectorError(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	m := NewLocalMethod("fake", widthDetector{err: errors.New("no opencv")}, correspond.DefaultFilterOptions())

	_, err := m.Correspond(context.Background(), img, img)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindMatch))
}

func TestDenseMethodCaps(t *testing.T) {
	pairs := make([]correspond.Correspondence, 10)
	m := NewDenseMethod("dense", &fixedMatcher{pairs: pairs}, correspond.FilterOptions{MaxMatches: 4})

	set, err := m.Correspond(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, set, 4)
}

func TestSerializedRunsOneAtATime(t *testing.T) {
	inner := &fixedMatcher{}
	s := NewSerialized(inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Match(context.Background(), nil, nil)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), inner.peak.Load())
}

func TestSerializedHonoursCancellation(t *testing.T) {
	s := NewSerialized(&fixedMatcher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Match(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.RegisterMethod(NewLocalMethod("SIFT", widthDetector{}, correspond.DefaultFilterOptions()))
	r.Register("LoFTR", func() (Method, error) { return nil, errors.New("no service configured") })

	m, err := r.Lookup("sift")
	require.NoError(t, err)
	assert.Equal(t, "SIFT", m.Name())

	_, err = r.Lookup("SURF")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInput))
	assert.Contains(t, err.Error(), "LoFTR, SIFT")

	_, err = r.Lookup("LOFTR")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInput))
}
