// Package provider defines the correspondence back ends a stitch can use
// and the registry that resolves them by method name.
package provider

import (
	"context"
	"image"
	"sync"

	"image-stitcher/internal/correspond"
	apperrors "image-stitcher/internal/errors"

	"golang.org/x/sync/errgroup"
)

const stage = "correspond"

// FeatureDetector finds keypoints and descriptors in a single image.
// Implementations must be safe for concurrent use.
type FeatureDetector interface {
	Detect(img image.Image) (correspond.Features, error)
}

// DenseMatcher produces correspondences directly from an image pair.
// Implementations that cannot run concurrently are wrapped in Serialized.
type DenseMatcher interface {
	Match(ctx context.Context, a, b image.Image) ([]correspond.Correspondence, error)
}

// Method turns an image pair into a filtered correspondence set.
type Method interface {
	Name() string
	Correspond(ctx context.Context, a, b image.Image) (correspond.Set, error)
}

// LocalMethod detects features in both images and filters them with the
// ratio test.
type LocalMethod struct {
	name     string
	detector FeatureDetector
	filter   correspond.FilterOptions
}

// NewLocalMethod creates a detector-backed method.
func NewLocalMethod(name string, d FeatureDetector, filter correspond.FilterOptions) *LocalMethod {
	return &LocalMethod{name: name, detector: d, filter: filter}
}

// Name returns the method name.
func (m *LocalMethod) Name() string { return m.name }

// Correspond detects both images concurrently, then matches descriptors.
func (m *LocalMethod) Correspond(ctx context.Context, a, b image.Image) (correspond.Set, error) {
	var fa, fb correspond.Features
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fa, err = m.detector.Detect(a)
		return err
	})
	g.Go(func() error {
		var err error
		fb, err = m.detector.Detect(b)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperrors.NewMatchError(stage, m.name+" detection failed", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return correspond.MatchDescriptors(fa, fb, m.filter), nil
}

// DenseMethod forwards to a dense matcher and caps the result.
type DenseMethod struct {
	name    string
	matcher DenseMatcher
	filter  correspond.FilterOptions
}

// NewDenseMethod creates a matcher-backed method.
func NewDenseMethod(name string, m DenseMatcher, filter correspond.FilterOptions) *DenseMethod {
	return &DenseMethod{name: name, matcher: m, filter: filter}
}

// Name returns the method name.
func (m *DenseMethod) Name() string { return m.name }

// Correspond runs the matcher and passes its pairs through in order.
func (m *DenseMethod) Correspond(ctx context.Context, a, b image.Image) (correspond.Set, error) {
	pairs, err := m.matcher.Match(ctx, a, b)
	if err != nil {
		return nil, apperrors.NewMatchError(stage, m.name+" matching failed", err)
	}
	return correspond.FromPairs(pairs, m.filter), nil
}

// Serialized guards a DenseMatcher that must not run concurrently.
type Serialized struct {
	mu    sync.Mutex
	inner DenseMatcher
}

// NewSerialized wraps m so that only one Match runs at a time.
func NewSerialized(m DenseMatcher) *Serialized {
	return &Serialized{inner: m}
}

// Match implements DenseMatcher.
func (s *Serialized) Match(ctx context.Context, a, b image.Image) ([]correspond.Correspondence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.inner.Match(ctx, a, b)
}
