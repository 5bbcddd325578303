// Package stitch runs the two-image pipeline: correspond, estimate,
// composite, blend.
package stitch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"image-stitcher/internal/alignment"
	"image-stitcher/internal/blend"
	"image-stitcher/internal/composite"
	"image-stitcher/internal/config"
	"image-stitcher/internal/correspond"
	apperrors "image-stitcher/internal/errors"
	"image-stitcher/internal/imageio"
	"image-stitcher/internal/logger"
	"image-stitcher/internal/overlay"
	"image-stitcher/internal/provider"

	"github.com/sirupsen/logrus"
)

// minCorrespondences is the fewest matches a homography can be fit from.
const minCorrespondences = 4

// Options collects the per-stage settings.
type Options struct {
	Estimate alignment.EstimateOptions
	Canvas   composite.Options
	Blend    blend.Options
	Overlay  overlay.Options
}

// DefaultOptions returns the reference settings of every stage.
func DefaultOptions() Options {
	return Options{
		Estimate: alignment.DefaultEstimateOptions(),
		Canvas:   composite.DefaultOptions(),
		Blend:    blend.DefaultOptions(),
		Overlay:  overlay.DefaultOptions(),
	}
}

// OptionsFromConfig maps the configuration onto stage options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	interp, err := composite.ParseInterpolation(cfg.Canvas.Interpolation)
	if err != nil {
		return Options{}, err
	}
	opts := DefaultOptions()
	opts.Estimate = alignment.EstimateOptions{
		Threshold:     cfg.Estimation.Threshold,
		MaxIterations: cfg.Estimation.MaxIterations,
		Confidence:    cfg.Estimation.Confidence,
		MinInliers:    cfg.Estimation.MinInliers,
		Seed:          cfg.Estimation.Seed,
		Refine:        cfg.Estimation.Refine,
	}
	opts.Canvas = composite.Options{
		Interpolation: interp,
		MaxPixels:     cfg.Canvas.MaxPixels,
	}
	opts.Blend = blend.Options{
		KernelSize:      cfg.Blend.KernelSize,
		PreserveBorders: cfg.Blend.PreserveBorders,
	}
	opts.Overlay.Seed = cfg.Estimation.Seed
	return opts, nil
}

// FilterFromConfig returns the correspondence filter settings.
func FilterFromConfig(cfg *config.Config) correspond.FilterOptions {
	return correspond.FilterOptions{
		Ratio:      cfg.Matching.Ratio,
		MaxMatches: cfg.Matching.MaxMatches,
	}
}

// Timings records wall time per stage.
type Timings struct {
	Correspond time.Duration `json:"correspond"`
	Estimate   time.Duration `json:"estimate"`
	Composite  time.Duration `json:"composite"`
	Blend      time.Duration `json:"blend"`
	Overlay    time.Duration `json:"overlay"`
	Total      time.Duration `json:"total"`
}

// Result is the output of one stitch.
type Result struct {
	Method     string
	Composite  *image.RGBA
	KeypointsA *image.RGBA
	KeypointsB *image.RGBA
	Matches    *image.RGBA

	Correspondences correspond.Set
	Homography      *alignment.Result
	Canvas          composite.Canvas
	Footprint       composite.Footprint
	Timings         Timings
}

// Stitcher is safe for concurrent use: it holds only immutable options and
// the provider registry.
type Stitcher struct {
	opts     Options
	registry *provider.Registry
}

// New creates a Stitcher resolving methods through reg.
func New(opts Options, reg *provider.Registry) *Stitcher {
	return &Stitcher{opts: opts, registry: reg}
}

// Methods lists the available correspondence methods.
func (s *Stitcher) Methods() []string {
	return s.registry.Names()
}

// StitchFiles loads both images and stitches them.
func (s *Stitcher) StitchFiles(ctx context.Context, pathA, pathB, method string) (*Result, error) {
	a, err := imageio.Load(pathA)
	if err != nil {
		return nil, err
	}
	b, err := imageio.Load(pathB)
	if err != nil {
		return nil, err
	}
	return s.Stitch(ctx, a, b, method)
}

// Stitch maps b onto a and returns the blended composite together with the
// keypoint and match overlays.
func (s *Stitcher) Stitch(ctx context.Context, a, b image.Image, method string) (*Result, error) {
	if err := validateInput("primary", a); err != nil {
		return nil, err
	}
	if err := validateInput("secondary", b); err != nil {
		return nil, err
	}

	m, err := s.registry.Lookup(method)
	if err != nil {
		return nil, err
	}

	log := logger.WithFields(logrus.Fields{
		"method":    m.Name(),
		"primary":   a.Bounds().Size().String(),
		"secondary": b.Bounds().Size().String(),
	})
	res := &Result{Method: m.Name()}
	start := time.Now()

	// correspond
	t := time.Now()
	log.WithField("stage", "correspond").Debug("stage started")
	set, err := m.Correspond(ctx, a, b)
	if err != nil {
		return nil, fail(log, "correspond", err)
	}
	if set.Len() < minCorrespondences {
		return nil, fail(log, "correspond", apperrors.NewMatchError("correspond",
			fmt.Sprintf("%d usable correspondences, need %d", set.Len(), minCorrespondences), nil))
	}
	res.Correspondences = set
	res.Timings.Correspond = done(log, "correspond", t)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// estimate
	t = time.Now()
	h, err := alignment.EstimateHomography(set, s.opts.Estimate)
	if err != nil {
		return nil, fail(log, "estimate", err)
	}
	res.Homography = h
	res.Timings.Estimate = done(log, "estimate", t)

	// composite
	t = time.Now()
	layers, err := composite.Compose(a, b, h.H, s.opts.Canvas)
	if err != nil {
		return nil, fail(log, "composite", err)
	}
	res.Canvas = layers.Canvas
	res.Footprint = composite.MapFootprint(a.Bounds(), b.Bounds(), h.H)
	if !res.Footprint.Convex {
		log.WithField("quad", res.Footprint.Quad).Warn("secondary footprint is not convex")
	}
	res.Timings.Composite = done(log, "composite", t)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// blend
	t = time.Now()
	out, err := blend.Blend(layers.Primary, layers.Warped, s.opts.Blend)
	if err != nil {
		if errors.Is(err, blend.ErrDimensionMismatch) {
			err = apperrors.NewCompositingError("blend", "layer sizes differ", err)
		}
		return nil, fail(log, "blend", err)
	}
	res.Composite = out
	res.Timings.Blend = done(log, "blend", t)

	// overlays
	t = time.Now()
	res.KeypointsA = overlay.Keypoints(a, set.PointsA(), s.opts.Overlay)
	res.KeypointsB = overlay.Keypoints(b, set.PointsB(), s.opts.Overlay)
	res.Matches = overlay.Matches(a, b, set, s.opts.Overlay)
	res.Timings.Overlay = done(log, "overlay", t)

	res.Timings.Total = time.Since(start)
	log.WithFields(logrus.Fields{
		"correspondences": set.Len(),
		"inliers":         h.InlierCount,
		"canvas":          fmt.Sprintf("%dx%d", res.Canvas.Width, res.Canvas.Height),
		"overlap":         res.Footprint.Overlap,
		"duration":        res.Timings.Total.String(),
	}).Info("stitch complete")

	return res, nil
}

func validateInput(name string, img image.Image) error {
	if img == nil {
		return apperrors.NewInputError("load", name+" image is missing", nil)
	}
	if img.Bounds().Empty() {
		return apperrors.NewInputError("load", name+" image is empty", nil)
	}
	return nil
}

func done(log *logrus.Entry, stage string, start time.Time) time.Duration {
	d := time.Since(start)
	log.WithFields(logrus.Fields{"stage": stage, "duration": d.String()}).Debug("stage finished")
	return d
}

func fail(log *logrus.Entry, stage string, err error) error {
	log.WithField("stage", stage).WithError(err).Warn("stitch failed")
	return err
}
