// Package alignment robustly estimates the projective transform that maps
// the secondary image onto the primary image.
package alignment

import (
	"fmt"
	"math"
	"math/rand"

	"image-stitcher/internal/correspond"
	apperrors "image-stitcher/internal/errors"
	"image-stitcher/internal/logger"
	"image-stitcher/pkg/geometry"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
)

const stage = "estimate"

// sampleSize is the minimal number of correspondences that fix a homography.
const sampleSize = 4

// EstimateOptions configures RANSAC homography fitting.
type EstimateOptions struct {
	Threshold     float64 // inlier reprojection error, pixels
	MaxIterations int
	Confidence    float64 // adaptive termination, 0 disables
	MinInliers    int
	Seed          int64
	Refine        bool // re-solve on all inliers
}

// DefaultEstimateOptions returns the reference RANSAC settings.
func DefaultEstimateOptions() EstimateOptions {
	return EstimateOptions{
		Threshold:     5.0,
		MaxIterations: 2000,
		Confidence:    0.995,
		MinInliers:    4,
		Seed:          1,
		Refine:        true,
	}
}

// Residuals summarizes reprojection error over the inliers.
type Residuals struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

// Result holds an estimated homography and its consensus set.
type Result struct {
	H           geometry.Homography `json:"h"`
	Inliers     []bool              `json:"inliers"`
	InlierCount int                 `json:"inlier_count"`
	Iterations  int                 `json:"iterations"`
	Refined     bool                `json:"refined"`
	Residuals   Residuals           `json:"residuals"`
}

// EstimateHomography fits H with H*B ~ A over the correspondence set using
// RANSAC. The result is deterministic for a given set and Seed: the first
// sample reaching a strictly larger inlier count wins.
func EstimateHomography(set correspond.Set, opts EstimateOptions) (*Result, error) {
	n := set.Len()
	if n < sampleSize {
		return nil, apperrors.NewGeometryError(stage,
			fmt.Sprintf("need at least %d correspondences, got %d", sampleSize, n), nil)
	}

	src := set.PointsB()
	dst := set.PointsA()

	log := logger.WithFields(logrus.Fields{
		"stage":           stage,
		"correspondences": n,
	})

	rng := rand.New(rand.NewSource(opts.Seed))

	var (
		best      geometry.Homography
		bestMask  []bool
		bestCount int
		solved    bool
	)
	limit := opts.MaxIterations
	iter := 0
	for ; iter < limit; iter++ {
		idx := rng.Perm(n)[:sampleSize]

		sample := make([]geometry.Point2D, sampleSize)
		target := make([]geometry.Point2D, sampleSize)
		for i, j := range idx {
			sample[i] = src[j]
			target[i] = dst[j]
		}
		if degenerate(sample) || degenerate(target) {
			continue
		}

		h, err := computeHomographyDLT(sample, target)
		if err != nil {
			continue
		}
		solved = true

		mask, count := countInliers(h, src, dst, opts.Threshold)
		if count > bestCount {
			best, bestMask, bestCount = h, mask, count
			limit = adaptiveIterations(limit, opts.Confidence, count, n)
		}
	}

	if !solved {
		return nil, apperrors.NewGeometryError(stage, "every sample was degenerate", nil)
	}
	if bestCount < opts.MinInliers || bestCount < sampleSize {
		return nil, apperrors.NewGeometryError(stage,
			fmt.Sprintf("best consensus has %d inliers, need %d", bestCount, max(opts.MinInliers, sampleSize)), nil)
	}

	res := &Result{
		H:           best,
		Inliers:     bestMask,
		InlierCount: bestCount,
		Iterations:  iter,
	}

	if opts.Refine {
		inSrc, inDst := selectInliers(src, dst, bestMask)
		if h, err := computeHomographyDLT(inSrc, inDst); err == nil {
			mask, count := countInliers(h, src, dst, opts.Threshold)
			if count >= bestCount {
				res.H, res.Inliers, res.InlierCount, res.Refined = h, mask, count, true
			}
		} else {
			log.WithError(err).Debug("refinement failed, keeping sample solution")
		}
	}

	h, ok := res.H.Normalize()
	if !ok || !h.IsFinite() {
		return nil, apperrors.NewGeometryError(stage, "estimated homography is not finite", nil)
	}
	if _, ok := h.Inverse(); !ok {
		return nil, apperrors.NewGeometryError(stage, "estimated homography is singular", nil)
	}
	res.H = h
	res.Residuals = residuals(h, src, dst, res.Inliers)

	log.WithFields(logrus.Fields{
		"inliers":      res.InlierCount,
		"iterations":   res.Iterations,
		"refined":      res.Refined,
		"meanResidual": res.Residuals.Mean,
	}).Debug("homography estimated")

	return res, nil
}

// degenerate reports whether any three of the sample points are collinear.
func degenerate(pts []geometry.Point2D) bool {
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			for k := j + 1; k < len(pts); k++ {
				a, b, c := pts[i], pts[j], pts[k]
				scale := math.Abs(b.X-a.X) + math.Abs(b.Y-a.Y) + math.Abs(c.X-a.X) + math.Abs(c.Y-a.Y)
				if scale == 0 || geometry.Collinear(a, b, c, 1e-6*scale*scale) {
					return true
				}
			}
		}
	}
	return false
}

func countInliers(h geometry.Homography, src, dst []geometry.Point2D, threshold float64) ([]bool, int) {
	mask := make([]bool, len(src))
	count := 0
	for i := range src {
		if reprojectionError(h, src[i], dst[i]) < threshold {
			mask[i] = true
			count++
		}
	}
	return mask, count
}

func selectInliers(src, dst []geometry.Point2D, mask []bool) ([]geometry.Point2D, []geometry.Point2D) {
	var s, d []geometry.Point2D
	for i, in := range mask {
		if in {
			s = append(s, src[i])
			d = append(d, dst[i])
		}
	}
	return s, d
}

// adaptiveIterations shrinks the iteration budget once the inlier ratio
// guarantees an outlier-free sample with the requested confidence.
func adaptiveIterations(current int, confidence float64, inliers, total int) int {
	if confidence <= 0 || confidence >= 1 {
		return current
	}
	ratio := float64(inliers) / float64(total)
	pNoGood := 1 - math.Pow(ratio, sampleSize)
	if pNoGood <= 0 {
		return 0
	}
	if pNoGood >= 1 {
		return current
	}
	k := math.Log(1-confidence) / math.Log(pNoGood)
	if k < float64(current) {
		return int(math.Ceil(k))
	}
	return current
}

func residuals(h geometry.Homography, src, dst []geometry.Point2D, mask []bool) Residuals {
	var errs stats.Float64Data
	for i, in := range mask {
		if in {
			errs = append(errs, reprojectionError(h, src[i], dst[i]))
		}
	}
	if len(errs) == 0 {
		return Residuals{}
	}
	mean, _ := errs.Mean()
	median, _ := errs.Median()
	maxErr, _ := errs.Max()
	return Residuals{Mean: mean, Median: median, Max: maxErr}
}
