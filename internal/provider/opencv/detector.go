// Package opencv adapts OpenCV's ORB and SIFT detectors to the provider
// interfaces.
package opencv

import (
	"fmt"
	"image"

	"image-stitcher/internal/correspond"
	"image-stitcher/internal/cvmat"
	"image-stitcher/internal/provider"
	"image-stitcher/pkg/geometry"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"
)

// Algorithm selects the OpenCV detector.
type Algorithm int

const (
	ORB Algorithm = iota
	SIFT
)

func (a Algorithm) String() string {
	switch a {
	case ORB:
		return "ORB"
	case SIFT:
		return "SIFT"
	default:
		return "Unknown"
	}
}

// Detector runs one OpenCV feature detector. A fresh OpenCV object is
// created per call, so a Detector is safe for concurrent use.
type Detector struct {
	Algorithm   Algorithm
	MaxFeatures int
}

// NewDetector creates a detector capped at maxFeatures keypoints.
func NewDetector(alg Algorithm, maxFeatures int) *Detector {
	return &Detector{Algorithm: alg, MaxFeatures: maxFeatures}
}

// Register adds ORB and SIFT methods to the registry.
func Register(reg *provider.Registry, maxFeatures int, filter correspond.FilterOptions) {
	for _, alg := range []Algorithm{SIFT, ORB} {
		reg.RegisterMethod(provider.NewLocalMethod(alg.String(), NewDetector(alg, maxFeatures), filter))
	}
}

// Detect implements provider.FeatureDetector.
func (d *Detector) Detect(img image.Image) (correspond.Features, error) {
	gray, err := cvmat.Gray(img)
	if err != nil {
		return correspond.Features{}, err
	}
	defer gray.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	var (
		kps  []gocv.KeyPoint
		desc gocv.Mat
	)
	switch d.Algorithm {
	case ORB:
		orb := gocv.NewORBWithParams(d.MaxFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20)
		defer orb.Close()
		kps, desc = orb.DetectAndCompute(gray, mask)
	case SIFT:
		sift := gocv.NewSIFT()
		defer sift.Close()
		kps, desc = sift.DetectAndCompute(gray, mask)
	default:
		return correspond.Features{}, fmt.Errorf("unsupported algorithm %s", d.Algorithm)
	}
	defer desc.Close()

	if len(kps) == 0 || desc.Empty() {
		return correspond.Features{Encoding: d.encoding()}, nil
	}
	if desc.Rows() != len(kps) {
		return correspond.Features{}, fmt.Errorf("%s returned %d keypoints but %d descriptors", d.Algorithm, len(kps), desc.Rows())
	}

	keep := strongest(kps, d.MaxFeatures)
	f := correspond.Features{
		Encoding:  d.encoding(),
		Keypoints: make([]geometry.Point2D, len(keep)),
	}
	cols := desc.Cols()
	for i, row := range keep {
		f.Keypoints[i] = geometry.Point2D{X: kps[row].X, Y: kps[row].Y}
		if f.Encoding == correspond.EncodingBinary {
			bits := make([]byte, cols)
			for c := 0; c < cols; c++ {
				bits[c] = desc.GetUCharAt(row, c)
			}
			f.Bits = append(f.Bits, bits)
		} else {
			vec := make([]float32, cols)
			for c := 0; c < cols; c++ {
				vec[c] = desc.GetFloatAt(row, c)
			}
			f.Float = append(f.Float, vec)
		}
	}
	return f, nil
}

func (d *Detector) encoding() correspond.Encoding {
	if d.Algorithm == ORB {
		return correspond.EncodingBinary
	}
	return correspond.EncodingFloat
}

// strongest returns the row indices of at most max keypoints, by
// descending response, in detection order when nothing is dropped.
func strongest(kps []gocv.KeyPoint, max int) []int {
	idx := make([]int, len(kps))
	if max <= 0 || len(kps) <= max {
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	resp := make([]float64, len(kps))
	for i, kp := range kps {
		resp[i] = -kp.Response
	}
	floats.ArgsortStable(resp, idx)
	return idx[:max]
}
