package alignment

import (
	"fmt"
	"math"

	"image-stitcher/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// normalizePoints returns the Hartley similarity that moves the centroid of
// pts to the origin and scales their mean distance from it to sqrt(2).
func normalizePoints(pts []geometry.Point2D) (geometry.Homography, []geometry.Point2D, error) {
	c := geometry.Centroid(pts)
	var mean float64
	for _, p := range pts {
		mean += p.Distance(c)
	}
	mean /= float64(len(pts))
	if mean < 1e-12 {
		return geometry.Homography{}, nil, fmt.Errorf("points coincide")
	}
	s := math.Sqrt2 / mean
	t := geometry.Homography{
		{s, 0, -s * c.X},
		{0, s, -s * c.Y},
		{0, 0, 1},
	}
	out := make([]geometry.Point2D, len(pts))
	for i, p := range pts {
		out[i] = t.Apply(p)
	}
	return t, out, nil
}

// computeHomographyDLT solves dst ~ H*src for four or more point pairs with
// the normalized direct linear transform. The solution is the right
// singular vector of the smallest singular value of the stacked constraint
// matrix, obtained from the 9x9 normal matrix.
func computeHomographyDLT(src, dst []geometry.Point2D) (geometry.Homography, error) {
	n := len(src)
	if n != len(dst) {
		return geometry.Homography{}, fmt.Errorf("point count mismatch: %d vs %d", n, len(dst))
	}
	if n < 4 {
		return geometry.Homography{}, fmt.Errorf("need at least 4 points, got %d", n)
	}

	ts, ns, err := normalizePoints(src)
	if err != nil {
		return geometry.Homography{}, fmt.Errorf("source: %w", err)
	}
	td, nd, err := normalizePoints(dst)
	if err != nil {
		return geometry.Homography{}, fmt.Errorf("destination: %w", err)
	}

	// Two rows per correspondence:
	//  [-x -y -1  0  0  0  u*x u*y u]
	//  [ 0  0  0 -x -y -1  v*x v*y v]
	A := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y
		A.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		A.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var ata mat.Dense
	ata.Mul(A.T(), A)

	var svd mat.SVD
	if ok := svd.Factorize(&ata, mat.SVDFull); !ok {
		return geometry.Homography{}, fmt.Errorf("SVD failed to converge")
	}
	var V mat.Dense
	svd.VTo(&V)

	hn := geometry.FromMatrix(mat.NewDense(3, 3, mat.Col(nil, 8, &V)))

	tdInv, ok := td.Inverse()
	if !ok {
		return geometry.Homography{}, fmt.Errorf("degenerate normalization")
	}
	h := tdInv.Compose(hn).Compose(ts)

	h, ok = h.Normalize()
	if !ok || !h.IsFinite() {
		return geometry.Homography{}, fmt.Errorf("homography at infinity")
	}
	if math.Abs(h.Determinant()) < 1e-12 {
		return geometry.Homography{}, fmt.Errorf("singular homography")
	}
	return h, nil
}

// reprojectionError returns ||H*src - dst||, or +Inf when src maps to the
// line at infinity.
func reprojectionError(h geometry.Homography, src, dst geometry.Point2D) float64 {
	p, w := h.ApplyW(src)
	if math.Abs(w) < 1e-12 {
		return math.Inf(1)
	}
	return p.Distance(dst)
}
