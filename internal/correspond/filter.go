package correspond

import (
	"math"
	"math/bits"
	"runtime"
	"sync"

	"image-stitcher/internal/logger"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// neighbours holds the two closest candidates for one query descriptor.
type neighbours struct {
	best, second float64
	bestIdx      int
}

// MatchDescriptors matches every descriptor of a against b using the
// nearest/second-nearest ratio test, then orders the accepted matches by
// ascending distance and truncates to opts.MaxMatches.
//
// A query is accepted only when b holds at least two descriptors, so a
// single-descriptor b never produces a match. Mismatched encodings or
// descriptor widths yield an empty set.
func MatchDescriptors(a, b Features, opts FilterOptions) Set {
	if a.Len() == 0 || b.Len() == 0 {
		return Set{}
	}

	log := logger.WithFields(logrus.Fields{
		"stage":     "correspond",
		"encodingA": a.Encoding.String(),
		"encodingB": b.Encoding.String(),
	})

	if a.Encoding != b.Encoding {
		log.Warn("descriptor encodings differ, no matches produced")
		return Set{}
	}
	wa, err := a.descriptorLen()
	if err != nil {
		log.WithError(err).Warn("invalid descriptors in first image")
		return Set{}
	}
	wb, err := b.descriptorLen()
	if err != nil {
		log.WithError(err).Warn("invalid descriptors in second image")
		return Set{}
	}
	if wa != wb {
		log.WithFields(logrus.Fields{"widthA": wa, "widthB": wb}).Warn("descriptor widths differ, no matches produced")
		return Set{}
	}
	if b.Len() < 2 {
		return Set{}
	}

	nn := nearestTwo(a, b)

	accepted := make(Set, 0, len(nn))
	for i, n := range nn {
		if n.bestIdx < 0 || !(n.best < opts.Ratio*n.second) {
			continue
		}
		accepted = append(accepted, Correspondence{
			A:        a.Keypoints[i],
			B:        b.Keypoints[n.bestIdx],
			Distance: n.best,
		})
	}

	sorted := sortByDistance(accepted)
	log.WithFields(logrus.Fields{
		"queries":  a.Len(),
		"accepted": len(sorted),
	}).Debug("ratio test done")
	return capSet(sorted, opts.MaxMatches)
}

// FromPairs passes dense-matcher output through unchanged except for the cap.
func FromPairs(pairs []Correspondence, opts FilterOptions) Set {
	out := make(Set, len(pairs))
	copy(out, pairs)
	return capSet(out, opts.MaxMatches)
}

func capSet(s Set, max int) Set {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}

// sortByDistance orders matches by ascending distance, keeping the original
// order among equal distances.
func sortByDistance(s Set) Set {
	if len(s) < 2 {
		return s
	}
	dists := make([]float64, len(s))
	for i, c := range s {
		dists[i] = c.Distance
	}
	idx := make([]int, len(s))
	floats.ArgsortStable(dists, idx)

	out := make(Set, len(s))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}

// nearestTwo runs the brute-force 2-nearest-neighbour search, splitting the
// query rows into one horizontal stripe per CPU.
func nearestTwo(a, b Features) []neighbours {
	n := a.Len()
	out := make([]neighbours, n)

	numWorkers := runtime.NumCPU()
	rowsPerWorker := (n + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * rowsPerWorker
		if start >= n {
			break
		}
		end := min(start+rowsPerWorker, n)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := start; i < end; i++ {
				out[i] = scanRow(a, b, i)
			}
		}()
	}
	wg.Wait()
	return out
}

func scanRow(a, b Features, i int) neighbours {
	n := neighbours{best: math.Inf(1), second: math.Inf(1), bestIdx: -1}
	for j := 0; j < b.Len(); j++ {
		var d float64
		if a.Encoding == EncodingBinary {
			d = float64(hamming(a.Bits[i], b.Bits[j]))
		} else {
			d = euclidean(a.Float[i], b.Float[j])
		}
		switch {
		case d < n.best:
			n.second = n.best
			n.best = d
			n.bestIdx = j
		case d < n.second:
			n.second = d
		}
	}
	return n
}

func euclidean(p, q []float32) float64 {
	var sum float64
	for k := range p {
		d := float64(p[k]) - float64(q[k])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func hamming(p, q []byte) int {
	var n int
	for k := range p {
		n += bits.OnesCount8(p[k] ^ q[k])
	}
	return n
}
