package geometry

import "math"

// Collinear reports whether a, b and c lie on one line, within tol measured
// as twice the triangle area.
func Collinear(a, b, c Point2D, tol float64) bool {
	return math.Abs(crossProduct(a, b, c)) <= tol
}

// IsConvex returns true if the polygon vertices form a convex polygon.
// The polygon is assumed to be simple (non-self-intersecting).
func IsConvex(polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	n := len(polygon)
	var sign int

	for i := 0; i < n; i++ {
		cross := crossProduct(polygon[i], polygon[(i+1)%n], polygon[(i+2)%n])
		if cross == 0 {
			continue
		}
		s := 1
		if cross < 0 {
			s = -1
		}
		if sign == 0 {
			sign = s
		} else if s != sign {
			return false
		}
	}

	return true
}

// PolygonArea returns the unsigned area of a simple polygon (shoelace).
func PolygonArea(polygon []Point2D) float64 {
	if len(polygon) < 3 {
		return 0
	}
	var sum float64
	for i := range polygon {
		j := (i + 1) % len(polygon)
		sum += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	return math.Abs(sum) / 2
}

// ClipToRect clips a polygon against an axis-aligned rectangle using the
// Sutherland-Hodgman algorithm. Returns nil when nothing remains.
func ClipToRect(subject []Point2D, r Rect) []Point2D {
	if len(subject) < 3 {
		return nil
	}

	output := make([]Point2D, len(subject))
	copy(output, subject)

	// Corners are ordered so that the interior is on the positive side of
	// each edge in image coordinates.
	clip := r.Corners()
	for i := 0; i < len(clip); i++ {
		if len(output) == 0 {
			return nil
		}
		output = clipPolygonByEdge(output, clip[i], clip[(i+1)%len(clip)])
	}

	if len(output) < 3 {
		return nil
	}
	return output
}

func clipPolygonByEdge(polygon []Point2D, edgeStart, edgeEnd Point2D) []Point2D {
	var clipped []Point2D

	for i := 0; i < len(polygon); i++ {
		current := polygon[i]
		next := polygon[(i+1)%len(polygon)]

		currentInside := isInsideEdge(current, edgeStart, edgeEnd)
		nextInside := isInsideEdge(next, edgeStart, edgeEnd)

		if currentInside {
			clipped = append(clipped, current)
			if !nextInside {
				if p, ok := lineIntersection(current, next, edgeStart, edgeEnd); ok {
					clipped = append(clipped, p)
				}
			}
		} else if nextInside {
			if p, ok := lineIntersection(current, next, edgeStart, edgeEnd); ok {
				clipped = append(clipped, p)
			}
		}
	}

	return clipped
}

func isInsideEdge(p, edgeStart, edgeEnd Point2D) bool {
	return crossProduct(edgeStart, edgeEnd, p) >= 0
}

// lineIntersection intersects the segment p1-p2 with the infinite line
// through e1-e2.
func lineIntersection(p1, p2, e1, e2 Point2D) (Point2D, bool) {
	denom := (p1.X-p2.X)*(e1.Y-e2.Y) - (p1.Y-p2.Y)*(e1.X-e2.X)
	if math.Abs(denom) < 1e-10 {
		return Point2D{}, false
	}

	t := ((p1.X-e1.X)*(e1.Y-e2.Y) - (p1.Y-e1.Y)*(e1.X-e2.X)) / denom

	return Point2D{
		X: p1.X + t*(p2.X-p1.X),
		Y: p1.Y + t*(p2.Y-p1.Y),
	}, true
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
