package geometry

import "math"

// Polygon is a simple polygon stored as an open ring: the last vertex is
// implicitly joined to the first.
type Polygon []Point2D

// Clone returns an independent copy of the polygon.
func (pg Polygon) Clone() Polygon {
	if pg == nil {
		return nil
	}
	out := make(Polygon, len(pg))
	copy(out, pg)
	return out
}

// Valid reports whether the polygon has at least three vertices, all finite.
func (pg Polygon) Valid() bool {
	if len(pg) < 3 {
		return false
	}
	for _, p := range pg {
		if !p.IsFinite() {
			return false
		}
	}
	return true
}

// Bounds returns the axis-aligned bounding box.
func (pg Polygon) Bounds() Rect {
	return BoundingBox(pg)
}

// SignedArea returns the shoelace area. Positive means counter-clockwise in
// a y-up frame, which is clockwise on screen.
func (pg Polygon) SignedArea() float64 {
	n := len(pg)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += pg[i].X*pg[j].Y - pg[j].X*pg[i].Y
	}
	return sum / 2
}

// Area returns the absolute area.
func (pg Polygon) Area() float64 {
	return math.Abs(pg.SignedArea())
}

// Perimeter returns the length of the closed boundary.
func (pg Polygon) Perimeter() float64 {
	n := len(pg)
	if n < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += pg[i].Distance(pg[(i+1)%n])
	}
	return sum
}

// Centroid returns the area centroid, falling back to the vertex average for
// degenerate polygons.
func (pg Polygon) Centroid() Point2D {
	a := pg.SignedArea()
	if math.Abs(a) < 1e-9 {
		return Centroid(pg)
	}
	var cx, cy float64
	n := len(pg)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := pg[i].X*pg[j].Y - pg[j].X*pg[i].Y
		cx += (pg[i].X + pg[j].X) * cross
		cy += (pg[i].Y + pg[j].Y) * cross
	}
	return Point2D{X: cx / (6 * a), Y: cy / (6 * a)}
}

// Contains tests if a point is inside the polygon using ray casting.
func (pg Polygon) Contains(p Point2D) bool {
	return PointInPolygon(p, pg)
}

// Transform returns the polygon with t applied to every vertex.
func (pg Polygon) Transform(t AffineTransform) Polygon {
	out := make(Polygon, len(pg))
	for i, p := range pg {
		out[i] = t.Apply(p)
	}
	return out
}

// Normalize drops an explicit closing vertex and consecutive duplicates, and
// orients the ring so SignedArea is non-negative.
func (pg Polygon) Normalize() Polygon {
	out := make(Polygon, 0, len(pg))
	for _, p := range pg {
		if len(out) > 0 && out[len(out)-1].Distance(p) < 1e-9 {
			continue
		}
		out = append(out, p)
	}
	if len(out) > 1 && out[0].Distance(out[len(out)-1]) < 1e-9 {
		out = out[:len(out)-1]
	}
	if out.SignedArea() < 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Simplify reduces the vertex count with Douglas-Peucker. The ring is split
// at its first vertex and the vertex farthest from it so both halves keep
// their anchor points.
func (pg Polygon) Simplify(epsilon float64) Polygon {
	if len(pg) <= 3 || epsilon <= 0 {
		return pg.Clone()
	}
	far := 0
	for i := range pg {
		if pg[i].Distance(pg[0]) > pg[far].Distance(pg[0]) {
			far = i
		}
	}
	first := simplifyPath(pg[:far+1], epsilon)
	ring := append(Polygon{}, pg[far:]...)
	ring = append(ring, pg[0])
	second := simplifyPath(ring, epsilon)

	out := make(Polygon, 0, len(first)+len(second))
	out = append(out, first[:len(first)-1]...)
	out = append(out, second[:len(second)-1]...)
	if len(out) < 3 {
		return pg.Clone()
	}
	return out
}

// simplifyPath reduces the number of vertices of an open path using the
// Douglas-Peucker algorithm.
func simplifyPath(path []Point2D, epsilon float64) []Point2D {
	if len(path) <= 2 {
		return path
	}

	dmax := 0.0
	index := 0
	end := len(path) - 1
	for i := 1; i < end; i++ {
		d := perpendicularDistance(path[i], path[0], path[end])
		if d > dmax {
			dmax = d
			index = i
		}
	}

	if dmax > epsilon {
		left := simplifyPath(path[:index+1], epsilon)
		right := simplifyPath(path[index:], epsilon)

		result := make([]Point2D, 0, len(left)+len(right)-1)
		result = append(result, left[:len(left)-1]...)
		result = append(result, right...)
		return result
	}

	return []Point2D{path[0], path[end]}
}

// perpendicularDistance calculates the distance from point p to line a-b.
func perpendicularDistance(p, a, b Point2D) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	if dx == 0 && dy == 0 {
		return p.Distance(a)
	}
	num := math.Abs(dy*p.X - dx*p.Y + b.X*a.Y - b.Y*a.X)
	return num / math.Hypot(dx, dy)
}

// PointInPolygon tests if a point is inside a polygon using ray casting.
func PointInPolygon(p Point2D, polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := polygon[i], polygon[j]

		// Check if ray from p going right intersects edge pi-pj
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}
	return inside
}

// RegularPolygon generates n evenly-spaced vertices around a circle.
func RegularPolygon(center Point2D, radius float64, n int) Polygon {
	points := make(Polygon, n)
	for i := 0; i < n; i++ {
		angle := float64(i) * 2.0 * math.Pi / float64(n)
		points[i] = Point2D{
			X: center.X + radius*math.Cos(angle),
			Y: center.Y + radius*math.Sin(angle),
		}
	}
	return points
}
