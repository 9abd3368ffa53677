package detect

import (
	"math"

	"aero-vision/pkg/geometry"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Metadata keys written by Describe.
const (
	AttrArea        = "area"
	AttrPerimeter   = "perimeter"
	AttrCentroidX   = "centroid_x"
	AttrCentroidY   = "centroid_y"
	AttrOrientation = "orientation_deg"
	AttrElongation  = "elongation"
)

// maxElongation caps the ratio reported for degenerate, line-like shapes.
const maxElongation = 1000.0

// Describe computes shape metadata for a polygon: area, perimeter and area
// centroid, plus the principal-axis orientation (degrees in [0,180), measured
// clockwise on screen from +x) and elongation (ratio of principal standard
// deviations) of its boundary.
func Describe(poly geometry.Polygon) map[string]any {
	c := poly.Centroid()
	attrs := map[string]any{
		AttrArea:      poly.Area(),
		AttrPerimeter: poly.Perimeter(),
		AttrCentroidX: c.X,
		AttrCentroidY: c.Y,
	}
	if orient, elong, ok := principalAxes(poly); ok {
		attrs[AttrOrientation] = orient
		attrs[AttrElongation] = elong
	}
	return attrs
}

// principalAxes runs an eigen-decomposition of the covariance of points
// sampled evenly along the boundary.
func principalAxes(poly geometry.Polygon) (orientation, elongation float64, ok bool) {
	pts := sampleBoundary(poly, 64)
	if len(pts) < 3 {
		return 0, 0, false
	}

	data := mat.NewDense(len(pts), 2, nil)
	for i, p := range pts {
		data.Set(i, 0, p.X)
		data.Set(i, 1, p.Y)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	var eig mat.EigenSym
	if !eig.Factorize(&cov, true) {
		return 0, 0, false
	}
	values := eig.Values(nil) // ascending
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	major := values[1]
	minor := math.Max(values[0], 0)
	if major <= 0 {
		return 0, 0, false
	}

	vx, vy := vecs.At(0, 1), vecs.At(1, 1)
	orientation = math.Atan2(vy, vx) * 180 / math.Pi
	orientation = math.Mod(orientation+180, 180)

	if minor <= major/(maxElongation*maxElongation) {
		elongation = maxElongation
	} else {
		elongation = math.Sqrt(major / minor)
	}
	return orientation, elongation, true
}

// sampleBoundary returns n points spaced evenly along the closed ring.
func sampleBoundary(poly geometry.Polygon, n int) []geometry.Point2D {
	perim := poly.Perimeter()
	if len(poly) < 2 || perim <= 0 || n <= 0 {
		return nil
	}
	step := perim / float64(n)
	out := make([]geometry.Point2D, 0, n)

	edge := 0
	a, b := poly[0], poly[1%len(poly)]
	edgeLen := a.Distance(b)
	along := 0.0
	for i := 0; i < n; i++ {
		target := float64(i) * step
		for along+edgeLen < target && edge < len(poly)-1 {
			along += edgeLen
			edge++
			a, b = poly[edge], poly[(edge+1)%len(poly)]
			edgeLen = a.Distance(b)
		}
		t := 0.0
		if edgeLen > 0 {
			t = (target - along) / edgeLen
		}
		out = append(out, a.Add(b.Sub(a).Scale(t)))
	}
	return out
}
