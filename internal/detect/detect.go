// Package detect provides the detector collaborators the processing job
// runs: a simulated detector for demos and tests, an OpenCV contour
// detector, and an adapter for a remote inference service.
package detect

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"aero-vision/internal/pipeline"
	"aero-vision/pkg/geometry"

	"golang.org/x/image/draw"
)

// Detector kinds accepted by New.
const (
	KindSimulated = "simulated"
	KindContour   = "contour"
	KindRemote    = "remote"
)

// Kinds lists the accepted detector kinds.
func Kinds() []string {
	return []string{KindSimulated, KindContour, KindRemote}
}

// Stages are the progress labels reported, in order, before the final
// pipeline.CompleteStage.
var Stages = []string{
	"Initializing GIS Engine...",
	"Loading Raster Data...",
	"Preprocessing Image (Contrast Normalization)...",
	"Loading Neural Network (DroneNet-V4)...",
	"Inference: Scanning Sectors...",
	"Vectorizing Segmentation Masks...",
	"Simplifying Geometry...",
	"Writing Shapefile Attributes...",
	"Finalizing Output...",
}

// stagePercent is the percent reported when entering stage i of n.
func stagePercent(i, n int) int {
	if n <= 0 {
		return 0
	}
	return i * 100 / n
}

// Options configures the detectors built by New.
type Options struct {
	StageDelay      time.Duration // simulated pause per stage
	ROIFraction     float64       // side of the centred ROI as a fraction of the image
	MinArea         float64       // contours smaller than this (px²) are dropped
	SimplifyEpsilon float64       // Douglas-Peucker tolerance in px
	InferenceURL    string        // remote service endpoint
	RequestTimeout  time.Duration
}

// DefaultOptions returns the default detector options.
func DefaultOptions() Options {
	return Options{
		StageDelay:      500 * time.Millisecond,
		ROIFraction:     0.5,
		MinArea:         200,
		SimplifyEpsilon: 2.0,
		RequestTimeout:  60 * time.Second,
	}
}

// New builds the detector named by kind.
func New(kind string, opts Options) (pipeline.Detector, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindSimulated, "":
		return NewSimulated(opts), nil
	case KindContour:
		return NewContour(opts), nil
	case KindRemote:
		if opts.InferenceURL == "" {
			return nil, fmt.Errorf("remote detector: inference URL is required")
		}
		return NewRemote(opts), nil
	default:
		return nil, fmt.Errorf("unknown detector kind %q", kind)
	}
}

// RegionOfInterest returns the pixel rectangle a detector should scan. With
// UseFullScene it is the whole image; otherwise a centred rectangle whose
// sides are fraction of the image sides.
func RegionOfInterest(bounds image.Rectangle, params pipeline.Params, fraction float64) image.Rectangle {
	if params.UseFullScene || fraction <= 0 || fraction >= 1 {
		return bounds
	}
	r := geometry.NewRect(float64(bounds.Min.X), float64(bounds.Min.Y),
		float64(bounds.Dx()), float64(bounds.Dy())).CenteredFraction(fraction)
	roi := image.Rect(int(r.X), int(r.Y), int(r.X+r.Width), int(r.Y+r.Height)).Intersect(bounds)
	if roi.Empty() {
		return bounds
	}
	return roi
}

// subImager is implemented by the standard library image types.
type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of img inside r, sharing pixels when possible.
func Crop(img image.Image, r image.Rectangle) image.Image {
	if r == img.Bounds() {
		return img
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(dst, image.Point{}, img, r, draw.Src, nil)
	return dst
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// toScene converts a pixel-space polygon of img into scene units, where the
// image's top-left pixel is the origin.
func toScene(pts []image.Point, origin image.Point) geometry.Polygon {
	out := make(geometry.Polygon, len(pts))
	for i, p := range pts {
		out[i] = geometry.NewPoint2D(float64(p.X-origin.X), float64(p.Y-origin.Y))
	}
	return out
}
