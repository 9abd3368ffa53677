package detect

import (
	"context"
	"image"
	"math"
	"math/rand/v2"
	"sync"

	"aero-vision/internal/pipeline"
	"aero-vision/pkg/geometry"
)

// Simulated walks through Stages with a fixed pause and returns one jittered
// pentagon inside the region of interest. It stands in for a real model.
type Simulated struct {
	opts Options

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated detector with a random seed.
func NewSimulated(opts Options) *Simulated {
	return &Simulated{opts: opts, rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSimulatedSeeded creates a simulated detector with reproducible output.
func NewSimulatedSeeded(opts Options, seed uint64) *Simulated {
	return &Simulated{opts: opts, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Name implements pipeline.Detector.
func (s *Simulated) Name() string { return KindSimulated }

// Detect implements pipeline.Detector.
func (s *Simulated) Detect(ctx context.Context, img image.Image, params pipeline.Params, report pipeline.ProgressFunc) ([]pipeline.Detection, error) {
	for i, stage := range Stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report(stagePercent(i, len(Stages)), stage)
		if err := sleep(ctx, s.opts.StageDelay); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report(100, pipeline.CompleteStage)

	bounds := img.Bounds()
	roi := RegionOfInterest(bounds, params, s.opts.ROIFraction)
	poly := s.pentagon(roi.Sub(bounds.Min))

	return []pipeline.Detection{{
		Geometry:   poly,
		Attributes: Describe(poly),
	}}, nil
}

// pentagon places five vertices around the centre of roi, each pushed by up
// to a quarter of the radius so the ring stays simple.
func (s *Simulated) pentagon(roi image.Rectangle) geometry.Polygon {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, h := float64(roi.Dx()), float64(roi.Dy())
	c := geometry.NewPoint2D(float64(roi.Min.X)+w/2, float64(roi.Min.Y)+h/2)
	r := math.Min(w, h) * 0.2
	jitter := math.Min(50, r/4)

	poly := geometry.RegularPolygon(c, r, 5)
	for i := range poly {
		poly[i].X += (s.rng.Float64()*2 - 1) * jitter
		poly[i].Y += (s.rng.Float64()*2 - 1) * jitter
	}
	return poly
}
