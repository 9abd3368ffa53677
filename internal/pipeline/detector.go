package pipeline

import (
	"context"
	"image"

	"aero-vision/pkg/colorutil"
	"aero-vision/pkg/geometry"
)

// CompleteStage is the label of the final progress event of a successful run.
const CompleteStage = "Process Complete."

// Params are the per-run options passed to the detector.
type Params struct {
	// UseFullScene runs detection over the whole raster. When false the
	// detector restricts itself to a centred region of interest.
	UseFullScene bool `json:"use_full_scene"`
}

// ProgressFunc receives a percent in [0,100] and the current stage label.
type ProgressFunc func(percent int, stage string)

// Detection is one polygon produced by a detector.
type Detection struct {
	Geometry   geometry.Polygon
	Label      string         // optional class or OCR text
	Confidence float64        // 0 when the detector does not score
	Attributes map[string]any // detector specific metadata
}

// Detector is the external detection collaborator. Implementations call
// report between stages and must return promptly with ctx.Err() once ctx
// is done.
type Detector interface {
	Name() string
	Detect(ctx context.Context, img image.Image, params Params, report ProgressFunc) ([]Detection, error)
}

// Item is one entry of a successful result: the geometry with its default
// presentation, ready to become a layer.
type Item struct {
	Geometry   geometry.Polygon
	Color      colorutil.RGB
	Name       string
	Attributes map[string]any
}
