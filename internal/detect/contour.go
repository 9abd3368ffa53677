package detect

import (
	"context"
	"fmt"
	"image"
	"sort"

	"aero-vision/internal/pipeline"

	"gocv.io/x/gocv"
)

// Contour segments bright regions with Otsu thresholding and returns their
// outer contours as simplified polygons.
type Contour struct {
	opts Options
}

// NewContour creates an OpenCV contour detector.
func NewContour(opts Options) *Contour {
	return &Contour{opts: opts}
}

// Name implements pipeline.Detector.
func (d *Contour) Name() string { return KindContour }

// Detect implements pipeline.Detector. Cancellation is checked between the
// OpenCV stages.
func (d *Contour) Detect(ctx context.Context, img image.Image, params pipeline.Params, report pipeline.ProgressFunc) ([]pipeline.Detection, error) {
	stage := 0
	next := func(label string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report(stagePercent(stage, 5), label)
		stage++
		return nil
	}

	if err := next("Loading Raster Data..."); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	roi := RegionOfInterest(bounds, params, d.opts.ROIFraction)
	src, err := ImageToMat(Crop(img, roi))
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer src.Close()

	if err := next("Preprocessing Image (Contrast Normalization)..."); err != nil {
		return nil, err
	}
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	gocv.GaussianBlur(gray, &gray, image.Point{X: 5, Y: 5}, 0, 0, gocv.BorderDefault)
	gocv.EqualizeHist(gray, &gray)

	if err := next("Inference: Scanning Sectors..."); err != nil {
		return nil, err
	}
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(gray, &mask, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)

	if err := next("Vectorizing Segmentation Masks..."); err != nil {
		return nil, err
	}
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if err := next("Simplifying Geometry..."); err != nil {
		return nil, err
	}
	fullArea := float64(roi.Dx() * roi.Dy())
	offset := roi.Min.Sub(bounds.Min)

	type found struct {
		det  pipeline.Detection
		area float64
	}
	var results []found
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		area := gocv.ContourArea(c)
		// Skip specks and the frame of the whole region
		if area < d.opts.MinArea || area > fullArea*0.9 {
			continue
		}

		approx := gocv.ApproxPolyDP(c, d.opts.SimplifyEpsilon, true)
		pts := approx.ToPoints()
		approx.Close()
		if len(pts) < 3 {
			continue
		}

		poly := toScene(pts, image.Point{}.Sub(offset))
		results = append(results, found{
			det:  pipeline.Detection{Geometry: poly, Attributes: Describe(poly)},
			area: area,
		})
	}

	// Largest first so the most prominent regions get the first names
	sort.SliceStable(results, func(a, b int) bool { return results[a].area > results[b].area })
	out := make([]pipeline.Detection, len(results))
	for i, r := range results {
		out[i] = r.det
	}

	report(100, pipeline.CompleteStage)
	return out, nil
}

// ImageToMat converts a Go image.Image to a gocv.Mat in BGR format.
func ImageToMat(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return gocv.NewMat(), fmt.Errorf("empty image")
	}

	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			mat.SetUCharAt(y, x*3+0, uint8(b>>8))
			mat.SetUCharAt(y, x*3+1, uint8(g>>8))
			mat.SetUCharAt(y, x*3+2, uint8(r>>8))
		}
	}
	return mat, nil
}
