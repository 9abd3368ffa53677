package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"aero-vision/internal/pipeline"
	"aero-vision/pkg/geometry"
)

// Remote sends the region of interest to an inference service as a PNG
// upload and converts the returned shapes into detections.
//
// The service answers with
//
//	{"detections": [{"polygon": [[x, y], ...], "class": "...", "confidence": 0.9},
//	                {"x": 10, "y": 20, "width": 30, "height": 40, "class": "..."}]}
//
// in pixel coordinates of the uploaded image. Entries without a polygon are
// taken as bounding boxes.
type Remote struct {
	opts   Options
	client *http.Client
}

// NewRemote creates a remote detector for opts.InferenceURL.
func NewRemote(opts Options) *Remote {
	return &Remote{
		opts:   opts,
		client: &http.Client{Timeout: opts.RequestTimeout},
	}
}

// Name implements pipeline.Detector.
func (d *Remote) Name() string { return KindRemote }

type remoteDetection struct {
	Polygon    [][2]float64 `json:"polygon"`
	X          float64      `json:"x"`
	Y          float64      `json:"y"`
	Width      float64      `json:"width"`
	Height     float64      `json:"height"`
	Class      string       `json:"class"`
	Confidence float64      `json:"confidence"`
}

type remoteResponse struct {
	Detections []remoteDetection `json:"detections"`
}

// Detect implements pipeline.Detector.
func (d *Remote) Detect(ctx context.Context, img image.Image, params pipeline.Params, report pipeline.ProgressFunc) ([]pipeline.Detection, error) {
	report(0, "Initializing GIS Engine...")
	bounds := img.Bounds()
	roi := RegionOfInterest(bounds, params, d.opts.ROIFraction)

	report(20, "Loading Raster Data...")
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, Crop(img, roi)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	if err := writer.WriteField("use_full_scene", fmt.Sprint(params.UseFullScene)); err != nil {
		return nil, fmt.Errorf("write field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(40, "Inference: Scanning Sectors...")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.opts.InferenceURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report(80, "Vectorizing Segmentation Masks...")

	offset := roi.Min.Sub(bounds.Min)
	dx, dy := float64(offset.X), float64(offset.Y)
	out := make([]pipeline.Detection, 0, len(result.Detections))
	for _, rd := range result.Detections {
		var poly geometry.Polygon
		if len(rd.Polygon) > 0 {
			poly = make(geometry.Polygon, len(rd.Polygon))
			for i, p := range rd.Polygon {
				poly[i] = geometry.NewPoint2D(p[0]+dx, p[1]+dy)
			}
		} else {
			r := geometry.NewRect(rd.X+dx, rd.Y+dy, rd.Width, rd.Height)
			if r.Empty() {
				continue
			}
			poly = geometry.Polygon{
				r.TopLeft(),
				geometry.NewPoint2D(r.X+r.Width, r.Y),
				r.BottomRight(),
				geometry.NewPoint2D(r.X, r.Y+r.Height),
			}
		}
		poly = poly.Normalize()
		out = append(out, pipeline.Detection{
			Geometry:   poly,
			Label:      rd.Class,
			Confidence: rd.Confidence,
			Attributes: Describe(poly),
		})
	}

	report(100, pipeline.CompleteStage)
	return out, nil
}

// CheckHealth probes <InferenceURL>/health.
func (d *Remote) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(d.opts.InferenceURL, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
