package detect

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aero-vision/internal/pipeline"
	"aero-vision/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type progress struct {
	percent int
	stage   string
}

func recorder() (*[]progress, pipeline.ProgressFunc) {
	var got []progress
	return &got, func(p int, s string) { got = append(got, progress{p, s}) }
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.StageDelay = 0
	return opts
}

func TestSimulatedReportsStagesInOrder(t *testing.T) {
	got, report := recorder()
	d := NewSimulatedSeeded(fastOptions(), 7)

	dets, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 800, 600)), pipeline.Params{UseFullScene: true}, report)
	require.NoError(t, err)

	require.Len(t, *got, len(Stages)+1)
	prev := -1
	for i, p := range *got {
		assert.GreaterOrEqual(t, p.percent, prev)
		prev = p.percent
		if i < len(Stages) {
			assert.Equal(t, Stages[i], p.stage)
		}
	}
	last := (*got)[len(*got)-1]
	assert.Equal(t, progress{100, pipeline.CompleteStage}, last)

	require.Len(t, dets, 1)
	poly := dets[0].Geometry
	require.True(t, poly.Valid())
	assert.Len(t, poly, 5)
	assert.True(t, geometry.NewRect(0, 0, 800, 600).Contains(poly.Centroid()))
	assert.Contains(t, dets[0].Attributes, AttrArea)
}

func TestSimulatedRespectsROI(t *testing.T) {
	_, report := recorder()
	d := NewSimulatedSeeded(fastOptions(), 1)
	dets, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 800, 600)), pipeline.Params{UseFullScene: false}, report)
	require.NoError(t, err)

	roi := geometry.NewRect(200, 150, 400, 300)
	for _, p := range dets[0].Geometry {
		assert.True(t, roi.Contains(p), "vertex %v outside ROI", p)
	}
}

func TestSimulatedStopsOnCancel(t *testing.T) {
	opts := DefaultOptions()
	opts.StageDelay = time.Hour
	d := NewSimulated(opts)

	ctx, cancel := context.WithCancel(context.Background())
	got, report := recorder()
	done := make(chan error, 1)
	go func() {
		_, err := d.Detect(ctx, image.NewRGBA(image.Rect(0, 0, 10, 10)), pipeline.Params{}, report)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("detector did not stop")
	}
	assert.LessOrEqual(t, len(*got), 1)
}

func TestRegionOfInterest(t *testing.T) {
	b := image.Rect(0, 0, 800, 600)
	assert.Equal(t, b, RegionOfInterest(b, pipeline.Params{UseFullScene: true}, 0.5))
	assert.Equal(t, image.Rect(200, 150, 600, 450), RegionOfInterest(b, pipeline.Params{}, 0.5))
	assert.Equal(t, b, RegionOfInterest(b, pipeline.Params{}, 1))

	off := image.Rect(100, 100, 300, 200)
	assert.Equal(t, image.Rect(150, 125, 250, 175), RegionOfInterest(off, pipeline.Params{}, 0.5))
}

func TestCropSharesPixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	c := Crop(img, image.Rect(2, 3, 6, 8))
	assert.Equal(t, image.Rect(2, 3, 6, 8), c.Bounds())
	assert.Same(t, img, Crop(img, img.Bounds()))
}

// opaqueImage hides SubImage so Crop has to copy.
type opaqueImage struct{ image.Image }

func TestCropCopiesWithoutSubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	red := color.RGBA{R: 255, A: 255}
	img.SetRGBA(4, 5, red)

	c := Crop(opaqueImage{img}, image.Rect(2, 3, 6, 8))
	require.IsType(t, &image.RGBA{}, c)
	assert.Equal(t, image.Rect(0, 0, 4, 5), c.Bounds())
	assert.Equal(t, red, c.(*image.RGBA).RGBAAt(2, 2))
	assert.Equal(t, color.RGBA{}, c.(*image.RGBA).RGBAAt(0, 0))
}

// angleDist is the distance between two axis orientations in degrees.
func angleDist(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 180)
	return math.Min(d, 180-d)
}

func TestDescribeOrientationAndElongation(t *testing.T) {
	wide := geometry.Polygon{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 10}, {X: 0, Y: 10}}
	attrs := Describe(wide)
	assert.InDelta(t, 1000.0, attrs[AttrArea], 1e-9)
	assert.InDelta(t, 220.0, attrs[AttrPerimeter], 1e-9)
	assert.InDelta(t, 50.0, attrs[AttrCentroidX], 1e-9)
	assert.InDelta(t, 5.0, attrs[AttrCentroidY], 1e-9)
	assert.Less(t, angleDist(attrs[AttrOrientation].(float64), 0), 1.0)
	assert.Greater(t, attrs[AttrElongation].(float64), 5.0)

	tall := wide.Transform(geometry.AffineTransform{B: 1, C: 1})
	assert.Less(t, angleDist(Describe(tall)[AttrOrientation].(float64), 90), 1.0)

	sq := geometry.Polygon{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	assert.InDelta(t, 1.0, Describe(sq)[AttrElongation].(float64), 0.05)

	diag := geometry.Polygon{{X: 0, Y: 0}, {X: 2, Y: -2}, {X: 102, Y: 98}, {X: 100, Y: 100}}
	assert.Less(t, angleDist(Describe(diag)[AttrOrientation].(float64), 45), 1.0)
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New("crystal-ball", DefaultOptions())
	assert.Error(t, err)

	_, err = New(KindRemote, DefaultOptions())
	assert.Error(t, err)

	d, err := New("", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, KindSimulated, d.Name())
}

func TestRemoteParsesPolygonsAndBoxes(t *testing.T) {
	var gotFile bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("file")
		if err == nil {
			data, _ := io.ReadAll(f)
			gotFile = len(data) > 0
		}
		json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"polygon": [][2]float64{{0, 0}, {10, 0}, {10, 10}}, "class": "hangar", "confidence": 0.9},
				{"x": 5, "y": 5, "width": 20, "height": 10, "class": "vehicle"},
				{"x": 1, "y": 1, "width": 0, "height": 10},
			},
		})
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.InferenceURL = srv.URL
	d, err := New(KindRemote, opts)
	require.NoError(t, err)

	got, report := recorder()
	dets, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 800, 600)), pipeline.Params{UseFullScene: false}, report)
	require.NoError(t, err)
	assert.True(t, gotFile)

	require.Len(t, dets, 2)
	assert.Equal(t, "hangar", dets[0].Label)
	assert.Equal(t, 0.9, dets[0].Confidence)
	// ROI offset (200,150) is added back
	assert.True(t, dets[0].Geometry.Bounds() == geometry.NewRect(200, 150, 10, 10))
	assert.Equal(t, geometry.NewRect(205, 155, 20, 10), dets[1].Geometry.Bounds())
	assert.Equal(t, 100, (*got)[len(*got)-1].percent)
}

func TestRemoteReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.InferenceURL = srv.URL
	_, report := recorder()
	_, err := NewRemote(opts).Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)), pipeline.Params{UseFullScene: true}, report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestRemoteHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.InferenceURL = srv.URL
	assert.NoError(t, NewRemote(opts).CheckHealth(context.Background()))
}

type fakeReader struct {
	text  string
	err   error
	calls int
}

func (f *fakeReader) RecognizeImage(image.Image) (string, error) {
	f.calls++
	return f.text, f.err
}

type fixedDetector struct{ dets []pipeline.Detection }

func (f fixedDetector) Name() string { return "fixed" }
func (f fixedDetector) Detect(context.Context, image.Image, pipeline.Params, pipeline.ProgressFunc) ([]pipeline.Detection, error) {
	return f.dets, nil
}

func TestLabeledFillsMissingLabels(t *testing.T) {
	tri := geometry.Polygon{{X: 1, Y: 1}, {X: 20, Y: 1}, {X: 10, Y: 15}}
	inner := fixedDetector{dets: []pipeline.Detection{{Geometry: tri}, {Geometry: tri, Label: "kept"}}}
	reader := &fakeReader{text: "09L"}

	_, report := recorder()
	dets, err := WithLabels(inner, reader, nil).Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 32, 32)), pipeline.Params{}, report)
	require.NoError(t, err)
	assert.Equal(t, "09L", dets[0].Label)
	assert.Equal(t, "kept", dets[1].Label)
	assert.Equal(t, 1, reader.calls)
}

func TestLabeledIgnoresOCRErrors(t *testing.T) {
	tri := geometry.Polygon{{X: 1, Y: 1}, {X: 20, Y: 1}, {X: 10, Y: 15}}
	reader := &fakeReader{err: errors.New("tesseract missing")}
	_, report := recorder()
	dets, err := WithLabels(fixedDetector{dets: []pipeline.Detection{{Geometry: tri}}}, reader, nil).
		Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 32, 32)), pipeline.Params{}, report)
	require.NoError(t, err)
	assert.Empty(t, dets[0].Label)
}
