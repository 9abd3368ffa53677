package mainwindow

import (
	"image"
	"testing"

	"aero-vision/internal/app"
	"aero-vision/internal/canvas"
	avimage "aero-vision/internal/image"
	"aero-vision/internal/layers"
	"aero-vision/internal/pipeline"
	"aero-vision/pkg/colorutil"
	"aero-vision/pkg/geometry"
	uicanvas "aero-vision/ui/canvas"

	fynetest "fyne.io/fyne/v2/test"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWindow(t *testing.T) (*MainWindow, *app.Session) {
	t.Helper()
	a := fynetest.NewApp()
	t.Cleanup(a.Quit)

	log, _ := logtest.NewNullLogger()
	engine := canvas.NewEngine(layers.NewRegistry(), canvas.DefaultOptions(), log)
	t.Cleanup(engine.Close)
	s := app.NewSession(engine, pipeline.NewJob(nil, pipeline.WithLogger(log)), app.WithLogger(log))
	t.Cleanup(s.Close)

	mw := New(a, s, uicanvas.NewMapCanvas(engine, canvas.Theme{}))
	t.Cleanup(mw.Close)
	return mw, s
}

func TestImageLoadUpdatesTitleAndStatus(t *testing.T) {
	mw, s := newWindow(t)
	require.NoError(t, s.SetImage(&avimage.Raster{Path: "/data/apron.png", Format: "png", Image: image.NewRGBA(image.Rect(0, 0, 64, 32))}))

	assert.Equal(t, "Aero-Vision - apron.png", mw.Title())
	assert.Equal(t, "Loaded apron.png (64 x 32)", mw.statusBar.Text)
}

func TestZoomToDetections(t *testing.T) {
	mw, s := newWindow(t)
	s.Engine().Resize(400, 400)
	require.NoError(t, s.SetImage(&avimage.Raster{Format: "png", Image: image.NewRGBA(image.Rect(0, 0, 800, 800))}))

	mw.onFitLayers()
	assert.Equal(t, "No visible detections", mw.statusBar.Text)

	s.Registry().AddVectorLayer(geometry.Polygon{{X: 100, Y: 100}, {X: 300, Y: 100}, {X: 300, Y: 300}, {X: 100, Y: 300}}, colorutil.Red, "AI Detection 1")
	before := s.Engine().Scale()
	mw.onFitLayers()
	assert.Greater(t, s.Engine().Scale(), before)

	// The detection is centred in the view
	vp := s.Engine().Viewport()
	centre := s.Engine().SceneToScreen(geometry.NewPoint2D(200, 200))
	assert.InDelta(t, vp.Screen.Width/2, centre.X, 1e-6)
	assert.InDelta(t, vp.Screen.Height/2, centre.Y, 1e-6)
}
