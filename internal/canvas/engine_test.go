package canvas

import (
	"image"
	"image/color"
	"testing"

	"aero-vision/internal/layers"
	"aero-vision/pkg/colorutil"
	"aero-vision/pkg/geometry"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xdraw "golang.org/x/image/draw"
)

func newTestEngine(t *testing.T, margin float64) (*Engine, *layers.Registry) {
	t.Helper()
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	reg := layers.NewRegistry()
	opts := DefaultOptions()
	opts.FitMargin = margin
	e := NewEngine(reg, opts, log)
	t.Cleanup(e.Close)
	return e, reg
}

func whiteImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(img, img.Bounds(), image.White, image.Point{}, xdraw.Src)
	return img
}

func square(x, y, s float64) geometry.Polygon {
	return geometry.Polygon{{X: x, Y: y}, {X: x + s, Y: y}, {X: x + s, Y: y + s}, {X: x, Y: y + s}}
}

func TestPanAndZoomWithoutImageAreNoops(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	e.Resize(200, 100)
	before := e.Viewport()

	e.Pan(geometry.NewPoint2D(10, 10))
	e.Zoom(2, geometry.NewPoint2D(50, 50))
	e.ZoomIn()
	e.Wheel(3, geometry.Point2D{})

	assert.Equal(t, before, e.Viewport())
}

func TestSetBaseImageFitsAndClearsVectors(t *testing.T) {
	e, reg := newTestEngine(t, 20)
	e.Resize(1000, 700)
	reg.AddVectorLayer(square(0, 0, 10), colorutil.Red, "stale")

	require.NoError(t, e.SetBaseImage(whiteImage(800, 600), geometry.NewRect(0, 0, 800, 600)))

	assert.Equal(t, 0, reg.Len())
	assert.True(t, e.HasImage())
	assert.InDelta(t, 1.1, e.Scale(), 1e-9)
	assertPointNear(t, geometry.NewPoint2D(60, 20), e.SceneToScreen(geometry.Point2D{}))

	assert.ErrorIs(t, e.SetBaseImage(nil, geometry.NewRect(0, 0, 1, 1)), ErrNoImage)
}

func TestFitAfterPanRestoresView(t *testing.T) {
	e, _ := newTestEngine(t, 20)
	e.Resize(1000, 700)
	require.NoError(t, e.SetBaseImage(whiteImage(800, 600), geometry.NewRect(0, 0, 800, 600)))
	fitted := e.Viewport()

	e.Pan(geometry.NewPoint2D(-120, 45))
	e.Wheel(2, geometry.NewPoint2D(10, 10))
	assert.NotEqual(t, fitted, e.Viewport())

	e.Fit()
	assert.Equal(t, fitted, e.Viewport())
	e.Fit()
	assert.Equal(t, fitted, e.Viewport())
}

func TestZoomButtonsUseCentreAnchor(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	e.Resize(400, 400)
	require.NoError(t, e.SetBaseImage(whiteImage(400, 400), geometry.NewRect(0, 0, 400, 400)))

	center := e.ScreenToScene(geometry.NewPoint2D(200, 200))
	e.ZoomIn()
	assert.InDelta(t, 1.2, e.Scale(), 1e-9)
	assertPointNear(t, geometry.NewPoint2D(200, 200), e.SceneToScreen(center))

	e.ZoomOut()
	assert.InDelta(t, 0.96, e.Scale(), 1e-9)
}

func TestWheelZoomAnchorsUnderCursor(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	e.Resize(300, 200)
	require.NoError(t, e.SetBaseImage(whiteImage(300, 200), geometry.NewRect(0, 0, 300, 200)))

	cursor := geometry.NewPoint2D(75, 160)
	under := e.ScreenToScene(cursor)
	e.Wheel(2, cursor)
	assert.InDelta(t, 1.15*1.15, e.Scale(), 1e-9)
	assertPointNear(t, cursor, e.SceneToScreen(under))
}

func TestZoomIsClamped(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	e.Resize(100, 100)
	require.NoError(t, e.SetBaseImage(whiteImage(100, 100), geometry.NewRect(0, 0, 100, 100)))

	for i := 0; i < 200; i++ {
		e.ZoomIn()
	}
	assert.Equal(t, DefaultOptions().MaxScale, e.Scale())
	for i := 0; i < 400; i++ {
		e.ZoomOut()
	}
	assert.Equal(t, DefaultOptions().MinScale, e.Scale())
}

func TestSecondaryDragPans(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	e.Resize(100, 100)
	require.NoError(t, e.SetBaseImage(whiteImage(100, 100), geometry.NewRect(0, 0, 100, 100)))
	start := e.Viewport().Translation

	e.PointerDown(ButtonSecondary, geometry.NewPoint2D(10, 10))
	assert.True(t, e.Dragging())
	e.PointerMove(geometry.NewPoint2D(15, 12))
	e.PointerMove(geometry.NewPoint2D(25, 30))
	e.PointerUp(ButtonSecondary)
	assert.False(t, e.Dragging())

	assertPointNear(t, start.Add(geometry.NewPoint2D(15, 20)), e.Viewport().Translation)

	e.PointerMove(geometry.NewPoint2D(90, 90))
	assertPointNear(t, start.Add(geometry.NewPoint2D(15, 20)), e.Viewport().Translation)
}

func TestPrimaryDragIsInert(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	e.Resize(100, 100)
	require.NoError(t, e.SetBaseImage(whiteImage(100, 100), geometry.NewRect(0, 0, 100, 100)))
	before := e.Viewport()

	e.PointerDown(ButtonPrimary, geometry.NewPoint2D(10, 10))
	e.PointerMove(geometry.NewPoint2D(60, 60))
	e.PointerUp(ButtonPrimary)

	assert.Equal(t, before, e.Viewport())
}

func TestResizeFitsFirstThenKeepsCentre(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	require.NoError(t, e.SetBaseImage(whiteImage(200, 100), geometry.NewRect(0, 0, 200, 100)))

	e.Resize(400, 200)
	assert.InDelta(t, 2.0, e.Scale(), 1e-9)

	center := e.ScreenToScene(geometry.NewPoint2D(200, 100))
	e.Resize(800, 300)
	assert.InDelta(t, 2.0, e.Scale(), 1e-9)
	assertPointNear(t, geometry.NewPoint2D(400, 150), e.SceneToScreen(center))
}

func TestLayerAtReturnsTopmostVisible(t *testing.T) {
	e, reg := newTestEngine(t, 0)
	e.Resize(100, 100)
	require.NoError(t, e.SetBaseImage(whiteImage(100, 100), geometry.NewRect(0, 0, 100, 100)))

	low := reg.AddVectorLayer(square(10, 10, 50), colorutil.Red, "low")
	high := reg.AddVectorLayer(square(30, 30, 50), colorutil.Blue, "high")

	id, ok := e.LayerAt(geometry.NewPoint2D(40, 40))
	require.True(t, ok)
	assert.Equal(t, high, id)

	reg.UpdateStyle(high, layers.SetVisible(false))
	id, ok = e.LayerAt(geometry.NewPoint2D(40, 40))
	require.True(t, ok)
	assert.Equal(t, low, id)

	_, ok = e.LayerAt(geometry.NewPoint2D(95, 5))
	assert.False(t, ok)
}

func TestLabelAnchorsSkipOffscreenAndHidden(t *testing.T) {
	e, reg := newTestEngine(t, 0)
	e.Resize(100, 100)
	require.NoError(t, e.SetBaseImage(whiteImage(100, 100), geometry.NewRect(0, 0, 100, 100)))

	a := reg.AddVectorLayer(square(10, 10, 20), colorutil.Red, "AI Detection 1")
	reg.AddVectorLayer(square(500, 500, 20), colorutil.Green, "AI Detection 2")
	hidden := reg.AddVectorLayer(square(40, 40, 20), colorutil.Blue, "AI Detection 3")
	reg.UpdateStyle(hidden, layers.SetVisible(false))

	anchors := e.LabelAnchors()
	require.Len(t, anchors, 1)
	assert.Equal(t, a, anchors[0].LayerID)
	assert.Equal(t, "AI Detection 1", anchors[0].Name)
	assertPointNear(t, geometry.NewPoint2D(20, 20), anchors[0].Position)

	e.ZoomIn()
	anchors = e.LabelAnchors()
	require.Len(t, anchors, 1)
	assertPointNear(t, e.SceneToScreen(geometry.NewPoint2D(20, 20)), anchors[0].Position)
}

func TestOnChangeFiresForViewportAndLayers(t *testing.T) {
	e, reg := newTestEngine(t, 0)
	calls := 0
	e.OnChange(func() { calls++ })

	e.Resize(50, 50)
	require.Equal(t, 1, calls)
	require.NoError(t, e.SetBaseImage(whiteImage(50, 50), geometry.NewRect(0, 0, 50, 50)))
	afterLoad := calls
	assert.Greater(t, afterLoad, 1)

	reg.AddVectorLayer(square(0, 0, 5), colorutil.Red, "a")
	assert.Equal(t, afterLoad+1, calls)
}

var white = color.RGBA{255, 255, 255, 255}

func TestFitLayersFramesVisibleVectors(t *testing.T) {
	e, reg := newTestEngine(t, 0)
	e.Resize(400, 400)
	assert.False(t, e.FitLayers())

	require.NoError(t, e.SetBaseImage(whiteImage(800, 800), geometry.NewRect(0, 0, 800, 800)))
	assert.False(t, e.FitLayers())

	reg.AddVectorLayer(square(100, 100, 50), colorutil.Red, "a")
	reg.AddVectorLayer(square(250, 150, 50), colorutil.Green, "b")
	hidden := reg.AddVectorLayer(square(700, 700, 50), colorutil.Blue, "c")
	reg.UpdateStyle(hidden, layers.SetVisible(false))

	require.True(t, e.FitLayers())
	// Union of the visible squares is (100,100)-(300,200): 200 wide.
	assert.InDelta(t, 2.0, e.Scale(), 1e-9)
	assertPointNear(t, geometry.NewPoint2D(200, 200), e.SceneToScreen(geometry.NewPoint2D(200, 150)))
}
