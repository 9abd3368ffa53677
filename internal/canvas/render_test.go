package canvas

import (
	"image/color"
	"testing"

	"aero-vision/internal/layers"
	"aero-vision/pkg/colorutil"
	"aero-vision/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertColorNear(t *testing.T, want color.RGBA, got color.Color, tol int) {
	t.Helper()
	r, g, b, a := got.RGBA()
	near := func(w uint8, v uint32) bool {
		d := int(w) - int(v>>8)
		return d <= tol && d >= -tol
	}
	assert.Truef(t, near(want.R, r) && near(want.G, g) && near(want.B, b) && near(want.A, a),
		"want %v, got %v", want, color.RGBAModel.Convert(got))
}

// renderScene loads a 100x100 white raster at scale 1 and adds one red
// square from (20,20) to (80,80).
func renderScene(t *testing.T) (*Engine, *layers.Registry, string) {
	t.Helper()
	e, reg := newTestEngine(t, 0)
	e.Resize(100, 100)
	require.NoError(t, e.SetBaseImage(whiteImage(100, 100), geometry.NewRect(0, 0, 100, 100)))
	require.InDelta(t, 1.0, e.Scale(), 1e-9)
	id := reg.AddVectorLayer(square(20, 20, 60), colorutil.Red, "AI Detection 1")
	return e, reg, id
}

func TestRenderFillAndStroke(t *testing.T) {
	e, _, _ := renderScene(t)
	img := e.Render(DefaultTheme())

	assertColorNear(t, white, img.At(5, 5), 0)
	// 40% red over white
	assertColorNear(t, color.RGBA{255, 153, 153, 255}, img.At(50, 50), 2)
	// Outline is opaque
	assertColorNear(t, color.RGBA{255, 0, 0, 255}, img.At(20, 50), 2)
}

func TestOpacityChangesFillOnly(t *testing.T) {
	e, reg, id := renderScene(t)
	e.Render(DefaultTheme())

	require.True(t, reg.UpdateStyle(id, layers.SetOpacity(0.2)))
	img := e.Render(DefaultTheme())

	assertColorNear(t, color.RGBA{255, 204, 204, 255}, img.At(50, 50), 2)
	assertColorNear(t, color.RGBA{255, 0, 0, 255}, img.At(20, 50), 2)
}

func TestUnfilledDrawsOutlineOnly(t *testing.T) {
	e, reg, id := renderScene(t)
	reg.UpdateStyle(id, layers.SetFilled(false))
	img := e.Render(DefaultTheme())

	assertColorNear(t, white, img.At(50, 50), 0)
	assertColorNear(t, color.RGBA{255, 0, 0, 255}, img.At(20, 50), 2)
}

func TestHiddenLayersAndRaster(t *testing.T) {
	e, reg, id := renderScene(t)
	reg.UpdateStyle(id, layers.SetVisible(false))
	reg.UpdateRasterStyle(layers.SetVisible(false))

	theme := DefaultTheme()
	theme.Background = color.RGBA{10, 20, 30, 255}
	img := e.Render(theme)

	assertColorNear(t, color.RGBA{10, 20, 30, 255}, img.At(50, 50), 0)
	assertColorNear(t, color.RGBA{10, 20, 30, 255}, img.At(20, 50), 0)
}

func TestLaterLayersDrawOnTop(t *testing.T) {
	e, reg, first := renderScene(t)
	reg.UpdateStyle(first, layers.SetOpacity(1))
	top := reg.AddVectorLayer(square(40, 40, 20), colorutil.Blue, "AI Detection 2")
	reg.UpdateStyle(top, layers.SetOpacity(1))

	img := e.Render(DefaultTheme())
	assertColorNear(t, color.RGBA{0, 0, 255, 255}, img.At(50, 50), 2)
	assertColorNear(t, color.RGBA{255, 0, 0, 255}, img.At(30, 30), 2)
}

func TestStyleEditRedrawsVectorPassOnly(t *testing.T) {
	e, reg, id := renderScene(t)
	theme := DefaultTheme()

	e.Render(theme)
	base := e.Stats()

	// Nothing changed: both passes come from the cache
	e.Render(theme)
	assert.Equal(t, base, e.Stats())

	reg.UpdateStyle(id, layers.SetColor(colorutil.Green))
	e.Render(theme)
	s := e.Stats()
	assert.Equal(t, base.RasterPasses, s.RasterPasses)
	assert.Equal(t, base.VectorPasses+1, s.VectorPasses)

	e.Pan(geometry.NewPoint2D(3, 0))
	e.Render(theme)
	s2 := e.Stats()
	assert.Equal(t, s.RasterPasses+1, s2.RasterPasses)
	assert.Equal(t, s.VectorPasses+1, s2.VectorPasses)
}

func TestRenderWithoutSurface(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	img := e.Render(DefaultTheme())
	assert.Equal(t, 1, img.Bounds().Dx())
}
