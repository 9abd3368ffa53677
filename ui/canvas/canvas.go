// Package canvas provides the map canvas widget: a fyne raster backed by the
// scene engine, with wheel zoom, secondary-drag pan and click selection.
package canvas

import (
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	scene "aero-vision/internal/canvas"
	"aero-vision/pkg/geometry"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
)

// scrollPerNotch is the scroll delta fyne reports for one wheel click.
const scrollPerNotch = 10

// MapCanvas displays the engine's scene and forwards pointer input to it.
type MapCanvas struct {
	widget.BaseWidget

	engine *scene.Engine
	raster *fynecanvas.Raster

	mu         sync.Mutex
	theme      scene.Theme
	showLabels bool
	pixelScale float64 // raster pixels per device-independent unit

	drawing atomic.Bool

	// Callbacks
	onSelect     func(layerID string)
	onZoomChange func(scale float64)
}

var (
	_ fyne.Widget       = (*MapCanvas)(nil)
	_ fyne.Scrollable   = (*MapCanvas)(nil)
	_ fyne.Tappable     = (*MapCanvas)(nil)
	_ desktop.Mouseable = (*MapCanvas)(nil)
	_ desktop.Hoverable = (*MapCanvas)(nil)
)

// NewMapCanvas creates a canvas drawing engine with theme. The canvas takes
// over the engine's change callback.
func NewMapCanvas(engine *scene.Engine, theme scene.Theme) *MapCanvas {
	mc := &MapCanvas{
		engine:     engine,
		theme:      theme,
		showLabels: true,
		pixelScale: 1,
	}
	mc.raster = fynecanvas.NewRaster(mc.draw)
	mc.raster.ScaleMode = fynecanvas.ImageScalePixels
	mc.ExtendBaseWidget(mc)

	engine.OnChange(func() {
		if mc.drawing.Load() {
			return
		}
		mc.raster.Refresh()
		if cb := mc.zoomCallback(); cb != nil {
			cb(engine.Scale())
		}
	})
	return mc
}

// Engine returns the scene engine behind the canvas.
func (mc *MapCanvas) Engine() *scene.Engine {
	return mc.engine
}

// SetTheme changes the background and stroke width.
func (mc *MapCanvas) SetTheme(theme scene.Theme) {
	mc.mu.Lock()
	mc.theme = theme
	mc.mu.Unlock()
	mc.raster.Refresh()
}

// SetShowLabels toggles layer name labels.
func (mc *MapCanvas) SetShowLabels(show bool) {
	mc.mu.Lock()
	mc.showLabels = show
	mc.mu.Unlock()
	mc.raster.Refresh()
}

// OnSelect sets the callback invoked with the layer under a primary click.
func (mc *MapCanvas) OnSelect(callback func(layerID string)) {
	mc.mu.Lock()
	mc.onSelect = callback
	mc.mu.Unlock()
}

// OnZoomChange sets the callback invoked with the scale after view changes.
func (mc *MapCanvas) OnZoomChange(callback func(scale float64)) {
	mc.mu.Lock()
	mc.onZoomChange = callback
	mc.mu.Unlock()
}

func (mc *MapCanvas) zoomCallback() func(float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.onZoomChange
}

// ZoomIn zooms about the centre of the canvas.
func (mc *MapCanvas) ZoomIn() { mc.engine.ZoomIn() }

// ZoomOut zooms about the centre of the canvas.
func (mc *MapCanvas) ZoomOut() { mc.engine.ZoomOut() }

// Fit frames the base image.
func (mc *MapCanvas) Fit() { mc.engine.Fit() }

// FitLayers frames the visible detection layers, reporting false when there
// are none.
func (mc *MapCanvas) FitLayers() bool { return mc.engine.FitLayers() }

// draw is the raster generator. w and h are in output pixels.
func (mc *MapCanvas) draw(w, h int) image.Image {
	mc.drawing.Store(true)
	defer mc.drawing.Store(false)

	mc.mu.Lock()
	theme := mc.theme
	showLabels := mc.showLabels
	if size := mc.Size(); size.Width > 0 {
		mc.pixelScale = float64(w) / float64(size.Width)
	}
	mc.mu.Unlock()

	mc.engine.Resize(w, h)
	out := mc.engine.Render(theme)
	if showLabels {
		for _, a := range mc.engine.LabelAnchors() {
			DrawLabel(out, a.Name, int(a.Position.X), int(a.Position.Y), labelColor, labelScale(mc.engine.Scale()))
		}
	}
	return out
}

var labelColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// labelScale sizes label glyphs with the view, within readable bounds.
func labelScale(viewScale float64) int {
	s := int(viewScale * 2)
	if s < 2 {
		s = 2
	}
	if s > 4 {
		s = 4
	}
	return s
}

// toScreen converts a widget position to surface pixels.
func (mc *MapCanvas) toScreen(pos fyne.Position) geometry.Point2D {
	mc.mu.Lock()
	s := mc.pixelScale
	mc.mu.Unlock()
	return geometry.NewPoint2D(float64(pos.X)*s, float64(pos.Y)*s)
}

func inside(pos, size fyne.Position) bool {
	return pos.X >= 0 && pos.Y >= 0 && pos.X <= size.X && pos.Y <= size.Y
}

// Scrolled zooms about the cursor.
func (mc *MapCanvas) Scrolled(ev *fyne.ScrollEvent) {
	if ev.Scrolled.DY == 0 {
		return
	}
	mc.engine.Wheel(float64(ev.Scrolled.DY)/scrollPerNotch, mc.toScreen(ev.Position))
}

// Tapped reports the topmost layer under the pointer.
func (mc *MapCanvas) Tapped(ev *fyne.PointEvent) {
	mc.mu.Lock()
	cb := mc.onSelect
	mc.mu.Unlock()
	if cb == nil {
		return
	}
	// Fyne can deliver taps from outside the widget after a drag
	size := mc.Size()
	if !inside(ev.Position, fyne.NewPos(size.Width, size.Height)) {
		return
	}
	if id, ok := mc.engine.LayerAt(mc.toScreen(ev.Position)); ok {
		cb(id)
	}
}

// MouseDown starts a pan on the secondary button.
func (mc *MapCanvas) MouseDown(ev *desktop.MouseEvent) {
	mc.engine.PointerDown(button(ev.Button), mc.toScreen(ev.Position))
}

// MouseUp ends a pan.
func (mc *MapCanvas) MouseUp(ev *desktop.MouseEvent) {
	mc.engine.PointerUp(button(ev.Button))
}

func (mc *MapCanvas) MouseIn(*desktop.MouseEvent) {}

// MouseMoved pans while the secondary button is held.
func (mc *MapCanvas) MouseMoved(ev *desktop.MouseEvent) {
	mc.engine.PointerMove(mc.toScreen(ev.Position))
}

// MouseOut drops an in-progress pan so a release outside the canvas does not
// leave it stuck.
func (mc *MapCanvas) MouseOut() {
	mc.engine.PointerUp(scene.ButtonSecondary)
}

func button(b desktop.MouseButton) scene.Button {
	switch b {
	case desktop.MouseButtonSecondary:
		return scene.ButtonSecondary
	case desktop.MouseButtonTertiary:
		return scene.ButtonTertiary
	default:
		return scene.ButtonPrimary
	}
}

// CreateRenderer implements fyne.Widget.
func (mc *MapCanvas) CreateRenderer() fyne.WidgetRenderer {
	return &mapCanvasRenderer{canvas: mc}
}

type mapCanvasRenderer struct {
	canvas *MapCanvas
}

func (r *mapCanvasRenderer) Layout(size fyne.Size) {
	r.canvas.raster.Resize(size)
}

func (r *mapCanvasRenderer) MinSize() fyne.Size {
	return fyne.NewSize(200, 150)
}

func (r *mapCanvasRenderer) Refresh() {
	r.canvas.raster.Refresh()
}

func (r *mapCanvasRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.canvas.raster}
}

func (r *mapCanvasRenderer) Destroy() {}
