// Package canvas is the spatial engine behind the map view: it owns the
// viewport, converts between scene and screen coordinates, turns pointer
// input into pan and zoom, and renders the raster and vector layers of a
// layers.Registry.
package canvas

import (
	"errors"
	"image"
	"math"
	"sync"

	"aero-vision/internal/layers"
	"aero-vision/pkg/geometry"

	"github.com/sirupsen/logrus"
)

// BaseLayerName is the display name of the raster layer.
const BaseLayerName = "Base Imagery"

// ErrNoImage is returned when a base image is nil or has an empty extent.
var ErrNoImage = errors.New("canvas: no image")

// Engine is owned by the interaction context. Its methods are safe to call
// from the widget's event and paint callbacks.
type Engine struct {
	mu sync.Mutex

	registry *layers.Registry
	opts     Options
	vp       Viewport

	// Secondary-button drag state
	dragging bool
	dragLast geometry.Point2D

	cache renderCache

	onChange    func()
	unsubscribe func()
	log         logrus.FieldLogger
}

// NewEngine creates an engine drawing the layers of reg. The engine observes
// reg until Close is called.
func NewEngine(reg *layers.Registry, opts Options, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{
		registry: reg,
		opts:     opts,
		vp:       NewViewport(0, 0),
		log:      log.WithField("component", "canvas"),
	}
	e.cache.invalidateAll()
	e.unsubscribe = reg.Subscribe(e)
	return e
}

// Close detaches the engine from its registry.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// Registry returns the registry the engine draws.
func (e *Engine) Registry() *layers.Registry {
	return e.registry
}

// OnChange sets a callback invoked after any change that needs a redraw.
// It is called without the engine lock held.
func (e *Engine) OnChange(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

func (e *Engine) changed() {
	e.mu.Lock()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// LayerChanged implements layers.Observer. Raster events invalidate the
// raster pass; all other events only invalidate the vector pass.
func (e *Engine) LayerChanged(ev layers.Event) {
	e.mu.Lock()
	if ev.AffectsRaster() {
		e.cache.rasterDirty = true
	} else {
		e.cache.vectorDirty = true
	}
	e.mu.Unlock()
	e.changed()
}

// SetBaseImage replaces the raster, clears every vector layer and fits the
// view to extent.
func (e *Engine) SetBaseImage(img image.Image, extent geometry.Rect) error {
	if img == nil || extent.Empty() {
		return ErrNoImage
	}

	// Registry calls notify observers, including this engine, so they run
	// before taking e.mu.
	e.registry.ClearVectors()
	e.registry.SetRaster(BaseLayerName, img, extent)

	e.mu.Lock()
	screen := e.vp.Screen
	e.vp = NewViewport(screen.Width, screen.Height)
	e.vp = e.vp.Fit(extent, e.opts.FitMargin, e.opts.limits())
	e.dragging = false
	e.cache.invalidateAll()
	scale := e.vp.Scale
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"width":  extent.Width,
		"height": extent.Height,
		"scale":  scale,
	}).Debug("Base image set")
	e.changed()
	return nil
}

// HasImage reports whether a base raster is loaded.
func (e *Engine) HasImage() bool {
	return e.registry.HasRaster()
}

// Viewport returns a copy of the current viewport.
func (e *Engine) Viewport() Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vp
}

// Scale returns the current zoom scale.
func (e *Engine) Scale() float64 {
	return e.Viewport().Scale
}

// SceneToScreen converts a scene point to screen pixels.
func (e *Engine) SceneToScreen(p geometry.Point2D) geometry.Point2D {
	return e.Viewport().SceneToScreen(p)
}

// ScreenToScene converts a screen position to scene coordinates.
func (e *Engine) ScreenToScene(p geometry.Point2D) geometry.Point2D {
	return e.Viewport().ScreenToScene(p)
}

// update applies fn to the viewport when an image is loaded and reports
// whether anything changed.
func (e *Engine) update(fn func(Viewport) Viewport) bool {
	if !e.registry.HasRaster() {
		return false
	}
	e.mu.Lock()
	next := fn(e.vp)
	if next == e.vp {
		e.mu.Unlock()
		return false
	}
	e.vp = next
	e.cache.invalidateAll()
	e.mu.Unlock()
	e.changed()
	return true
}

// Pan translates the view by a screen-space delta. It is a no-op without an
// image.
func (e *Engine) Pan(delta geometry.Vector2) {
	e.update(func(v Viewport) Viewport { return v.Pan(delta) })
}

// Zoom multiplies the scale by factor, clamped to the configured bounds,
// keeping the scene point under anchor fixed on screen. Every zoom control
// routes through here.
func (e *Engine) Zoom(factor float64, anchor geometry.Point2D) {
	lim := e.opts.limits()
	e.update(func(v Viewport) Viewport { return v.ZoomAt(factor, anchor, lim) })
}

// ZoomIn zooms about the centre of the view by the zoom-in step.
func (e *Engine) ZoomIn() {
	e.Zoom(e.opts.ZoomInStep, e.screenCenter())
}

// ZoomOut zooms about the centre of the view by the zoom-out step.
func (e *Engine) ZoomOut() {
	e.Zoom(e.opts.ZoomOutStep, e.screenCenter())
}

// Wheel zooms by the wheel step per notch about anchor. Positive notches
// zoom in; fractional notches come from high-resolution wheels and
// trackpads.
func (e *Engine) Wheel(notches float64, anchor geometry.Point2D) {
	if notches == 0 || math.IsNaN(notches) {
		return
	}
	e.Zoom(math.Pow(e.opts.WheelStep, notches), anchor)
}

func (e *Engine) screenCenter() geometry.Point2D {
	vp := e.Viewport()
	return geometry.NewPoint2D(vp.Screen.Width/2, vp.Screen.Height/2)
}

// FitToExtent letterboxes extent into the view, preserving aspect ratio.
func (e *Engine) FitToExtent(extent geometry.Rect) {
	lim := e.opts.limits()
	margin := e.opts.FitMargin
	e.update(func(v Viewport) Viewport { return v.Fit(extent, margin, lim) })
}

// Fit re-fits the view to the raster extent.
func (e *Engine) Fit() {
	raster, ok := e.registry.Raster()
	if !ok {
		return
	}
	e.FitToExtent(raster.Extent)
}

// FitLayers frames every visible vector layer. It reports false, leaving the
// view alone, when no layer is visible.
func (e *Engine) FitLayers() bool {
	var extent geometry.Rect
	found := false
	for _, l := range e.registry.Vectors() {
		if !l.Style.Visible || !l.Geometry.Valid() {
			continue
		}
		if b := l.Geometry.Bounds(); found {
			extent = extent.Union(b)
		} else {
			extent, found = b, true
		}
	}
	if !found {
		return false
	}
	e.FitToExtent(extent)
	return true
}

// Resize sets the drawing surface size in pixels. The first sizing after an
// image load fits the image; later ones keep the view centre fixed.
func (e *Engine) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	raster, hasRaster := e.registry.Raster()

	e.mu.Lock()
	w, h := float64(width), float64(height)
	if e.vp.Screen.Width == w && e.vp.Screen.Height == h {
		e.mu.Unlock()
		return
	}
	unsized := e.vp.Screen.Width <= 0 || e.vp.Screen.Height <= 0
	switch {
	case hasRaster && unsized:
		e.vp.Screen = geometry.NewSize(w, h)
		e.vp = e.vp.Fit(raster.Extent, e.opts.FitMargin, e.opts.limits())
	case unsized:
		e.vp.Screen = geometry.NewSize(w, h)
	default:
		e.vp = e.vp.Resize(w, h)
	}
	e.cache.invalidateAll()
	e.mu.Unlock()
	e.changed()
}
