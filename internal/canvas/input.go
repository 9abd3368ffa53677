package canvas

import (
	"aero-vision/pkg/geometry"
)

// Button identifies a pointer button.
type Button int

const (
	ButtonPrimary Button = iota
	ButtonSecondary
	ButtonTertiary
)

// PointerDown starts a pan when the secondary button is pressed. The
// primary button is reserved for selection tools and does nothing here.
func (e *Engine) PointerDown(b Button, pos geometry.Point2D) {
	if b != ButtonSecondary || !e.registry.HasRaster() {
		return
	}
	e.mu.Lock()
	e.dragging = true
	e.dragLast = pos
	e.mu.Unlock()
}

// PointerMove pans by the distance moved since the last event while a
// secondary drag is in progress.
func (e *Engine) PointerMove(pos geometry.Point2D) {
	e.mu.Lock()
	if !e.dragging {
		e.mu.Unlock()
		return
	}
	delta := pos.Sub(e.dragLast)
	e.dragLast = pos
	e.mu.Unlock()

	e.Pan(delta)
}

// PointerUp ends a secondary drag.
func (e *Engine) PointerUp(b Button) {
	if b != ButtonSecondary {
		return
	}
	e.mu.Lock()
	e.dragging = false
	e.mu.Unlock()
}

// Dragging reports whether a pan drag is in progress.
func (e *Engine) Dragging() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dragging
}

// LayerAt returns the ID of the topmost visible vector layer under the
// screen position.
func (e *Engine) LayerAt(pos geometry.Point2D) (string, bool) {
	scene := e.ScreenToScene(pos)
	vectors := e.registry.Vectors()
	for i := len(vectors) - 1; i >= 0; i-- {
		l := vectors[i]
		if !l.Style.Visible {
			continue
		}
		if l.Geometry.Contains(scene) {
			return l.ID, true
		}
	}
	return "", false
}

// LabelAnchor is the screen position at which to draw a layer's name.
type LabelAnchor struct {
	LayerID  string
	Name     string
	Position geometry.Point2D
}

// LabelAnchors returns anchors at the centroid of every visible vector
// layer, in draw order, skipping those that fall outside the surface.
func (e *Engine) LabelAnchors() []LabelAnchor {
	vp := e.Viewport()
	screen := vp.ScreenRect()
	var out []LabelAnchor
	for _, l := range e.registry.Vectors() {
		if !l.Style.Visible || len(l.Geometry) == 0 {
			continue
		}
		p := vp.SceneToScreen(l.Geometry.Centroid())
		if !screen.Contains(p) {
			continue
		}
		out = append(out, LabelAnchor{LayerID: l.ID, Name: l.Name, Position: p})
	}
	return out
}
