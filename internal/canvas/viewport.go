package canvas

import (
	"math"

	"aero-vision/pkg/geometry"
)

// Viewport maps scene coordinates to screen pixels:
//
//	screen = scene*Scale + Translation
//
// Bounds is the scene extent the view was last fitted to and Screen is the
// size of the drawing surface.
type Viewport struct {
	Scale       float64
	Translation geometry.Vector2
	Bounds      geometry.Rect
	Screen      geometry.Size
}

// NewViewport returns an identity viewport for a surface of the given size.
func NewViewport(width, height float64) Viewport {
	return Viewport{Scale: 1, Screen: geometry.NewSize(width, height)}
}

// Transform returns the scene-to-screen affine transform.
func (v Viewport) Transform() geometry.AffineTransform {
	return geometry.Translation(v.Translation.X, v.Translation.Y).
		Compose(geometry.Scale(v.Scale, v.Scale))
}

// SceneToScreen converts a scene point to screen pixels.
func (v Viewport) SceneToScreen(p geometry.Point2D) geometry.Point2D {
	return p.Scale(v.Scale).Add(v.Translation)
}

// ScreenToScene converts a screen pixel position to scene coordinates.
func (v Viewport) ScreenToScene(p geometry.Point2D) geometry.Point2D {
	return p.Sub(v.Translation).Scale(1 / v.Scale)
}

// ScreenRect returns the drawing surface as a rectangle at the origin.
func (v Viewport) ScreenRect() geometry.Rect {
	return geometry.NewRect(0, 0, v.Screen.Width, v.Screen.Height)
}

// VisibleScene returns the scene rectangle currently on screen.
func (v Viewport) VisibleScene() geometry.Rect {
	tl := v.ScreenToScene(geometry.Point2D{})
	br := v.ScreenToScene(geometry.NewPoint2D(v.Screen.Width, v.Screen.Height))
	return geometry.NewRect(tl.X, tl.Y, br.X-tl.X, br.Y-tl.Y)
}

// Shows reports whether scene rectangle r, grown by pad screen pixels on
// every side, overlaps the drawing surface. A viewport without a surface
// shows everything.
func (v Viewport) Shows(r geometry.Rect, pad float64) bool {
	if v.Screen.Width <= 0 || v.Screen.Height <= 0 || v.Scale <= 0 {
		return true
	}
	return v.VisibleScene().Intersects(r.Inset(-pad / v.Scale))
}

// Limits bounds the viewport scale.
type Limits struct {
	MinScale float64
	MaxScale float64
}

// Clamp restricts s to the limits. Limits with min > max are swapped rather
// than rejected.
func (l Limits) Clamp(s float64) float64 {
	lo, hi := l.MinScale, l.MaxScale
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo <= 0 {
		lo = math.SmallestNonzeroFloat64
	}
	if hi <= 0 {
		hi = math.MaxFloat64
	}
	return math.Max(lo, math.Min(hi, s))
}

// Pan shifts the view by a screen-space delta.
func (v Viewport) Pan(delta geometry.Vector2) Viewport {
	if !delta.IsFinite() {
		return v
	}
	v.Translation = v.Translation.Add(delta)
	return v
}

// ZoomAt multiplies the scale by factor, clamped to lim, keeping the scene
// point under the screen position anchor fixed. Non-positive or non-finite
// factors leave the viewport unchanged.
func (v Viewport) ZoomAt(factor float64, anchor geometry.Point2D, lim Limits) Viewport {
	if !(factor > 0) || math.IsInf(factor, 0) || !anchor.IsFinite() {
		return v
	}
	scene := v.ScreenToScene(anchor)
	v.Scale = lim.Clamp(v.Scale * factor)
	v.Translation = anchor.Sub(scene.Scale(v.Scale))
	return v
}

// Fit scales and centres extent inside the screen with a uniform margin in
// screen pixels, preserving aspect ratio. The result depends only on extent,
// the screen size and the margin, so fitting twice is a no-op.
func (v Viewport) Fit(extent geometry.Rect, margin float64, lim Limits) Viewport {
	v.Bounds = extent
	if extent.Empty() || v.Screen.Width <= 0 || v.Screen.Height <= 0 {
		return v
	}

	avail := geometry.NewRect(0, 0, v.Screen.Width, v.Screen.Height).Inset(margin)
	if avail.Empty() {
		avail = v.ScreenRect()
	}

	scale := math.Min(avail.Width/extent.Width, avail.Height/extent.Height)
	v.Scale = lim.Clamp(scale)

	sc := geometry.NewPoint2D(v.Screen.Width/2, v.Screen.Height/2)
	v.Translation = sc.Sub(extent.Center().Scale(v.Scale))
	return v
}

// Resize changes the screen size keeping the scene point at the centre of
// the old surface at the centre of the new one.
func (v Viewport) Resize(width, height float64) Viewport {
	if width <= 0 || height <= 0 {
		return v
	}
	center := v.ScreenToScene(geometry.NewPoint2D(v.Screen.Width/2, v.Screen.Height/2))
	v.Screen = geometry.NewSize(width, height)
	v.Translation = geometry.NewPoint2D(width/2, height/2).Sub(center.Scale(v.Scale))
	return v
}
