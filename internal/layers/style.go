package layers

import (
	"aero-vision/pkg/colorutil"
)

// DefaultOpacity is the fill opacity given to new vector layers.
const DefaultOpacity = 0.4

// Style is the user-editable presentation state of a layer.
type Style struct {
	Visible bool          `json:"visible"`
	Color   colorutil.RGB `json:"color"`
	Opacity float64       `json:"opacity"` // fill alpha; the outline is always opaque
	Filled  bool          `json:"filled"`
}

// StylePatch is a partial style update. Nil fields are left unchanged.
type StylePatch struct {
	Visible *bool
	Color   *colorutil.RGB
	Opacity *float64
	Filled  *bool
}

// SetVisible returns a patch that only changes visibility.
func SetVisible(v bool) StylePatch { return StylePatch{Visible: &v} }

// SetColor returns a patch that only changes the colour.
func SetColor(c colorutil.RGB) StylePatch { return StylePatch{Color: &c} }

// SetOpacity returns a patch that only changes the opacity.
func SetOpacity(o float64) StylePatch { return StylePatch{Opacity: &o} }

// SetFilled returns a patch that only changes the fill mode.
func SetFilled(f bool) StylePatch { return StylePatch{Filled: &f} }

// Merge combines two patches; fields set in other win.
func (p StylePatch) Merge(other StylePatch) StylePatch {
	if other.Visible != nil {
		p.Visible = other.Visible
	}
	if other.Color != nil {
		p.Color = other.Color
	}
	if other.Opacity != nil {
		p.Opacity = other.Opacity
	}
	if other.Filled != nil {
		p.Filled = other.Filled
	}
	return p
}

// Empty reports whether the patch changes nothing.
func (p StylePatch) Empty() bool {
	return p.Visible == nil && p.Color == nil && p.Opacity == nil && p.Filled == nil
}

// Apply returns s with the patch merged in. Opacity is clamped to [0,1].
func (s Style) Apply(p StylePatch) Style {
	if p.Visible != nil {
		s.Visible = *p.Visible
	}
	if p.Color != nil {
		s.Color = *p.Color
	}
	if p.Opacity != nil {
		s.Opacity = colorutil.ClampUnit(*p.Opacity)
	}
	if p.Filled != nil {
		s.Filled = *p.Filled
	}
	return s
}
