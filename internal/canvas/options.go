package canvas

import (
	"image/color"
)

// Zoom factors used by the view controls.
const (
	DefaultWheelStep   = 1.15
	DefaultZoomInStep  = 1.2
	DefaultZoomOutStep = 0.8
)

// Options configures the engine's interaction behaviour.
type Options struct {
	MinScale    float64
	MaxScale    float64
	FitMargin   float64 // screen pixels left around a fitted extent
	WheelStep   float64 // zoom factor per wheel notch
	ZoomInStep  float64
	ZoomOutStep float64
}

// DefaultOptions returns the default interaction settings.
func DefaultOptions() Options {
	return Options{
		MinScale:    0.02,
		MaxScale:    50,
		FitMargin:   20,
		WheelStep:   DefaultWheelStep,
		ZoomInStep:  DefaultZoomInStep,
		ZoomOutStep: DefaultZoomOutStep,
	}
}

func (o Options) limits() Limits {
	return Limits{MinScale: o.MinScale, MaxScale: o.MaxScale}
}

// Theme holds the presentation constants supplied by the host at render
// time. The engine keeps no theme state of its own.
type Theme struct {
	Background  color.Color
	StrokeWidth float64 // outline width in screen pixels
}

// DefaultTheme is a dark background with a 2px outline.
func DefaultTheme() Theme {
	return Theme{
		Background:  color.NRGBA{R: 0x1e, G: 0x1e, B: 0x1e, A: 0xff},
		StrokeWidth: 2,
	}
}

func (t Theme) equal(o Theme) bool {
	if t.StrokeWidth != o.StrokeWidth {
		return false
	}
	if t.Background == nil || o.Background == nil {
		return t.Background == nil && o.Background == nil
	}
	r1, g1, b1, a1 := t.Background.RGBA()
	r2, g2, b2, a2 := o.Background.RGBA()
	return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
}
