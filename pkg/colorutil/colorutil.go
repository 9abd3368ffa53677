// Package colorutil provides the colour value used for layer styles and the
// default detection palette.
package colorutil

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strings"
)

// ErrInvalidHex is returned when a colour string is not #rrggbb or #rgb.
var ErrInvalidHex = errors.New("invalid hex colour")

// RGB is an opaque 8-bit colour. Alpha is applied separately by the style's
// opacity so the same colour can back an opaque stroke and a translucent fill.
type RGB struct {
	R, G, B uint8
}

// Common colours.
var (
	Black  = RGB{0, 0, 0}
	White  = RGB{255, 255, 255}
	Red    = RGB{255, 0, 0}
	Green  = RGB{0, 255, 0}
	Blue   = RGB{0, 0, 255}
	Yellow = RGB{255, 255, 0}
)

// DefaultPalette is cycled in order when naming fresh detection layers.
var DefaultPalette = []RGB{Red, Green, Blue, Yellow}

// ParseHex parses "#rrggbb" or "#rgb" (the leading # is optional).
func ParseHex(s string) (RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	var c RGB
	if _, err := fmt.Sscanf(h, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	return c, nil
}

// MustParseHex is ParseHex for constants; it panics on error.
func MustParseHex(s string) RGB {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex formats the colour as "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// String implements fmt.Stringer.
func (c RGB) String() string { return c.Hex() }

// MarshalText implements encoding.TextMarshaler so colours serialise as hex.
func (c RGB) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *RGB) UnmarshalText(b []byte) error {
	parsed, err := ParseHex(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Opaque returns the colour with full alpha.
func (c RGB) Opaque() color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// WithOpacity returns the colour with alpha set from an opacity in [0,1].
func (c RGB) WithOpacity(opacity float64) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: AlphaFromOpacity(opacity)}
}

// FromColor converts any color.Color, dropping alpha.
func FromColor(col color.Color) RGB {
	n := color.NRGBAModel.Convert(col).(color.NRGBA)
	return RGB{R: n.R, G: n.G, B: n.B}
}

// AlphaFromOpacity maps an opacity in [0,1] to an 8-bit alpha, clamping.
func AlphaFromOpacity(opacity float64) uint8 {
	return uint8(math.Round(ClampUnit(opacity) * 255))
}

// ClampUnit clamps v into [0,1]. NaN maps to 0.
func ClampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
