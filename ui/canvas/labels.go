package canvas

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/draw"
)

// glyphs holds 3x5 bitmaps for the characters layer names use. Each row is
// three bits, most significant on the left.
var glyphs = map[rune][5]uint8{
	'0': {0b111, 0b101, 0b101, 0b101, 0b111},
	'1': {0b010, 0b110, 0b010, 0b010, 0b111},
	'2': {0b111, 0b001, 0b111, 0b100, 0b111},
	'3': {0b111, 0b001, 0b111, 0b001, 0b111},
	'4': {0b101, 0b101, 0b111, 0b001, 0b001},
	'5': {0b111, 0b100, 0b111, 0b001, 0b111},
	'6': {0b111, 0b100, 0b111, 0b101, 0b111},
	'7': {0b111, 0b001, 0b001, 0b001, 0b001},
	'8': {0b111, 0b101, 0b111, 0b101, 0b111},
	'9': {0b111, 0b101, 0b111, 0b001, 0b111},
	'A': {0b010, 0b101, 0b111, 0b101, 0b101},
	'B': {0b110, 0b101, 0b110, 0b101, 0b110},
	'C': {0b011, 0b100, 0b100, 0b100, 0b011},
	'D': {0b110, 0b101, 0b101, 0b101, 0b110},
	'E': {0b111, 0b100, 0b110, 0b100, 0b111},
	'F': {0b111, 0b100, 0b110, 0b100, 0b100},
	'G': {0b011, 0b100, 0b101, 0b101, 0b011},
	'H': {0b101, 0b101, 0b111, 0b101, 0b101},
	'I': {0b111, 0b010, 0b010, 0b010, 0b111},
	'J': {0b001, 0b001, 0b001, 0b101, 0b010},
	'K': {0b101, 0b101, 0b110, 0b101, 0b101},
	'L': {0b100, 0b100, 0b100, 0b100, 0b111},
	'M': {0b101, 0b111, 0b101, 0b101, 0b101},
	'N': {0b101, 0b111, 0b111, 0b101, 0b101},
	'O': {0b010, 0b101, 0b101, 0b101, 0b010},
	'P': {0b110, 0b101, 0b110, 0b100, 0b100},
	'Q': {0b010, 0b101, 0b101, 0b111, 0b011},
	'R': {0b110, 0b101, 0b110, 0b101, 0b101},
	'S': {0b011, 0b100, 0b010, 0b001, 0b110},
	'T': {0b111, 0b010, 0b010, 0b010, 0b010},
	'U': {0b101, 0b101, 0b101, 0b101, 0b111},
	'V': {0b101, 0b101, 0b101, 0b101, 0b010},
	'W': {0b101, 0b101, 0b101, 0b111, 0b101},
	'X': {0b101, 0b101, 0b010, 0b101, 0b101},
	'Y': {0b101, 0b101, 0b010, 0b010, 0b010},
	'Z': {0b111, 0b001, 0b010, 0b100, 0b111},
	'-': {0b000, 0b000, 0b111, 0b000, 0b000},
	'_': {0b000, 0b000, 0b000, 0b000, 0b111},
	'.': {0b000, 0b000, 0b000, 0b000, 0b010},
	'(': {0b001, 0b010, 0b010, 0b010, 0b001},
	')': {0b100, 0b010, 0b010, 0b010, 0b100},
	' ': {},
}

// glyph returns the bitmap for ch; unsupported characters are blank.
func glyph(ch rune) [5]uint8 {
	if ch >= 'a' && ch <= 'z' {
		ch = ch - 'a' + 'A'
	}
	return glyphs[ch]
}

var labelBacking = color.RGBA{A: 0xa0}

// LabelBounds returns the rectangle DrawLabel covers for text centred at
// (cx, cy), including its one-block backing margin.
func LabelBounds(text string, cx, cy, scale int) image.Rectangle {
	if scale < 1 {
		scale = 1
	}
	n := len([]rune(strings.TrimSpace(text)))
	if n == 0 {
		return image.Rectangle{}
	}
	w := n*3*scale + (n-1)*scale
	h := 5 * scale
	x0, y0 := cx-w/2, cy-h/2
	return image.Rect(x0-scale, y0-scale, x0+w+scale, y0+h+scale)
}

// DrawLabel draws text centred at (cx, cy) in scaled 3x5 blocks over a
// translucent dark backing. Pixels outside output are clipped.
func DrawLabel(output *image.RGBA, text string, cx, cy int, col color.RGBA, scale int) {
	if scale < 1 {
		scale = 1
	}
	text = strings.TrimSpace(text)
	box := LabelBounds(text, cx, cy, scale)
	if box.Empty() {
		return
	}
	bounds := output.Bounds()
	draw.Draw(output, box.Intersect(bounds), &image.Uniform{C: labelBacking}, image.Point{}, draw.Over)

	startX, startY := box.Min.X+scale, box.Min.Y+scale
	for i, ch := range []rune(text) {
		pattern := glyph(ch)
		charX := startX + i*4*scale
		for row := 0; row < 5; row++ {
			for c := 0; c < 3; c++ {
				if pattern[row]&(1<<(2-c)) == 0 {
					continue
				}
				block := image.Rect(charX+c*scale, startY+row*scale, charX+(c+1)*scale, startY+(row+1)*scale)
				draw.Draw(output, block.Intersect(bounds), &image.Uniform{C: col}, image.Point{}, draw.Src)
			}
		}
	}
}
