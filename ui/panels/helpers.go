package panels

import (
	"strings"

	"aero-vision/pkg/colorutil"
)

// Opacity sliders run 0-100 like the layer panel in the window.
const sliderMax = 100

func opacityToSlider(opacity float64) float64 {
	return colorutil.ClampUnit(opacity) * sliderMax
}

func sliderToOpacity(v float64) float64 {
	return colorutil.ClampUnit(v / sliderMax)
}

// logBuffer keeps the newest lines of the processing log.
type logBuffer struct {
	lines []string
	limit int
}

func newLogBuffer(limit int) *logBuffer {
	return &logBuffer{limit: limit}
}

func (b *logBuffer) Add(line string) {
	b.lines = append(b.lines, line)
	if over := len(b.lines) - b.limit; over > 0 {
		b.lines = append(b.lines[:0], b.lines[over:]...)
	}
}

func (b *logBuffer) Reset() {
	b.lines = b.lines[:0]
}

func (b *logBuffer) String() string {
	return strings.Join(b.lines, "\n")
}
