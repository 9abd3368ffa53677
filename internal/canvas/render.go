package canvas

import (
	"image"
	"image/color"

	"aero-vision/internal/layers"
	"aero-vision/pkg/geometry"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

// RenderStats counts how often each pass has been redrawn.
type RenderStats struct {
	RasterPasses int
	VectorPasses int
}

// renderCache keeps the two passes of the last frame. A style edit redraws
// only the vector pass; the raster pass is redrawn when the viewport, the
// raster or the background changes.
type renderCache struct {
	raster      *image.RGBA
	vectors     *image.RGBA
	rasterDirty bool
	vectorDirty bool
	theme       Theme
	stats       RenderStats
}

func (c *renderCache) invalidateAll() {
	c.rasterDirty = true
	c.vectorDirty = true
}

// Stats returns the pass counters.
func (e *Engine) Stats() RenderStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.stats
}

// Render draws the scene at the current surface size: the raster if
// visible, then vector layers in ascending z-order. Each vector gets a fill
// at its opacity when filled and an opaque outline of theme.StrokeWidth.
func (e *Engine) Render(theme Theme) *image.RGBA {
	raster, hasRaster := e.registry.Raster()
	vectors := e.registry.Vectors()

	e.mu.Lock()
	defer e.mu.Unlock()

	w, h := int(e.vp.Screen.Width), int(e.vp.Screen.Height)
	if w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	bounds := image.Rect(0, 0, w, h)

	c := &e.cache
	if c.raster == nil || c.raster.Bounds() != bounds {
		c.raster = image.NewRGBA(bounds)
		c.vectors = image.NewRGBA(bounds)
		c.invalidateAll()
	}
	if !theme.equal(c.theme) {
		if theme.StrokeWidth != c.theme.StrokeWidth {
			c.vectorDirty = true
		}
		c.rasterDirty = true
		c.theme = theme
	}

	if c.rasterDirty {
		var rl *layers.RasterLayer
		if hasRaster {
			rl = &raster
		}
		drawRasterPass(c.raster, e.vp, rl, theme.Background)
		c.rasterDirty = false
		c.stats.RasterPasses++
	}
	if c.vectorDirty {
		drawVectorPass(c.vectors, e.vp, vectors, theme.StrokeWidth)
		c.vectorDirty = false
		c.stats.VectorPasses++
	}

	out := image.NewRGBA(bounds)
	draw.Copy(out, image.Point{}, c.raster, bounds, draw.Src, nil)
	draw.Draw(out, bounds, c.vectors, image.Point{}, draw.Over)
	return out
}

// drawRasterPass fills dst with the background and blits the raster through
// the viewport transform.
func drawRasterPass(dst *image.RGBA, vp Viewport, rl *layers.RasterLayer, bg color.Color) {
	if bg == nil {
		bg = color.Black
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	if rl == nil || rl.Image == nil || !rl.Visible || rl.Opacity <= 0 {
		return
	}

	src := rl.Image
	sb := src.Bounds()
	if sb.Empty() {
		return
	}

	// Source pixel -> scene -> screen
	sx := rl.Extent.Width / float64(sb.Dx())
	sy := rl.Extent.Height / float64(sb.Dy())
	pixelToScene := geometry.AffineTransform{
		A: sx, TX: rl.Extent.X - float64(sb.Min.X)*sx,
		D: sy, TY: rl.Extent.Y - float64(sb.Min.Y)*sy,
	}
	s2d := f64.Aff3(vp.Transform().Compose(pixelToScene).ToMatrix())

	var opts *draw.Options
	if rl.Opacity < 1 {
		opts = &draw.Options{
			SrcMask: image.NewUniform(color.Alpha16{A: uint16(rl.Opacity * 0xffff)}),
		}
	}

	var interp draw.Transformer = draw.ApproxBiLinear
	if vp.Scale*sx >= 2 {
		// Magnified: keep pixel edges crisp
		interp = draw.NearestNeighbor
	}
	interp.Transform(dst, s2d, src, sb, draw.Over, opts)
}

// drawVectorPass clears dst and draws every visible layer in order.
func drawVectorPass(dst *image.RGBA, vp Viewport, vectors []layers.VectorLayer, strokeWidth float64) {
	draw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, draw.Src)

	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	filler := rasterx.NewFiller(w, h, scanner)
	dasher := rasterx.NewDasher(w, h, scanner)
	if strokeWidth > 0 {
		dasher.SetStroke(fixed.Int26_6(strokeWidth*64), fixed.Int26_6(4*64),
			rasterx.ButtCap, nil, rasterx.FlatGap, rasterx.Miter, nil, 0)
	}

	t := vp.Transform()
	for _, l := range vectors {
		st := l.Style
		if !st.Visible || !l.Geometry.Valid() || !vp.Shows(l.Geometry.Bounds(), strokeWidth) {
			continue
		}
		pts := l.Geometry.Transform(t)

		if st.Filled && st.Opacity > 0 {
			filler.SetColor(st.Color.WithOpacity(st.Opacity))
			tracePath(filler, pts)
			filler.Draw()
			filler.Clear()
		}
		if strokeWidth > 0 {
			dasher.SetColor(st.Color.Opaque())
			tracePath(dasher, pts)
			dasher.Draw()
			dasher.Clear()
		}
	}
}

// tracePath adds a closed polygon to a rasterx adder.
func tracePath(a rasterx.Adder, pts geometry.Polygon) {
	a.Start(rasterx.ToFixedP(pts[0].X, pts[0].Y))
	for _, p := range pts[1:] {
		a.Line(rasterx.ToFixedP(p.X, p.Y))
	}
	a.Stop(true)
}
