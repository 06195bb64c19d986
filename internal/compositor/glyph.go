package compositor

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/vector"
)

// kappa approximates a quarter circle with a cubic Bézier.
const kappa = 0.5523

var glyphHole = color.NRGBA{R: 40, G: 40, B: 40, A: 255}

func circle(r *vector.Rasterizer, cx, cy, rad float32) {
	k := kappa * rad
	r.MoveTo(cx+rad, cy)
	r.CubeTo(cx+rad, cy+k, cx+k, cy+rad, cx, cy+rad)
	r.CubeTo(cx-k, cy+rad, cx-rad, cy+k, cx-rad, cy)
	r.CubeTo(cx-rad, cy-k, cx-k, cy-rad, cx, cy-rad)
	r.CubeTo(cx+k, cy-rad, cx+rad, cy-k, cx+rad, cy)
	r.ClosePath()
}

func fill(dst draw.Image, box image.Rectangle, c color.Color, shape func(r *vector.Rasterizer, s float32)) {
	s := box.Dx()
	if s <= 0 {
		return
	}
	r := vector.NewRasterizer(s, s)
	shape(r, float32(s))
	r.Draw(dst, box, image.NewUniform(c), image.Point{})
}

// drawPin paints a map-pin glyph inside box.
func drawPin(dst draw.Image, box image.Rectangle) {
	fill(dst, box, color.White, func(r *vector.Rasterizer, s float32) {
		cx, cy, rad := s/2, s*0.38, s*0.3
		circle(r, cx, cy, rad)
		r.MoveTo(cx-rad*0.8, cy+rad*0.55)
		r.LineTo(cx+rad*0.8, cy+rad*0.55)
		r.LineTo(cx, s*0.98)
		r.ClosePath()
	})
	fill(dst, box, glyphHole, func(r *vector.Rasterizer, s float32) {
		circle(r, s/2, s*0.38, s*0.12)
	})
}

// drawClock paints a clock-face glyph inside box.
func drawClock(dst draw.Image, box image.Rectangle) {
	fill(dst, box, color.White, func(r *vector.Rasterizer, s float32) {
		circle(r, s/2, s/2, s*0.46)
	})
	fill(dst, box, glyphHole, func(r *vector.Rasterizer, s float32) {
		circle(r, s/2, s/2, s*0.36)
	})
	fill(dst, box, color.White, func(r *vector.Rasterizer, s float32) {
		c, t := s/2, s*0.05
		// minute hand, pointing up
		r.MoveTo(c-t, c)
		r.LineTo(c-t, s*0.2)
		r.LineTo(c+t, s*0.2)
		r.LineTo(c+t, c)
		r.ClosePath()
		// hour hand, pointing right
		r.MoveTo(c, c-t)
		r.LineTo(s*0.72, c-t)
		r.LineTo(s*0.72, c+t)
		r.LineTo(c, c+t)
		r.ClosePath()
	})
}
