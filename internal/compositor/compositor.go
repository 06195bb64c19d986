// Package compositor burns the attendance overlay (action, address, time)
// onto a captured frame and encodes the result as a JPEG.
package compositor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	// DefaultQuality is the JPEG quality factor.
	DefaultQuality = 85
	// MinBandHeight is the overlay band floor in pixels.
	MinBandHeight = 120

	bandRatio   = 0.15
	minFontSize = 14
	// TimestampLayout formats the overlay clock line.
	TimestampLayout = "02-01-2006 03:04:05 PM"
)

var (
	ErrEncodeFailed = errors.New("compositor: encode failed")
	ErrNoSource     = errors.New("compositor: frame source unavailable")
)

var bandColor = color.NRGBA{R: 0, G: 0, B: 0, A: 153}

// FrameSource yields the image to composite at its native resolution.
type FrameSource interface {
	Frame() (image.Image, error)
}

// Overlay is the text burned into the band.
type Overlay struct {
	ActionLabel  string
	AddressLabel string
	Timestamp    time.Time
}

// Blob is an encoded image.
type Blob struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

type faceKey struct {
	bold bool
	size int
}

// Compositor owns a scratch canvas reused across calls. It is safe for
// concurrent use; calls are serialized.
type Compositor struct {
	quality  int
	location *time.Location

	mu      sync.Mutex
	canvas  *image.RGBA
	regular *opentype.Font
	bold    *opentype.Font
	faces   map[faceKey]font.Face
}

// New creates a compositor. Quality outside 1..100 uses DefaultQuality; a nil
// location renders timestamps in local time.
func New(quality int, location *time.Location) (*Compositor, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	if location == nil {
		location = time.Local
	}
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	return &Compositor{
		quality:  quality,
		location: location,
		regular:  regular,
		bold:     bold,
		faces:    make(map[faceKey]font.Face),
	}, nil
}

// BandHeight is the overlay band height for a source of the given height.
func BandHeight(sourceHeight int) int {
	return max(MinBandHeight, int(math.Round(float64(sourceHeight)*bandRatio)))
}

// Compose draws src onto the scratch canvas, paints the overlay and encodes
// a JPEG. src is never written to.
func (c *Compositor) Compose(src FrameSource, ov Overlay) (Blob, error) {
	if src == nil {
		return Blob{}, ErrNoSource
	}
	img, err := src.Frame()
	if err != nil {
		return Blob{}, fmt.Errorf("%w: %v", ErrNoSource, err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return Blob{}, fmt.Errorf("%w: empty frame", ErrNoSource)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	canvas := c.scratch(w, h)
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Src)
	if err := c.paintOverlay(canvas, ov); err != nil {
		return Blob{}, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: c.quality}); err != nil {
		return Blob{}, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	if buf.Len() == 0 {
		return Blob{}, fmt.Errorf("%w: empty output", ErrEncodeFailed)
	}
	return Blob{Data: buf.Bytes(), ContentType: "image/jpeg", Width: w, Height: h}, nil
}

// scratch returns the canvas resized to w x h, reusing its backing array
// when it is large enough.
func (c *Compositor) scratch(w, h int) *image.RGBA {
	need := w * h * 4
	if c.canvas != nil && cap(c.canvas.Pix) >= need {
		c.canvas = &image.RGBA{Pix: c.canvas.Pix[:need], Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}
		return c.canvas
	}
	c.canvas = image.NewRGBA(image.Rect(0, 0, w, h))
	return c.canvas
}

func (c *Compositor) paintOverlay(dst *image.RGBA, ov Overlay) error {
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	band := min(BandHeight(h), h)
	top := h - band
	draw.Draw(dst, image.Rect(0, top, w, h), image.NewUniform(bandColor), image.Point{}, draw.Over)

	size := fontSize(w, band)
	boldFace, err := c.face(true, size)
	if err != nil {
		return err
	}
	regularFace, err := c.face(false, size)
	if err != nil {
		return err
	}

	lineHeight := int(math.Ceil(float64(size) * 1.25))
	pad := max(8, size*6/10)
	iconSize := size
	textX := pad + iconSize + size/3
	startY := top + (band-3*lineHeight)/2
	ascent := boldFace.Metrics().Ascent.Ceil()

	white := image.NewUniform(color.White)
	drawText(dst, boldFace, white, pad, startY+ascent, fitText(boldFace, ov.ActionLabel, w-2*pad))

	y1 := startY + lineHeight
	drawPin(dst, image.Rect(pad, y1+(lineHeight-iconSize)/2, pad+iconSize, y1+(lineHeight+iconSize)/2))
	drawText(dst, regularFace, white, textX, y1+ascent, fitText(regularFace, ov.AddressLabel, w-textX-pad))

	y2 := startY + 2*lineHeight
	drawClock(dst, image.Rect(pad, y2+(lineHeight-iconSize)/2, pad+iconSize, y2+(lineHeight+iconSize)/2))
	drawText(dst, regularFace, white, textX, y2+ascent, c.formatTimestamp(ov.Timestamp))
	return nil
}

func (c *Compositor) formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(c.location).Format(TimestampLayout)
}

// fontSize scales with source width, bounded below by minFontSize and above
// by what three lines allow inside the band.
func fontSize(width, band int) int {
	size := width / 40
	if limit := int(float64(band) / 4.2); size > limit {
		size = limit
	}
	return max(size, minFontSize)
}

func (c *Compositor) face(bold bool, size int) (font.Face, error) {
	key := faceKey{bold: bold, size: size}
	if f, ok := c.faces[key]; ok {
		return f, nil
	}
	src := c.regular
	if bold {
		src = c.bold
	}
	f, err := opentype.NewFace(src, &opentype.FaceOptions{Size: float64(size), DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	c.faces[key] = f
	return f, nil
}

func drawText(dst draw.Image, face font.Face, src image.Image, x, baseline int, s string) {
	if s == "" {
		return
	}
	d := &font.Drawer{Dst: dst, Src: src, Face: face, Dot: fixed.P(x, baseline)}
	d.DrawString(s)
}

// fitText trims s with an ellipsis until it fits in maxWidth pixels.
func fitText(face font.Face, s string, maxWidth int) string {
	if maxWidth <= 0 || font.MeasureString(face, s).Ceil() <= maxWidth {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if font.MeasureString(face, candidate).Ceil() <= maxWidth {
			return candidate
		}
	}
	return ""
}
