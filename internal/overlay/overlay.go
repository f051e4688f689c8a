// Package overlay draws face boxes, labels and the live transcript onto frames
// and keeps the latest rendered preview.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"
	"time"

	"github.com/kozaktomas/face-recall/internal/constants"
	"github.com/kozaktomas/face-recall/internal/facematch"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	// KnownColor outlines matched faces.
	KnownColor = color.RGBA{G: 255, A: 255}
	// UnknownColor outlines unmatched faces.
	UnknownColor = color.RGBA{R: 255, A: 255}
	textColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const boxThickness = 2

// Annotation is one face drawn on the frame.
type Annotation struct {
	Box   facematch.Box
	Label string
	Known bool
}

// AnnotationFor builds the annotation of a matched face.
func AnnotationFor(face facematch.Face, result facematch.MatchResult) Annotation {
	return Annotation{Box: face.Box, Label: result.Label(), Known: result.Known()}
}

// Renderer draws annotations with the built-in 7x13 bitmap font.
type Renderer struct {
	face font.Face
}

// NewRenderer creates a renderer.
func NewRenderer() *Renderer {
	return &Renderer{face: basicfont.Face7x13}
}

// Render returns a copy of frame with the annotations and the transcript line drawn
// on it. Drawing never modifies the input frame. A panic inside the drawing code is
// returned as an error so the caller's loop keeps running.
func (r *Renderer) Render(frame image.Image, annotations []Annotation, transcript string) (out *image.RGBA, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("overlay render panic: %v", rec)
		}
	}()

	if frame == nil {
		return nil, fmt.Errorf("overlay: nil frame")
	}
	bounds := frame.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, frame, bounds.Min, draw.Src)

	for _, a := range annotations {
		c := UnknownColor
		if a.Known {
			c = KnownColor
		}
		box := a.Box.Offset(-bounds.Min.X, -bounds.Min.Y).Clamp(bounds.Dx(), bounds.Dy()).Offset(bounds.Min.X, bounds.Min.Y)
		if box.Empty() {
			continue
		}
		drawRect(dst, box.Rect(), c)
		// Label sits just above the box, or inside it when the box touches the top edge.
		y := box.Top - 4
		if y-r.face.Metrics().Ascent.Ceil() < bounds.Min.Y {
			y = box.Top + r.face.Metrics().Ascent.Ceil() + 2
		}
		r.drawText(dst, box.Left, y, a.Label, c)
	}

	r.drawText(dst, bounds.Min.X+10, bounds.Min.Y+20, "Audio: "+transcript, textColor)
	return dst, nil
}

func (r *Renderer) drawText(dst *image.RGBA, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// drawRect outlines rect with the given color.
func drawRect(dst *image.RGBA, rect image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	for i := range boxThickness {
		inner := rect.Inset(i)
		if inner.Empty() {
			return
		}
		edges := []image.Rectangle{
			image.Rect(inner.Min.X, inner.Min.Y, inner.Max.X, inner.Min.Y+1),
			image.Rect(inner.Min.X, inner.Max.Y-1, inner.Max.X, inner.Max.Y),
			image.Rect(inner.Min.X, inner.Min.Y, inner.Min.X+1, inner.Max.Y),
			image.Rect(inner.Max.X-1, inner.Min.Y, inner.Max.X, inner.Max.Y),
		}
		for _, e := range edges {
			draw.Draw(dst, e, src, image.Point{}, draw.Src)
		}
	}
}

// Preview holds the most recently rendered frame as JPEG.
type Preview struct {
	mu        sync.RWMutex
	jpeg      []byte
	updatedAt time.Time
}

// NewPreview creates an empty preview.
func NewPreview() *Preview {
	return &Preview{}
}

// Update encodes img and replaces the current preview.
func (p *Preview) Update(img image.Image) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: constants.PreviewJPEGQuality}); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.jpeg = buf.Bytes()
	p.updatedAt = time.Now()
	return nil
}

// JPEG returns the current preview, or nil if nothing was rendered yet.
func (p *Preview) JPEG() ([]byte, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.jpeg, p.updatedAt
}

// Reset clears the preview.
func (p *Preview) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jpeg = nil
	p.updatedAt = time.Time{}
}
