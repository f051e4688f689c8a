package facematch

import (
	"image"
	"math"
)

// Box is a face bounding box in pixel coordinates.
type Box struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// BoxFromBBox converts an [x1, y1, x2, y2] float bbox (as reported by the face
// service) into a pixel Box. Returns false for malformed input.
func BoxFromBBox(bbox []float64) (Box, bool) {
	if len(bbox) != 4 {
		return Box{}, false
	}
	for _, v := range bbox {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Box{}, false
		}
	}
	b := Box{
		Left:   int(math.Round(min(bbox[0], bbox[2]))),
		Top:    int(math.Round(min(bbox[1], bbox[3]))),
		Right:  int(math.Round(max(bbox[0], bbox[2]))),
		Bottom: int(math.Round(max(bbox[1], bbox[3]))),
	}
	return b, true
}

// Clamp restricts the box to a width x height frame.
func (b Box) Clamp(width, height int) Box {
	clampInt := func(v, lo, hi int) int { return max(lo, min(v, hi)) }
	return Box{
		Left:   clampInt(b.Left, 0, width),
		Top:    clampInt(b.Top, 0, height),
		Right:  clampInt(b.Right, 0, width),
		Bottom: clampInt(b.Bottom, 0, height),
	}
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.Right <= b.Left || b.Bottom <= b.Top
}

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Scale multiplies every coordinate by f, rounding to the nearest pixel.
func (b Box) Scale(f float64) Box {
	s := func(v int) int { return int(math.Round(float64(v) * f)) }
	return Box{Left: s(b.Left), Top: s(b.Top), Right: s(b.Right), Bottom: s(b.Bottom)}
}

// Offset translates the box by (dx, dy).
func (b Box) Offset(dx, dy int) Box {
	return Box{Left: b.Left + dx, Top: b.Top + dy, Right: b.Right + dx, Bottom: b.Bottom + dy}
}
