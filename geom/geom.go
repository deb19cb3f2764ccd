// Package geom provides the pure coordinate math for the annotation
// canvas: conversions between canvas and image space under a zoom/pan
// transform, hit testing for bbox bodies and resize handles, and
// clamped move/resize/draw arithmetic.
//
// All positions are float64. "Canvas" coordinates are screen pixels
// relative to the canvas origin; "image" coordinates are pixels of the
// underlying microscopy image. canvas = image*zoom + pan.
package geom

import "math"

// Vec is a 2D vector, used for both positions and deltas.
type Vec struct {
	X float64
	Y float64
}

// Add returns v + o.
func (v Vec) Add(o Vec) Vec { return Vec{v.X + o.X, v.Y + o.Y} }

// Sub returns v - o.
func (v Vec) Sub(o Vec) Vec { return Vec{v.X - o.X, v.Y - o.Y} }

// Scale returns v scaled by s.
func (v Vec) Scale(s float64) Vec { return Vec{v.X * s, v.Y * s} }

// Rect is an axis-aligned rectangle in image coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether the image-space point p lies inside r.
func (r Rect) Contains(p Vec) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// Eq reports exact equality of all four fields.
func (r Rect) Eq(o Rect) bool {
	return r.X == o.X && r.Y == o.Y && r.Width == o.Width && r.Height == o.Height
}

// Handle identifies one of the eight resize handles of a bbox.
type Handle int

const (
	HandleNone Handle = iota
	HandleTopLeft
	HandleTop
	HandleTopRight
	HandleRight
	HandleBottomRight
	HandleBottom
	HandleBottomLeft
	HandleLeft
)

func (h Handle) String() string {
	switch h {
	case HandleTopLeft:
		return "top-left"
	case HandleTop:
		return "top"
	case HandleTopRight:
		return "top-right"
	case HandleRight:
		return "right"
	case HandleBottomRight:
		return "bottom-right"
	case HandleBottom:
		return "bottom"
	case HandleBottomLeft:
		return "bottom-left"
	case HandleLeft:
		return "left"
	default:
		return "none"
	}
}

// movesLeft/movesRight/... report which edges a handle drags.
func (h Handle) movesLeft() bool {
	return h == HandleTopLeft || h == HandleLeft || h == HandleBottomLeft
}
func (h Handle) movesRight() bool {
	return h == HandleTopRight || h == HandleRight || h == HandleBottomRight
}
func (h Handle) movesTop() bool {
	return h == HandleTopLeft || h == HandleTop || h == HandleTopRight
}
func (h Handle) movesBottom() bool {
	return h == HandleBottomLeft || h == HandleBottom || h == HandleBottomRight
}

// ToCanvas converts an image-space point to canvas space.
func ToCanvas(p Vec, zoom float64, pan Vec) Vec {
	return Vec{p.X*zoom + pan.X, p.Y*zoom + pan.Y}
}

// ToImage converts a canvas-space point to image space. It is the exact
// inverse of ToCanvas for any non-zero zoom.
func ToImage(p Vec, zoom float64, pan Vec) Vec {
	return Vec{(p.X - pan.X) / zoom, (p.Y - pan.Y) / zoom}
}

// HandlePositions returns the image-space centers of the eight resize
// handles, indexed by Handle-1 (HandleTopLeft first).
func HandlePositions(r Rect) [8]Vec {
	cx := r.X + r.Width/2
	cy := r.Y + r.Height/2
	return [8]Vec{
		{r.X, r.Y},                      // top-left
		{cx, r.Y},                       // top
		{r.X + r.Width, r.Y},            // top-right
		{r.X + r.Width, cy},             // right
		{r.X + r.Width, r.Y + r.Height}, // bottom-right
		{cx, r.Y + r.Height},            // bottom
		{r.X, r.Y + r.Height},           // bottom-left
		{r.X, cy},                       // left
	}
}

// HitTestHandle returns the handle of r whose canvas position is within
// tolerancePx screen pixels of the cursor, or HandleNone. The tolerance
// is in screen pixels so hit targets keep a constant size on screen
// regardless of zoom. Corner handles are checked first so they win over
// edge handles where the targets overlap on small boxes.
func HitTestHandle(cursor Vec, r Rect, zoom float64, pan Vec, tolerancePx float64) Handle {
	positions := HandlePositions(r)
	order := []Handle{
		HandleTopLeft, HandleTopRight, HandleBottomRight, HandleBottomLeft,
		HandleTop, HandleRight, HandleBottom, HandleLeft,
	}
	for _, h := range order {
		hp := ToCanvas(positions[h-1], zoom, pan)
		if math.Abs(cursor.X-hp.X) <= tolerancePx && math.Abs(cursor.Y-hp.Y) <= tolerancePx {
			return h
		}
	}
	return HandleNone
}

// HitTestBody returns the index of the top-most rectangle containing the
// cursor, or -1. Rectangles are scanned from the end of the slice, so
// with a creation-ordered slice the most recently created wins the
// tie-break between overlapping boxes.
func HitTestBody(cursor Vec, rects []Rect, zoom float64, pan Vec) int {
	p := ToImage(cursor, zoom, pan)
	for i := len(rects) - 1; i >= 0; i-- {
		if rects[i].Contains(p) {
			return i
		}
	}
	return -1
}

// Move translates original by a screen-space delta (divided by zoom) and
// clamps the result so the rectangle stays inside [0,imageW]x[0,imageH].
// The size is never altered.
func Move(original Rect, screenDelta Vec, zoom, imageW, imageH float64) Rect {
	r := original
	r.X += screenDelta.X / zoom
	r.Y += screenDelta.Y / zoom
	r.X = clamp(r.X, 0, imageW-r.Width)
	r.Y = clamp(r.Y, 0, imageH-r.Height)
	return r
}

// Resize applies a screen-space delta (divided by zoom) to the edges the
// handle drags, clamping per edge: a moved edge stops at the image bound
// and at minSize distance from its opposite edge. The untouched edges
// never move, so over-shrinking clamps instead of aborting the resize.
func Resize(original Rect, h Handle, screenDelta Vec, zoom, imageW, imageH, minSize float64) Rect {
	dx := screenDelta.X / zoom
	dy := screenDelta.Y / zoom

	left := original.X
	top := original.Y
	right := original.X + original.Width
	bottom := original.Y + original.Height

	if h.movesLeft() {
		left = clamp(left+dx, 0, right-minSize)
	}
	if h.movesRight() {
		right = clamp(right+dx, left+minSize, imageW)
	}
	if h.movesTop() {
		top = clamp(top+dy, 0, bottom-minSize)
	}
	if h.movesBottom() {
		bottom = clamp(bottom+dy, top+minSize, imageH)
	}

	return Rect{X: left, Y: top, Width: right - left, Height: bottom - top}
}

// FromCorners builds a normalized rectangle from two image-space corners
// of a draw gesture, clamped to the image bounds.
func FromCorners(a, b Vec, imageW, imageH float64) Rect {
	x0 := clamp(math.Min(a.X, b.X), 0, imageW)
	y0 := clamp(math.Min(a.Y, b.Y), 0, imageH)
	x1 := clamp(math.Max(a.X, b.X), 0, imageW)
	y1 := clamp(math.Max(a.Y, b.Y), 0, imageH)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// ZoomAround returns the pan offset that keeps the image point under the
// cursor fixed while zoom changes from oldZoom to newZoom.
func ZoomAround(cursor Vec, oldZoom, newZoom float64, oldPan Vec) Vec {
	ratio := newZoom / oldZoom
	return Vec{
		X: cursor.X - (cursor.X-oldPan.X)*ratio,
		Y: cursor.Y - (cursor.Y-oldPan.Y)*ratio,
	}
}

// ClampZoom bounds z to [min, max].
func ClampZoom(z, min, max float64) float64 { return clamp(z, min, max) }

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
