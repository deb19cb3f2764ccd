// Package snapshot rasterizes a projected overlay frame to a PNG, for
// exports and review thumbnails.
package snapshot

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/michalprusek/maptimize-annotate/ui/overlay"
)

var (
	background     = color.RGBA{R: 250, G: 250, B: 250, A: 255}
	imageOutline   = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	boxStroke      = color.RGBA{R: 30, G: 120, B: 220, A: 255}
	boxSelected    = color.RGBA{R: 220, G: 120, B: 20, A: 255}
	boxModified    = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	committedFill  = color.RGBA{R: 80, G: 170, B: 90, A: 90}
	previewStroke  = color.RGBA{R: 240, G: 200, B: 40, A: 255}
	markerPositive = color.RGBA{R: 40, G: 180, B: 70, A: 255}
	markerNegative = color.RGBA{R: 220, G: 50, B: 50, A: 255}
)

// palette supplies the pending-polygon color slots; the color index
// wraps around it.
var palette = []color.RGBA{
	{R: 66, G: 133, B: 244, A: 120},
	{R: 219, G: 68, B: 55, A: 120},
	{R: 244, G: 180, B: 0, A: 120},
	{R: 15, G: 157, B: 88, A: 120},
	{R: 171, G: 71, B: 188, A: 120},
	{R: 0, G: 172, B: 193, A: 120},
}

func pendingColor(idx int) color.RGBA {
	if idx < 0 {
		return committedFill
	}
	return palette[idx%len(palette)]
}

// Render draws the frame onto a fresh width x height canvas.
func Render(f *overlay.Frame, width, height int) image.Image {
	dc := gg.NewContext(width, height)
	dc.SetColor(background)
	dc.Clear()

	// Image bounds in canvas space, so the exported view shows where
	// the micrograph sits under the current pan/zoom.
	dc.SetColor(imageOutline)
	dc.SetLineWidth(1.0)
	dc.DrawRectangle(f.Pan.X, f.Pan.Y, f.ImageW*f.Zoom, f.ImageH*f.Zoom)
	dc.Stroke()

	for _, p := range f.Polygons {
		drawPolygon(dc, p)
	}
	for _, b := range f.Boxes {
		drawBox(dc, b)
	}
	if f.Live != nil {
		dc.SetColor(boxStroke)
		dc.SetLineWidth(1.0)
		dc.SetDash(4, 3)
		dc.DrawRectangle(f.Live.Rect.X, f.Live.Rect.Y, f.Live.Rect.Width, f.Live.Rect.Height)
		dc.Stroke()
		dc.SetDash()
	}
	for _, m := range f.Markers {
		if m.Positive {
			dc.SetColor(markerPositive)
		} else {
			dc.SetColor(markerNegative)
		}
		dc.DrawCircle(m.Pos.X, m.Pos.Y, 4)
		dc.Fill()
	}
	return dc.Image()
}

func drawPolygon(dc *gg.Context, p overlay.PolyShape) {
	if len(p.Points) < 3 {
		return
	}
	dc.NewSubPath()
	dc.MoveTo(p.Points[0].X, p.Points[0].Y)
	for _, pt := range p.Points[1:] {
		dc.LineTo(pt.X, pt.Y)
	}
	dc.ClosePath()

	fill := pendingColor(p.ColorIndex)
	if p.Kind == overlay.PolyCommitted {
		fill = committedFill
	}
	dc.SetColor(fill)
	dc.FillPreserve()

	stroke := color.RGBA{R: fill.R, G: fill.G, B: fill.B, A: 255}
	if p.Kind == overlay.PolyPreview {
		stroke = previewStroke
	}
	dc.SetColor(stroke)
	dc.SetLineWidth(1.5)
	dc.Stroke()
}

func drawBox(dc *gg.Context, b overlay.BoxShape) {
	stroke := boxStroke
	switch {
	case b.Modified:
		stroke = boxModified
	case b.Selected:
		stroke = boxSelected
	}
	dc.SetColor(stroke)
	if b.Selected {
		dc.SetLineWidth(2.0)
	} else {
		dc.SetLineWidth(1.0)
	}
	dc.DrawRectangle(b.Rect.X, b.Rect.Y, b.Rect.Width, b.Rect.Height)
	dc.Stroke()

	for _, h := range b.Handles {
		dc.SetColor(color.White)
		dc.DrawRectangle(h.X-3, h.Y-3, 6, 6)
		dc.FillPreserve()
		dc.SetColor(stroke)
		dc.SetLineWidth(1.0)
		dc.Stroke()
	}
}

// Encode writes the rendered frame as PNG.
func Encode(w io.Writer, f *overlay.Frame, width, height int) error {
	return png.Encode(w, Render(f, width, height))
}

// Save renders the frame and writes it to path.
func Save(path string, f *overlay.Frame, width, height int) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return Encode(out, f, width, height)
}

// Thumbnail scales img down so its longer side is maxSide, preserving
// aspect ratio. Images already small enough are copied unchanged.
func Thumbnail(img image.Image, maxSide int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide < 1 {
		maxSide = 1
	}
	if w > h {
		if w > maxSide {
			h = h * maxSide / w
			w = maxSide
		}
	} else {
		if h > maxSide {
			w = w * maxSide / h
			h = maxSide
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), img, b, xdraw.Over, nil)
	return out
}
