// Package overlay projects editor and segmentation state into
// resolution-independent canvas primitives. The projection is pure; a
// renderer (terminal cells, PNG snapshot, web canvas) draws the frame
// without knowing any editor rules.
package overlay

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/michalprusek/maptimize-annotate/domain/annotate"
	"github.com/michalprusek/maptimize-annotate/domain/segment"
	"github.com/michalprusek/maptimize-annotate/geom"
)

// BoxShape is a rectangle in canvas coordinates with its display
// attributes. Handles is populated only for the selected box.
type BoxShape struct {
	Rect     geom.Rect
	Handles  []geom.Vec
	Selected bool
	Hovered  bool
	Modified bool
	New      bool
}

// PolyKind distinguishes the three polygon layers.
type PolyKind int

const (
	PolyCommitted PolyKind = iota
	PolyPending
	PolyPreview
)

// PolyShape is a polygon ring in canvas coordinates.
type PolyShape struct {
	Points     []geom.Vec
	Kind       PolyKind
	ColorIndex int
	Score      float64
}

// Marker is a prompt click in canvas coordinates.
type Marker struct {
	Pos      geom.Vec
	Positive bool
}

// Frame is one fully projected overlay: everything a renderer needs, in
// draw order (committed, pending, preview, boxes, live rect, markers).
type Frame struct {
	Zoom     float64
	Pan      geom.Vec
	ImageW   float64
	ImageH   float64
	Polygons []PolyShape
	Boxes    []BoxShape
	Live     *BoxShape
	Markers  []Marker
	Cursor   annotate.Cursor
	Loading  bool
	Status   segment.EmbeddingStatus
}

// Input bundles the state a projection reads.
type Input struct {
	State       annotate.EditorState
	Boxes       []annotate.Bbox
	Live        geom.Rect
	LiveVisible bool
	Seg         segment.State
}

// Projector memoizes frames keyed by a fingerprint of the input, so
// redraws of unchanged state (the common case in a render loop) reuse
// the previous projection.
type Projector struct {
	cache  *lru.Cache[uint64, *Frame]
	misses int
}

// NewProjector builds a projector with the given cache capacity.
func NewProjector(capacity int) *Projector {
	if capacity <= 0 {
		capacity = 16
	}
	cache, _ := lru.New[uint64, *Frame](capacity)
	return &Projector{cache: cache}
}

// Project returns the overlay frame for the input, from cache when the
// fingerprint matches a previous projection.
func (p *Projector) Project(in Input) *Frame {
	key := fingerprint(in)
	if f, ok := p.cache.Get(key); ok {
		return f
	}
	p.misses++
	f := project(in)
	p.cache.Add(key, f)
	return f
}

// Misses reports how many projections were computed rather than served
// from cache.
func (p *Projector) Misses() int { return p.misses }

func project(in Input) *Frame {
	st := in.State
	f := &Frame{
		Zoom:    st.Zoom,
		Pan:     st.Pan,
		ImageW:  st.ImageW,
		ImageH:  st.ImageH,
		Cursor:  st.Cursor,
		Loading: in.Seg.Loading || in.Seg.TextLoading,
		Status:  in.Seg.Status,
	}

	for _, m := range in.Seg.Committed {
		f.Polygons = append(f.Polygons, PolyShape{
			Points:     ring(m.Polygon, st.Zoom, st.Pan),
			Kind:       PolyCommitted,
			ColorIndex: -1,
			Score:      m.Score,
		})
	}
	for _, pp := range in.Seg.Pending {
		f.Polygons = append(f.Polygons, PolyShape{
			Points:     ring(pp.Polygon, st.Zoom, st.Pan),
			Kind:       PolyPending,
			ColorIndex: pp.ColorIndex,
			Score:      pp.Score,
		})
	}
	if in.Seg.Preview != nil {
		f.Polygons = append(f.Polygons, PolyShape{
			Points:     ring(in.Seg.Preview.Polygon, st.Zoom, st.Pan),
			Kind:       PolyPreview,
			ColorIndex: len(in.Seg.Pending),
			Score:      in.Seg.Preview.Score,
		})
	}

	for _, b := range in.Boxes {
		shape := BoxShape{
			Rect:     canvasRect(b.Rect, st.Zoom, st.Pan),
			Selected: b.Key == st.SelectedKey,
			Hovered:  b.Key == st.HoveredKey,
			Modified: b.IsModified,
			New:      b.IsNew,
		}
		if shape.Selected {
			for _, h := range geom.HandlePositions(b.Rect) {
				shape.Handles = append(shape.Handles, geom.ToCanvas(h, st.Zoom, st.Pan))
			}
		}
		f.Boxes = append(f.Boxes, shape)
	}

	if in.LiveVisible {
		f.Live = &BoxShape{Rect: canvasRect(in.Live, st.Zoom, st.Pan)}
	}

	for _, c := range in.Seg.Clicks {
		f.Markers = append(f.Markers, Marker{
			Pos:      geom.ToCanvas(geom.Vec{X: c.X, Y: c.Y}, st.Zoom, st.Pan),
			Positive: c.Label == segment.LabelForeground,
		})
	}
	return f
}

func canvasRect(r geom.Rect, zoom float64, pan geom.Vec) geom.Rect {
	tl := geom.ToCanvas(geom.Vec{X: r.X, Y: r.Y}, zoom, pan)
	return geom.Rect{X: tl.X, Y: tl.Y, Width: r.Width * zoom, Height: r.Height * zoom}
}

func ring(poly []geom.Vec, zoom float64, pan geom.Vec) []geom.Vec {
	out := make([]geom.Vec, len(poly))
	for i, p := range poly {
		out[i] = geom.ToCanvas(p, zoom, pan)
	}
	return out
}

// fingerprint hashes everything the projection depends on. The
// segmentation engine's revision counter stands in for its whole state;
// editor state is hashed field by field.
func fingerprint(in Input) uint64 {
	h := fnv.New64a()
	buf := make([]byte, 8)
	w := func(v uint64) {
		binary.LittleEndian.PutUint64(buf, v)
		h.Write(buf)
	}
	wf := func(v float64) { w(math.Float64bits(v)) }

	st := in.State
	w(uint64(st.Mode))
	wf(st.Zoom)
	wf(st.Pan.X)
	wf(st.Pan.Y)
	wf(st.ImageW)
	wf(st.ImageH)
	w(uint64(st.Cursor))
	h.Write(st.SelectedKey[:])
	h.Write(st.HoveredKey[:])

	w(in.Seg.Rev)

	for _, b := range in.Boxes {
		h.Write(b.Key[:])
		wf(b.Rect.X)
		wf(b.Rect.Y)
		wf(b.Rect.Width)
		wf(b.Rect.Height)
		flags := uint64(0)
		if b.IsNew {
			flags |= 1
		}
		if b.IsModified {
			flags |= 2
		}
		w(flags)
	}

	if in.LiveVisible {
		w(1)
		wf(in.Live.X)
		wf(in.Live.Y)
		wf(in.Live.Width)
		wf(in.Live.Height)
	} else {
		w(0)
	}
	return h.Sum64()
}
