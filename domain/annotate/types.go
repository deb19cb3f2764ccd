// Package annotate implements the bbox editing core: the data model for
// rectangular regions of interest, the pointer-interaction state machine,
// the compensating-action undo history, and the editor that reconciles
// optimistic local mutations against the remote store.
package annotate

import (
	"context"

	"github.com/google/uuid"

	"github.com/michalprusek/maptimize-annotate/geom"
)

// Mode is the editor's top-level tool mode.
type Mode int

const (
	ModeView Mode = iota
	ModeDraw
	ModeSegment
)

func (m Mode) String() string {
	switch m {
	case ModeView:
		return "view"
	case ModeDraw:
		return "draw"
	case ModeSegment:
		return "segment"
	default:
		return "unknown"
	}
}

// Cursor is the pointer shape the host should display.
type Cursor int

const (
	CursorGrab Cursor = iota
	CursorCrosshair
	CursorMove
	CursorResize
	CursorGrabbing
)

func (c Cursor) String() string {
	switch c {
	case CursorCrosshair:
		return "crosshair"
	case CursorMove:
		return "move"
	case CursorResize:
		return "resize"
	case CursorGrabbing:
		return "grabbing"
	default:
		return "grab"
	}
}

// Bbox is a rectangular region of interest. Key is a stable local
// identity assigned at creation; ID is the persisted identity, zero
// until the remote create resolves.
type Bbox struct {
	Key        uuid.UUID
	ID         int64
	Rect       geom.Rect
	Original   geom.Rect // rectangle at last persisted state
	IsNew      bool      // not yet persisted
	IsModified bool      // diverges from Original
}

// Collection is an ordered set of bboxes. Order is creation order; body
// hit testing scans from the end so the most recently created bbox wins
// between overlapping boxes. Not concurrency-safe: it is owned by the
// editor's single logical thread.
type Collection struct {
	items []Bbox
}

// NewCollection returns an empty collection.
func NewCollection() *Collection { return &Collection{} }

// Len returns the number of bboxes.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Add appends a bbox.
func (c *Collection) Add(b Bbox) { c.items = append(c.items, b) }

// Get returns the bbox with the given key.
func (c *Collection) Get(key uuid.UUID) (Bbox, bool) {
	if c == nil {
		return Bbox{}, false
	}
	for i := range c.items {
		if c.items[i].Key == key {
			return c.items[i], true
		}
	}
	return Bbox{}, false
}

// At returns the bbox at index i.
func (c *Collection) At(i int) Bbox { return c.items[i] }

// Items returns a copy of the bboxes in creation order.
func (c *Collection) Items() []Bbox {
	if c == nil {
		return nil
	}
	out := make([]Bbox, len(c.items))
	copy(out, c.items)
	return out
}

// Rects returns the rectangles in creation order, for hit testing.
func (c *Collection) Rects() []geom.Rect {
	if c == nil {
		return nil
	}
	out := make([]geom.Rect, len(c.items))
	for i := range c.items {
		out[i] = c.items[i].Rect
	}
	return out
}

// SetRect updates a bbox's rectangle locally and marks it modified when
// it diverges from its persisted original.
func (c *Collection) SetRect(key uuid.UUID, r geom.Rect) bool {
	for i := range c.items {
		if c.items[i].Key == key {
			c.items[i].Rect = r
			c.items[i].IsModified = !r.Eq(c.items[i].Original)
			return true
		}
	}
	return false
}

// Confirm records a successful remote create: the bbox gains its
// persisted ID and stops being new.
func (c *Collection) Confirm(key uuid.UUID, id int64) bool {
	for i := range c.items {
		if c.items[i].Key == key {
			c.items[i].ID = id
			c.items[i].IsNew = false
			c.items[i].Original = c.items[i].Rect
			c.items[i].IsModified = false
			return true
		}
	}
	return false
}

// Persisted records a successful remote update: the current rectangle
// becomes the new original.
func (c *Collection) Persisted(key uuid.UUID) bool {
	for i := range c.items {
		if c.items[i].Key == key {
			c.items[i].Original = c.items[i].Rect
			c.items[i].IsModified = false
			return true
		}
	}
	return false
}

// Remove deletes the bbox with the given key.
func (c *Collection) Remove(key uuid.UUID) bool {
	for i := range c.items {
		if c.items[i].Key == key {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// EditorState is the per-session editor state exposed to the host.
type EditorState struct {
	Mode        Mode
	Zoom        float64
	Pan         geom.Vec
	SelectedKey uuid.UUID // uuid.Nil when nothing selected
	HoveredKey  uuid.UUID
	Cursor      Cursor
	SpaceHeld   bool
	ShiftHeld   bool
	ImageW      float64
	ImageH      float64
}

// defaultCursor is the idle cursor for the current mode.
func (s EditorState) defaultCursor() Cursor {
	if s.Mode == ModeDraw {
		return CursorCrosshair
	}
	return CursorGrab
}

// InteractionKind tags the active pointer interaction.
type InteractionKind int

const (
	KindIdle InteractionKind = iota
	KindHovering
	KindDragging
	KindResizing
	KindDrawing
	KindPanning
)

func (k InteractionKind) String() string {
	switch k {
	case KindHovering:
		return "hovering"
	case KindDragging:
		return "dragging"
	case KindResizing:
		return "resizing"
	case KindDrawing:
		return "drawing"
	case KindPanning:
		return "panning"
	default:
		return "idle"
	}
}

// Interaction is the transient pointer-interaction state. Exactly one
// variant (Kind) is active at a time; the remaining fields carry the
// minimal data for that variant and are zero otherwise.
type Interaction struct {
	Kind     InteractionKind
	Start    geom.Vec    // canvas position at pointer-down
	StartPan geom.Vec    // pan offset when panning began
	Target   uuid.UUID   // bbox being dragged/resized/hovered
	Handle   geom.Handle // active or hovered resize handle
	Origin   geom.Rect   // target rectangle at gesture start

	// Drawing only: candidate rectangle between the two drag corners.
	Candidate    geom.Rect
	HasCandidate bool
}

// Button identifies the pointer button of a down event.
type Button int

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
)

// Event is a pointer/keyboard input consumed by the transition function.
type Event interface{ isEvent() }

// PointerDown reports a button press at a canvas position.
type PointerDown struct {
	Pos    geom.Vec
	Button Button
}

// PointerMove reports pointer motion. Safe at animation-frame rates: the
// transition never performs I/O for it.
type PointerMove struct{ Pos geom.Vec }

// PointerUp reports the button release ending a gesture.
type PointerUp struct{ Pos geom.Vec }

// PointerLeave reports the pointer leaving the canvas.
type PointerLeave struct{}

// Wheel reports a scroll step at a canvas position; positive DeltaY
// zooms in.
type Wheel struct {
	Pos    geom.Vec
	DeltaY float64
}

// SetMode switches the tool mode. Any active interaction is cancelled.
type SetMode struct{ Mode Mode }

// SpaceChange and ShiftChange track modifier keys.
type SpaceChange struct{ Held bool }
type ShiftChange struct{ Held bool }

func (PointerDown) isEvent()  {}
func (PointerMove) isEvent()  {}
func (PointerUp) isEvent()    {}
func (PointerLeave) isEvent() {}
func (Wheel) isEvent()        {}
func (SetMode) isEvent()      {}
func (SpaceChange) isEvent()  {}
func (ShiftChange) isEvent()  {}

// Effect is a side effect requested by the transition function. State
// changes (selection, hover, pan, zoom, cursor) are returned in the new
// EditorState; effects cover everything the editor must do beyond it.
type Effect interface{ isEffect() }

// FxLocalRect is a high-frequency local-only geometry update for a bbox;
// no network call is made until the gesture completes.
type FxLocalRect struct {
	Key  uuid.UUID
	Rect geom.Rect
}

// FxLiveRect publishes (or hides) the live rectangle consumed by
// live-preview UI during draw/drag/resize.
type FxLiveRect struct {
	Rect    geom.Rect
	Visible bool
}

// FxCommitCreate requests a persisted create for a completed draw.
type FxCommitCreate struct{ Rect geom.Rect }

// FxCommitUpdate requests a persisted update for a completed
// drag/resize gesture, carrying the whole-gesture delta.
type FxCommitUpdate struct {
	Key  uuid.UUID
	From geom.Rect
	To   geom.Rect
}

// FxContextMenu hands a right-click to the host's context-menu
// collaborator; the machine itself never transitions on it.
type FxContextMenu struct{ Pos geom.Vec }

func (FxLocalRect) isEffect()    {}
func (FxLiveRect) isEffect()     {}
func (FxCommitCreate) isEffect() {}
func (FxCommitUpdate) isEffect() {}
func (FxContextMenu) isEffect()  {}

// BboxStore is the persistence collaborator for bboxes. Implementations
// return explicit errors; the editor decides rollback.
type BboxStore interface {
	CreateBbox(ctx context.Context, imageID string, r geom.Rect) (int64, error)
	UpdateBbox(ctx context.Context, id int64, r geom.Rect) error
	DeleteBbox(ctx context.Context, id int64) error
	// RegenerateFeatures is a fire-and-forget side effect invoked after
	// every committed geometry change.
	RegenerateFeatures(ctx context.Context, id int64)
}

// Notifier surfaces user-visible, auto-dismissing messages.
type Notifier interface {
	Toast(msg string)
}
