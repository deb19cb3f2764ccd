package annotate

import (
	"github.com/google/uuid"

	"github.com/michalprusek/maptimize-annotate/config"
	"github.com/michalprusek/maptimize-annotate/geom"
)

// Params are the interaction tuning values the transition function needs.
type Params struct {
	MinZoom         float64
	MaxZoom         float64
	ZoomStep        float64
	MinBoxSize      float64
	HandleTolerance float64
}

// ParamsFromConfig extracts interaction parameters from a validated config.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		MinZoom:         cfg.MinZoom,
		MaxZoom:         cfg.MaxZoom,
		ZoomStep:        cfg.ZoomStep,
		MinBoxSize:      cfg.MinBoxSize,
		HandleTolerance: cfg.HandleTolerance,
	}
}

// Transition is the pure state machine over pointer and keyboard events.
// It never performs I/O: remote-affecting outcomes are returned as
// effects for the editor to execute. boxes is read-only here.
func Transition(st EditorState, in Interaction, boxes *Collection, p Params, ev Event) (EditorState, Interaction, []Effect) {
	switch e := ev.(type) {
	case PointerDown:
		return pointerDown(st, in, boxes, p, e)
	case PointerMove:
		return pointerMove(st, in, boxes, p, e)
	case PointerUp:
		return pointerUp(st, in, boxes, p, e)
	case PointerLeave:
		return pointerLeave(st, in)
	case Wheel:
		return wheel(st, in, p, e)
	case SetMode:
		st.Mode = e.Mode
		st.Cursor = st.defaultCursor()
		return st, Interaction{}, []Effect{FxLiveRect{Visible: false}}
	case SpaceChange:
		st.SpaceHeld = e.Held
		return st, in, nil
	case ShiftChange:
		st.ShiftHeld = e.Held
		return st, in, nil
	default:
		return st, in, nil
	}
}

func pointerDown(st EditorState, in Interaction, boxes *Collection, p Params, ev PointerDown) (EditorState, Interaction, []Effect) {
	if ev.Button == ButtonRight {
		// Handled by the host's context-menu collaborator.
		return st, in, []Effect{FxContextMenu{Pos: ev.Pos}}
	}
	if st.SpaceHeld || ev.Button == ButtonMiddle {
		st.Cursor = CursorGrabbing
		return st, Interaction{Kind: KindPanning, Start: ev.Pos, StartPan: st.Pan}, nil
	}
	// A resize handle of the currently selected bbox takes priority.
	if st.SelectedKey != uuid.Nil {
		if b, ok := boxes.Get(st.SelectedKey); ok {
			if h := geom.HitTestHandle(ev.Pos, b.Rect, st.Zoom, st.Pan, p.HandleTolerance); h != geom.HandleNone {
				st.Cursor = CursorResize
				return st, Interaction{Kind: KindResizing, Start: ev.Pos, Target: b.Key, Handle: h, Origin: b.Rect}, nil
			}
		}
	}
	if st.Mode == ModeDraw {
		// Drawing always starts regardless of what is under the cursor.
		st.SelectedKey = uuid.Nil
		st.Cursor = CursorCrosshair
		return st, Interaction{Kind: KindDrawing, Start: ev.Pos}, nil
	}
	if i := geom.HitTestBody(ev.Pos, boxes.Rects(), st.Zoom, st.Pan); i >= 0 {
		b := boxes.At(i)
		st.SelectedKey = b.Key
		st.Cursor = CursorMove
		return st, Interaction{Kind: KindDragging, Start: ev.Pos, Target: b.Key, Origin: b.Rect}, nil
	}
	// Empty space in view mode pans.
	st.SelectedKey = uuid.Nil
	st.Cursor = CursorGrabbing
	return st, Interaction{Kind: KindPanning, Start: ev.Pos, StartPan: st.Pan}, nil
}

func pointerMove(st EditorState, in Interaction, boxes *Collection, p Params, ev PointerMove) (EditorState, Interaction, []Effect) {
	switch in.Kind {
	case KindPanning:
		st.Pan = in.StartPan.Add(ev.Pos.Sub(in.Start))
		return st, in, nil
	case KindDragging:
		r := geom.Move(in.Origin, ev.Pos.Sub(in.Start), st.Zoom, st.ImageW, st.ImageH)
		return st, in, []Effect{FxLocalRect{Key: in.Target, Rect: r}, FxLiveRect{Rect: r, Visible: true}}
	case KindResizing:
		r := geom.Resize(in.Origin, in.Handle, ev.Pos.Sub(in.Start), st.Zoom, st.ImageW, st.ImageH, p.MinBoxSize)
		return st, in, []Effect{FxLocalRect{Key: in.Target, Rect: r}, FxLiveRect{Rect: r, Visible: true}}
	case KindDrawing:
		a := geom.ToImage(in.Start, st.Zoom, st.Pan)
		b := geom.ToImage(ev.Pos, st.Zoom, st.Pan)
		in.Candidate = geom.FromCorners(a, b, st.ImageW, st.ImageH)
		in.HasCandidate = true
		return st, in, []Effect{FxLiveRect{Rect: in.Candidate, Visible: true}}
	default:
		return hover(st, boxes, p, ev.Pos)
	}
}

// hover recomputes hover state while no gesture is active. Handle hover
// on the selected bbox beats body hover beats no hover.
func hover(st EditorState, boxes *Collection, p Params, pos geom.Vec) (EditorState, Interaction, []Effect) {
	if st.SelectedKey != uuid.Nil {
		if b, ok := boxes.Get(st.SelectedKey); ok {
			if h := geom.HitTestHandle(pos, b.Rect, st.Zoom, st.Pan, p.HandleTolerance); h != geom.HandleNone {
				st.HoveredKey = b.Key
				st.Cursor = CursorResize
				return st, Interaction{Kind: KindHovering, Target: b.Key, Handle: h}, nil
			}
		}
	}
	if i := geom.HitTestBody(pos, boxes.Rects(), st.Zoom, st.Pan); i >= 0 {
		b := boxes.At(i)
		st.HoveredKey = b.Key
		st.Cursor = CursorMove
		return st, Interaction{Kind: KindHovering, Target: b.Key}, nil
	}
	st.HoveredKey = uuid.Nil
	st.Cursor = st.defaultCursor()
	return st, Interaction{}, nil
}

func pointerUp(st EditorState, in Interaction, boxes *Collection, p Params, ev PointerUp) (EditorState, Interaction, []Effect) {
	var fx []Effect
	switch in.Kind {
	case KindDrawing:
		if in.HasCandidate && in.Candidate.Width >= p.MinBoxSize && in.Candidate.Height >= p.MinBoxSize {
			fx = append(fx, FxCommitCreate{Rect: in.Candidate})
		}
		fx = append(fx, FxLiveRect{Visible: false})
	case KindDragging, KindResizing:
		if b, ok := boxes.Get(in.Target); ok && !b.Rect.Eq(in.Origin) {
			// One commit and one undo action for the whole gesture.
			fx = append(fx, FxCommitUpdate{Key: in.Target, From: in.Origin, To: b.Rect})
		}
		fx = append(fx, FxLiveRect{Visible: false})
	}
	st.Cursor = st.defaultCursor()
	return st, Interaction{}, fx
}

// pointerLeave discards the in-progress interaction. A draw is dropped
// entirely; a drag/resize keeps the bbox at its last local rectangle
// without committing.
func pointerLeave(st EditorState, in Interaction) (EditorState, Interaction, []Effect) {
	st.HoveredKey = uuid.Nil
	st.Cursor = st.defaultCursor()
	if in.Kind == KindIdle || in.Kind == KindHovering {
		return st, Interaction{}, nil
	}
	return st, Interaction{}, []Effect{FxLiveRect{Visible: false}}
}

func wheel(st EditorState, in Interaction, p Params, ev Wheel) (EditorState, Interaction, []Effect) {
	factor := p.ZoomStep
	if ev.DeltaY < 0 {
		factor = 1 / p.ZoomStep
	}
	newZoom := geom.ClampZoom(st.Zoom*factor, p.MinZoom, p.MaxZoom)
	if newZoom != st.Zoom {
		st.Pan = geom.ZoomAround(ev.Pos, st.Zoom, newZoom, st.Pan)
		st.Zoom = newZoom
	}
	return st, in, nil
}
