package annotate

import (
	"testing"

	"github.com/google/uuid"

	"github.com/michalprusek/maptimize-annotate/geom"
)

func testParams() Params {
	return Params{MinZoom: 0.1, MaxZoom: 10, ZoomStep: 1.25, MinBoxSize: 10, HandleTolerance: 8}
}

func testState() EditorState {
	return EditorState{Mode: ModeView, Zoom: 1, Cursor: CursorGrab, ImageW: 1000, ImageH: 800}
}

func collectionWith(rects ...geom.Rect) (*Collection, []uuid.UUID) {
	c := NewCollection()
	keys := make([]uuid.UUID, len(rects))
	for i, r := range rects {
		keys[i] = uuid.New()
		c.Add(Bbox{Key: keys[i], ID: int64(i + 1), Rect: r, Original: r})
	}
	return c, keys
}

func findEffect[T Effect](fx []Effect) (T, bool) {
	for _, f := range fx {
		if t, ok := f.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

func TestPointerDown_SpaceHeldPans(t *testing.T) {
	st := testState()
	st.SpaceHeld = true
	boxes, _ := collectionWith(geom.Rect{X: 0, Y: 0, Width: 100, Height: 100})
	st2, in, _ := Transition(st, Interaction{}, boxes, testParams(), PointerDown{Pos: geom.Vec{X: 50, Y: 50}})
	if in.Kind != KindPanning {
		t.Fatalf("expected panning with space held even over a bbox, got %v", in.Kind)
	}
	if st2.Cursor != CursorGrabbing {
		t.Fatalf("expected grabbing cursor, got %v", st2.Cursor)
	}
}

func TestPointerDown_MiddleButtonPans(t *testing.T) {
	boxes, _ := collectionWith()
	_, in, _ := Transition(testState(), Interaction{}, boxes, testParams(), PointerDown{Pos: geom.Vec{}, Button: ButtonMiddle})
	if in.Kind != KindPanning {
		t.Fatalf("expected panning on middle button, got %v", in.Kind)
	}
}

func TestPointerDown_RightButtonEmitsContextMenuOnly(t *testing.T) {
	boxes, _ := collectionWith(geom.Rect{X: 0, Y: 0, Width: 100, Height: 100})
	st, in, fx := Transition(testState(), Interaction{}, boxes, testParams(), PointerDown{Pos: geom.Vec{X: 10, Y: 10}, Button: ButtonRight})
	if in.Kind != KindIdle {
		t.Fatalf("right button must not transition, got %v", in.Kind)
	}
	if _, ok := findEffect[FxContextMenu](fx); !ok {
		t.Fatalf("expected context menu effect, got %v", fx)
	}
	if st.SelectedKey != uuid.Nil {
		t.Fatalf("right button must not select")
	}
}

func TestPointerDown_HandleOnSelectedBeatsEverything(t *testing.T) {
	boxes, keys := collectionWith(geom.Rect{X: 100, Y: 100, Width: 50, Height: 50})
	st := testState()
	st.SelectedKey = keys[0]
	st.Mode = ModeDraw // even in draw mode the handle wins
	st2, in, _ := Transition(st, Interaction{}, boxes, testParams(), PointerDown{Pos: geom.Vec{X: 100, Y: 100}})
	if in.Kind != KindResizing || in.Handle != geom.HandleTopLeft {
		t.Fatalf("expected resizing on top-left handle, got kind=%v handle=%v", in.Kind, in.Handle)
	}
	if in.Target != keys[0] || !in.Origin.Eq(boxes.At(0).Rect) {
		t.Fatalf("interaction must capture target and origin rect")
	}
	_ = st2
}

func TestPointerDown_DrawModeAlwaysDraws(t *testing.T) {
	boxes, keys := collectionWith(geom.Rect{X: 0, Y: 0, Width: 200, Height: 200})
	st := testState()
	st.Mode = ModeDraw
	st.SelectedKey = keys[0]
	// Down on a bbox body far from any handle of the selected box.
	st2, in, _ := Transition(st, Interaction{}, boxes, testParams(), PointerDown{Pos: geom.Vec{X: 60, Y: 140}})
	if in.Kind != KindDrawing {
		t.Fatalf("expected drawing in draw mode, got %v", in.Kind)
	}
	if st2.SelectedKey != uuid.Nil {
		t.Fatalf("selection must be cleared before drawing")
	}
}

func TestPointerDown_ViewModeBodyDragsAndSelects(t *testing.T) {
	boxes, keys := collectionWith(
		geom.Rect{X: 10, Y: 10, Width: 100, Height: 100},
		geom.Rect{X: 50, Y: 50, Width: 100, Height: 100},
	)
	st2, in, _ := Transition(testState(), Interaction{}, boxes, testParams(), PointerDown{Pos: geom.Vec{X: 60, Y: 60}})
	if in.Kind != KindDragging {
		t.Fatalf("expected dragging, got %v", in.Kind)
	}
	if st2.SelectedKey != keys[1] || in.Target != keys[1] {
		t.Fatalf("most recently created bbox must win the overlap tie-break")
	}
}

func TestPointerDown_EmptySpacePans(t *testing.T) {
	boxes, _ := collectionWith(geom.Rect{X: 10, Y: 10, Width: 20, Height: 20})
	st := testState()
	st.Pan = geom.Vec{X: 5, Y: 5}
	st2, in, _ := Transition(st, Interaction{}, boxes, testParams(), PointerDown{Pos: geom.Vec{X: 700, Y: 700}})
	if in.Kind != KindPanning || in.StartPan != st.Pan {
		t.Fatalf("expected panning from empty space, got %v", in.Kind)
	}
	if st2.SelectedKey != uuid.Nil {
		t.Fatalf("empty-space down must clear selection")
	}
}

func TestPointerMove_PanningUpdatesOffset(t *testing.T) {
	boxes, _ := collectionWith()
	st := testState()
	in := Interaction{Kind: KindPanning, Start: geom.Vec{X: 100, Y: 100}, StartPan: geom.Vec{X: 10, Y: 10}}
	st2, _, _ := Transition(st, in, boxes, testParams(), PointerMove{Pos: geom.Vec{X: 130, Y: 80}})
	if st2.Pan.X != 40 || st2.Pan.Y != -10 {
		t.Fatalf("expected pan (40,-10), got %v", st2.Pan)
	}
}

func TestPointerMove_DraggingEmitsLocalOnlyEffects(t *testing.T) {
	boxes, keys := collectionWith(geom.Rect{X: 100, Y: 100, Width: 50, Height: 50})
	st := testState()
	st.Zoom = 2
	in := Interaction{Kind: KindDragging, Start: geom.Vec{X: 0, Y: 0}, Target: keys[0], Origin: boxes.At(0).Rect}
	_, _, fx := Transition(st, in, boxes, testParams(), PointerMove{Pos: geom.Vec{X: 20, Y: 40}})
	local, ok := findEffect[FxLocalRect](fx)
	if !ok {
		t.Fatalf("expected local rect effect")
	}
	// Screen delta (20,40) at zoom 2 is image delta (10,20).
	if local.Rect.X != 110 || local.Rect.Y != 120 {
		t.Fatalf("expected rect at (110,120), got %+v", local.Rect)
	}
	if live, ok := findEffect[FxLiveRect](fx); !ok || !live.Visible {
		t.Fatalf("expected visible live rect")
	}
	if _, ok := findEffect[FxCommitUpdate](fx); ok {
		t.Fatalf("move events must never commit")
	}
}

func TestPointerUp_DrawingBelowMinSizeDoesNotCreate(t *testing.T) {
	boxes, _ := collectionWith()
	st := testState()
	in := Interaction{Kind: KindDrawing, Start: geom.Vec{X: 100, Y: 100}}
	// Drag 5px: below the 10px minimum.
	_, in, _ = Transition(st, in, boxes, testParams(), PointerMove{Pos: geom.Vec{X: 105, Y: 105}})
	_, in2, fx := Transition(st, in, boxes, testParams(), PointerUp{Pos: geom.Vec{X: 105, Y: 105}})
	if _, ok := findEffect[FxCommitCreate](fx); ok {
		t.Fatalf("sub-minimum draw must not produce a create")
	}
	if in2.Kind != KindIdle {
		t.Fatalf("interaction must reset to idle")
	}
}

func TestPointerUp_DrawingCommitsCandidate(t *testing.T) {
	boxes, _ := collectionWith()
	st := testState()
	in := Interaction{Kind: KindDrawing, Start: geom.Vec{X: 100, Y: 100}}
	_, in, _ = Transition(st, in, boxes, testParams(), PointerMove{Pos: geom.Vec{X: 160, Y: 180}})
	_, _, fx := Transition(st, in, boxes, testParams(), PointerUp{Pos: geom.Vec{X: 160, Y: 180}})
	create, ok := findEffect[FxCommitCreate](fx)
	if !ok {
		t.Fatalf("expected create commit")
	}
	if create.Rect.X != 100 || create.Rect.Y != 100 || create.Rect.Width != 60 || create.Rect.Height != 80 {
		t.Fatalf("unexpected candidate rect %+v", create.Rect)
	}
}

func TestPointerUp_UnchangedDragDoesNotCommit(t *testing.T) {
	boxes, keys := collectionWith(geom.Rect{X: 100, Y: 100, Width: 50, Height: 50})
	st := testState()
	in := Interaction{Kind: KindDragging, Start: geom.Vec{X: 0, Y: 0}, Target: keys[0], Origin: boxes.At(0).Rect}
	_, _, fx := Transition(st, in, boxes, testParams(), PointerUp{Pos: geom.Vec{X: 0, Y: 0}})
	if _, ok := findEffect[FxCommitUpdate](fx); ok {
		t.Fatalf("no-op drag must not commit")
	}
}

func TestPointerLeave_DiscardsInteractionKeepsRect(t *testing.T) {
	boxes, keys := collectionWith(geom.Rect{X: 100, Y: 100, Width: 50, Height: 50})
	moved := geom.Rect{X: 150, Y: 150, Width: 50, Height: 50}
	boxes.SetRect(keys[0], moved)
	st := testState()
	in := Interaction{Kind: KindDragging, Start: geom.Vec{}, Target: keys[0], Origin: geom.Rect{X: 100, Y: 100, Width: 50, Height: 50}}
	_, in2, fx := Transition(st, in, boxes, testParams(), PointerLeave{})
	if in2.Kind != KindIdle {
		t.Fatalf("leave must reset interaction")
	}
	if _, ok := findEffect[FxCommitUpdate](fx); ok {
		t.Fatalf("leave must not commit a drag")
	}
	if b, _ := boxes.Get(keys[0]); !b.Rect.Eq(moved) {
		t.Fatalf("bbox must keep its last local rectangle, got %+v", b.Rect)
	}
}

func TestHover_HandleBeatsBodyBeatsNone(t *testing.T) {
	boxes, keys := collectionWith(geom.Rect{X: 100, Y: 100, Width: 50, Height: 50})
	st := testState()
	st.SelectedKey = keys[0]

	// Over the top-left handle of the selected bbox.
	st2, in, _ := Transition(st, Interaction{}, boxes, testParams(), PointerMove{Pos: geom.Vec{X: 100, Y: 100}})
	if in.Kind != KindHovering || in.Handle != geom.HandleTopLeft || st2.Cursor != CursorResize {
		t.Fatalf("expected handle hover, got kind=%v handle=%v cursor=%v", in.Kind, in.Handle, st2.Cursor)
	}

	// Over the body away from handles.
	st2, in, _ = Transition(st, Interaction{}, boxes, testParams(), PointerMove{Pos: geom.Vec{X: 120, Y: 125}})
	if in.Kind != KindHovering || in.Handle != geom.HandleNone || st2.Cursor != CursorMove || st2.HoveredKey != keys[0] {
		t.Fatalf("expected body hover, got kind=%v cursor=%v", in.Kind, st2.Cursor)
	}

	// Over empty space: mode default cursor.
	st2, in, _ = Transition(st, Interaction{}, boxes, testParams(), PointerMove{Pos: geom.Vec{X: 700, Y: 700}})
	if in.Kind != KindIdle || st2.HoveredKey != uuid.Nil || st2.Cursor != CursorGrab {
		t.Fatalf("expected no hover with grab cursor, got kind=%v cursor=%v", in.Kind, st2.Cursor)
	}

	// Draw mode defaults to crosshair.
	st.Mode = ModeDraw
	st.SelectedKey = uuid.Nil
	st2, _, _ = Transition(st, Interaction{}, boxes, testParams(), PointerMove{Pos: geom.Vec{X: 700, Y: 700}})
	if st2.Cursor != CursorCrosshair {
		t.Fatalf("expected crosshair in draw mode, got %v", st2.Cursor)
	}
}

func TestWheel_ZoomsAroundCursorAndClamps(t *testing.T) {
	boxes, _ := collectionWith()
	st := testState()
	st.Zoom = 1
	cursor := geom.Vec{X: 200, Y: 150}
	imgPt := geom.ToImage(cursor, st.Zoom, st.Pan)

	st2, _, _ := Transition(st, Interaction{}, boxes, testParams(), Wheel{Pos: cursor, DeltaY: 1})
	if st2.Zoom != 1.25 {
		t.Fatalf("expected zoom 1.25, got %v", st2.Zoom)
	}
	back := geom.ToCanvas(imgPt, st2.Zoom, st2.Pan)
	if dx, dy := back.X-cursor.X, back.Y-cursor.Y; dx > 1e-9 || dx < -1e-9 || dy > 1e-9 || dy < -1e-9 {
		t.Fatalf("image point under cursor drifted to %v", back)
	}

	// Zoom out far past the bound clamps at MinZoom.
	st.Zoom = 0.1
	st2, _, _ = Transition(st, Interaction{}, boxes, testParams(), Wheel{Pos: cursor, DeltaY: -1})
	if st2.Zoom != 0.1 {
		t.Fatalf("expected clamped zoom 0.1, got %v", st2.Zoom)
	}
}

func TestSetMode_CancelsInteraction(t *testing.T) {
	boxes, keys := collectionWith(geom.Rect{X: 0, Y: 0, Width: 50, Height: 50})
	st := testState()
	in := Interaction{Kind: KindDragging, Target: keys[0], Origin: boxes.At(0).Rect}
	st2, in2, _ := Transition(st, in, boxes, testParams(), SetMode{Mode: ModeDraw})
	if in2.Kind != KindIdle || st2.Mode != ModeDraw || st2.Cursor != CursorCrosshair {
		t.Fatalf("mode switch must cancel interaction and set cursor")
	}
}
