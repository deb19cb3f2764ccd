package annotate

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/michalprusek/maptimize-annotate/geom"
)

// Editor owns the editor state, the bbox collection and the interaction
// state machine, and executes the machine's effects: local geometry
// updates immediately, remote commits with optimistic local state and an
// explicit rollback on failure.
//
// Editor is not concurrency-safe; it belongs to the host's single event
// loop. Pointer moves never reach the network.
type Editor struct {
	logger  *slog.Logger
	params  Params
	store   BboxStore
	notify  Notifier
	history *History

	imageID     string
	state       EditorState
	interaction Interaction
	boxes       *Collection

	live        geom.Rect
	liveVisible bool

	// OnContextMenu, when set, receives right-click positions.
	OnContextMenu func(pos geom.Vec)
}

// NewEditor constructs an editor for the given image dimensions.
func NewEditor(logger *slog.Logger, params Params, store BboxStore, notify Notifier) *Editor {
	boxes := NewCollection()
	e := &Editor{
		logger: logger,
		params: params,
		store:  store,
		notify: notify,
		boxes:  boxes,
		state: EditorState{
			Mode:   ModeView,
			Zoom:   1.0,
			Cursor: CursorGrab,
		},
	}
	e.history = NewHistory(logger, store, boxes, 0)
	return e
}

// SetUndoDepth rebounds the undo stack; call before the first gesture.
func (e *Editor) SetUndoDepth(depth int) {
	e.history = NewHistory(e.logger, e.store, e.boxes, depth)
	e.history.SetImage(e.imageID)
}

// SetImage switches the edited image: loads the given persisted bboxes,
// resets viewport and interaction, and clears the undo stack.
func (e *Editor) SetImage(imageID string, imageW, imageH float64, persisted []Bbox) {
	e.imageID = imageID
	e.state = EditorState{
		Mode:   e.state.Mode,
		Zoom:   1.0,
		Cursor: e.state.defaultCursor(),
		ImageW: imageW,
		ImageH: imageH,
	}
	e.interaction = Interaction{}
	e.liveVisible = false
	e.boxes = NewCollection()
	for _, b := range persisted {
		if b.Key == uuid.Nil {
			b.Key = uuid.New()
		}
		b.Original = b.Rect
		e.boxes.Add(b)
	}
	e.history = NewHistory(e.logger, e.store, e.boxes, e.history.max)
	e.history.SetImage(imageID)
}

// State returns the current editor state snapshot.
func (e *Editor) State() EditorState { return e.state }

// Interaction returns the transient interaction state.
func (e *Editor) Interaction() Interaction { return e.interaction }

// Boxes returns the bbox collection.
func (e *Editor) Boxes() *Collection { return e.boxes }

// LiveRect returns the live gesture rectangle and whether it is visible.
func (e *Editor) LiveRect() (geom.Rect, bool) { return e.live, e.liveVisible }

// History exposes undo availability and replay.
func (e *Editor) History() *History { return e.history }

// Handle feeds one event through the state machine and executes the
// resulting effects. ctx covers any remote commit triggered by the
// event (only pointer-up events commit).
func (e *Editor) Handle(ctx context.Context, ev Event) {
	st, in, fx := Transition(e.state, e.interaction, e.boxes, e.params, ev)
	e.state = st
	e.interaction = in
	for _, f := range fx {
		e.apply(ctx, f)
	}
}

func (e *Editor) apply(ctx context.Context, f Effect) {
	switch fx := f.(type) {
	case FxLocalRect:
		e.boxes.SetRect(fx.Key, fx.Rect)
	case FxLiveRect:
		e.live = fx.Rect
		e.liveVisible = fx.Visible
	case FxCommitCreate:
		e.commitCreate(ctx, fx.Rect)
	case FxCommitUpdate:
		e.commitUpdate(ctx, fx)
	case FxContextMenu:
		if e.OnContextMenu != nil {
			e.OnContextMenu(fx.Pos)
		}
	}
}

// commitCreate adds the bbox locally first, then confirms or rolls back
// against the remote create.
func (e *Editor) commitCreate(ctx context.Context, r geom.Rect) {
	b := Bbox{Key: uuid.New(), Rect: r, Original: r, IsNew: true}
	e.boxes.Add(b)
	e.state.SelectedKey = b.Key

	id, err := e.store.CreateBbox(ctx, e.imageID, r)
	if err != nil {
		e.boxes.Remove(b.Key)
		e.state.SelectedKey = uuid.Nil
		e.fail("create region failed", err)
		return
	}
	e.boxes.Confirm(b.Key, id)
	e.history.Push(Action{Type: ActionCreate, Key: b.Key, ID: id, Next: r})
	e.store.RegenerateFeatures(ctx, id)
	if e.logger != nil {
		e.logger.Debug("bbox created", "id", id, "image", e.imageID)
	}
}

// commitUpdate persists the whole-gesture geometry change. The local
// rectangle is already at fx.To; failure rolls it back to fx.From.
func (e *Editor) commitUpdate(ctx context.Context, fx FxCommitUpdate) {
	b, ok := e.boxes.Get(fx.Key)
	if !ok {
		return
	}
	if b.ID == 0 {
		// Never persisted; nothing to reconcile remotely.
		return
	}
	if err := e.store.UpdateBbox(ctx, b.ID, fx.To); err != nil {
		e.boxes.SetRect(fx.Key, fx.From)
		e.fail("move/resize failed", err)
		return
	}
	e.boxes.Persisted(fx.Key)
	e.history.Push(Action{Type: ActionUpdate, Key: fx.Key, ID: b.ID, Prev: fx.From, Next: fx.To})
	e.store.RegenerateFeatures(ctx, b.ID)
}

// DeleteSelected removes the selected bbox locally, then remotely; the
// local removal is restored if the remote delete fails.
func (e *Editor) DeleteSelected(ctx context.Context) {
	key := e.state.SelectedKey
	if key == uuid.Nil {
		return
	}
	b, ok := e.boxes.Get(key)
	if !ok {
		return
	}
	e.boxes.Remove(key)
	e.state.SelectedKey = uuid.Nil

	if b.ID == 0 {
		return
	}
	if err := e.store.DeleteBbox(ctx, b.ID); err != nil {
		e.boxes.Add(b)
		e.state.SelectedKey = b.Key
		e.fail("delete region failed", err)
		return
	}
	e.history.Push(Action{Type: ActionDelete, Key: b.Key, ID: b.ID, Prev: b.Rect})
}

// ResetSelected reverts a locally modified bbox to its last persisted
// rectangle. Local only: the remote store already holds the original.
func (e *Editor) ResetSelected() {
	key := e.state.SelectedKey
	if key == uuid.Nil {
		return
	}
	if b, ok := e.boxes.Get(key); ok && b.IsModified {
		e.boxes.SetRect(key, b.Original)
	}
}

// Undo replays the most recent compensating action.
func (e *Editor) Undo(ctx context.Context) {
	if err := e.history.Undo(ctx); err != nil {
		e.fail("undo failed", err)
	}
}

// CanUndo reports undo availability for the host UI.
func (e *Editor) CanUndo() bool { return e.history.CanUndo() }

func (e *Editor) fail(msg string, err error) {
	if e.logger != nil {
		e.logger.Error(msg, "error", err, "image", e.imageID)
	}
	if e.notify != nil {
		e.notify.Toast(msg + ": " + err.Error())
	}
}
