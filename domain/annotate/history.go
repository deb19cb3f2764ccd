package annotate

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/michalprusek/maptimize-annotate/geom"
)

// ActionType tags an undoable operation.
type ActionType int

const (
	ActionCreate ActionType = iota
	ActionUpdate
	ActionDelete
)

func (t ActionType) String() string {
	switch t {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Action is one completed user operation (a whole gesture, not a frame).
// Prev/Next carry the rectangles needed to compensate it.
type Action struct {
	Type ActionType
	Key  uuid.UUID
	ID   int64
	Prev geom.Rect
	Next geom.Rect
}

// History is a bounded stack of compensating actions replayed against the
// remote store. Undo issues the inverse remote call and mirrors the
// result into the local collection so the UI need not refetch. The stack
// is per image and cleared when the edited image changes.
type History struct {
	logger   *slog.Logger
	store    BboxStore
	boxes    *Collection
	imageID  string
	max      int
	stack    []Action
	inFlight bool
}

// NewHistory builds an undo history bounded to max actions.
func NewHistory(logger *slog.Logger, store BboxStore, boxes *Collection, max int) *History {
	if max <= 0 {
		max = 50
	}
	return &History{logger: logger, store: store, boxes: boxes, max: max}
}

// SetImage switches the edited image. The stack has no meaning across
// images and is dropped.
func (h *History) SetImage(imageID string) {
	h.imageID = imageID
	h.stack = h.stack[:0]
}

// Push records a completed operation, dropping the oldest entry past the
// bound.
func (h *History) Push(a Action) {
	if h == nil {
		return
	}
	h.stack = append(h.stack, a)
	if len(h.stack) > h.max {
		h.stack = h.stack[len(h.stack)-h.max:]
	}
}

// CanUndo reports whether an undo is available.
func (h *History) CanUndo() bool { return h != nil && len(h.stack) > 0 && !h.inFlight }

// Undo pops the most recent action and issues its compensating remote
// call. The action leaves the stack only when the call succeeds; on
// failure the stack is intact so the user may retry. A no-op when the
// stack is empty or another undo is in flight.
func (h *History) Undo(ctx context.Context) error {
	if h == nil || len(h.stack) == 0 || h.inFlight {
		return nil
	}
	h.inFlight = true
	defer func() { h.inFlight = false }()

	a := h.stack[len(h.stack)-1]
	if err := h.compensate(ctx, &a); err != nil {
		if h.logger != nil {
			h.logger.Error("undo failed", "action", a.Type.String(), "id", a.ID, "error", err)
		}
		return err
	}
	h.stack = h.stack[:len(h.stack)-1]
	if h.logger != nil {
		h.logger.Debug("undo applied", "action", a.Type.String(), "id", a.ID)
	}
	return nil
}

func (h *History) compensate(ctx context.Context, a *Action) error {
	switch a.Type {
	case ActionCreate:
		if err := h.store.DeleteBbox(ctx, a.ID); err != nil {
			return err
		}
		h.boxes.Remove(a.Key)
	case ActionUpdate:
		if err := h.store.UpdateBbox(ctx, a.ID, a.Prev); err != nil {
			return err
		}
		h.boxes.SetRect(a.Key, a.Prev)
		h.boxes.Persisted(a.Key)
	case ActionDelete:
		id, err := h.store.CreateBbox(ctx, h.imageID, a.Prev)
		if err != nil {
			return err
		}
		h.boxes.Add(Bbox{Key: a.Key, ID: id, Rect: a.Prev, Original: a.Prev})
	}
	return nil
}
