package app

import (
	"context"
	"log/slog"

	"github.com/michalprusek/maptimize-annotate/config"
	"github.com/michalprusek/maptimize-annotate/domain/annotate"
	"github.com/michalprusek/maptimize-annotate/domain/segment"
	"github.com/michalprusek/maptimize-annotate/geom"
	"github.com/michalprusek/maptimize-annotate/ui/overlay"
	"github.com/michalprusek/maptimize-annotate/ui/snapshot"
)

// Notifier is the host-facing notification surface shared by the bbox
// editor and the segmentation engine.
type Notifier interface {
	Toast(msg string)
	InlineError(msg string)
}

// Backend is everything the session persists through: rectangle CRUD
// plus the segmentation inference/persistence operations.
type Backend interface {
	annotate.BboxStore
	segment.InferenceService
}

// Session ties the bbox editor and the segmentation engine to one
// image and routes pointer input between them by editor mode. In
// segment mode, plain left clicks become prompt points; everything
// else (pan, zoom, space-drag) still flows through the interaction
// machine.
type Session struct {
	logger *slog.Logger
	cfg    *config.Config

	Editor    *annotate.Editor
	Seg       *segment.Engine
	Projector *overlay.Projector
}

// NewSession wires a session from the configuration and backend.
func NewSession(logger *slog.Logger, cfg *config.Config, backend Backend, notify Notifier) *Session {
	ed := annotate.NewEditor(logger, annotate.ParamsFromConfig(cfg), backend, notify)
	ed.SetUndoDepth(cfg.UndoDepth)
	seg := segment.NewEngine(logger, backend, notify,
		cfg.DebounceDuration(), cfg.PollInterval(), cfg.TextThreshold)
	return &Session{
		logger:    logger,
		cfg:       cfg,
		Editor:    ed,
		Seg:       seg,
		Projector: overlay.NewProjector(cfg.ProjectionCache),
	}
}

// SwitchImage points both engines at a new image: persisted rectangles
// and mask polygons are loaded, the undo stack and the segmentation
// working state are cleared, and embedding polling restarts.
func (s *Session) SwitchImage(ctx context.Context, imageID string, imageW, imageH float64, bboxes []annotate.Bbox, committed []segment.MaskPolygon) {
	s.Editor.SetImage(imageID, imageW, imageH, bboxes)
	s.Seg.SetImage(ctx, imageID, committed)
	s.logger.Info("image switched", "image", imageID, "bboxes", len(bboxes), "mask_polygons", len(committed))
}

// Pointer feeds one pointer event into the session. Segment-mode left
// clicks turn into prompt points; the machine handles the rest.
func (s *Session) Pointer(ctx context.Context, ev annotate.Event) {
	if down, ok := ev.(annotate.PointerDown); ok && s.routeAsPrompt(down) {
		st := s.Editor.State()
		p := geom.ToImage(down.Pos, st.Zoom, st.Pan)
		label := segment.LabelForeground
		if st.ShiftHeld {
			label = segment.LabelBackground
		}
		s.Seg.AddClickPoint(p.X, p.Y, label)
		return
	}
	s.Editor.Handle(ctx, ev)
}

// routeAsPrompt reports whether a pointer-down should become a prompt
// click instead of entering the interaction machine.
func (s *Session) routeAsPrompt(down annotate.PointerDown) bool {
	st := s.Editor.State()
	if st.Mode != annotate.ModeSegment {
		return false
	}
	if down.Button != annotate.ButtonLeft || st.SpaceHeld {
		return false
	}
	return s.Seg.Snapshot().Status == segment.EmbeddingReady
}

// Undo routes to the click history in segment mode and to the
// compensating-action stack otherwise.
func (s *Session) Undo(ctx context.Context) {
	if s.Editor.State().Mode == annotate.ModeSegment && len(s.Seg.Snapshot().Clicks) > 0 {
		s.Seg.UndoLastClick(ctx)
		return
	}
	s.Editor.Undo(ctx)
}

// SetMode changes the editor mode; leaving segment mode discards the
// un-promoted click session.
func (s *Session) SetMode(ctx context.Context, mode annotate.Mode) {
	prev := s.Editor.State().Mode
	s.Editor.Handle(ctx, annotate.SetMode{Mode: mode})
	if prev == annotate.ModeSegment && mode != annotate.ModeSegment {
		s.Seg.ClearSession()
	}
}

// Frame projects the current combined state for rendering.
func (s *Session) Frame() *overlay.Frame {
	live, visible := s.Editor.LiveRect()
	return s.Projector.Project(overlay.Input{
		State:       s.Editor.State(),
		Boxes:       s.Editor.Boxes().Items(),
		Live:        live,
		LiveVisible: visible,
		Seg:         s.Seg.Snapshot(),
	})
}

// Export renders the current frame to a PNG at path.
func (s *Session) Export(path string, width, height int) error {
	return snapshot.Save(path, s.Frame(), width, height)
}

// Close releases the segmentation engine's timers and poller.
func (s *Session) Close() {
	s.Seg.Close()
}
