package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/michalprusek/maptimize-annotate/geom"
)

// Engine drives the interactive segmentation session for one image at a
// time: it accumulates click points, debounces point inference, cancels
// superseded requests, holds the preview/pending polygon sets, and
// performs the single union-merge save.
//
// The engine is safe for concurrent use; the debounce timer and the
// embedding poller call back into it from their own goroutines.
type Engine struct {
	mu     sync.Mutex
	logger *slog.Logger
	svc    InferenceService
	notify Notifier

	debounce      time.Duration
	textThreshold float64

	imageID   string
	status    EmbeddingStatus
	clicks    []Point
	preview   *Preview
	pending   []PendingPolygon
	committed []MaskPolygon

	loading     bool
	textLoading bool
	inlineErr   string

	// gen is bumped whenever the click list changes; a stale inference
	// result carries an older gen and is dropped.
	gen    uint64
	rev    uint64
	timer  *time.Timer
	cancel context.CancelFunc

	poller *Poller
}

// NewEngine constructs a segmentation engine. debounce bounds how long
// after the last click point inference fires; pollInterval is the
// embedding-status poll period.
func NewEngine(logger *slog.Logger, svc InferenceService, notify Notifier, debounce, pollInterval time.Duration, textThreshold float64) *Engine {
	e := &Engine{
		logger:        logger,
		svc:           svc,
		notify:        notify,
		debounce:      debounce,
		textThreshold: textThreshold,
	}
	e.poller = NewPoller(logger, svc, pollInterval, e.setStatus)
	return e
}

// SetImage switches the active image: cancels any in-flight inference
// and pending debounce, drops clicks, preview and pending polygons,
// loads the committed polygons, and restarts embedding-status polling
// for the new image.
func (e *Engine) SetImage(ctx context.Context, imageID string, committed []MaskPolygon) {
	e.mu.Lock()
	e.imageID = imageID
	e.gen++
	e.stopTimerLocked()
	e.cancelInflightLocked()
	e.clicks = nil
	e.preview = nil
	e.pending = nil
	e.committed = append([]MaskPolygon(nil), committed...)
	e.loading = false
	e.textLoading = false
	e.inlineErr = ""
	e.status = EmbeddingNotStarted
	e.rev++
	e.mu.Unlock()

	e.poller.Stop()
	e.startEmbedding(ctx, imageID)
}

// startEmbedding checks the stored status and, when the embedding has
// not been computed yet, kicks off computation. Polling runs until a
// terminal status arrives.
func (e *Engine) startEmbedding(ctx context.Context, imageID string) {
	st, err := e.svc.EmbeddingStatus(ctx, imageID)
	if err != nil {
		e.logger.Error("embedding status check failed", "error", err, "image", imageID)
		e.setStatus(imageID, EmbeddingError)
		return
	}
	if st == EmbeddingNotStarted {
		if err := e.svc.ComputeEmbedding(ctx, imageID); err != nil {
			e.logger.Error("embedding computation failed to start", "error", err, "image", imageID)
			e.setStatus(imageID, EmbeddingError)
			return
		}
		st = EmbeddingPending
	}
	e.setStatus(imageID, st)
	if !st.Terminal() {
		e.poller.Start(imageID)
	}
}

// RetryEmbedding restarts embedding computation after a terminal error.
// It is the only path out of EmbeddingError; the poller never retries
// on its own.
func (e *Engine) RetryEmbedding(ctx context.Context) {
	e.mu.Lock()
	imageID := e.imageID
	status := e.status
	e.mu.Unlock()
	if imageID == "" || status != EmbeddingError {
		return
	}
	e.poller.Stop()
	if err := e.svc.ComputeEmbedding(ctx, imageID); err != nil {
		e.logger.Error("embedding retry failed to start", "error", err, "image", imageID)
		e.setStatus(imageID, EmbeddingError)
		return
	}
	e.setStatus(imageID, EmbeddingPending)
	e.poller.Start(imageID)
}

// setStatus records a polled status; stale callbacks for a previous
// image are ignored. Terminal statuses stop the poller.
func (e *Engine) setStatus(imageID string, st EmbeddingStatus) {
	e.mu.Lock()
	if imageID != e.imageID {
		e.mu.Unlock()
		return
	}
	changed := e.status != st
	e.status = st
	if changed {
		e.rev++
	}
	e.mu.Unlock()

	if st.Terminal() {
		e.poller.Stop()
	}
	if changed {
		e.logger.Info("embedding status", "image", imageID, "status", st.String())
	}
}

// AddClickPoint appends a prompt click and schedules inference over the
// full click list after the debounce window. Every new click supersedes
// the previous timer, so a burst of clicks produces a single request.
func (e *Engine) AddClickPoint(x, y float64, label Label) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clicks = append(e.clicks, Point{X: x, Y: y, Label: label})
	e.loading = true
	e.inlineErr = ""
	e.gen++
	e.rev++
	gen := e.gen
	e.stopTimerLocked()
	e.timer = time.AfterFunc(e.debounce, func() {
		e.runInference(context.Background(), gen)
	})
}

// UndoLastClick removes the most recent click. With clicks remaining it
// re-runs inference immediately, skipping the debounce; with none left
// it clears the preview without any network call.
func (e *Engine) UndoLastClick(ctx context.Context) {
	e.mu.Lock()
	if len(e.clicks) == 0 {
		e.mu.Unlock()
		return
	}
	e.clicks = e.clicks[:len(e.clicks)-1]
	e.gen++
	e.rev++
	gen := e.gen
	e.stopTimerLocked()
	if len(e.clicks) == 0 {
		e.cancelInflightLocked()
		e.preview = nil
		e.loading = false
		e.mu.Unlock()
		return
	}
	e.loading = true
	e.mu.Unlock()

	e.runInference(ctx, gen)
}

// runInference replays the current click list against the inference
// collaborator. A newer generation, whether from another click or an
// image switch, both cancels the outstanding request and discards its
// result.
func (e *Engine) runInference(ctx context.Context, gen uint64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.cancelInflightLocked()
	callCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	imageID := e.imageID
	points := append([]Point(nil), e.clicks...)
	e.mu.Unlock()

	preview, err := e.svc.PointInference(callCtx, imageID, points)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	e.loading = false
	e.rev++
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		e.inlineErr = "segmentation failed: " + err.Error()
		e.notify.InlineError(e.inlineErr)
		e.logger.Error("point inference failed", "error", err, "image", imageID, "points", len(points))
		return
	}
	e.preview = &preview
}

// AddPreviewToPending promotes the current preview into the pending set
// and resets the click session so the next object starts clean. The
// color index continues from the current pending count.
func (e *Engine) AddPreviewToPending() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.preview == nil {
		return ErrNoPreview
	}
	e.pending = append(e.pending, PendingPolygon{
		Polygon:    e.preview.Polygon,
		Score:      e.preview.Score,
		Origin:     OriginPoint,
		ColorIndex: len(e.pending),
	})
	e.preview = nil
	e.clicks = nil
	e.loading = false
	e.gen++
	e.rev++
	e.stopTimerLocked()
	e.cancelInflightLocked()
	return nil
}

// TextQuery runs open-vocabulary detection for the prompt and appends
// every returned instance directly to the pending set. Text results
// skip the preview stage; color indices continue from the instances
// already pending.
func (e *Engine) TextQuery(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return errors.New("empty text prompt")
	}
	e.mu.Lock()
	imageID := e.imageID
	e.textLoading = true
	e.inlineErr = ""
	e.rev++
	e.mu.Unlock()

	instances, err := e.svc.TextInference(ctx, imageID, prompt, e.textThreshold)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.textLoading = false
	e.rev++
	if err != nil {
		e.inlineErr = "text query failed: " + err.Error()
		e.notify.InlineError(e.inlineErr)
		e.logger.Error("text inference failed", "error", err, "image", imageID, "prompt", prompt)
		return err
	}
	if len(instances) == 0 {
		e.notify.Toast("no objects found for \"" + prompt + "\"")
		return nil
	}
	for _, inst := range instances {
		e.pending = append(e.pending, PendingPolygon{
			Polygon:    inst.Polygon,
			Score:      inst.Score,
			Origin:     OriginText,
			ColorIndex: len(e.pending),
		})
	}
	e.logger.Info("text query matched", "image", imageID, "prompt", prompt, "instances", len(instances))
	return nil
}

// SaveMask commits all pending polygons, plus the current preview if
// one exists, as a single union-merged mask. With nothing to save it
// returns ErrNothingToSave without touching the network. On success the
// accepted polygons move to the committed set and the click session is
// reset; a total failure leaves everything in place for retry.
func (e *Engine) SaveMask(ctx context.Context) error {
	e.mu.Lock()
	polygons := make([]MaskPolygon, 0, len(e.pending)+1)
	for _, p := range e.pending {
		polygons = append(polygons, MaskPolygon{Polygon: p.Polygon, Score: p.Score})
	}
	if e.preview != nil {
		polygons = append(polygons, MaskPolygon{Polygon: e.preview.Polygon, Score: e.preview.Score})
	}
	imageID := e.imageID
	e.mu.Unlock()

	if len(polygons) == 0 {
		return ErrNothingToSave
	}

	scores := make([]float64, len(polygons))
	for i, p := range polygons {
		scores[i] = p.Score
	}
	score := stat.Mean(scores, nil)

	res, err := e.svc.SaveMaskUnion(ctx, imageID, polygons, score, len(polygons))
	if err != nil {
		e.mu.Lock()
		e.inlineErr = "save failed: " + err.Error()
		e.rev++
		e.mu.Unlock()
		e.notify.InlineError("save failed: " + err.Error())
		e.logger.Error("mask save failed", "error", err, "image", imageID, "polygons", len(polygons))
		return err
	}

	e.mu.Lock()
	e.committed = append(e.committed, res.Polygons...)
	e.pending = nil
	e.preview = nil
	e.clicks = nil
	e.loading = false
	e.inlineErr = ""
	e.gen++
	e.rev++
	e.stopTimerLocked()
	e.cancelInflightLocked()
	e.mu.Unlock()

	if res.Failed > 0 {
		e.notify.Toast(fmt.Sprintf("saved %d of %d regions", len(res.Polygons), len(polygons)))
	} else {
		e.notify.Toast(fmt.Sprintf("saved %d region(s)", len(res.Polygons)))
	}
	e.logger.Info("mask saved", "image", imageID, "accepted", len(res.Polygons), "failed", res.Failed, "score", score)
	return nil
}

// DeleteMask removes the persisted mask for the current image and drops
// the committed polygons on success.
func (e *Engine) DeleteMask(ctx context.Context) error {
	e.mu.Lock()
	imageID := e.imageID
	e.mu.Unlock()

	if err := e.svc.DeleteMask(ctx, imageID); err != nil {
		e.notify.Toast("delete mask failed: " + err.Error())
		e.logger.Error("mask delete failed", "error", err, "image", imageID)
		return err
	}
	e.mu.Lock()
	e.committed = nil
	e.rev++
	e.mu.Unlock()
	return nil
}

// ClearSession drops clicks, preview and pending polygons without any
// network call; committed polygons stay.
func (e *Engine) ClearSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clicks = nil
	e.preview = nil
	e.pending = nil
	e.loading = false
	e.inlineErr = ""
	e.gen++
	e.rev++
	e.stopTimerLocked()
	e.cancelInflightLocked()
}

// Snapshot copies the user-visible state for rendering.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := State{
		ImageID:     e.imageID,
		Status:      e.status,
		Clicks:      append([]Point(nil), e.clicks...),
		Pending:     append([]PendingPolygon(nil), e.pending...),
		Committed:   append([]MaskPolygon(nil), e.committed...),
		Loading:     e.loading,
		TextLoading: e.textLoading,
		InlineError: e.inlineErr,
		Rev:         e.rev,
	}
	if e.preview != nil {
		p := *e.preview
		st.Preview = &p
	}
	return st
}

// Close stops the poller and cancels any outstanding work.
func (e *Engine) Close() {
	e.poller.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	e.stopTimerLocked()
	e.cancelInflightLocked()
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) cancelInflightLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// bboxFor derives the axis-aligned bounds of a polygon ring; the save
// payload and overlay both use it.
func bboxFor(poly []geom.Vec) geom.Rect {
	if len(poly) == 0 {
		return geom.Rect{}
	}
	minX, minY := poly[0].X, poly[0].Y
	maxX, maxY := minX, minY
	for _, p := range poly[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return geom.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Bounds exposes polygon bounds for hosts that need hit areas.
func Bounds(poly []geom.Vec) geom.Rect { return bboxFor(poly) }
