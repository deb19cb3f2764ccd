// Package segment implements the point/text-prompted segmentation
// workflow: click-point accumulation, debounced cancellable inference,
// the preview/pending polygon lifecycle, embedding-status polling, and
// the single union-merge commit.
package segment

import (
	"context"
	"errors"

	"github.com/michalprusek/maptimize-annotate/geom"
)

// Label marks a click point as foreground or background.
type Label int

const (
	LabelBackground Label = 0
	LabelForeground Label = 1
)

// Point is one prompt click in image coordinates. Order matters: the
// whole sequence is replayed to the inference collaborator on every
// change.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label Label   `json:"label"`
}

// Preview is the most recent inference result: a polygon ring (>= 3
// points) with a confidence score. At most one preview exists at a time.
type Preview struct {
	Polygon []geom.Vec
	Score   float64
}

// Origin records how a pending polygon was produced.
type Origin int

const (
	OriginPoint Origin = iota
	OriginText
)

func (o Origin) String() string {
	if o == OriginText {
		return "text"
	}
	return "point"
}

// PendingPolygon is a polygon the user intends to keep, awaiting the
// union-merge save. ColorIndex is a stable display color slot.
type PendingPolygon struct {
	Polygon    []geom.Vec
	Score      float64
	Origin     Origin
	ColorIndex int
}

// MaskPolygon is a persisted (or to-be-persisted) mask instance.
type MaskPolygon struct {
	Polygon []geom.Vec
	Score   float64
}

// Instance is one object returned by a text query.
type Instance struct {
	Polygon []geom.Vec
	Score   float64
	Bbox    geom.Rect
}

// EmbeddingStatus tracks the per-image embedding lifecycle. Ready and
// Error are terminal; Error is user-visible and never retried on a
// timer.
type EmbeddingStatus int

const (
	EmbeddingNotStarted EmbeddingStatus = iota
	EmbeddingPending
	EmbeddingComputing
	EmbeddingReady
	EmbeddingError
)

func (s EmbeddingStatus) String() string {
	switch s {
	case EmbeddingPending:
		return "pending"
	case EmbeddingComputing:
		return "computing"
	case EmbeddingReady:
		return "ready"
	case EmbeddingError:
		return "error"
	default:
		return "not_started"
	}
}

// Terminal reports whether polling should stop at this status.
func (s EmbeddingStatus) Terminal() bool {
	return s == EmbeddingReady || s == EmbeddingError
}

// SaveResult reports a union-merge save. Failed counts instances the
// collaborator rejected; the returned polygons are the accepted subset.
type SaveResult struct {
	Polygons []MaskPolygon
	Failed   int
}

// InferenceService is the external inference/persistence collaborator.
type InferenceService interface {
	EmbeddingStatus(ctx context.Context, imageID string) (EmbeddingStatus, error)
	ComputeEmbedding(ctx context.Context, imageID string) error
	PointInference(ctx context.Context, imageID string, points []Point) (Preview, error)
	TextInference(ctx context.Context, imageID string, prompt string, threshold float64) ([]Instance, error)
	SaveMaskUnion(ctx context.Context, imageID string, polygons []MaskPolygon, score float64, promptCount int) (SaveResult, error)
	DeleteMask(ctx context.Context, imageID string) error
}

// Notifier surfaces segmentation outcomes to the host UI: toasts for
// auto-dismissing messages and an inline error slot near the
// segmentation controls.
type Notifier interface {
	Toast(msg string)
	InlineError(msg string)
}

// ErrNothingToSave is returned when a save is requested with no pending
// polygons and no preview.
var ErrNothingToSave = errors.New("no polygons to save")

// ErrNoPreview is returned when promoting a preview that does not exist.
var ErrNoPreview = errors.New("no preview polygon")

// State is a copy of the engine's user-visible state for the host and
// the overlay projection. Rev increases on every visible change and is
// safe to use as a memoization key.
type State struct {
	ImageID     string
	Status      EmbeddingStatus
	Clicks      []Point
	Preview     *Preview
	Pending     []PendingPolygon
	Committed   []MaskPolygon
	Loading     bool
	TextLoading bool
	InlineError string
	Rev         uint64
}
