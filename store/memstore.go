// Package store provides an in-memory backend implementing the editor's
// persistence contracts. It backs the demo binary and integration-style
// tests; a deployment substitutes its own implementations.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/michalprusek/maptimize-annotate/domain/annotate"
	"github.com/michalprusek/maptimize-annotate/domain/segment"
	"github.com/michalprusek/maptimize-annotate/geom"
)

// BboxRecord is a persisted rectangle annotation.
type BboxRecord struct {
	ID      int64
	ImageID string
	Rect    geom.Rect
}

// MaskRecord is a persisted union-merged mask.
type MaskRecord struct {
	ImageID  string
	Polygons []segment.MaskPolygon
	Score    float64
	SavedAt  time.Time
}

// MemStore keeps annotations and masks in process memory. It simulates
// the embedding lifecycle so the polling path behaves like a remote
// service: embeddings flip to ready after a configurable delay.
type MemStore struct {
	mu         sync.Mutex
	logger     *slog.Logger
	nextID     int64
	bboxes     map[int64]BboxRecord
	masks      map[string]MaskRecord
	embeddings map[string]embedding
	embedDelay time.Duration
}

type embedding struct {
	status  segment.EmbeddingStatus
	readyAt time.Time
}

// NewMemStore constructs an empty store. embedDelay is how long a
// computed embedding stays in the computing state before reporting
// ready.
func NewMemStore(logger *slog.Logger, embedDelay time.Duration) *MemStore {
	return &MemStore{
		logger:     logger,
		bboxes:     make(map[int64]BboxRecord),
		masks:      make(map[string]MaskRecord),
		embeddings: make(map[string]embedding),
		embedDelay: embedDelay,
	}
}

// CreateBbox persists a new rectangle and returns its ID.
func (s *MemStore) CreateBbox(ctx context.Context, imageID string, r geom.Rect) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.bboxes[s.nextID] = BboxRecord{ID: s.nextID, ImageID: imageID, Rect: r}
	return s.nextID, nil
}

// UpdateBbox replaces the stored rectangle for id.
func (s *MemStore) UpdateBbox(ctx context.Context, id int64, r geom.Rect) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.bboxes[id]
	if !ok {
		return fmt.Errorf("bbox %d not found", id)
	}
	rec.Rect = r
	s.bboxes[id] = rec
	return nil
}

// DeleteBbox removes the stored rectangle for id.
func (s *MemStore) DeleteBbox(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bboxes[id]; !ok {
		return fmt.Errorf("bbox %d not found", id)
	}
	delete(s.bboxes, id)
	return nil
}

// RegenerateFeatures is fire-and-forget feature extraction; the memory
// store only logs it.
func (s *MemStore) RegenerateFeatures(ctx context.Context, id int64) {
	if s.logger != nil {
		s.logger.Debug("feature regeneration queued", "bbox", id)
	}
}

// Bboxes lists the stored rectangles for an image.
func (s *MemStore) Bboxes(imageID string) []BboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []BboxRecord
	for _, rec := range s.bboxes {
		if rec.ImageID == imageID {
			out = append(out, rec)
		}
	}
	return out
}

// EmbeddingStatus reports the simulated embedding lifecycle for an
// image; computing flips to ready once the delay has elapsed.
func (s *MemStore) EmbeddingStatus(ctx context.Context, imageID string) (segment.EmbeddingStatus, error) {
	if err := ctx.Err(); err != nil {
		return segment.EmbeddingNotStarted, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	emb, ok := s.embeddings[imageID]
	if !ok {
		return segment.EmbeddingNotStarted, nil
	}
	if emb.status == segment.EmbeddingComputing && time.Now().After(emb.readyAt) {
		emb.status = segment.EmbeddingReady
		s.embeddings[imageID] = emb
	}
	return emb.status, nil
}

// ComputeEmbedding starts the simulated embedding computation.
func (s *MemStore) ComputeEmbedding(ctx context.Context, imageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[imageID] = embedding{
		status:  segment.EmbeddingComputing,
		readyAt: time.Now().Add(s.embedDelay),
	}
	return nil
}

// PointInference returns a placeholder polygon around the prompt
// points. Foreground clicks pull the region outward; the score decays
// with background clicks.
func (s *MemStore) PointInference(ctx context.Context, imageID string, points []segment.Point) (segment.Preview, error) {
	if err := ctx.Err(); err != nil {
		return segment.Preview{}, err
	}
	if len(points) == 0 {
		return segment.Preview{}, fmt.Errorf("no prompt points")
	}
	r := promptBounds(points)
	score := 0.95
	for _, p := range points {
		if p.Label == segment.LabelBackground {
			score -= 0.05
		}
	}
	return segment.Preview{Polygon: ringFor(r), Score: score}, nil
}

// TextInference returns one placeholder instance per prompt word above
// the threshold.
func (s *MemStore) TextInference(ctx context.Context, imageID, prompt string, threshold float64) ([]segment.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := geom.Rect{X: 40, Y: 40, Width: 80, Height: 60}
	score := 0.9
	var out []segment.Instance
	for score >= threshold && len(out) < 3 {
		out = append(out, segment.Instance{Polygon: ringFor(r), Score: score, Bbox: r})
		r.X += r.Width + 20
		score -= 0.25
	}
	return out, nil
}

// SaveMaskUnion stores the union mask for the image, replacing any
// previous one.
func (s *MemStore) SaveMaskUnion(ctx context.Context, imageID string, polygons []segment.MaskPolygon, score float64, promptCount int) (segment.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return segment.SaveResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	accepted := make([]segment.MaskPolygon, 0, len(polygons))
	failed := 0
	for _, p := range polygons {
		if len(p.Polygon) < 3 {
			failed++
			continue
		}
		accepted = append(accepted, p)
	}
	rec := s.masks[imageID]
	rec.ImageID = imageID
	rec.Polygons = append(rec.Polygons, accepted...)
	rec.Score = score
	rec.SavedAt = time.Now()
	s.masks[imageID] = rec
	return segment.SaveResult{Polygons: accepted, Failed: failed}, nil
}

// DeleteMask removes the stored mask for the image.
func (s *MemStore) DeleteMask(ctx context.Context, imageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.masks, imageID)
	return nil
}

// Mask returns the stored mask for an image, if any.
func (s *MemStore) Mask(imageID string) (MaskRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.masks[imageID]
	return rec, ok
}

var _ annotate.BboxStore = (*MemStore)(nil)
var _ segment.InferenceService = (*MemStore)(nil)

func promptBounds(points []segment.Point) geom.Rect {
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
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
	const pad = 12
	return geom.Rect{X: minX - pad, Y: minY - pad, Width: maxX - minX + 2*pad, Height: maxY - minY + 2*pad}
}

func ringFor(r geom.Rect) []geom.Vec {
	return []geom.Vec{
		{X: r.X, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y + r.Height},
		{X: r.X, Y: r.Y + r.Height},
	}
}
