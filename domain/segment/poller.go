package segment

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Poller periodically asks the inference collaborator for the embedding
// status of one image and reports each reading through the callback.
// It runs only while the status is non-terminal; the owner stops it on
// terminal status, image switch, or shutdown.
type Poller struct {
	logger   *slog.Logger
	svc      InferenceService
	interval time.Duration
	onStatus func(imageID string, st EmbeddingStatus)

	mu      sync.Mutex
	done    chan struct{}
	running bool
}

// NewPoller constructs a stopped poller.
func NewPoller(logger *slog.Logger, svc InferenceService, interval time.Duration, onStatus func(string, EmbeddingStatus)) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		logger:   logger,
		svc:      svc,
		interval: interval,
		onStatus: onStatus,
	}
}

// Start begins polling for imageID. A running poller is restarted so
// the loop always tracks the most recent image.
func (p *Poller) Start(imageID string) {
	p.Stop()
	p.mu.Lock()
	p.done = make(chan struct{})
	p.running = true
	done := p.done
	p.mu.Unlock()

	go p.loop(imageID, done)
}

// Stop halts polling and waits for no further callbacks to be issued
// for the stopped loop.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	close(p.done)
	p.done = nil
	p.running = false
}

// Running reports whether a poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(imageID string, done chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.interval)
			st, err := p.svc.EmbeddingStatus(ctx, imageID)
			cancel()
			if err != nil {
				// Transient: keep polling on the next tick.
				p.logger.Warn("embedding status poll failed", "error", err, "image", imageID)
				continue
			}
			select {
			case <-done:
				return
			default:
			}
			p.onStatus(imageID, st)
			if st.Terminal() {
				return
			}
		}
	}
}
