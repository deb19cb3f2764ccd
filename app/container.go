// Package app assembles the editor session: configuration, logging,
// the bbox editor, the segmentation engine and the overlay projector.
package app

import (
	"log/slog"

	"github.com/michalprusek/maptimize-annotate/config"
	"github.com/michalprusek/maptimize-annotate/ui/overlay"
)

// Container assembles the session and its collaborators.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Backend Backend
	Notify  Notifier
	Session *Session
}

// BuildContainer constructs all components. No I/O beyond what the
// backend does on wiring.
func BuildContainer(cfg *config.Config, logger *slog.Logger, backend Backend, notify Notifier) *Container {
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Backend: backend,
		Notify:  notify,
	}
	c.Session = NewSession(logger, cfg, backend, notify)
	return c
}

// Frame is a convenience passthrough for render loops.
func (c *Container) Frame() *overlay.Frame { return c.Session.Frame() }

// Close releases session resources.
func (c *Container) Close() {
	if c.Session != nil {
		c.Session.Close()
	}
}
