package config

import (
	"encoding/json"
	"os"
	"time"
)

// Config holds the tuning knobs of the annotation editor. Fields may be
// loaded from a JSON file and overridden by the host before wiring.
type Config struct {
	Debug bool `json:"debug"`

	// Viewport
	MinZoom  float64 `json:"min_zoom"`
	MaxZoom  float64 `json:"max_zoom"`
	ZoomStep float64 `json:"zoom_step"`

	// Bbox interaction
	MinBoxSize      float64 `json:"min_box_size"`      // image pixels
	HandleTolerance float64 `json:"handle_tolerance"`  // screen pixels
	UndoDepth       int     `json:"undo_depth"`

	// Segmentation
	DebounceMS     int     `json:"debounce_ms"`      // delay before point inference fires
	PollIntervalMS int     `json:"poll_interval_ms"` // embedding status poll period
	TextThreshold  float64 `json:"text_threshold"`   // default confidence cutoff for text queries

	// Overlay
	ProjectionCache int `json:"projection_cache"` // memoized overlay frames kept
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:           false,
		MinZoom:         0.1,
		MaxZoom:         10.0,
		ZoomStep:        1.25,
		MinBoxSize:      10,
		HandleTolerance: 8,
		UndoDepth:       50,
		DebounceMS:      300,
		PollIntervalMS:  2000,
		TextThreshold:   0.5,
		ProjectionCache: 16,
	}
}

// DebounceDuration is the point-inference debounce window.
func (c *Config) DebounceDuration() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// PollInterval is the embedding-status poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	if c.MinZoom <= 0 {
		c.MinZoom = 0.1
	}
	if c.MaxZoom <= c.MinZoom {
		c.MaxZoom = c.MinZoom * 100
	}
	if c.ZoomStep <= 1 {
		c.ZoomStep = 1.25
	}
	if c.MinBoxSize <= 0 {
		c.MinBoxSize = 10
	}
	if c.HandleTolerance <= 0 {
		c.HandleTolerance = 8
	}
	if c.UndoDepth <= 0 {
		c.UndoDepth = 50
	}
	if c.DebounceMS <= 0 {
		c.DebounceMS = 300
	}
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = 2000
	}
	if c.TextThreshold <= 0 || c.TextThreshold > 1 {
		c.TextThreshold = 0.5
	}
	if c.ProjectionCache <= 0 {
		c.ProjectionCache = 16
	}
	return nil
}

// Load attempts to read configuration from the given JSON file path. If
// the file does not exist it returns DefaultConfig(). On JSON error it
// returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return cfg, err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
