// Package config loads the engine tuning configuration. Fields are
// pointer-typed so a partial JSON file overrides only what it names;
// the Get* accessors supply defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig is the root tuning document. The schema matches the
// flags and engine.Config knobs so the same JSON can configure startup
// and be echoed back by the API.
type TuningConfig struct {
	// Engine params
	MaxFrameRate   *float64 `json:"max_frame_rate,omitempty"`
	FeedDepth      *int     `json:"feed_depth,omitempty"`
	SampleInterval *string  `json:"sample_interval,omitempty"` // duration string like "1s"
	RotationAlpha  *float64 `json:"rotation_alpha,omitempty"`

	// Detector feed params
	ListenAddress *string `json:"listen_address,omitempty"`
	RcvBuf        *int    `json:"rcv_buf,omitempty"`

	// Display defaults until the canvas collaborator reports in
	CanvasWidth  *float64 `json:"canvas_width,omitempty"`
	CanvasHeight *float64 `json:"canvas_height,omitempty"`
	Mirrored     *bool    `json:"mirrored,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields nil; the
// Get* accessors then return pure defaults.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields
// omitted from the file keep their defaults, so partial configs are
// safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects values outside sane operating ranges.
func (c *TuningConfig) Validate() error {
	if c.MaxFrameRate != nil && (*c.MaxFrameRate < 0 || *c.MaxFrameRate > 240) {
		return fmt.Errorf("max_frame_rate must be in [0,240], got %v", *c.MaxFrameRate)
	}
	if c.FeedDepth != nil && (*c.FeedDepth < 1 || *c.FeedDepth > 1024) {
		return fmt.Errorf("feed_depth must be in [1,1024], got %d", *c.FeedDepth)
	}
	if c.RotationAlpha != nil && (*c.RotationAlpha <= 0 || *c.RotationAlpha > 1) {
		return fmt.Errorf("rotation_alpha must be in (0,1], got %v", *c.RotationAlpha)
	}
	if c.SampleInterval != nil {
		if _, err := time.ParseDuration(*c.SampleInterval); err != nil {
			return fmt.Errorf("sample_interval: %w", err)
		}
	}
	if c.CanvasWidth != nil && *c.CanvasWidth < 0 {
		return fmt.Errorf("canvas_width must be >= 0, got %v", *c.CanvasWidth)
	}
	if c.CanvasHeight != nil && *c.CanvasHeight < 0 {
		return fmt.Errorf("canvas_height must be >= 0, got %v", *c.CanvasHeight)
	}
	return nil
}

// GetMaxFrameRate returns the transform-stage rate cap. Default 30.
func (c *TuningConfig) GetMaxFrameRate() float64 {
	if c.MaxFrameRate != nil {
		return *c.MaxFrameRate
	}
	return 30
}

// GetFeedDepth returns the detector feed capacity. Default 8.
func (c *TuningConfig) GetFeedDepth() int {
	if c.FeedDepth != nil {
		return *c.FeedDepth
	}
	return 8
}

// GetSampleInterval returns the quality-sample cadence. Default 1s.
func (c *TuningConfig) GetSampleInterval() time.Duration {
	if c.SampleInterval != nil {
		if d, err := time.ParseDuration(*c.SampleInterval); err == nil {
			return d
		}
	}
	return time.Second
}

// GetRotationAlpha returns the rotation EMA factor. Default 0.35.
func (c *TuningConfig) GetRotationAlpha() float64 {
	if c.RotationAlpha != nil {
		return *c.RotationAlpha
	}
	return 0.35
}

// GetListenAddress returns the detector feed bind address. Default ":7788".
func (c *TuningConfig) GetListenAddress() string {
	if c.ListenAddress != nil {
		return *c.ListenAddress
	}
	return ":7788"
}

// GetRcvBuf returns the UDP receive buffer size in bytes. Default 4MB.
func (c *TuningConfig) GetRcvBuf() int {
	if c.RcvBuf != nil {
		return *c.RcvBuf
	}
	return 4 * 1024 * 1024
}

// GetCanvasWidth returns the startup canvas width. Default 0 (wait for
// the canvas collaborator, fall back to the engine's fixed default).
func (c *TuningConfig) GetCanvasWidth() float64 {
	if c.CanvasWidth != nil {
		return *c.CanvasWidth
	}
	return 0
}

// GetCanvasHeight returns the startup canvas height. Default 0.
func (c *TuningConfig) GetCanvasHeight() float64 {
	if c.CanvasHeight != nil {
		return *c.CanvasHeight
	}
	return 0
}

// GetMirrored returns the startup mirroring flag. Default true (front
// camera convention).
func (c *TuningConfig) GetMirrored() bool {
	if c.Mirrored != nil {
		return *c.Mirrored
	}
	return true
}
