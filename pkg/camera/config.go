// Package camera provides frame sources for the monitor: a live capture
// device or a recorded video file, both read through OpenCV.
package camera

import "fmt"

// Config holds capture settings.
type Config struct {
	// Device is the capture device index, or a device path / pipeline
	// string understood by OpenCV.
	Device string `json:"device"`

	// === Resolution ===
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100 for streamed frames

	// VideoFile replays a recording instead of opening Device.
	VideoFile string `json:"video_file,omitempty"`

	// Realtime paces file replay at the recording's frame rate.
	Realtime bool `json:"realtime"`
}

// Capture limits
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns the recommended in-cabin configuration.
// 640x480 keeps the detector well under a frame interval on a Pi-class board.
func DefaultConfig() Config {
	return Config{
		Device:    "0",
		Width:     640,
		Height:    480,
		Framerate: 30,
		Quality:   80,
		Realtime:  true,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.VideoFile == "" && c.Device == "" {
		errors = append(errors, "device or video_file is required")
	}

	// Resolution
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between 160 and %d", MaxWidth))
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between 120 and %d", MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}
