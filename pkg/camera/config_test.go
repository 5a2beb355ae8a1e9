package camera

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("default config invalid: %v", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"width too small", func(c *Config) { c.Width = 100 }, "width"},
		{"height too large", func(c *Config) { c.Height = 5000 }, "height"},
		{"framerate zero", func(c *Config) { c.Framerate = 0 }, "framerate"},
		{"quality too high", func(c *Config) { c.Quality = 101 }, "quality"},
		{"no source", func(c *Config) { c.Device = "" }, "device"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(strings.Join(errs, "; "), tc.wantErr) {
				t.Errorf("errors %v do not mention %q", errs, tc.wantErr)
			}
		})
	}
}

func TestConfig_VideoFileWithoutDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = ""
	cfg.VideoFile = "drive.mp4"
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestPresets(t *testing.T) {
	for name, cfg := range Presets() {
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("preset %s invalid: %v", name, errs)
		}
	}
	if GetPreset("nope") != nil {
		t.Error("expected nil for unknown preset")
	}
	if p := GetPreset(Preset720p); p == nil || p.Width != 1280 {
		t.Errorf("720p preset = %+v", p)
	}
}

func TestFrameInterval(t *testing.T) {
	tests := []struct {
		fps  float64
		want time.Duration
	}{
		{25, 40 * time.Millisecond},
		{0, 0},
		{-1, 0},
		{1000, 0},
	}
	for _, tc := range tests {
		if got := frameInterval(tc.fps); got != tc.want {
			t.Errorf("frameInterval(%v) = %v, want %v", tc.fps, got, tc.want)
		}
	}
}
