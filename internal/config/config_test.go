package config

import (
	"errors"
	"testing"
	"time"

	"github.com/roadguard/go-roadguard/pkg/detection"
	"github.com/roadguard/go-roadguard/pkg/monitor"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}

	if cfg.Camera.Device != "0" || cfg.Camera.Width != 640 || cfg.Camera.Height != 480 || cfg.Camera.Framerate != 30 {
		t.Errorf("camera defaults = %+v", cfg.Camera)
	}
	if cfg.Latch.FacePresent != 3*time.Second || cfg.Latch.EyesClosed != 2*time.Second || cfg.Latch.EARThreshold != 0.29 {
		t.Errorf("latch defaults = %+v", cfg.Latch)
	}
	if cfg.Detector.MinConfidence != 0.5 || cfg.Policy() != detection.PolicyFirst {
		t.Errorf("detector defaults = %+v", cfg.Detector)
	}
	if cfg.Store.Kind != StoreJSON || cfg.Web.Addr != ":8080" {
		t.Errorf("store/web defaults = %+v %+v", cfg.Store, cfg.Web)
	}

	conds := cfg.Conditions()
	if len(conds) != 2 || conds[0].Name != monitor.FacePresent || conds[1].Name != monitor.EyesClosed {
		t.Errorf("conditions = %+v", conds)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"ROADGUARD_CAMERA_VIDEO_FILE":     "drive.mp4",
		"ROADGUARD_DETECTOR_KIND":         "haar",
		"ROADGUARD_DETECTOR_POLICY":       "largest",
		"ROADGUARD_LATCH_EYES_CLOSED":     "1500ms",
		"ROADGUARD_LANDMARK_ENABLED":      "false",
		"ROADGUARD_STORE_KIND":            "postgres",
		"ROADGUARD_STORE_DATABASE_URL":    "postgres://localhost/roadguard",
		"ROADGUARD_MQTT_QOS":              "2",
		"ROADGUARD_SNAPSHOT_ENDPOINT":     "minio:9000",
		"ROADGUARD_LATCH_SEVERITY_MEDIUM": "4s",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.CameraConfig().VideoFile != "drive.mp4" {
		t.Errorf("video file not applied")
	}
	if cfg.DetectorConfig().Kind != detection.KindHaar || cfg.Policy() != detection.PolicyLargest {
		t.Errorf("detector = %+v", cfg.Detector)
	}
	if cfg.Latch.EyesClosed != 1500*time.Millisecond {
		t.Errorf("eyes closed = %v", cfg.Latch.EyesClosed)
	}
	if len(cfg.Conditions()) != 1 {
		t.Errorf("landmarks disabled should drop eye closure")
	}
	if cfg.MQTTConfig().QoS != 2 || cfg.SnapshotConfig().Endpoint != "minio:9000" {
		t.Errorf("sink configs not applied")
	}
	if sev := cfg.Severity(); sev.Medium != 4*time.Second || sev.High != 5*time.Second {
		t.Errorf("severity = %+v", sev)
	}
}

func TestLoad_Preset(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"ROADGUARD_CAMERA_PRESET": "lowpower"})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Camera.Width != 320 || cfg.Camera.Framerate != 10 {
		t.Errorf("preset not applied: %+v", cfg.Camera)
	}

	_, err = LoadFrom(map[string]string{"ROADGUARD_CAMERA_PRESET": "8k"})
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Field != "camera.preset" {
		t.Errorf("expected preset error, got %v", err)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	if _, err := LoadFrom(map[string]string{"ROADGUARD_LATCH_FACE_PRESENT": "soon"}); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"bad width", func(c *Config) { c.Camera.Width = 10 }, "camera"},
		{"no source", func(c *Config) { c.Camera.Device = "" }, "camera"},
		{"unknown detector", func(c *Config) { c.Detector.Kind = "magic" }, "detector.kind"},
		{"unknown policy", func(c *Config) { c.Detector.Policy = "random" }, "detector.policy"},
		{"confidence", func(c *Config) { c.Detector.MinConfidence = 1 }, "detector.min_confidence"},
		{"zero threshold", func(c *Config) { c.Latch.EyesClosed = 0 }, "latch"},
		{"ear", func(c *Config) { c.Latch.EARThreshold = 1.5 }, "latch.ear_threshold"},
		{"severity order", func(c *Config) { c.Latch.SeverityHigh = time.Second }, "latch.severity_high"},
		{"postgres url", func(c *Config) { c.Store.Kind = StorePostgres }, "store.database_url"},
		{"store kind", func(c *Config) { c.Store.Kind = "redis" }, "store.kind"},
		{"qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"snapshot quality", func(c *Config) { c.Snapshots.Quality = 0 }, "snapshot.quality"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadFrom(map[string]string{})
			if err != nil {
				t.Fatalf("LoadFrom: %v", err)
			}
			tc.edit(cfg)

			var cerr *Error
			if err := cfg.Validate(); !errors.As(err, &cerr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if cerr.Field != tc.field {
				t.Errorf("field = %q, want %q", cerr.Field, tc.field)
			}
		})
	}
}
