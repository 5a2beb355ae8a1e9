package detection

import (
	"errors"
	"image"
	"testing"
)

func TestDetection_Center(t *testing.T) {
	tests := []struct {
		name    string
		det     Detection
		expectX float64
		expectY float64
	}{
		{
			name:    "centered box",
			det:     Detection{Box: image.Rect(100, 50, 300, 250)},
			expectX: 200,
			expectY: 150,
		},
		{
			name:    "top left corner",
			det:     Detection{Box: image.Rect(0, 0, 20, 20)},
			expectX: 10,
			expectY: 10,
		},
		{
			name:    "odd width",
			det:     Detection{Box: image.Rect(0, 0, 5, 3)},
			expectX: 2.5,
			expectY: 1.5,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tc.det.Center()
			if x != tc.expectX {
				t.Errorf("Center X: got %.2f, want %.2f", x, tc.expectX)
			}
			if y != tc.expectY {
				t.Errorf("Center Y: got %.2f, want %.2f", y, tc.expectY)
			}
		})
	}
}

func TestDetection_Area(t *testing.T) {
	d := Detection{Box: image.Rect(10, 10, 60, 30)}
	if got := d.Area(); got != 1000 {
		t.Errorf("Area: got %.0f, want 1000", got)
	}
}

func TestParseSSD(t *testing.T) {
	data := []float32{
		0, 1, 0.30, 0.1, 0.1, 0.2, 0.2, // below threshold
		0, 1, 0.90, 0.25, 0.25, 0.75, 0.75,
		0, 1, 0.50, 0.0, 0.0, 0.5, 0.5, // exactly at threshold, dropped
		0, 1, 0.70, -0.1, 0.5, 1.2, 1.5, // clamped to frame
		0, 1, 0.99, 1.1, 1.1, 1.3, 1.3, // fully outside
		0, 1, 0.80, // truncated tail ignored
	}

	dets := parseSSD(data, 400, 200, 0.5)
	if len(dets) != 2 {
		t.Fatalf("got %d detections, want 2: %+v", len(dets), dets)
	}

	if want := image.Rect(100, 50, 300, 150); dets[0].Box != want {
		t.Errorf("first box: got %v, want %v", dets[0].Box, want)
	}
	if dets[0].Confidence < 0.89 || dets[0].Confidence > 0.91 {
		t.Errorf("first confidence: got %v", dets[0].Confidence)
	}
	if want := image.Rect(0, 100, 400, 200); dets[1].Box != want {
		t.Errorf("clamped box: got %v, want %v", dets[1].Box, want)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"dnn", KindDNN, false},
		{"HAAR", KindHaar, false},
		{"yunet", KindYuNet, false},
		{"yolo", "", true},
	}
	for _, tc := range tests {
		got, err := ParseKind(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseKind(%q): err = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNew_MissingModel(t *testing.T) {
	for _, kind := range []Kind{KindDNN, KindHaar, KindYuNet} {
		t.Run(string(kind), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Kind = kind
			cfg.ModelPath = "/nonexistent/path/model"
			cfg.ConfigPath = "/nonexistent/path/deploy.prototxt"

			_, err := New(cfg)
			if !errors.Is(err, ErrModelNotFound) {
				t.Errorf("expected ErrModelNotFound, got %v", err)
			}
		})
	}
}

func TestNew_UnknownKind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kind = "mtcnn"
	if _, err := New(cfg); err == nil {
		t.Error("expected error for unknown detector")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelPath == "" || cfg.ConfigPath == "" {
		t.Error("DefaultConfig: model paths should not be empty")
	}
	if cfg.ConfidenceThresh != 0.5 {
		t.Errorf("DefaultConfig: ConfidenceThresh = %f, want 0.5", cfg.ConfidenceThresh)
	}
	if cfg.InputWidth != 300 || cfg.InputHeight != 300 {
		t.Errorf("DefaultConfig: input %dx%d, want 300x300", cfg.InputWidth, cfg.InputHeight)
	}
}
