package detection

import (
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

// findModel walks up from the test directory looking for models/<name>.
func findModel(name string) string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; dir != "/"; dir = filepath.Dir(dir) {
		p := filepath.Join(dir, "models", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func solidFrame(w, h int, c gocv.Scalar) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(c, h, w, gocv.MatTypeCV8UC3)
}

func TestDNN_SolidFrame(t *testing.T) {
	model := findModel("res10_300x300_ssd_iter_140000.caffemodel")
	proto := findModel("deploy.prototxt")
	if model == "" || proto == "" {
		t.Skip("face DNN model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath, cfg.ConfigPath = model, proto

	d, err := NewDNN(cfg)
	if err != nil {
		t.Fatalf("NewDNN failed: %v", err)
	}
	defer d.Close()

	frame := solidFrame(320, 240, gocv.NewScalar(255, 0, 0, 0))
	defer frame.Close()

	dets, err := d.Detect(frame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) > 0 {
		t.Errorf("expected no detections in solid frame, got %d", len(dets))
	}

	empty := gocv.NewMat()
	defer empty.Close()
	if _, err := d.Detect(empty); err == nil {
		t.Error("expected error for empty frame")
	}
}

func TestHaar_SolidFrame(t *testing.T) {
	model := findModel("haarcascade_frontalface_default.xml")
	if model == "" {
		t.Skip("haar cascade not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.Kind = KindHaar
	cfg.ModelPath = model

	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Close()

	frame := solidFrame(320, 240, gocv.NewScalar(100, 100, 100, 0))
	defer frame.Close()

	dets, err := d.Detect(frame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) > 0 {
		t.Errorf("expected no detections in solid frame, got %d", len(dets))
	}
}

func TestYuNet_Concurrency(t *testing.T) {
	model := findModel("face_detection_yunet.onnx")
	if model == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	d, err := NewYuNet(Config{
		ModelPath:        model,
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
	})
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer d.Close()

	frame := solidFrame(320, 240, gocv.NewScalar(100, 100, 100, 0))
	defer frame.Close()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			if _, err := d.Detect(frame); err != nil {
				t.Errorf("concurrent detection failed: %v", err)
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
