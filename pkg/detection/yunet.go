package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/roadguard/go-roadguard/internal/log"
	"gocv.io/x/gocv"
)

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a YuNet face detector from an ONNX model
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	// Input size is reset per frame
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
	}, nil
}

// Detect finds faces in a BGR frame
func (d *YuNetDetector) Detect(frame gocv.Mat) ([]Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("detection: empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	w, h := frame.Cols(), frame.Rows()
	d.detector.SetInputSize(image.Pt(w, h))

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(frame, &faces)

	var dets []Detection
	for r := 0; r < faces.Rows(); r++ {
		// 15 columns: x, y, w, h, five landmark pairs, score
		x := int(faces.GetFloatAt(r, 0))
		y := int(faces.GetFloatAt(r, 1))
		fw := int(faces.GetFloatAt(r, 2))
		fh := int(faces.GetFloatAt(r, 3))
		score := float64(faces.GetFloatAt(r, 14))

		box := clampRect(image.Rect(x, y, x+fw, y+fh), w, h)
		if box.Empty() {
			continue
		}
		dets = append(dets, Detection{Box: box, Confidence: score})
	}

	if len(dets) > 0 {
		log.Debug("yunet found faces", "count", len(dets))
	}

	return dets, nil
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
