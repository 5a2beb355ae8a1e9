package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// HaarDetector uses a Haar cascade classifier. It has no confidence
// output, so every detection reports 1.0.
type HaarDetector struct {
	cascade gocv.CascadeClassifier
	config  Config
	mu      sync.Mutex
}

// NewHaar loads a cascade XML file
func NewHaar(cfg Config) (*HaarDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(cfg.ModelPath) {
		cascade.Close()
		return nil, fmt.Errorf("detection: failed to load cascade from %s", cfg.ModelPath)
	}

	if cfg.ScaleFactor <= 1 {
		cfg.ScaleFactor = 1.2
	}
	if cfg.MinNeighbors <= 0 {
		cfg.MinNeighbors = 5
	}

	return &HaarDetector{cascade: cascade, config: cfg}, nil
}

// Detect finds faces on the grayscale version of frame
func (d *HaarDetector) Detect(frame gocv.Mat) ([]Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("detection: empty frame")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() == 1 {
		frame.CopyTo(&gray)
	} else {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	}

	d.mu.Lock()
	rects := d.cascade.DetectMultiScaleWithParams(gray, d.config.ScaleFactor, d.config.MinNeighbors, 0, image.Pt(0, 0), image.Pt(0, 0))
	d.mu.Unlock()

	dets := make([]Detection, 0, len(rects))
	for _, r := range rects {
		dets = append(dets, Detection{Box: clampRect(r, frame.Cols(), frame.Rows()), Confidence: 1})
	}
	return dets, nil
}

// Close releases the classifier
func (d *HaarDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cascade.Close()
}
