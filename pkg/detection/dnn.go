package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/roadguard/go-roadguard/internal/log"
	"gocv.io/x/gocv"
)

// ssdStride is the number of values per SSD candidate:
// image id, label, confidence, x1, y1, x2, y2 (corners normalized 0-1).
const ssdStride = 7

// DNNDetector runs the res10 Caffe SSD face model through OpenCV's dnn module
type DNNDetector struct {
	net    gocv.Net
	config Config
	mean   gocv.Scalar
	mu     sync.Mutex // Protects inference
}

// NewDNN loads the Caffe SSD face detector
func NewDNN(cfg Config) (*DNNDetector, error) {
	for _, p := range []string{cfg.ConfigPath, cfg.ModelPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, p)
		}
	}

	net := gocv.ReadNetFromCaffe(cfg.ConfigPath, cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("detection: failed to load caffe model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		cfg.InputWidth, cfg.InputHeight = 300, 300
	}

	return &DNNDetector{
		net:    net,
		config: cfg,
		mean:   gocv.NewScalar(104, 177, 123, 0),
	}, nil
}

// Detect finds faces in a BGR frame. Candidates keep the network's order.
func (d *DNNDetector) Detect(frame gocv.Mat) ([]Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("detection: empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(frame, 1.0, image.Pt(d.config.InputWidth, d.config.InputHeight), d.mean, false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("detection: read output: %w", err)
	}

	dets := parseSSD(data, frame.Cols(), frame.Rows(), d.config.ConfidenceThresh)
	if len(dets) > 0 {
		log.Debug("dnn detector found faces", "count", len(dets))
	}
	return dets, nil
}

// Close releases the network
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// parseSSD converts the flat SSD output to detections scaled to a w×h
// frame, keeping candidates whose confidence is strictly above minConf.
func parseSSD(data []float32, w, h int, minConf float64) []Detection {
	var dets []Detection
	for i := 0; i+ssdStride <= len(data); i += ssdStride {
		conf := float64(data[i+2])
		if conf <= minConf {
			continue
		}
		box := image.Rect(
			int(data[i+3]*float32(w)),
			int(data[i+4]*float32(h)),
			int(data[i+5]*float32(w)),
			int(data[i+6]*float32(h)),
		)
		// Boxes entirely off frame are not candidates, so first-match
		// selection moves on to the next one.
		box = clampRect(box, w, h)
		if box.Empty() {
			continue
		}
		dets = append(dets, Detection{Box: box, Confidence: conf})
	}
	return dets
}
