// Package landmark locates 68 facial landmarks inside a detected face box.
package landmark

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/roadguard/go-roadguard/pkg/ear"
	"gocv.io/x/gocv"
)

// Count is the number of points in the iBUG 68-point layout.
const Count = 68

var (
	// ErrModelNotFound is returned when the model file is missing.
	ErrModelNotFound = errors.New("landmark: model file not found")
	// ErrEmptyRegion is returned when the face box does not overlap the frame.
	ErrEmptyRegion = errors.New("landmark: empty face region")
)

// Localizer finds facial landmarks in a face region.
type Localizer interface {
	// Locate returns landmark positions in frame coordinates, anchored to
	// the full face rectangle.
	Locate(frame gocv.Mat, box image.Rectangle) ([]ear.Point, error)
	Close() error
}

// Config holds localizer configuration
type Config struct {
	ModelPath string
	InputSize int // square model input, default 112
}

// DefaultConfig returns defaults for the bundled ONNX landmark model
func DefaultConfig() Config {
	return Config{
		ModelPath: "models/face_landmarks_68.onnx",
		InputSize: 112,
	}
}

// DNN regresses 68 landmarks with an ONNX model. The network takes the
// face crop resized to InputSize and outputs 136 values, x/y pairs
// normalized to the crop.
type DNN struct {
	net  gocv.Net
	size image.Point
	mu   sync.Mutex
}

// NewDNN loads the landmark model once.
func NewDNN(cfg Config) (*DNN, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("landmark: failed to load model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	if cfg.InputSize <= 0 {
		cfg.InputSize = 112
	}
	return &DNN{net: net, size: image.Pt(cfg.InputSize, cfg.InputSize)}, nil
}

// Locate implements Localizer.
func (d *DNN) Locate(frame gocv.Mat, box image.Rectangle) ([]ear.Point, error) {
	box = box.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if box.Empty() {
		return nil, ErrEmptyRegion
	}

	roi := frame.Region(box)
	defer roi.Close()

	blob := gocv.BlobFromImage(roi, 1.0/255.0, d.size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("landmark: read output: %w", err)
	}
	return Denormalize(data, box)
}

// Close releases the network.
func (d *DNN) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// Denormalize maps crop-relative x/y pairs onto box in frame coordinates.
func Denormalize(data []float32, box image.Rectangle) ([]ear.Point, error) {
	if len(data) < 2*Count {
		return nil, fmt.Errorf("landmark: got %d outputs, want %d", len(data), 2*Count)
	}

	ox, oy := float64(box.Min.X), float64(box.Min.Y)
	w, h := float64(box.Dx()), float64(box.Dy())

	pts := make([]ear.Point, Count)
	for i := range pts {
		pts[i] = ear.Point{
			X: ox + float64(data[2*i])*w,
			Y: oy + float64(data[2*i+1])*h,
		}
	}
	return pts, nil
}
