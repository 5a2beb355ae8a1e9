// Package detection provides face detection backends built on OpenCV.
package detection

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"
)

// ErrModelNotFound is returned when a model artifact is missing on disk.
var ErrModelNotFound = errors.New("detection: model file not found")

// Detection represents a detected face in frame pixel coordinates.
type Detection struct {
	Box        image.Rectangle `json:"box"`
	Confidence float64         `json:"confidence"` // 0-1; Haar reports 1
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return float64(d.Box.Min.X) + float64(d.Box.Dx())/2, float64(d.Box.Min.Y) + float64(d.Box.Dy())/2
}

// Area returns the area of the bounding box in pixels
func (d Detection) Area() float64 {
	return float64(d.Box.Dx()) * float64(d.Box.Dy())
}

// Detector is the interface for face detection backends
type Detector interface {
	// Detect returns face candidates in detector order. A frame without
	// faces yields an empty slice and no error.
	Detect(frame gocv.Mat) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Kind names a detector backend.
type Kind string

const (
	KindDNN   Kind = "dnn"   // Caffe SSD res10
	KindHaar  Kind = "haar"  // Haar cascade
	KindYuNet Kind = "yunet" // OpenCV FaceDetectorYN
)

// ParseKind validates a backend name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindDNN, KindHaar, KindYuNet:
		return k, nil
	default:
		return "", fmt.Errorf("detection: unknown detector %q", s)
	}
}

// Config holds detector configuration
type Config struct {
	Kind             Kind
	ModelPath        string  // caffemodel, cascade XML or ONNX
	ConfigPath       string  // deploy.prototxt for the DNN backend
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
	ScaleFactor      float64 // Haar pyramid scale
	MinNeighbors     int     // Haar neighbour count
}

// DefaultConfig returns the defaults for the Caffe SSD face detector
func DefaultConfig() Config {
	return Config{
		Kind:             KindDNN,
		ModelPath:        "models/res10_300x300_ssd_iter_140000.caffemodel",
		ConfigPath:       "models/deploy.prototxt",
		ConfidenceThresh: 0.5,
		InputWidth:       300,
		InputHeight:      300,
		ScaleFactor:      1.2,
		MinNeighbors:     5,
	}
}

// New creates the detector selected by cfg.Kind.
func New(cfg Config) (Detector, error) {
	switch cfg.Kind {
	case KindDNN, "":
		return NewDNN(cfg)
	case KindHaar:
		return NewHaar(cfg)
	case KindYuNet:
		return NewYuNet(cfg)
	default:
		return nil, fmt.Errorf("detection: unknown detector %q", cfg.Kind)
	}
}

// clampRect limits r to the frame bounds.
func clampRect(r image.Rectangle, w, h int) image.Rectangle {
	return r.Canon().Intersect(image.Rect(0, 0, w, h))
}
