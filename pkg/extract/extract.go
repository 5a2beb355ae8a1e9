// Package extract turns a camera frame into the per-frame signals the
// condition latches consume: whether a face is present and, when a
// landmark localizer is configured, the eye aspect ratio.
//
// Extraction is pure. Nothing here draws on the frame or keeps state
// between frames.
package extract

import (
	"log/slog"

	"github.com/roadguard/go-roadguard/internal/log"
	"github.com/roadguard/go-roadguard/pkg/camera"
	"github.com/roadguard/go-roadguard/pkg/detection"
	"github.com/roadguard/go-roadguard/pkg/ear"
	"github.com/roadguard/go-roadguard/pkg/landmark"
	"gocv.io/x/gocv"
)

// DefaultMinConfidence is the presence threshold; a candidate must score
// strictly above it.
const DefaultMinConfidence = 0.5

// Signal is everything extracted from one frame.
type Signal struct {
	Face      *detection.Detection `json:"face,omitempty"`
	Landmarks []ear.Point          `json:"-"`
	Eyes      *ear.Result          `json:"eyes,omitempty"`
}

// EAR returns the combined eye aspect ratio, if one was measured.
func (s Signal) EAR() (float64, bool) {
	if s.Eyes == nil {
		return 0, false
	}
	return s.Eyes.EAR, true
}

// Presence decides whether a face is in the frame.
type Presence struct {
	det     detection.Detector
	policy  detection.Policy
	minConf float64
	logger  *slog.Logger
}

// NewPresence wraps a detector. An empty policy means first-match.
func NewPresence(det detection.Detector, policy detection.Policy, minConf float64) *Presence {
	if policy == "" {
		policy = detection.PolicyFirst
	}
	return &Presence{
		det:     det,
		policy:  policy,
		minConf: minConf,
		logger:  log.Component("presence"),
	}
}

// Detect returns the selected face, or false when there is none. Frames
// that are not 3-channel BGR are normalized on a copy first.
func (p *Presence) Detect(frame gocv.Mat) (*detection.Detection, bool) {
	if frame.Empty() {
		return nil, false
	}

	if frame.Channels() != 3 {
		bgr := frame.Clone()
		defer bgr.Close()
		if err := camera.Normalize(&bgr); err != nil {
			p.logger.Debug("skipping frame", "error", err)
			return nil, false
		}
		frame = bgr
	}

	dets, err := p.det.Detect(frame)
	if err != nil {
		p.logger.Debug("detector failed", "error", err)
		return nil, false
	}

	face := detection.Select(p.policy, dets, p.minConf)
	if face == nil {
		return nil, false
	}
	f := *face
	return &f, true
}

// Measurement is the result of the eye-aspect-ratio strategy.
type Measurement struct {
	Face      detection.Detection
	Landmarks []ear.Point
	Eyes      ear.Result
}

// EyeAspect measures eye openness inside a detected face.
type EyeAspect struct {
	presence *Presence
	loc      landmark.Localizer
	logger   *slog.Logger
}

// NewEyeAspect combines a presence detector with a landmark localizer.
func NewEyeAspect(presence *Presence, loc landmark.Localizer) *EyeAspect {
	return &EyeAspect{presence: presence, loc: loc, logger: log.Component("eye_aspect")}
}

// Measure finds a face and computes its eye aspect ratio. It reports
// false when there is no face or the eye geometry is unusable.
func (e *EyeAspect) Measure(frame gocv.Mat) (Measurement, bool) {
	face, ok := e.presence.Detect(frame)
	if !ok {
		return Measurement{}, false
	}
	return e.MeasureFace(frame, *face)
}

// MeasureFace computes the eye aspect ratio for an already detected face.
func (e *EyeAspect) MeasureFace(frame gocv.Mat, face detection.Detection) (Measurement, bool) {
	m := Measurement{Face: face}

	pts, err := e.loc.Locate(frame, face.Box)
	if err != nil {
		e.logger.Debug("landmarks unavailable", "error", err)
		return m, false
	}
	m.Landmarks = pts

	eyes, ok := ear.FromLandmarks(pts)
	if !ok {
		e.logger.Debug("degenerate eye geometry", "landmarks", len(pts))
		return m, false
	}
	m.Eyes = eyes
	return m, true
}

// Extractor runs presence and, if configured, the eye strategy on a frame.
type Extractor struct {
	presence *Presence
	eyes     *EyeAspect
}

// New creates an extractor. eyes may be nil for presence-only monitoring.
func New(presence *Presence, eyes *EyeAspect) *Extractor {
	return &Extractor{presence: presence, eyes: eyes}
}

// Extract implements the monitor's extraction step.
func (x *Extractor) Extract(frame gocv.Mat) Signal {
	var sig Signal

	face, ok := x.presence.Detect(frame)
	if !ok {
		return sig
	}
	sig.Face = face

	if x.eyes == nil {
		return sig
	}
	m, ok := x.eyes.MeasureFace(frame, *face)
	sig.Landmarks = m.Landmarks
	if ok {
		eyes := m.Eyes
		sig.Eyes = &eyes
	}
	return sig
}
