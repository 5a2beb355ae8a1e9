// Package ear computes the eye aspect ratio from 68-point facial landmarks.
//
// The ratio of an eye's vertical opening to its width stays roughly constant
// while the eye is open and drops towards zero when it closes. It does not
// depend on the scale of the face in the frame.
package ear

import "math"

// Landmark index ranges in the iBUG 68-point layout.
const (
	RightEyeStart = 36
	LeftEyeStart  = 42
	EyePoints     = 6

	// MinLandmarks is the smallest landmark set that covers both eyes.
	MinLandmarks = LeftEyeStart + EyePoints
)

// degenerate is the horizontal eye width below which the ratio is undefined.
const degenerate = 1e-9

// Point is a 2D landmark position in pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Scale returns p multiplied by k.
func (p Point) Scale(k float64) Point {
	return Point{X: p.X * k, Y: p.Y * k}
}

// EyeAspectRatio computes (|p1-p5| + |p2-p4|) / (2*|p0-p3|) for six eye
// landmarks ordered from the outer corner clockwise. It reports false when
// eye does not hold six points or the horizontal width is degenerate.
func EyeAspectRatio(eye []Point) (float64, bool) {
	if len(eye) != EyePoints {
		return 0, false
	}
	h := eye[0].Dist(eye[3])
	if h < degenerate {
		return 0, false
	}
	v := eye[1].Dist(eye[5]) + eye[2].Dist(eye[4])
	return v / (2 * h), true
}

// RightEye returns the right-eye slice of a 68-point landmark set.
func RightEye(landmarks []Point) []Point {
	if len(landmarks) < MinLandmarks {
		return nil
	}
	return landmarks[RightEyeStart : RightEyeStart+EyePoints]
}

// LeftEye returns the left-eye slice of a 68-point landmark set.
func LeftEye(landmarks []Point) []Point {
	if len(landmarks) < MinLandmarks {
		return nil
	}
	return landmarks[LeftEyeStart : LeftEyeStart+EyePoints]
}

// Result holds the per-eye ratios and the combined value.
type Result struct {
	Left       float64 `json:"left"`
	Right      float64 `json:"right"`
	LeftValid  bool    `json:"left_valid"`
	RightValid bool    `json:"right_valid"`
	EAR        float64 `json:"ear"`
}

// FromLandmarks computes the combined eye aspect ratio for a face.
//
// Both eyes valid: the mean of the two. One eye degenerate: the other eye
// alone. Both degenerate, or too few landmarks: false.
func FromLandmarks(landmarks []Point) (Result, bool) {
	if len(landmarks) < MinLandmarks {
		return Result{}, false
	}

	var r Result
	r.Right, r.RightValid = EyeAspectRatio(RightEye(landmarks))
	r.Left, r.LeftValid = EyeAspectRatio(LeftEye(landmarks))

	switch {
	case r.LeftValid && r.RightValid:
		r.EAR = (r.Left + r.Right) / 2
	case r.LeftValid:
		r.EAR = r.Left
	case r.RightValid:
		r.EAR = r.Right
	default:
		return r, false
	}
	return r, true
}
