package detection

import (
	"fmt"
	"strings"
)

// Policy chooses one face out of several candidates.
type Policy string

const (
	PolicyFirst   Policy = "first"   // first candidate over the threshold, in detector order
	PolicyBest    Policy = "best"    // confidence and area score
	PolicyLargest Policy = "largest" // biggest box over the threshold
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(s)); p {
	case PolicyFirst, PolicyBest, PolicyLargest:
		return p, nil
	default:
		return "", fmt.Errorf("detection: unknown selection policy %q", s)
	}
}

// Select applies policy to dets. Only candidates whose confidence is
// strictly greater than minConf are considered.
func Select(policy Policy, dets []Detection, minConf float64) *Detection {
	switch policy {
	case PolicyBest:
		return SelectBest(above(dets, minConf))
	case PolicyLargest:
		return SelectLargest(above(dets, minConf))
	default:
		return SelectFirst(dets, minConf)
	}
}

// SelectFirst returns the first detection whose confidence exceeds minConf.
func SelectFirst(dets []Detection, minConf float64) *Detection {
	for i := range dets {
		if dets[i].Confidence > minConf {
			return &dets[i]
		}
	}
	return nil
}

// SelectBest picks the best face from multiple detections
// Priority: confidence * 0.7 + area * 0.3
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	// Find max area for normalization
	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}
	if maxArea == 0 {
		maxArea = 1
	}

	bestScore := -1.0
	var best *Detection

	for i := range dets {
		score := dets[i].Confidence*0.7 + (dets[i].Area()/maxArea)*0.3
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}

	return best
}

// SelectLargest returns the detection with the largest box.
func SelectLargest(dets []Detection) *Detection {
	var best *Detection
	for i := range dets {
		if best == nil || dets[i].Area() > best.Area() {
			best = &dets[i]
		}
	}
	return best
}

func above(dets []Detection, minConf float64) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence > minConf {
			out = append(out, d)
		}
	}
	return out
}
