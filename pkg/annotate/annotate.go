// Package annotate draws monitoring overlays on frames and encodes them
// for the dashboard stream and evidence snapshots.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"github.com/roadguard/go-roadguard/pkg/detection"
	"github.com/roadguard/go-roadguard/pkg/ear"
	"gocv.io/x/gocv"
)

var (
	green  = color.RGBA{0, 255, 0, 0}
	yellow = color.RGBA{0, 255, 255, 0} // BGR order in OpenCV
	red    = color.RGBA{0, 0, 255, 0}
	cyan   = color.RGBA{255, 255, 0, 0}
)

// Overlay is what gets drawn on a frame.
type Overlay struct {
	Face      *detection.Detection
	Landmarks []ear.Point
	EAR       *float64
	// Alerts are condition names currently past their threshold.
	Alerts []string
}

// Draw renders o onto img in place.
func Draw(img *gocv.Mat, o Overlay) {
	if img.Empty() {
		return
	}

	if o.Face != nil {
		boxColor := green
		if len(o.Alerts) > 0 {
			boxColor = red
		}
		gocv.Rectangle(img, o.Face.Box, boxColor, 2)
	}

	for i := ear.RightEyeStart; i < ear.MinLandmarks && i < len(o.Landmarks); i++ {
		p := o.Landmarks[i]
		gocv.Circle(img, image.Pt(int(p.X), int(p.Y)), 1, cyan, -1)
	}

	y := 40
	if o.EAR != nil {
		gocv.PutText(img, fmt.Sprintf("EAR: %.2f", *o.EAR), image.Pt(20, y), gocv.FontHersheySimplex, 0.7, yellow, 2)
		y += 40
	}
	for _, a := range o.Alerts {
		gocv.PutText(img, alertText(a), image.Pt(20, y), gocv.FontHersheySimplex, 0.9, red, 3)
		y += 40
	}
}

func alertText(condition string) string {
	switch condition {
	case "eyes_closed":
		return "DROWSINESS DETECTED!"
	case "face_present":
		return "FACE PRESENT"
	default:
		return condition
	}
}

// JPEG encodes img at the given quality (1-100).
func JPEG(img gocv.Mat, quality int) ([]byte, error) {
	if img.Empty() {
		return nil, fmt.Errorf("annotate: empty frame")
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("annotate: encode jpeg: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory
	return append([]byte(nil), buf.GetBytes()...), nil
}

// Snapshot clones img, draws o on the copy and encodes it.
func Snapshot(img gocv.Mat, o Overlay, quality int) ([]byte, error) {
	c := img.Clone()
	defer c.Close()
	Draw(&c, o)
	return JPEG(c, quality)
}
