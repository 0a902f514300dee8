// Package objectdetection turns raw model output into filtered detections of one target class
// and draws them onto frames.
package objectdetection

import (
	"fmt"
	"image"
)

// Detection is one object found in a frame. Box is in frame pixel coordinates.
type Detection struct {
	ClassID int
	Label   string
	Score   float64
	Box     image.Rectangle
}

// NewDetection creates a detection.
func NewDetection(box image.Rectangle, score float64, classID int, label string) Detection {
	return Detection{ClassID: classID, Label: label, Score: score, Box: box}
}

// Area of the bounding box in pixels.
func (d Detection) Area() int {
	return d.Box.Dx() * d.Box.Dy()
}

func (d Detection) String() string {
	return fmt.Sprintf("Label: %s, Score: %.2f, Box: %v", d.Label, d.Score, d.Box)
}

// Batch holds the detections for a single frame.
type Batch []Detection

// Prediction is one raw candidate box from a backend. Scores holds a confidence per class index.
type Prediction struct {
	Box    image.Rectangle
	Scores []float64
}
