package onnx

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"go.viam.com/peoplecount/vision/objectdetection"
)

// padColor is the gray used to fill letterbox borders, as in YOLO training.
var padColor = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// letterbox describes how a frame was scaled and padded into the square model input.
type letterbox struct {
	size   int
	scale  float64
	newW   int
	newH   int
	padX   int
	padY   int
	bounds image.Rectangle
}

func newLetterbox(bounds image.Rectangle, size int) letterbox {
	w, h := bounds.Dx(), bounds.Dy()
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	newW := int(math.Round(float64(w) * scale))
	newH := int(math.Round(float64(h) * scale))
	return letterbox{
		size:   size,
		scale:  scale,
		newW:   newW,
		newH:   newH,
		padX:   (size - newW) / 2,
		padY:   (size - newH) / 2,
		bounds: bounds,
	}
}

// apply resizes and pads img into a size x size canvas.
func (lb letterbox) apply(img image.Image) *image.NRGBA {
	resized := imaging.Resize(img, lb.newW, lb.newH, imaging.Linear)
	canvas := imaging.New(lb.size, lb.size, padColor)
	return imaging.Paste(canvas, resized, image.Pt(lb.padX, lb.padY))
}

// toFrame maps a center/size box in model input pixels back onto the original frame.
func (lb letterbox) toFrame(cx, cy, w, h float64) image.Rectangle {
	x1 := (cx-w/2-float64(lb.padX))/lb.scale + float64(lb.bounds.Min.X)
	y1 := (cy-h/2-float64(lb.padY))/lb.scale + float64(lb.bounds.Min.Y)
	x2 := (cx+w/2-float64(lb.padX))/lb.scale + float64(lb.bounds.Min.X)
	y2 := (cy+h/2-float64(lb.padY))/lb.scale + float64(lb.bounds.Min.Y)
	return image.Rect(int(math.Round(x1)), int(math.Round(y1)), int(math.Round(x2)), int(math.Round(y2))).Intersect(lb.bounds)
}

// fillInput writes img into dst as planar RGB floats in [0, 1].
func fillInput(dst []float32, img *image.NRGBA) error {
	b := img.Bounds()
	channelSize := b.Dx() * b.Dy()
	if len(dst) != 3*channelSize {
		return errors.Errorf("input tensor holds %d values, image needs %d", len(dst), 3*channelSize)
	}
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			i := y*b.Dx() + x
			dst[i] = float32(row[4*x]) / 255.0
			dst[channelSize+i] = float32(row[4*x+1]) / 255.0
			dst[2*channelSize+i] = float32(row[4*x+2]) / 255.0
		}
	}
	return nil
}

// numAnchors is how many candidate boxes a YOLOv8 head produces for a square input: one per cell
// of the stride 8, 16 and 32 grids.
func numAnchors(size int) int {
	total := 0
	for _, stride := range []int{8, 16, 32} {
		cells := size / stride
		total += cells * cells
	}
	return total
}

// decodeOutput reads a YOLOv8 output tensor laid out as [1, 4+classes, anchors]. Candidates
// whose best class score is below minScore are dropped early since they can never pass any
// useful threshold.
func decodeOutput(data []float32, numClasses, anchors int, lb letterbox, minScore float64) ([]objectdetection.Prediction, error) {
	if want := (4 + numClasses) * anchors; len(data) != want {
		return nil, errors.Errorf("unexpected output length: got %d, want %d", len(data), want)
	}

	preds := make([]objectdetection.Prediction, 0, 64)
	for i := 0; i < anchors; i++ {
		best := 0.0
		scores := make([]float64, numClasses)
		for c := 0; c < numClasses; c++ {
			s := float64(data[(4+c)*anchors+i])
			scores[c] = s
			if s > best {
				best = s
			}
		}
		if best < minScore {
			continue
		}
		box := lb.toFrame(
			float64(data[i]),
			float64(data[anchors+i]),
			float64(data[2*anchors+i]),
			float64(data[3*anchors+i]),
		)
		if box.Empty() {
			continue
		}
		preds = append(preds, objectdetection.Prediction{Box: box, Scores: scores})
	}
	return preds, nil
}
