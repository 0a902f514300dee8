package objectdetection

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestAnnotatorRender(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	batch := Batch{
		NewDetection(image.Rect(20, 40, 80, 180), 0.87, 0, "person"),
		NewDetection(image.Rect(100, 40, 180, 180), 0.61, 0, "person"),
	}
	annotator := NewAnnotator(AnnotatorConfig{})

	out, count := annotator.Render(img, batch)
	test.That(t, count, test.ShouldEqual, len(batch))
	test.That(t, out, test.ShouldNotEqual, img)

	// Each box has a green left edge.
	for _, d := range batch {
		edge := out.RGBAAt(d.Box.Min.X, (d.Box.Min.Y+d.Box.Max.Y)/2)
		test.That(t, edge.G, test.ShouldBeGreaterThan, 200)
		test.That(t, edge.R, test.ShouldBeLessThan, 50)
	}
	// The input frame is untouched.
	test.That(t, img.RGBAAt(20, 110), test.ShouldResemble, color.RGBA{})
}

func TestAnnotatorEmptyBatch(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.SetRGBA(3, 3, color.RGBA{R: 9, A: 255})
	out, count := NewAnnotator(DefaultAnnotatorConfig()).Render(img, nil)
	test.That(t, count, test.ShouldEqual, 0)
	test.That(t, out.Pix, test.ShouldResemble, img.Pix)
}

func TestLabelText(t *testing.T) {
	test.That(t, LabelText(NewDetection(image.Rect(0, 0, 1, 1), 0.8712, 0, "person")), test.ShouldEqual, "Person 0.87")
	test.That(t, LabelText(NewDetection(image.Rect(0, 0, 1, 1), 0.5, 7, "")), test.ShouldEqual, " 0.50")
}
