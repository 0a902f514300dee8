package web

import (
	"image"
	"testing"

	"go.viam.com/test"
)

func TestPreviewBounds(t *testing.T) {
	w, h := previewBounds(image.Rect(0, 0, 1920, 1080), 960)
	test.That(t, w, test.ShouldEqual, 960)
	test.That(t, h, test.ShouldEqual, 540)

	w, h = previewBounds(image.Rect(0, 0, 640, 480), 960)
	test.That(t, w, test.ShouldEqual, 640)
	test.That(t, h, test.ShouldEqual, 480)

	w, h = previewBounds(image.Rect(0, 0, 640, 480), 0)
	test.That(t, w, test.ShouldEqual, 640)
	test.That(t, h, test.ShouldEqual, 480)
}

func TestFrameStore(t *testing.T) {
	fs := newFrameStore(0)
	_, _, ok := fs.jpeg()
	test.That(t, ok, test.ShouldBeFalse)

	changed := fs.next()
	fs.put("run-a", 4, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	<-changed

	first, seq, ok := fs.jpeg()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, seq, test.ShouldEqual, 4)
	again, _, _ := fs.jpeg()
	test.That(t, &again[0], test.ShouldEqual, &first[0])

	// The same run keeps its frame; a new run clears it.
	fs.reset("run-a")
	_, _, ok = fs.jpeg()
	test.That(t, ok, test.ShouldBeTrue)
	fs.reset("run-b")
	_, _, ok = fs.jpeg()
	test.That(t, ok, test.ShouldBeFalse)
}
