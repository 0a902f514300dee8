package web

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"

	"github.com/nfnt/resize"
)

const jpegQuality = 80

// frameStore holds the most recent annotated frame. The JPEG is encoded at most once per frame,
// by whichever client asks first.
type frameStore struct {
	maxWidth uint

	mu      sync.Mutex
	runID   string
	seq     int64
	img     *image.RGBA
	encoded []byte
	changed chan struct{}
}

func newFrameStore(maxWidth uint) *frameStore {
	return &frameStore{maxWidth: maxWidth, seq: -1, changed: make(chan struct{})}
}

func (fs *frameStore) put(runID string, seq int64, img *image.RGBA) {
	fs.mu.Lock()
	fs.runID = runID
	fs.seq = seq
	fs.img = img
	fs.encoded = nil
	fs.broadcastLocked()
	fs.mu.Unlock()
}

// reset forgets the frame unless it belongs to runID.
func (fs *frameStore) reset(runID string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.runID == runID {
		return
	}
	fs.runID = runID
	fs.seq = -1
	fs.img = nil
	fs.encoded = nil
}

func (fs *frameStore) broadcast() {
	fs.mu.Lock()
	fs.broadcastLocked()
	fs.mu.Unlock()
}

func (fs *frameStore) broadcastLocked() {
	close(fs.changed)
	fs.changed = make(chan struct{})
}

// next returns a channel closed on the next change.
func (fs *frameStore) next() <-chan struct{} {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.changed
}

// jpeg returns the encoded frame and its sequence number, or false if there is none.
func (fs *frameStore) jpeg() ([]byte, int64, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.img == nil {
		return nil, -1, false
	}
	if fs.encoded == nil {
		buf, err := encodePreview(fs.img, fs.maxWidth)
		if err != nil {
			return nil, -1, false
		}
		fs.encoded = buf
	}
	return fs.encoded, fs.seq, true
}

func encodePreview(img *image.RGBA, maxWidth uint) ([]byte, error) {
	var out image.Image = img
	if w, h := previewBounds(img.Bounds(), maxWidth); w != uint(img.Bounds().Dx()) {
		out = resize.Resize(w, h, img, resize.Bilinear)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
