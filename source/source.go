// Package source defines where frames come from: a camera device or a video file. Backends
// register themselves by name and are wrapped so every frame is stamped with a sequence index and
// acquisition time, and the underlying handle is released exactly once.
package source

import (
	"context"
	"image"
	"strconv"
	"time"
)

// Mode selects the kind of input.
type Mode string

// The supported input modes.
const (
	ModeCamera Mode = "camera"
	ModeFile   Mode = "file"
)

// Config describes one input. Attributes carry backend specific settings.
type Config struct {
	Mode        Mode                   `json:"input_mode"`
	CameraIndex int                    `json:"camera_index"`
	FilePath    string                 `json:"file_path,omitempty"`
	Backend     string                 `json:"backend,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
}

// Target returns a human readable name for the configured input.
func (cfg Config) Target() string {
	if cfg.Mode == ModeFile {
		return cfg.FilePath
	}
	return "camera " + strconv.Itoa(cfg.CameraIndex)
}

// A Frame is one decoded image. Seq strictly increases within a run.
type Frame struct {
	Image     image.Image
	Seq       int64
	Timestamp time.Time
}

// Width of the frame in pixels.
func (f Frame) Width() int {
	return f.Image.Bounds().Dx()
}

// Height of the frame in pixels.
func (f Frame) Height() int {
	return f.Image.Bounds().Dy()
}

// A Source yields frames until it is closed or, for files, exhausted.
//
// Next returns ErrEndOfStream once a file has no more frames and a *ReadError when a single frame
// could not be decoded. Close is idempotent.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close(ctx context.Context) error
}

// A Reader is what a backend provides: raw images with no sequencing.
type Reader interface {
	Read(ctx context.Context) (image.Image, error)
	Close(ctx context.Context) error
}
