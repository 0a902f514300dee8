//go:build !no_cgo

// Package opencv reads frames from cameras and video files through OpenCV's VideoCapture.
package opencv

import (
	"context"
	"image"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/source"
)

// BackendName is the name this backend registers under.
const BackendName = "opencv"

func init() {
	source.RegisterBackend(BackendName, Open)
}

type capture struct {
	cfg        source.Config
	webcam     *gocv.VideoCapture
	mat        gocv.Mat
	frameCount float64
	logger     logging.Logger
}

// Open opens a camera by device index or a video file by path.
func Open(ctx context.Context, cfg source.Config, logger logging.Logger) (source.Reader, error) {
	var (
		webcam *gocv.VideoCapture
		err    error
	)
	switch cfg.Mode {
	case source.ModeCamera:
		webcam, err = gocv.OpenVideoCapture(cfg.CameraIndex)
	case source.ModeFile:
		if _, statErr := os.Stat(cfg.FilePath); statErr != nil {
			return nil, source.NewUnavailableError(cfg, statErr)
		}
		webcam, err = gocv.VideoCaptureFile(cfg.FilePath)
	default:
		return nil, source.NewUnavailableError(cfg, errors.Errorf("unsupported input mode %q", cfg.Mode))
	}
	if err != nil {
		return nil, source.NewUnavailableError(cfg, err)
	}
	if !webcam.IsOpened() {
		if closeErr := webcam.Close(); closeErr != nil {
			logger.Debugw("closing unopened capture failed", "error", closeErr)
		}
		return nil, source.NewUnavailableError(cfg, errors.New("capture device did not open"))
	}

	c := &capture{cfg: cfg, webcam: webcam, mat: gocv.NewMat(), logger: logger}
	if cfg.Mode == source.ModeFile {
		c.frameCount = webcam.Get(gocv.VideoCaptureFrameCount)
	}
	logger.CDebugw(ctx, "opencv capture opened",
		"target", cfg.Target(),
		"width", webcam.Get(gocv.VideoCaptureFrameWidth),
		"height", webcam.Get(gocv.VideoCaptureFrameHeight),
		"frames", c.frameCount)
	return c, nil
}

func (c *capture) Read(ctx context.Context) (image.Image, error) {
	if ok := c.webcam.Read(&c.mat); !ok || c.mat.Empty() {
		if c.cfg.Mode == source.ModeFile && c.exhausted() {
			return nil, source.ErrEndOfStream
		}
		return nil, source.NewReadError(errors.Errorf("cannot read from %s", c.cfg.Target()))
	}

	// ToImage copies out of the reused Mat, so the returned image is ours to keep.
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, source.NewReadError(err)
	}
	return img, nil
}

// exhausted reports whether the file position reached the end. Containers that do not report a
// frame count are treated as exhausted on the first failed read.
func (c *capture) exhausted() bool {
	if c.frameCount <= 0 {
		return true
	}
	return c.webcam.Get(gocv.VideoCapturePosFrames) >= c.frameCount
}

func (c *capture) Close(ctx context.Context) error {
	return errors.Wrap(multierr.Combine(c.webcam.Close(), c.mat.Close()), "closing capture")
}
